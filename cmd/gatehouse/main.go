package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"github.com/platinummonkey/gatehouse/pkg/api"
	"github.com/platinummonkey/gatehouse/pkg/capability"
	"github.com/platinummonkey/gatehouse/pkg/config"
	"github.com/platinummonkey/gatehouse/pkg/identity"
	"github.com/platinummonkey/gatehouse/pkg/observability"
	"github.com/platinummonkey/gatehouse/pkg/provider"
	"github.com/platinummonkey/gatehouse/pkg/session"
)

// platformCapabilities is the capability tree declared to the identity
// service at boot. Dependencies inherit the parent name as a prefix.
var platformCapabilities = []capability.Node{
	{Name: "BYPASS", Description: "Bypass all capabilities", Order: 1},
	{Name: "KNOWLEDGE", Description: "Access knowledge", Order: 100, Dependencies: []capability.Node{
		{Name: "KNUPDATE", Description: "Create / Update knowledge", Order: 200, Dependencies: []capability.Node{
			{Name: "KNDELETE", Description: "Delete knowledge", Order: 300},
		}},
	}},
	{Name: "SETTINGS", Description: "Access administration", Order: 3000, Dependencies: []capability.Node{
		{Name: "SETACCESSES", Description: "Manage credentials", Order: 3200},
	}},
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.WithError(err).Fatal("failed to load configuration")
	}
	if level, err := log.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	provisioner := identity.NewClient(cfg.Identity.URL, cfg.Identity.Token)
	if err := provisioner.DeclareCapabilities(ctx, capability.Flatten(platformCapabilities)); err != nil {
		log.WithError(err).Warn("capability declaration failed, identity service may be starting up")
	}

	registry := provider.Build(ctx, cfg.Providers, provider.BuildOptions{
		AdminEmail:  cfg.Admin.Email,
		Provisioner: provisioner,
	})
	log.WithField("providers", len(registry.Definitions())).Info("provider registry built")

	redisClient, err := session.NewClient(cfg.Redis)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to redis")
	}
	defer redisClient.Close()

	registerer := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registerer)
	requestLogger := observability.NewLogger(observability.ParseLogLevel(cfg.LogLevel), os.Stdout)

	server := api.NewServer(api.ServerOptions{
		Registry:   registry,
		Sessions:   session.NewStore(redisClient),
		SessionTTL: cfg.Session.TTL,
		AdminToken: cfg.Admin.Token,
		Logger:     requestLogger,
		Metrics:    metrics,
		Gatherer:   registerer,
	})

	httpServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.WithField("addr", httpServer.Addr).Info("gatehouse listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server failed")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("graceful shutdown failed")
	}
}
