// Package api is the HTTP boundary of the gateway: login and callback
// endpoints for every registered strategy, session administration, and the
// metrics endpoint.
package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/platinummonkey/gatehouse/pkg/observability"
	"github.com/platinummonkey/gatehouse/pkg/provider"
	"github.com/platinummonkey/gatehouse/pkg/session"
)

// Server represents the gateway's API server
type Server struct {
	router       *mux.Router
	logger       *observability.Logger
	authHandlers *AuthHandlers
	sessHandlers *SessionHandlers
}

// ServerOptions carries the collaborators the server wires together.
type ServerOptions struct {
	Registry   *provider.Registry
	Sessions   *session.Store
	SessionTTL time.Duration
	AdminToken string
	Logger     *observability.Logger
	Metrics    *observability.Metrics
	Gatherer   prometheus.Gatherer
}

// NewServer creates a new API server
func NewServer(opts ServerOptions) *Server {
	s := &Server{
		router:       mux.NewRouter(),
		logger:       opts.Logger,
		authHandlers: NewAuthHandlers(opts.Registry, opts.Sessions, opts.SessionTTL, opts.Metrics),
		sessHandlers: NewSessionHandlers(opts.Sessions, opts.AdminToken, opts.Metrics),
	}
	if s.logger != nil {
		s.router.Use(s.requestLogging)
	}
	s.setupRoutes(opts.Gatherer)
	return s
}

// requestLogging emits one structured line per request.
func (s *Server) requestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		s.logger.
			WithField("method", r.Method).
			WithField("path", r.URL.Path).
			WithField("status", recorder.status).
			WithField("duration_ms", time.Since(start).Milliseconds()).
			Info("request handled")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Router exposes the configured router, mostly for tests.
func (s *Server) Router() *mux.Router { return s.router }

// setupRoutes configures all the API routes
func (s *Server) setupRoutes(gatherer prometheus.Gatherer) {
	s.authHandlers.RegisterRoutes(s.router)
	s.sessHandlers.RegisterRoutes(s.router)

	if gatherer != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	s.router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}).Methods("GET")
}

// ServeHTTP makes the server usable as an http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
