package api

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/gatehouse/pkg/observability"
	"github.com/platinummonkey/gatehouse/pkg/provider"
	"github.com/platinummonkey/gatehouse/pkg/session"
)

func TestServer_HealthAndMetrics(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	registry := provider.Build(context.Background(), nil, provider.BuildOptions{
		AdminEmail:  "admin@example.com",
		Provisioner: &stubProvisioner{},
	})

	registerer := prometheus.NewRegistry()
	var logBuf bytes.Buffer
	server := NewServer(ServerOptions{
		Registry:   registry,
		Sessions:   session.NewStore(client),
		SessionTTL: time.Hour,
		AdminToken: testAdminToken,
		Logger:     observability.NewLogger(observability.InfoLevel, &logBuf),
		Metrics:    observability.NewMetrics(registerer),
		Gatherer:   registerer,
	})

	w := httptest.NewRecorder()
	server.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())

	w = httptest.NewRecorder()
	server.ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	// The request middleware logged both requests.
	assert.Contains(t, logBuf.String(), `"path":"/health"`)
	assert.Contains(t, logBuf.String(), "request handled")
}
