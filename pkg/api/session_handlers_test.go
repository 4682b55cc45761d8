package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/gatehouse/pkg/session"
)

const testAdminToken = "5c60ba80-21f2-4a83-a0a5-8d6b2b9b0f9b"

func setupSessionTest(t *testing.T) (*mux.Router, *session.Store) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	store := session.NewStore(client)

	router := mux.NewRouter()
	NewSessionHandlers(store, testAdminToken, nil).RegisterRoutes(router)
	return router, store
}

func adminRequest(router *mux.Router, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	req.Header.Set("Authorization", "Bearer "+testAdminToken)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestSessionRoutes_RequireAdminToken(t *testing.T) {
	router, _ := setupSessionTest(t)

	for _, tc := range []struct {
		method, path string
	}{
		{"GET", "/sessions"},
		{"DELETE", "/sessions/s1"},
		{"POST", "/sessions/s1/refresh"},
		{"GET", "/users/u1/sessions"},
		{"DELETE", "/users/u1/sessions"},
	} {
		req := httptest.NewRequest(tc.method, tc.path, nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code, "%s %s without token", tc.method, tc.path)

		req = httptest.NewRequest(tc.method, tc.path, nil)
		req.Header.Set("Authorization", "Bearer wrong-token")
		w = httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code, "%s %s with wrong token", tc.method, tc.path)
	}
}

func TestListSessions(t *testing.T) {
	router, store := setupSessionTest(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, &session.Session{ID: "s1", User: session.User{ID: "alice"}}, time.Hour))
	require.NoError(t, store.Create(ctx, &session.Session{ID: "s2", User: session.User{ID: "alice"}}, time.Hour))

	w := adminRequest(router, "GET", "/sessions")
	require.Equal(t, http.StatusOK, w.Code)

	var grouped []session.UserSessions
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &grouped))
	require.Len(t, grouped, 1)
	assert.Equal(t, "alice", grouped[0].UserID)
	assert.Len(t, grouped[0].Sessions, 2)
}

func TestListUserSessions(t *testing.T) {
	router, store := setupSessionTest(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, &session.Session{ID: "s1", User: session.User{ID: "alice"}}, time.Hour))
	require.NoError(t, store.Create(ctx, &session.Session{ID: "s2", User: session.User{ID: "bob"}}, time.Hour))

	w := adminRequest(router, "GET", "/users/alice/sessions")
	require.Equal(t, http.StatusOK, w.Code)

	var sessions []session.Info
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sessions))
	assert.Len(t, sessions, 1)
}

func TestKillSessionEndpoint(t *testing.T) {
	router, store := setupSessionTest(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, &session.Session{ID: "s1", User: session.User{ID: "alice"}}, time.Hour))

	w := adminRequest(router, "DELETE", "/sessions/s1")
	assert.Equal(t, http.StatusNoContent, w.Code)

	sess, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, sess)
}

func TestKillSessionEndpoint_MissingIDStillSucceeds(t *testing.T) {
	router, _ := setupSessionTest(t)

	w := adminRequest(router, "DELETE", "/sessions/never-existed")
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestKillUserSessionsEndpoint(t *testing.T) {
	router, store := setupSessionTest(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, &session.Session{ID: "s1", User: session.User{ID: "alice"}}, time.Hour))
	require.NoError(t, store.Create(ctx, &session.Session{ID: "s2", User: session.User{ID: "alice"}}, time.Hour))

	w := adminRequest(router, "DELETE", "/users/alice/sessions")
	require.Equal(t, http.StatusOK, w.Code)

	var result struct {
		UserID string   `json:"user_id"`
		Killed []string `json:"killed"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, "alice", result.UserID)
	assert.ElementsMatch(t, []string{"s1", "s2"}, result.Killed)

	remaining, err := store.FindUserSessions(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

func TestMarkRefreshEndpoint(t *testing.T) {
	router, store := setupSessionTest(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, &session.Session{ID: "s1", User: session.User{ID: "alice"}}, time.Hour))

	w := adminRequest(router, "POST", "/sessions/s1/refresh")
	assert.Equal(t, http.StatusNoContent, w.Code)

	sess, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, sess.RefreshPending)
}
