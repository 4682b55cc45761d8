package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/gatehouse/pkg/observability"
	"github.com/platinummonkey/gatehouse/pkg/session"
)

// SessionHandlers exposes session administration. Every route requires the
// platform admin token.
type SessionHandlers struct {
	sessions   *session.Store
	adminToken string
	metrics    *observability.Metrics
}

// NewSessionHandlers creates a new session handlers instance
func NewSessionHandlers(sessions *session.Store, adminToken string, metrics *observability.Metrics) *SessionHandlers {
	return &SessionHandlers{
		sessions:   sessions,
		adminToken: adminToken,
		metrics:    metrics,
	}
}

// RegisterRoutes registers session administration routes
func (h *SessionHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/sessions", h.requireAdmin(h.listSessions)).Methods("GET")
	router.HandleFunc("/sessions/{id}", h.requireAdmin(h.killSession)).Methods("DELETE")
	router.HandleFunc("/sessions/{id}/refresh", h.requireAdmin(h.markRefresh)).Methods("POST")
	router.HandleFunc("/users/{id}/sessions", h.requireAdmin(h.listUserSessions)).Methods("GET")
	router.HandleFunc("/users/{id}/sessions", h.requireAdmin(h.killUserSessions)).Methods("DELETE")
}

// requireAdmin rejects requests that do not carry the admin bearer token.
func (h *SessionHandlers) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token := strings.TrimPrefix(header, "Bearer ")
		if token == "" || token == header || token != h.adminToken {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// listSessions handles GET /sessions
func (h *SessionHandlers) listSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.sessions.FindSessions(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sessions)
}

// listUserSessions handles GET /users/{id}/sessions
func (h *SessionHandlers) listUserSessions(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	userID := vars["id"]

	sessions, err := h.sessions.FindUserSessions(r.Context(), userID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sessions)
}

// killSession handles DELETE /sessions/{id}. Killing a missing session is
// still a 204, the operation is idempotent.
func (h *SessionHandlers) killSession(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id := vars["id"]

	removed, err := h.sessions.KillSession(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if removed != nil && h.metrics != nil {
		h.metrics.SessionsKilled.Inc()
	}
	w.WriteHeader(http.StatusNoContent)
}

// killUserSessions handles DELETE /users/{id}/sessions. Kills are best-effort;
// the ids actually removed are reported even when some kills failed.
func (h *SessionHandlers) killUserSessions(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	userID := vars["id"]

	killed, err := h.sessions.KillUserSessions(r.Context(), userID)
	if h.metrics != nil {
		h.metrics.SessionsKilled.Add(float64(len(killed)))
	}
	if err != nil && len(killed) == 0 {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"user_id": userID,
		"killed":  killed,
	})
}

// markRefresh handles POST /sessions/{id}/refresh
func (h *SessionHandlers) markRefresh(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id := vars["id"]

	if err := h.sessions.MarkSessionForRefresh(r.Context(), id); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
