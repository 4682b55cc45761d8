package api

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/platinummonkey/gatehouse/pkg/observability"
	"github.com/platinummonkey/gatehouse/pkg/provider"
	"github.com/platinummonkey/gatehouse/pkg/session"
)

const (
	sessionCookieName = "gatehouse_session"
	stateCookieName   = "auth_state"
)

// AuthHandlers handles login, callback and logout requests for every
// registered strategy.
type AuthHandlers struct {
	registry   *provider.Registry
	sessions   *session.Store
	sessionTTL time.Duration
	metrics    *observability.Metrics
}

// NewAuthHandlers creates a new auth handlers instance
func NewAuthHandlers(registry *provider.Registry, sessions *session.Store, ttl time.Duration, metrics *observability.Metrics) *AuthHandlers {
	return &AuthHandlers{
		registry:   registry,
		sessions:   sessions,
		sessionTTL: ttl,
		metrics:    metrics,
	}
}

// RegisterRoutes registers authentication routes
func (h *AuthHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/auth/providers", h.listProviders).Methods("GET")
	router.HandleFunc("/auth/{provider}", h.initiateLogin).Methods("GET")
	router.HandleFunc("/auth/{provider}", h.formLogin).Methods("POST")
	router.HandleFunc("/auth/{provider}/callback", h.handleCallback).Methods("GET", "POST")
	router.HandleFunc("/logout", h.logout).Methods("GET")
}

// listProviders handles GET /auth/providers
func (h *AuthHandlers) listProviders(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.registry.Definitions())
}

// initiateLogin handles GET /auth/{provider} for redirect strategies.
func (h *AuthHandlers) initiateLogin(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	providerName := vars["provider"]

	strategy, ok := h.registry.Hub().Resolve(providerName)
	if !ok {
		http.Error(w, "provider not found", http.StatusNotFound)
		return
	}

	redirect, ok := strategy.(provider.RedirectStrategy)
	if !ok {
		http.Error(w, "provider does not support redirect login", http.StatusBadRequest)
		return
	}

	stateBytes := make([]byte, 32)
	if _, err := rand.Read(stateBytes); err != nil {
		http.Error(w, "failed to generate state", http.StatusInternalServerError)
		return
	}
	state := base64.URLEncoding.EncodeToString(stateBytes)

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   600,
	})

	if err := redirect.InitiateLogin(w, r, state); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
}

// formLogin handles POST /auth/{provider} for form strategies (local, ldap).
func (h *AuthHandlers) formLogin(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	providerName := vars["provider"]

	strategy, ok := h.registry.Hub().Resolve(providerName)
	if !ok {
		http.Error(w, "provider not found", http.StatusNotFound)
		return
	}

	form, ok := strategy.(provider.FormStrategy)
	if !ok {
		http.Error(w, "provider does not support form login", http.StatusBadRequest)
		return
	}

	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form body", http.StatusBadRequest)
		return
	}
	username := r.PostFormValue("username")
	password := r.PostFormValue("password")
	if username == "" || password == "" {
		http.Error(w, "username and password are required", http.StatusBadRequest)
		return
	}

	user, err := form.Authenticate(r.Context(), username, password)
	if err != nil {
		h.observeLogin(providerName, false)
		h.writeLoginError(w, err)
		return
	}

	h.finishLogin(w, r, providerName, user, false)
}

// handleCallback handles GET/POST /auth/{provider}/callback for redirect
// strategies.
func (h *AuthHandlers) handleCallback(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	providerName := vars["provider"]

	stateCookie, err := r.Cookie(stateCookieName)
	if err != nil {
		http.Error(w, "missing state cookie", http.StatusBadRequest)
		return
	}

	stateParam := r.URL.Query().Get("state")
	if r.Method == http.MethodPost {
		stateParam = r.FormValue("RelayState") // SAML uses RelayState
	}

	if stateParam == "" || stateParam != stateCookie.Value {
		http.Error(w, "invalid state parameter", http.StatusBadRequest)
		return
	}

	strategy, ok := h.registry.Hub().Resolve(providerName)
	if !ok {
		http.Error(w, "provider not found", http.StatusNotFound)
		return
	}

	redirect, ok := strategy.(provider.RedirectStrategy)
	if !ok {
		http.Error(w, "provider does not support redirect login", http.StatusBadRequest)
		return
	}

	user, err := redirect.HandleCallback(w, r)
	if err != nil {
		h.observeLogin(providerName, false)
		h.writeLoginError(w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{Name: stateCookieName, MaxAge: -1, Path: "/"})
	h.finishLogin(w, r, providerName, user, true)
}

// finishLogin persists the session, sets the cookie and completes the request.
func (h *AuthHandlers) finishLogin(w http.ResponseWriter, r *http.Request, providerName string, user *provider.User, browserRedirect bool) {
	sess := &session.Session{
		ID: uuid.NewString(),
		User: session.User{
			ID:            user.ID,
			GroupIDs:      user.GroupIDs,
			Organizations: user.OrganizationIDs,
		},
	}
	if err := h.sessions.Create(r.Context(), sess, h.sessionTTL); err != nil {
		log.WithError(err).WithField("provider", providerName).Error("failed to persist session")
		http.Error(w, "failed to create session", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    sess.ID,
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(h.sessionTTL.Seconds()),
	})

	h.observeLogin(providerName, true)
	log.WithFields(log.Fields{"provider": providerName, "user": user.ID}).Info("login succeeded")

	if browserRedirect {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(user)
}

// logout handles GET /logout. The post-logout location comes from the Referer
// header but only its path is trusted, never its host.
func (h *AuthHandlers) logout(w http.ResponseWriter, r *http.Request) {
	target := refererPath(r.Header.Get("Referer"))

	cookie, err := r.Cookie(sessionCookieName)
	if err == nil && cookie.Value != "" {
		if _, err := h.sessions.KillSession(r.Context(), cookie.Value); err != nil {
			log.WithError(err).Warn("failed to destroy session on logout")
		}
	}

	http.SetCookie(w, &http.Cookie{Name: sessionCookieName, MaxAge: -1, Path: "/"})
	http.Redirect(w, r, target, http.StatusFound)
}

// refererPath reduces a referer URL to a local path so logout never becomes an
// open redirect.
func refererPath(referer string) string {
	if referer == "" {
		return "/"
	}
	u, err := url.Parse(referer)
	if err != nil || u.Path == "" {
		return "/"
	}
	return u.Path
}

// writeLoginError maps strategy errors onto the HTTP contract: configured
// denials are 403 with their exact message, credential failures 401.
func (h *AuthHandlers) writeLoginError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, provider.ErrRestrictedAccess):
		http.Error(w, provider.ErrRestrictedAccess.Error(), http.StatusForbidden)
	case errors.Is(err, provider.ErrConfiguration):
		http.Error(w, provider.ErrConfiguration.Error(), http.StatusForbidden)
	case errors.Is(err, provider.ErrInvalidCredentials):
		http.Error(w, provider.ErrInvalidCredentials.Error(), http.StatusUnauthorized)
	default:
		http.Error(w, fmt.Sprintf("authentication failed: %v", err), http.StatusUnauthorized)
	}
}

func (h *AuthHandlers) observeLogin(providerName string, success bool) {
	if h.metrics != nil {
		h.metrics.ObserveLogin(providerName, success)
	}
}
