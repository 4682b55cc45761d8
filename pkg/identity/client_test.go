package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/gatehouse/pkg/capability"
	"github.com/platinummonkey/gatehouse/pkg/provider"
)

func TestLogin_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/login", r.URL.Path)
		require.Equal(t, "Bearer svc-token", r.Header.Get("Authorization"))

		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "user@example.com", req["username"])

		json.NewEncoder(w).Encode(provider.User{ID: "u1", Email: "user@example.com"})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "svc-token")
	user, err := client.Login(context.Background(), "user@example.com", "secret")

	require.NoError(t, err)
	assert.Equal(t, "u1", user.ID)
}

func TestLogin_UnauthorizedMapsToInvalidCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "")
	_, err := client.Login(context.Background(), "user@example.com", "wrong")

	assert.ErrorIs(t, err, provider.ErrInvalidCredentials)
}

func TestProvisionFromProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/provision", r.URL.Path)

		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "user@example.com", req["email"])
		assert.Equal(t, []any{"GROUP_USER"}, req["provider_groups"])
		assert.Equal(t, true, req["auto_create_group"])

		json.NewEncoder(w).Encode(provider.User{ID: "u1", GroupIDs: []string{"GROUP_USER"}})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "")
	user, err := client.ProvisionFromProvider(context.Background(), provider.ProvisionInput{
		Email:           "user@example.com",
		Name:            "User One",
		ProviderGroups:  []string{"GROUP_USER"},
		AutoCreateGroup: true,
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"GROUP_USER"}, user.GroupIDs)
}

func TestProvision_ServerErrorSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "")
	_, err := client.ProvisionFromProvider(context.Background(), provider.ProvisionInput{Email: "u@example.com"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestDeclareCapabilities(t *testing.T) {
	var received []capability.Capability
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/capabilities", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "")
	err := client.DeclareCapabilities(context.Background(), []capability.Capability{
		{ID: "BYPASS", Order: 1},
		{ID: "KNOWLEDGE", Order: 100},
	})

	require.NoError(t, err)
	require.Len(t, received, 2)
	assert.Equal(t, "BYPASS", received[0].ID)
}
