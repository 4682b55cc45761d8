package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOAuth2Strategy_Presets(t *testing.T) {
	login := NewLoginHandler(&fakeProvisioner{})

	github, err := NewOAuth2Strategy(StrategyGithub, map[string]any{"clientID": "id"}, login)
	require.NoError(t, err)
	assert.Equal(t, []string{"user:email"}, github.oauth2Config.Scopes)
	assert.Equal(t, githubUserinfoURL, github.userinfoURL)

	google, err := NewOAuth2Strategy(StrategyGoogle, map[string]any{}, login)
	require.NoError(t, err)
	assert.Equal(t, googleUserinfoURL, google.userinfoURL)

	auth0, err := NewOAuth2Strategy(StrategyAuth0, map[string]any{"domain": "tenant.auth0.com"}, login)
	require.NoError(t, err)
	assert.Equal(t, "https://tenant.auth0.com/authorize", auth0.oauth2Config.Endpoint.AuthURL)
	assert.Equal(t, "https://tenant.auth0.com/userinfo", auth0.userinfoURL)
}

func TestNewOAuth2Strategy_GithubOrgScope(t *testing.T) {
	s, err := NewOAuth2Strategy(StrategyGithub, map[string]any{
		"organizations": []any{"acme"},
	}, NewLoginHandler(&fakeProvisioner{}))
	require.NoError(t, err)

	assert.Equal(t, []string{"user:email", "read:org"}, s.oauth2Config.Scopes)
}

func TestNewOAuth2Strategy_UnsupportedKind(t *testing.T) {
	_, err := NewOAuth2Strategy(StrategyLocal, map[string]any{}, NewLoginHandler(&fakeProvisioner{}))
	assert.Error(t, err)
}

func TestCheckRestrictions_GoogleDomains(t *testing.T) {
	s, err := NewOAuth2Strategy(StrategyGoogle, map[string]any{
		"domains": []any{"example.com"},
	}, NewLoginHandler(&fakeProvisioner{}))
	require.NoError(t, err)

	assert.NoError(t, s.checkRestrictions(nil, "user@example.com"))
	assert.NoError(t, s.checkRestrictions(nil, "user@EXAMPLE.COM"))
	assert.ErrorIs(t, s.checkRestrictions(nil, "user@other.com"), ErrRestrictedAccess)
	assert.ErrorIs(t, s.checkRestrictions(nil, "no-at-sign"), ErrRestrictedAccess)
}

func TestResolveEmail_ListUsesFirstElement(t *testing.T) {
	s, err := NewOAuth2Strategy(StrategyFacebook, map[string]any{}, NewLoginHandler(&fakeProvisioner{}))
	require.NoError(t, err)

	email, err := s.resolveEmail(nil, map[string]any{
		"emails": []any{"first@example.com", "second@example.com"},
	})
	require.NoError(t, err)
	assert.Equal(t, "first@example.com", email)

	email, err = s.resolveEmail(nil, map[string]any{"email": "single@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "single@example.com", email)
}

func TestProfileName(t *testing.T) {
	assert.Equal(t, "Jane", profileName(map[string]any{"name": "Jane"}))
	assert.Equal(t, "jdoe", profileName(map[string]any{"login": "jdoe"}))
	assert.Equal(t, "", profileName(map[string]any{}))
}
