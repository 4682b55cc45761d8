package provider

import (
	"context"
	"fmt"
	"net/http"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

// OIDCStrategy implements the OpenID Connect handshake. Construction performs
// the remote discovery call; the registry runs it asynchronously and omits
// the provider when discovery fails.
type OIDCStrategy struct {
	login        *LoginHandler
	provider     *oidc.Provider
	verifier     *oidc.IDTokenVerifier
	oauth2Config *oauth2.Config

	groupsCfg   *MappingConfig
	rolesCfg    *MappingConfig
	orgsCfg     *MappingConfig
	orgsDefault []string
	autoCreate  bool
}

// NewOIDCStrategy discovers the issuer and builds the strategy. The OpenID
// library reads snake_case keys, so the raw config is used for its fields and
// the mapped config only for the management sections.
func NewOIDCStrategy(ctx context.Context, rawConfig, mappedConfig map[string]any, login *LoginHandler) (*OIDCStrategy, error) {
	issuer := getString(rawConfig, "issuer")
	discovered, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OpenID issuer %s: %w", issuer, err)
	}

	clientID := getString(rawConfig, "client_id")
	groupsCfg := GroupsConfig(mappedConfig)
	rolesCfg := RolesConfig(mappedConfig)

	scopes := []string{oidc.ScopeOpenID, "email", "profile"}
	if groupsCfg != nil && groupsCfg.Scope != "" {
		scopes = append(scopes, groupsCfg.Scope)
	}
	if rolesCfg != nil && rolesCfg.Scope != "" {
		scopes = append(scopes, rolesCfg.Scope)
	}

	redirectURL := ""
	if uris := getStringList(rawConfig["redirect_uris"]); len(uris) > 0 {
		redirectURL = uris[0]
	}

	return &OIDCStrategy{
		login:    login,
		provider: discovered,
		verifier: discovered.Verifier(&oidc.Config{ClientID: clientID}),
		oauth2Config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: getString(rawConfig, "client_secret"),
			Endpoint:     discovered.Endpoint(),
			RedirectURL:  redirectURL,
			Scopes:       scopes,
		},
		groupsCfg:   groupsCfg,
		rolesCfg:    rolesCfg,
		orgsCfg:     OrganizationsConfig(mappedConfig),
		orgsDefault: OrganizationsDefault(mappedConfig),
		autoCreate:  getBool(mappedConfig, "auto_create_group"),
	}, nil
}

// Kind implements Strategy.
func (s *OIDCStrategy) Kind() StrategyKind { return StrategyOpenID }

// Mode implements Strategy.
func (s *OIDCStrategy) Mode() AuthMode { return AuthSSO }

// InitiateLogin implements RedirectStrategy.
func (s *OIDCStrategy) InitiateLogin(w http.ResponseWriter, r *http.Request, state string) error {
	http.Redirect(w, r, s.oauth2Config.AuthCodeURL(state), http.StatusFound)
	return nil
}

// HandleCallback implements RedirectStrategy: exchanges the code, verifies the
// ID token, resolves the claim sources per token_reference/read_userinfo and
// completes the login.
func (s *OIDCStrategy) HandleCallback(w http.ResponseWriter, r *http.Request) (*User, error) {
	ctx := r.Context()
	code := r.URL.Query().Get("code")
	if code == "" {
		return nil, fmt.Errorf("missing authorization code")
	}
	token, err := s.oauth2Config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange token: %w", err)
	}
	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		return nil, fmt.Errorf("missing id_token in token response")
	}
	idToken, err := s.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("failed to verify ID token: %w", err)
	}
	var idClaims map[string]any
	if err := idToken.Claims(&idClaims); err != nil {
		return nil, fmt.Errorf("failed to parse ID token claims: %w", err)
	}
	log.WithFields(log.Fields{"subject": idToken.Subject}).Debug("[OPENID] successfully logged")

	src := ClaimSource{
		Token:    s.referencedToken(idClaims, token),
		Userinfo: s.fetchUserinfoIfNeeded(ctx, token),
	}
	claims := IdentityClaims{
		Email:     getString(idClaims, "email"),
		Name:      getString(idClaims, "name"),
		Firstname: getString(idClaims, "given_name"),
		Lastname:  getString(idClaims, "family_name"),
	}
	if claims.Email == "" && src.Userinfo != nil {
		claims.Email = getString(src.Userinfo, "email")
	}
	assoc := AssociationSet{
		Groups:        GroupsToAssociate(s.groupsCfg, s.rolesCfg, src),
		Organizations: ComputeOrganizationsMapping(s.orgsCfg, s.orgsDefault, src),
	}
	return s.login.Complete(ctx, claims, assoc, IsGroupBaseAccess(s.groupsCfg, s.rolesCfg), s.autoCreate)
}

// referencedToken picks the token the management sections read their paths
// from: the decoded access token by default, the verified ID token claims
// when token_reference says so.
func (s *OIDCStrategy) referencedToken(idClaims map[string]any, token *oauth2.Token) map[string]any {
	reference := ""
	for _, cfg := range []*MappingConfig{s.groupsCfg, s.rolesCfg, s.orgsCfg} {
		if cfg != nil && cfg.TokenReference != "" {
			reference = cfg.TokenReference
			break
		}
	}
	if reference == "id_token" {
		return idClaims
	}
	return decodeToken(token.AccessToken)
}

func (s *OIDCStrategy) fetchUserinfoIfNeeded(ctx context.Context, token *oauth2.Token) map[string]any {
	needed := false
	for _, cfg := range []*MappingConfig{s.groupsCfg, s.rolesCfg, s.orgsCfg} {
		if cfg != nil && cfg.ReadUserinfo {
			needed = true
			break
		}
	}
	if !needed {
		return nil
	}
	userinfo, err := s.provider.UserInfo(ctx, oauth2.StaticTokenSource(token))
	if err != nil {
		log.WithError(err).Warn("[OPENID] userinfo fetch failed")
		return nil
	}
	var claims map[string]any
	if err := userinfo.Claims(&claims); err != nil {
		log.WithError(err).Warn("[OPENID] userinfo claims decode failed")
		return nil
	}
	return claims
}

// decodeToken decodes a JWT without verifying its signature. The token was
// already obtained over the provider's token endpoint; signature checks are
// the verifier's job, this decode only feeds claim-path resolution.
func decodeToken(raw string) map[string]any {
	if raw == "" {
		return nil
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return nil
	}
	return map[string]any(claims)
}
