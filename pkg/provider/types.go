package provider

import (
	"context"
	"net/http"
	"sync"
)

// StrategyKind identifies the protocol implementation behind a provider entry.
type StrategyKind string

const (
	StrategyLocal    StrategyKind = "LocalStrategy"
	StrategyCert     StrategyKind = "ClientCertStrategy"
	StrategyLDAP     StrategyKind = "LdapStrategy"
	StrategyOpenID   StrategyKind = "OpenIDConnectStrategy"
	StrategyFacebook StrategyKind = "FacebookStrategy"
	StrategySAML     StrategyKind = "SamlStrategy"
	StrategyGoogle   StrategyKind = "GoogleStrategy"
	StrategyGithub   StrategyKind = "GithubStrategy"
	StrategyAuth0    StrategyKind = "Auth0Strategy"
)

// AuthMode distinguishes form-submitted logins from redirect handshakes.
type AuthMode string

const (
	AuthForm AuthMode = "FORM"
	AuthSSO  AuthMode = "SSO"
)

// Definition describes one configured, active provider. Built once at boot and
// immutable afterwards; the OpenID provider is appended asynchronously after
// discovery and is simply absent when discovery fails.
type Definition struct {
	Identifier   string         `json:"identifier"`
	Kind         StrategyKind   `json:"strategy"`
	DisplayName  string         `json:"name"`
	Mode         AuthMode       `json:"type"`
	Provider     string         `json:"provider"`
	RawConfig    map[string]any `json:"-"`
	MappedConfig map[string]any `json:"-"`
}

// IdentityClaims is the normalized per-login claim bag every strategy produces
// before mapping. Email is the unique key; everything else is optional.
type IdentityClaims struct {
	Email     string
	Name      string
	Firstname string
	Lastname  string
}

// AssociationSet holds the internal ids a login should carry, computed fresh
// per login. Deprecated role results are already folded into Groups.
type AssociationSet struct {
	Groups        []string
	Organizations []string
}

// AccessDecision is the outcome of the group-based access check.
type AccessDecision struct {
	Allow  bool
	Reason string
}

// User is the identity resolved by the external provisioning collaborator.
type User struct {
	ID              string   `json:"id"`
	Email           string   `json:"user_email"`
	Name            string   `json:"name"`
	GroupIDs        []string `json:"group_ids"`
	OrganizationIDs []string `json:"organizations"`
}

// ProvisionInput is what LoginHandler forwards to the provisioning collaborator.
type ProvisionInput struct {
	Email                 string
	Name                  string
	Firstname             string
	Lastname              string
	ProviderGroups        []string
	ProviderOrganizations []string
	AutoCreateGroup       bool
}

// Provisioner is the external identity layer. Password hashing, token issuance
// and the user schema live behind it.
type Provisioner interface {
	// Login validates form credentials and resolves the user.
	Login(ctx context.Context, username, password string) (*User, error)
	// ProvisionFromProvider creates or looks up the identity for an external login.
	ProvisionFromProvider(ctx context.Context, input ProvisionInput) (*User, error)
}

// Strategy is a registered authentication implementation.
type Strategy interface {
	Kind() StrategyKind
	Mode() AuthMode
}

// FormStrategy authenticates submitted credentials (local, ldap).
type FormStrategy interface {
	Strategy
	Authenticate(ctx context.Context, username, password string) (*User, error)
}

// RedirectStrategy drives a browser handshake (oidc, oauth2, saml).
type RedirectStrategy interface {
	Strategy
	InitiateLogin(w http.ResponseWriter, r *http.Request, state string) error
	HandleCallback(w http.ResponseWriter, r *http.Request) (*User, error)
}

// StrategyHub registers strategies under resolvable names. One hub is built at
// boot and injected; there is no process-wide registration side effect.
type StrategyHub interface {
	Register(name string, s Strategy)
	Resolve(name string) (Strategy, bool)
	Names() []string
}

// NewHub returns an empty StrategyHub. Registration is guarded because the
// OpenID provider registers from a discovery goroutine after boot.
func NewHub() StrategyHub {
	return &mapHub{strategies: make(map[string]Strategy)}
}

type mapHub struct {
	mu         sync.RWMutex
	strategies map[string]Strategy
}

func (h *mapHub) Register(name string, s Strategy) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.strategies[name] = s
}

func (h *mapHub) Resolve(name string) (Strategy, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.strategies[name]
	return s, ok
}

func (h *mapHub) Names() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.strategies))
	for name := range h.strategies {
		names = append(names, name)
	}
	return names
}
