package provider

import (
	"context"
	"sort"
	"sync"

	log "github.com/sirupsen/logrus"
)

// Entry is one configured provider entry of the providers tree.
type Entry struct {
	Identifier string         `yaml:"identifier" json:"identifier"`
	Strategy   StrategyKind   `yaml:"strategy" json:"strategy"`
	Config     map[string]any `yaml:"config" json:"config"`
}

// Default registration names per strategy kind, used when an entry carries no
// identifier of its own.
var defaultRegistrationNames = map[StrategyKind]string{
	StrategyLocal:    "local",
	StrategyLDAP:     "ldapauth",
	StrategySAML:     "saml",
	StrategyOpenID:   "oic",
	StrategyFacebook: "facebook",
	StrategyGoogle:   "google",
	StrategyGithub:   "github",
	StrategyAuth0:    "auth0",
	StrategyCert:     "cert",
}

// BuildOptions carries the collaborators the registry needs.
type BuildOptions struct {
	// AdminEmail is the platform admin account the fallback local strategy
	// binds to.
	AdminEmail string
	// Provisioner is the external identity layer.
	Provisioner Provisioner
}

// Registry holds the strategies and definitions built from configuration. It
// is constructed once at boot and handed to the HTTP layer; apart from the
// asynchronous OpenID registration nothing mutates it afterwards.
type Registry struct {
	hub   StrategyHub
	login *LoginHandler

	mu          sync.RWMutex
	definitions []Definition
}

// Hub exposes the strategy hub.
func (r *Registry) Hub() StrategyHub { return r.hub }

// Definitions returns a snapshot of the active provider definitions.
func (r *Registry) Definitions() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Definition, len(r.definitions))
	copy(out, r.definitions)
	return out
}

// HasStrategy reports whether any active provider uses the given kind.
func (r *Registry) HasStrategy(kind StrategyKind) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, def := range r.definitions {
		if def.Kind == kind {
			return true
		}
	}
	return false
}

func (r *Registry) register(def Definition, s Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	replaced := false
	for i, existing := range r.definitions {
		if existing.Provider == def.Provider {
			log.WithFields(log.Fields{
				"name":     def.Provider,
				"previous": existing.Identifier,
				"current":  def.Identifier,
			}).Warn("provider registration name collision, later provider overwrites the former")
			r.definitions[i] = def
			replaced = true
			break
		}
	}
	if !replaced {
		r.definitions = append(r.definitions, def)
	}
	r.hub.Register(def.Provider, s)
}

// Build instantiates and registers one strategy per configured, non-disabled
// provider entry. Unknown strategy kinds are skipped. The OpenID provider
// registers asynchronously once discovery settles; a discovery failure only
// logs and omits that provider. The admin fallback guard runs last.
func Build(ctx context.Context, entries map[string]Entry, opts BuildOptions) *Registry {
	login := NewLoginHandler(opts.Provisioner)
	reg := &Registry{hub: NewHub(), login: login}

	identifiers := make([]string, 0, len(entries))
	for id := range entries {
		identifiers = append(identifiers, id)
	}
	sort.Strings(identifiers)

	for _, identifier := range identifiers {
		entry := entries[identifier]
		config := entry.Config
		if config == nil {
			config = map[string]any{}
		}
		if getBool(config, "disabled") {
			continue
		}
		mapped, _ := Remap(config).(map[string]any)
		displayName := getString(config, "label")
		if displayName == "" {
			displayName = identifier
		}
		registration := entry.Identifier
		if registration == "" {
			registration = defaultRegistrationNames[entry.Strategy]
		}
		def := Definition{
			Identifier:   identifier,
			Kind:         entry.Strategy,
			DisplayName:  displayName,
			Provider:     registration,
			RawConfig:    config,
			MappedConfig: mapped,
		}

		switch entry.Strategy {
		case StrategyLocal:
			def.Mode = AuthForm
			reg.register(def, NewLocalStrategy(opts.Provisioner))
		case StrategyLDAP:
			def.Mode = AuthForm
			reg.register(def, NewLDAPStrategy(mapped, login))
		case StrategySAML:
			def.Mode = AuthSSO
			s, err := NewSAMLStrategy(mapped, login)
			if err != nil {
				log.WithError(&InitializationError{Identifier: identifier, Err: err}).Error("skipping SAML provider")
				continue
			}
			reg.register(def, s)
		case StrategyOpenID:
			def.Mode = AuthSSO
			// Discovery is remote; registration settles asynchronously and
			// boot proceeds without it.
			go func(def Definition, raw, mapped map[string]any) {
				s, err := NewOIDCStrategy(ctx, raw, mapped, login)
				if err != nil {
					log.WithError(&InitializationError{Identifier: def.Identifier, Err: err}).Error("skipping OpenID provider")
					return
				}
				reg.register(def, s)
			}(def, config, mapped)
		case StrategyFacebook, StrategyGoogle, StrategyGithub, StrategyAuth0:
			def.Mode = AuthSSO
			s, err := NewOAuth2Strategy(entry.Strategy, mapped, login)
			if err != nil {
				log.WithError(&InitializationError{Identifier: identifier, Err: err}).Error("skipping OAuth2 provider")
				continue
			}
			reg.register(def, s)
		case StrategyCert:
			def.Mode = AuthSSO
			reg.register(def, NewCertStrategy(login))
		default:
			log.WithFields(log.Fields{"identifier": identifier, "strategy": entry.Strategy}).Warn("unknown provider strategy, skipping")
		}
	}

	reg.ensureLocalFallback(opts)
	return reg
}

// ensureLocalFallback guarantees exactly one LOCAL registration exists even
// when configuration disables every form provider: a local strategy bound to
// the admin email only.
func (r *Registry) ensureLocalFallback(opts BuildOptions) {
	if r.HasStrategy(StrategyLocal) {
		return
	}
	log.Info("no local provider configured, registering admin-only local fallback")
	r.register(Definition{
		Identifier:  "local",
		Kind:        StrategyLocal,
		DisplayName: "Local",
		Mode:        AuthForm,
		Provider:    defaultRegistrationNames[StrategyLocal],
	}, NewAdminFallbackStrategy(opts.Provisioner, opts.AdminEmail))
}
