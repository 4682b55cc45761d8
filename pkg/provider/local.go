package provider

import (
	"context"
	"strings"

	log "github.com/sirupsen/logrus"
)

// LocalStrategy validates form credentials against the local password backend
// owned by the provisioning collaborator.
type LocalStrategy struct {
	provisioner Provisioner

	// adminOnly restricts the strategy to the platform admin account. Set only
	// on the fallback registration that closes the admin-lockout gap.
	adminOnly string
}

// NewLocalStrategy creates the regular local-password strategy.
func NewLocalStrategy(p Provisioner) *LocalStrategy {
	return &LocalStrategy{provisioner: p}
}

// NewAdminFallbackStrategy creates a local strategy bound to the configured
// admin email only. Any other username fails before the login backend is
// invoked, so disabling every form provider can never lock the admin out.
func NewAdminFallbackStrategy(p Provisioner, adminEmail string) *LocalStrategy {
	return &LocalStrategy{provisioner: p, adminOnly: adminEmail}
}

// Kind implements Strategy.
func (s *LocalStrategy) Kind() StrategyKind { return StrategyLocal }

// Mode implements Strategy.
func (s *LocalStrategy) Mode() AuthMode { return AuthForm }

// Authenticate implements FormStrategy.
func (s *LocalStrategy) Authenticate(ctx context.Context, username, password string) (*User, error) {
	if s.adminOnly != "" && !strings.EqualFold(username, s.adminOnly) {
		return nil, ErrInvalidCredentials
	}
	user, err := s.provisioner.Login(ctx, username, password)
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{"username": username}).Debug("[LOCAL] successfully logged")
	return user, nil
}
