package provider

import (
	"context"

	log "github.com/sirupsen/logrus"
)

// LoginHandler is the verify-callback glue every strategy funnels into: it
// applies the mapping result to an access decision, then provisions or looks
// up the identity through the external collaborator.
type LoginHandler struct {
	provisioner Provisioner
}

// NewLoginHandler wires the handler to the provisioning collaborator.
func NewLoginHandler(p Provisioner) *LoginHandler {
	return &LoginHandler{provisioner: p}
}

// Decide computes the access decision for a login. When group-based access is
// configured and no groups resolved, access is denied.
func Decide(groupBaseAccess bool, assoc AssociationSet) AccessDecision {
	if groupBaseAccess && len(assoc.Groups) == 0 {
		return AccessDecision{Allow: false, Reason: ErrRestrictedAccess.Error()}
	}
	return AccessDecision{Allow: true}
}

// Complete finishes an external login: denies restricted or email-less claim
// shapes before any provisioning side effect, otherwise forwards the identity
// to the provisioner and returns its resolved user.
func (h *LoginHandler) Complete(ctx context.Context, claims IdentityClaims, assoc AssociationSet, groupBaseAccess, autoCreateGroup bool) (*User, error) {
	if claims.Email == "" {
		log.WithFields(log.Fields{"name": claims.Name}).Warn("login callback could not resolve an email from the provider claims")
		return nil, ErrConfiguration
	}
	if decision := Decide(groupBaseAccess, assoc); !decision.Allow {
		return nil, ErrRestrictedAccess
	}
	name := claims.Name
	if name == "" {
		name = claims.Email
	}
	return h.provisioner.ProvisionFromProvider(ctx, ProvisionInput{
		Email:                 claims.Email,
		Name:                  name,
		Firstname:             claims.Firstname,
		Lastname:              claims.Lastname,
		ProviderGroups:        assoc.Groups,
		ProviderOrganizations: assoc.Organizations,
		AutoCreateGroup:       autoCreateGroup,
	})
}

// FirstEmail picks the email for profiles carrying a list: the first element,
// not sorted and not deduplicated.
func FirstEmail(emails []string) string {
	if len(emails) == 0 {
		return ""
	}
	return emails[0]
}
