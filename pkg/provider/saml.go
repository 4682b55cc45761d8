package provider

import (
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"net/http"

	saml2 "github.com/russellhaering/gosaml2"
	dsig "github.com/russellhaering/goxmldsig"
	log "github.com/sirupsen/logrus"
)

// SAMLStrategy validates IdP assertions and feeds their attributes through the
// claim mapping.
type SAMLStrategy struct {
	login *LoginHandler
	sp    *saml2.SAMLServiceProvider

	mailAttribute string
	accountAttr   string

	groupsCfg   *MappingConfig
	rolesCfg    *MappingConfig
	orgsCfg     *MappingConfig
	orgsDefault []string
	autoCreate  bool
}

// NewSAMLStrategy builds the service provider from a remapped config. The IdP
// certificate must parse; a broken certificate degrades boot by omitting the
// provider.
func NewSAMLStrategy(mapped map[string]any, login *LoginHandler) (*SAMLStrategy, error) {
	certPEM := getString(mapped, "cert")
	block, _ := pem.Decode([]byte(certPEM))
	if block == nil {
		return nil, fmt.Errorf("failed to decode issuer certificate PEM")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse issuer certificate: %w", err)
	}
	certStore := dsig.MemoryX509CertificateStore{
		Roots: []*x509.Certificate{cert},
	}

	sp := &saml2.SAMLServiceProvider{
		IdentityProviderSSOURL:      getString(mapped, "entryPoint"),
		IdentityProviderIssuer:      getString(mapped, "issuer"),
		ServiceProviderIssuer:       getString(mapped, "issuer"),
		AssertionConsumerServiceURL: getString(mapped, "callbackUrl"),
		AudienceURI:                 getString(mapped, "audience"),
		IDPCertificateStore:         &certStore,
		SignAuthnRequests:           false,
	}
	if sp.AudienceURI == "" {
		sp.AudienceURI = sp.ServiceProviderIssuer
	}

	return &SAMLStrategy{
		login:         login,
		sp:            sp,
		mailAttribute: getString(mapped, "mail_attribute"),
		accountAttr:   getString(mapped, "account_attribute"),
		groupsCfg:     GroupsConfig(mapped),
		rolesCfg:      RolesConfig(mapped),
		orgsCfg:       OrganizationsConfig(mapped),
		orgsDefault:   OrganizationsDefault(mapped),
		autoCreate:    getBool(mapped, "auto_create_group"),
	}, nil
}

// Kind implements Strategy.
func (s *SAMLStrategy) Kind() StrategyKind { return StrategySAML }

// Mode implements Strategy.
func (s *SAMLStrategy) Mode() AuthMode { return AuthSSO }

// InitiateLogin implements RedirectStrategy.
func (s *SAMLStrategy) InitiateLogin(w http.ResponseWriter, r *http.Request, state string) error {
	authURL, err := s.sp.BuildAuthURL(state)
	if err != nil {
		return fmt.Errorf("failed to build auth URL: %w", err)
	}
	http.Redirect(w, r, authURL, http.StatusFound)
	return nil
}

// HandleCallback implements RedirectStrategy: validates the posted assertion
// and completes the login from its attributes.
func (s *SAMLStrategy) HandleCallback(w http.ResponseWriter, r *http.Request) (*User, error) {
	if err := r.ParseForm(); err != nil {
		return nil, fmt.Errorf("failed to parse form: %w", err)
	}
	samlResponse := r.FormValue("SAMLResponse")
	if samlResponse == "" {
		return nil, fmt.Errorf("missing SAMLResponse parameter")
	}
	assertionBytes, err := base64.StdEncoding.DecodeString(samlResponse)
	if err != nil {
		return nil, fmt.Errorf("failed to decode SAMLResponse: %w", err)
	}
	assertionInfo, err := s.sp.RetrieveAssertionInfo(string(assertionBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to validate assertion: %w", err)
	}
	if assertionInfo.WarningInfo != nil {
		if assertionInfo.WarningInfo.InvalidTime {
			return nil, fmt.Errorf("assertion has invalid time")
		}
		if assertionInfo.WarningInfo.NotInAudience {
			return nil, fmt.Errorf("assertion not in expected audience")
		}
	}
	log.WithFields(log.Fields{"nameID": assertionInfo.NameID}).Debug("[SAML] successfully logged")

	entry := make(map[string]any, len(assertionInfo.Values))
	for _, attr := range assertionInfo.Values {
		values := make([]string, 0, len(attr.Values))
		for _, v := range attr.Values {
			values = append(values, v.Value)
		}
		if len(values) == 1 {
			entry[attr.Name] = values[0]
		} else {
			entry[attr.Name] = values
		}
	}

	email := assertionInfo.NameID
	if s.mailAttribute != "" {
		email = getString(entry, s.mailAttribute)
	}
	name := getString(entry, s.accountAttr)

	src := ClaimSource{Entry: entry}
	claims := IdentityClaims{Email: email, Name: name}
	assoc := AssociationSet{
		Groups:        GroupsToAssociate(s.groupsCfg, s.rolesCfg, src),
		Organizations: ComputeOrganizationsMapping(s.orgsCfg, s.orgsDefault, src),
	}
	return s.login.Complete(r.Context(), claims, assoc, IsGroupBaseAccess(s.groupsCfg, s.rolesCfg), s.autoCreate)
}
