package provider

import (
	"fmt"
	"net/http"

	log "github.com/sirupsen/logrus"
)

// CertStrategy authenticates with the client certificate the TLS layer
// already verified. There is no handshake of its own; initiation simply lands
// on the callback.
type CertStrategy struct {
	login *LoginHandler
}

// NewCertStrategy creates the client-certificate strategy.
func NewCertStrategy(login *LoginHandler) *CertStrategy {
	return &CertStrategy{login: login}
}

// Kind implements Strategy.
func (s *CertStrategy) Kind() StrategyKind { return StrategyCert }

// Mode implements Strategy.
func (s *CertStrategy) Mode() AuthMode { return AuthSSO }

// InitiateLogin implements RedirectStrategy.
func (s *CertStrategy) InitiateLogin(w http.ResponseWriter, r *http.Request, state string) error {
	http.Redirect(w, r, "/auth/cert/callback", http.StatusFound)
	return nil
}

// HandleCallback implements RedirectStrategy: reads the peer certificate and
// completes the login from its subject.
func (s *CertStrategy) HandleCallback(w http.ResponseWriter, r *http.Request) (*User, error) {
	if r.TLS == nil || len(r.TLS.PeerCertificates) == 0 {
		return nil, fmt.Errorf("no verified client certificate presented")
	}
	cert := r.TLS.PeerCertificates[0]
	email := FirstEmail(cert.EmailAddresses)
	log.WithFields(log.Fields{"subject": cert.Subject.CommonName}).Debug("[CERT] successfully logged")

	claims := IdentityClaims{
		Email: email,
		Name:  cert.Subject.CommonName,
	}
	return s.login.Complete(r.Context(), claims, AssociationSet{}, false, false)
}
