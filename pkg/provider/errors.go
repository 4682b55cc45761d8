package provider

import (
	"errors"
	"fmt"
)

// User-facing denial messages. The exact wording is part of the login contract
// surfaced by the HTTP boundary.
var (
	// ErrRestrictedAccess denies a login whose mapped group set is empty while
	// group-based access is configured.
	ErrRestrictedAccess = errors.New("Restricted access, ask your administrator")

	// ErrConfiguration denies a login whose claim shape yields no email. No
	// partial identity is provisioned in that case.
	ErrConfiguration = errors.New("Configuration error, ask your administrator")

	// ErrInvalidCredentials is the generic form-login failure. It does not say
	// whether the username or the password was wrong.
	ErrInvalidCredentials = errors.New("invalid username or password")
)

// InitializationError reports a provider that could not be constructed. Boot
// degrades by omitting the provider rather than failing.
type InitializationError struct {
	Identifier string
	Err        error
}

func (e *InitializationError) Error() string {
	return fmt.Sprintf("provider %s initialization failed: %v", e.Identifier, e.Err)
}

func (e *InitializationError) Unwrap() error {
	return e.Err
}
