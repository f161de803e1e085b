package platforms

import "errors"

var (
	// ErrUnknownPlatform is returned for ids outside the static catalog
	ErrUnknownPlatform = errors.New("unknown platform")

	// ErrPersistence is returned when the write-through to storage failed.
	// The registry state is unchanged and no listener was notified.
	ErrPersistence = errors.New("failed to persist platform state")

	// ErrCredentialExchange is returned when the authenticator rejected or
	// could not complete the credential exchange
	ErrCredentialExchange = errors.New("credential exchange failed")

	// ErrInvalidCredentials is returned for credentials missing required fields
	ErrInvalidCredentials = errors.New("invalid credentials")
)
