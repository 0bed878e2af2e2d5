package models

import "errors"

// Error taxonomy shared across the credential store, connection supervisor
// and dispatch engine. Handlers map these to HTTP statuses; everything else
// wraps them with context.
var (
	ErrInvalidCredentials    = errors.New("invalid api credentials or phone number")
	ErrRateLimited           = errors.New("too many attempts, try again later")
	ErrExpiredVerification   = errors.New("verification expired")
	ErrInvalidCode           = errors.New("invalid confirmation code")
	ErrInvalidPassword       = errors.New("invalid two-factor password")
	Err2FARequired           = errors.New("two-factor password required")
	ErrMissingSession        = errors.New("account has no stored session")
	ErrAlreadyRunning        = errors.New("account is already starting")
	ErrNotFound              = errors.New("not found")
	ErrTransportDisconnected = errors.New("transport disconnected")
	ErrCapExceeded           = errors.New("daily response cap reached")
)
