package auth

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCredentials is returned by verifiers when the upstream rejects the credentials.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrUpstreamUnavailable is returned by verifiers when the upstream cannot be reached.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrUnknownStrategy is returned when Authenticate names an unregistered strategy.
	ErrUnknownStrategy = errors.New("unknown auth strategy")

	// ErrRedirectRequired is returned when Authenticate is called without both redirects.
	ErrRedirectRequired = errors.New("success and failure redirects are required")
)

// MessageInvalidLogin is the user-facing text flashed for any failed login.
const MessageInvalidLogin = "Invalid login"

// VerifyError wraps a verification failure with the strategy that produced it.
type VerifyError struct {
	Strategy string
	Err      error
}

func (e *VerifyError) Error() string {
	return fmt.Sprintf("auth %s: %v", e.Strategy, e.Err)
}

func (e *VerifyError) Unwrap() error { return e.Err }

// Message maps a verification error to the text shown on the login page.
// Both rejected and unreachable upstreams read as an invalid login so the
// page never reveals which one happened.
func Message(err error) string {
	if err == nil {
		return ""
	}
	return MessageInvalidLogin
}

// FlashError is the value flashed under the session error key.
type FlashError struct {
	Message string `json:"message"`
}
