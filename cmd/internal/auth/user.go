package auth

import (
	"context"
	"strings"
)

// User is the identity stored in the session after a successful login.
// Token is the upstream bearer token, trusted verbatim.
type User struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	Token    string `json:"token"`
}

// Credentials are the submitted login fields. They are never stored or logged.
type Credentials struct {
	Username string
	Password string
}

// Blank reports whether either field is empty after trimming.
func (c Credentials) Blank() bool {
	return strings.TrimSpace(c.Username) == "" || c.Password == ""
}

// Verifier exchanges credentials for a User.
//
// Implementations return an error wrapping ErrInvalidCredentials when the
// upstream rejects the credentials and ErrUpstreamUnavailable when it cannot
// be reached.
type Verifier interface {
	Verify(ctx context.Context, c Credentials) (User, error)
}

// VerifierFunc adapts a function to Verifier.
type VerifierFunc func(ctx context.Context, c Credentials) (User, error)

func (f VerifierFunc) Verify(ctx context.Context, c Credentials) (User, error) { return f(ctx, c) }
