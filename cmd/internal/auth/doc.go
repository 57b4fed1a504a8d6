// Package auth gates requests on a session-held identity.
//
// An Authenticator owns a registry of named credential Verifiers and a
// session.Store. Authenticate runs a verifier against submitted credentials
// and records the outcome in the session: the User on success, a flashed
// error message on failure. Either way the session is committed exactly once
// and the caller gets a *Redirect carrying the Set-Cookie header.
//
// IsAuthenticated only reads the session. Redirect outcomes are returned as
// *Redirect errors so handlers can stop with a single errors.As check.
package auth
