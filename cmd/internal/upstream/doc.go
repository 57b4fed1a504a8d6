// Package upstream talks to the identity API behind authgate.
//
// LoginVerifier is the "form" strategy: it exchanges a username and password
// for a bearer token. Injector hands page handlers a per-request FetchFunc
// that adds the session's bearer token to outbound calls unless the caller
// already supplied credentials.
package upstream
