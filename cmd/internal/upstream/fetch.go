package upstream

import (
	"log/slog"
	"net/http"

	"authgate/cmd/internal/auth"
	"authgate/cmd/internal/metrics"
)

// FetchFunc performs one outbound request.
type FetchFunc func(*http.Request) (*http.Response, error)

// Doer is the subset of *http.Client the Injector needs.
type Doer interface {
	Do(*http.Request) (*http.Response, error)
}

// Fetch branches, also used as metric labels.
const (
	BranchCallerAuth = "caller_auth"
	BranchNoSession  = "no_session"
	BranchNoToken    = "no_token"
	BranchInjected   = "injected"
)

// Injector builds per-request fetch functions that carry the session's bearer token.
type Injector struct {
	auth    *auth.Authenticator
	doer    Doer
	log     *slog.Logger
	metrics *metrics.Metrics
}

// NewInjector reads sessions through a and performs calls with doer.
func NewInjector(a *auth.Authenticator, doer Doer, log *slog.Logger, m *metrics.Metrics) *Injector {
	if log == nil {
		log = slog.Default()
	}
	return &Injector{auth: a, doer: doer, log: log, metrics: m}
}

// For returns the FetchFunc bound to the incoming request.
//
// Each call walks the decision sequence afresh, nothing is cached:
//  1. the incoming or the outbound request already carries Authorization: unmodified
//  2. no readable session: unmodified
//  3. no user or empty token: unmodified
//  4. otherwise a clone of the outbound request gets "Authorization: Bearer <token>"
//
// The caller's outbound request is never mutated.
func (in *Injector) For(incoming *http.Request) FetchFunc {
	return func(out *http.Request) (*http.Response, error) {
		branch, token := in.decide(incoming, out)

		req := out
		if branch == BranchInjected {
			req = out.Clone(out.Context())
			req.Header.Set("Authorization", "Bearer "+token)
		}

		resp, err := in.doer.Do(req)
		in.metrics.UpstreamCall(branch, err)
		if err != nil {
			in.log.WarnContext(out.Context(), "upstream.fetch.fail", "branch", branch, "url", out.URL.Redacted(), "err", err)
		} else {
			in.log.DebugContext(out.Context(), "upstream.fetch", "branch", branch, "url", out.URL.Redacted(), "status", resp.StatusCode)
		}
		return resp, err
	}
}

func (in *Injector) decide(incoming, out *http.Request) (branch, token string) {
	if incoming.Header.Get("Authorization") != "" || out.Header.Get("Authorization") != "" {
		return BranchCallerAuth, ""
	}

	cookie := incoming.Header.Get("Cookie")
	if cookie == "" {
		return BranchNoSession, ""
	}
	sess, err := in.auth.Store().Get(incoming.Context(), cookie)
	if err != nil || sess == nil {
		if err != nil {
			in.log.WarnContext(incoming.Context(), "upstream.fetch.session_unreadable", "err", err)
		}
		return BranchNoSession, ""
	}

	user, ok := in.auth.UserFromSession(incoming.Context(), sess)
	if !ok || user.Token == "" {
		return BranchNoToken, ""
	}
	return BranchInjected, user.Token
}
