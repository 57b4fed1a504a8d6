package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"authgate/cmd/internal/metrics"
	"authgate/cmd/internal/session"
)

const (
	// DefaultSessionKey is where the User lives in the session.
	DefaultSessionKey = "user"

	// DefaultSessionErrorKey is where a failed login flashes its FlashError.
	DefaultSessionErrorKey = "auth:error"

	// StrategyForm is the name the login form strategy is registered under.
	StrategyForm = "form"

	maxFormBytes = 64 << 10
)

// Options carries the redirect targets of an auth call.
// An empty target means "no redirect" for IsAuthenticated.
type Options struct {
	SuccessRedirect string
	FailureRedirect string
}

// Authenticator verifies credentials and keeps the outcome in the session.
// Strategies are registered with Use before the server starts serving.
type Authenticator struct {
	store     session.Store
	verifiers map[string]Verifier

	sessionKey      string
	sessionErrorKey string
	rejectExpired   bool

	log     *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// Option configures an Authenticator.
type Option func(*Authenticator)

// WithSessionKeys overrides the user and error session keys.
func WithSessionKeys(userKey, errorKey string) Option {
	return func(a *Authenticator) {
		if userKey != "" {
			a.sessionKey = userKey
		}
		if errorKey != "" {
			a.sessionErrorKey = errorKey
		}
	}
}

// WithExpiredTokenRejection makes IsAuthenticated ignore users whose bearer
// token is a JWT past its exp claim.
func WithExpiredTokenRejection(enabled bool) Option {
	return func(a *Authenticator) { a.rejectExpired = enabled }
}

func WithLogger(log *slog.Logger) Option {
	return func(a *Authenticator) {
		if log != nil {
			a.log = log
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Authenticator) { a.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(a *Authenticator) {
		if now != nil {
			a.now = now
		}
	}
}

// New constructs an Authenticator over store.
func New(store session.Store, opts ...Option) *Authenticator {
	a := &Authenticator{
		store:           store,
		verifiers:       make(map[string]Verifier),
		sessionKey:      DefaultSessionKey,
		sessionErrorKey: DefaultSessionErrorKey,
		log:             slog.Default(),
		now:             time.Now,
	}
	for _, fn := range opts {
		fn(a)
	}
	return a
}

// Use registers v under name, replacing any previous registration.
func (a *Authenticator) Use(name string, v Verifier) *Authenticator {
	a.verifiers[name] = v
	return a
}

// SessionKey returns the session key holding the User.
func (a *Authenticator) SessionKey() string { return a.sessionKey }

// SessionErrorKey returns the session key holding the flashed FlashError.
func (a *Authenticator) SessionErrorKey() string { return a.sessionErrorKey }

// Store returns the session store the Authenticator commits to.
func (a *Authenticator) Store() session.Store { return a.store }

// IsAuthenticated reports the User held by the request's session.
//
// With a SuccessRedirect, a present user yields a *Redirect error; with a
// FailureRedirect, an absent user does. The session is never committed.
func (a *Authenticator) IsAuthenticated(r *http.Request, opts Options) (User, bool, error) {
	sess, err := a.store.Get(r.Context(), r.Header.Get("Cookie"))
	if err != nil {
		return User{}, false, fmt.Errorf("auth: load session: %w", err)
	}

	user, ok := a.userFrom(r.Context(), sess)
	if ok {
		if opts.SuccessRedirect != "" {
			return user, true, newRedirect(opts.SuccessRedirect, "")
		}
		return user, true, nil
	}

	if opts.FailureRedirect != "" {
		return User{}, false, newRedirect(opts.FailureRedirect, "")
	}
	return User{}, false, nil
}

// UserFromSession returns the User stored in sess, if any.
func (a *Authenticator) UserFromSession(ctx context.Context, sess *session.Session) (User, bool) {
	return a.userFrom(ctx, sess)
}

func (a *Authenticator) userFrom(ctx context.Context, sess *session.Session) (User, bool) {
	var u User
	ok, err := sess.Get(a.sessionKey, &u)
	if err != nil {
		a.log.WarnContext(ctx, "auth.session.user.decode_fail", "err", err)
		return User{}, false
	}
	if !ok {
		return User{}, false
	}
	if a.rejectExpired && TokenExpired(u.Token, a.now()) {
		a.log.InfoContext(ctx, "auth.session.token_expired", "user_id", u.ID)
		return User{}, false
	}
	return u, true
}

// Authenticate runs the named strategy against the submitted form.
//
// Verification outcomes are never returned as plain errors: success and
// failure both commit the session once and return a *Redirect. Plain errors
// mean a programming or backend fault (unknown strategy, missing redirects,
// store failure).
func (a *Authenticator) Authenticate(r *http.Request, strategy string, opts Options) error {
	if opts.SuccessRedirect == "" || opts.FailureRedirect == "" {
		return ErrRedirectRequired
	}
	v, ok := a.verifiers[strategy]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownStrategy, strategy)
	}

	ctx := r.Context()
	sess, err := a.store.Get(ctx, r.Header.Get("Cookie"))
	if err != nil {
		return fmt.Errorf("auth: load session: %w", err)
	}

	creds := credentialsFromForm(r)

	var user User
	var verr error
	if creds.Blank() {
		verr = ErrInvalidCredentials
	} else {
		user, verr = v.Verify(ctx, creds)
	}

	if verr != nil {
		verr = &VerifyError{Strategy: strategy, Err: verr}
		a.metrics.AuthAttempt(strategy, failureResult(verr))
		a.log.InfoContext(ctx, "auth.login.fail", "strategy", strategy, "reason", failureResult(verr))

		sess.Unset(a.sessionKey)
		if err := sess.Flash(a.sessionErrorKey, FlashError{Message: Message(verr)}); err != nil {
			return err
		}
		setCookie, err := a.store.Commit(ctx, sess)
		if err != nil {
			return fmt.Errorf("auth: commit session: %w", err)
		}
		return newRedirect(opts.FailureRedirect, setCookie)
	}

	a.metrics.AuthAttempt(strategy, "success")
	a.log.InfoContext(ctx, "auth.login.ok", "strategy", strategy, "user_id", user.ID)

	// A login never keeps the pre-login server-side id.
	if rg, ok := a.store.(session.Regenerator); ok {
		if err := rg.Regenerate(ctx, sess); err != nil {
			return fmt.Errorf("auth: regenerate session: %w", err)
		}
	}
	if err := sess.Set(a.sessionKey, user); err != nil {
		return err
	}
	sess.Unset(a.sessionErrorKey)
	setCookie, err := a.store.Commit(ctx, sess)
	if err != nil {
		return fmt.Errorf("auth: commit session: %w", err)
	}
	return newRedirect(opts.SuccessRedirect, setCookie)
}

// ConsumeError reads the flashed login error and commits the session so the
// flash is gone on the next request. The returned Set-Cookie must be sent; it
// is empty when the session holds nothing.
func (a *Authenticator) ConsumeError(r *http.Request) (message, setCookie string, err error) {
	ctx := r.Context()
	sess, err := a.store.Get(ctx, r.Header.Get("Cookie"))
	if err != nil {
		return "", "", fmt.Errorf("auth: load session: %w", err)
	}

	var fe FlashError
	found, err := sess.Get(a.sessionErrorKey, &fe)
	if err != nil {
		a.log.WarnContext(ctx, "auth.session.error.decode_fail", "err", err)
	}

	// Nothing was flashed and nothing is stored: committing would only mint
	// an empty server-side record for an anonymous visitor.
	if !found && sess.ID() == "" && sess.Len() == 0 {
		return "", "", nil
	}

	setCookie, err = a.store.Commit(ctx, sess)
	if err != nil {
		return "", "", fmt.Errorf("auth: commit session: %w", err)
	}
	return fe.Message, setCookie, nil
}

// Logout destroys the session and returns a *Redirect to redirectTo carrying
// the expiring cookie.
func (a *Authenticator) Logout(r *http.Request, redirectTo string) error {
	ctx := r.Context()
	sess, err := a.store.Get(ctx, r.Header.Get("Cookie"))
	if err != nil {
		return fmt.Errorf("auth: load session: %w", err)
	}
	setCookie, err := a.store.Destroy(ctx, sess)
	if err != nil {
		return fmt.Errorf("auth: destroy session: %w", err)
	}
	a.log.InfoContext(ctx, "auth.logout")
	return newRedirect(redirectTo, setCookie)
}

func credentialsFromForm(r *http.Request) Credentials {
	if r.Body != nil {
		r.Body = http.MaxBytesReader(nil, r.Body, maxFormBytes)
	}
	var err error
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		err = r.ParseMultipartForm(maxFormBytes)
	} else {
		err = r.ParseForm()
	}
	if err != nil {
		return Credentials{}
	}
	return Credentials{
		Username: r.PostForm.Get("username"),
		Password: r.PostForm.Get("password"),
	}
}

func failureResult(err error) string {
	if errors.Is(err, ErrUpstreamUnavailable) {
		return "upstream_unavailable"
	}
	return "invalid_credentials"
}
