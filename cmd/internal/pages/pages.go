// Package pages is the route glue between the authenticator, the upstream
// API and the active build's templates.
package pages

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"authgate/cmd/internal/auth"
	"authgate/cmd/internal/build"
	"authgate/cmd/internal/ratelimit"
	"authgate/cmd/internal/upstream"
)

const (
	LoginPath  = "/login"
	LogoutPath = "/logout"
	HomePath   = "/"

	templateLogin = "login"
	templateIndex = "index"
)

// Deps are the collaborators every page handler shares across builds.
type Deps struct {
	Auth     *auth.Authenticator
	Injector *upstream.Injector
	Upstream *upstream.Client
	Log      *slog.Logger

	// LoginLimiter throttles POST /login per client address; nil disables it.
	LoginLimiter *ratelimit.Limiter

	// DevReloadPath is exposed to templates; empty outside development.
	DevReloadPath string
}

type Pages struct {
	deps Deps
	log  *slog.Logger
}

func New(deps Deps) *Pages {
	log := deps.Log
	if log == nil {
		log = slog.Default()
	}
	return &Pages{deps: deps, log: log}
}

// LoginData is passed to the login template.
type LoginData struct {
	Error         string
	BuildVersion  string
	DevReloadPath string
}

// IndexData is passed to the index template.
type IndexData struct {
	User          auth.User
	Profile       upstream.Profile
	BuildVersion  string
	DevReloadPath string
}

// Handler builds the page routes for b. It matches build.HandlerFactory.
func (p *Pages) Handler(b *build.Build) (http.Handler, error) {
	if b == nil || b.Templates == nil {
		return nil, errors.New("pages: no build")
	}
	for _, name := range []string{templateLogin, templateIndex} {
		if b.Templates.Lookup(name) == nil {
			return nil, fmt.Errorf("pages: build %s has no %q template", b.VersionString(), name)
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET "+LoginPath, p.loginPage(b))
	mux.HandleFunc("POST "+LoginPath, p.login)
	mux.HandleFunc("POST "+LogoutPath, p.logout)
	mux.HandleFunc("GET /{$}", p.index(b))
	return mux, nil
}

func (p *Pages) loginPage(b *build.Build) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, _, err := p.deps.Auth.IsAuthenticated(r, auth.Options{SuccessRedirect: HomePath}); err != nil {
			p.fail(w, r, err)
			return
		}

		msg, setCookie, err := p.deps.Auth.ConsumeError(r)
		if err != nil {
			p.fail(w, r, err)
			return
		}

		p.render(w, r, b, templateLogin, setCookie, LoginData{
			Error:         msg,
			BuildVersion:  b.VersionString(),
			DevReloadPath: p.deps.DevReloadPath,
		})
	}
}

func (p *Pages) login(w http.ResponseWriter, r *http.Request) {
	if l := p.deps.LoginLimiter; l != nil {
		key := ratelimit.ClientKey(r)
		if ok, retry := l.Allow(key, time.Now()); !ok {
			p.log.WarnContext(r.Context(), "pages.login.limited", "client", key, "retry_after", retry.String())
			ratelimit.WriteLimited(w, retry)
			return
		}
	}

	err := p.deps.Auth.Authenticate(r, auth.StrategyForm, auth.Options{
		SuccessRedirect: HomePath,
		FailureRedirect: LoginPath,
	})
	p.fail(w, r, err)
}

func (p *Pages) logout(w http.ResponseWriter, r *http.Request) {
	p.fail(w, r, p.deps.Auth.Logout(r, LoginPath))
}

func (p *Pages) index(b *build.Build) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, _, err := p.deps.Auth.IsAuthenticated(r, auth.Options{FailureRedirect: LoginPath})
		if err != nil {
			p.fail(w, r, err)
			return
		}

		profile, err := p.deps.Upstream.Me(r.Context(), p.deps.Injector.For(r))
		if err != nil {
			p.fail(w, r, err)
			return
		}

		p.render(w, r, b, templateIndex, "", IndexData{
			User:          user,
			Profile:       profile,
			BuildVersion:  b.VersionString(),
			DevReloadPath: p.deps.DevReloadPath,
		})
	}
}

func (p *Pages) render(w http.ResponseWriter, r *http.Request, b *build.Build, name, setCookie string, data any) {
	var buf bytes.Buffer
	if err := b.Render(&buf, name, data); err != nil {
		p.log.ErrorContext(r.Context(), "pages.render.fail", "template", name, "version", b.VersionString(), "err", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	h := w.Header()
	if setCookie != "" {
		h.Add("Set-Cookie", setCookie)
	}
	h.Set("Content-Type", "text/html; charset=utf-8")
	h.Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

// fail turns a handler outcome into a response. A nil err writes nothing.
func (p *Pages) fail(w http.ResponseWriter, r *http.Request, err error) {
	if err == nil {
		return
	}
	if rd, ok := auth.AsRedirect(err); ok {
		rd.Write(w, r)
		return
	}

	var apiErr *upstream.APIError
	if errors.As(err, &apiErr) {
		p.log.InfoContext(r.Context(), "pages.upstream.error", "path", r.URL.Path, "status", apiErr.Status)
		apiErr.WriteTo(w)
		return
	}

	p.log.ErrorContext(r.Context(), "pages.request.fail", "path", r.URL.Path, "err", err)
	http.Error(w, "internal server error", http.StatusInternalServerError)
}
