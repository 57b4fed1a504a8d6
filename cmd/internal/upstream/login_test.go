package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"authgate/cmd/internal/auth"
)

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	c, err := New(Config{BaseURL: baseURL, Timeout: 2 * time.Second}, nil, testLogger())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

// fakeIdentityAPI mimics the dummyjson login and profile endpoints.
func fakeIdentityAPI(t *testing.T, loginBody string) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("login content-type=%q", ct)
		}
		var in struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			http.Error(w, `{"message":"bad json"}`, http.StatusBadRequest)
			return
		}
		if in.Username != "atuny0" || in.Password != "9uQFF1Lh" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"message":"Invalid credentials"}`)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, loginBody)
	})
	mux.HandleFunc("GET /auth/me", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.Header.Get("Authorization") != "Bearer T" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"message":"Invalid/Expired Token!"}`)
			return
		}
		_, _ = io.WriteString(w, `{"id":1,"username":"atuny0","email":"atuny0@sohu.com","firstName":"Terry"}`)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestLoginVerifier_Success(t *testing.T) {
	t.Parallel()

	srv := fakeIdentityAPI(t, `{"id":1,"username":"ignored","token":"T"}`)
	v := newTestClient(t, srv.URL).Verifier()

	u, err := v.Verify(context.Background(), auth.Credentials{Username: "atuny0", Password: "9uQFF1Lh"})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if u != (auth.User{ID: 1, Username: "atuny0", Token: "T"}) {
		t.Fatalf("unexpected user: %+v", u)
	}
}

func TestLoginVerifier_AccessTokenFallback(t *testing.T) {
	t.Parallel()

	srv := fakeIdentityAPI(t, `{"id":1,"accessToken":"A","refreshToken":"R"}`)
	v := newTestClient(t, srv.URL).Verifier()

	u, err := v.Verify(context.Background(), auth.Credentials{Username: "atuny0", Password: "9uQFF1Lh"})
	if err != nil || u.Token != "A" {
		t.Fatalf("expected accessToken fallback, u=%+v err=%v", u, err)
	}
}

func TestLoginVerifier_Rejected(t *testing.T) {
	t.Parallel()

	srv := fakeIdentityAPI(t, `{"id":1,"token":"T"}`)
	v := newTestClient(t, srv.URL).Verifier()

	_, err := v.Verify(context.Background(), auth.Credentials{Username: "atuny0", Password: "wrong"})
	if !errors.Is(err, auth.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if auth.Message(err) != auth.MessageInvalidLogin {
		t.Fatalf("message=%q", auth.Message(err))
	}
}

func TestLoginVerifier_BadBodies(t *testing.T) {
	t.Parallel()

	for _, body := range []string{`not json`, `{"id":1}`} {
		srv := fakeIdentityAPI(t, body)
		v := newTestClient(t, srv.URL).Verifier()

		_, err := v.Verify(context.Background(), auth.Credentials{Username: "atuny0", Password: "9uQFF1Lh"})
		if !errors.Is(err, auth.ErrInvalidCredentials) {
			t.Fatalf("body %q: expected ErrInvalidCredentials, got %v", body, err)
		}
	}
}

func TestLoginVerifier_Unreachable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	v := newTestClient(t, base).Verifier()
	_, err := v.Verify(context.Background(), auth.Credentials{Username: "atuny0", Password: "9uQFF1Lh"})
	if !errors.Is(err, auth.ErrUpstreamUnavailable) {
		t.Fatalf("expected ErrUpstreamUnavailable, got %v", err)
	}
	if auth.Message(err) != auth.MessageInvalidLogin {
		t.Fatalf("unavailable upstream must read as invalid login, got %q", auth.Message(err))
	}
}

func TestNew_Config(t *testing.T) {
	t.Parallel()

	c, err := New(Config{}, nil, nil)
	if err != nil {
		t.Fatalf("defaults: %v", err)
	}
	if got := c.URL("/auth/login"); got != DefaultBaseURL+"/auth/login" {
		t.Fatalf("URL=%q", got)
	}

	c, _ = New(Config{BaseURL: "http://127.0.0.1:9/api/"}, nil, nil)
	if got := c.URL("auth/me"); got != "http://127.0.0.1:9/api/auth/me" {
		t.Fatalf("URL=%q", got)
	}

	for _, bad := range []string{"ftp://x", "://", "localhost:8080"} {
		if _, err := New(Config{BaseURL: bad}, nil, nil); !errors.Is(err, ErrConfig) {
			t.Fatalf("BaseURL %q: expected ErrConfig, got %v", bad, err)
		}
	}
}
