package session

import (
	"errors"
	"net/http"
	"testing"
	"time"
)

func TestLoadConfigFromEnv_Defaults(t *testing.T) {
	t.Setenv("NODE_ENV", "")
	t.Setenv("AUTHGATE_SESSION_BACKEND", "")
	t.Setenv("AUTHGATE_SESSION_SECRETS", "")

	cfg, err := LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Backend != BackendCookie {
		t.Fatalf("backend=%q want cookie", cfg.Backend)
	}
	c := cfg.Cookie
	if c.Name != "__session" || c.Path != "/" || c.MaxAge != 20*time.Minute {
		t.Fatalf("unexpected cookie defaults: %+v", c)
	}
	if !c.HTTPOnly || !c.Secure || c.SameSite != http.SameSiteLaxMode {
		t.Fatalf("unexpected cookie flags: %+v", c)
	}
}

func TestLoadConfigFromEnv_DevelopmentRelaxesSecure(t *testing.T) {
	t.Setenv("NODE_ENV", "development")
	t.Setenv("AUTHGATE_SESSION_COOKIE_SECURE", "")

	cfg, err := LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Cookie.Secure {
		t.Fatalf("development cookies must not require TLS")
	}
}

func TestLoadConfigFromEnv_Overrides(t *testing.T) {
	t.Setenv("NODE_ENV", "production")
	t.Setenv("AUTHGATE_SESSION_BACKEND", "Redis")
	t.Setenv("AUTHGATE_SESSION_COOKIE_NAME", "sid")
	t.Setenv("AUTHGATE_SESSION_COOKIE_SAMESITE", "strict")
	t.Setenv("AUTHGATE_SESSION_MAX_AGE", "1h")
	t.Setenv("AUTHGATE_SESSION_SECRETS", "new, old ,")
	t.Setenv("AUTHGATE_SESSION_KEY_PREFIX", "app:")
	t.Setenv("AUTHGATE_SESSION_PURGE_INTERVAL", "30s")

	cfg, err := LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Backend != BackendRedis || cfg.Cookie.Name != "sid" || cfg.Cookie.SameSite != http.SameSiteStrictMode {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.Cookie.MaxAge != time.Hour || cfg.KeyPrefix != "app:" || cfg.PurgeInterval != 30*time.Second {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if len(cfg.Cookie.Secrets) != 2 || cfg.Cookie.Secrets[0] != "new" || cfg.Cookie.Secrets[1] != "old" {
		t.Fatalf("secrets=%q", cfg.Cookie.Secrets)
	}
}

func TestLoadConfigFromEnv_Invalid(t *testing.T) {
	cases := []struct {
		key, val string
	}{
		{key: "AUTHGATE_SESSION_BACKEND", val: "etcd"},
		{key: "AUTHGATE_SESSION_COOKIE_NAME", val: "bad name"},
		{key: "AUTHGATE_SESSION_COOKIE_SECURE", val: "maybe"},
		{key: "AUTHGATE_SESSION_COOKIE_SAMESITE", val: "sometimes"},
		{key: "AUTHGATE_SESSION_MAX_AGE", val: "-5m"},
		{key: "AUTHGATE_SESSION_MAX_AGE", val: "10ms"},
		{key: "AUTHGATE_SESSION_PURGE_INTERVAL", val: "soon"},
	}

	for _, tc := range cases {
		t.Run(tc.key+"="+tc.val, func(t *testing.T) {
			t.Setenv(tc.key, tc.val)
			if _, err := LoadConfigFromEnv(); !errors.Is(err, ErrConfig) {
				t.Fatalf("expected ErrConfig, got %v", err)
			}
		})
	}
}

func TestLoadConfigFromEnv_SameSiteNoneRequiresSecure(t *testing.T) {
	t.Setenv("AUTHGATE_SESSION_COOKIE_SAMESITE", "none")
	t.Setenv("AUTHGATE_SESSION_COOKIE_SECURE", "false")

	if _, err := LoadConfigFromEnv(); !errors.Is(err, ErrConfig) {
		t.Fatalf("expected ErrConfig, got %v", err)
	}
}
