package session

import (
	"net/http"
	"os"
	"strings"
	"time"
)

// Backend names accepted by AUTHGATE_SESSION_BACKEND.
const (
	BackendCookie    = "cookie"
	BackendMemory    = "memory"
	BackendPostgres  = "postgres"
	BackendRedis     = "redis"
	BackendMemcached = "memcached"
)

// Config selects a session backend and the cookie it is bound to.
type Config struct {
	Backend string
	Cookie  Cookie

	// KeyPrefix namespaces keys for the Redis and Memcached backends.
	KeyPrefix string

	// PurgeInterval is how often expired rows are swept for backends without native TTLs.
	PurgeInterval time.Duration
}

// DefaultConfig returns the cookie backend with the default "__session" cookie.
func DefaultConfig() Config {
	return Config{
		Backend:       BackendCookie,
		Cookie:        DefaultCookie(),
		KeyPrefix:     DefaultRedisPrefix,
		PurgeInterval: 5 * time.Minute,
	}
}

// LoadConfigFromEnv loads session configuration from environment variables.
//
// Optional:
//   - AUTHGATE_SESSION_BACKEND (cookie|memory|postgres|redis|memcached)
//   - AUTHGATE_SESSION_COOKIE_NAME
//   - AUTHGATE_SESSION_COOKIE_DOMAIN
//   - AUTHGATE_SESSION_COOKIE_SECURE (defaults to false when NODE_ENV=development)
//   - AUTHGATE_SESSION_COOKIE_SAMESITE (lax|strict|none)
//   - AUTHGATE_SESSION_MAX_AGE
//   - AUTHGATE_SESSION_SECRETS (comma separated, first one signs)
//   - AUTHGATE_SESSION_KEY_PREFIX
//   - AUTHGATE_SESSION_PURGE_INTERVAL
//
// Returns ErrConfig if configuration is invalid.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if strings.TrimSpace(os.Getenv("NODE_ENV")) == "development" {
		cfg.Cookie.Secure = false
	}

	if v := env("AUTHGATE_SESSION_BACKEND"); v != "" {
		switch v = strings.ToLower(v); v {
		case BackendCookie, BackendMemory, BackendPostgres, BackendRedis, BackendMemcached:
			cfg.Backend = v
		default:
			return Config{}, ErrConfig
		}
	}

	if v := env("AUTHGATE_SESSION_COOKIE_NAME"); v != "" {
		if strings.ContainsAny(v, " \t;,=\"") {
			return Config{}, ErrConfig
		}
		cfg.Cookie.Name = v
	}

	cfg.Cookie.Domain = env("AUTHGATE_SESSION_COOKIE_DOMAIN")

	if v := env("AUTHGATE_SESSION_COOKIE_SECURE"); v != "" {
		switch strings.ToLower(v) {
		case "1", "true", "yes":
			cfg.Cookie.Secure = true
		case "0", "false", "no":
			cfg.Cookie.Secure = false
		default:
			return Config{}, ErrConfig
		}
	}

	if v := env("AUTHGATE_SESSION_COOKIE_SAMESITE"); v != "" {
		ss, ok := ParseSameSite(v)
		if !ok {
			return Config{}, ErrConfig
		}
		cfg.Cookie.SameSite = ss
	}

	if v := env("AUTHGATE_SESSION_MAX_AGE"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < time.Second {
			return Config{}, ErrConfig
		}
		cfg.Cookie.MaxAge = d
	}

	if v := env("AUTHGATE_SESSION_SECRETS"); v != "" {
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				cfg.Cookie.Secrets = append(cfg.Cookie.Secrets, s)
			}
		}
	}

	if v := env("AUTHGATE_SESSION_KEY_PREFIX"); v != "" {
		cfg.KeyPrefix = v
	}

	if v := env("AUTHGATE_SESSION_PURGE_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.PurgeInterval = d
	}

	// Browsers reject SameSite=None without Secure.
	if cfg.Cookie.SameSite == http.SameSiteNoneMode && !cfg.Cookie.Secure {
		return Config{}, ErrConfig
	}

	return cfg, nil
}

func env(key string) string { return strings.TrimSpace(os.Getenv(key)) }
