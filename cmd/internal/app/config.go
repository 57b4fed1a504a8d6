package app

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"authgate/cmd/internal/devreload"
	"authgate/cmd/internal/ratelimit"
	"authgate/cmd/internal/session"
	"authgate/cmd/internal/upstream"
)

// ErrConfig is returned when environment configuration is invalid.
var ErrConfig = errors.New("invalid configuration")

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	// Env is NODE_ENV. "development" enables hot swap, dev reload and pretty logs.
	Env string

	HTTPAddr  string
	LogLevel  string
	LogFormat string
	LogColor  bool

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	Upstream upstream.Config
	Session  session.Config

	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32

	RedisURL         string
	MemcachedServers []string

	BuildPath   string
	VersionPath string

	// DevOrigin receives {"buildHash"} pings when a build becomes ready.
	DevOrigin         string
	DevAllowedOrigins []string

	RejectExpiredTokens bool
	MetricsEnabled      bool

	// LoginRateLimit attempts per client address per LoginRateWindow; 0 disables throttling.
	LoginRateLimit  int
	LoginRateWindow time.Duration
}

// Dev reports whether the process runs in development mode.
func (c Config) Dev() bool { return c.Env == EnvDevelopment }

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() (Config, error) {
	env := strings.ToLower(EnvString("NODE_ENV", EnvProduction))
	dev := env == EnvDevelopment

	defaultFormat := "json"
	if dev {
		defaultFormat = "pretty"
	}

	cfg := Config{
		Env: env,

		HTTPAddr:  EnvString("AUTHGATE_HTTP_ADDR", listenAddr(EnvString("PORT", "3000"))),
		LogLevel:  EnvString("AUTHGATE_LOG_LEVEL", "info"),
		LogFormat: strings.ToLower(EnvString("AUTHGATE_LOG_FORMAT", defaultFormat)),
		LogColor:  EnvBool("AUTHGATE_LOG_COLOR", dev),

		ReadHeaderTimeout: EnvDuration("AUTHGATE_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("AUTHGATE_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("AUTHGATE_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("AUTHGATE_HTTP_IDLE_TIMEOUT", 60*time.Second),

		MaxHeaderBytes: EnvInt("AUTHGATE_HTTP_MAX_HEADER_BYTES", 1<<20),

		Upstream: upstream.Config{
			BaseURL: EnvString("AUTHGATE_UPSTREAM_URL", upstream.DefaultBaseURL),
			Timeout: EnvDuration("AUTHGATE_UPSTREAM_TIMEOUT", upstream.DefaultConfig().Timeout),
		},

		DatabaseURL: EnvString("AUTHGATE_DATABASE_URL", ""),
		DBMaxConns:  EnvInt32("AUTHGATE_DB_MAX_CONNS", 10),
		DBMinConns:  EnvInt32("AUTHGATE_DB_MIN_CONNS", 0),

		RedisURL:         EnvString("AUTHGATE_REDIS_URL", ""),
		MemcachedServers: EnvCSV("AUTHGATE_MEMCACHED_SERVERS", ""),

		BuildPath:   EnvString("AUTHGATE_BUILD_PATH", "build/index.tmpl"),
		VersionPath: EnvString("AUTHGATE_VERSION_PATH", "build/version.txt"),

		DevOrigin:         EnvString("AUTHGATE_DEV_ORIGIN", ""),
		DevAllowedOrigins: EnvCSV("AUTHGATE_DEV_ALLOWED_ORIGINS", strings.Join(devreload.DefaultAllowedOrigins, ",")),

		RejectExpiredTokens: EnvBool("AUTHGATE_REJECT_EXPIRED_TOKENS", false),
		MetricsEnabled:      EnvBool("AUTHGATE_METRICS_ENABLED", true),

		LoginRateLimit:  EnvInt("AUTHGATE_LOGIN_RATE_LIMIT", ratelimit.DefaultLimit),
		LoginRateWindow: EnvDuration("AUTHGATE_LOGIN_RATE_WINDOW", ratelimit.DefaultWindow),
	}
	if EnvBool("AUTHGATE_LOGIN_RATE_DISABLED", false) {
		cfg.LoginRateLimit = 0
	}

	switch cfg.LogFormat {
	case "json", "pretty":
	default:
		return Config{}, fmt.Errorf("%w: AUTHGATE_LOG_FORMAT=%q", ErrConfig, cfg.LogFormat)
	}

	sess, err := session.LoadConfigFromEnv()
	if err != nil {
		return Config{}, fmt.Errorf("session: %w", err)
	}
	cfg.Session = sess

	if err := cfg.validateBackend(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validateBackend() error {
	switch c.Session.Backend {
	case session.BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("%w: postgres session backend requires AUTHGATE_DATABASE_URL", ErrConfig)
		}
	case session.BackendRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("%w: redis session backend requires AUTHGATE_REDIS_URL", ErrConfig)
		}
	case session.BackendMemcached:
		if len(c.MemcachedServers) == 0 {
			return fmt.Errorf("%w: memcached session backend requires AUTHGATE_MEMCACHED_SERVERS", ErrConfig)
		}
	}
	return nil
}

// listenAddr turns a bare PORT into a listen address.
func listenAddr(port string) string {
	if _, _, err := net.SplitHostPort(port); err == nil {
		return port
	}
	return net.JoinHostPort("0.0.0.0", port)
}
