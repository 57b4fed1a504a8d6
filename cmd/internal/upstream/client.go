package upstream

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultBaseURL is the public demo identity API.
const DefaultBaseURL = "https://dummyjson.com"

// ErrConfig is returned for an invalid upstream configuration.
var ErrConfig = errors.New("invalid upstream config")

// Config locates the identity API.
type Config struct {
	BaseURL string
	Timeout time.Duration

	LoginPath string
	MePath    string
}

// DefaultConfig targets DefaultBaseURL.
func DefaultConfig() Config {
	return Config{
		BaseURL:   DefaultBaseURL,
		Timeout:   10 * time.Second,
		LoginPath: "/auth/login",
		MePath:    "/auth/me",
	}
}

// Client builds upstream URLs and owns the outbound http.Client.
type Client struct {
	base *url.URL
	cfg  Config
	http *http.Client
	log  *slog.Logger
}

// New validates cfg. A nil httpClient gets one with cfg.Timeout.
func New(cfg Config, httpClient *http.Client, log *slog.Logger) (*Client, error) {
	def := DefaultConfig()
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.LoginPath == "" {
		cfg.LoginPath = def.LoginPath
	}
	if cfg.MePath == "" {
		cfg.MePath = def.MePath
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}

	u, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: base url %q", ErrConfig, cfg.BaseURL)
	}

	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Client{base: u, cfg: cfg, http: httpClient, log: log}, nil
}

// URL joins path onto the base URL.
func (c *Client) URL(path string) string {
	return c.base.String() + "/" + strings.TrimLeft(path, "/")
}

// HTTP returns the outbound client used for direct and injected calls.
func (c *Client) HTTP() *http.Client { return c.http }

// Verifier returns the login strategy bound to this client.
func (c *Client) Verifier() *LoginVerifier {
	return &LoginVerifier{client: c}
}
