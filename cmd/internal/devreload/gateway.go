package devreload

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/coder/websocket"

	"authgate/cmd/internal/build"
	"authgate/cmd/internal/ids"
)

// Path is where the gateway is mounted in development.
const Path = "/__authgate/livereload"

const (
	defaultSendQueueSize = 16
	defaultWriteTimeout  = 5 * time.Second

	heartbeatInterval = 25 * time.Second
	heartbeatTimeout  = 5 * time.Second
	maxPingFailures   = 3

	// Clients only send control frames.
	maxFrameBytes = 4 << 10
)

// DefaultAllowedOrigins covers a local dev server on any port.
var DefaultAllowedOrigins = []string{"http://localhost", "http://127.0.0.1"}

type GatewayConfig struct {
	AllowedOrigins   []string
	SendQueueSize    int
	WriteTimeout     time.Duration
	HeartbeatEvery   time.Duration
	HeartbeatTimeout time.Duration
}

func DefaultGatewayConfig() GatewayConfig {
	return GatewayConfig{
		AllowedOrigins:   DefaultAllowedOrigins,
		SendQueueSize:    defaultSendQueueSize,
		WriteTimeout:     defaultWriteTimeout,
		HeartbeatEvery:   heartbeatInterval,
		HeartbeatTimeout: heartbeatTimeout,
	}
}

// Gateway upgrades dev reload connections and streams hub messages to them.
type Gateway struct {
	log     *slog.Logger
	hub     *Hub
	current *build.Current
	cfg     GatewayConfig

	originPatterns []string
}

func NewGateway(cfg GatewayConfig, hub *Hub, current *build.Current, log *slog.Logger) *Gateway {
	if log == nil {
		log = slog.Default()
	}
	def := DefaultGatewayConfig()
	if cfg.SendQueueSize <= 0 {
		cfg.SendQueueSize = def.SendQueueSize
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.HeartbeatEvery <= 0 {
		cfg.HeartbeatEvery = def.HeartbeatEvery
	}
	if cfg.HeartbeatTimeout <= 0 {
		cfg.HeartbeatTimeout = def.HeartbeatTimeout
	}

	return &Gateway{
		log:            log,
		hub:            hub,
		current:        current,
		cfg:            cfg,
		originPatterns: originPatterns(cfg.AllowedOrigins),
	}
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := g.enforceOrigin(r); err != nil {
		g.log.Info("devreload.reject.origin", "err", err, "origin", r.Header.Get("Origin"), "remote", r.RemoteAddr)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: g.originPatterns})
	if err != nil {
		g.log.Error("devreload.accept.fail", "err", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()
	conn.SetReadLimit(maxFrameBytes)

	// CloseRead keeps control frames flowing and cancels ctx once the peer goes away.
	ctx := conn.CloseRead(r.Context())

	now := time.Now()
	id, err := ids.NewULID(now)
	if err != nil {
		g.log.Error("devreload.client.id.fail", "err", err)
		_ = conn.Close(websocket.StatusInternalError, "id")
		return
	}

	client := NewClient(id, g.cfg.SendQueueSize)
	g.hub.Join(client)
	defer g.hub.Leave(id)

	client.Send <- newMessage(TypeHello, g.current.Load().VersionString(), now)

	go g.heartbeat(ctx, conn, client)

	for {
		select {
		case <-ctx.Done():
			return
		case <-client.Done():
			return
		case msg := <-client.Send:
			if err := writeMessage(ctx, conn, msg, g.cfg.WriteTimeout); err != nil {
				g.log.Info("devreload.write.fail", "client_id", id, "close_status", websocket.CloseStatus(err), "err", err)
				return
			}
		}
	}
}

func (g *Gateway) heartbeat(ctx context.Context, conn *websocket.Conn, client *Client) {
	t := time.NewTicker(g.cfg.HeartbeatEvery)
	defer t.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-client.Done():
			return
		case <-t.C:
			pingCtx, cancel := context.WithTimeout(ctx, g.cfg.HeartbeatTimeout)
			err := conn.Ping(pingCtx)
			cancel()

			if err == nil {
				failures = 0
				continue
			}
			failures++
			g.log.Info("devreload.ping.fail", "client_id", client.ID, "failures", failures, "err", err)
			if failures >= maxPingFailures {
				client.Close()
				return
			}
		}
	}
}

func writeMessage(parent context.Context, conn *websocket.Conn, msg Message, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, b)
}

// enforceOrigin admits requests without an Origin header (non-browser tools)
// and browser origins whose host is on the allowlist.
func (g *Gateway) enforceOrigin(r *http.Request) error {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return nil
	}
	if len(g.cfg.AllowedOrigins) == 0 {
		return errors.New("origin not allowed (no allowlist)")
	}

	host := originHostOnly(origin)
	for _, a := range g.cfg.AllowedOrigins {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		if a == "*" || a == origin {
			return nil
		}
		if host != "" && host == originHostOnly(a) {
			return nil
		}
	}
	return fmt.Errorf("origin not allowed: %s", origin)
}

func originHostOnly(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return ""
		}
		s = u.Host
		if s == "" {
			return ""
		}
	}
	if host, _, err := net.SplitHostPort(s); err == nil {
		return strings.ToLower(host)
	}
	return strings.ToLower(s)
}

// originPatterns turns the allowlist into websocket.Accept host patterns,
// with and without a port so dev servers on any port are accepted.
func originPatterns(allowed []string) []string {
	seen := make(map[string]struct{}, len(allowed)*2)
	for _, a := range allowed {
		h := originHostOnly(a)
		if h == "" {
			continue
		}
		seen[h] = struct{}{}
		if h == "*" {
			continue
		}
		seen[h+":*"] = struct{}{}
	}

	out := make([]string, 0, len(seen))
	for h := range seen {
		out = append(out, h)
	}
	sort.Strings(out)
	return out
}
