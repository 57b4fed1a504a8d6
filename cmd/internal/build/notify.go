package build

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Notifier is told when a new build becomes active.
type Notifier interface {
	BuildReady(ctx context.Context, b *Build) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, b *Build) error

func (f NotifierFunc) BuildReady(ctx context.Context, b *Build) error { return f(ctx, b) }

// Notifiers fans a notification out to every member and joins their errors.
type Notifiers []Notifier

func (ns Notifiers) BuildReady(ctx context.Context, b *Build) error {
	var errs []error
	for _, n := range ns {
		if n == nil {
			continue
		}
		if err := n.BuildReady(ctx, b); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PingNotifier announces builds to an external dev server at {origin}/ping.
type PingNotifier struct {
	origin string
	client *http.Client
}

// NewPingNotifier returns nil when origin is empty.
func NewPingNotifier(origin string, client *http.Client) *PingNotifier {
	origin = strings.TrimRight(strings.TrimSpace(origin), "/")
	if origin == "" {
		return nil
	}
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &PingNotifier{origin: origin, client: client}
}

type pingBody struct {
	BuildHash string `json:"buildHash"`
}

func (p *PingNotifier) BuildReady(ctx context.Context, b *Build) error {
	if p == nil {
		return nil
	}

	body, err := json.Marshal(pingBody{BuildHash: b.VersionString()})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.origin+"/ping", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("dev ping: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("dev ping: unexpected status %d", resp.StatusCode)
	}
	return nil
}
