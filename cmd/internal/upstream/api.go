package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const maxAPIResponseBytes = 1 << 20

// APIError is a non-2xx upstream response kept verbatim.
type APIError struct {
	Status int
	Header http.Header
	Body   []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("upstream api: status %d", e.Status)
}

// WriteTo relays the upstream response to w unchanged.
func (e *APIError) WriteTo(w http.ResponseWriter) {
	if ct := e.Header.Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.WriteHeader(e.Status)
	_, _ = w.Write(e.Body)
}

// Profile is the upstream view of the signed-in user.
type Profile struct {
	ID        int    `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Image     string `json:"image"`
}

// Me fetches GET {base}/auth/me through fetch.
func (c *Client) Me(ctx context.Context, fetch FetchFunc) (Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL(c.cfg.MePath), nil)
	if err != nil {
		return Profile{}, err
	}
	req.Header.Set("Accept", "application/json")

	var p Profile
	if err := c.do(fetch, req, &p); err != nil {
		return Profile{}, err
	}
	return p, nil
}

// do performs req and decodes a 2xx JSON body into dst.
// Non-2xx answers come back as *APIError.
func (c *Client) do(fetch FetchFunc, req *http.Request, dst any) error {
	resp, err := fetch(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxAPIResponseBytes))
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{Status: resp.StatusCode, Header: resp.Header.Clone(), Body: body}
	}
	if dst == nil {
		return nil
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("upstream api: decode %s: %w", req.URL.Path, err)
	}
	return nil
}
