package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"authgate/cmd/internal/auth"
)

const maxLoginResponseBytes = 1 << 20

// LoginVerifier implements auth.Verifier with POST {base}/auth/login.
type LoginVerifier struct {
	client *Client
}

var _ auth.Verifier = (*LoginVerifier)(nil)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	ID          int    `json:"id"`
	Token       string `json:"token"`
	AccessToken string `json:"accessToken"`
}

// Verify exchanges credentials for a User.
//
// A non-2xx answer maps to auth.ErrInvalidCredentials and a transport failure
// to auth.ErrUpstreamUnavailable. The returned username is the submitted one.
func (v *LoginVerifier) Verify(ctx context.Context, c auth.Credentials) (auth.User, error) {
	body, err := json.Marshal(loginRequest{Username: c.Username, Password: c.Password})
	if err != nil {
		return auth.User{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.client.URL(v.client.cfg.LoginPath), bytes.NewReader(body))
	if err != nil {
		return auth.User{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := v.client.http.Do(req)
	if err != nil {
		v.client.log.WarnContext(ctx, "upstream.login.unavailable", "err", err)
		return auth.User{}, fmt.Errorf("%w: %v", auth.ErrUpstreamUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxLoginResponseBytes))
		v.client.log.InfoContext(ctx, "upstream.login.rejected", "status", resp.StatusCode)
		return auth.User{}, fmt.Errorf("%w: upstream status %d", auth.ErrInvalidCredentials, resp.StatusCode)
	}

	var out loginResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxLoginResponseBytes)).Decode(&out); err != nil {
		v.client.log.WarnContext(ctx, "upstream.login.bad_body", "err", err)
		return auth.User{}, fmt.Errorf("%w: undecodable login response", auth.ErrInvalidCredentials)
	}

	tok := out.Token
	if tok == "" {
		tok = out.AccessToken
	}
	if tok == "" {
		return auth.User{}, fmt.Errorf("%w: login response without token", auth.ErrInvalidCredentials)
	}

	return auth.User{ID: out.ID, Username: c.Username, Token: tok}, nil
}
