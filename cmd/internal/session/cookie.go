package session

import (
	"net/http"
	"strings"
	"time"

	"authgate/cmd/security/token"
)

// maxCookieBytes is the size browsers reliably accept for one Set-Cookie value.
const maxCookieBytes = 4096

// Cookie describes the session cookie attributes and its signing secrets.
type Cookie struct {
	Name     string
	Path     string
	Domain   string
	MaxAge   time.Duration
	HTTPOnly bool
	Secure   bool
	SameSite http.SameSite

	// Secrets is a rotation list: the first entry signs, all entries verify.
	Secrets []string
}

// DefaultCookie returns the standard "__session" cookie (20 minute lifetime).
func DefaultCookie() Cookie {
	return Cookie{
		Name:     "__session",
		Path:     "/",
		MaxAge:   20 * time.Minute,
		HTTPOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	}
}

// Value extracts the raw cookie value from a Cookie request header.
func (c Cookie) Value(header string) (string, bool) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", false
	}
	r := http.Request{Header: http.Header{"Cookie": []string{header}}}
	hc, err := r.Cookie(c.Name)
	if err != nil {
		return "", false
	}
	v := strings.TrimSpace(hc.Value)
	if v == "" {
		return "", false
	}
	return v, true
}

// Serialize renders a Set-Cookie value that expires MaxAge after now.
func (c Cookie) Serialize(value string, now time.Time) string {
	hc := c.httpCookie(value)
	hc.MaxAge = int(c.MaxAge / time.Second)
	hc.Expires = now.Add(c.MaxAge).UTC()
	return hc.String()
}

// Expire renders a Set-Cookie value that removes the cookie.
func (c Cookie) Expire() string {
	hc := c.httpCookie("")
	hc.MaxAge = -1
	hc.Expires = time.Unix(0, 0).UTC()
	return hc.String()
}

// Sign signs value with the first secret. Without secrets the value is left unsigned.
func (c Cookie) Sign(value string) string {
	secrets := token.SecretBytes(c.Secrets)
	if len(secrets) == 0 {
		return value
	}
	return token.Sign(value, secrets[0])
}

// Unsign verifies value against every secret.
func (c Cookie) Unsign(value string) (string, bool) {
	secrets := token.SecretBytes(c.Secrets)
	if len(secrets) == 0 {
		return value, value != ""
	}
	v, err := token.Unsign(value, secrets)
	if err != nil {
		return "", false
	}
	return v, true
}

func (c Cookie) httpCookie(value string) *http.Cookie {
	return &http.Cookie{
		Name:     c.Name,
		Value:    value,
		Path:     c.Path,
		Domain:   c.Domain,
		HttpOnly: c.HTTPOnly,
		Secure:   c.Secure,
		SameSite: c.SameSite,
	}
}

// ParseSameSite maps "lax", "strict" and "none" to http.SameSite.
func ParseSameSite(s string) (http.SameSite, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "lax":
		return http.SameSiteLaxMode, true
	case "strict":
		return http.SameSiteStrictMode, true
	case "none":
		return http.SameSiteNoneMode, true
	default:
		return http.SameSiteDefaultMode, false
	}
}
