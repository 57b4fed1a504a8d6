package session

import (
	"context"
	"encoding/json"
	"fmt"

	paseto "aidanwoods.dev/go-paseto"

	"authgate/cmd/security/token"
)

const cookieKeyPurpose = "authgate session cookie v4.local"

// CookieStore keeps the whole session in the cookie as a PASETO v4.local token.
//
// Keys are derived from Cookie.Secrets; the first key encrypts and every key
// decrypts. The token expires MaxAge after the last commit and the cookie
// name is bound as implicit assertion, so a token cannot be replayed under
// another cookie.
type CookieStore struct {
	cookie Cookie
	keys   []paseto.V4SymmetricKey
	opts   storeOptions
}

// NewCookieStore derives encryption keys from cookie.Secrets.
func NewCookieStore(cookie Cookie, opts ...Option) (*CookieStore, error) {
	secrets := token.SecretBytes(cookie.Secrets)
	if len(secrets) == 0 {
		return nil, ErrNoSecrets
	}
	if cookie.MaxAge <= 0 {
		return nil, ErrConfig
	}

	keys := make([]paseto.V4SymmetricKey, 0, len(secrets))
	for _, s := range secrets {
		raw, err := token.DeriveKey(s, cookieKeyPurpose, 32)
		if err != nil {
			return nil, err
		}
		k, err := paseto.V4SymmetricKeyFromBytes(raw)
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}

	return &CookieStore{cookie: cookie, keys: keys, opts: buildOptions(opts)}, nil
}

func (s *CookieStore) Get(_ context.Context, cookieHeader string) (*Session, error) {
	raw, ok := s.cookie.Value(cookieHeader)
	if !ok {
		return New("", nil), nil
	}

	now := s.opts.now()
	for _, k := range s.keys {
		// Fresh parser per attempt so rules never accumulate.
		p := paseto.NewParserWithoutExpiryCheck()
		p.AddRule(paseto.ValidAt(now))

		tok, err := p.ParseV4Local(k, raw, []byte(s.cookie.Name))
		if err != nil {
			continue
		}
		var data map[string]json.RawMessage
		if err := tok.Get("data", &data); err != nil {
			continue
		}
		s.opts.metrics.SessionOp("get", nil)
		return New("", data), nil
	}
	return New("", nil), nil
}

func (s *CookieStore) Commit(_ context.Context, sess *Session) (string, error) {
	now := s.opts.now()

	tok := paseto.NewToken()
	tok.SetIssuedAt(now)
	tok.SetNotBefore(now)
	tok.SetExpiration(now.Add(s.cookie.MaxAge))
	if err := tok.Set("data", sess.Data()); err != nil {
		s.opts.metrics.SessionOp("commit", err)
		return "", fmt.Errorf("session: encode: %w", err)
	}

	header := s.cookie.Serialize(tok.V4Encrypt(s.keys[0], []byte(s.cookie.Name)), now)
	if len(header) > maxCookieBytes {
		s.opts.metrics.SessionOp("commit", ErrSessionTooLarge)
		return "", ErrSessionTooLarge
	}
	s.opts.metrics.SessionOp("commit", nil)
	return header, nil
}

func (s *CookieStore) Destroy(_ context.Context, _ *Session) (string, error) {
	s.opts.metrics.SessionOp("destroy", nil)
	return s.cookie.Expire(), nil
}
