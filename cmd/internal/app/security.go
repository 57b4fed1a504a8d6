package app

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"authgate/cmd/security/token"
)

// ValidateSecurityConfig enforces the session policy at startup.
//
// Production requires at least one session secret of token.MinSecretBytes
// and a Secure cookie. Development without secrets gets a random per-process
// secret, so sessions do not survive a restart.
func ValidateSecurityConfig(cfg *Config, log Logger) error {
	secrets := cfg.Session.Cookie.Secrets

	if cfg.Dev() {
		if len(secrets) == 0 {
			s, err := ephemeralSecret()
			if err != nil {
				return err
			}
			cfg.Session.Cookie.Secrets = []string{s}
			log.Warn("security.session.ephemeral_secret", "hint", "set AUTHGATE_SESSION_SECRETS to keep sessions across restarts")
		}
		return nil
	}

	if err := token.ValidateSecrets(secrets, token.MinSecretBytes); err != nil {
		switch {
		case errors.Is(err, token.ErrSecretMissing):
			return errors.New("security policy: AUTHGATE_SESSION_SECRETS is missing")
		case errors.Is(err, token.ErrSecretTooShort):
			return fmt.Errorf("security policy: AUTHGATE_SESSION_SECRETS entries must be at least %d bytes", token.MinSecretBytes)
		default:
			return err
		}
	}

	if !cfg.Session.Cookie.Secure {
		return errors.New("security policy: session cookie must be Secure outside development")
	}
	return nil
}

func ephemeralSecret() (string, error) {
	b := make([]byte, token.MinSecretBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("security: generate session secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}
