package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

// MinSecretBytes is the minimum secret size enforced by ValidateSecrets in strict mode.
const MinSecretBytes = 32

// Sign returns value with an appended base64url HMAC-SHA256 signature ("value.sig").
func Sign(value string, secret []byte) string {
	return value + "." + signature(value, secret)
}

// Unsign verifies a value produced by Sign against every secret, in order.
// It returns the original value when any secret matches.
func Unsign(signed string, secrets [][]byte) (string, error) {
	i := strings.LastIndexByte(signed, '.')
	if i <= 0 || i == len(signed)-1 {
		return "", ErrBadSignature
	}
	value, sig := signed[:i], signed[i+1:]

	got, err := base64.RawURLEncoding.DecodeString(sig)
	if err != nil {
		return "", ErrBadSignature
	}

	for _, s := range secrets {
		if len(s) == 0 {
			continue
		}
		if hmac.Equal(got, mac(value, s)) {
			return value, nil
		}
	}
	return "", ErrBadSignature
}

// DeriveKey expands secret into n bytes of key material bound to purpose (HKDF-SHA256).
func DeriveKey(secret []byte, purpose string, n int) ([]byte, error) {
	if len(secret) == 0 {
		return nil, ErrSecretMissing
	}
	out := make([]byte, n)
	r := hkdf.New(sha256.New, secret, nil, []byte(purpose))
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, err
	}
	return out, nil
}

// ValidateSecrets checks a rotation list. The list must be non-empty and, when
// minBytes > 0, every secret must be at least minBytes long.
func ValidateSecrets(secrets []string, minBytes int) error {
	if len(secrets) == 0 {
		return ErrSecretMissing
	}
	for _, s := range secrets {
		if strings.TrimSpace(s) == "" {
			return ErrSecretMissing
		}
		if minBytes > 0 && len([]byte(s)) < minBytes {
			return ErrSecretTooShort
		}
	}
	return nil
}

// SecretBytes converts a rotation list to raw key bytes, skipping blanks.
func SecretBytes(secrets []string) [][]byte {
	out := make([][]byte, 0, len(secrets))
	for _, s := range secrets {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		out = append(out, []byte(s))
	}
	return out
}

func mac(value string, secret []byte) []byte {
	m := hmac.New(sha256.New, secret)
	_, _ = m.Write([]byte(value))
	return m.Sum(nil)
}

func signature(value string, secret []byte) string {
	return base64.RawURLEncoding.EncodeToString(mac(value, secret))
}
