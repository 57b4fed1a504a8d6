// Package token provides the keyed primitives behind authgate's session cookies.
//
// Signed cookie values use HMAC-SHA256 over the raw value. The first secret of
// a rotation list signs; every secret in the list verifies, so a secret can be
// retired by moving it to the end of the list for one cookie lifetime.
//
// Encryption keys for cookie-only sessions are derived with HKDF-SHA256 so the
// same configured secret never doubles as both a MAC key and a cipher key.
package token
