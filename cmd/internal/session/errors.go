package session

import "errors"

var (
	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid session config")

	// ErrNoSecrets is returned when a store that signs or encrypts has no secret.
	ErrNoSecrets = errors.New("session secrets missing")

	// ErrSessionTooLarge is returned when an encoded cookie exceeds the browser limit.
	ErrSessionTooLarge = errors.New("session cookie too large")

	// ErrUnknownBackend is returned for an unsupported backend name.
	ErrUnknownBackend = errors.New("unknown session backend")
)
