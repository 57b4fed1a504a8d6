package session

import (
	"encoding/json"
	"fmt"
)

const flashPrefix = "__flash_"

func flashKey(key string) string { return flashPrefix + key + "__" }

// Session is one request's view of a browser session.
// It is not safe for concurrent use; each request works on its own copy.
type Session struct {
	id   string
	data map[string]json.RawMessage
}

// New returns a session with a private copy of data.
// An empty id means the session has not been persisted yet.
func New(id string, data map[string]json.RawMessage) *Session {
	cp := make(map[string]json.RawMessage, len(data))
	for k, v := range data {
		cp[k] = v
	}
	return &Session{id: id, data: cp}
}

// ID returns the server-side id, or "" for cookie-only and fresh sessions.
func (s *Session) ID() string { return s.id }

// Has reports whether key is set, either as a regular or a flash value.
func (s *Session) Has(key string) bool {
	if _, ok := s.data[key]; ok {
		return true
	}
	_, ok := s.data[flashKey(key)]
	return ok
}

// Get decodes the value stored under key into dst.
// A flash value is removed from the session once read.
func (s *Session) Get(key string, dst any) (bool, error) {
	raw, ok := s.data[key]
	if !ok {
		fk := flashKey(key)
		raw, ok = s.data[fk]
		if !ok {
			return false, nil
		}
		delete(s.data, fk)
	}
	if dst == nil {
		return true, nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return true, fmt.Errorf("session: decode %q: %w", key, err)
	}
	return true, nil
}

// Set stores v under key.
func (s *Session) Set(key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("session: encode %q: %w", key, err)
	}
	s.data[key] = raw
	return nil
}

// Flash stores v under key until the next Get.
func (s *Session) Flash(key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("session: encode flash %q: %w", key, err)
	}
	s.data[flashKey(key)] = raw
	return nil
}

// Unset removes key, including a pending flash value under the same key.
func (s *Session) Unset(key string) {
	delete(s.data, key)
	delete(s.data, flashKey(key))
}

// Len returns the number of stored entries.
func (s *Session) Len() int { return len(s.data) }

// Data returns a copy of the stored entries for persistence.
func (s *Session) Data() map[string]json.RawMessage {
	cp := make(map[string]json.RawMessage, len(s.data))
	for k, v := range s.data {
		cp[k] = v
	}
	return cp
}
