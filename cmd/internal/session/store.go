package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"authgate/cmd/internal/metrics"
)

// Store loads and persists sessions through the session cookie.
//
// Get never fails because of the cookie itself: a missing, tampered or
// expired cookie yields a fresh empty session. Errors come from backends.
type Store interface {
	Get(ctx context.Context, cookieHeader string) (*Session, error)
	Commit(ctx context.Context, s *Session) (setCookie string, err error)
	Destroy(ctx context.Context, s *Session) (setCookie string, err error)
}

// DataStore persists session data by id for IDStore.
// Read returns (nil, nil) for unknown or expired ids. Update upserts.
type DataStore interface {
	Create(ctx context.Context, data map[string]json.RawMessage, expires time.Time) (string, error)
	Read(ctx context.Context, id string) (map[string]json.RawMessage, error)
	Update(ctx context.Context, id string, data map[string]json.RawMessage, expires time.Time) error
	Delete(ctx context.Context, id string) error
}

// Regenerator is implemented by stores that bind a session to a server-side
// id. Regenerate drops the current record so the next Commit issues a new id.
type Regenerator interface {
	Regenerate(ctx context.Context, s *Session) error
}

// Purger is implemented by data stores that need explicit expiry sweeps.
type Purger interface {
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

type storeOptions struct {
	now     func() time.Time
	metrics *metrics.Metrics
}

// Option configures a Store.
type Option func(*storeOptions)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *storeOptions) {
		if now != nil {
			o.now = now
		}
	}
}

// WithMetrics records store operations on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *storeOptions) { o.metrics = m }
}

func buildOptions(opts []Option) storeOptions {
	o := storeOptions{now: time.Now}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// IDStore keeps a signed session id in the cookie and the data in a DataStore.
type IDStore struct {
	cookie Cookie
	data   DataStore
	opts   storeOptions
}

// NewIDStore binds cookie to data.
func NewIDStore(cookie Cookie, data DataStore, opts ...Option) *IDStore {
	return &IDStore{cookie: cookie, data: data, opts: buildOptions(opts)}
}

func (s *IDStore) Get(ctx context.Context, cookieHeader string) (*Session, error) {
	raw, ok := s.cookie.Value(cookieHeader)
	if !ok {
		return New("", nil), nil
	}
	id, ok := s.cookie.Unsign(raw)
	if !ok {
		return New("", nil), nil
	}

	data, err := s.data.Read(ctx, id)
	s.opts.metrics.SessionOp("get", err)
	if err != nil {
		return nil, fmt.Errorf("session: read %s: %w", id, err)
	}
	if data == nil {
		// Destroyed or expired server-side: never resurrect the old id.
		return New("", nil), nil
	}
	return New(id, data), nil
}

func (s *IDStore) Commit(ctx context.Context, sess *Session) (string, error) {
	now := s.opts.now()
	expires := now.Add(s.cookie.MaxAge)

	id := sess.ID()
	var err error
	if id == "" {
		id, err = s.data.Create(ctx, sess.Data(), expires)
	} else {
		err = s.data.Update(ctx, id, sess.Data(), expires)
	}
	s.opts.metrics.SessionOp("commit", err)
	if err != nil {
		return "", fmt.Errorf("session: commit: %w", err)
	}
	sess.id = id

	return s.cookie.Serialize(s.cookie.Sign(id), now), nil
}

func (s *IDStore) Destroy(ctx context.Context, sess *Session) (string, error) {
	if id := sess.ID(); id != "" {
		err := s.data.Delete(ctx, id)
		s.opts.metrics.SessionOp("destroy", err)
		if err != nil {
			return "", fmt.Errorf("session: destroy %s: %w", id, err)
		}
	}
	sess.id = ""
	return s.cookie.Expire(), nil
}

// Regenerate deletes the stored record and detaches sess from its id. The
// data stays on sess and is written under a fresh id by the next Commit.
func (s *IDStore) Regenerate(ctx context.Context, sess *Session) error {
	id := sess.ID()
	if id == "" {
		return nil
	}
	err := s.data.Delete(ctx, id)
	s.opts.metrics.SessionOp("regenerate", err)
	if err != nil {
		return fmt.Errorf("session: regenerate %s: %w", id, err)
	}
	sess.id = ""
	return nil
}

// PurgeExpired forwards to the data store when it supports sweeping.
func (s *IDStore) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	p, ok := s.data.(Purger)
	if !ok {
		return 0, nil
	}
	return p.PurgeExpired(ctx, now)
}

func encodeData(data map[string]json.RawMessage) ([]byte, error) {
	if data == nil {
		data = map[string]json.RawMessage{}
	}
	return json.Marshal(data)
}

func decodeData(b []byte) (map[string]json.RawMessage, error) {
	data := map[string]json.RawMessage{}
	if len(b) == 0 {
		return data, nil
	}
	if err := json.Unmarshal(b, &data); err != nil {
		return nil, err
	}
	return data, nil
}
