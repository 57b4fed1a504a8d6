package session

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/bradfitz/gomemcache/memcache"

	"authgate/cmd/internal/ids"
)

// DefaultMemcachedPrefix namespaces session keys.
const DefaultMemcachedPrefix = "authgate:session:"

// memcached treats expirations above 30 days as absolute unix timestamps.
const memcachedRelativeLimit = 30 * 24 * time.Hour

// MemcachedDataStore implements DataStore on memcached.
// The gomemcache client has no context support; ctx is unused.
type MemcachedDataStore struct {
	mc     *memcache.Client
	prefix string
	now    func() time.Time
}

// NewMemcachedDataStore wraps mc.
func NewMemcachedDataStore(mc *memcache.Client, prefix string, now func() time.Time) *MemcachedDataStore {
	if prefix == "" {
		prefix = DefaultMemcachedPrefix
	}
	if now == nil {
		now = time.Now
	}
	return &MemcachedDataStore{mc: mc, prefix: prefix, now: now}
}

func (s *MemcachedDataStore) Create(_ context.Context, data map[string]json.RawMessage, expires time.Time) (string, error) {
	id, err := ids.NewULID(s.now())
	if err != nil {
		return "", err
	}
	b, err := encodeData(data)
	if err != nil {
		return "", err
	}
	if err := s.mc.Add(s.item(id, b, expires)); err != nil {
		return "", err
	}
	return id, nil
}

func (s *MemcachedDataStore) Read(_ context.Context, id string) (map[string]json.RawMessage, error) {
	it, err := s.mc.Get(s.prefix + id)
	if err != nil {
		if errors.Is(err, memcache.ErrCacheMiss) {
			return nil, nil
		}
		return nil, err
	}
	return decodeData(it.Value)
}

func (s *MemcachedDataStore) Update(_ context.Context, id string, data map[string]json.RawMessage, expires time.Time) error {
	b, err := encodeData(data)
	if err != nil {
		return err
	}
	return s.mc.Set(s.item(id, b, expires))
}

func (s *MemcachedDataStore) Delete(_ context.Context, id string) error {
	err := s.mc.Delete(s.prefix + id)
	if errors.Is(err, memcache.ErrCacheMiss) {
		return nil
	}
	return err
}

func (s *MemcachedDataStore) item(id string, b []byte, expires time.Time) *memcache.Item {
	return &memcache.Item{
		Key:        s.prefix + id,
		Value:      b,
		Expiration: memcachedExpiration(expires, s.now()),
	}
}

func memcachedExpiration(expires, now time.Time) int32 {
	ttl := ttlUntil(expires, now)
	if ttl > memcachedRelativeLimit {
		return int32(expires.Unix())
	}
	return int32(ttl / time.Second)
}
