package session

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"authgate/cmd/internal/ids"
)

// DefaultRedisPrefix namespaces session keys.
const DefaultRedisPrefix = "authgate:session:"

// RedisDataStore implements DataStore on Redis; expiry is delegated to key TTLs.
type RedisDataStore struct {
	rdb    redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewRedisDataStore wraps rdb. The client is owned by the caller.
func NewRedisDataStore(rdb redis.UniversalClient, prefix string, now func() time.Time) *RedisDataStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	if now == nil {
		now = time.Now
	}
	return &RedisDataStore{rdb: rdb, prefix: prefix, now: now}
}

func (s *RedisDataStore) Create(ctx context.Context, data map[string]json.RawMessage, expires time.Time) (string, error) {
	id, err := ids.NewULID(s.now())
	if err != nil {
		return "", err
	}
	if err := s.Update(ctx, id, data, expires); err != nil {
		return "", err
	}
	return id, nil
}

func (s *RedisDataStore) Read(ctx context.Context, id string) (map[string]json.RawMessage, error) {
	b, err := s.rdb.Get(ctx, s.prefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	return decodeData(b)
}

func (s *RedisDataStore) Update(ctx context.Context, id string, data map[string]json.RawMessage, expires time.Time) error {
	b, err := encodeData(data)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, s.prefix+id, b, ttlUntil(expires, s.now())).Err()
}

func (s *RedisDataStore) Delete(ctx context.Context, id string) error {
	return s.rdb.Del(ctx, s.prefix+id).Err()
}

// ttlUntil never returns less than one second; a zero TTL would make the key persistent.
func ttlUntil(expires, now time.Time) time.Duration {
	ttl := expires.Sub(now)
	if ttl < time.Second {
		return time.Second
	}
	return ttl
}
