package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestRedisDataStore_RoundTripWithTTL(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mr, rdb := newTestRedis(t)
	clock := newFakeClock()
	st := NewIDStore(testCookie("s3cr3t"), NewRedisDataStore(rdb, "", clock.Now), WithClock(clock.Now))

	s, _ := st.Get(ctx, "")
	_ = s.Set("user", map[string]any{"id": 15, "username": "atuny0", "token": "tok"})
	setCookie, err := st.Commit(ctx, s)
	if err != nil {
		t.Fatalf("commit: %v", err)
	}

	key := DefaultRedisPrefix + s.ID()
	if !mr.Exists(key) {
		t.Fatalf("expected key %q in redis", key)
	}
	if ttl := mr.TTL(key); ttl != 20*time.Minute {
		t.Fatalf("ttl=%v want 20m", ttl)
	}

	got, err := st.Get(ctx, requestHeader(setCookie))
	if err != nil || !got.Has("user") {
		t.Fatalf("get: has=%v err=%v", got.Has("user"), err)
	}

	mr.FastForward(21 * time.Minute)
	got, err = st.Get(ctx, requestHeader(setCookie))
	if err != nil {
		t.Fatalf("get after expiry: %v", err)
	}
	if got.Has("user") || got.ID() != "" {
		t.Fatalf("expired key must read as fresh session")
	}
}

func TestRedisDataStore_Delete(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mr, rdb := newTestRedis(t)
	ds := NewRedisDataStore(rdb, "test:", nil)

	id, err := ds.Create(ctx, nil, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !mr.Exists("test:" + id) {
		t.Fatalf("custom prefix not applied")
	}
	if err := ds.Delete(ctx, id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	data, err := ds.Read(ctx, id)
	if err != nil || data != nil {
		t.Fatalf("deleted id must read as missing: %v %v", data, err)
	}
}

func TestRedisDataStore_UnavailableSurfacesError(t *testing.T) {
	t.Parallel()

	mr, rdb := newTestRedis(t)
	mr.Close()

	ds := NewRedisDataStore(rdb, "", nil)
	if _, err := ds.Read(context.Background(), "x"); err == nil {
		t.Fatalf("expected error from closed redis")
	}
}

func TestTTLUntil_Floor(t *testing.T) {
	t.Parallel()

	now := time.Now()
	if got := ttlUntil(now.Add(-time.Minute), now); got != time.Second {
		t.Fatalf("ttl=%v want 1s floor", got)
	}
	if got := ttlUntil(now.Add(time.Hour), now); got != time.Hour {
		t.Fatalf("ttl=%v want 1h", got)
	}
}
