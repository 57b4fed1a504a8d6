package app

import (
	"context"
	"fmt"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/redis/go-redis/v9"

	"authgate/cmd/internal/metrics"
	"authgate/cmd/internal/session"
)

// Store is a small app-level lifecycle abstraction.
// It exists to allow backend connections to be closed gracefully.
type Store interface {
	Close(ctx context.Context) error
}

type nopStore struct{}

func (nopStore) Close(_ context.Context) error { return nil }

type closeFunc func(ctx context.Context) error

func (f closeFunc) Close(ctx context.Context) error { return f(ctx) }

// sessionBackend is the session store selected by AUTHGATE_SESSION_BACKEND
// plus the resources it owns.
type sessionBackend struct {
	name  string
	store session.Store

	// purger is set for backends without native expiry.
	purger session.Purger

	// ready reports backend reachability for /readyz; nil means always ready.
	ready func(ctx context.Context) error

	closer Store
}

func newSessionBackend(ctx context.Context, cfg Config, log Logger, m *metrics.Metrics) (*sessionBackend, error) {
	opts := []session.Option{session.WithMetrics(m)}
	cookie := cfg.Session.Cookie
	b := &sessionBackend{name: cfg.Session.Backend, closer: nopStore{}}

	switch cfg.Session.Backend {
	case session.BackendCookie, "":
		st, err := session.NewCookieStore(cookie, opts...)
		if err != nil {
			return nil, fmt.Errorf("session cookie store: %w", err)
		}
		b.name = session.BackendCookie
		b.store = st

	case session.BackendMemory:
		st := session.NewIDStore(cookie, session.NewMemoryDataStore(nil), opts...)
		b.store, b.purger = st, st

	case session.BackendPostgres:
		pool, err := NewDBPool(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("session postgres: %w", err)
		}
		ds := session.NewPostgresDataStore(pool, nil)
		if err := ds.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("session postgres schema: %w", err)
		}
		st := session.NewIDStore(cookie, ds, opts...)
		b.store, b.purger = st, st
		b.ready = func(ctx context.Context) error { return PingDB(ctx, pool, 2*time.Second) }
		b.closer = closeFunc(func(context.Context) error { pool.Close(); return nil })

	case session.BackendRedis:
		rdb, err := newRedisClient(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("session redis: %w", err)
		}
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err = rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			_ = rdb.Close()
			return nil, fmt.Errorf("session redis: ping: %w", err)
		}
		b.store = session.NewIDStore(cookie, session.NewRedisDataStore(rdb, cfg.Session.KeyPrefix, nil), opts...)
		b.ready = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
		b.closer = closeFunc(func(context.Context) error { return rdb.Close() })

	case session.BackendMemcached:
		mc := memcache.New(cfg.MemcachedServers...)
		if err := mc.Ping(); err != nil {
			return nil, fmt.Errorf("session memcached: ping: %w", err)
		}
		b.store = session.NewIDStore(cookie, session.NewMemcachedDataStore(mc, cfg.Session.KeyPrefix, nil), opts...)
		b.ready = func(context.Context) error { return mc.Ping() }

	default:
		return nil, fmt.Errorf("%w: %q", session.ErrUnknownBackend, cfg.Session.Backend)
	}

	log.Info("session.backend", "backend", b.name, "max_age", cookie.MaxAge.String(), "secure", cookie.Secure)
	return b, nil
}

func newRedisClient(rawURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, err
	}
	return redis.NewClient(opt), nil
}

// runPurger sweeps expired sessions until ctx is done.
func runPurger(ctx context.Context, p session.Purger, every time.Duration, log Logger) {
	if p == nil || every <= 0 {
		return
	}

	t := time.NewTicker(every)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			n, err := p.PurgeExpired(ctx, now)
			if err != nil {
				log.Warn("session.purge.fail", "err", err)
				continue
			}
			if n > 0 {
				log.Info("session.purge.ok", "removed", n)
			}
		}
	}
}
