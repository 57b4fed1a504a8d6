// Package ratelimit throttles login submissions per client address.
package ratelimit

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	DefaultLimit  = 10
	DefaultWindow = time.Minute

	// Sweep idle keys once the table grows past this size.
	sweepThreshold = 4096
)

// Limiter is a keyed sliding-window limiter.
type Limiter struct {
	limit  int
	window time.Duration

	mu     sync.Mutex
	events map[string][]time.Time
}

// New constructs a Limiter, falling back to defaults for non-positive inputs.
func New(limit int, window time.Duration) *Limiter {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Limiter{limit: limit, window: window, events: make(map[string][]time.Time)}
}

// Allow records an event for key at now. When the window is full it returns
// false and how long until the oldest event leaves the window.
func (l *Limiter) Allow(key string, now time.Time) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.events) > sweepThreshold {
		l.sweepLocked(now)
	}

	kept := prune(l.events[key], now.Add(-l.window))
	if len(kept) >= l.limit {
		l.events[key] = kept
		return false, kept[0].Add(l.window).Sub(now)
	}
	l.events[key] = append(kept, now)
	return true, 0
}

// Len is the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}

func (l *Limiter) sweepLocked(now time.Time) {
	cut := now.Add(-l.window)
	for k, ts := range l.events {
		if kept := prune(ts, cut); len(kept) == 0 {
			delete(l.events, k)
		} else {
			l.events[k] = kept
		}
	}
}

func prune(ts []time.Time, cut time.Time) []time.Time {
	dst := ts[:0]
	for _, t := range ts {
		if t.After(cut) {
			dst = append(dst, t)
		}
	}
	return dst
}

// ClientKey identifies the caller by remote IP.
func ClientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// WriteLimited sends 429 with a Retry-After rounded up to whole seconds.
func WriteLimited(w http.ResponseWriter, retryAfter time.Duration) {
	if retryAfter > 0 {
		secs := int64((retryAfter + time.Second - 1) / time.Second)
		w.Header().Set("Retry-After", strconv.FormatInt(secs, 10))
	}
	http.Error(w, "too many attempts", http.StatusTooManyRequests)
}
