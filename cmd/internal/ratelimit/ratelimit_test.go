package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestLimiter_SlidingWindow(t *testing.T) {
	t.Parallel()

	l := New(2, time.Minute)
	t0 := time.Date(2026, 2, 13, 12, 0, 0, 0, time.UTC)

	if ok, _ := l.Allow("a", t0); !ok {
		t.Fatalf("first event must pass")
	}
	if ok, _ := l.Allow("a", t0.Add(10*time.Second)); !ok {
		t.Fatalf("second event must pass")
	}

	ok, retry := l.Allow("a", t0.Add(20*time.Second))
	if ok {
		t.Fatalf("third event inside the window must be limited")
	}
	if retry != 40*time.Second {
		t.Fatalf("retry=%v want 40s", retry)
	}

	if ok, _ := l.Allow("b", t0.Add(20*time.Second)); !ok {
		t.Fatalf("keys are independent")
	}

	if ok, _ := l.Allow("a", t0.Add(61*time.Second)); !ok {
		t.Fatalf("event must pass once the oldest one left the window")
	}
}

func TestLimiter_Defaults(t *testing.T) {
	t.Parallel()

	l := New(0, 0)
	if l.limit != DefaultLimit || l.window != DefaultWindow {
		t.Fatalf("defaults not applied: %d %v", l.limit, l.window)
	}
}

func TestLimiter_SweepsIdleKeys(t *testing.T) {
	t.Parallel()

	l := New(1, time.Second)
	t0 := time.Unix(1_700_000_000, 0)
	for i := 0; i <= sweepThreshold; i++ {
		l.Allow(time.Duration(i).String(), t0)
	}
	if l.Len() != sweepThreshold+1 {
		t.Fatalf("len=%d", l.Len())
	}

	l.Allow("fresh", t0.Add(time.Hour))
	if l.Len() != 1 {
		t.Fatalf("idle keys must be swept, len=%d", l.Len())
	}
}

func TestClientKeyAndWriteLimited(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest(http.MethodPost, "/login", nil)
	r.RemoteAddr = "203.0.113.7:51234"
	if got := ClientKey(r); got != "203.0.113.7" {
		t.Fatalf("ClientKey=%q", got)
	}
	r.RemoteAddr = "pipe"
	if got := ClientKey(r); got != "pipe" {
		t.Fatalf("ClientKey=%q", got)
	}

	rr := httptest.NewRecorder()
	WriteLimited(rr, 1500*time.Millisecond)
	if rr.Code != http.StatusTooManyRequests || rr.Header().Get("Retry-After") != "2" {
		t.Fatalf("code=%d retry-after=%q", rr.Code, rr.Header().Get("Retry-After"))
	}
}
