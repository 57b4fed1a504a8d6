package build

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"authgate/cmd/internal/metrics"
)

type recordingNotifier struct {
	mu       sync.Mutex
	versions []string
}

func (n *recordingNotifier) BuildReady(_ context.Context, b *Build) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.versions = append(n.versions, b.VersionString())
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.versions)
}

type watchFixture struct {
	bundle  string
	version string
	current *Current
	watcher *Watcher
	notes   *recordingNotifier
	metrics *metrics.Metrics
}

func newWatchFixture(t *testing.T) *watchFixture {
	t.Helper()

	dir := t.TempDir()
	f := &watchFixture{
		bundle:  filepath.Join(dir, "index.tmpl"),
		version: filepath.Join(dir, "version.txt"),
		notes:   &recordingNotifier{},
		metrics: metrics.New(prometheus.NewRegistry()),
	}
	writeBundle(t, f.bundle, bundleV1, time.Unix(1_700_000_000, 0))

	loader := NewFileLoader(f.bundle, nil)
	initial, err := loader.LoadCurrent(context.Background())
	if err != nil {
		t.Fatalf("initial load: %v", err)
	}
	f.current = NewCurrent(initial)
	f.watcher = NewWatcher(loader, f.current, f.version, f.notes, testLogger(), f.metrics)
	return f
}

func TestWatcher_ReloadSwapsAndNotifies(t *testing.T) {
	t.Parallel()

	f := newWatchFixture(t)
	old := f.current.Load()

	writeBundle(t, f.bundle, bundleV2, time.Unix(1_700_000_001, 0))
	if err := f.watcher.Reload(context.Background()); err != nil {
		t.Fatalf("reload: %v", err)
	}

	if f.current.Load() == old {
		t.Fatalf("reload must swap the build")
	}
	if got := render(t, f.current.Load(), "index"); got != "v2" {
		t.Fatalf("render=%q", got)
	}
	if f.notes.count() != 1 {
		t.Fatalf("notifications=%d want 1", f.notes.count())
	}
	if got := testutil.ToFloat64(f.metrics.BuildVersion); got != 1_700_000_001 {
		t.Fatalf("version gauge=%v", got)
	}

	// Same mtime: nothing new to announce.
	if err := f.watcher.Reload(context.Background()); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if f.notes.count() != 1 {
		t.Fatalf("unchanged build must not be announced again")
	}
}

func TestWatcher_FailedReloadKeepsPreviousBuild(t *testing.T) {
	t.Parallel()

	f := newWatchFixture(t)
	old := f.current.Load()

	writeBundle(t, f.bundle, `{{define "index"}}`, time.Unix(1_700_000_002, 0))
	err := f.watcher.Reload(context.Background())
	if !errors.Is(err, ErrBundleReload) {
		t.Fatalf("expected ErrBundleReload, got %v", err)
	}
	if f.current.Load() != old {
		t.Fatalf("failed reload must keep the previous build")
	}
	if !errors.Is(f.watcher.LastError(), ErrBundleReload) {
		t.Fatalf("LastError=%v", f.watcher.LastError())
	}
	if f.notes.count() != 0 {
		t.Fatalf("failed reload must not notify")
	}
	if got := testutil.ToFloat64(f.metrics.BuildReloads.WithLabelValues("error")); got != 1 {
		t.Fatalf("error counter=%v", got)
	}

	writeBundle(t, f.bundle, bundleV2, time.Unix(1_700_000_003, 0))
	if err := f.watcher.Reload(context.Background()); err != nil {
		t.Fatalf("recovery reload: %v", err)
	}
	if f.watcher.LastError() != nil {
		t.Fatalf("successful reload must clear LastError")
	}
}

func TestWatcher_RunReactsToVersionFile(t *testing.T) {
	t.Parallel()

	f := newWatchFixture(t)
	old := f.current.Load()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.watcher.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	select {
	case <-f.watcher.Ready():
	case err := <-done:
		t.Fatalf("watcher exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatalf("watcher never became ready")
	}

	// Unrelated files in the directory are ignored.
	if err := os.WriteFile(filepath.Join(filepath.Dir(f.version), "other.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write other: %v", err)
	}

	writeBundle(t, f.bundle, bundleV2, time.Unix(1_700_000_010, 0))
	if err := os.WriteFile(f.version, []byte("2"), 0o644); err != nil {
		t.Fatalf("write version: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for f.current.Load() == old {
		if time.Now().After(deadline) {
			t.Fatalf("version file change was not picked up")
		}
		time.Sleep(20 * time.Millisecond)
	}
	if got := render(t, f.current.Load(), "index"); got != "v2" {
		t.Fatalf("render=%q", got)
	}
}

func startWatcher(t *testing.T, f *watchFixture) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.watcher.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	select {
	case <-f.watcher.Ready():
	case err := <-done:
		t.Fatalf("watcher exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatalf("watcher never became ready")
	}
}

func TestWatcher_RunReactsToTouchedMarker(t *testing.T) {
	t.Parallel()

	f := newWatchFixture(t)
	if err := os.WriteFile(f.version, []byte("1"), 0o644); err != nil {
		t.Fatalf("write version: %v", err)
	}
	marked := time.Unix(1_700_000_000, 0)
	if err := os.Chtimes(f.version, marked, marked); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	old := f.current.Load()

	startWatcher(t, f)

	writeBundle(t, f.bundle, bundleV2, time.Unix(1_700_000_020, 0))
	touched := time.Now()
	if err := os.Chtimes(f.version, touched, touched); err != nil {
		t.Fatalf("touch version: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for f.current.Load() == old {
		if time.Now().After(deadline) {
			t.Fatalf("touching the marker did not swap the build (still %s)", f.current.Load().VersionString())
		}
		time.Sleep(20 * time.Millisecond)
	}
	if got := render(t, f.current.Load(), "index"); got != "v2" {
		t.Fatalf("render=%q", got)
	}
}

func TestWatcher_MarkerChanged(t *testing.T) {
	t.Parallel()

	f := newWatchFixture(t)
	if err := os.WriteFile(f.version, []byte("1"), 0o644); err != nil {
		t.Fatalf("write version: %v", err)
	}
	t0 := time.Unix(1_700_000_000, 0)
	if err := os.Chtimes(f.version, t0, t0); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	w := f.watcher
	w.markerMod = w.markerModTime()

	chmod := fsnotify.Event{Name: f.version, Op: fsnotify.Chmod}
	if w.markerChanged(chmod) {
		t.Fatalf("chmod without an mtime change must be ignored")
	}

	t1 := t0.Add(time.Second)
	if err := os.Chtimes(f.version, t1, t1); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	if !w.markerChanged(chmod) {
		t.Fatalf("chmod with a new mtime must trigger a reload")
	}
	if w.markerChanged(chmod) {
		t.Fatalf("the same mtime must only trigger once")
	}

	if !w.markerChanged(fsnotify.Event{Name: f.version, Op: fsnotify.Write}) {
		t.Fatalf("writes always trigger")
	}
	if w.markerChanged(fsnotify.Event{Name: f.version, Op: fsnotify.Remove}) {
		t.Fatalf("removal must not trigger")
	}
}

func TestWatcher_RunFailsWithoutDirectory(t *testing.T) {
	t.Parallel()

	f := newWatchFixture(t)
	w := NewWatcher(NewFileLoader(f.bundle, nil), f.current, filepath.Join(t.TempDir(), "gone", "version.txt"), nil, testLogger(), nil)
	if err := w.Run(context.Background()); err == nil {
		t.Fatalf("expected error watching a missing directory")
	}
}
