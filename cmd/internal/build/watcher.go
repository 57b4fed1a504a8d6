package build

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"authgate/cmd/internal/metrics"
)

// Watcher reloads the bundle whenever the version marker file changes.
//
// The marker's parent directory is watched rather than the file itself so
// that editors and build tools replacing the file by rename are observed.
type Watcher struct {
	loader      Loader
	current     *Current
	versionPath string
	notifier    Notifier
	log         *slog.Logger
	metrics     *metrics.Metrics

	mu      sync.Mutex
	lastErr error

	ready     chan struct{}
	readyOnce sync.Once

	// Marker mtime last acted on; only touched by Run.
	markerMod time.Time
}

// NewWatcher builds a watcher. notifier, log and m may be nil.
func NewWatcher(loader Loader, current *Current, versionPath string, notifier Notifier, log *slog.Logger, m *metrics.Metrics) *Watcher {
	if log == nil {
		log = slog.Default()
	}
	return &Watcher{
		loader:      loader,
		current:     current,
		versionPath: filepath.Clean(versionPath),
		notifier:    notifier,
		log:         log,
		metrics:     m,
		ready:       make(chan struct{}),
	}
}

// Ready is closed once Run has registered its filesystem watch.
func (w *Watcher) Ready() <-chan struct{} { return w.ready }

// LastError returns the error of the most recent reload, nil after a success.
func (w *Watcher) LastError() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastErr
}

// Run watches until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("build watcher: %w", err)
	}
	defer func() { _ = fw.Close() }()

	dir := filepath.Dir(w.versionPath)
	if err := fw.Add(dir); err != nil {
		return fmt.Errorf("build watcher: watch %s: %w", dir, err)
	}
	w.markerMod = w.markerModTime()
	w.readyOnce.Do(func() { close(w.ready) })

	w.log.Info("build.watch.start", "version_path", w.versionPath)
	defer w.log.Info("build.watch.stop", "version_path", w.versionPath)

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.versionPath {
				continue
			}
			if !w.markerChanged(ev) {
				continue
			}
			// Failures are recorded on the watcher; keep watching.
			_ = w.Reload(ctx)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("build.watch.error", "err", err)
		}
	}
}

// markerChanged reports whether ev means the marker was created, written or
// touched. A touch only updates the mtime and arrives as Chmod, so attribute
// events count only when the mtime actually moved.
func (w *Watcher) markerChanged(ev fsnotify.Event) bool {
	switch {
	case ev.Has(fsnotify.Create), ev.Has(fsnotify.Write):
		w.markerMod = w.markerModTime()
		return true
	case ev.Has(fsnotify.Chmod):
		mod := w.markerModTime()
		if mod.IsZero() || mod.Equal(w.markerMod) {
			return false
		}
		w.markerMod = mod
		return true
	}
	return false
}

func (w *Watcher) markerModTime() time.Time {
	fi, err := os.Stat(w.versionPath)
	if err != nil {
		return time.Time{}
	}
	return fi.ModTime()
}

// Reload loads the current bundle and swaps it in.
//
// On failure the previous build stays active and the error is returned. When
// the loader yields the already active build nothing is swapped or announced.
func (w *Watcher) Reload(ctx context.Context) error {
	b, err := w.loader.LoadCurrent(ctx)
	if err == nil && b == nil {
		err = errors.New("loader returned no build")
	}

	w.mu.Lock()
	w.lastErr = err
	w.mu.Unlock()

	if err != nil {
		w.metrics.BuildReload(0, err)
		w.log.Error("build.reload.fail", "err", err)
		return err
	}

	prev := w.current.Swap(b)
	w.metrics.BuildReload(float64(b.Version.Unix()), nil)
	if prev == b {
		return nil
	}
	w.log.Info("build.reload.ok", "version", b.VersionString(), "previous", prev.VersionString())

	if w.notifier != nil {
		if err := w.notifier.BuildReady(ctx, b); err != nil {
			w.log.Warn("build.notify.fail", "version", b.VersionString(), "err", err)
		}
	}
	return nil
}
