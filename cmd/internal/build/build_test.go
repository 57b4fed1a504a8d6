package build

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// writeBundle writes src to path and pins its mtime so reloads are observable
// on filesystems with coarse timestamps.
func writeBundle(t *testing.T, path, src string, mtime time.Time) {
	t.Helper()
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatalf("write bundle: %v", err)
	}
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
}

func render(t *testing.T, b *Build, name string) string {
	t.Helper()
	var buf bytes.Buffer
	if err := b.Render(&buf, name, nil); err != nil {
		t.Fatalf("render: %v", err)
	}
	return buf.String()
}

const bundleV1 = `{{define "index"}}v1{{end}}`
const bundleV2 = `{{define "index"}}v2{{end}}`

func TestFileLoader_CachesByMtime(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "index.tmpl")
	t0 := time.Unix(1_700_000_000, 0)
	writeBundle(t, path, bundleV1, t0)

	l := NewFileLoader(path, nil)
	ctx := context.Background()

	b1, err := l.LoadCurrent(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	b2, _ := l.LoadCurrent(ctx)
	if b1 != b2 {
		t.Fatalf("unchanged mtime must return the cached build")
	}

	writeBundle(t, path, bundleV2, t0.Add(time.Second))
	b3, err := l.LoadCurrent(ctx)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if b3 == b1 {
		t.Fatalf("changed mtime must bust the cache")
	}
	if got := render(t, b3, "index"); got != "v2" {
		t.Fatalf("render=%q want v2", got)
	}
	if !b3.Version.Equal(t0.Add(time.Second)) {
		t.Fatalf("version=%v", b3.Version)
	}
}

func TestFileLoader_Errors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	_, err := NewFileLoader(filepath.Join(dir, "missing.tmpl"), nil).LoadCurrent(context.Background())
	if !errors.Is(err, ErrBundleReload) || !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("missing bundle: got %v", err)
	}

	bad := filepath.Join(dir, "bad.tmpl")
	writeBundle(t, bad, `{{define "index"}}`, time.Now())
	if _, err := NewFileLoader(bad, nil).LoadCurrent(context.Background()); !errors.Is(err, ErrBundleReload) {
		t.Fatalf("parse error: got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewFileLoader(bad, nil).LoadCurrent(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled ctx: got %v", err)
	}
}

func TestBuild_RenderUnknownTemplate(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "index.tmpl")
	writeBundle(t, path, bundleV1, time.Now())
	b, err := NewFileLoader(path, nil).LoadCurrent(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	var buf bytes.Buffer
	if err := b.Render(&buf, "nope", nil); err == nil {
		t.Fatalf("expected error for undefined template")
	}
	if buf.Len() != 0 {
		t.Fatalf("failed render must not write output")
	}
}

func TestCurrent_Swap(t *testing.T) {
	t.Parallel()

	c := NewCurrent(nil)
	if c.Load() != nil {
		t.Fatalf("empty current must load nil")
	}

	a, b := &Build{Version: time.Unix(1, 0)}, &Build{Version: time.Unix(2, 0)}
	if prev := c.Swap(a); prev != nil {
		t.Fatalf("first swap prev=%v", prev)
	}
	if prev := c.Swap(b); prev != a {
		t.Fatalf("second swap must return the previous build")
	}
	if c.Load() != b {
		t.Fatalf("load must see the latest build")
	}
}

func TestBuild_VersionString(t *testing.T) {
	t.Parallel()

	var nilBuild *Build
	if nilBuild.VersionString() != "" {
		t.Fatalf("nil build version must be empty")
	}
	b := &Build{Version: time.Unix(0, 1234)}
	if got := b.VersionString(); got != "1234" {
		t.Fatalf("version=%q", got)
	}
	if strings.TrimSpace(b.VersionString()) != b.VersionString() {
		t.Fatalf("version must not carry whitespace")
	}
}
