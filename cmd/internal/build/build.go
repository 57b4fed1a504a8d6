package build

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// ErrBundleReload wraps every failure to stat, read or parse the bundle.
var ErrBundleReload = errors.New("bundle reload failed")

// Build is one loaded bundle. It is never mutated after load.
type Build struct {
	Path      string
	Version   time.Time
	LoadedAt  time.Time
	Templates *template.Template
}

// VersionString is the stamp announced to dev reload clients.
func (b *Build) VersionString() string {
	if b == nil {
		return ""
	}
	return strconv.FormatInt(b.Version.UnixNano(), 10)
}

// Render executes the named template into w. Output is buffered so a failed
// render never leaves a partial page behind.
func (b *Build) Render(w io.Writer, name string, data any) error {
	t := b.Templates.Lookup(name)
	if t == nil {
		return fmt.Errorf("build %s: template %q not defined", b.VersionString(), name)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return fmt.Errorf("build %s: render %q: %w", b.VersionString(), name, err)
	}
	_, err := buf.WriteTo(w)
	return err
}

// Loader produces the build that is current on disk.
type Loader interface {
	LoadCurrent(ctx context.Context) (*Build, error)
}

// FileLoader parses a template bundle from a file.
//
// The parsed build is cached by modification time: an unchanged file returns
// the cached build, a changed mtime always forces a fresh parse.
type FileLoader struct {
	path  string
	funcs template.FuncMap
	now   func() time.Time

	mu     sync.Mutex
	cached *Build
}

// NewFileLoader loads the bundle at path. funcs may be nil.
func NewFileLoader(path string, funcs template.FuncMap) *FileLoader {
	return &FileLoader{path: path, funcs: funcs, now: time.Now}
}

func (l *FileLoader) LoadCurrent(ctx context.Context) (*Build, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fi, err := os.Stat(l.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBundleReload, err)
	}
	mtime := fi.ModTime()

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cached != nil && l.cached.Version.Equal(mtime) {
		return l.cached, nil
	}

	src, err := os.ReadFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBundleReload, err)
	}
	t, err := template.New(filepath.Base(l.path)).Funcs(l.funcs).Parse(string(src))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBundleReload, err)
	}

	b := &Build{Path: l.path, Version: mtime, LoadedAt: l.now(), Templates: t}
	l.cached = b
	return b, nil
}

// Current holds the active build.
type Current struct {
	p atomic.Pointer[Build]
}

// NewCurrent starts with b, which may be nil.
func NewCurrent(b *Build) *Current {
	c := &Current{}
	if b != nil {
		c.p.Store(b)
	}
	return c
}

func (c *Current) Load() *Build { return c.p.Load() }

// Swap installs b and returns the previous build.
func (c *Current) Swap(b *Build) *Build { return c.p.Swap(b) }
