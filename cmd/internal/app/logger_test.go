package app

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want slog.Level
	}{
		{in: "debug", want: slog.LevelDebug},
		{in: "INFO", want: slog.LevelInfo},
		{in: "warn", want: slog.LevelWarn},
		{in: "warning", want: slog.LevelWarn},
		{in: "error", want: slog.LevelError},
		{in: "unknown", want: slog.LevelInfo},
		{in: "", want: slog.LevelInfo},
	}

	for _, tc := range cases {
		got := parseLogLevel(tc.in)
		if got != tc.want {
			t.Fatalf("parseLogLevel(%q)=%v want=%v", tc.in, got, tc.want)
		}
	}
}

func TestStripANSI(t *testing.T) {
	t.Parallel()

	in := ansiBlue + "INFO" + ansiReset + " plain " + ansiRed + "ERR" + ansiReset
	if got := stripANSI(in); got != "INFO plain ERR" {
		t.Fatalf("stripANSI()=%q", got)
	}
}

func TestPrettyHandler_Line(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := slog.New(newPrettyHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}, false))

	log.With("component", "http").Warn("http.request",
		"method", "get",
		"path", "/login",
		"status", 404,
		"duration_ms", int64(12),
		"err", errors.New("not found"),
		slog.Group("build", "version", "42"),
	)

	line := buf.String()
	for _, want := range []string{
		" WRN http.request",
		"component=http",
		"method=GET",
		"path=/login",
		"status=404",
		"duration=12ms",
		`err="not found"`,
		"build.version=42",
	} {
		if !strings.Contains(line, want) {
			t.Fatalf("line %q missing %q", line, want)
		}
	}
	if !strings.HasSuffix(line, "\n") {
		t.Fatalf("line must end with newline")
	}
}

func TestPrettyHandler_ColorAndLevels(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := slog.New(newPrettyHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}, true))

	log.Debug("hidden")
	if buf.Len() != 0 {
		t.Fatalf("debug must be filtered at info level")
	}

	log.Error("build.reload.fail", "status", 500)
	line := buf.String()
	if !strings.Contains(line, ansiRed+"ERR"+ansiReset) {
		t.Fatalf("error tag not colored: %q", line)
	}
	if plain := stripANSI(line); !strings.Contains(plain, "ERR build.reload.fail status=500") {
		t.Fatalf("plain line=%q", plain)
	}
}

func TestNewLoggerTo_JSON(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	log := newLoggerTo(&buf, "warn", "json", false)
	log.Info("dropped")
	log.Warn("kept", "k", "v")

	out := buf.String()
	if strings.Contains(out, "dropped") || !strings.Contains(out, `"msg":"kept"`) {
		t.Fatalf("unexpected output %q", out)
	}
	if slog.Default() != log {
		t.Fatalf("logger must be installed as default")
	}
}
