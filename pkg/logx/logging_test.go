package logx

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestZeroLoggerIsNoop(t *testing.T) {
	t.Parallel()
	var l Logger
	if !l.IsZero() {
		t.Fatal("zero Logger should report IsZero")
	}
	// Must not panic.
	l.Info("hello", String("k", "v"))
}

func TestWriterLoggerFields(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	l := NewWriter(&buf, "info").With(String("stream", "DEEN"))
	l.Debug("hidden")
	l.Warn("shortfall", Int("want", 5), Err(errors.New("boom")))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 line (debug filtered), got %d: %q", len(lines), buf.String())
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if m["message"] != "shortfall" || m["stream"] != "DEEN" || m["want"] != float64(5) {
		t.Fatalf("unexpected fields: %v", m)
	}
	if _, ok := m["caller"]; !ok {
		t.Fatalf("caller missing: %v", m)
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		def  zerolog.Level
		want zerolog.Level
	}{
		{in: "warning", def: zerolog.InfoLevel, want: zerolog.WarnLevel},
		{in: " DEBUG ", def: zerolog.InfoLevel, want: zerolog.DebugLevel},
		{in: "", def: zerolog.ErrorLevel, want: zerolog.ErrorLevel},
		{in: "nonsense", def: zerolog.ErrorLevel, want: zerolog.ErrorLevel},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in, tt.def); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestServiceApplyFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "out.log")
	svc, log := New(Config{Level: "info", File: FileConfig{Enabled: true, Path: path}})
	child := log.With(String("component", "test"))
	child.Debug("dropped")
	child.Info("kept")

	svc.Apply(Config{Level: "debug", File: FileConfig{Enabled: true, Path: path}})
	child.Debug("now visible")
	if err := svc.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	out := string(raw)
	if strings.Contains(out, "dropped") || !strings.Contains(out, "kept") || !strings.Contains(out, "now visible") {
		t.Fatalf("file sink:\n%s", out)
	}
	if !strings.Contains(out, `"component":"test"`) {
		t.Fatalf("fixed field missing:\n%s", out)
	}
}

func TestApplyKeepsPreviousFileOpen(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	first := filepath.Join(dir, "first.log")
	second := filepath.Join(dir, "second.log")
	svc, _ := New(Config{Level: "info", File: FileConfig{Enabled: true, Path: first}})

	// A copy taken before the reload, as a writer mid-line would hold.
	old := svc.current()
	svc.Apply(Config{Level: "info", File: FileConfig{Enabled: true, Path: second}})
	old.Info().Msg("written during reload")

	svc.Apply(Config{Level: "info", File: FileConfig{Enabled: true, Path: first}})
	if err := svc.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	raw, err := os.ReadFile(first)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(raw), "written during reload") {
		t.Fatalf("line through the replaced sink was lost:\n%s", raw)
	}
}
