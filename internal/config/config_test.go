package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", p, err)
	}
	return p
}

func TestParseDefaultsWithoutFile(t *testing.T) {
	t.Parallel()
	cfg, err := NewConfigManager("", nil).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	s := cfg.Selection
	if s.RecencyDays != 7 || s.BatchSize != 5 || s.CharBudget != 1900 {
		t.Fatalf("unexpected defaults: %+v", s)
	}
	if s.Separator != ".." || s.Exclude != "Add new point" || s.StartCategory != "allah_says" {
		t.Fatalf("unexpected defaults: %+v", s)
	}
	if cfg.History.Driver != "file" || cfg.Delivery.Email.Port != 465 {
		t.Fatalf("unexpected defaults: history=%+v email=%+v", cfg.History, cfg.Delivery.Email)
	}
}

func TestParseYAML(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	p := writeFile(t, dir, "snipcast.yaml", `
selection:
  batch_size: 10
  categories:
    - name: a
      prefix: "A:"
      dedup: true
    - name: b
      prefix: "B:"
streams:
  deen:
    source: deen.txt
    schedule: "07:30"
  dunya:
    chunking: false
history:
  driver: sqlite
`)
	cfg, err := NewConfigManager(p, nil).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Selection.BatchSize != 10 || cfg.Selection.StartCategory != "a" {
		t.Fatalf("selection = %+v", cfg.Selection)
	}
	if !cfg.Selection.Categories[0].Dedup || cfg.Selection.Categories[1].Dedup {
		t.Fatalf("dedup flags = %+v", cfg.Selection.Categories)
	}
	if cfg.History.Path == "" {
		t.Fatal("sqlite driver should get a default path")
	}
	if got := cfg.StreamNames(); !reflect.DeepEqual(got, []string{"deen", "dunya"}) {
		t.Fatalf("StreamNames = %v", got)
	}
	sched := cfg.Scheduled()
	if len(sched) != 1 || sched[0].Name != "deen" || sched[0].Schedule != "07:30" {
		t.Fatalf("Scheduled = %+v", sched)
	}
}

func TestParseRejects(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		file string
		body string
	}{
		{name: "unknown field", file: "c.json", body: `{"selection":{"batchsize":3}}`},
		{name: "trailing data", file: "c.json", body: `{} {}`},
		{name: "bad yaml", file: "c.yml", body: "selection: [unclosed"},
		{name: "bad strategy", file: "c.json", body: `{"selection":{"strategy":"greedy"}}`},
		{name: "bad driver", file: "c.json", body: `{"history":{"driver":"redis"}}`},
		{name: "bad duration", file: "c.json", body: `{"delivery":{"webhook":{"delay":"soon"}}}`},
		{name: "bad timezone", file: "c.json", body: `{"scheduler":{"timezone":"Mars/Olympus"}}`},
		{name: "one category", file: "c.json", body: `{"selection":{"categories":[{"name":"a","prefix":"A"}]}}`},
		{name: "public status without token", file: "c.json", body: `{"status":{"enabled":true,"addr":"0.0.0.0:8089"}}`},
		{name: "reserved category", file: "c.json", body: `{"selection":{"categories":[{"name":"a","prefix":"A"},{"name":"other","prefix":"O"}]}}`},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := writeFile(t, t.TempDir(), tt.file, tt.body)
			if _, err := NewConfigManager(p, nil).Load(); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestResolveStream(t *testing.T) {
	t.Parallel()
	off := false
	multi := Default()
	multi.Streams = map[string]StreamConfig{
		"deen":  {Source: "d.txt", BatchSize: 10},
		"dunya": {Chunking: &off, Subject: "News"},
	}
	single := Default()
	single.Streams = map[string]StreamConfig{"only": {}}

	tests := []struct {
		name     string
		cfg      *Config
		selector string
		want     Stream
		err      error
	}{
		{name: "legacy pair", cfg: Default(), want: Stream{Source: "notion.txt", History: "sent_snippets.json", BatchSize: 5, Chunking: true}},
		{name: "derived pair", cfg: Default(), selector: "DEEN", want: Stream{Name: "DEEN", Source: "notion_DEEN.txt", History: "sent_snippets_DEEN.json", BatchSize: 5, Chunking: true}},
		{name: "single implicit", cfg: single, want: Stream{Name: "only", Source: "notion_only.txt", History: "sent_snippets_only.json", BatchSize: 5, Chunking: true}},
		{name: "override batch", cfg: multi, selector: "deen", want: Stream{Name: "deen", Source: "d.txt", History: "sent_snippets_deen.json", BatchSize: 10, Chunking: true}},
		{name: "chunking off", cfg: multi, selector: "dunya", want: Stream{Name: "dunya", Source: "notion_dunya.txt", History: "sent_snippets_dunya.json", BatchSize: 5, Chunking: false, Subject: "News"}},
		{name: "required", cfg: multi, err: ErrStreamRequired},
		{name: "unknown", cfg: multi, selector: "nope", err: ErrUnknownStream},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := tt.cfg.ResolveStream(tt.selector)
			if tt.err != nil {
				if !errors.Is(err, tt.err) {
					t.Fatalf("err = %v, want %v", err, tt.err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ResolveStream: %v", err)
			}
			if got.Name != tt.want.Name || got.Source != tt.want.Source || got.History != tt.want.History ||
				got.BatchSize != tt.want.BatchSize || got.Chunking != tt.want.Chunking {
				t.Fatalf("got %+v, want %+v", got, tt.want)
			}
			if tt.want.Subject != "" && got.Subject != tt.want.Subject {
				t.Fatalf("subject = %q, want %q", got.Subject, tt.want.Subject)
			}
			if got.Recency != 7*24*time.Hour {
				t.Fatalf("recency = %v", got.Recency)
			}
		})
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("EMAIL_USER", "me@example.com")
	t.Setenv("EMAIL_PASS", "secret")
	t.Setenv("EMAIL_RECEIVER", "a@example.com, b@example.com")
	t.Setenv("DISCORD_WEBHOOK_URL", "https://hooks.example.com/x")
	t.Setenv("STREAM_PREFIX", "DEEN")
	t.Setenv("RECENCY_DAYS", "3")
	t.Setenv("NUM_SNIPPETS", "10")

	p := writeFile(t, t.TempDir(), "c.json", `{"selection":{"batch_size":4}}`)
	cfg, err := NewConfigManager(p, NewEnv()).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	e := cfg.Delivery.Email
	if e.Username != "me@example.com" || e.From != "me@example.com" || e.Password != "secret" {
		t.Fatalf("email = %+v", e)
	}
	if !reflect.DeepEqual(e.To, []string{"a@example.com", "b@example.com"}) {
		t.Fatalf("to = %v", e.To)
	}
	if cfg.Delivery.Webhook.URL != "https://hooks.example.com/x" || cfg.Stream != "DEEN" {
		t.Fatalf("webhook/stream not applied: %+v %q", cfg.Delivery.Webhook, cfg.Stream)
	}
	if cfg.Selection.RecencyDays != 3 || cfg.Selection.BatchSize != 10 {
		t.Fatalf("selection = %+v", cfg.Selection)
	}
	st, err := cfg.ResolveStream("")
	if err != nil || st.Source != "notion_DEEN.txt" {
		t.Fatalf("ResolveStream = %+v, %v", st, err)
	}

	red := Redacted(cfg)
	if red.Delivery.Email.Password != "***" || cfg.Delivery.Email.Password != "secret" {
		t.Fatal("Redacted must mask a copy")
	}
	out, err := MarshalYAML(red)
	if err != nil {
		t.Fatalf("MarshalYAML: %v", err)
	}
	if strings.Contains(string(out), "secret") || !strings.Contains(string(out), "batch_size: 10") {
		t.Fatalf("yaml output:\n%s", out)
	}
}

func TestActive(t *testing.T) {
	t.Parallel()
	on, off := true, false
	if Active(nil, false) || !Active(nil, true) || Active(&off, true) || Active(&on, false) || !Active(&on, true) {
		t.Fatal("Active truth table mismatch")
	}
}

func TestSummarizeConfigChange(t *testing.T) {
	t.Parallel()
	a := Default()
	b := Default()
	b.Logging.Level = "debug"
	b.Delivery.Email.Password = "changed"
	changed, _ := SummarizeConfigChange(a, b)
	if !reflect.DeepEqual(changed, []string{"logging", "delivery"}) {
		t.Fatalf("changed = %v", changed)
	}
}

func TestStatusDefaults(t *testing.T) {
	t.Parallel()
	cfg := Default()
	if cfg.Status.Enabled || cfg.Status.Addr != DefaultStatusAddr {
		t.Fatalf("status = %+v", cfg.Status)
	}
	cfg.Status.Enabled = true
	cfg.Status.Addr = "0.0.0.0:9000"
	if err := cfg.Validate(); err == nil {
		t.Fatal("non-loopback status without token should be rejected")
	}
	cfg.Status.Token = "secret"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate with token: %v", err)
	}
	if got := Redacted(cfg).Status.Token; got != "***" {
		t.Fatalf("redacted token = %q", got)
	}
}

func TestWatchPublishesReload(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	p := writeFile(t, dir, "c.json", `{"selection":{"batch_size":3}}`)
	m := NewConfigManager(p, nil)
	m.debounce = 20 * time.Millisecond
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	sub := m.Subscribe(1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		_ = m.Watch(ctx)
		close(done)
	}()

	deadline := time.After(10 * time.Second)
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case cfg := <-sub:
			if cfg.Selection.BatchSize != 8 {
				t.Fatalf("published batch_size = %d", cfg.Selection.BatchSize)
			}
			if m.Get().Selection.BatchSize != 8 {
				t.Fatal("published config must be committed")
			}
			cancel()
			<-done
			return
		case <-tick.C:
			writeFile(t, dir, "c.json", `{"selection":{"batch_size":8}}`)
		case <-deadline:
			t.Fatal("no reload published")
		}
	}
}
