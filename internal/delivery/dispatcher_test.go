package delivery

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"snipcast/internal/config"
	"snipcast/internal/transport"
	logx "snipcast/pkg/logx"
)

type stubSender struct {
	name  string
	err   error
	panic bool
	got   []transport.Message
}

func (s *stubSender) Name() string { return s.name }

func (s *stubSender) Send(ctx context.Context, msg transport.Message) error {
	if s.panic {
		panic("boom")
	}
	s.got = append(s.got, msg)
	return s.err
}

func TestDeliverIsolatesFailures(t *testing.T) {
	t.Parallel()
	failing := &stubSender{name: "email", err: errors.New("smtp down")}
	crashing := &stubSender{name: "telegram", panic: true}
	ok := &stubSender{name: "webhook"}

	d := NewDispatcher([]transport.Sender{failing, crashing, ok}, time.Second, logx.Nop())
	msg := transport.Message{Subject: "s", Body: "b", Chunks: []string{"b"}}
	rep := d.Deliver(context.Background(), msg)

	if len(ok.got) != 1 || !reflect.DeepEqual(ok.got[0], msg) {
		t.Fatalf("webhook must still receive the message, got %+v", ok.got)
	}
	if got := rep.Failed(); !reflect.DeepEqual(got, []string{"email", "telegram"}) {
		t.Fatalf("Failed = %v", got)
	}
	if rep.Err() == nil {
		t.Fatal("Err must report failures")
	}
	if !reflect.DeepEqual(d.Senders(), []string{"email", "telegram", "webhook"}) {
		t.Fatalf("Senders = %v", d.Senders())
	}
}

func TestDeliverAllOK(t *testing.T) {
	t.Parallel()
	d := NewDispatcher([]transport.Sender{&stubSender{name: "a"}, &stubSender{name: "b"}}, 0, logx.Nop())
	rep := d.Deliver(context.Background(), transport.Message{Body: "x"})
	if rep.Err() != nil || len(rep.Failed()) != 0 || len(rep.Results) != 2 {
		t.Fatalf("report = %+v", rep)
	}
}

func TestBuild(t *testing.T) {
	t.Parallel()
	off := false
	cfg := config.Default().Delivery
	cfg.Email.Username = "me@example.com"
	cfg.Email.Password = "pw"
	cfg.Email.To = []string{"you@example.com"}
	cfg.Webhook.URL = "https://hooks.example.com/x"
	cfg.Telegram.Token = "123:abc"
	cfg.Telegram.ChatID = "42"
	cfg.Telegram.Enabled = &off

	var names []string
	for _, s := range Build(cfg, logx.Nop()) {
		names = append(names, s.Name())
	}
	if !reflect.DeepEqual(names, []string{"email", "webhook"}) {
		t.Fatalf("built %v", names)
	}

	if got := Build(config.Default().Delivery, logx.Nop()); len(got) != 0 {
		t.Fatalf("no credentials should build nothing, got %d", len(got))
	}
}
