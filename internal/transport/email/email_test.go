package email

import (
	"bytes"
	"context"
	"io"
	"mime"
	"mime/multipart"
	"net"
	"net/mail"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"snipcast/internal/transport"
	logx "snipcast/pkg/logx"
)

var fixedDate = time.Date(2024, 3, 1, 6, 0, 0, 0, time.UTC)

func readText(t *testing.T, raw []byte) (*mail.Message, string) {
	t.Helper()
	m, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	mt, params, err := mime.ParseMediaType(m.Header.Get("Content-Type"))
	if err != nil || mt != "multipart/mixed" {
		t.Fatalf("content type = %q (%v)", mt, err)
	}
	mr := multipart.NewReader(m.Body, params["boundary"])
	p, err := mr.NextPart()
	if err != nil {
		t.Fatalf("NextPart: %v", err)
	}
	if ct := p.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("part content type = %q", ct)
	}
	b, err := io.ReadAll(p)
	if err != nil {
		t.Fatalf("read part: %v", err)
	}
	if _, err := mr.NextPart(); err != io.EOF {
		t.Fatalf("expected a single part, got %v", err)
	}
	return m, strings.ReplaceAll(string(b), "\r\n", "\n")
}

func TestBuildMessage(t *testing.T) {
	t.Parallel()
	body := "Allah says\n“If you avoid the major sins…”\n\n---\nIn other news...\n\n" + strings.Repeat("long line ", 20)
	raw, err := buildMessage("me@example.com", []string{"a@example.com", "b@example.com"}, "🌙 Your Daily Islamic Reminder", body, fixedDate)
	if err != nil {
		t.Fatalf("buildMessage: %v", err)
	}
	m, text := readText(t, raw)
	if text != body {
		t.Fatalf("body mismatch:\n got %q\nwant %q", text, body)
	}
	subj, err := new(mime.WordDecoder).DecodeHeader(m.Header.Get("Subject"))
	if err != nil || subj != "🌙 Your Daily Islamic Reminder" {
		t.Fatalf("subject = %q (%v)", subj, err)
	}
	if m.Header.Get("To") != "a@example.com, b@example.com" || m.Header.Get("From") != "me@example.com" {
		t.Fatalf("headers = %v", m.Header)
	}
	if d, err := m.Header.Date(); err != nil || !d.Equal(fixedDate) {
		t.Fatalf("date = %v (%v)", d, err)
	}
}

// fakeSMTP accepts one session and returns the DATA payload.
func fakeSMTP(t *testing.T, ln net.Listener) <-chan []byte {
	out := make(chan []byte, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			close(out)
			return
		}
		defer conn.Close()
		tp := textproto.NewConn(conn)
		reply := func(s string) { _ = tp.PrintfLine("%s", s) }
		reply("220 127.0.0.1 ESMTP test")
		var data []byte
		for {
			line, err := tp.ReadLine()
			if err != nil {
				out <- data
				return
			}
			cmd := strings.ToUpper(strings.SplitN(line, " ", 2)[0])
			switch cmd {
			case "EHLO":
				reply("250-127.0.0.1")
				reply("250 AUTH PLAIN")
			case "AUTH":
				reply("235 2.7.0 authenticated")
			case "MAIL", "RCPT":
				reply("250 ok")
			case "DATA":
				reply("354 go ahead")
				data, err = tp.ReadDotBytes()
				if err != nil {
					t.Errorf("ReadDotBytes: %v", err)
				}
				reply("250 queued")
			case "QUIT":
				reply("221 bye")
				out <- data
				return
			default:
				reply("502 unsupported")
			}
		}
	}()
	return out
}

func TestSendOverSMTP(t *testing.T) {
	t.Parallel()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	got := fakeSMTP(t, ln)

	s, err := New(Config{Host: "127.0.0.1", Username: "me@example.com", Password: "pw", To: []string{"you@example.com"}}, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.now = func() time.Time { return fixedDate }
	s.dial = func(ctx context.Context, _ string) (net.Conn, error) {
		var d net.Dialer
		return d.DialContext(ctx, "tcp", ln.Addr().String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	msg := transport.Message{Subject: "hi", Body: "first\n\nsecond", Chunks: []string{"first", "second"}}
	if err := s.Send(ctx, msg); err != nil {
		t.Fatalf("Send: %v", err)
	}
	raw := <-got
	_, text := readText(t, raw)
	if text != "first\n\nsecond" {
		t.Fatalf("mailed body = %q; email must carry the whole body", text)
	}
}

func TestNewValidates(t *testing.T) {
	t.Parallel()
	if _, err := New(Config{Host: "smtp.example.com"}, logx.Nop()); err == nil {
		t.Fatal("expected error without recipients")
	}
	if _, err := New(Config{Host: "smtp.example.com", To: []string{"x@example.com"}}, logx.Nop()); err == nil {
		t.Fatal("expected error without sender")
	}
}
