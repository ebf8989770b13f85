// Package webhook posts messages to a chat webhook (Discord-style
// {"content": ...} JSON).
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"snipcast/internal/transport"
	logx "snipcast/pkg/logx"
)

// StatusError is returned when the webhook answers with a non-2xx status.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("webhook: status %d", e.Code)
	}
	return fmt.Sprintf("webhook: status %d: %s", e.Code, e.Body)
}

type Config struct {
	URL string
	// Delay spaces consecutive payloads of one message.
	Delay   time.Duration
	Timeout time.Duration
}

// Sender posts each payload of a message in order. The first failure aborts
// the remaining payloads of that message.
type Sender struct {
	cfg    Config
	client *http.Client
	log    logx.Logger
}

func New(cfg Config, client *http.Client, log logx.Logger) *Sender {
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &Sender{cfg: cfg, client: client, log: log.With(logx.String("transport", "webhook"))}
}

func (s *Sender) Name() string { return "webhook" }

type payload struct {
	Content string `json:"content"`
}

func (s *Sender) Send(ctx context.Context, msg transport.Message) error {
	parts := msg.Payloads()
	pacer := transport.NewPacer(s.cfg.Delay)
	for i, p := range parts {
		if err := pacer.Wait(ctx); err != nil {
			return fmt.Errorf("webhook: payload %d/%d: %w", i+1, len(parts), err)
		}
		if err := s.post(ctx, p); err != nil {
			return fmt.Errorf("webhook: payload %d/%d: %w", i+1, len(parts), err)
		}
		s.log.Debug("payload sent", logx.Int("part", i+1), logx.Int("parts", len(parts)))
	}
	return nil
}

func (s *Sender) post(ctx context.Context, content string) error {
	body, err := json.Marshal(payload{Content: content})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(b))}
}
