// Package telegram delivers messages to a Telegram chat through the Bot API.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"snipcast/internal/transport"
	logx "snipcast/pkg/logx"
)

// textLimit stays under Telegram's 4096 character cap.
const textLimit = 4000

type Config struct {
	Token string
	// ChatID is a numeric chat id or an @channel username.
	ChatID string
	// APIURL overrides the Bot API endpoint; empty uses telebot's default.
	APIURL  string
	Delay   time.Duration
	Timeout time.Duration
}

// api is the part of *tele.Bot the sender uses.
type api interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

type Sender struct {
	cfg Config
	bot api
	log logx.Logger
}

// New builds an offline bot (no getMe round trip, no polling): the sender
// only ever calls sendMessage.
func New(cfg Config, log logx.Logger) (*Sender, error) {
	if strings.TrimSpace(cfg.Token) == "" || strings.TrimSpace(cfg.ChatID) == "" {
		return nil, errors.New("telegram: token and chat id are required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		URL:     cfg.APIURL,
		Token:   cfg.Token,
		Client:  &http.Client{Timeout: timeout},
		Offline: true,
	})
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	return newSender(cfg, b, log), nil
}

func newSender(cfg Config, bot api, log logx.Logger) *Sender {
	return &Sender{cfg: cfg, bot: bot, log: log.With(logx.String("transport", "telegram"))}
}

func (s *Sender) Name() string { return "telegram" }

type chat string

func (c chat) Recipient() string { return string(c) }

// Send posts every payload in order, splitting any payload that exceeds
// Telegram's limit. The first failure aborts the rest.
func (s *Sender) Send(ctx context.Context, msg transport.Message) error {
	var parts []string
	for _, p := range msg.Payloads() {
		parts = append(parts, splitText(p, textLimit)...)
	}
	to := chat(strings.TrimSpace(s.cfg.ChatID))
	opts := &tele.SendOptions{DisableWebPagePreview: true}
	pacer := transport.NewPacer(s.cfg.Delay)

	for i, p := range parts {
		if err := pacer.Wait(ctx); err != nil {
			return fmt.Errorf("telegram: message %d/%d: %w", i+1, len(parts), err)
		}
		if _, err := s.bot.Send(to, p, opts); err != nil {
			return fmt.Errorf("telegram: message %d/%d: %w", i+1, len(parts), err)
		}
		s.log.Debug("message sent", logx.Int("part", i+1), logx.Int("parts", len(parts)))
	}
	return nil
}

// splitText cuts s into pieces of at most limit runes, preferring a newline
// in the last two thirds of each window.
func splitText(s string, limit int) []string {
	if limit <= 0 {
		limit = textLimit
	}
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}

	out := make([]string, 0, (len(rs)+limit-1)/limit)
	start := 0
	for start < len(rs) {
		end := min(start+limit, len(rs))
		if end < len(rs) {
			for i := end - 1; i > start; i-- {
				if rs[i] == '\n' && i-start >= limit/3 {
					end = i + 1
					break
				}
			}
		}
		if piece := strings.TrimRight(string(rs[start:end]), "\n"); piece != "" {
			out = append(out, piece)
		}
		start = end
		for start < len(rs) && rs[start] == '\n' {
			start++
		}
	}
	return out
}
