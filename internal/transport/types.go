package transport

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Message is one finished delivery for a run.
//
// Body is the full joined selection (whole-message transports such as email).
// Chunks are the same content packed under the character budget; chat
// transports send them in order. When Chunks is empty, Body is sent as one
// payload.
type Message struct {
	Subject string
	Body    string
	Chunks  []string
}

// Payloads returns Chunks, or Body as a single payload.
func (m Message) Payloads() []string {
	if len(m.Chunks) > 0 {
		return m.Chunks
	}
	if m.Body == "" {
		return nil
	}
	return []string{m.Body}
}

// Sender delivers a Message through one channel.
type Sender interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}

// Pacer spaces sequential sends by a fixed delay to respect downstream
// rate limits. The first Wait returns immediately.
type Pacer struct {
	lim *rate.Limiter
}

// NewPacer returns a Pacer with the given spacing; delay <= 0 disables it.
func NewPacer(delay time.Duration) *Pacer {
	if delay <= 0 {
		return &Pacer{lim: rate.NewLimiter(rate.Inf, 1)}
	}
	return &Pacer{lim: rate.NewLimiter(rate.Every(delay), 1)}
}

// Wait blocks until the next send is allowed or ctx is done.
func (p *Pacer) Wait(ctx context.Context) error {
	if p == nil || p.lim == nil {
		return nil
	}
	return p.lim.Wait(ctx)
}
