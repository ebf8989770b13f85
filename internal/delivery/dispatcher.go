// Package delivery fans a finished message out to every configured sender.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"snipcast/internal/transport"
	logx "snipcast/pkg/logx"
)

// Result is the outcome of one sender.
type Result struct {
	Sender string
	Err    error
	Took   time.Duration
}

// Report collects per-sender results of one dispatch.
type Report struct {
	Results []Result
}

// Failed returns the names of senders that returned an error.
func (r Report) Failed() []string {
	var out []string
	for _, res := range r.Results {
		if res.Err != nil {
			out = append(out, res.Sender)
		}
	}
	return out
}

// Err joins every sender error, or nil when all succeeded.
func (r Report) Err() error {
	var errs []error
	for _, res := range r.Results {
		if res.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", res.Sender, res.Err))
		}
	}
	return errors.Join(errs...)
}

// Dispatcher sends to each sender in turn. A failing sender is logged and
// recorded; it never stops the others.
type Dispatcher struct {
	senders []transport.Sender
	timeout time.Duration
	log     logx.Logger
}

// NewDispatcher returns a dispatcher; timeout bounds each sender (0 = none).
func NewDispatcher(senders []transport.Sender, timeout time.Duration, log logx.Logger) *Dispatcher {
	return &Dispatcher{senders: senders, timeout: timeout, log: log}
}

func (d *Dispatcher) Senders() []string {
	names := make([]string, 0, len(d.senders))
	for _, s := range d.senders {
		names = append(names, s.Name())
	}
	return names
}

func (d *Dispatcher) Deliver(ctx context.Context, msg transport.Message) Report {
	rep := Report{Results: make([]Result, 0, len(d.senders))}
	for _, s := range d.senders {
		res := d.one(ctx, s, msg)
		rep.Results = append(rep.Results, res)
		if res.Err != nil {
			d.log.Error("delivery failed", logx.String("transport", res.Sender), logx.Duration("took", res.Took), logx.Err(res.Err))
			continue
		}
		d.log.Info("delivered", logx.String("transport", res.Sender), logx.Duration("took", res.Took))
	}
	return rep
}

func (d *Dispatcher) one(ctx context.Context, s transport.Sender, msg transport.Message) (res Result) {
	res.Sender = s.Name()
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			res.Err = fmt.Errorf("panic: %v", r)
		}
		res.Took = time.Since(start)
	}()

	sctx := ctx
	if d.timeout > 0 {
		var cancel context.CancelFunc
		sctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}
	res.Err = s.Send(sctx, msg)
	return res
}
