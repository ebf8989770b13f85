// Package pipeline runs one stream end to end: read the source, parse,
// categorize, select against history, commit, chunk and deliver.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math/rand"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"snipcast/internal/chunk"
	"snipcast/internal/config"
	"snipcast/internal/delivery"
	"snipcast/internal/history"
	"snipcast/internal/selection"
	"snipcast/internal/snippet"
	"snipcast/internal/transport"
	logx "snipcast/pkg/logx"
)

// ErrSourceMissing is returned when a stream's source file does not exist.
var ErrSourceMissing = errors.New("source file missing")

// Outcome describes one finished run.
type Outcome struct {
	RunID  string
	Stream string
	DryRun bool

	Total          int
	RecentExcluded int

	Target    string
	Picks     []selection.Pick
	Shortfall int
	Fallbacks []selection.Tier

	Body   string
	Chunks []string

	Committed bool
	Report    delivery.Report
}

// Runner executes stream runs. Runs of the same stream are serialized.
type Runner struct {
	sel  config.SelectionConfig
	hist config.HistoryConfig
	disp *delivery.Dispatcher

	rngMu sync.Mutex
	rng   *rand.Rand
	now   func() time.Time
	out   io.Writer
	log   logx.Logger

	locks *Locks
}

// Locks serializes runs per stream. Runners built from successive
// configurations share one Locks so a reload never overlaps a stream.
type Locks struct {
	mu sync.Mutex
	m  map[string]*sync.Mutex
}

func NewLocks() *Locks { return &Locks{m: map[string]*sync.Mutex{}} }

// Lock blocks until stream is free and returns its unlock func.
func (l *Locks) Lock(stream string) func() {
	l.mu.Lock()
	mu, ok := l.m[stream]
	if !ok {
		mu = &sync.Mutex{}
		l.m[stream] = mu
	}
	l.mu.Unlock()
	mu.Lock()
	return mu.Unlock
}

type Option func(*Runner)

// WithRand injects the random source used for dedup and shuffling.
func WithRand(rng *rand.Rand) Option { return func(r *Runner) { r.rng = rng } }

// WithClock injects the clock used for pruning and commit timestamps.
func WithClock(now func() time.Time) Option { return func(r *Runner) { r.now = now } }

// WithLocks shares per-stream run locks with other Runners.
func WithLocks(l *Locks) Option { return func(r *Runner) { r.locks = l } }

// WithOutput sets where the selected content is printed (default stdout).
func WithOutput(w io.Writer) Option { return func(r *Runner) { r.out = w } }

// New builds a Runner. disp may be nil, in which case runs select and
// commit but deliver nothing.
func New(cfg *config.Config, disp *delivery.Dispatcher, log logx.Logger, opts ...Option) *Runner {
	r := &Runner{
		sel:   cfg.Selection,
		hist:  cfg.History,
		disp:  disp,
		now:   time.Now,
		out:   logx.Stdout(),
		log:   log,
	}
	for _, o := range opts {
		o(r)
	}
	if r.rng == nil {
		r.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if r.locks == nil {
		r.locks = NewLocks()
	}
	return r
}

func (r *Runner) lock(stream string) func() { return r.locks.Lock(stream) }

func newRunID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Run executes one stream. Configuration, parse and empty-corpus errors are
// returned before history is touched. Delivery failures are reported in
// Outcome.Report and never returned: history is committed first.
func (r *Runner) Run(ctx context.Context, st config.Stream, dryRun bool) (Outcome, error) {
	unlock := r.lock(st.Name)
	defer unlock()

	oc := Outcome{RunID: newRunID(), Stream: st.Name, DryRun: dryRun}
	log := r.log.With(logx.String("stream", streamLabel(st.Name)), logx.String("run_id", oc.RunID))
	start := time.Now()

	corpus, err := r.readCorpus(st.Source)
	if err != nil {
		return oc, err
	}
	oc.Total = len(corpus)

	rules := r.rules()
	// The random source is shared across concurrent streams.
	r.rngMu.Lock()
	cats := snippet.Categorize(corpus, rules).Dedup(rules, r.sel.OtherDedup, r.rng)
	r.rngMu.Unlock()

	store, err := history.Open(r.storeConfig(st), log)
	if err != nil {
		return oc, fmt.Errorf("open history: %w", err)
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			log.Warn("history close failed", logx.Err(cerr))
		}
	}()

	rec, err := store.Load(ctx)
	if err != nil {
		log.Warn("history unreadable; starting empty", logx.Err(err))
		rec = history.Empty()
	}
	now := r.now()
	pruned, last := history.Prune(rec, now, st.Recency)
	for _, s := range corpus {
		if pruned.IsRecent(s) {
			oc.RecentExcluded++
		}
	}

	pools := make(map[string][]string, len(cats.Names()))
	for _, name := range cats.Names() {
		pools[name] = cats.Get(name)
	}
	log.Info("corpus loaded",
		logx.String("source", st.Source),
		logx.Int("total", oc.Total),
		logx.Int("recent_excluded", oc.RecentExcluded),
		logx.Int("available", oc.Total-oc.RecentExcluded),
		logx.String("last_category", last),
	)

	r.rngMu.Lock()
	res, err := selection.New(r.rng, log).Select(selection.Input{
		Categories:    r.pair(rules),
		LastCategory:  last,
		Pools:         pools,
		OtherCategory: snippet.Other,
		Corpus:        corpus,
		Recent:        pruned.Recent(),
		BatchSize:     st.BatchSize,
		Strategy:      selection.Strategy(r.sel.Strategy),
	})
	r.rngMu.Unlock()
	if err != nil {
		return oc, fmt.Errorf("select: %w", err)
	}
	oc.Target, oc.Picks, oc.Shortfall, oc.Fallbacks = res.Target, res.Picks, res.Shortfall, res.Fallbacks

	display := res.Display(st.RepeatLabel)
	oc.Body = chunk.Join(display, r.sel.Joiner)
	if st.Chunking {
		oc.Chunks = chunk.Pack(display, st.CharBudget, r.sel.Joiner)
	}
	log.Info("selection ready",
		logx.String("category", res.Target),
		logx.Int("snippets", len(res.Picks)),
		logx.Int("chunks", len(oc.Chunks)),
	)
	if _, err := fmt.Fprintln(r.out, oc.Body); err != nil {
		log.Warn("write selection output failed", logx.Err(err))
	}

	if dryRun {
		log.Info("dry run; history and delivery skipped", logx.Duration("took", time.Since(start)))
		return oc, nil
	}

	if err := store.Save(ctx, history.Commit(pruned, res.Texts(), res.Target, now)); err != nil {
		return oc, fmt.Errorf("commit history: %w", err)
	}
	oc.Committed = true
	log.Debug("history committed", logx.String("category", res.Target))

	if r.disp == nil || len(r.disp.Senders()) == 0 {
		log.Warn("no delivery adapters configured")
		return oc, nil
	}
	oc.Report = r.disp.Deliver(ctx, transport.Message{Subject: st.Subject, Body: oc.Body, Chunks: oc.Chunks})
	if failed := oc.Report.Failed(); len(failed) > 0 {
		log.Warn("run finished with delivery failures", logx.Strings("failed", failed), logx.Duration("took", time.Since(start)))
	} else {
		log.Info("run finished", logx.Duration("took", time.Since(start)))
	}
	return oc, nil
}

func (r *Runner) readCorpus(path string) ([]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrSourceMissing, path)
		}
		return nil, fmt.Errorf("read source %s: %w", path, err)
	}
	corpus, err := snippet.Parse(string(raw), snippet.ParseOptions{
		Separator:      r.sel.Separator,
		ExactSeparator: r.sel.ExactSeparator,
		Exclude:        r.sel.Exclude,
	})
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return corpus, nil
}

func (r *Runner) rules() []snippet.Rule {
	rules := make([]snippet.Rule, 0, len(r.sel.Categories))
	for _, c := range r.sel.Categories {
		rules = append(rules, snippet.Rule{Category: c.Name, Prefix: c.Prefix, Dedup: c.Dedup})
	}
	return rules
}

// pair returns the alternating categories with the start category first.
func (r *Runner) pair(rules []snippet.Rule) [2]string {
	var p [2]string
	if len(rules) > 0 {
		p[0] = rules[0].Category
	}
	if len(rules) > 1 {
		p[1] = rules[1].Category
	}
	if r.sel.StartCategory != "" && r.sel.StartCategory == p[1] {
		p[0], p[1] = p[1], p[0]
	}
	return p
}

func (r *Runner) storeConfig(st config.Stream) history.Config {
	hc := history.Config{
		Driver:      r.hist.Driver,
		Path:        st.History,
		Stream:      streamLabel(st.Name),
		BusyTimeout: config.DurationOr(r.hist.BusyTimeout, 0),
	}
	switch strings.ToLower(strings.TrimSpace(r.hist.Driver)) {
	case "sqlite", "sqlite3":
		hc.Path = r.hist.Path
	}
	return hc
}

func streamLabel(name string) string {
	if name == "" {
		return "default"
	}
	return name
}
