// Package scheduler triggers stream runs in daemon mode.
//
// Trigger only: each job runs its own pipeline; overlapping triggers of the
// same job are skipped while the previous run is still going.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "snipcast/pkg/logx"
)

// Job is one scheduled stream.
type Job struct {
	Name     string
	Schedule string
	Run      func(ctx context.Context) error
}

// Entry is the next planned trigger of a job.
type Entry struct {
	Name     string
	Schedule string
	Next     time.Time
}

type Service struct {
	mu     sync.Mutex
	parser cron.Parser
	c      *cron.Cron
	loc    *time.Location
	jobs   []Job
	ids    map[string]cron.EntryID
	ctx    context.Context
	log    logx.Logger
}

func New(log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		// SecondOptional allows both 5-field and 6-field (with seconds) cron specs.
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		loc:    time.Local,
		ids:    map[string]cron.EntryID{},
		ctx:    context.Background(),
		log:    log,
	}
}

// LoadLocation resolves a timezone name; empty means local time.
func LoadLocation(tz string) (*time.Location, error) {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return time.Local, nil
	}
	return time.LoadLocation(tz)
}

// Validate checks every job's schedule without applying anything.
func (s *Service) Validate(jobs []Job) error {
	var errs []error
	seen := map[string]bool{}
	for _, j := range jobs {
		if seen[j.Name] {
			errs = append(errs, fmt.Errorf("%s: duplicate job", j.Name))
		}
		seen[j.Name] = true
		if _, err := s.compile(j.Schedule); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", j.Name, err))
		}
	}
	return errors.Join(errs...)
}

func (s *Service) compile(raw string) (cron.Schedule, error) {
	spec, err := ParseSchedule(raw)
	if err != nil {
		return nil, err
	}
	sched, err := s.parser.Parse(spec.CronSpec())
	if err != nil {
		return nil, fmt.Errorf("invalid cron %q: %w", spec.CronSpec(), err)
	}
	return sched, nil
}

// Apply replaces the job set and timezone. On error the running set is
// left untouched.
func (s *Service) Apply(tz string, jobs []Job) error {
	loc, err := LoadLocation(tz)
	if err != nil {
		return fmt.Errorf("timezone: %w", err)
	}
	if err := s.Validate(jobs); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loc = loc
	s.jobs = append([]Job(nil), jobs...)
	if s.c != nil {
		s.restartLocked()
	}
	return nil
}

// Start begins triggering. Jobs receive ctx.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}
	s.ctx = ctx
	s.startLocked()
}

func (s *Service) startLocked() {
	clog := cronLogger{log: s.log}
	s.c = cron.New(
		cron.WithParser(s.parser),
		cron.WithLocation(s.loc),
		cron.WithChain(cron.Recover(clog), cron.SkipIfStillRunning(clog)),
	)
	s.ids = map[string]cron.EntryID{}
	for _, j := range s.jobs {
		sched, err := s.compile(j.Schedule)
		if err != nil {
			s.log.Warn("schedule skipped", logx.String("job", j.Name), logx.Err(err))
			continue
		}
		s.ids[j.Name] = s.c.Schedule(sched, s.wrap(j))
	}
	s.c.Start()
	s.log.Info("scheduler started", logx.String("tz", s.loc.String()), logx.Int("jobs", len(s.ids)))
}

func (s *Service) restartLocked() {
	old := s.c
	s.c = nil
	if old != nil {
		// Running jobs keep going; only triggering stops.
		old.Stop()
	}
	s.startLocked()
}

func (s *Service) wrap(j Job) cron.Job {
	ctx := s.ctx
	return cron.FuncJob(func() {
		start := time.Now()
		s.log.Info("scheduled run", logx.String("job", j.Name))
		if err := j.Run(ctx); err != nil {
			s.log.Error("scheduled run failed", logx.String("job", j.Name), logx.Duration("took", time.Since(start)), logx.Err(err))
			return
		}
		s.log.Debug("scheduled run finished", logx.String("job", j.Name), logx.Duration("took", time.Since(start)))
	})
}

// Entries returns the next trigger of each job, soonest first.
func (s *Service) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, 0, len(s.jobs))
	for _, j := range s.jobs {
		e := Entry{Name: j.Name, Schedule: j.Schedule}
		if s.c != nil {
			if id, ok := s.ids[j.Name]; ok {
				e.Next = s.c.Entry(id).Next
			}
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, k int) bool { return out[i].Next.Before(out[k].Next) })
	return out
}

// Stop stops triggering and waits for running jobs until ctx is done.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
	s.log.Info("scheduler stopped")
}

// cronLogger adapts logx to cron.Logger.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, kv ...interface{}) {
	l.log.Debug("cron: "+msg, kvFields(kv)...)
}

func (l cronLogger) Error(err error, msg string, kv ...interface{}) {
	l.log.Error("cron: "+msg, append(kvFields(kv), logx.Err(err))...)
}

func kvFields(kv []interface{}) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, logx.Any(fmt.Sprint(kv[i]), kv[i+1]))
	}
	return out
}
