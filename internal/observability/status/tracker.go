package status

import (
	"sort"
	"sync"
	"time"
)

// Run is the last known result of one stream.
type Run struct {
	Stream    string    `json:"stream"`
	RunID     string    `json:"run_id,omitempty"`
	At        time.Time `json:"at"`
	Took      string    `json:"took"`
	Category  string    `json:"category,omitempty"`
	Snippets  int       `json:"snippets"`
	Shortfall int       `json:"shortfall,omitempty"`
	Committed bool      `json:"committed"`
	Failed    []string  `json:"failed_adapters,omitempty"`
	Err       string    `json:"error,omitempty"`
}

// Planned is the next trigger of a scheduled stream.
type Planned struct {
	Stream   string    `json:"stream"`
	Schedule string    `json:"schedule"`
	Next     time.Time `json:"next"`
}

// Tracker keeps the last run per stream. A nil Tracker ignores records.
type Tracker struct {
	mu      sync.RWMutex
	started time.Time
	last    map[string]Run
	runs    uint64
	failed  uint64
}

func NewTracker(started time.Time) *Tracker {
	return &Tracker{started: started, last: map[string]Run{}}
}

func (t *Tracker) Record(r Run) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.last[r.Stream] = r
	t.runs++
	if r.Err != "" || len(r.Failed) > 0 {
		t.failed++
	}
}

// Last returns the last run of every stream, by stream name.
func (t *Tracker) Last() []Run {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Run, 0, len(t.last))
	for _, r := range t.last {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Stream < out[j].Stream })
	return out
}

// Snapshot is the /status document.
type Snapshot struct {
	Started time.Time `json:"started"`
	Uptime  string    `json:"uptime"`
	Runs    uint64    `json:"runs"`
	Failed  uint64    `json:"runs_with_failures"`
	Next    []Planned `json:"next"`
	Last    []Run     `json:"last"`
}

func (t *Tracker) snapshot(now time.Time, next []Planned) Snapshot {
	last := t.Last()
	t.mu.RLock()
	defer t.mu.RUnlock()
	if next == nil {
		next = []Planned{}
	}
	return Snapshot{
		Started: t.started,
		Uptime:  now.Sub(t.started).Truncate(time.Second).String(),
		Runs:    t.runs,
		Failed:  t.failed,
		Next:    next,
		Last:    last,
	}
}
