package history

import (
	"sort"
	"strings"
	"time"
)

// legacyCategoryKey is the reserved key older flat history files used to
// smuggle the last category into the snippet map.
const legacyCategoryKey = "last_sent_type"

// Record is the persisted state of one stream: when each snippet was last
// sent and which category the last batch targeted.
type Record struct {
	Entries      map[string]time.Time
	LastCategory string
}

// Empty returns a Record with an initialized entry map.
func Empty() Record { return Record{Entries: map[string]time.Time{}} }

// Clone returns a deep copy of r.
func (r Record) Clone() Record {
	out := Record{Entries: make(map[string]time.Time, len(r.Entries)), LastCategory: r.LastCategory}
	for k, v := range r.Entries {
		out.Entries[k] = v
	}
	return out
}

// Prune keeps only entries sent within [now-window, now]. The last category
// is carried over unchanged and also returned separately.
func Prune(r Record, now time.Time, window time.Duration) (Record, string) {
	cutoff := now.Add(-window)
	out := Record{Entries: make(map[string]time.Time, len(r.Entries)), LastCategory: r.LastCategory}
	for k, at := range r.Entries {
		if at.IsZero() || at.Before(cutoff) || at.After(now) {
			continue
		}
		out.Entries[k] = at
	}
	return out, r.LastCategory
}

// IsRecent reports whether text is present in a pruned record.
func (r Record) IsRecent(text string) bool {
	_, ok := r.Entries[text]
	return ok
}

// Recent returns a predicate bound to r.
func (r Record) Recent() func(string) bool { return r.IsRecent }

// Commit returns pruned ∪ {selected → now} with LastCategory set.
// pruned is not modified.
func Commit(pruned Record, selected []string, category string, now time.Time) Record {
	out := pruned.Clone()
	for _, s := range selected {
		out.Entries[s] = now
	}
	out.LastCategory = category
	return out
}

// timeLayouts are tried in order; zone-less forms are read in local time,
// matching what naive ISO-8601 writers produce.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// ParseTimestamp parses an ISO-8601 timestamp.
func ParseTimestamp(raw string) (time.Time, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, false
	}
	for i, layout := range timeLayouts {
		var (
			t   time.Time
			err error
		)
		if i == 0 {
			t, err = time.Parse(layout, s)
		} else {
			t, err = time.ParseInLocation(layout, s, time.Local)
		}
		if err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// FormatTimestamp renders t as RFC 3339 with sub-second precision.
func FormatTimestamp(t time.Time) string { return t.Format(time.RFC3339Nano) }

// SortedKeys returns entry keys ordered by send time, newest first.
func (r Record) SortedKeys() []string {
	keys := make([]string, 0, len(r.Entries))
	for k := range r.Entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := r.Entries[keys[i]], r.Entries[keys[j]]
		if !a.Equal(b) {
			return a.After(b)
		}
		return keys[i] < keys[j]
	})
	return keys
}
