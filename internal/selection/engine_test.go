package selection

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"testing"
	"time"

	"snipcast/internal/history"
	logx "snipcast/pkg/logx"
)

var pair = [2]string{"allah_says", "knowing_allah"}

func newEngine(seed int64) *Engine {
	return New(rand.New(rand.NewSource(seed)), logx.Nop())
}

func gen(prefix string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("%s %02d", prefix, i)
	}
	return out
}

func corpus(pools map[string][]string) []string {
	var out []string
	for _, p := range pools {
		out = append(out, p...)
	}
	sort.Strings(out)
	return out
}

func countTier(r Result, tier Tier) int {
	n := 0
	for _, p := range r.Picks {
		if p.Tier == tier {
			n++
		}
	}
	return n
}

func TestTarget(t *testing.T) {
	t.Parallel()
	tests := []struct{ last, want string }{
		{"", "allah_says"},
		{"allah_says", "knowing_allah"},
		{"knowing_allah", "allah_says"},
		{"garbage", "allah_says"},
	}
	for _, tt := range tests {
		if got := Target(pair, tt.last); got != tt.want {
			t.Fatalf("Target(%q) = %q, want %q", tt.last, got, tt.want)
		}
	}
}

func TestSelectEmptyHistoryOnlyPrimary(t *testing.T) {
	t.Parallel()
	pools := map[string][]string{
		"allah_says":    gen("Allah says", 6),
		"knowing_allah": nil,
		"other":         nil,
	}
	res, err := newEngine(1).Select(Input{
		Categories: pair,
		Pools:      pools,
		Corpus:     corpus(pools),
		BatchSize:  5,
		Strategy:   StrategyFill,
	})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if res.Target != "allah_says" {
		t.Fatalf("Target = %q, want allah_says", res.Target)
	}
	if len(res.Picks) != 5 || countTier(res, TierPrimary) != 5 {
		t.Fatalf("want 5 primary picks, got %+v", res.Picks)
	}
	if res.Shortfall != 0 || len(res.Fallbacks) != 0 {
		t.Fatalf("unexpected shortfall/fallbacks: %d %v", res.Shortfall, res.Fallbacks)
	}
}

func TestSelectFallbackOrder(t *testing.T) {
	t.Parallel()
	pools := map[string][]string{
		"allah_says":    gen("A", 2),
		"knowing_allah": gen("K", 2),
		"other":         gen("O", 3),
	}
	recentSet := map[string]bool{"A 00": true, "K 01": true}
	res, err := newEngine(3).Select(Input{
		Categories: pair,
		Pools:      pools,
		Corpus:     corpus(pools),
		Recent:     func(s string) bool { return recentSet[s] },
		BatchSize:  6,
		Strategy:   StrategyFill,
	})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(res.Picks) != 6 {
		t.Fatalf("got %d picks, want 6", len(res.Picks))
	}
	want := map[Tier]int{TierPrimary: 1, TierSecondary: 1, TierOther: 3, TierRecentPrimary: 1}
	for tier, n := range want {
		if got := countTier(res, tier); got != n {
			t.Fatalf("tier %s: got %d picks, want %d (%+v)", tier, got, n, res.Picks)
		}
	}
	for _, p := range res.Picks {
		if p.Repeat != recentSet[p.Text] {
			t.Fatalf("pick %q Repeat=%v, want %v", p.Text, p.Repeat, recentSet[p.Text])
		}
	}
}

func TestSelectFreshTiersNeverRecent(t *testing.T) {
	t.Parallel()
	pools := map[string][]string{
		"allah_says":    gen("A", 10),
		"knowing_allah": gen("K", 10),
		"other":         gen("O", 10),
	}
	rec := history.Record{Entries: map[string]time.Time{}}
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, s := range corpus(pools) {
		if i%2 == 0 {
			rec.Entries[s] = now
		}
	}
	for seed := int64(0); seed < 10; seed++ {
		res, err := newEngine(seed).Select(Input{
			Categories: pair,
			Pools:      pools,
			Corpus:     corpus(pools),
			Recent:     rec.Recent(),
			BatchSize:  20,
			Strategy:   StrategySample,
		})
		if err != nil {
			t.Fatalf("Select: %v", err)
		}
		for _, p := range res.Picks {
			if p.Tier <= TierOther && rec.IsRecent(p.Text) {
				t.Fatalf("fresh tier %s picked recent snippet %q", p.Tier, p.Text)
			}
		}
	}
}

func TestSelectCorpusTierUsesUndeduplicated(t *testing.T) {
	t.Parallel()
	// Dedup kept one of two variants; the corpus tier may admit the other.
	pools := map[string][]string{
		"allah_says":    {"Title\nv1"},
		"knowing_allah": nil,
		"other":         nil,
	}
	res, err := newEngine(5).Select(Input{
		Categories: pair,
		Pools:      pools,
		Corpus:     []string{"Title\nv1", "Title\nv2"},
		BatchSize:  3,
	})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(res.Picks) != 2 {
		t.Fatalf("got %d picks, want 2", len(res.Picks))
	}
	if countTier(res, TierCorpus) != 1 {
		t.Fatalf("expected one corpus-tier pick, got %+v", res.Picks)
	}
	if res.Shortfall != 1 {
		t.Fatalf("Shortfall = %d, want 1", res.Shortfall)
	}
}

func TestSelectBatchSizeBound(t *testing.T) {
	t.Parallel()
	for total := 0; total <= 12; total++ {
		pools := map[string][]string{
			"allah_says":    gen("A", total/2),
			"knowing_allah": gen("K", total-total/2),
			"other":         nil,
		}
		res, err := newEngine(int64(total)).Select(Input{
			Categories: pair,
			Pools:      pools,
			Corpus:     corpus(pools),
			BatchSize:  5,
		})
		if total == 0 {
			if !errors.Is(err, ErrEmptyCorpus) {
				t.Fatalf("empty corpus: err = %v, want ErrEmptyCorpus", err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("total %d: %v", total, err)
		}
		want := min(5, total)
		if len(res.Picks) != want {
			t.Fatalf("total %d: got %d picks, want %d", total, len(res.Picks), want)
		}
		seen := map[string]bool{}
		for _, p := range res.Picks {
			if seen[p.Text] {
				t.Fatalf("total %d: %q picked twice", total, p.Text)
			}
			seen[p.Text] = true
		}
	}
}

func TestAlternationAcrossRuns(t *testing.T) {
	t.Parallel()
	pools := map[string][]string{
		"allah_says":    gen("A", 100),
		"knowing_allah": gen("K", 100),
		"other":         gen("O", 5),
	}
	eng := newEngine(11)
	now := time.Date(2025, 1, 1, 6, 0, 0, 0, time.UTC)
	rec := history.Empty()
	var prev string
	for run := 0; run < 8; run++ {
		pruned, last := history.Prune(rec, now, 7*24*time.Hour)
		res, err := eng.Select(Input{
			Categories:   pair,
			LastCategory: last,
			Pools:        pools,
			Corpus:       corpus(pools),
			Recent:       pruned.Recent(),
			BatchSize:    5,
			Strategy:     StrategySample,
		})
		if err != nil {
			t.Fatalf("run %d: %v", run, err)
		}
		if run > 0 && res.Target == prev {
			t.Fatalf("run %d: category %q repeated", run, res.Target)
		}
		if countTier(res, TierPrimary) != 5 {
			t.Fatalf("run %d: expected a full primary batch, got %+v", run, res.Picks)
		}
		rec = history.Commit(pruned, res.Texts(), res.Target, now)
		prev = res.Target
		now = now.Add(24 * time.Hour)
	}
}

func TestSelectShufflesBatch(t *testing.T) {
	t.Parallel()
	pools := map[string][]string{
		"allah_says":    gen("A", 3),
		"knowing_allah": gen("K", 3),
		"other":         nil,
	}
	orders := map[string]bool{}
	for seed := int64(0); seed < 20; seed++ {
		res, err := newEngine(seed).Select(Input{
			Categories: pair,
			Pools:      pools,
			Corpus:     corpus(pools),
			BatchSize:  6,
			Strategy:   StrategyFill,
		})
		if err != nil {
			t.Fatalf("Select: %v", err)
		}
		orders[fmt.Sprint(res.Texts())] = true
	}
	if len(orders) < 2 {
		t.Fatal("batch order never varied across seeds")
	}
}

func TestDisplayMarksRepeats(t *testing.T) {
	t.Parallel()
	r := Result{Picks: []Pick{{Text: "a"}, {Text: "b", Repeat: true}}}
	got := r.Display("Repeated this week: ")
	if got[0] != "a" || got[1] != "Repeated this week: b" {
		t.Fatalf("Display = %q", got)
	}
}
