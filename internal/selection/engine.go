package selection

import (
	"errors"
	"math/rand"
	"strings"

	logx "snipcast/pkg/logx"
)

// ErrEmptyCorpus is returned when there is nothing to select from.
var ErrEmptyCorpus = errors.New("no snippets available for selection")

// Strategy controls how a tier fills the remaining slots.
type Strategy string

const (
	// StrategyFill takes candidates in pool order.
	StrategyFill Strategy = "fill"
	// StrategySample draws a uniform random sample from each tier.
	StrategySample Strategy = "sample"
)

// Tier identifies where a pick came from, in priority order.
type Tier int

const (
	TierPrimary Tier = iota + 1
	TierSecondary
	TierOther
	TierRecentPrimary
	TierRecentSecondary
	TierRecentOther
	TierCorpus
)

func (t Tier) String() string {
	switch t {
	case TierPrimary:
		return "primary"
	case TierSecondary:
		return "secondary"
	case TierOther:
		return "other"
	case TierRecentPrimary:
		return "recent_primary"
	case TierRecentSecondary:
		return "recent_secondary"
	case TierRecentOther:
		return "recent_other"
	case TierCorpus:
		return "corpus"
	default:
		return "unknown"
	}
}

// Pick is one selected snippet.
type Pick struct {
	Text string
	// Repeat is true when the snippet was sent within the recency window.
	Repeat bool
	Tier   Tier
}

// Input is everything one selection run needs.
type Input struct {
	// Categories is the alternating pair, e.g. {"allah_says", "knowing_allah"}.
	// Categories[0] is the start category when there is no prior history.
	Categories [2]string
	// LastCategory is the category committed by the previous run ("" if none).
	LastCategory string

	// Pools holds deduplicated snippets per category name, including Other.
	Pools map[string][]string
	// OtherCategory names the residual pool in Pools.
	OtherCategory string
	// Corpus is the full parsed, undeduplicated corpus (last-resort tier).
	Corpus []string

	// Recent reports whether a snippet was sent within the recency window.
	Recent func(text string) bool

	BatchSize int
	Strategy  Strategy
}

// Result is the ordered batch plus the category to commit.
type Result struct {
	Target string
	Picks  []Pick
	// Shortfall is BatchSize - len(Picks) when the corpus could not fill the batch.
	Shortfall int
	// Fallbacks lists every tier beyond the first that had to be engaged.
	Fallbacks []Tier
}

// Texts returns the raw snippet texts in batch order.
func (r Result) Texts() []string {
	out := make([]string, len(r.Picks))
	for i, p := range r.Picks {
		out[i] = p.Text
	}
	return out
}

// Display renders picks for delivery, prefixing repeats with label.
func (r Result) Display(label string) []string {
	out := make([]string, len(r.Picks))
	for i, p := range r.Picks {
		if p.Repeat && label != "" {
			out[i] = label + p.Text
			continue
		}
		out[i] = p.Text
	}
	return out
}

// Engine selects category-balanced, fresh batches.
//
// It holds an injected random source so runs are reproducible under test.
type Engine struct {
	rng *rand.Rand
	log logx.Logger
}

func New(rng *rand.Rand, log logx.Logger) *Engine {
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Engine{rng: rng, log: log}
}

// Target returns the category opposite to last; the start category when
// last is empty or unknown.
func Target(pair [2]string, last string) string {
	switch last {
	case pair[0]:
		return pair[1]
	case pair[1]:
		return pair[0]
	default:
		return pair[0]
	}
}

// Select builds one batch.
//
// Tiers are consulted in strict priority order, each only while the batch
// is short: fresh primary, fresh secondary, fresh other, then recent
// snippets in the same order, then any not-yet-picked snippet of the full
// corpus. The assembled batch is shuffled before it is returned.
func (e *Engine) Select(in Input) (Result, error) {
	if len(in.Corpus) == 0 && poolsEmpty(in.Pools) {
		return Result{}, ErrEmptyCorpus
	}
	k := in.BatchSize
	if k <= 0 {
		k = 1
	}
	recent := in.Recent
	if recent == nil {
		recent = func(string) bool { return false }
	}

	target := Target(in.Categories, in.LastCategory)
	secondary := in.Categories[1]
	if target == in.Categories[1] {
		secondary = in.Categories[0]
	}
	other := in.OtherCategory
	if other == "" {
		other = "other"
	}

	b := &batch{k: k, seen: make(map[string]bool, k)}
	ordered := []struct {
		tier   Tier
		pool   []string
		recent bool
	}{
		{TierPrimary, in.Pools[target], false},
		{TierSecondary, in.Pools[secondary], false},
		{TierOther, in.Pools[other], false},
		{TierRecentPrimary, in.Pools[target], true},
		{TierRecentSecondary, in.Pools[secondary], true},
		{TierRecentOther, in.Pools[other], true},
	}

	res := Result{Target: target}
	for _, t := range ordered {
		if b.full() {
			break
		}
		cands := make([]string, 0, len(t.pool))
		for _, s := range t.pool {
			if b.seen[s] || recent(s) != t.recent {
				continue
			}
			cands = append(cands, s)
		}
		if t.tier != TierPrimary {
			res.Fallbacks = append(res.Fallbacks, t.tier)
			e.log.Warn("selection falling back",
				logx.String("tier", t.tier.String()),
				logx.String("target", target),
				logx.Int("have", len(b.picks)),
				logx.Int("want", k),
				logx.Int("candidates", len(cands)),
			)
		}
		e.take(b, cands, t.tier, t.recent, in.Strategy)
	}

	if !b.full() {
		cands := make([]string, 0, len(in.Corpus))
		for _, s := range in.Corpus {
			if b.seen[s] {
				continue
			}
			cands = append(cands, s)
		}
		res.Fallbacks = append(res.Fallbacks, TierCorpus)
		e.log.Warn("selection allowing repeats from full corpus",
			logx.Int("have", len(b.picks)),
			logx.Int("want", k),
			logx.Int("candidates", len(cands)),
		)
		for _, s := range e.order(dedupTexts(cands), in.Strategy) {
			if b.full() {
				break
			}
			b.add(Pick{Text: s, Repeat: recent(s), Tier: TierCorpus})
		}
	}

	if len(b.picks) == 0 {
		return Result{}, ErrEmptyCorpus
	}

	e.rng.Shuffle(len(b.picks), func(i, j int) { b.picks[i], b.picks[j] = b.picks[j], b.picks[i] })
	res.Picks = b.picks
	res.Shortfall = k - len(b.picks)
	if res.Shortfall > 0 {
		e.log.Warn("selection shortfall: corpus has fewer distinct snippets than batch size",
			logx.Int("selected", len(b.picks)),
			logx.Int("want", k),
		)
	}
	return res, nil
}

func (e *Engine) take(b *batch, cands []string, tier Tier, repeat bool, st Strategy) {
	for _, s := range e.order(cands, st) {
		if b.full() {
			return
		}
		b.add(Pick{Text: s, Repeat: repeat, Tier: tier})
	}
}

// order returns cands as-is for fill, or a random permutation for sample.
func (e *Engine) order(cands []string, st Strategy) []string {
	if !strings.EqualFold(string(st), string(StrategySample)) || len(cands) < 2 {
		return cands
	}
	out := append([]string(nil), cands...)
	e.rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

type batch struct {
	k     int
	picks []Pick
	seen  map[string]bool
}

func (b *batch) full() bool { return len(b.picks) >= b.k }

func (b *batch) add(p Pick) {
	if b.seen[p.Text] {
		return
	}
	b.seen[p.Text] = true
	b.picks = append(b.picks, p)
}

func poolsEmpty(pools map[string][]string) bool {
	for _, p := range pools {
		if len(p) > 0 {
			return false
		}
	}
	return true
}

func dedupTexts(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0:0]
	for _, s := range in {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
