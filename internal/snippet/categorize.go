package snippet

import (
	"math/rand"
	"strings"
)

// Other is the residual category for snippets matching no rule.
const Other = "other"

// Rule assigns Category to snippets whose trimmed text starts with Prefix.
type Rule struct {
	Category string
	Prefix   string
	// Dedup collapses snippets sharing a first line within this category.
	Dedup bool
}

// Categories is an ordered partition of snippets by category name.
type Categories struct {
	order []string
	pools map[string][]string
}

// Categorize applies rules top-down; first match wins. Relative order is
// preserved inside each category. Every rule's category is present in the
// result (possibly empty), as is Other.
func Categorize(snippets []string, rules []Rule) Categories {
	c := Categories{pools: make(map[string][]string, len(rules)+1)}
	for _, r := range rules {
		c.add(r.Category)
	}
	c.add(Other)

	for _, s := range snippets {
		t := strings.TrimSpace(s)
		cat := Other
		for _, r := range rules {
			if r.Prefix != "" && strings.HasPrefix(t, r.Prefix) {
				cat = r.Category
				break
			}
		}
		c.pools[cat] = append(c.pools[cat], s)
	}
	return c
}

func (c *Categories) add(name string) {
	if _, ok := c.pools[name]; ok {
		return
	}
	c.order = append(c.order, name)
	c.pools[name] = nil
}

// Names returns category names in rule order, Other last.
func (c Categories) Names() []string { return append([]string(nil), c.order...) }

// Get returns the snippets of one category.
func (c Categories) Get(name string) []string { return c.pools[name] }

// Len returns the total number of snippets across categories.
func (c Categories) Len() int {
	n := 0
	for _, p := range c.pools {
		n += len(p)
	}
	return n
}

// Dedup returns a copy of c where every category with Dedup set in rules
// is reduced to one random representative per first line. otherDedup
// applies the same to the Other bucket.
func (c Categories) Dedup(rules []Rule, otherDedup bool, rng *rand.Rand) Categories {
	want := map[string]bool{Other: otherDedup}
	for _, r := range rules {
		if r.Dedup {
			want[r.Category] = true
		}
	}
	out := Categories{order: c.Names(), pools: make(map[string][]string, len(c.pools))}
	for _, name := range c.order {
		pool := c.pools[name]
		if want[name] {
			out.pools[name] = Dedup(pool, rng)
		} else {
			out.pools[name] = append([]string(nil), pool...)
		}
	}
	return out
}

// Dedup groups snippets by first line and keeps one uniformly random
// member of each group. Groups are emitted in order of first appearance.
func Dedup(snippets []string, rng *rand.Rand) []string {
	if len(snippets) == 0 {
		return nil
	}
	groups := make(map[string][]string, len(snippets))
	keys := make([]string, 0, len(snippets))
	for _, s := range snippets {
		k := FirstLine(s)
		if _, ok := groups[k]; !ok {
			keys = append(keys, k)
		}
		groups[k] = append(groups[k], s)
	}

	out := make([]string, 0, len(keys))
	for _, k := range keys {
		g := groups[k]
		if len(g) == 1 {
			out = append(out, g[0])
			continue
		}
		out = append(out, g[rng.Intn(len(g))])
	}
	return out
}
