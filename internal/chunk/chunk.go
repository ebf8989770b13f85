// Package chunk packs selected snippets into delivery-sized messages.
package chunk

import (
	"strings"
	"unicode/utf8"
)

// DefaultSeparator joins packed snippets.
const DefaultSeparator = "\n\n---\nIn other news...\n\n"

// DefaultBudget fits under common chat webhook message limits.
const DefaultBudget = 1900

// Len is the length measure used for budgets: Unicode code points, which is
// what chat services count against their limits.
func Len(s string) int { return utf8.RuneCountInString(s) }

// Pack greedily fills chunks in order. A snippet joins the current chunk
// while the chunk stays within budget; otherwise it starts a new chunk. A
// snippet longer than budget becomes its own oversized chunk rather than
// being truncated. budget <= 0 disables splitting.
func Pack(snippets []string, budget int, sep string) []string {
	if len(snippets) == 0 {
		return nil
	}
	if budget <= 0 {
		return []string{strings.Join(snippets, sep)}
	}

	sepLen := Len(sep)
	var (
		out     []string
		cur     strings.Builder
		curLen  int
		curSize int
	)
	closeChunk := func() {
		if curSize == 0 {
			return
		}
		out = append(out, cur.String())
		cur.Reset()
		curLen, curSize = 0, 0
	}

	for _, s := range snippets {
		n := Len(s)
		extra := n
		if curSize > 0 {
			extra += sepLen
		}
		if curSize > 0 && curLen+extra > budget {
			closeChunk()
			extra = n
		}
		if curSize > 0 {
			cur.WriteString(sep)
		}
		cur.WriteString(s)
		curLen += extra
		curSize++
	}
	closeChunk()
	return out
}

// Join is the unchunked form used by whole-message transports such as email.
func Join(snippets []string, sep string) string { return strings.Join(snippets, sep) }
