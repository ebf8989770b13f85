package snippet

import (
	"errors"
	"strings"
)

// DefaultSeparator is the line token that delimits snippets in a source file.
const DefaultSeparator = ".."

// ErrNoSnippets is returned when a source yields no usable snippet after
// splitting and exclusion. Selection cannot proceed without data.
var ErrNoSnippets = errors.New("no snippets found (check that the source contains '..' separator lines)")

// ParseOptions controls how raw text is split.
type ParseOptions struct {
	// Separator is the line token; defaults to "..".
	Separator string
	// ExactSeparator disables whitespace trimming when matching a separator
	// line: only a line byte-equal to Separator counts (".. " does not).
	ExactSeparator bool
	// Exclude drops every snippet containing this substring. Empty disables it.
	Exclude string
}

// Parse splits raw text into trimmed snippets.
//
// Line endings are normalized to "\n". A separator line closes the current
// block; empty blocks are discarded. Lines merely containing the token are
// ordinary content.
func Parse(raw string, opt ParseOptions) ([]string, error) {
	sep := opt.Separator
	if sep == "" {
		sep = DefaultSeparator
	}

	text := strings.ReplaceAll(raw, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	var (
		out     []string
		current []string
	)
	flush := func() {
		if len(current) == 0 {
			return
		}
		s := strings.TrimSpace(strings.Join(current, "\n"))
		if s != "" {
			out = append(out, s)
		}
		current = current[:0]
	}

	for _, line := range strings.Split(text, "\n") {
		if isSeparator(line, sep, opt.ExactSeparator) {
			flush()
			continue
		}
		current = append(current, line)
	}
	flush()

	if opt.Exclude != "" {
		kept := out[:0]
		for _, s := range out {
			if strings.Contains(s, opt.Exclude) {
				continue
			}
			kept = append(kept, s)
		}
		out = kept
	}

	if len(out) == 0 {
		return nil, ErrNoSnippets
	}
	return out, nil
}

func isSeparator(line, sep string, exact bool) bool {
	if exact {
		return line == sep
	}
	return strings.TrimSpace(line) == sep
}

// FirstLine returns the first line of a trimmed snippet.
func FirstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}
