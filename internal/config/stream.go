package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrStreamRequired is returned when several streams are configured and
	// no selector picks one.
	ErrStreamRequired = errors.New("stream selector required")
	// ErrUnknownStream is returned when the selector names none of the
	// configured streams.
	ErrUnknownStream = errors.New("unknown stream")
)

// Stream is one fully resolved pipeline configuration.
type Stream struct {
	Name    string
	Source  string
	History string

	BatchSize   int
	CharBudget  int
	Chunking    bool
	Recency     time.Duration
	Schedule    string
	Subject     string
	RepeatLabel string
}

// ResolveStream picks the stream named by selector.
//
// Without configured streams the selector derives the file pair
// notion_<NAME>.txt / sent_snippets_<NAME>.json, and no selector means
// notion.txt / sent_snippets.json. With exactly one configured stream the
// selector may be omitted.
func (c *Config) ResolveStream(selector string) (Stream, error) {
	name := strings.TrimSpace(selector)
	if name == "" {
		name = strings.TrimSpace(c.Stream)
	}

	if len(c.Streams) == 0 {
		sc := StreamConfig{Source: legacySource, History: legacyHistory}
		if name != "" {
			sc = StreamConfig{
				Source:  "notion_" + name + ".txt",
				History: "sent_snippets_" + name + ".json",
			}
		}
		return c.resolve(name, sc), nil
	}

	if name == "" {
		if len(c.Streams) > 1 {
			return Stream{}, fmt.Errorf("%w: configured streams are %s", ErrStreamRequired, strings.Join(c.StreamNames(), ", "))
		}
		name = c.StreamNames()[0]
	}
	sc, ok := c.Streams[name]
	if !ok {
		return Stream{}, fmt.Errorf("%w %q: configured streams are %s", ErrUnknownStream, name, strings.Join(c.StreamNames(), ", "))
	}
	if sc.Source == "" {
		sc.Source = "notion_" + name + ".txt"
	}
	if sc.History == "" {
		sc.History = "sent_snippets_" + name + ".json"
	}
	return c.resolve(name, sc), nil
}

func (c *Config) resolve(name string, sc StreamConfig) Stream {
	sel := c.Selection
	st := Stream{
		Name:        name,
		Source:      sc.Source,
		History:     sc.History,
		BatchSize:   sel.BatchSize,
		CharBudget:  sel.CharBudget,
		Chunking:    true,
		Recency:     time.Duration(sel.RecencyDays) * 24 * time.Hour,
		Schedule:    strings.TrimSpace(sc.Schedule),
		Subject:     c.Delivery.Email.Subject,
		RepeatLabel: sel.RepeatLabel,
	}
	if sc.BatchSize > 0 {
		st.BatchSize = sc.BatchSize
	}
	if sc.CharBudget != 0 {
		st.CharBudget = sc.CharBudget
	}
	if sc.Chunking != nil {
		st.Chunking = *sc.Chunking
	}
	if sc.Subject != "" {
		st.Subject = sc.Subject
	}
	return st
}

// Scheduled returns every configured stream that has a schedule, sorted by name.
func (c *Config) Scheduled() []Stream {
	var out []Stream
	for _, name := range c.StreamNames() {
		if strings.TrimSpace(c.Streams[name].Schedule) == "" {
			continue
		}
		st, err := c.ResolveStream(name)
		if err != nil {
			continue
		}
		out = append(out, st)
	}
	return out
}
