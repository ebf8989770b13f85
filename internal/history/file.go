package history

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	logx "snipcast/pkg/logx"
)

// fileStore keeps a stream's Record in a single human-readable JSON file:
//
//	{
//	  "last_category": "allah_says",
//	  "entries": { "<snippet text>": "2025-01-02T06:00:00Z" }
//	}
//
// Flat legacy files (snippet text → timestamp plus the reserved
// "last_sent_type" key) are still accepted on load.
type fileStore struct {
	path string
	log  logx.Logger
}

type fileRecord struct {
	LastCategory string            `json:"last_category,omitempty"`
	Entries      map[string]string `json:"entries"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("history.path is required for file driver")
	}
	return &fileStore{path: path, log: log}, nil
}

func (s *fileStore) Close() error { return nil }

func (s *fileStore) Load(ctx context.Context) (Record, error) {
	_ = ctx
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Empty(), nil
		}
		return Empty(), fmt.Errorf("read history file: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return Empty(), nil
	}
	r, err := decodeFile(data)
	if err != nil {
		return Empty(), fmt.Errorf("%w: %s: %v", ErrCorrupt, s.path, err)
	}
	return r, nil
}

func decodeFile(data []byte) (Record, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return Record{}, err
	}

	r := Empty()
	if entries, ok := raw["entries"]; ok && isObject(entries) {
		var fr fileRecord
		if err := json.Unmarshal(data, &fr); err != nil {
			return Record{}, err
		}
		r.LastCategory = fr.LastCategory
		for k, v := range fr.Entries {
			// Unparseable timestamps stay as zero values; Prune drops them.
			at, _ := ParseTimestamp(v)
			r.Entries[k] = at
		}
		return r, nil
	}

	for k, v := range raw {
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			s = ""
		}
		if k == legacyCategoryKey {
			r.LastCategory = s
			continue
		}
		at, _ := ParseTimestamp(s)
		r.Entries[k] = at
	}
	return r, nil
}

func isObject(b json.RawMessage) bool {
	b = bytes.TrimSpace(b)
	return len(b) > 0 && b[0] == '{'
}

func (s *fileStore) Save(ctx context.Context, r Record) error {
	_ = ctx
	fr := fileRecord{LastCategory: r.LastCategory, Entries: make(map[string]string, len(r.Entries))}
	for k, at := range r.Entries {
		if at.IsZero() {
			continue
		}
		fr.Entries[k] = FormatTimestamp(at)
	}
	data, err := json.MarshalIndent(fr, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(s.path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create history dir: %w", err)
		}
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp history file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write history file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("sync history file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close history file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		s.log.Debug("history chmod failed", logx.Err(err))
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		cleanup()
		return fmt.Errorf("replace history file: %w", err)
	}
	s.log.Debug("history saved", logx.String("path", s.path), logx.Int("entries", len(fr.Entries)))
	return nil
}
