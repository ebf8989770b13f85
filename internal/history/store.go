package history

import (
	"context"
	"errors"
	"strings"
	"time"

	logx "snipcast/pkg/logx"
)

// ErrCorrupt marks persisted history that could not be decoded. Callers
// recover by starting from an empty Record.
var ErrCorrupt = errors.New("history corrupt")

// Store persists one stream's Record.
//
// Load returns an empty Record (and a nil error) when nothing has been
// persisted yet. Save must be atomic: a concurrent reader sees either the
// previous or the new Record, never a partial one.
//
// Stores assume a single writer per stream; concurrent runs of the same
// stream must be serialized by the caller.
type Store interface {
	Load(ctx context.Context) (Record, error)
	Save(ctx context.Context, r Record) error
	Close() error
}

// Config selects and configures a Store.
//
// Driver values:
//   - "file" (default): one JSON file per stream at Path
//   - "sqlite": shared SQLite database at Path, rows keyed by Stream
type Config struct {
	Driver      string
	Path        string
	Stream      string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "file", "json":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown history driver: " + driver)
	}
}
