package history

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	logx "snipcast/pkg/logx"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// sqliteStore keeps every stream's history in one database. Save replaces a
// stream's rows inside a single transaction.
type sqliteStore struct {
	db     *sql.DB
	log    logx.Logger
	stream string
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("history.path is required for sqlite driver")
	}
	stream := strings.TrimSpace(cfg.Stream)
	if stream == "" {
		stream = "default"
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()))
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if _, err := db.ExecContext(context.Background(), schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate history db: %w", err)
	}
	return &sqliteStore{db: db, log: log, stream: stream}, nil
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) Load(ctx context.Context) (Record, error) {
	r := Empty()

	err := s.db.QueryRowContext(ctx,
		`SELECT last_category FROM history_streams WHERE stream = ?`, s.stream,
	).Scan(&r.LastCategory)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return Empty(), fmt.Errorf("load history stream: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT snippet, sent_at FROM history_entries WHERE stream = ?`, s.stream,
	)
	if err != nil {
		return Empty(), fmt.Errorf("load history entries: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var text, at string
		if err := rows.Scan(&text, &at); err != nil {
			return Empty(), fmt.Errorf("%w: scan entry: %v", ErrCorrupt, err)
		}
		ts, _ := ParseTimestamp(at)
		r.Entries[text] = ts
	}
	if err := rows.Err(); err != nil {
		return Empty(), fmt.Errorf("load history entries: %w", err)
	}
	return r, nil
}

func (s *sqliteStore) Save(ctx context.Context, r Record) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM history_entries WHERE stream = ?`, s.stream); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO history_entries(stream, snippet, sent_at) VALUES(?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	n := 0
	for text, at := range r.Entries {
		if at.IsZero() {
			continue
		}
		if _, err = stmt.ExecContext(ctx, s.stream, text, FormatTimestamp(at)); err != nil {
			return err
		}
		n++
	}
	if _, err = tx.ExecContext(ctx,
		`INSERT INTO history_streams(stream, last_category, updated_at) VALUES(?,?,?)
		 ON CONFLICT(stream) DO UPDATE SET last_category=excluded.last_category, updated_at=excluded.updated_at`,
		s.stream, r.LastCategory, FormatTimestamp(time.Now()),
	); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return err
	}
	s.log.Debug("history saved", logx.String("stream", s.stream), logx.Int("entries", n))
	return nil
}
