package pipeline

import (
	"context"
	"fmt"

	"snipcast/internal/config"
	"snipcast/internal/history"
	logx "snipcast/pkg/logx"
)

// HistoryView is a stream's history as stored and as seen by the next run.
type HistoryView struct {
	Stored history.Record
	Pruned history.Record
}

// Stale is the number of stored entries the next run will drop.
func (v HistoryView) Stale() int { return len(v.Stored.Entries) - len(v.Pruned.Entries) }

// History loads a stream's history without modifying it.
func (r *Runner) History(ctx context.Context, st config.Stream) (HistoryView, error) {
	unlock := r.lock(st.Name)
	defer unlock()

	store, err := history.Open(r.storeConfig(st), r.log)
	if err != nil {
		return HistoryView{}, fmt.Errorf("open history: %w", err)
	}
	defer store.Close()

	rec, err := store.Load(ctx)
	if err != nil {
		r.log.Warn("history unreadable; showing empty", logx.String("stream", streamLabel(st.Name)), logx.Err(err))
		rec = history.Empty()
	}
	pruned, _ := history.Prune(rec, r.now(), st.Recency)
	return HistoryView{Stored: rec, Pruned: pruned}, nil
}

// PruneHistory persists the pruned history and returns how many entries
// were dropped. Nothing is written when nothing is stale.
func (r *Runner) PruneHistory(ctx context.Context, st config.Stream) (int, error) {
	unlock := r.lock(st.Name)
	defer unlock()

	store, err := history.Open(r.storeConfig(st), r.log)
	if err != nil {
		return 0, fmt.Errorf("open history: %w", err)
	}
	defer store.Close()

	rec, err := store.Load(ctx)
	if err != nil {
		r.log.Warn("history unreadable; rewriting empty", logx.String("stream", streamLabel(st.Name)), logx.Err(err))
		rec = history.Empty()
	}
	pruned, _ := history.Prune(rec, r.now(), st.Recency)
	removed := len(rec.Entries) - len(pruned.Entries)
	if removed == 0 && err == nil {
		return 0, nil
	}
	if err := store.Save(ctx, pruned); err != nil {
		return 0, fmt.Errorf("save history: %w", err)
	}
	return removed, nil
}
