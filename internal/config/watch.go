package config

import (
	"context"
	"errors"
	"math/rand"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	logx "snipcast/pkg/logx"
)

const (
	watchRetryMin = 250 * time.Millisecond
	watchRetryMax = 5 * time.Second
)

// Watch reloads on changes to the config file until ctx is done. The
// directory is watched so editors that save by rename are seen. A failed
// watcher is recreated with jittered backoff. Without a file it only waits.
func (m *ConfigManager) Watch(ctx context.Context) error {
	if m.path == "" {
		<-ctx.Done()
		return nil
	}
	deb := &debouncer{delay: m.debounce, fn: func() { m.reload(ctx) }}
	defer deb.stop()

	retry := retryDelay{cur: watchRetryMin, rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
	dir := filepath.Dir(m.path)
	for {
		started, err := m.watchOnce(ctx, dir, filepath.Base(m.path), deb.kick)
		if ctx.Err() != nil {
			return nil
		}
		if started {
			retry.reset()
		}
		wait := retry.next()
		m.log.Warn("config watcher down; retrying", logx.String("dir", dir), logx.Duration("backoff", wait), logx.Err(err))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}

// watchOnce runs one fsnotify watcher until it breaks or ctx is done.
// started reports whether the watcher came up at all.
func (m *ConfigManager) watchOnce(ctx context.Context, dir, file string, changed func()) (started bool, err error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return false, err
	}
	defer w.Close()
	if err := w.Add(dir); err != nil {
		return false, err
	}
	m.log.Debug("config watcher started", logx.String("dir", dir), logx.String("file", file))

	const relevant = fsnotify.Write | fsnotify.Create | fsnotify.Rename | fsnotify.Remove
	for {
		select {
		case <-ctx.Done():
			return true, nil
		case ev, ok := <-w.Events:
			if !ok {
				return true, errors.New("event channel closed")
			}
			if ev.Op&relevant != 0 && strings.EqualFold(filepath.Base(ev.Name), file) {
				changed()
			}
		case werr, ok := <-w.Errors:
			if !ok {
				return true, errors.New("error channel closed")
			}
			if errors.Is(werr, fsnotify.ErrEventOverflow) {
				// Events were lost; the file may have changed.
				changed()
				continue
			}
			m.log.Warn("config watch error", logx.String("dir", dir), logx.Err(werr))
		}
	}
}

// debouncer runs fn once, delay after the last kick.
type debouncer struct {
	delay time.Duration
	fn    func()

	mu sync.Mutex
	t  *time.Timer
}

func (d *debouncer) kick() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.t == nil {
		d.t = time.AfterFunc(d.delay, d.fn)
		return
	}
	d.t.Reset(d.delay)
}

func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.t != nil {
		d.t.Stop()
	}
}

// retryDelay doubles up to watchRetryMax with up to 50% jitter.
type retryDelay struct {
	cur time.Duration
	rng *rand.Rand
}

func (r *retryDelay) reset() { r.cur = watchRetryMin }

func (r *retryDelay) next() time.Duration {
	wait := r.cur + time.Duration(r.rng.Int63n(int64(r.cur/2)+1))
	r.cur = min(r.cur*2, watchRetryMax)
	return wait
}
