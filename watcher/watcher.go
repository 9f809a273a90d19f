// Package watcher hands files that appear in a directory to a handler once they stopped
// changing.
package watcher

import (
	"context"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/Project-Tango-for-Robotics/tango-to-bagfiles/logging"
	"github.com/Project-Tango-for-Robotics/tango-to-bagfiles/utils"
)

// A Handler processes one settled file. Handlers are called one at a time.
type Handler func(ctx context.Context, path string) error

// Config configures a Watcher.
type Config struct {
	Dir     string
	Pattern string
	// SettleDelay is how long a file must go without writes before it is handled.
	SettleDelay time.Duration
	// IncludeExisting queues the matching files already in Dir.
	IncludeExisting bool
	// Clock defaults to the wall clock.
	Clock clock.Clock
}

// Watcher watches one directory.
type Watcher struct {
	conf    Config
	handler Handler
	logger  logging.Logger

	fsw     *fsnotify.Watcher
	ticker  *clock.Ticker
	workers utils.StoppableWorkers

	mu      sync.Mutex
	pending map[string]time.Time
	handled map[string]bool

	closeOnce sync.Once
	closeErr  error
}

// New starts watching conf.Dir.
func New(conf Config, handler Handler, logger logging.Logger) (*Watcher, error) {
	if conf.Dir == "" {
		return nil, errors.New("watch directory is required")
	}
	if conf.Pattern == "" {
		conf.Pattern = "*"
	}
	if _, err := filepath.Match(conf.Pattern, ""); err != nil {
		return nil, errors.Wrapf(err, "invalid pattern %q", conf.Pattern)
	}
	if conf.SettleDelay <= 0 {
		return nil, errors.Errorf("settle delay must be positive, got %v", conf.SettleDelay)
	}
	if conf.Clock == nil {
		conf.Clock = clock.New()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(conf.Dir); err != nil {
		return nil, multierr.Combine(errors.Wrapf(err, "cannot watch %q", conf.Dir), fsw.Close())
	}

	w := &Watcher{
		conf:    conf,
		handler: handler,
		logger:  logger,
		fsw:     fsw,
		pending: map[string]time.Time{},
		handled: map[string]bool{},
	}
	if conf.IncludeExisting {
		existing, err := filepath.Glob(filepath.Join(conf.Dir, conf.Pattern))
		if err != nil {
			return nil, multierr.Combine(err, fsw.Close())
		}
		now := conf.Clock.Now()
		for _, path := range existing {
			w.pending[path] = now
		}
	}

	// poll often enough that a file is handled at most a quarter delay late
	poll := conf.SettleDelay / 4
	if poll <= 0 {
		poll = conf.SettleDelay
	}
	w.ticker = conf.Clock.Ticker(poll)
	w.workers = utils.NewStoppableWorkers(w.watchEvents, w.handleSettled)
	logger.Infow("watching for super frames", "dir", conf.Dir, "pattern", conf.Pattern, "settle_delay", conf.SettleDelay)
	return w, nil
}

func (w *Watcher) matches(path string) bool {
	ok, err := filepath.Match(w.conf.Pattern, filepath.Base(path))
	return err == nil && ok
}

func (w *Watcher) watchEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !w.matches(event.Name) {
				continue
			}
			w.mu.Lock()
			switch {
			case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
				if w.handled[event.Name] {
					w.logger.Warnw("file changed after it was handled", "path", event.Name)
					w.mu.Unlock()
					continue
				}
				w.pending[event.Name] = w.conf.Clock.Now()
			case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
				delete(w.pending, event.Name)
			}
			w.mu.Unlock()
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Errorw("error watching directory", "dir", w.conf.Dir, "error", err)
		}
	}
}

func (w *Watcher) handleSettled(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.ticker.C:
		}
		for _, path := range w.settled() {
			if ctx.Err() != nil {
				return
			}
			w.logger.Debugw("handling settled file", "path", path)
			if err := w.handler(ctx, path); err != nil {
				w.logger.Errorw("error handling file", "path", path, "error", err)
			}
		}
	}
}

// settled removes and returns, sorted, the pending files without writes for the settle delay.
func (w *Watcher) settled() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	now := w.conf.Clock.Now()
	var ready []string
	for path, last := range w.pending {
		if now.Sub(last) >= w.conf.SettleDelay {
			ready = append(ready, path)
		}
	}
	for _, path := range ready {
		delete(w.pending, path)
		w.handled[path] = true
	}
	sort.Strings(ready)
	return ready
}

// Pending returns how many files are waiting to settle.
func (w *Watcher) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}

// Close stops the workers and the directory watch. Files still settling are dropped.
func (w *Watcher) Close() error {
	w.closeOnce.Do(func() {
		w.workers.Stop()
		w.ticker.Stop()
		w.closeErr = w.fsw.Close()
	})
	return w.closeErr
}
