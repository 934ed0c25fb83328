// Package watch reruns work when a model file changes on disk.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

const DefaultDebounce = 300 * time.Millisecond

// Watcher calls onChange after writes to a single file settle. The parent
// directory is watched so editors that save by rename are also seen.
// Callbacks run on the goroutine calling Run, one at a time; writes made
// while a callback runs are reported once it returns.
type Watcher struct {
	path     string
	debounce time.Duration
	onChange func(path string)
	changes  atomic.Uint32
}

type Option func(*Watcher)

func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) { w.debounce = d }
}

func New(path string, onChange func(path string), opts ...Option) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(abs); err != nil {
		return nil, fmt.Errorf("watch: %w", err)
	}

	w := &Watcher{
		path:     abs,
		debounce: DefaultDebounce,
		onChange: onChange,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Run blocks until ctx is done or the underlying watcher fails.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: failed to create file watcher: %w", err)
	}
	defer fsw.Close()

	if err := fsw.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watch: failed to watch %s: %w", w.path, err)
	}
	slog.Debug("watching model file", "path", w.path)

	var (
		timer   *time.Timer
		settled <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-settled:
			settled = nil
			w.fire()

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			settled = timer.C

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			slog.Error("watcher error", "error", err)
		}
	}
}

func (w *Watcher) fire() {
	count := w.changes.Add(1)
	slog.Info("model file changed", "path", w.path, "count", count)
	w.onChange(w.path)
}

// Changes returns how many debounced changes have been reported.
func (w *Watcher) Changes() uint32 {
	return w.changes.Load()
}
