package ml

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/axsanchezgomez/BandersnatchStarter/logging"
)

// Watcher re-opens a model file whenever it is created or rewritten and
// hands the new Machine to onLoad. Files that fail to open are logged and
// skipped, so the caller keeps serving the previous model.
type Watcher struct {
	path   string
	onLoad func(*Machine)
	fs     *fsnotify.Watcher
}

// NewWatcher watches the directory holding path, since Save replaces the
// file by rename rather than writing it in place.
func NewWatcher(path string, onLoad func(*Machine)) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("ml: create watcher: %w", err)
	}
	if err := fs.Add(filepath.Dir(abs)); err != nil {
		fs.Close()
		return nil, fmt.Errorf("ml: watch %s: %w", filepath.Dir(abs), err)
	}
	return &Watcher{path: abs, onLoad: onLoad, fs: fs}, nil
}

// Run blocks until ctx is done or the underlying watcher fails.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fs.Close()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			w.reload()
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			logging.L().Warn("model watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) reload() {
	m, err := Open(w.path)
	if err != nil {
		logging.L().Warn("model reload failed", zap.String("path", w.path), zap.Error(err))
		return
	}
	logging.L().Info("model reloaded", zap.String("path", w.path), zap.String("info", m.Info()))
	w.onLoad(m)
}
