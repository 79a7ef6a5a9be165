package watchdog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

type WatchDogFactory struct {
	logger *zap.Logger
}

// Filter reports whether a created file should be forwarded.
type Filter func(path string) bool

type WatchDog struct {
	watchCtx   context.Context
	notifyChan chan<- string
	filter     Filter
	logger     *zap.Logger

	watcher *fsnotify.Watcher
}

func NewWatchDogFactory(logger *zap.Logger) *WatchDogFactory {
	return &WatchDogFactory{
		logger: logger,
	}
}

// New starts a WatchDog that sends the path of every file created in a
// watched directory to notifyChan.
//
// - `watchCtx` bounds the watcher. Once it is done the watcher stops and notifyChan is closed.
//
// - `filter` drops paths it returns false for. A nil filter forwards everything.
func (w *WatchDogFactory) New(watchCtx context.Context, notifyChan chan<- string, filter Filter) (*WatchDog, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	watchDog := &WatchDog{
		watchCtx,
		notifyChan,
		filter,
		w.logger,
		watcher,
	}

	go watchDog.watch()

	return watchDog, nil
}

// AddDir adds an existing directory to the watch list.
func (w *WatchDog) AddDir(dir string) error {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("failed to get absolute path of %s: %w", dir, err)
	}
	if _, err := os.Stat(absDir); err != nil {
		return fmt.Errorf("failed to stat watched dir: %w", err)
	}
	if err := w.watcher.Add(absDir); err != nil {
		return fmt.Errorf("failed to add %s to watcher: %w", absDir, err)
	}
	w.logger.Debug("Added directory to watch list", zap.String("dir", absDir))
	return nil
}

func (w *WatchDog) watch() {
	defer w.watcher.Close()
	defer close(w.notifyChan)
	for {
		select {
		case <-w.watchCtx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				w.logger.Debug("fsnotify channel closed")
				return
			}
			if !w.handleEvent(event) {
				return
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				w.logger.Debug("fsnotify error channel closed")
				return
			}
			w.logger.Error("fsnotify error", zap.Error(err))
		}
	}
}

// handleEvent returns false once the watch context is done.
func (w *WatchDog) handleEvent(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Create) {
		return true
	}
	if w.filter != nil && !w.filter(event.Name) {
		w.logger.Debug("File ignored by filter", zap.String("file", event.Name))
		return true
	}
	select {
	case w.notifyChan <- event.Name:
		w.logger.Debug("File added to notify channel", zap.String("file", event.Name))
		return true
	case <-w.watchCtx.Done():
		return false
	}
}
