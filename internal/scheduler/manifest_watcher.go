package scheduler

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/satyamsundaram01/confsync/internal/logger"
)

// ManifestWatcher nudges the sync trigger when the cached manifest file
// changes, so a pushed manifest takes effect before the next tick. The
// periodic loop remains the source of truth; the watcher is best-effort.
type ManifestWatcher struct {
	path    string
	trigger chan<- struct{}
	logger  logger.Logger
	watcher *fsnotify.Watcher
	stopCh  chan struct{}
}

// NewManifestWatcher creates a watcher for the manifest path
func NewManifestWatcher(path string, trigger chan<- struct{}, log logger.Logger) *ManifestWatcher {
	return &ManifestWatcher{
		path:    path,
		trigger: trigger,
		logger:  log,
		stopCh:  make(chan struct{}),
	}
}

// Start begins watching. The parent directory is watched rather than the
// file itself so atomic replace (write to temp, rename over) is caught.
func (mw *ManifestWatcher) Start(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create manifest watcher: %w", err)
	}

	dir := filepath.Dir(mw.path)
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	mw.watcher = w

	go func() {
		for {
			select {
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if event.Name != mw.path {
					continue
				}
				if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) {
					continue
				}
				mw.logger.Info("manifest file changed, triggering sync",
					logger.String("op", event.Op.String()))
				select {
				case mw.trigger <- struct{}{}:
				default:
					// A cycle is already pending.
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				mw.logger.Warn("manifest watcher error", logger.Error(err))
			case <-mw.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	mw.logger.Info("manifest watcher started", logger.String("path", mw.path))
	return nil
}

// Stop stops the watcher
func (mw *ManifestWatcher) Stop() {
	close(mw.stopCh)
	if mw.watcher != nil {
		_ = mw.watcher.Close()
	}
}
