package position

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
)

// Watcher notices position files rewritten by another process sharing the
// data directory and publishes the new documents.
type Watcher struct {
	syncer  *Syncer
	watcher *fsnotify.Watcher
	files   map[string]Kind
	logger  *log.Logger
}

// NewWatcher starts watching the syncer's data directory.
func NewWatcher(syncer *Syncer, logger *log.Logger) (*Watcher, error) {
	if logger == nil {
		logger = log.Default()
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	dir := syncer.Store().Dir()
	if err := fw.Add(dir); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	files := make(map[string]Kind, len(Kinds))
	for _, k := range Kinds {
		files[filepath.Join(dir, k.File())] = k
	}

	return &Watcher{
		syncer:  syncer,
		watcher: fw,
		files:   files,
		logger:  logger,
	}, nil
}

// Run processes file events until ctx is done, then closes the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	w.logger.Info("Watching position files", "dir", w.syncer.Store().Dir())

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			kind, tracked := w.files[filepath.Clean(event.Name)]
			if !tracked {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			w.logger.Debug("fsnotify event", "file", event.Name, "event", event.Op)
			w.reload(ctx, kind)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Debug("fsnotify error", "error", err)
		}
	}
}

func (w *Watcher) reload(ctx context.Context, kind Kind) {
	doc, changed, err := w.syncer.Store().refresh(kind)
	if err != nil {
		// a writer may still be mid-rename; the next event retries
		w.logger.Debug("Skipping unreadable position file", "kind", kind, "error", err)
		return
	}
	if !changed {
		return
	}

	// the writer is responsible for its own relay
	if _, err := w.syncer.announce(ctx, doc, nil); err != nil {
		w.logger.Warn("Failed to publish external position change", "kind", kind, "error", err)
	}
}
