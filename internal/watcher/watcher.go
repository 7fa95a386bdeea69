// Package watcher keeps the index in sync with the data directory.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/quokkadev/opsrag/internal/extract"
	"github.com/quokkadev/opsrag/internal/fileid"
	"github.com/quokkadev/opsrag/internal/ingest"
	"github.com/quokkadev/opsrag/internal/storage"
)

// Editors fire bursts of write events per save; coalesce them.
const debounceDelay = 400 * time.Millisecond

// Watcher re-ingests files as they change on disk.
type Watcher struct {
	dir      string
	ingestor *ingest.Ingestor
	store    storage.Storage
	logger   *zap.Logger

	mu      sync.Mutex
	pending map[string]*time.Timer
}

func New(dir string, ingestor *ingest.Ingestor, store storage.Storage, logger *zap.Logger) *Watcher {
	return &Watcher{
		dir:      dir,
		ingestor: ingestor,
		store:    store,
		logger:   logger,
		pending:  make(map[string]*time.Timer),
	}
}

// Run performs an initial sync, then processes filesystem events until ctx is
// cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	if _, err := w.ingestor.IngestDirectory(ctx, w.dir); err != nil {
		w.logger.Warn("initial directory sync failed", zap.Error(err))
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}
	w.logger.Info("watching directory", zap.String("dir", w.dir))

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ctx, event)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", zap.Error(err))
		}
	}
}

func (w *Watcher) handleEvent(ctx context.Context, event fsnotify.Event) {
	name := filepath.Base(event.Name)
	if strings.HasPrefix(name, ".") || !extract.Supported(filepath.Ext(name)) {
		return
	}

	switch {
	case event.Op&(fsnotify.Create|fsnotify.Write) != 0:
		w.scheduleIngest(ctx, event.Name)
	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		w.cancelPending(event.Name)
		w.removeFile(ctx, event.Name)
	}
}

// scheduleIngest (re)arms the debounce timer for path.
func (w *Watcher) scheduleIngest(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.pending[path]; ok {
		t.Stop()
	}
	w.pending[path] = time.AfterFunc(debounceDelay, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()

		if ctx.Err() != nil {
			return
		}
		_, skipped, err := w.ingestor.IngestFile(ctx, path)
		if err != nil {
			w.logger.Warn("failed to ingest changed file",
				zap.String("path", path), zap.Error(err))
			return
		}
		if !skipped {
			w.logger.Info("re-indexed changed file", zap.String("path", path))
		}
	})
}

func (w *Watcher) cancelPending(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok {
		t.Stop()
		delete(w.pending, path)
	}
}

func (w *Watcher) removeFile(ctx context.Context, path string) {
	docID := fileid.FileDocID(path)
	if err := w.ingestor.DeleteDocument(ctx, docID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return
		}
		w.logger.Warn("failed to remove deleted file from index",
			zap.String("path", path), zap.Error(err))
		return
	}
	w.logger.Info("removed deleted file from index", zap.String("path", path))
}
