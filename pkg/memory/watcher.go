package memory

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// DocumentWatcher watches a drop directory and ingests documents that
// land in it. Writes are debounced per file so a document is only
// ingested once its writer has gone quiet.
type DocumentWatcher struct {
	watcher  *fsnotify.Watcher
	manager  *Manager
	logger   zerolog.Logger
	debounce time.Duration

	mu     sync.Mutex
	timers map[string]*time.Timer

	stopCh chan struct{}
}

// NewDocumentWatcher creates a watcher feeding the given manager.
func NewDocumentWatcher(manager *Manager, logger zerolog.Logger) (*DocumentWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	dw := &DocumentWatcher{
		watcher:  watcher,
		manager:  manager,
		logger:   logger.With().Str("component", "docwatcher").Logger(),
		debounce: 500 * time.Millisecond,
		timers:   make(map[string]*time.Timer),
		stopCh:   make(chan struct{}),
	}

	go dw.run()

	return dw, nil
}

// Watch starts watching a directory for dropped documents
func (dw *DocumentWatcher) Watch(path string) error {
	return dw.watcher.Add(path)
}

// Stop stops the watcher
func (dw *DocumentWatcher) Stop() error {
	close(dw.stopCh)
	return dw.watcher.Close()
}

func ingestable(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".txt", ".md":
		return true
	}
	return false
}

// run processes file system events
func (dw *DocumentWatcher) run() {
	for {
		select {
		case event, ok := <-dw.watcher.Events:
			if !ok {
				return
			}

			if !ingestable(event.Name) {
				continue
			}

			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				dw.logger.Debug().
					Str("file", filepath.Base(event.Name)).
					Str("op", event.Op.String()).
					Msg("Document change detected")

				dw.scheduleIngest(event.Name)
			}

		case err, ok := <-dw.watcher.Errors:
			if !ok {
				return
			}
			dw.logger.Error().Err(err).Msg("Document watcher error")

		case <-dw.stopCh:
			return
		}
	}
}

// scheduleIngest debounces ingestion per file path
func (dw *DocumentWatcher) scheduleIngest(path string) {
	dw.mu.Lock()
	defer dw.mu.Unlock()

	if timer, ok := dw.timers[path]; ok {
		timer.Stop()
	}

	dw.timers[path] = time.AfterFunc(dw.debounce, func() {
		dw.mu.Lock()
		delete(dw.timers, path)
		dw.mu.Unlock()

		if _, err := dw.manager.IngestFile(context.Background(), path); err != nil {
			dw.logger.Error().Err(err).Str("path", path).Msg("Failed to ingest dropped document")
		}
	})
}
