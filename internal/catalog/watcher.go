package catalog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

const defaultDebounceDuration = 250 * time.Millisecond

// Watcher re-syncs the catalog whenever a matching file changes.
type Watcher struct {
	syncer           *Syncer
	pattern          *Pattern
	watcher          *fsnotify.Watcher
	debounceDuration time.Duration
	timer            *time.Timer
	mu               sync.Mutex
	ctx              context.Context
	cancel           context.CancelFunc
	wg               sync.WaitGroup

	// onSync is called after every re-sync; tests hook it.
	onSync func(*SyncResult, error)
}

func NewWatcher(syncer *Syncer, pattern string, debounce time.Duration) (*Watcher, error) {
	p, err := CompilePattern(pattern)
	if err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}

	if debounce <= 0 {
		debounce = defaultDebounceDuration
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Watcher{
		syncer:           syncer,
		pattern:          p,
		watcher:          watcher,
		debounceDuration: debounce,
		ctx:              ctx,
		cancel:           cancel,
	}, nil
}

// Start watches every directory under the pattern's base.
func (w *Watcher) Start() error {
	dirs, err := w.pattern.Dirs()
	if err != nil {
		return err
	}

	for _, dir := range dirs {
		if err := w.watcher.Add(dir); err != nil {
			return fmt.Errorf("adding watch for %s: %w", dir, err)
		}
	}

	w.wg.Add(1)
	go w.eventLoop()

	log.Info().
		Str("pattern", w.pattern.String()).
		Int("directories", len(dirs)).
		Msg("Watching template catalog")

	return nil
}

// Stop stops the watcher and waits for a pending sync to be dropped.
func (w *Watcher) Stop() error {
	w.cancel()
	w.wg.Wait()

	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()

	return w.watcher.Close()
}

func (w *Watcher) eventLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("Catalog watcher error")
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
		return
	}

	if event.Has(fsnotify.Create) {
		if dirs, err := subdirs(event.Name); err == nil {
			for _, dir := range dirs {
				_ = w.watcher.Add(dir)
			}
		}
	}

	if !w.pattern.Match(event.Name) {
		return
	}

	log.Debug().
		Str("file", event.Name).
		Str("op", event.Op.String()).
		Msg("Catalog file changed")

	w.debounceSync()
}

func (w *Watcher) debounceSync() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}

	w.timer = time.AfterFunc(w.debounceDuration, w.sync)
}

func (w *Watcher) sync() {
	if w.ctx.Err() != nil {
		return
	}

	defs, err := w.pattern.Load()
	var result *SyncResult
	if err == nil {
		result, err = w.syncer.Sync(w.ctx, defs)
	}
	if err != nil {
		log.Error().
			Err(err).
			Str("pattern", w.pattern.String()).
			Msg("Catalog re-sync failed")
	}

	if w.onSync != nil {
		w.onSync(result, err)
	}
}
