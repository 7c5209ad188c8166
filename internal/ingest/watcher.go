// Package ingest watches a directory for board test logs and feeds them
// through the parse pipeline as they appear.
package ingest

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ict-visualizer/backend/internal/logger"
	"github.com/ict-visualizer/backend/internal/models"
	"github.com/ict-visualizer/backend/internal/parser"
	"github.com/ict-visualizer/backend/internal/session"
)

// Handler receives each successfully ingested board.
type Handler func(board *models.BoardLog, parseErrors []*models.ParseError)

// Config controls the auto-ingest watcher.
type Config struct {
	// Dir is the directory to watch. It must exist before Start.
	Dir string
	// DebounceDur is how long a path must stay quiet before it is ingested.
	// Testers write logs in bursts; the window coalesces those into one parse.
	DebounceDur time.Duration
	// Patterns are file name globs that select ingestable files.
	Patterns []string
}

// DefaultConfig returns the watcher defaults for a directory.
func DefaultConfig(dir string) Config {
	return Config{
		Dir:         dir,
		DebounceDur: 500 * time.Millisecond,
		Patterns:    []string{"*.log"},
	}
}

// Watcher ingests logs dropped into a directory. Create/write events are
// debounced per path, deduplicated by content hash, then parsed and handed
// to the handler.
type Watcher struct {
	cfg      Config
	registry *parser.Registry
	handler  Handler

	fsw    *fsnotify.Watcher
	mu     sync.Mutex
	timers map[string]*time.Timer
	seen   map[string]struct{}
	done   chan struct{}
	wg     sync.WaitGroup
}

// New builds a watcher. The handler may be nil, which makes the watcher
// parse-and-log only.
func New(cfg Config, registry *parser.Registry, handler Handler) (*Watcher, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("watch directory not configured")
	}
	if cfg.DebounceDur <= 0 {
		cfg.DebounceDur = DefaultConfig(cfg.Dir).DebounceDur
	}
	if len(cfg.Patterns) == 0 {
		cfg.Patterns = DefaultConfig(cfg.Dir).Patterns
	}
	return &Watcher{
		cfg:      cfg,
		registry: registry,
		handler:  handler,
		timers:   make(map[string]*time.Timer),
		seen:     make(map[string]struct{}),
	}, nil
}

// Start begins watching. It returns once the directory is registered.
func (w *Watcher) Start() error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := fsw.Add(w.cfg.Dir); err != nil {
		fsw.Close()
		return fmt.Errorf("failed to watch %s: %w", w.cfg.Dir, err)
	}

	w.fsw = fsw
	w.done = make(chan struct{})
	w.wg.Add(1)
	go w.loop()

	logger.Infof("watching %s for board logs (%v)", w.cfg.Dir, w.cfg.Patterns)
	return nil
}

// Stop cancels pending debounce timers and shuts the watcher down.
// It is safe to call before Start or more than once.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	for path, t := range w.timers {
		t.Stop()
		delete(w.timers, path)
	}
	w.mu.Unlock()

	if w.fsw == nil {
		return nil
	}
	close(w.done)
	err := w.fsw.Close()
	w.wg.Wait()
	w.fsw = nil
	return err
}

func (w *Watcher) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if !w.matches(filepath.Base(event.Name)) {
				continue
			}
			w.schedule(event.Name)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			logger.Warnf("watch error: %v", err)
		}
	}
}

func (w *Watcher) matches(name string) bool {
	for _, pattern := range w.cfg.Patterns {
		if ok, err := filepath.Match(pattern, name); err == nil && ok {
			return true
		}
	}
	return false
}

// schedule arms or resets the debounce timer for a path. The ingest fires
// only after the path has been quiet for the full window.
func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.timers[path]; ok {
		t.Reset(w.cfg.DebounceDur)
		return
	}
	w.timers[path] = time.AfterFunc(w.cfg.DebounceDur, func() {
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()
		w.ingest(path)
	})
}

func (w *Watcher) ingest(path string) {
	name := filepath.Base(path)

	key, err := session.FileKey(path)
	if err != nil {
		logger.Warnf("ingest %s: %v", name, err)
		return
	}

	// Hashes live for the process lifetime. A restart re-ingests, which the
	// archive's duplicate check absorbs.
	w.mu.Lock()
	if _, dup := w.seen[key]; dup {
		w.mu.Unlock()
		logger.Debugf("ingest %s: content already ingested, skipping", name)
		return
	}
	w.seen[key] = struct{}{}
	w.mu.Unlock()

	p, err := w.registry.FindParser(path)
	if err != nil {
		logger.Warnf("ingest %s: %v", name, err)
		return
	}

	board, parseErrors, err := p.Parse(path)
	if err != nil {
		logger.Errorf("ingest %s: %v", name, err)
		return
	}

	logger.Infof("ingested %s: %s board %s, %d tests, %d diagnostics",
		name, board.ProductID, board.DMC, len(board.Tests), len(parseErrors))

	if w.handler != nil {
		w.handler(board, parseErrors)
	}
}
