// Package outputwatch watches the worker stdout-capture directory and emits
// a debounced signal whenever a worker's persisted output file is written
// to. It exists purely as an operator-facing diagnostic: it tells a CLI or
// dashboard "something just landed on disk", it never feeds the event core
// or the registry's own completion detection, which comes from the
// subprocess's own exit status, not from the filesystem.
package outputwatch

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/worklet/fleet/internal/common/logger"
)

// Watcher monitors a worker output directory for writes, debouncing bursts
// of writes to the same file into a single notification.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	dir       string
	debounce  time.Duration
	onChange  chan string
	done      chan struct{}
	log       *logger.Logger
}

// Config holds watcher configuration options.
type Config struct {
	OutputDir   string
	DebounceDur time.Duration
}

// DefaultConfig returns sensible defaults for a given output directory.
func DefaultConfig(outputDir string) Config {
	return Config{OutputDir: outputDir, DebounceDur: 150 * time.Millisecond}
}

// New creates a watcher for cfg.OutputDir.
func New(cfg Config) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("outputwatch: create fsnotify watcher: %w", err)
	}
	return &Watcher{
		fsWatcher: fsw,
		dir:       cfg.OutputDir,
		debounce:  cfg.DebounceDur,
		onChange:  make(chan string, 16),
		done:      make(chan struct{}),
		log:       logger.Default(),
	}, nil
}

// Start begins watching the output directory. The returned channel receives
// the worker ID (derived from the "<workerID>.stdout" filename) each time
// that worker's output file settles after a burst of writes.
func (w *Watcher) Start() (<-chan string, error) {
	if err := w.fsWatcher.Add(w.dir); err != nil {
		return nil, fmt.Errorf("outputwatch: watch directory %s: %w", w.dir, err)
	}
	go w.loop()
	return w.onChange, nil
}

// Stop terminates the watcher.
func (w *Watcher) Stop() error {
	close(w.done)
	return w.fsWatcher.Close()
}

func (w *Watcher) loop() {
	timers := make(map[string]*time.Timer)
	fire := make(chan string, 16)

	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if !isRelevant(event) {
				continue
			}
			workerID := workerIDFromPath(event.Name)
			if workerID == "" {
				continue
			}
			if t, exists := timers[workerID]; exists {
				t.Stop()
			}
			timers[workerID] = time.AfterFunc(w.debounce, func() {
				select {
				case fire <- workerID:
				default:
				}
			})

		case workerID := <-fire:
			select {
			case w.onChange <- workerID:
			default:
			}

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("output watcher error: " + err.Error())

		case <-w.done:
			for _, t := range timers {
				t.Stop()
			}
			return
		}
	}
}

func isRelevant(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return false
	}
	return strings.HasSuffix(event.Name, ".stdout")
}

func workerIDFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, ".stdout")
}
