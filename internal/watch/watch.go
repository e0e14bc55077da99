// Package watch monitors a drop folder for assignment files. Dropping
// a YAML file into the folder queues it for a research run; invalid
// files surface as error events instead of being silently skipped.
package watch

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"prospector/internal/model"
)

// Event is one observed assignment drop. Either Assignment or Err is
// set, never both.
type Event struct {
	Path       string
	Assignment *model.Assignment
	Err        error
}

// Watcher turns filesystem events in a drop folder into assignment
// events
type Watcher struct {
	dir    string
	fsw    *fsnotify.Watcher
	events chan Event

	// settle is how long a file must be quiet before it is read.
	// Editors and scp produce bursts of partial writes.
	settle time.Duration

	mu      sync.Mutex
	pending map[string]*time.Timer
	wg      sync.WaitGroup
}

// New creates a watcher on dir, creating the directory if needed
func New(dir string) (*Watcher, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, err
	}

	return &Watcher{
		dir:     dir,
		fsw:     fsw,
		events:  make(chan Event, 8),
		settle:  200 * time.Millisecond,
		pending: make(map[string]*time.Timer),
	}, nil
}

// Events returns the assignment event stream. It is closed when Run
// returns.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Run processes filesystem events until ctx is cancelled. Existing
// files in the folder are picked up first, so assignments dropped
// while the watcher was down are not lost.
func (w *Watcher) Run(ctx context.Context) error {
	defer func() {
		w.fsw.Close()
		w.mu.Lock()
		for path, timer := range w.pending {
			if timer.Stop() {
				w.wg.Done()
			}
			delete(w.pending, path)
		}
		w.mu.Unlock()
		w.wg.Wait()
		close(w.events)
	}()

	// The initial scan goes through the same settle timer as live
	// events, so a file observed by both paths yields one event.
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if !entry.IsDir() && isAssignmentFile(entry.Name()) {
			w.schedule(ctx, filepath.Join(w.dir, entry.Name()))
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}
			if !isAssignmentFile(ev.Name) {
				continue
			}
			w.schedule(ctx, ev.Name)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			select {
			case w.events <- Event{Err: err}:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// schedule (re)arms the settle timer for a path so a burst of write
// events produces exactly one assignment event
func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if timer, ok := w.pending[path]; ok {
		timer.Reset(w.settle)
		return
	}
	w.wg.Add(1)
	w.pending[path] = time.AfterFunc(w.settle, func() {
		defer w.wg.Done()
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()
		w.emit(ctx, path)
	})
}

func (w *Watcher) emit(ctx context.Context, path string) {
	a, err := model.LoadAssignment(path)

	ev := Event{Path: path}
	if err != nil {
		ev.Err = err
	} else {
		ev.Assignment = a
	}

	select {
	case w.events <- ev:
	case <-ctx.Done():
	}
}

func isAssignmentFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}
