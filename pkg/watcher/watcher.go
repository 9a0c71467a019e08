// Package watcher observes the library root and feeds debounced filesystem
// changes into the catalog through a single serial consumer.
package watcher

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/tinyopds/tinyopds/pkg/library"
	"github.com/tinyopds/tinyopds/pkg/scanner"
)

const idleSleep = 100 * time.Millisecond

// Watcher debounces create/rename/delete events into Library add/delete
// calls. A rename is modeled as a delete of the renamed path; the consumer
// cancels it against any concurrent create of the same path.
type Watcher struct {
	lib *library.Library
	scn *scanner.Scanner
	fsw *fsnotify.Watcher
	log logger.Logger

	mu      sync.Mutex
	added   []string
	deleted []string

	// OnBookAdded and OnBookDeleted are optional notification hooks.
	OnBookAdded   func(path string)
	OnBookDeleted func(path string)

	shutdown chan struct{}
	done     chan struct{}
}

// New creates a watcher over the library root.
func New(lib *library.Library, scn *scanner.Scanner) *Watcher {
	return &Watcher{
		lib:      lib,
		scn:      scn,
		log:      logger.New(),
		shutdown: make(chan struct{}),
		done:     make(chan struct{}, 2),
	}
}

// Start begins watching the library root recursively and launches the
// consumer loop.
func (w *Watcher) Start() error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.WithStack(err)
	}
	w.fsw = fsw

	err = filepath.WalkDir(w.lib.Path(), func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		return fsw.Add(path)
	})
	if err != nil {
		fsw.Close()
		return errors.WithStack(err)
	}

	go w.watchLoop()
	go w.consumeLoop()
	return nil
}

// Stop terminates both loops and closes the filesystem watcher.
func (w *Watcher) Stop() {
	close(w.shutdown)
	if w.fsw != nil {
		w.fsw.Close()
	}
	<-w.done
	<-w.done
}

func (w *Watcher) watchLoop() {
	defer func() { w.done <- struct{}{} }()
	for {
		select {
		case <-w.shutdown:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Err(err).Warn("watcher error")
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	if ev.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.fsw.Add(ev.Name); err != nil {
				w.log.Err(err).Warn("watch subdirectory error", logger.Data{"path": ev.Name})
			}
			return
		}
	}

	if !acceptedExt(ev.Name) {
		return
	}

	switch {
	case ev.Op.Has(fsnotify.Create):
		w.enqueueAdd(ev.Name)
	case ev.Op.Has(fsnotify.Remove), ev.Op.Has(fsnotify.Rename):
		w.enqueueDelete(ev.Name)
	}
}

func (w *Watcher) enqueueAdd(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, p := range w.added {
		if p == path {
			return
		}
	}
	w.added = append(w.added, path)
}

func (w *Watcher) enqueueDelete(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, p := range w.deleted {
		if p == path {
			return
		}
	}
	w.deleted = append(w.deleted, path)
}

// consumeLoop drains the two queues serially: additions first, one per
// iteration, with busy files deferred to the tail; then deletions; then a
// short sleep when idle.
func (w *Watcher) consumeLoop() {
	defer func() { w.done <- struct{}{} }()
	for {
		select {
		case <-w.shutdown:
			return
		default:
		}

		if path, ok := w.popAdded(); ok {
			w.processAdd(path)
			continue
		}
		if path, ok := w.popDeleted(); ok {
			w.processDelete(path)
			continue
		}
		time.Sleep(idleSleep)
	}
}

// popAdded pops the head of the add queue. A path that is also pending
// deletion cancels out of both queues.
func (w *Watcher) popAdded() (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for len(w.added) > 0 {
		path := w.added[0]
		w.added = w.added[1:]
		if w.removePendingDeleteLocked(path) {
			continue
		}
		return path, true
	}
	return "", false
}

func (w *Watcher) popDeleted() (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.deleted) == 0 {
		return "", false
	}
	path := w.deleted[0]
	w.deleted = w.deleted[1:]
	return path, true
}

func (w *Watcher) removePendingDeleteLocked(path string) bool {
	for i, p := range w.deleted {
		if p == path {
			w.deleted = append(w.deleted[:i], w.deleted[i+1:]...)
			return true
		}
	}
	return false
}

func (w *Watcher) processAdd(path string) {
	// A file still being written is re-queued at the tail; the next loop
	// iteration gives the writer at least another 100 ms to finish.
	if fileBusy(path) {
		w.mu.Lock()
		w.added = append(w.added, path)
		w.mu.Unlock()
		time.Sleep(idleSleep)
		return
	}

	for ev := range w.scn.ScanFile(path) {
		if ev.Type != scanner.BookFound {
			continue
		}
		if w.lib.Add(ev.Book) {
			w.lib.Append(ev.Book)
			w.log.Info("book added", logger.Data{"file": ev.Book.FileName})
			if w.OnBookAdded != nil {
				w.OnBookAdded(ev.Book.FileName)
			}
		}
	}
}

func (w *Watcher) processDelete(path string) {
	if w.lib.Delete(path) {
		w.log.Info("book deleted", logger.Data{"path": path})
		if w.OnBookDeleted != nil {
			w.OnBookDeleted(path)
		}
	}
}

func acceptedExt(path string) bool {
	name := strings.ToLower(path)
	return strings.HasSuffix(name, ".zip") ||
		strings.HasSuffix(name, ".fb2") ||
		strings.HasSuffix(name, ".epub")
}

// fileBusy probes whether another process still holds the file open for
// writing. Best effort: an open error of any kind defers the file.
func fileBusy(path string) bool {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return !errors.Is(err, os.ErrNotExist)
	}
	f.Close()
	return false
}
