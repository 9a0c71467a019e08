// Package scanner walks the library tree and archives, dispatching files to
// the format parsers and emitting a typed event stream. Consumers decide
// what to do with discovered books; the scanner itself never mutates the
// catalog.
package scanner

import (
	"archive/zip"
	"bytes"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/robinjoseph08/golib/logger"
	"github.com/tinyopds/tinyopds/pkg/books"
	"github.com/tinyopds/tinyopds/pkg/epub"
	"github.com/tinyopds/tinyopds/pkg/fb2"
	"github.com/tinyopds/tinyopds/pkg/library"
)

// EventType discriminates scan events.
type EventType int

const (
	// BookFound carries a parsed, valid book.
	BookFound EventType = iota
	// InvalidBook names a file that parsed to an incomplete descriptor.
	InvalidBook
	// FileSkipped reports a file already present in the catalog.
	FileSkipped
	// ScanCompleted is the final event of every scan.
	ScanCompleted
)

// Event is one item of the scan stream. Within a single scan, events for a
// given file arrive in discovery order.
type Event struct {
	Type EventType
	Book *books.Book
	Path string
}

// Scanner statuses.
const (
	StatusIdle int32 = iota
	StatusScanning
	StatusStopped
)

// Scanner dispatches library files to the right parser. A single Scanner
// may run many scans over its lifetime; Stop cancels the one in flight.
type Scanner struct {
	lib    *library.Library
	parser *epub.Parser
	status atomic.Int32
	log    logger.Logger
}

// New creates a scanner over the given catalog.
func New(lib *library.Library, parser *epub.Parser) *Scanner {
	return &Scanner{
		lib:    lib,
		parser: parser,
		log:    logger.New(),
	}
}

// Status returns the current scan status.
func (s *Scanner) Status() int32 { return s.status.Load() }

// Stop cancels the scan in flight. In-flight parses complete; further
// enumeration stops.
func (s *Scanner) Stop() { s.status.Store(StatusStopped) }

// Scan walks root on a dedicated goroutine and returns the event stream.
// The channel is closed after ScanCompleted.
func (s *Scanner) Scan(root string, recursive bool) <-chan Event {
	s.status.Store(StatusScanning)
	events := make(chan Event, 64)
	go func() {
		defer close(events)
		s.scanDir(root, recursive, events)
		events <- Event{Type: ScanCompleted}
		s.status.CompareAndSwap(StatusScanning, StatusIdle)
	}()
	return events
}

// ScanFile scans a single file (used by the watcher) and returns its event
// stream.
func (s *Scanner) ScanFile(path string) <-chan Event {
	s.status.Store(StatusScanning)
	events := make(chan Event, 64)
	go func() {
		defer close(events)
		s.scanPath(path, events)
		events <- Event{Type: ScanCompleted}
		s.status.CompareAndSwap(StatusScanning, StatusIdle)
	}()
	return events
}

func (s *Scanner) scanDir(root string, recursive bool, events chan<- Event) {
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if s.status.Load() == StatusStopped {
			return filepath.SkipAll
		}
		if err != nil {
			s.log.Err(err).Warn("walk error", logger.Data{"path": path})
			return nil
		}
		if d.IsDir() {
			if !recursive && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		s.scanPath(path, events)
		return nil
	})
	if err != nil {
		s.log.Err(err).Warn("scan aborted", logger.Data{"root": root})
	}
}

func (s *Scanner) scanPath(path string, events chan<- Event) {
	name := strings.ToLower(filepath.Base(path))
	rel := s.relName(path)

	switch {
	case strings.HasSuffix(name, ".epub") || strings.Contains(name, ".fb2"):
		if s.lib.Contains(rel) {
			events <- Event{Type: FileSkipped, Path: rel}
			return
		}
		s.parseFile(path, rel, events)
	case strings.HasSuffix(name, ".zip"):
		s.scanZip(path, events)
	}
}

func (s *Scanner) parseFile(path, rel string, events chan<- Event) {
	f, err := os.Open(path)
	if err != nil {
		s.log.Err(err).Warn("open error", logger.Data{"path": path})
		events <- Event{Type: InvalidBook, Path: rel}
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		events <- Event{Type: InvalidBook, Path: rel}
		return
	}

	book := s.parse(f, rel)
	book.DocumentSize = uint32(info.Size())
	if !book.IsValid() {
		events <- Event{Type: InvalidBook, Path: rel}
		return
	}
	events <- Event{Type: BookFound, Book: book, Path: rel}
}

// scanZip opens an archive and feeds each accepted entry to the matching
// parser under the logical name "archive.zip@entry". An error on one entry
// does not abort the archive.
func (s *Scanner) scanZip(path string, events chan<- Event) {
	relArchive := s.relName(path)

	zr, err := zip.OpenReader(path)
	if err != nil {
		s.log.Err(err).Warn("archive open error", logger.Data{"path": path})
		events <- Event{Type: InvalidBook, Path: relArchive}
		return
	}
	defer zr.Close()

	for _, entry := range zr.File {
		if s.status.Load() == StatusStopped {
			return
		}
		name := strings.ToLower(entry.Name)
		if !strings.HasSuffix(name, ".epub") && !strings.Contains(name, ".fb2") {
			continue
		}

		rel := relArchive + "@" + filepath.ToSlash(entry.Name)
		if s.lib.Contains(rel) {
			events <- Event{Type: FileSkipped, Path: rel}
			continue
		}

		rc, err := entry.Open()
		if err != nil {
			s.log.Err(err).Warn("archive entry error", logger.Data{"entry": rel})
			events <- Event{Type: InvalidBook, Path: rel}
			continue
		}
		buf, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			events <- Event{Type: InvalidBook, Path: rel}
			continue
		}

		book := s.parse(bytes.NewReader(buf), rel)
		// The parser saw only a stream; size comes from the archive entry.
		book.DocumentSize = uint32(entry.UncompressedSize64)
		if !book.IsValid() {
			events <- Event{Type: InvalidBook, Path: rel}
			continue
		}
		events <- Event{Type: BookFound, Book: book, Path: rel}
	}
}

func (s *Scanner) parse(r io.Reader, rel string) *books.Book {
	if strings.HasSuffix(strings.ToLower(rel), ".epub") {
		return s.parser.Parse(r, rel)
	}
	return fb2.Parse(r, rel)
}

func (s *Scanner) relName(path string) string {
	rel, err := filepath.Rel(s.lib.Path(), path)
	if err != nil || strings.HasPrefix(rel, "..") {
		rel = path
	}
	return filepath.ToSlash(rel)
}
