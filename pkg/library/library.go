// Package library owns the in-memory book catalog and its on-disk binary
// log. All operations on the two indexes run under a single mutex.
package library

import (
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/robinjoseph08/golib/logger"
	"github.com/tinyopds/tinyopds/pkg/books"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Library is the process-wide catalog. It maintains two indexes kept in
// lockstep: books by ID and IDs by relative file name.
type Library struct {
	mu    sync.Mutex
	books map[string]*books.Book
	paths map[string]string

	fb2Count  int
	epubCount int
	isChanged bool

	libraryPath  string
	databasePath string

	collator *collate.Collator
	log      logger.Logger
}

// New creates a catalog rooted at libraryPath. The database file name is
// derived from the library path, so switching libraries switches databases.
// Russian collation is used for enumerations when russian is set.
func New(libraryPath, dataDir string, russian bool) *Library {
	tag := language.Und
	if russian {
		tag = language.Russian
	}
	return &Library{
		books:        map[string]*books.Book{},
		paths:        map[string]string{},
		libraryPath:  libraryPath,
		databasePath: filepath.Join(dataDir, books.NameID(libraryPath)+".db"),
		collator:     collate.New(tag),
		log:          logger.New(),
	}
}

// Path returns the library root.
func (l *Library) Path() string { return l.libraryPath }

// DatabasePath returns the full path of the catalog's binary log.
func (l *Library) DatabasePath() string { return l.databasePath }

// Contains reports whether a book with the given relative file name is
// already cataloged.
func (l *Library) Contains(fileName string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.paths[fileName]
	return ok
}

// GetBook looks a book up by ID.
func (l *Library) GetBook(id string) (*books.Book, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.books[id]
	return b, ok
}

// Count returns the total number of cataloged books.
func (l *Library) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.books)
}

// FB2Count returns the number of FB2 books.
func (l *Library) FB2Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.fb2Count
}

// EPUBCount returns the number of EPUB books.
func (l *Library) EPUBCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.epubCount
}

// IsChanged reports whether the in-memory state has diverged from the last
// save.
func (l *Library) IsChanged() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.isChanged
}

// Add admits a book into the catalog. It returns true only for a genuinely
// new book; version-based replacement of an existing entry returns false.
//
// Admission rules, in order: an ID collision with a different title gets a
// fresh ID derived from the file name; an unknown ID inserts; a known ID
// with a newer version replaces in place; anything else is rejected.
func (l *Library) Add(b *books.Book) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if existing, ok := l.books[b.ID]; ok && existing.Title != b.Title {
		// Same ID, different book: the source data reused an identifier.
		b.ID = books.NameID(b.FileName)
	}

	existing, ok := l.books[b.ID]
	if !ok {
		b.AddedDate = time.Now()
		l.insertLocked(b)
		l.isChanged = true
		return true
	}

	if existing.Version < b.Version {
		b.AddedDate = existing.AddedDate
		delete(l.paths, existing.FileName)
		l.books[b.ID] = b
		l.paths[b.FileName] = b.ID
		l.isChanged = true
		l.log.Warn("replaced stale book version", logger.Data{"id": b.ID, "file": b.FileName})
		return false
	}

	return false
}

// Delete removes books by absolute path. A path with a book extension
// removes the single matching book; anything else is treated as a directory
// or archive prefix and removes every book whose file name contains it.
func (l *Library) Delete(absolutePath string) bool {
	rel, err := filepath.Rel(l.libraryPath, absolutePath)
	if err != nil || strings.HasPrefix(rel, "..") {
		rel = absolutePath
	}
	rel = filepath.ToSlash(rel)

	l.mu.Lock()
	defer l.mu.Unlock()

	lower := strings.ToLower(rel)
	if strings.HasSuffix(lower, ".epub") || strings.HasSuffix(lower, ".fb2") || strings.HasSuffix(lower, ".fb2.zip") {
		id, ok := l.paths[rel]
		if !ok {
			return false
		}
		l.removeLocked(l.books[id])
		l.isChanged = true
		return true
	}

	removed := false
	for _, b := range l.books {
		if strings.Contains(b.FileName, rel) {
			l.removeLocked(b)
			removed = true
		}
	}
	if removed {
		l.isChanged = true
	}
	return removed
}

func (l *Library) insertLocked(b *books.Book) {
	l.books[b.ID] = b
	l.paths[b.FileName] = b.ID
	switch b.Type() {
	case books.TypeEPUB:
		l.epubCount++
	default:
		l.fb2Count++
	}
}

func (l *Library) removeLocked(b *books.Book) {
	delete(l.books, b.ID)
	delete(l.paths, b.FileName)
	switch b.Type() {
	case books.TypeEPUB:
		l.epubCount--
	default:
		l.fb2Count--
	}
}
