package library

import (
	"sort"
	"strings"

	"github.com/tinyopds/tinyopds/pkg/books"
)

// Titles enumerates all distinct titles, collated.
func (l *Library) Titles() []string {
	return l.distinct(func(b *books.Book) []string { return []string{b.Title} })
}

// Authors enumerates all distinct author names, collated.
func (l *Library) Authors() []string {
	return l.distinct(func(b *books.Book) []string { return b.Authors })
}

// Sequences enumerates all distinct series names, collated.
func (l *Library) Sequences() []string {
	return l.distinct(func(b *books.Book) []string { return []string{b.Sequence} })
}

// Genres enumerates all distinct genre tags carried by cataloged books.
func (l *Library) Genres() []string {
	return l.distinct(func(b *books.Book) []string { return b.Genres })
}

// distinct collects values across the catalog, dropping empty and
// one-character entries, and sorts them with the configured collator.
func (l *Library) distinct(fn func(*books.Book) []string) []string {
	l.mu.Lock()
	seen := map[string]struct{}{}
	for _, b := range l.books {
		for _, v := range fn(b) {
			if len([]rune(v)) > 1 {
				seen[v] = struct{}{}
			}
		}
	}
	l.mu.Unlock()

	out := make([]string, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	l.collator.SortStrings(out)
	return out
}

// GetBooksByTitle returns books whose title or sequence contains the given
// string, case-insensitively.
func (l *Library) GetBooksByTitle(title string) []*books.Book {
	title = strings.ToLower(title)
	return l.filter(func(b *books.Book) bool {
		return strings.Contains(strings.ToLower(b.Title), title) ||
			strings.Contains(strings.ToLower(b.Sequence), title)
	})
}

// GetBooksByAuthor returns books carrying the exact author name.
func (l *Library) GetBooksByAuthor(author string) []*books.Book {
	return l.filter(func(b *books.Book) bool {
		for _, a := range b.Authors {
			if a == author {
				return true
			}
		}
		return false
	})
}

// GetBooksBySequence returns books whose series name contains the given
// string.
func (l *Library) GetBooksBySequence(sequence string) []*books.Book {
	return l.filter(func(b *books.Book) bool {
		return b.Sequence != "" && strings.Contains(b.Sequence, sequence)
	})
}

// GetBooksByGenre returns books carrying the exact genre tag.
func (l *Library) GetBooksByGenre(genre string) []*books.Book {
	return l.filter(func(b *books.Book) bool {
		for _, g := range b.Genres {
			if g == genre {
				return true
			}
		}
		return false
	})
}

// GetAuthorsByName matches author names: prefix match for index browsing,
// substring match for OpenSearch. When nothing matches an OpenSearch query,
// the reversed name ("first last" vs "last first") is retried.
func (l *Library) GetAuthorsByName(name string, openSearch bool) []string {
	match := func(needle string) []string {
		needle = strings.ToLower(needle)
		var out []string
		for _, a := range l.Authors() {
			la := strings.ToLower(a)
			if openSearch && strings.Contains(la, needle) {
				out = append(out, a)
			} else if !openSearch && strings.HasPrefix(la, needle) {
				out = append(out, a)
			}
		}
		return out
	}

	authors := match(name)
	if len(authors) == 0 && openSearch {
		words := strings.Fields(name)
		for i, j := 0, len(words)-1; i < j; i, j = i+1, j-1 {
			words[i], words[j] = words[j], words[i]
		}
		authors = match(strings.Join(words, " "))
	}
	return authors
}

func (l *Library) filter(pred func(*books.Book) bool) []*books.Book {
	l.mu.Lock()
	var out []*books.Book
	for _, b := range l.books {
		if pred(b) {
			out = append(out, b)
		}
	}
	l.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Title != out[j].Title {
			return l.collator.CompareString(out[i].Title, out[j].Title) < 0
		}
		return out[i].FileName < out[j].FileName
	})
	return out
}
