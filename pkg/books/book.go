package books

import (
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
)

// Book file types.
const (
	TypeFB2  = "fb2"
	TypeEPUB = "epub"
)

// Book is the unit of cataloging. It is produced by one of the format
// parsers and admitted into the library, which may rewrite its ID on a
// title conflict.
type Book struct {
	// ID is a well-formed UUID. When the source file carries no usable
	// identifier, it is synthesized as UUIDv5(ISO-OID, FileName).
	ID      string
	Version float32

	// FileName is the path relative to the library root. For books packed
	// inside a ZIP archive the form is "relative/archive.zip@entry/inside.fb2".
	FileName string

	Title            string
	Language         string
	Annotation       string
	Sequence         string
	NumberInSequence uint32

	BookDate     time.Time
	DocumentDate time.Time
	AddedDate    time.Time

	HasCover     bool
	DocumentSize uint32

	Authors     []string
	Translators []string
	Genres      []string
}

// NewBook returns a Book with the defaults every parser starts from.
func NewBook(fileName string) *Book {
	return &Book{
		Version:  1.0,
		FileName: fileName,
		BookDate: time.Time{},
	}
}

// Type derives the book type from the file extension.
func (b *Book) Type() string {
	if strings.Contains(strings.ToLower(b.FileName), ".epub") {
		return TypeEPUB
	}
	return TypeFB2
}

// IsValid reports whether the book carries enough metadata to be cataloged:
// a printable non-empty title, at least one author and at least one genre.
func (b *Book) IsValid() bool {
	if b.Title == "" || !isPrintable(b.Title) {
		return false
	}
	return len(b.Authors) > 0 && len(b.Genres) > 0
}

// EnsureID validates the parsed identifier and synthesizes one from the
// file name when it is absent or not a UUID.
func (b *Book) EnsureID() {
	if _, err := uuid.Parse(b.ID); err != nil {
		b.ID = NameID(b.FileName)
	}
}

// NameID derives a deterministic UUIDv5 in the ISO-OID namespace.
func NameID(name string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)).String()
}

func isPrintable(s string) bool {
	if !strings.ContainsFunc(s, unicode.IsPrint) {
		return false
	}
	for _, r := range s {
		if r == unicode.ReplacementChar {
			return false
		}
		if !unicode.IsPrint(r) && !unicode.IsSpace(r) {
			return false
		}
	}
	return true
}

// Capitalize uppercases the first letter of every word, the rule both
// parsers apply to author names and sequence titles.
func Capitalize(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		for j := 1; j < len(r); j++ {
			r[j] = unicode.ToLower(r[j])
		}
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}
