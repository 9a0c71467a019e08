package books

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNameID(t *testing.T) {
	t.Parallel()

	id := NameID("books/war_and_peace.fb2")
	assert.Len(t, id, 36)
	assert.Equal(t, id, NameID("books/war_and_peace.fb2"))
	assert.NotEqual(t, id, NameID("books/other.fb2"))
}

func TestEnsureID(t *testing.T) {
	t.Parallel()

	b := NewBook("dir/book.fb2")
	b.ID = "not-a-uuid"
	b.EnsureID()
	assert.Equal(t, NameID("dir/book.fb2"), b.ID)

	b.ID = "6ba7b810-9dad-11d1-80b4-00c04fd430c8"
	b.EnsureID()
	assert.Equal(t, "6ba7b810-9dad-11d1-80b4-00c04fd430c8", b.ID)
}

func TestType(t *testing.T) {
	t.Parallel()

	assert.Equal(t, TypeFB2, NewBook("a/b.fb2").Type())
	assert.Equal(t, TypeFB2, NewBook("archive.zip@inner/b.fb2").Type())
	assert.Equal(t, TypeEPUB, NewBook("a/b.EPUB").Type())
	assert.Equal(t, TypeEPUB, NewBook("archive.zip@inner/b.epub").Type())
}

func TestIsValid(t *testing.T) {
	t.Parallel()

	b := NewBook("b.fb2")
	assert.False(t, b.IsValid())

	b.Title = "Title"
	assert.False(t, b.IsValid())

	b.Authors = []string{"Tolstoy Leo"}
	assert.False(t, b.IsValid())

	b.Genres = []string{"prose"}
	assert.True(t, b.IsValid())

	b.Title = "bad \x01 title"
	assert.False(t, b.IsValid())

	b.Title = "���"
	assert.False(t, b.IsValid())
}

func TestCapitalize(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "War And Peace", Capitalize("wAr aND peace"))
	assert.Equal(t, "Толстой Лев", Capitalize("толстой лев"))
	assert.Equal(t, "", Capitalize(""))
}
