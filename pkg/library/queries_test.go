package library

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tinyopds/tinyopds/pkg/books"
)

func seedLibrary(t *testing.T) *Library {
	t.Helper()
	lib := newTestLibrary(t)

	add := func(file, title, author, sequence string, genres ...string) {
		b := books.NewBook(file)
		b.Title = title
		b.Authors = []string{author}
		b.Genres = genres
		b.Sequence = sequence
		b.EnsureID()
		require.True(t, lib.Add(b))
	}

	add("a/karenina.fb2", "Anna Karenina", "Tolstoy Leo", "", "prose_rus_classic")
	add("a/war.fb2", "War and Peace", "Tolstoy Leo", "Collected Works", "prose_rus_classic", "prose_history")
	add("b/idiot.fb2", "The Idiot", "Dostoevsky Fyodor", "", "prose_classic")
	add("c/martian.epub", "The Martian", "Weir Andy", "Ares Missions", "sf")
	return lib
}

func TestAuthors(t *testing.T) {
	t.Parallel()

	lib := seedLibrary(t)
	authors := lib.Authors()
	assert.Equal(t, []string{"Dostoevsky Fyodor", "Tolstoy Leo", "Weir Andy"}, authors)
}

func TestSequences(t *testing.T) {
	t.Parallel()

	lib := seedLibrary(t)
	// Empty sequences are excluded from the enumeration.
	assert.Equal(t, []string{"Ares Missions", "Collected Works"}, lib.Sequences())
}

func TestGenres(t *testing.T) {
	t.Parallel()

	lib := seedLibrary(t)
	assert.ElementsMatch(t, []string{"prose_rus_classic", "prose_history", "prose_classic", "sf"}, lib.Genres())
}

func TestGetBooksByTitle(t *testing.T) {
	t.Parallel()

	lib := seedLibrary(t)

	found := lib.GetBooksByTitle("war")
	require.Len(t, found, 1)
	assert.Equal(t, "War and Peace", found[0].Title)

	// Sequence names match too.
	found = lib.GetBooksByTitle("ares")
	require.Len(t, found, 1)
	assert.Equal(t, "The Martian", found[0].Title)

	assert.Empty(t, lib.GetBooksByTitle("nonexistent"))
}

func TestGetBooksByAuthor(t *testing.T) {
	t.Parallel()

	lib := seedLibrary(t)

	found := lib.GetBooksByAuthor("Tolstoy Leo")
	require.Len(t, found, 2)
	// Results are ordered by title.
	assert.Equal(t, "Anna Karenina", found[0].Title)
	assert.Equal(t, "War and Peace", found[1].Title)

	assert.Empty(t, lib.GetBooksByAuthor("Tolstoy"))
}

func TestGetBooksBySequence(t *testing.T) {
	t.Parallel()

	lib := seedLibrary(t)
	found := lib.GetBooksBySequence("Collected")
	require.Len(t, found, 1)
	assert.Equal(t, "War and Peace", found[0].Title)
}

func TestGetBooksByGenre(t *testing.T) {
	t.Parallel()

	lib := seedLibrary(t)
	found := lib.GetBooksByGenre("prose_rus_classic")
	assert.Len(t, found, 2)
	assert.Empty(t, lib.GetBooksByGenre("poetry"))
}

func TestGetAuthorsByName(t *testing.T) {
	t.Parallel()

	lib := seedLibrary(t)

	// Prefix match for index browsing.
	assert.Equal(t, []string{"Tolstoy Leo"}, lib.GetAuthorsByName("tol", false))
	assert.Empty(t, lib.GetAuthorsByName("olstoy", false))

	// Substring match for OpenSearch.
	assert.Equal(t, []string{"Tolstoy Leo"}, lib.GetAuthorsByName("olstoy", true))

	// A "first last" query is retried reversed.
	assert.Equal(t, []string{"Tolstoy Leo"}, lib.GetAuthorsByName("Leo Tolstoy", true))
}
