package epub

import (
	"bytes"
	"image"
	_ "image/jpeg"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tinyopds/tinyopds/internal/testgen"
	"github.com/tinyopds/tinyopds/pkg/genres"
)

func newTestParser(t *testing.T) *Parser {
	t.Helper()
	taxonomy, err := genres.Load()
	require.NoError(t, err)
	return NewParser(taxonomy)
}

func TestParse(t *testing.T) {
	t.Parallel()

	p := newTestParser(t)
	data := testgen.GenerateEPUB(t, testgen.EPUBOptions{
		Title:    "the martian",
		Authors:  []string{"andy weir"},
		Subjects: []string{"Science Fiction"},
		Language: "en",
		Date:     "2014-02-11",
		HasCover: true,
	})

	book := p.Parse(bytes.NewReader(data), "scifi/the_martian.epub")
	require.True(t, book.IsValid())
	assert.Equal(t, "the martian", book.Title)
	assert.Equal(t, []string{"Andy Weir"}, book.Authors)
	assert.Equal(t, "en", book.Language)
	assert.Equal(t, 2014, book.BookDate.Year())
	assert.True(t, book.HasCover)
	require.Len(t, book.Genres, 1)
	assert.Contains(t, []string{"sf", "sf_action", "sf_space", "sf_social", "sf_humor"}, book.Genres[0])
}

func TestParseNoSubjects(t *testing.T) {
	t.Parallel()

	p := newTestParser(t)
	data := testgen.GenerateEPUB(t, testgen.EPUBOptions{
		Title:   "Untagged",
		Authors: []string{"Some Writer"},
	})

	book := p.Parse(bytes.NewReader(data), "misc/untagged.epub")
	require.True(t, book.IsValid())
	assert.Equal(t, []string{"prose"}, book.Genres)
	assert.False(t, book.HasCover)
}

func TestParseYearOnlyDate(t *testing.T) {
	t.Parallel()

	p := newTestParser(t)
	data := testgen.GenerateEPUB(t, testgen.EPUBOptions{
		Title:   "Dated",
		Authors: []string{"A B"},
		Date:    "copyright 1999 text",
	})

	book := p.Parse(bytes.NewReader(data), "misc/dated.epub")
	assert.Equal(t, 1999, book.BookDate.Year())
}

func TestParseGarbage(t *testing.T) {
	t.Parallel()

	p := newTestParser(t)
	book := p.Parse(bytes.NewReader([]byte("not a zip archive")), "misc/garbage.epub")
	assert.False(t, book.IsValid())
}

func TestGetCover(t *testing.T) {
	t.Parallel()

	p := newTestParser(t)
	data := testgen.GenerateEPUB(t, testgen.EPUBOptions{
		Title:    "Covered",
		Authors:  []string{"A B"},
		HasCover: true,
	})

	img, err := p.GetCover(bytes.NewReader(data))
	require.NoError(t, err)
	require.NotNil(t, img)

	_, format, err := image.Decode(bytes.NewReader(img))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
}

func TestGetCoverNone(t *testing.T) {
	t.Parallel()

	p := newTestParser(t)
	data := testgen.GenerateEPUB(t, testgen.EPUBOptions{
		Title:   "Plain",
		Authors: []string{"A B"},
	})

	img, err := p.GetCover(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Nil(t, img)
}
