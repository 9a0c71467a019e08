package fb2

import (
	"bytes"
	"image"
	_ "image/jpeg"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tinyopds/tinyopds/internal/testgen"
)

func TestParse(t *testing.T) {
	t.Parallel()

	data := testgen.GenerateFB2(t, testgen.FB2Options{
		ID:           "6ba7b810-9dad-11d1-80b4-00c04fd430c8",
		Title:        "Война и мир",
		Authors:      []string{"лев толстой"},
		Genres:       []string{"prose_rus_classic", "prose_history"},
		Sequence:     "собрание сочинений",
		SeqNumber:    4,
		Language:     "ru",
		Annotation:   "Роман-эпопея.",
		BookDate:     "1869",
		DocumentDate: "2006-11-12",
		Version:      "1.1",
	})

	book := Parse(bytes.NewReader(data), "classics/war_and_peace.fb2")
	require.True(t, book.IsValid())
	assert.Equal(t, "6ba7b810-9dad-11d1-80b4-00c04fd430c8", book.ID)
	assert.Equal(t, "Война и мир", book.Title)
	assert.Equal(t, []string{"Толстой Лев"}, book.Authors)
	assert.Equal(t, []string{"prose_rus_classic", "prose_history"}, book.Genres)
	assert.Equal(t, "Собрание Сочинений", book.Sequence)
	assert.Equal(t, uint32(4), book.NumberInSequence)
	assert.Equal(t, "ru", book.Language)
	assert.Equal(t, "Роман-эпопея.", book.Annotation)
	assert.Equal(t, 1869, book.BookDate.Year())
	assert.Equal(t, 2006, book.DocumentDate.Year())
	assert.InDelta(t, 1.1, book.Version, 0.001)
	assert.False(t, book.HasCover)
}

func TestParseWindows1251(t *testing.T) {
	t.Parallel()

	data := testgen.GenerateFB2(t, testgen.FB2Options{
		Title:    "Мёртвые души",
		Authors:  []string{"Николай Гоголь"},
		Genres:   []string{"prose_classic"},
		Encoding: "windows-1251",
	})

	book := Parse(bytes.NewReader(data), "gogol/dead_souls.fb2")
	require.True(t, book.IsValid())
	assert.Equal(t, "Мёртвые души", book.Title)
	assert.Equal(t, []string{"Гоголь Николай"}, book.Authors)
}

func TestParseMissingID(t *testing.T) {
	t.Parallel()

	data := testgen.GenerateFB2(t, testgen.FB2Options{
		Title:   "Anonymous",
		Authors: []string{"Some Author"},
		Genres:  []string{"prose"},
	})

	book := Parse(bytes.NewReader(data), "misc/anonymous.fb2")
	require.True(t, book.IsValid())
	// ID is synthesized from the file name.
	assert.Len(t, book.ID, 36)
	other := Parse(bytes.NewReader(data), "misc/anonymous.fb2")
	assert.Equal(t, book.ID, other.ID)
}

func TestParseRepairsEntities(t *testing.T) {
	t.Parallel()

	data := testgen.GenerateFB2(t, testgen.FB2Options{
		Title:   "Broken&nbsp;Title",
		Authors: []string{"A B"},
		Genres:  []string{"prose"},
	})
	data = bytes.ReplaceAll(data, []byte("Broken&amp;nbsp;Title"), []byte("Broken&nbsp;Title"))

	book := Parse(bytes.NewReader(data), "misc/broken.fb2")
	require.True(t, book.IsValid())
	assert.Equal(t, "Broken\u00a0Title", book.Title)
}

func TestParseStripsIllegalChars(t *testing.T) {
	t.Parallel()

	data := testgen.GenerateFB2(t, testgen.FB2Options{
		Title:   "CleanTitle",
		Authors: []string{"A B"},
		Genres:  []string{"prose"},
	})
	data = bytes.ReplaceAll(data, []byte("CleanTitle"), []byte("Clean\x02Title"))

	book := Parse(bytes.NewReader(data), "misc/control.fb2")
	require.True(t, book.IsValid())
	assert.Equal(t, "CleanTitle", book.Title)
}

// The illegal-character retry must decode legacy bytes before stripping;
// stripping raw windows-1251 would mangle every Cyrillic letter into
// replacement runes.
func TestParseStripsIllegalCharsWindows1251(t *testing.T) {
	t.Parallel()

	data := testgen.GenerateFB2(t, testgen.FB2Options{
		Title:      "Война и мир",
		Authors:    []string{"лев толстой"},
		Genres:     []string{"prose_rus_classic"},
		Annotation: "MarkerText",
		Encoding:   "windows-1251",
	})
	data = bytes.ReplaceAll(data, []byte("MarkerText"), []byte("Marker\x02Text"))

	book := Parse(bytes.NewReader(data), "classics/war_1251.fb2")
	require.True(t, book.IsValid())
	assert.Equal(t, "Война и мир", book.Title)
	assert.Equal(t, []string{"Толстой Лев"}, book.Authors)
	assert.Equal(t, "MarkerText", book.Annotation)
}

func TestParseZipPacked(t *testing.T) {
	t.Parallel()

	inner := testgen.GenerateFB2(t, testgen.FB2Options{
		Title:   "Packed",
		Authors: []string{"A B"},
		Genres:  []string{"prose"},
	})
	dir := t.TempDir()
	path := testgen.GenerateZip(t, dir, "packed.fb2.zip", map[string][]byte{"packed.fb2": inner})

	packed, err := os.ReadFile(path)
	require.NoError(t, err)

	book := Parse(bytes.NewReader(packed), "misc/packed.fb2.zip")
	require.True(t, book.IsValid())
	assert.Equal(t, "Packed", book.Title)
}

func TestParseGarbage(t *testing.T) {
	t.Parallel()

	book := Parse(bytes.NewReader([]byte("this is not xml at all")), "misc/garbage.fb2")
	assert.False(t, book.IsValid())
}

func TestGetCover(t *testing.T) {
	t.Parallel()

	data := testgen.GenerateFB2(t, testgen.FB2Options{
		Title:    "Covered",
		Authors:  []string{"A B"},
		Genres:   []string{"prose"},
		HasCover: true,
	})

	book := Parse(bytes.NewReader(data), "misc/covered.fb2")
	require.True(t, book.HasCover)

	img, err := GetCover(bytes.NewReader(data))
	require.NoError(t, err)
	require.NotNil(t, img)

	_, format, err := image.Decode(bytes.NewReader(img))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
}

func TestGetCoverNone(t *testing.T) {
	t.Parallel()

	data := testgen.GenerateFB2(t, testgen.FB2Options{
		Title:   "Plain",
		Authors: []string{"A B"},
		Genres:  []string{"prose"},
	})

	img, err := GetCover(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Nil(t, img)
}
