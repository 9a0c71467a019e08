package scanner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tinyopds/tinyopds/internal/testgen"
	"github.com/tinyopds/tinyopds/pkg/epub"
	"github.com/tinyopds/tinyopds/pkg/genres"
	"github.com/tinyopds/tinyopds/pkg/library"
)

func newTestScanner(t *testing.T) (*Scanner, *library.Library) {
	t.Helper()
	taxonomy, err := genres.Load()
	require.NoError(t, err)
	lib := library.New(testgen.TempLibraryDir(t), t.TempDir(), false)
	return New(lib, epub.NewParser(taxonomy)), lib
}

func collect(t *testing.T, events <-chan Event) map[EventType][]Event {
	t.Helper()
	out := map[EventType][]Event{}
	for ev := range events {
		out[ev.Type] = append(out[ev.Type], ev)
	}
	require.Len(t, out[ScanCompleted], 1)
	return out
}

func TestScanDirectory(t *testing.T) {
	t.Parallel()

	scn, lib := newTestScanner(t)
	root := lib.Path()

	testgen.GenerateFB2File(t, root, "one.fb2", testgen.FB2Options{
		Title: "One", Authors: []string{"A B"}, Genres: []string{"prose"},
	})
	sub := testgen.CreateSubDir(t, root, "sub")
	testgen.GenerateEPUBFile(t, sub, "two.epub", testgen.EPUBOptions{
		Title: "Two", Authors: []string{"C D"},
	})
	testgen.WriteFile(t, root, "notes.txt", []byte("ignored"))

	events := collect(t, scn.Scan(root, true))
	require.Len(t, events[BookFound], 2)

	names := []string{events[BookFound][0].Book.FileName, events[BookFound][1].Book.FileName}
	assert.ElementsMatch(t, []string{"one.fb2", "sub/two.epub"}, names)
	assert.Equal(t, StatusIdle, scn.Status())
}

func TestScanNonRecursive(t *testing.T) {
	t.Parallel()

	scn, lib := newTestScanner(t)
	root := lib.Path()

	testgen.GenerateFB2File(t, root, "one.fb2", testgen.FB2Options{
		Title: "One", Authors: []string{"A B"}, Genres: []string{"prose"},
	})
	sub := testgen.CreateSubDir(t, root, "sub")
	testgen.GenerateFB2File(t, sub, "two.fb2", testgen.FB2Options{
		Title: "Two", Authors: []string{"C D"}, Genres: []string{"prose"},
	})

	events := collect(t, scn.Scan(root, false))
	require.Len(t, events[BookFound], 1)
	assert.Equal(t, "one.fb2", events[BookFound][0].Book.FileName)
}

func TestScanZipArchive(t *testing.T) {
	t.Parallel()

	scn, lib := newTestScanner(t)
	root := lib.Path()

	inner := testgen.GenerateFB2(t, testgen.FB2Options{
		Title: "Inner", Authors: []string{"A B"}, Genres: []string{"prose"},
	})
	innerEpub := testgen.GenerateEPUB(t, testgen.EPUBOptions{
		Title: "InnerEpub", Authors: []string{"C D"},
	})
	testgen.GenerateZip(t, root, "pack.zip", map[string][]byte{
		"books/inner.fb2":  inner,
		"books/inner.epub": innerEpub,
		"readme.txt":       []byte("ignored"),
	})

	events := collect(t, scn.Scan(root, true))
	require.Len(t, events[BookFound], 2)

	for _, ev := range events[BookFound] {
		assert.Contains(t, ev.Book.FileName, "pack.zip@books/")
		assert.NotZero(t, ev.Book.DocumentSize)
	}
}

func TestScanSkipsCatalogedFiles(t *testing.T) {
	t.Parallel()

	scn, lib := newTestScanner(t)
	root := lib.Path()

	testgen.GenerateFB2File(t, root, "one.fb2", testgen.FB2Options{
		Title: "One", Authors: []string{"A B"}, Genres: []string{"prose"},
	})

	events := collect(t, scn.Scan(root, true))
	require.Len(t, events[BookFound], 1)
	require.True(t, lib.Add(events[BookFound][0].Book))

	rescan := collect(t, scn.Scan(root, true))
	assert.Empty(t, rescan[BookFound])
	require.Len(t, rescan[FileSkipped], 1)
	assert.Equal(t, "one.fb2", rescan[FileSkipped][0].Path)
}

func TestScanReportsInvalidBooks(t *testing.T) {
	t.Parallel()

	scn, lib := newTestScanner(t)
	root := lib.Path()

	testgen.WriteFile(t, root, "broken.fb2", []byte("not xml"))

	events := collect(t, scn.Scan(root, true))
	assert.Empty(t, events[BookFound])
	require.Len(t, events[InvalidBook], 1)
	assert.Equal(t, "broken.fb2", events[InvalidBook][0].Path)
}

func TestScanFile(t *testing.T) {
	t.Parallel()

	scn, lib := newTestScanner(t)
	path := testgen.GenerateFB2File(t, lib.Path(), "single.fb2", testgen.FB2Options{
		Title: "Single", Authors: []string{"A B"}, Genres: []string{"prose"},
	})

	events := collect(t, scn.ScanFile(path))
	require.Len(t, events[BookFound], 1)
	assert.Equal(t, "single.fb2", events[BookFound][0].Book.FileName)
}
