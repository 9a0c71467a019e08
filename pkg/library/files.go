package library

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// OpenBookFile fetches the raw bytes of a cataloged file. Plain files are
// read from the library root; the "archive.zip@entry" form is resolved by
// opening the archive and extracting the named entry.
func OpenBookFile(libraryPath, fileName string) ([]byte, error) {
	archive, entry, ok := strings.Cut(fileName, "@")
	if !ok {
		data, err := os.ReadFile(filepath.Join(libraryPath, filepath.FromSlash(fileName)))
		return data, errors.WithStack(err)
	}

	zr, err := zip.OpenReader(filepath.Join(libraryPath, filepath.FromSlash(archive)))
	if err != nil {
		return nil, errors.Wrapf(err, "open archive %s", archive)
	}
	defer zr.Close()

	for _, f := range zr.File {
		if filepath.ToSlash(f.Name) != entry {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, errors.Wrapf(err, "open entry %s", entry)
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		return data, errors.WithStack(err)
	}
	return nil, errors.Errorf("entry %s not found in %s", entry, archive)
}
