// Package testgen provides utilities for generating test book files (FB2,
// EPUB, ZIP archives) with configurable metadata.
package testgen

import (
	"archive/zip"
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// FB2Options configures the generated FB2 file.
type FB2Options struct {
	ID           string
	Title        string
	Authors      []string // "First Last" form
	Genres       []string
	Sequence     string
	SeqNumber    int
	Language     string
	Annotation   string
	BookDate     string // e.g. "1869" or "2006-01-02"
	DocumentDate string
	Version      string // document-info program version, e.g. "1.1"
	HasCover     bool
	Encoding     string // declared XML encoding, defaults to "utf-8"
}

// EPUBOptions configures the generated EPUB file.
type EPUBOptions struct {
	Title         string
	Authors       []string
	Subjects      []string
	Language      string
	Date          string
	HasCover      bool
	CoverMimeType string // "image/jpeg" or "image/png", defaults to "image/jpeg"
}

// TempLibraryDir creates a temporary library directory for testing.
func TempLibraryDir(t *testing.T) string {
	t.Helper()
	return t.TempDir()
}

// CreateSubDir creates a subdirectory within the given parent directory.
func CreateSubDir(t *testing.T, parent, name string) string {
	t.Helper()
	dir := filepath.Join(parent, name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("failed to create subdirectory %s: %v", dir, err)
	}
	return dir
}

// WriteFile creates a file with the given content in the specified directory
// and returns its full path.
func WriteFile(t *testing.T, dir, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatalf("failed to write file %s: %v", path, err)
	}
	return path
}

// GenerateZip creates a ZIP archive at dir/filename holding the given
// entries and returns its full path.
func GenerateZip(t *testing.T, dir, filename string, entries map[string][]byte) string {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, data := range entries {
		if err := writeZipFile(zw, name, data); err != nil {
			t.Fatalf("failed to write zip entry %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("failed to close zip: %v", err)
	}
	return WriteFile(t, dir, filename, buf.Bytes())
}

func writeZipFile(zw *zip.Writer, name string, data []byte) error {
	w, err := zw.Create(name)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// generateImage produces a small valid image in the requested format.
func generateImage(t *testing.T, mimeType string) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 32, 48))
	for y := 0; y < 48; y++ {
		for x := 0; x < 32; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 8), G: uint8(y * 5), B: 90, A: 255})
		}
	}

	var buf bytes.Buffer
	var err error
	if mimeType == "image/png" {
		err = png.Encode(&buf, img)
	} else {
		err = jpeg.Encode(&buf, img, nil)
	}
	if err != nil {
		t.Fatalf("failed to encode test image: %v", err)
	}
	return buf.Bytes()
}

func escapeXML(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")
	return r.Replace(s)
}
