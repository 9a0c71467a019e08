// Package converter shells out to the external FB2→EPUB converter binary.
package converter

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"

	"github.com/pkg/errors"
)

// Timeout bounds a single conversion.
const Timeout = 10 * time.Second

// Converter wraps the external binary found in the configured directory.
type Converter struct {
	path string
}

// New returns a converter rooted at dir, or nil when no directory is
// configured (conversion is then unavailable and FB2 books are served
// as-is).
func New(dir string) *Converter {
	if dir == "" {
		return nil
	}
	return &Converter{path: filepath.Join(dir, binaryName())}
}

// Available reports whether the converter binary exists.
func (c *Converter) Available() bool {
	if c == nil {
		return false
	}
	_, err := os.Stat(c.path)
	return err == nil
}

// Convert writes fb2Data to a temp file, invokes the converter with input
// and output paths, and returns the produced EPUB bytes. Temp files are
// removed regardless of outcome.
func (c *Converter) Convert(ctx context.Context, fb2Data []byte) ([]byte, error) {
	if !c.Available() {
		return nil, errors.New("converter binary not found")
	}

	tmpDir, err := os.MkdirTemp("", "tinyopds-convert-")
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer os.RemoveAll(tmpDir)

	in := filepath.Join(tmpDir, "book.fb2")
	out := filepath.Join(tmpDir, "book.epub")
	if err := os.WriteFile(in, fb2Data, 0600); err != nil {
		return nil, errors.WithStack(err)
	}

	ctx, cancel := context.WithTimeout(ctx, Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.path, in, out)
	if output, err := cmd.CombinedOutput(); err != nil {
		return nil, errors.Wrapf(err, "converter failed: %s", output)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		return nil, errors.Wrap(err, "converter produced no output")
	}
	return data, nil
}

func binaryName() string {
	if runtime.GOOS == "windows" {
		return "fb2epub.exe"
	}
	return "fb2epub"
}
