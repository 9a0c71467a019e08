// Package covers produces JPEG cover and thumbnail images for cataloged
// books, backed by a fixed-capacity LRU cache keyed by book ID.
package covers

import (
	"bytes"
	"image"
	"strings"

	"github.com/disintegration/imaging"
	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
	"github.com/tinyopds/tinyopds/pkg/books"
	"github.com/tinyopds/tinyopds/pkg/epub"
	"github.com/tinyopds/tinyopds/pkg/fb2"
	"github.com/tinyopds/tinyopds/pkg/library"
)

// CacheSize caps the number of cached books; eviction is least recently
// used.
const CacheSize = 1000

// Size is a target image dimension.
type Size struct {
	Width  int
	Height int
}

type cached struct {
	cover     []byte
	thumbnail []byte
}

// Cache resolves cover images on demand from the book's source file.
type Cache struct {
	lib       *library.Library
	parser    *epub.Parser
	cache     *lru.Cache
	cover     Size
	thumbnail Size
}

// New creates a cover cache with the configured cover and thumbnail sizes.
func New(lib *library.Library, parser *epub.Parser, cover, thumbnail Size) (*Cache, error) {
	c, err := lru.New(CacheSize)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &Cache{
		lib:       lib,
		parser:    parser,
		cache:     c,
		cover:     cover,
		thumbnail: thumbnail,
	}, nil
}

// Cover returns the JPEG cover for a book ID, or nil when the book has no
// cover.
func (c *Cache) Cover(id string) ([]byte, error) {
	entry, err := c.resolve(id)
	if err != nil || entry == nil {
		return nil, err
	}
	return entry.cover, nil
}

// Thumbnail returns the JPEG thumbnail for a book ID, or nil when the book
// has no cover.
func (c *Cache) Thumbnail(id string) ([]byte, error) {
	entry, err := c.resolve(id)
	if err != nil || entry == nil {
		return nil, err
	}
	return entry.thumbnail, nil
}

func (c *Cache) resolve(id string) (*cached, error) {
	if v, ok := c.cache.Get(id); ok {
		return v.(*cached), nil
	}

	book, ok := c.lib.GetBook(id)
	if !ok || !book.HasCover {
		return nil, nil
	}

	raw, err := c.extract(book)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}

	src, err := imaging.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, errors.Wrap(err, "decode cover image")
	}

	entry := &cached{}
	if entry.cover, err = encodeResized(src, c.cover); err != nil {
		return nil, err
	}
	if entry.thumbnail, err = encodeResized(src, c.thumbnail); err != nil {
		return nil, err
	}

	c.cache.Add(id, entry)
	return entry, nil
}

func (c *Cache) extract(book *books.Book) ([]byte, error) {
	r, err := library.OpenBookFile(c.lib.Path(), book.FileName)
	if err != nil {
		return nil, err
	}

	if strings.HasSuffix(strings.ToLower(book.FileName), ".epub") {
		return c.parser.GetCover(bytes.NewReader(r))
	}
	return fb2.GetCover(bytes.NewReader(r))
}

func encodeResized(src image.Image, size Size) ([]byte, error) {
	img := imaging.Fit(src, size.Width, size.Height, imaging.Lanczos)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		return nil, errors.Wrap(err, "encode jpeg")
	}
	return buf.Bytes(), nil
}
