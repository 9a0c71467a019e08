package opds

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/echo/v4/middleware/logger"
	"github.com/tinyopds/tinyopds/pkg/auth"
	"github.com/tinyopds/tinyopds/pkg/books"
	"github.com/tinyopds/tinyopds/pkg/config"
	"github.com/tinyopds/tinyopds/pkg/converter"
	"github.com/tinyopds/tinyopds/pkg/covers"
	"github.com/tinyopds/tinyopds/pkg/errcodes"
	"github.com/tinyopds/tinyopds/pkg/library"
)

// Readers that consume FB2 natively, by User-Agent fragment.
var fb2Readers = []string{"FBREADER", "MOON+ READER"}

type handler struct {
	svc    *Service
	lib    *library.Library
	covers *covers.Cache
	conv   *converter.Converter
	stats  *auth.Stats
	cfg    *config.Config
}

func (h *handler) root(c echo.Context) error {
	return h.respondXML(c, h.svc.BuildRootFeed(h.baseURL(c)))
}

func (h *handler) authorsIndex(c echo.Context) error {
	prefix, err := pathParam(c, "prefix")
	if err != nil {
		return err
	}
	return h.respondXML(c, h.svc.BuildAuthorsIndexFeed(h.baseURL(c), prefix))
}

func (h *handler) authorBooks(c echo.Context) error {
	name, err := pathParam(c, "name")
	if err != nil {
		return err
	}
	return h.respondXML(c, h.svc.BuildAuthorBooksFeed(h.baseURL(c), name, pageNumber(c), h.acceptFB2(c)))
}

func (h *handler) sequencesIndex(c echo.Context) error {
	prefix, err := pathParam(c, "prefix")
	if err != nil {
		return err
	}
	return h.respondXML(c, h.svc.BuildSequencesIndexFeed(h.baseURL(c), prefix))
}

func (h *handler) sequenceBooks(c echo.Context) error {
	name, err := pathParam(c, "name")
	if err != nil {
		return err
	}
	return h.respondXML(c, h.svc.BuildSequenceBooksFeed(h.baseURL(c), name, pageNumber(c), h.acceptFB2(c)))
}

func (h *handler) genresIndex(c echo.Context) error {
	category, err := pathParam(c, "category")
	if err != nil {
		return err
	}
	return h.respondXML(c, h.svc.BuildGenresFeed(h.baseURL(c), category))
}

func (h *handler) genreBooks(c echo.Context) error {
	tag, err := pathParam(c, "tag")
	if err != nil {
		return err
	}
	return h.respondXML(c, h.svc.BuildGenreBooksFeed(h.baseURL(c), tag, pageNumber(c), h.acceptFB2(c)))
}

func (h *handler) newBooks(c echo.Context) error {
	return h.respondXML(c, h.svc.BuildNewBooksFeed(h.baseURL(c), pageNumber(c), h.acceptFB2(c)))
}

// search serves both OpenSearch phases: with only searchTerm it offers the
// author/title partitions, with searchType it returns the paged results.
func (h *handler) search(c echo.Context) error {
	term := c.QueryParam("searchTerm")
	searchType := c.QueryParam("searchType")
	if searchType == "" {
		return h.respondXML(c, h.svc.BuildSearchFeed(h.baseURL(c), term))
	}
	return h.respondXML(c, h.svc.BuildSearchResults(h.baseURL(c), searchType, term, pageNumber(c), h.acceptFB2(c)))
}

func (h *handler) openSearch(c echo.Context) error {
	doc := h.svc.NewOpenSearch(h.baseURL(c))
	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return errors.WithStack(err)
	}
	return errors.WithStack(c.Blob(http.StatusOK, MimeTypeOpenSearch, append([]byte(xml.Header), out...)))
}

func (h *handler) cover(c echo.Context) error {
	return h.image(c, h.covers.Cover)
}

func (h *handler) thumbnail(c echo.Context) error {
	return h.image(c, h.covers.Thumbnail)
}

func (h *handler) image(c echo.Context, resolve func(string) ([]byte, error)) error {
	id := strings.TrimSuffix(c.Param("file"), ".jpeg")
	data, err := resolve(id)
	if err != nil {
		return errors.WithStack(err)
	}
	if data == nil {
		return errcodes.NotFound("Cover")
	}
	h.stats.AddImageSent()
	return errors.WithStack(c.Blob(http.StatusOK, MimeTypeJPEG, data))
}

// download serves a book file. FB2 books are repacked into a single-entry
// zip; EPUB requests against an FB2 source go through the external
// converter.
func (h *handler) download(c echo.Context) error {
	book, ok := h.lib.GetBook(c.Param("id"))
	if !ok {
		return errcodes.NotFound("Book")
	}
	file, err := pathParam(c, "file")
	if err != nil {
		return err
	}

	data, err := library.OpenBookFile(h.lib.Path(), book.FileName)
	if err != nil {
		logger.FromEchoContext(c).Err(err).Error("open book file")
		return errcodes.NotFound("Book file")
	}

	switch {
	case strings.HasSuffix(file, ".fb2.zip"):
		if book.Type() != books.TypeFB2 {
			return errcodes.NotFound("Book file")
		}
		// The inner entry is always the canonical transliterated name; the
		// URL segment is only a hint for the client.
		packed, err := packFB2(DownloadName(book)+".fb2", data)
		if err != nil {
			return errors.WithStack(err)
		}
		h.stats.AddBookSent()
		setDisposition(c, file)
		return errors.WithStack(c.Blob(http.StatusOK, MimeTypeFB2Zip, packed))

	case strings.HasSuffix(file, ".epub"):
		if book.Type() == books.TypeFB2 {
			if !h.conv.Available() {
				return errcodes.NotFound("EPUB version")
			}
			data, err = h.conv.Convert(c.Request().Context(), data)
			if err != nil {
				logger.FromEchoContext(c).Err(err).Error("fb2 conversion failed")
				return errcodes.NotFound("EPUB version")
			}
		}
		h.stats.AddBookSent()
		setDisposition(c, file)
		return errors.WithStack(c.Blob(http.StatusOK, MimeTypeEPUB, data))
	}

	return errcodes.NotFound("Book file")
}

func (h *handler) favicon(c echo.Context) error {
	return errors.WithStack(c.Blob(http.StatusOK, MimeTypeIcon, faviconICO))
}

func (h *handler) respondXML(c echo.Context, feed *Feed) error {
	out, err := xml.MarshalIndent(feed, "", "  ")
	if err != nil {
		return errors.WithStack(err)
	}
	return errors.WithStack(c.Blob(http.StatusOK, MimeTypeAtom, append([]byte(xml.Header), out...)))
}

// baseURL reconstructs the externally visible catalog root for link
// generation, honoring the configured root prefix.
func (h *handler) baseURL(c echo.Context) string {
	scheme := c.Scheme()
	if fwd := c.Request().Header.Get("X-Forwarded-Proto"); fwd != "" {
		scheme = fwd
	}
	return fmt.Sprintf("%s://%s%s", scheme, c.Request().Host, h.cfg.RootPrefix)
}

func (h *handler) acceptFB2(c echo.Context) bool {
	ua := strings.ToUpper(c.Request().UserAgent())
	for _, reader := range fb2Readers {
		if strings.Contains(ua, reader) {
			return true
		}
	}
	return false
}

func pathParam(c echo.Context, name string) (string, error) {
	v, err := url.PathUnescape(c.Param(name))
	if err != nil {
		return "", errcodes.MalformedPayload()
	}
	return v, nil
}

func pageNumber(c echo.Context) int {
	n, err := strconv.Atoi(c.QueryParam("pageNumber"))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func setDisposition(c echo.Context, file string) {
	c.Response().Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf(`attachment; filename="%s"`, file))
}

// packFB2 wraps raw FB2 bytes in a fresh zip holding a single entry.
func packFB2(entryName string, data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create(entryName)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if _, err := w.Write(data); err != nil {
		return nil, errors.WithStack(err)
	}
	if err := zw.Close(); err != nil {
		return nil, errors.WithStack(err)
	}
	return buf.Bytes(), nil
}
