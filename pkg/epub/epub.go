// Package epub reads EPUB metadata: the OCF container is opened as a ZIP,
// container.xml points at the OPF package document, and the package
// metadata/manifest supply the catalog fields.
package epub

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"io"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/tinyopds/tinyopds/pkg/books"
	"github.com/tinyopds/tinyopds/pkg/genres"
)

const containerPath = "META-INF/container.xml"

type containerXML struct {
	XMLName   xml.Name `xml:"container"`
	Rootfiles struct {
		Rootfile []struct {
			FullPath  string `xml:"full-path,attr"`
			MediaType string `xml:"media-type,attr"`
		} `xml:"rootfile"`
	} `xml:"rootfiles"`
}

type packageXML struct {
	XMLName  xml.Name `xml:"package"`
	Metadata struct {
		Title      []string `xml:"title"`
		Creator    []string `xml:"creator"`
		Identifier []string `xml:"identifier"`
		Language   []string `xml:"language"`
		Date       []string `xml:"date"`
		Subject    []string `xml:"subject"`
	} `xml:"metadata"`
	Manifest struct {
		Item []struct {
			ID        string `xml:"id,attr"`
			Href      string `xml:"href,attr"`
			MediaType string `xml:"media-type,attr"`
		} `xml:"item"`
	} `xml:"manifest"`
}

// Parser reads EPUB headers. Subjects are resolved to genre tags through
// the taxonomy's Soundex map.
type Parser struct {
	Taxonomy *genres.Taxonomy
}

// NewParser creates a parser bound to the given taxonomy.
func NewParser(taxonomy *genres.Taxonomy) *Parser {
	return &Parser{Taxonomy: taxonomy}
}

// Parse extracts a Book descriptor from an EPUB stream. Malformed input
// yields a book with missing fields rather than an error; the caller's
// stream is not closed.
func (p *Parser) Parse(r io.Reader, fileName string) *books.Book {
	book := books.NewBook(fileName)

	data, err := io.ReadAll(r)
	if err != nil {
		return book
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return book
	}

	pkg, _, err := readPackage(zr)
	if err != nil {
		return book
	}

	if len(pkg.Metadata.Title) > 0 {
		book.Title = strings.TrimSpace(pkg.Metadata.Title[0])
	}
	if len(pkg.Metadata.Identifier) > 0 {
		book.ID = strings.TrimSpace(pkg.Metadata.Identifier[0])
	}
	if len(pkg.Metadata.Language) > 0 {
		book.Language = strings.TrimSpace(pkg.Metadata.Language[0])
	}
	for _, c := range pkg.Metadata.Creator {
		if c = strings.TrimSpace(c); c != "" {
			book.Authors = append(book.Authors, books.Capitalize(c))
		}
	}
	if len(pkg.Metadata.Date) > 0 {
		book.BookDate = parseDate(pkg.Metadata.Date[0])
	}

	for _, subject := range pkg.Metadata.Subject {
		if subject = strings.TrimSpace(subject); subject != "" && p.Taxonomy != nil {
			book.Genres = append(book.Genres, p.Taxonomy.MatchSubject(subject))
		}
	}
	if len(book.Genres) == 0 {
		book.Genres = []string{"prose"}
	}

	for _, item := range pkg.Manifest.Item {
		if strings.Contains(strings.ToLower(item.ID), "cover") && isImageType(item.MediaType) {
			book.HasCover = true
			break
		}
	}

	book.EnsureID()
	return book
}

// GetCover returns the raw bytes of the manifest's cover image, or nil when
// the package declares none.
func (p *Parser) GetCover(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, errors.Wrap(err, "open epub container")
	}

	pkg, opfPath, err := readPackage(zr)
	if err != nil {
		return nil, err
	}

	for _, item := range pkg.Manifest.Item {
		if !strings.Contains(strings.ToLower(item.ID), "cover") || !isImageType(item.MediaType) {
			continue
		}
		href := path.Join(path.Dir(opfPath), item.Href)
		f, err := zr.Open(href)
		if err != nil {
			return nil, errors.Wrapf(err, "open cover entry %s", href)
		}
		img, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, errors.WithStack(err)
		}
		return img, nil
	}
	return nil, nil
}

func readPackage(zr *zip.Reader) (*packageXML, string, error) {
	cf, err := zr.Open(containerPath)
	if err != nil {
		return nil, "", errors.Wrap(err, "missing container.xml")
	}
	defer cf.Close()

	var container containerXML
	if err := xml.NewDecoder(cf).Decode(&container); err != nil {
		return nil, "", errors.Wrap(err, "parse container.xml")
	}

	opfPath := ""
	for _, rf := range container.Rootfiles.Rootfile {
		if rf.FullPath != "" {
			opfPath = rf.FullPath
			break
		}
	}
	if opfPath == "" {
		return nil, "", errors.New("container.xml names no rootfile")
	}

	of, err := zr.Open(opfPath)
	if err != nil {
		return nil, "", errors.Wrapf(err, "open rootfile %s", opfPath)
	}
	defer of.Close()

	var pkg packageXML
	if err := xml.NewDecoder(of).Decode(&pkg); err != nil {
		return nil, "", errors.Wrap(err, "parse opf package")
	}
	return &pkg, opfPath, nil
}

func isImageType(mediaType string) bool {
	return mediaType == "image/jpeg" || mediaType == "image/png"
}

var yearRe = regexp.MustCompile(`\b(\d{4})\b`)

func parseDate(s string) time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range []string{time.RFC3339, "2006-01-02", "2006-01", "2006"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	if m := yearRe.FindStringSubmatch(s); m != nil {
		if t, err := time.Parse("2006", m[1]); err == nil {
			return t
		}
	}
	return time.Time{}
}
