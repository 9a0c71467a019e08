// Package fb2 reads FictionBook 2 headers. Only the description element is
// parsed; bodies and binaries are skipped except when a cover is requested.
package fb2

import (
	"archive/zip"
	"bytes"
	"encoding/base64"
	"encoding/xml"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/tinyopds/tinyopds/pkg/books"
	"golang.org/x/net/html/charset"
)

type personXML struct {
	First  string `xml:"first-name"`
	Middle string `xml:"middle-name"`
	Last   string `xml:"last-name"`
}

func (p personXML) String() string {
	return books.Capitalize(strings.Join(strings.Fields(p.Last+" "+p.First+" "+p.Middle), " "))
}

type dateXML struct {
	Value string `xml:"value,attr"`
	Text  string `xml:",chardata"`
}

// annotationXML flattens nested paragraph markup into plain text.
type annotationXML struct {
	Text string
}

func (a *annotationXML) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	var b strings.Builder
	for {
		tok, err := d.Token()
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.CharData:
			b.WriteString(string(t))
		case xml.EndElement:
			if t.Name == start.Name {
				a.Text = strings.Join(strings.Fields(b.String()), " ")
				return nil
			}
			b.WriteString(" ")
		}
	}
}

type descriptionXML struct {
	TitleInfo struct {
		Genres     []string      `xml:"genre"`
		Authors    []personXML   `xml:"author"`
		BookTitle  string        `xml:"book-title"`
		Annotation annotationXML `xml:"annotation"`
		Date       dateXML       `xml:"date"`
		Coverpage  struct {
			Image struct {
				Href string `xml:"href,attr"`
			} `xml:"image"`
		} `xml:"coverpage"`
		Lang        string      `xml:"lang"`
		Translators []personXML `xml:"translator"`
		Sequences   []struct {
			Name   string `xml:"name,attr"`
			Number string `xml:"number,attr"`
		} `xml:"sequence"`
	} `xml:"title-info"`
	DocumentInfo struct {
		ID      string  `xml:"id"`
		Version string  `xml:"version"`
		Date    dateXML `xml:"date"`
	} `xml:"document-info"`
}

// Parse extracts a Book descriptor from an FB2 stream. Malformed input
// never yields an error: the &nbsp; entity common in the wild is rewritten
// up front, illegal characters are stripped on a retry, and whatever fields
// survive end up on the returned book (an unparsable file simply fails
// IsValid). The caller's stream is not closed.
func Parse(r io.Reader, fileName string) *books.Book {
	book := books.NewBook(fileName)

	data, err := io.ReadAll(r)
	if err != nil {
		return book
	}
	data = repairEntities(unwrapZip(data))

	desc, err := parseDescription(data)
	if err != nil {
		data = stripIllegalChars(data)
		if desc, err = parseDescription(data); err != nil {
			return book
		}
	}

	book.ID = desc.DocumentInfo.ID
	if v, err := strconv.ParseFloat(strings.TrimSpace(desc.DocumentInfo.Version), 32); err == nil {
		book.Version = float32(v)
	}
	book.DocumentDate = parseDate(desc.DocumentInfo.Date)
	book.BookDate = parseDate(desc.TitleInfo.Date)

	book.Title = strings.TrimSpace(desc.TitleInfo.BookTitle)
	book.Annotation = desc.TitleInfo.Annotation.Text
	book.Language = strings.TrimSpace(desc.TitleInfo.Lang)
	book.HasCover = desc.TitleInfo.Coverpage.Image.Href != ""

	if len(desc.TitleInfo.Sequences) > 0 {
		seq := desc.TitleInfo.Sequences[0]
		book.Sequence = books.Capitalize(seq.Name)
		if n, err := strconv.ParseUint(strings.TrimSpace(seq.Number), 10, 32); err == nil {
			book.NumberInSequence = uint32(n)
		}
	}

	for _, a := range desc.TitleInfo.Authors {
		if s := a.String(); s != "" {
			book.Authors = append(book.Authors, s)
		}
	}
	for _, t := range desc.TitleInfo.Translators {
		if s := t.String(); s != "" {
			book.Translators = append(book.Translators, s)
		}
	}
	for _, g := range desc.TitleInfo.Genres {
		if g = strings.TrimSpace(g); g != "" {
			book.Genres = append(book.Genres, g)
		}
	}

	book.EnsureID()
	return book
}

// GetCover returns the decoded coverpage image, or nil when the file
// declares none.
func GetCover(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	data = repairEntities(unwrapZip(data))

	desc, err := parseDescription(data)
	if err != nil {
		data = stripIllegalChars(data)
		if desc, err = parseDescription(data); err != nil {
			return nil, errors.Wrap(err, "parse fb2 header")
		}
	}

	href := strings.TrimPrefix(desc.TitleInfo.Coverpage.Image.Href, "#")
	if href == "" {
		return nil, nil
	}

	// Binaries live after the bodies; scan for the one the cover references.
	dec := newDecoder(data)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return nil, nil
		}
		if err != nil {
			return nil, errors.Wrap(err, "scan fb2 binaries")
		}
		se, ok := tok.(xml.StartElement)
		if !ok || se.Name.Local != "binary" {
			continue
		}
		var bin struct {
			ID      string `xml:"id,attr"`
			Content string `xml:",chardata"`
		}
		if err := dec.DecodeElement(&bin, &se); err != nil {
			return nil, errors.Wrap(err, "decode fb2 binary")
		}
		if bin.ID != href {
			continue
		}
		img, err := base64.StdEncoding.DecodeString(strings.Join(strings.Fields(bin.Content), ""))
		if err != nil {
			return nil, errors.Wrap(err, "decode cover image")
		}
		return img, nil
	}
}

func newDecoder(data []byte) *xml.Decoder {
	var r io.Reader = bytes.NewReader(data)

	// UTF-16 input and undeclared legacy encodings are decoded up front;
	// declared 8-bit encodings are left to the decoder's CharsetReader.
	enc := DetectEncoding(data)
	if enc == EncUTF16LE || enc == EncUTF16BE ||
		(enc != EncUTF8 && xmlDeclEncoding.FindSubmatch(data) == nil) {
		if s, err := Decode(data, enc); err == nil {
			s = xmlDeclEncoding.ReplaceAllString(s, `<?xml version="1.0"`)
			r = strings.NewReader(s)
		}
	}

	dec := xml.NewDecoder(r)
	dec.CharsetReader = charset.NewReaderLabel
	dec.Strict = false
	return dec
}

// parseDescription streams tokens until the description element is fully
// decoded, leaving the body untouched.
func parseDescription(data []byte) (*descriptionXML, error) {
	dec := newDecoder(data)
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		if se, ok := tok.(xml.StartElement); ok && se.Name.Local == "description" {
			var desc descriptionXML
			if err := dec.DecodeElement(&desc, &se); err != nil {
				return nil, err
			}
			return &desc, nil
		}
	}
}

var zipMagic = []byte{0x50, 0x4B, 0x03, 0x04}

// unwrapZip extracts the first .fb2 entry of a zip-packed .fb2.zip file.
// Non-zip input passes through untouched.
func unwrapZip(data []byte) []byte {
	if !bytes.HasPrefix(data, zipMagic) {
		return data
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return data
	}
	for _, f := range zr.File {
		if !strings.HasSuffix(strings.ToLower(f.Name), ".fb2") {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return data
		}
		inner, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return data
		}
		return inner
	}
	return data
}

var nbsp = []byte("&nbsp;")

func repairEntities(data []byte) []byte {
	return bytes.ReplaceAll(data, nbsp, []byte("&#160;"))
}

// stripIllegalChars removes characters outside the XML 1.0 legal ranges.
// The input is decoded with its detected encoding first: stripping raw
// legacy-encoded bytes would turn them into replacement runes, which are
// legal and would survive into the retry parse. The declared encoding is
// dropped from the XML declaration so the output is read back as UTF-8.
func stripIllegalChars(data []byte) []byte {
	s, err := Decode(data, DetectEncoding(data))
	if err != nil {
		s = string(data)
	}
	s = xmlDeclEncoding.ReplaceAllString(s, `<?xml version="1.0"`)

	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r == 0x9 || r == 0xA || r == 0xD ||
			(r >= 0x20 && r <= 0xD7FF) ||
			(r >= 0xE000 && r <= 0xFFFD) ||
			(r >= 0x10000 && r <= 0x10FFFF) {
			out = append(out, r)
		}
	}
	return []byte(string(out))
}

func parseDate(d dateXML) time.Time {
	for _, s := range []string{strings.TrimSpace(d.Value), strings.TrimSpace(d.Text)} {
		if s == "" {
			continue
		}
		for _, layout := range []string{"2006-01-02", "2006-01", "2006"} {
			if t, err := time.Parse(layout, s); err == nil {
				return t
			}
		}
	}
	return time.Time{}
}
