package testgen

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"strings"
	"testing"

	"golang.org/x/text/encoding/charmap"
)

// GenerateFB2 builds an FB2 document in memory.
func GenerateFB2(t *testing.T, opts FB2Options) []byte {
	t.Helper()

	encoding := opts.Encoding
	if encoding == "" {
		encoding = "utf-8"
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "<?xml version=\"1.0\" encoding=\"%s\"?>\n", encoding)
	buf.WriteString(`<FictionBook xmlns="http://www.gribuser.ru/xml/fictionbook/2.0" xmlns:l="http://www.w3.org/1999/xlink">` + "\n")
	buf.WriteString("<description>\n<title-info>\n")

	for _, g := range opts.Genres {
		fmt.Fprintf(&buf, "<genre>%s</genre>\n", escapeXML(g))
	}
	for _, a := range opts.Authors {
		first, last, _ := strings.Cut(a, " ")
		buf.WriteString("<author>")
		fmt.Fprintf(&buf, "<first-name>%s</first-name>", escapeXML(first))
		if last != "" {
			fmt.Fprintf(&buf, "<last-name>%s</last-name>", escapeXML(last))
		}
		buf.WriteString("</author>\n")
	}
	fmt.Fprintf(&buf, "<book-title>%s</book-title>\n", escapeXML(opts.Title))
	if opts.Annotation != "" {
		fmt.Fprintf(&buf, "<annotation><p>%s</p></annotation>\n", escapeXML(opts.Annotation))
	}
	if opts.BookDate != "" {
		fmt.Fprintf(&buf, "<date>%s</date>\n", opts.BookDate)
	}
	if opts.HasCover {
		buf.WriteString(`<coverpage><image l:href="#cover.jpg"/></coverpage>` + "\n")
	}
	if opts.Language != "" {
		fmt.Fprintf(&buf, "<lang>%s</lang>\n", opts.Language)
	}
	if opts.Sequence != "" {
		fmt.Fprintf(&buf, `<sequence name="%s" number="%d"/>`+"\n", escapeXML(opts.Sequence), opts.SeqNumber)
	}
	buf.WriteString("</title-info>\n<document-info>\n")
	if opts.ID != "" {
		fmt.Fprintf(&buf, "<id>%s</id>\n", opts.ID)
	}
	if opts.Version != "" {
		fmt.Fprintf(&buf, "<version>%s</version>\n", opts.Version)
	}
	if opts.DocumentDate != "" {
		fmt.Fprintf(&buf, `<date value="%s">%s</date>`+"\n", opts.DocumentDate, opts.DocumentDate)
	}
	buf.WriteString("</document-info>\n</description>\n")
	buf.WriteString("<body><section><p>Text.</p></section></body>\n")
	if opts.HasCover {
		cover := base64.StdEncoding.EncodeToString(generateImage(t, "image/jpeg"))
		fmt.Fprintf(&buf, `<binary id="cover.jpg" content-type="image/jpeg">%s</binary>`+"\n", cover)
	}
	buf.WriteString("</FictionBook>\n")

	out := buf.Bytes()
	if strings.EqualFold(encoding, "windows-1251") {
		encoded, err := charmap.Windows1251.NewEncoder().Bytes(out)
		if err != nil {
			t.Fatalf("failed to encode fb2 as windows-1251: %v", err)
		}
		out = encoded
	}
	return out
}

// GenerateFB2File writes a generated FB2 document to dir/filename and
// returns its full path.
func GenerateFB2File(t *testing.T, dir, filename string, opts FB2Options) string {
	t.Helper()
	return WriteFile(t, dir, filename, GenerateFB2(t, opts))
}
