package testgen

import (
	"archive/zip"
	"bytes"
	"fmt"
	"testing"
)

// GenerateEPUB builds an EPUB container in memory: mimetype, container.xml,
// content.opf with metadata, one chapter, and optionally a cover image.
func GenerateEPUB(t *testing.T, opts EPUBOptions) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	// mimetype must be first and stored uncompressed.
	w, err := zw.CreateHeader(&zip.FileHeader{Name: "mimetype", Method: zip.Store})
	if err != nil {
		t.Fatalf("failed to create mimetype entry: %v", err)
	}
	if _, err := w.Write([]byte("application/epub+zip")); err != nil {
		t.Fatalf("failed to write mimetype: %v", err)
	}

	containerXML := `<?xml version="1.0" encoding="UTF-8"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>`
	if err := writeZipFile(zw, "META-INF/container.xml", []byte(containerXML)); err != nil {
		t.Fatalf("failed to write container.xml: %v", err)
	}

	coverMimeType := opts.CoverMimeType
	if coverMimeType == "" {
		coverMimeType = "image/jpeg"
	}
	coverName := "cover.jpg"
	if coverMimeType == "image/png" {
		coverName = "cover.png"
	}
	if opts.HasCover {
		if err := writeZipFile(zw, "OEBPS/"+coverName, generateImage(t, coverMimeType)); err != nil {
			t.Fatalf("failed to write cover image: %v", err)
		}
	}

	if err := writeZipFile(zw, "OEBPS/content.opf", []byte(generateOPF(opts, coverName, coverMimeType))); err != nil {
		t.Fatalf("failed to write content.opf: %v", err)
	}

	chapter := `<?xml version="1.0" encoding="UTF-8"?>
<html xmlns="http://www.w3.org/1999/xhtml"><body><p>Text.</p></body></html>`
	if err := writeZipFile(zw, "OEBPS/chapter1.xhtml", []byte(chapter)); err != nil {
		t.Fatalf("failed to write chapter1.xhtml: %v", err)
	}

	if err := zw.Close(); err != nil {
		t.Fatalf("failed to close epub: %v", err)
	}
	return buf.Bytes()
}

// GenerateEPUBFile writes a generated EPUB to dir/filename and returns its
// full path.
func GenerateEPUBFile(t *testing.T, dir, filename string, opts EPUBOptions) string {
	t.Helper()
	return WriteFile(t, dir, filename, GenerateEPUB(t, opts))
}

func generateOPF(opts EPUBOptions, coverName, coverMimeType string) string {
	var buf bytes.Buffer
	buf.WriteString(`<?xml version="1.0" encoding="UTF-8"?>
<package version="3.0" xmlns="http://www.idpf.org/2007/opf" unique-identifier="bookid">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
`)
	if opts.Title != "" {
		fmt.Fprintf(&buf, "    <dc:title>%s</dc:title>\n", escapeXML(opts.Title))
	}
	for _, a := range opts.Authors {
		fmt.Fprintf(&buf, "    <dc:creator>%s</dc:creator>\n", escapeXML(a))
	}
	for _, s := range opts.Subjects {
		fmt.Fprintf(&buf, "    <dc:subject>%s</dc:subject>\n", escapeXML(s))
	}
	buf.WriteString("    <dc:identifier id=\"bookid\">urn:uuid:test-book-id</dc:identifier>\n")
	if opts.Language != "" {
		fmt.Fprintf(&buf, "    <dc:language>%s</dc:language>\n", opts.Language)
	}
	if opts.Date != "" {
		fmt.Fprintf(&buf, "    <dc:date>%s</dc:date>\n", opts.Date)
	}
	buf.WriteString("  </metadata>\n  <manifest>\n")
	if opts.HasCover {
		fmt.Fprintf(&buf, "    <item id=\"cover-image\" href=\"%s\" media-type=\"%s\"/>\n", coverName, coverMimeType)
	}
	buf.WriteString(`    <item id="chapter1" href="chapter1.xhtml" media-type="application/xhtml+xml"/>
  </manifest>
  <spine>
    <itemref idref="chapter1"/>
  </spine>
</package>`)
	return buf.String()
}
