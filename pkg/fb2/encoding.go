package fb2

import (
	"bytes"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

// Encoding names recognized by DetectEncoding.
const (
	EncUTF8        = "utf-8"
	EncUTF16LE     = "utf-16le"
	EncUTF16BE     = "utf-16be"
	EncCP866       = "cp866"
	EncWindows1251 = "windows-1251"
	EncKOI8R       = "koi8-r"
	EncWindows1252 = "windows-1252"
	EncISO88591    = "iso-8859-1"
)

var xmlDeclEncoding = regexp.MustCompile(`(?i)<\?xml[^>]*encoding=["']([^"']+)["']`)

// DetectEncoding inspects raw bytes and names the encoding they most likely
// use: BOMs first, then the XML declaration, then content heuristics.
func DetectEncoding(data []byte) string {
	switch {
	case len(data) >= 2 && data[0] == 0xFF && data[1] == 0xFE:
		return EncUTF16LE
	case len(data) >= 2 && data[0] == 0xFE && data[1] == 0xFF:
		return EncUTF16BE
	}

	if m := xmlDeclEncoding.FindSubmatch(data); m != nil {
		switch strings.ToLower(string(m[1])) {
		case "utf-8":
			return EncUTF8
		case "utf-16", "utf-16le":
			return EncUTF16LE
		case "utf-16be":
			return EncUTF16BE
		case "cp866", "ibm866":
			return EncCP866
		case "windows-1251", "cp1251":
			return EncWindows1251
		case "koi8-r", "koi8r":
			return EncKOI8R
		case "windows-1252", "cp1252":
			return EncWindows1252
		case "iso-8859-1", "latin1":
			return EncISO88591
		}
	}

	if utf8.Valid(data) {
		return EncUTF8
	}
	return EncWindows1251
}

// Decode converts raw bytes in the named encoding to a UTF-8 string.
// Unknown names decode as UTF-8.
func Decode(data []byte, name string) (string, error) {
	var enc encoding.Encoding
	switch name {
	case EncUTF16LE:
		enc = unicode.UTF16(unicode.LittleEndian, unicode.UseBOM)
	case EncUTF16BE:
		enc = unicode.UTF16(unicode.BigEndian, unicode.UseBOM)
	case EncCP866:
		enc = charmap.CodePage866
	case EncWindows1251:
		enc = charmap.Windows1251
	case EncKOI8R:
		enc = charmap.KOI8R
	case EncWindows1252:
		enc = charmap.Windows1252
	case EncISO88591:
		enc = charmap.ISO8859_1
	default:
		return string(bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})), nil
	}
	out, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
