package genres

import (
	"strings"
	"unicode"
)

// Soundex computes the classic 4-character American Soundex code for a
// single word. Non-ASCII letters are ignored, so Cyrillic names fall back
// to an empty code and never collide with Latin ones.
func Soundex(word string) string {
	var out []byte
	var last byte
	for _, r := range word {
		r = unicode.ToUpper(r)
		if r < 'A' || r > 'Z' {
			continue
		}
		code := soundexCode(byte(r))
		if len(out) == 0 {
			out = append(out, byte(r))
			last = code
			continue
		}
		if code == 0 {
			last = 0
			continue
		}
		if code != last {
			out = append(out, '0'+code)
			last = code
		}
		if len(out) == 4 {
			break
		}
	}
	if len(out) == 0 {
		return ""
	}
	for len(out) < 4 {
		out = append(out, '0')
	}
	return string(out)
}

// SoundexByWord soundexes every whitespace/comma-separated token and joins
// the codes with spaces. Word count therefore survives the transform.
func SoundexByWord(s string) string {
	words := splitWords(s)
	codes := make([]string, 0, len(words))
	for _, w := range words {
		if c := Soundex(w); c != "" {
			codes = append(codes, c)
		}
	}
	return strings.Join(codes, " ")
}

func soundexCode(c byte) byte {
	switch c {
	case 'B', 'F', 'P', 'V':
		return 1
	case 'C', 'G', 'J', 'K', 'Q', 'S', 'X', 'Z':
		return 2
	case 'D', 'T':
		return 3
	case 'L':
		return 4
	case 'M', 'N':
		return 5
	case 'R':
		return 6
	}
	return 0
}
