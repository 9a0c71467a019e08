// Package translit converts Cyrillic text to its ASCII form for the file
// names embedded in downloaded archives. The Cyrillic table is fixed:
// existing OPDS clients key on the generated names, so its output must not
// drift. Everything outside the table is delegated to slug.
package translit

import (
	"strings"
	"unicode"

	"github.com/gosimple/slug"
)

var front = map[rune]string{
	'а': "a", 'б': "b", 'в': "v", 'г': "g", 'д': "d", 'е': "e", 'ё': "jo",
	'ж': "zh", 'з': "z", 'и': "i", 'й': "jj", 'к': "k", 'л': "l", 'м': "m",
	'н': "n", 'о': "o", 'п': "p", 'р': "r", 'с': "s", 'т': "t", 'у': "u",
	'ф': "f", 'х': "kh", 'ц': "c", 'ч': "ch", 'ш': "sh", 'щ': "shh",
	'ъ': "", 'ы': "y", 'ь': "", 'э': "eh", 'ю': "ju", 'я': "ja",
}

// Front transliterates a string using the fixed Cyrillic table, preserving
// capitalization of the first output letter of each source letter.
func Front(s string) string {
	var b strings.Builder
	for _, r := range s {
		lower := unicode.ToLower(r)
		t, ok := front[lower]
		if !ok {
			b.WriteRune(r)
			continue
		}
		if t == "" {
			continue
		}
		if unicode.IsUpper(r) {
			b.WriteString(strings.ToUpper(t[:1]) + t[1:])
		} else {
			b.WriteString(t)
		}
	}
	return b.String()
}

// slug is configured once here; mutating its package state per call would
// race between concurrent feed builds.
func init() {
	slug.Lowercase = false
}

// FileName produces a safe ASCII file name fragment: Cyrillic goes through
// the fixed table, anything else through slug transliteration, spaces
// become underscores.
func FileName(s string) string {
	return strings.ReplaceAll(slug.Make(Front(s)), "-", "_")
}
