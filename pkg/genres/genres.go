package genres

import (
	_ "embed"
	"encoding/xml"
	"strings"

	"github.com/pkg/errors"
)

//go:embed genres.xml
var genresXML []byte

// Genre is a top-level category of the FB2 genre taxonomy.
type Genre struct {
	Name        string     `xml:"name,attr"`
	Translation string     `xml:"ru,attr"`
	Subgenres   []Subgenre `xml:"subgenre"`
}

// Subgenre is a leaf of the taxonomy carrying the machine tag that book
// files reference.
type Subgenre struct {
	Tag         string `xml:"tag,attr"`
	Translation string `xml:"ru,attr"`
	Name        string `xml:",chardata"`
}

// Taxonomy is the genre tree plus the derived Soundex lookup used to match
// free-form EPUB subjects against FB2 genre tags.
type Taxonomy struct {
	Genres []Genre

	byTag    map[string]Subgenre
	soundexd map[string]string
}

type genresDoc struct {
	XMLName xml.Name `xml:"genres"`
	Genres  []Genre  `xml:"genre"`
}

// Load parses the bundled taxonomy resource and builds the derived maps.
func Load() (*Taxonomy, error) {
	return loadFrom(genresXML)
}

func loadFrom(data []byte) (*Taxonomy, error) {
	var doc genresDoc
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, "parse genres resource")
	}

	t := &Taxonomy{
		Genres:   doc.Genres,
		byTag:    map[string]Subgenre{},
		soundexd: map[string]string{},
	}
	for _, g := range doc.Genres {
		for _, sg := range g.Subgenres {
			name := strings.TrimSpace(sg.Name)
			sg.Name = name
			t.byTag[sg.Tag] = sg
			t.soundexd[SoundexByWord(name)] = sg.Tag
			t.soundexd[SoundexByWord(reverseWords(name))] = sg.Tag
		}
	}
	return t, nil
}

// Subgenre returns the taxonomy entry for a machine tag.
func (t *Taxonomy) Subgenre(tag string) (Subgenre, bool) {
	sg, ok := t.byTag[tag]
	return sg, ok
}

// Name returns the display name for a tag, localized when ru is requested.
// Unknown tags come back verbatim.
func (t *Taxonomy) Name(tag string, russian bool) string {
	sg, ok := t.byTag[tag]
	if !ok {
		return tag
	}
	if russian && sg.Translation != "" {
		return sg.Translation
	}
	return sg.Name
}

// MatchSubject fuzzy-matches a free-form subject string (an EPUB dc:subject
// value) to a genre tag. A soundexed key matches when it starts with the
// subject's soundex and was built from at most one word more than the
// subject has. Falls back to "prose".
func (t *Taxonomy) MatchSubject(subject string) string {
	sdx := SoundexByWord(subject)
	if sdx != "" {
		words := wordCount(subject)
		for key, tag := range t.soundexd {
			if strings.HasPrefix(key, sdx) && wordCount(key) <= words+1 {
				return tag
			}
		}
	}
	return "prose"
}

func reverseWords(s string) string {
	words := splitWords(s)
	for i, j := 0, len(words)-1; i < j; i, j = i+1, j-1 {
		words[i], words[j] = words[j], words[i]
	}
	return strings.Join(words, " ")
}

func splitWords(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == ',' || r == '\t'
	})
}

func wordCount(s string) int {
	return len(splitWords(s))
}
