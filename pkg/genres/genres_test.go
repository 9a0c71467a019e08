package genres

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Parallel()

	taxonomy, err := Load()
	require.NoError(t, err)
	assert.NotEmpty(t, taxonomy.Genres)

	sg, ok := taxonomy.Subgenre("sf")
	require.True(t, ok)
	assert.Equal(t, "Science Fiction", sg.Name)
	assert.Equal(t, "Научная фантастика", sg.Translation)

	_, ok = taxonomy.Subgenre("no_such_tag")
	assert.False(t, ok)
}

func TestName(t *testing.T) {
	t.Parallel()

	taxonomy, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "Poetry", taxonomy.Name("poetry", false))
	assert.Equal(t, "Поэзия", taxonomy.Name("poetry", true))
	assert.Equal(t, "unknown_tag", taxonomy.Name("unknown_tag", false))
}

func TestMatchSubject(t *testing.T) {
	t.Parallel()

	taxonomy, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sf_cyberpunk", taxonomy.MatchSubject("Cyberpunk"))
	assert.Equal(t, "thriller", taxonomy.MatchSubject("Thriller"))
	// Misspellings with the same consonant skeleton still match.
	assert.Equal(t, "sf_cyberpunk", taxonomy.MatchSubject("Cyberpunck"))
	// Unmatchable subjects fall back to prose.
	assert.Equal(t, "prose", taxonomy.MatchSubject("Quantum Baking Almanac"))
	assert.Equal(t, "prose", taxonomy.MatchSubject(""))
}

func TestSoundex(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "R163", Soundex("Robert"))
	assert.Equal(t, "R163", Soundex("Rupert"))
	assert.Equal(t, "T522", Soundex("Tymczak"))
	assert.Equal(t, "", Soundex(""))
	assert.Equal(t, "", Soundex("123"))
}

func TestSoundexByWord(t *testing.T) {
	t.Parallel()

	assert.Equal(t, Soundex("Science")+" "+Soundex("Fiction"), SoundexByWord("Science Fiction"))
	assert.Equal(t, "", SoundexByWord("   "))
}
