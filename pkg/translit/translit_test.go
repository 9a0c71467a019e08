package translit

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFront(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Tolstojj", Front("Толстой"))
	assert.Equal(t, "Vojjna i mir", Front("Война и мир"))
	assert.Equal(t, "Shhuka", Front("Щука"))
	// Hard and soft signs are dropped.
	assert.Equal(t, "obem", Front("объем"))
	// Latin passes through untouched.
	assert.Equal(t, "Hello, mir", Front("Hello, мир"))
}

func TestFileName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Tolstojj_Lev", FileName("Толстой Лев"))
	assert.Equal(t, "Vojjna_i_mir", FileName("Война и мир"))
	assert.Equal(t, "War_and_Peace", FileName("War and Peace"))
}

// Download names are built inside concurrent request handlers; the output
// must stay byte-for-byte stable.
func TestFileNameConcurrent(t *testing.T) {
	t.Parallel()

	const workers, calls = 8, 200
	out := make([][]string, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < calls; j++ {
				out[i] = append(out[i], FileName("Война и мир"))
			}
		}(i)
	}
	wg.Wait()

	for _, results := range out {
		for _, got := range results {
			assert.Equal(t, "Vojjna_i_mir", got)
		}
	}
}
