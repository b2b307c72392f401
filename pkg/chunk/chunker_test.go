package chunk

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}
	cfg.SetDefaults()
	assert.Equal(t, 2048, cfg.ChunkSize)
	assert.Equal(t, 200, cfg.ChunkOverlap)
	assert.NoError(t, cfg.Validate())
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"zero size", Config{ChunkSize: 0, ChunkOverlap: 0}},
		{"negative overlap", Config{ChunkSize: 100, ChunkOverlap: -1}},
		{"overlap too large", Config{ChunkSize: 100, ChunkOverlap: 100}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.cfg.Validate())
		})
	}
}

func TestChunkShortText(t *testing.T) {
	c := New(Config{ChunkSize: 100, ChunkOverlap: 10})
	chunks := c.Chunk("short text")
	assert.Equal(t, []string{"short text"}, chunks)
}

func TestChunkEmpty(t *testing.T) {
	c := New(Config{ChunkSize: 100, ChunkOverlap: 10})
	assert.Nil(t, c.Chunk(""))
	assert.Nil(t, c.Chunk("   \n\n  "))
}

func TestChunkPrefersParagraphBreaks(t *testing.T) {
	para1 := strings.Repeat("alpha ", 10)
	para2 := strings.Repeat("beta ", 10)
	text := para1 + "\n\n" + para2

	c := New(Config{ChunkSize: 70, ChunkOverlap: 10})
	chunks := c.Chunk(text)

	require.Len(t, chunks, 2)
	assert.Contains(t, chunks[0], "alpha")
	assert.NotContains(t, chunks[0], "beta")
	assert.Contains(t, chunks[1], "beta")
}

func TestChunkRespectsSizeLimit(t *testing.T) {
	text := strings.Repeat("word ", 1000)
	c := New(Config{ChunkSize: 200, ChunkOverlap: 20})

	chunks := c.Chunk(text)
	require.NotEmpty(t, chunks)
	for i, chunk := range chunks {
		assert.LessOrEqual(t, len([]rune(chunk)), 200, "chunk %d exceeds size", i)
	}
}

func TestChunkMergeKeepsSizeBound(t *testing.T) {
	c := New(Config{ChunkSize: 10, ChunkOverlap: 3})
	chunks := c.Chunk("aaaaaaaa bbbbbbbb cccccccc")

	require.NotEmpty(t, chunks)
	for i, chunk := range chunks {
		assert.LessOrEqual(t, len([]rune(chunk)), 10, "chunk %d: %q", i, chunk)
		assert.NotContains(t, chunk, "  ", "chunk %d repeats the separator: %q", i, chunk)
	}
}

func TestChunkNeverExceedsConfiguredSize(t *testing.T) {
	texts := []string{
		strings.Repeat("aaaaaaaa bbbbbbbb cccccccc ", 10),
		strings.Repeat("alpha beta gamma delta epsilon ", 40),
		strings.Repeat("word ", 200) + "\n\n" + strings.Repeat("term ", 200),
	}
	for _, size := range []int{10, 32, 100} {
		for _, overlap := range []int{0, 3, size / 4} {
			c := New(Config{ChunkSize: size, ChunkOverlap: overlap})
			for _, text := range texts {
				for i, chunk := range c.Chunk(text) {
					assert.LessOrEqual(t, len([]rune(chunk)), size,
						"size=%d overlap=%d chunk %d: %q", size, overlap, i, chunk)
				}
			}
		}
	}
}

func TestChunkOverlapCarriesContext(t *testing.T) {
	text := strings.Repeat("one two three four five ", 50)
	c := New(Config{ChunkSize: 100, ChunkOverlap: 30})

	chunks := c.Chunk(text)
	require.Greater(t, len(chunks), 1)

	// The tail of each chunk reappears at the head of the next.
	for i := 1; i < len(chunks); i++ {
		prevTail := chunks[i-1][len(chunks[i-1])-10:]
		firstWord := strings.Fields(prevTail)
		require.NotEmpty(t, firstWord)
		assert.Contains(t, chunks[i][:40], strings.TrimSpace(firstWord[len(firstWord)-1]))
	}
}

func TestChunkHardSplitWithoutSeparators(t *testing.T) {
	text := strings.Repeat("x", 500)
	c := New(Config{ChunkSize: 100, ChunkOverlap: 10})

	chunks := c.Chunk(text)
	require.NotEmpty(t, chunks)
	for _, chunk := range chunks {
		assert.LessOrEqual(t, len([]rune(chunk)), 100)
	}
	assert.GreaterOrEqual(t, len(chunks), 5)
}

func TestChunkMultibyteRunes(t *testing.T) {
	text := strings.Repeat("한국어 문서 검색 ", 100)
	c := New(Config{ChunkSize: 50, ChunkOverlap: 5})

	chunks := c.Chunk(text)
	require.NotEmpty(t, chunks)
	for _, chunk := range chunks {
		assert.LessOrEqual(t, len([]rune(chunk)), 50)
	}
}

func TestTokenSplitter(t *testing.T) {
	ts, err := NewTokenSplitter(50, 10)
	require.NoError(t, err)

	short := "a brief sentence"
	assert.Equal(t, []string{short}, ts.Split(short))

	long := strings.Repeat("the quick brown fox jumps over the lazy dog ", 40)
	pieces := ts.Split(long)
	require.Greater(t, len(pieces), 1)
	for _, p := range pieces {
		assert.LessOrEqual(t, ts.Count(p), 50)
	}

	// Reassembled pieces cover the original text.
	assert.Contains(t, pieces[0], "the quick brown fox")
}

func TestNewTokenSplitterRejectsBadSizes(t *testing.T) {
	_, err := NewTokenSplitter(0, 0)
	assert.Error(t, err)
	_, err = NewTokenSplitter(10, 10)
	assert.Error(t, err)
}
