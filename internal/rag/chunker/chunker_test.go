package chunker

import (
	"fmt"
	"strings"
	"testing"
	"unicode"

	"github.com/akolanti/ResearchAssistant/internal/domain/commonModels"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// reconstruct glues chunks back together, skipping the prefix each one shares with the previous.
func reconstruct(t *testing.T, chunks []commonModels.Chunk) string {
	t.Helper()
	var b strings.Builder
	end := 0
	for i, c := range chunks {
		skip := end - c.StartOffset
		require.GreaterOrEqualf(t, skip, 0, "gap before chunk %d", i)
		r := []rune(c.Text)
		require.LessOrEqual(t, skip, len(r))
		b.WriteString(string(r[skip:]))
		end = c.EndOffset
	}
	return b.String()
}

func assertWellFormed(t *testing.T, text string, chunks []commonModels.Chunk, size int) {
	t.Helper()
	runes := []rune(text)
	prevStart := -1
	for i, c := range chunks {
		assert.Equal(t, i, c.Ordinal)
		assert.NotEmpty(t, strings.TrimSpace(c.Text), "chunk %d is blank", i)
		assert.LessOrEqual(t, len([]rune(c.Text)), size, "chunk %d too long", i)
		assert.Equal(t, string(runes[c.StartOffset:c.EndOffset]), c.Text)
		assert.GreaterOrEqual(t, c.StartOffset, prevStart)
		prevStart = c.StartOffset
	}
}

// corpus builds a deterministic multi paragraph text with a small LCG.
func corpus(paragraphs int) string {
	words := []string{"retrieval", "vector", "the", "model", "answers", "with", "sources", "and", "grounding",
		"chunks", "overlap", "boundary", "a", "context", "budget", "é", "naïve", "übersicht"}
	seed := uint32(7)
	next := func(n int) int {
		seed = seed*1664525 + 1013904223
		return int(seed>>16) % n
	}
	var b strings.Builder
	for p := 0; p < paragraphs; p++ {
		sentences := 1 + next(6)
		for s := 0; s < sentences; s++ {
			n := 3 + next(25)
			for w := 0; w < n; w++ {
				word := words[next(len(words))]
				if w == 0 {
					r := []rune(word)
					r[0] = unicode.ToUpper(r[0])
					word = string(r)
				}
				b.WriteString(word)
				if w < n-1 {
					b.WriteByte(' ')
				}
			}
			b.WriteString(". ")
		}
		b.WriteString("\n\n")
	}
	return strings.TrimSpace(b.String())
}

func TestChunk_SingleShortDocument(t *testing.T) {
	text := "AI is transforming healthcare, finance, and transportation."
	chunks := New(WithChunkSize(800), WithOverlap(100)).Chunk(text)

	require.Len(t, chunks, 1)
	assert.Equal(t, 0, chunks[0].Ordinal)
	assert.Equal(t, 0, chunks[0].StartOffset)
	assert.Equal(t, len([]rune(text)), chunks[0].EndOffset)
	assert.Equal(t, text, chunks[0].Text)
}

func TestChunk_ReconstructsText(t *testing.T) {
	text := corpus(12)
	splitters := map[string]SentenceSplitter{"rule": RuleSplitter{}, "prose": ProseSplitter{}}
	for name, splitter := range splitters {
		for _, size := range []int{60, 150, 400} {
			for _, overlap := range []int{0, 15, 40} {
				t.Run(fmt.Sprintf("%s/size=%d/overlap=%d", name, size, overlap), func(t *testing.T) {
					c := New(WithChunkSize(size), WithOverlap(overlap), WithSentenceSplitter(splitter))
					chunks := c.Chunk(text)
					require.NotEmpty(t, chunks)
					assertWellFormed(t, text, chunks, size)
					assert.Equal(t, text, reconstruct(t, chunks))
				})
			}
		}
	}
}

func TestChunk_Deterministic(t *testing.T) {
	text := corpus(8)
	c := New(WithChunkSize(120), WithOverlap(30))
	first := c.Chunk(text)
	second := c.Chunk(text)
	assert.Equal(t, first, second)
}

func TestChunk_ParagraphBoundariesFirst(t *testing.T) {
	text := "Para one is here.\n\nPara two is here.\n\nPara three."
	chunks := New(WithChunkSize(40), WithOverlap(0), WithSentenceSplitter(RuleSplitter{})).Chunk(text)

	require.Len(t, chunks, 2)
	assert.Equal(t, "Para one is here.\n\nPara two is here.\n\n", chunks[0].Text)
	assert.Equal(t, "Para three.", chunks[1].Text)
	assert.Equal(t, chunks[0].EndOffset, chunks[1].StartOffset)
}

func TestChunk_FixedSliceFallbackKeepsOverlap(t *testing.T) {
	text := strings.Repeat("lorem ", 100)
	chunks := New(WithChunkSize(100), WithOverlap(20), WithSentenceSplitter(RuleSplitter{})).Chunk(text)

	require.Greater(t, len(chunks), 1)
	assertWellFormed(t, text, chunks, 100)
	for i := 1; i < len(chunks); i++ {
		assert.Less(t, chunks[i].StartOffset, chunks[i-1].EndOffset, "chunk %d has no overlap", i)
		assert.False(t, unicode.IsSpace([]rune(chunks[i].Text)[0]), "chunk %d starts mid whitespace", i)
	}
	assert.Equal(t, text, reconstruct(t, chunks))
}

func TestChunk_LongSentencesSplit(t *testing.T) {
	text := "The first sentence talks about vectors. The second one covers chunk overlap in detail. " +
		"A third sentence explains threshold filtering. Finally the fourth wraps up the paragraph."
	chunks := New(WithChunkSize(60), WithOverlap(10), WithSentenceSplitter(RuleSplitter{})).Chunk(text)

	require.GreaterOrEqual(t, len(chunks), 3)
	assertWellFormed(t, text, chunks, 60)
	assert.Equal(t, text, reconstruct(t, chunks))
}

func TestChunk_BlankInput(t *testing.T) {
	c := New()
	assert.Empty(t, c.Chunk(""))
	assert.Empty(t, c.Chunk("   \n\n  \n"))
}

func TestChunk_SectionsAndLocators(t *testing.T) {
	text := "# Intro\nAlpha text here.\n\n# Methods\nBeta text here."
	locators := []commonModels.Locator{{Offset: 26, Label: "Page 2"}, {Offset: 0, Label: "Page 1"}}
	chunks := New(WithChunkSize(30), WithOverlap(0)).ChunkDocument(text, locators)

	require.Len(t, chunks, 2)
	assert.Equal(t, "Intro", chunks[0].Section)
	assert.Equal(t, "Page 1", chunks[0].Location)
	assert.Equal(t, "Methods", chunks[1].Section)
	assert.Equal(t, "Page 2", chunks[1].Location)
}

func TestNew_OverlapClamped(t *testing.T) {
	c := New(WithChunkSize(100), WithOverlap(100))
	assert.Equal(t, 25, c.Overlap())
}

func TestRuleSplitter(t *testing.T) {
	text := []rune("Hello world. This is e.g. fine! Next? yes. Done")
	bounds := RuleSplitter{}.Split(text)
	// "e.g. fine" and "? yes" are not boundaries because the next word is lowercase
	require.Len(t, bounds, 3)
	assert.Equal(t, "This", string(text[bounds[0]:bounds[0]+4]))
	assert.Equal(t, "Next", string(text[bounds[1]:bounds[1]+4]))
	assert.Equal(t, "Done", string(text[bounds[2]:]))
}

func TestProseSplitter_BoundariesAtSentenceStarts(t *testing.T) {
	text := []rune("Retrieval comes first. Generation comes second. Citations come last.")
	bounds := ProseSplitter{}.Split(text)
	require.NotEmpty(t, bounds)
	for _, b := range bounds {
		require.Greater(t, b, 0)
		require.Less(t, b, len(text))
		assert.True(t, unicode.IsSpace(text[b-1]), "boundary %d not after whitespace", b)
		assert.False(t, unicode.IsSpace(text[b]))
	}
}
