package ingestion_engine

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractSections(t *testing.T) {
	content := "intro text before any heading\n\n# Overview\nbody one\n\n## Details\nbody two\nmore of body two\n"

	sections := ExtractSections(content)
	require.Len(t, sections, 3)

	assert.Equal(t, "Introduction", sections[0].Title)
	assert.Equal(t, 0, sections[0].Level)
	assert.Contains(t, sections[0].Body, "intro text before any heading")

	assert.Equal(t, "Overview", sections[1].Title)
	assert.Equal(t, 1, sections[1].Level)
	assert.Contains(t, sections[1].Body, "body one")

	assert.Equal(t, "Details", sections[2].Title)
	assert.Equal(t, 2, sections[2].Level)
	assert.Contains(t, sections[2].Body, "more of body two")
}

func TestExtractSectionsNoImplicitIntroWhenEmpty(t *testing.T) {
	sections := ExtractSections("# First\nbody\n")
	require.Len(t, sections, 1)
	assert.Equal(t, "First", sections[0].Title)
}

func TestSplitTextHardCuts(t *testing.T) {
	// 2500 characters with no whitespace forces hard cuts: chunks start
	// at 0, 800 and 1600.
	text := strings.Repeat("a", 2500)
	c := NewChunker(1000, 200, 100)

	chunks := c.splitText(text)
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 1000)
	assert.Len(t, chunks[1], 1000)
	assert.Len(t, chunks[2], 900)
}

func TestSplitTextWordBoundary(t *testing.T) {
	// words of nine letters plus a space; the cut should land on a space
	// so no word is split in half
	word := strings.Repeat("x", 9) + " "
	text := strings.TrimSpace(strings.Repeat(word, 300))
	c := NewChunker(1000, 200, 100)

	for _, chunk := range c.splitText(text) {
		for _, w := range strings.Fields(chunk) {
			assert.Len(t, w, 9)
		}
	}
}

func TestSplitTextShortInput(t *testing.T) {
	c := NewChunker(1000, 200, 100)

	assert.Nil(t, c.splitText("too short"))
	assert.Nil(t, c.splitText("   \n  "))

	long := strings.Repeat("b", 150)
	chunks := c.splitText(long)
	require.Len(t, chunks, 1)
	assert.Equal(t, long, chunks[0])
}

func TestSplitTextOverlapCoverage(t *testing.T) {
	// consecutive chunks share text: the tail of chunk i reappears at
	// the head of chunk i+1
	var sb strings.Builder
	for i := 0; i < 400; i++ {
		sb.WriteString("alpha beta gamma delta ")
	}
	c := NewChunker(1000, 200, 100)

	chunks := c.splitText(sb.String())
	require.Greater(t, len(chunks), 1)
	for i := 1; i < len(chunks); i++ {
		head := chunks[i][:50]
		assert.Contains(t, chunks[i-1], head, "chunk %d does not overlap its predecessor", i)
	}
}

func TestChunkDocument(t *testing.T) {
	body := strings.Repeat("the quick brown fox jumps over the lazy dog ", 60)
	content := "# Capacity\n" + body + "\n# Supply Chain\n" + body

	c := NewChunker(1000, 200, 100)
	chunks := c.ChunkDocument("report.md", content)
	require.NotEmpty(t, chunks)

	for i, ch := range chunks {
		assert.Equal(t, i, ch.ChunkIndex, "ordinal index must span the whole document")
		assert.Equal(t, "report.md", ch.SourceDocument)
		assert.Equal(t, HashText(ch.Content), ch.ContentHash)
		assert.Equal(t, ApproxTokens(ch.Content), ch.TokenCount)
		assert.True(t, strings.HasPrefix(ch.Content, "# Capacity\n\n") || strings.HasPrefix(ch.Content, "# Supply Chain\n\n"),
			"chunk %d is missing its section title prefix", i)
	}

	titles := map[string]bool{}
	for _, ch := range chunks {
		titles[ch.SectionTitle] = true
	}
	assert.True(t, titles["Capacity"])
	assert.True(t, titles["Supply Chain"])
}

func TestChunkDocumentEmpty(t *testing.T) {
	c := NewChunker(1000, 200, 100)
	assert.Empty(t, c.ChunkDocument("empty.md", ""))
	assert.Empty(t, c.ChunkDocument("tiny.md", "just a line"))
}

func TestHashTextDeterministic(t *testing.T) {
	assert.Equal(t, HashText("same content"), HashText("same content"))
	assert.NotEqual(t, HashText("one"), HashText("two"))
	assert.Len(t, HashText("x"), 64)
}

func TestApproxTokens(t *testing.T) {
	assert.Equal(t, 0, ApproxTokens(""))
	assert.Equal(t, 1, ApproxTokens("abc"))
	assert.Equal(t, 1, ApproxTokens("abcd"))
	assert.Equal(t, 2, ApproxTokens("abcde"))
	assert.Equal(t, 25, ApproxTokens(strings.Repeat("a", 100)))
}
