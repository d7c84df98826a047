package ingestion_engine

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/kineticlabs/battintel/internal/models"
)

// Section is one heading-delimited region of a document. Content before
// the first heading becomes an implicit "Introduction" section.
type Section struct {
	Title string
	Body  string
	Level int
}

var headingRe = regexp.MustCompile(`^(#{1,6})\s+(.+)$`)

// ExtractSections splits markdown content on heading markers. Sections
// with an empty body are dropped.
func ExtractSections(content string) []Section {
	var sections []Section
	current := Section{Title: "Introduction", Level: 0}

	for _, line := range strings.Split(content, "\n") {
		if m := headingRe.FindStringSubmatch(line); m != nil {
			if strings.TrimSpace(current.Body) != "" {
				sections = append(sections, current)
			}
			current = Section{Title: strings.TrimSpace(m[2]), Level: len(m[1])}
			continue
		}
		current.Body += line + "\n"
	}
	if strings.TrimSpace(current.Body) != "" {
		sections = append(sections, current)
	}
	return sections
}

// Chunker splits section bodies into overlapping character-bounded chunks
// cut at word boundaries.
type Chunker struct {
	ChunkSize    int
	ChunkOverlap int
	MinChunkSize int
}

func NewChunker(chunkSize, chunkOverlap, minChunkSize int) *Chunker {
	return &Chunker{ChunkSize: chunkSize, ChunkOverlap: chunkOverlap, MinChunkSize: minChunkSize}
}

// ChunkDocument turns a whole document into content-addressed chunks.
// The ordinal index reflects emission order across the document, not per
// section, and every chunk carries its section title as a prefix so it
// reads standalone.
func (c *Chunker) ChunkDocument(fileName, content string) []models.DocumentChunk {
	var out []models.DocumentChunk
	idx := 0

	for _, sec := range ExtractSections(content) {
		for _, piece := range c.splitText(sec.Body) {
			text := piece
			if sec.Title != "" {
				text = fmt.Sprintf("# %s\n\n%s", sec.Title, piece)
			}
			out = append(out, models.DocumentChunk{
				SourceDocument: fileName,
				ChunkIndex:     idx,
				Content:        text,
				ContentHash:    HashText(text),
				SectionTitle:   sec.Title,
				TokenCount:     ApproxTokens(text),
			})
			idx++
		}
	}
	return out
}

// splitText chunks text with a greedy forward scan: cut at ChunkSize,
// backtrack to the nearest whitespace, fall back to a hard cut when the
// window holds none, and restart the next chunk ChunkOverlap characters
// before the previous end. Pieces below MinChunkSize are dropped.
func (c *Chunker) splitText(text string) []string {
	runes := []rune(text)

	overlap := c.ChunkOverlap
	if overlap >= c.ChunkSize {
		overlap = c.ChunkSize - 1
	}

	if len(runes) <= c.ChunkSize {
		piece := strings.TrimSpace(text)
		if len([]rune(piece)) < c.MinChunkSize {
			return nil
		}
		return []string{piece}
	}

	var chunks []string
	start := 0
	for start < len(runes) {
		end := start + c.ChunkSize
		if end < len(runes) {
			for end > start && !unicode.IsSpace(runes[end]) {
				end--
			}
			if end == start {
				end = start + c.ChunkSize
			}
		} else {
			end = len(runes)
		}

		piece := strings.TrimSpace(string(runes[start:end]))
		if len([]rune(piece)) >= c.MinChunkSize {
			chunks = append(chunks, piece)
		}

		if end >= len(runes) {
			break
		}
		next := end - overlap
		if next <= start {
			// window collapsed to almost nothing; move past it
			next = end
		}
		start = next
	}
	return chunks
}

// HashText returns the SHA-256 hex digest used as the chunk dedup key.
func HashText(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])
}

// ApproxTokens is a cheap token estimator (~4 chars per token).
func ApproxTokens(s string) int {
	n := len([]rune(s))
	if n <= 0 {
		return 0
	}
	return (n + 3) / 4
}
