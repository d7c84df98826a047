package rag

import (
	"fmt"
	"math"
	"strings"

	"github.com/kineticlabs/battintel/internal/models"
)

// FormatContext renders ranked contexts as labeled source blocks for the
// prompt. Block order follows retrieval rank, so the label numbers line
// up with the citation list from BuildCitations.
func FormatContext(contexts []models.RetrievedContext) string {
	if len(contexts) == 0 {
		return "No relevant context found."
	}

	parts := make([]string, 0, len(contexts))
	for i, c := range contexts {
		section := ""
		if c.SectionTitle != "" {
			section = " - " + c.SectionTitle
		}
		parts = append(parts, fmt.Sprintf("[Source %d: %s%s]\n%s\n", i+1, c.SourceDocument, section, c.Content))
	}
	return strings.Join(parts, "\n---\n")
}

// BuildCitations mirrors the i-th context into the i-th citation. The
// numbering is the join key readers use to resolve "[Source i]" mentions
// in the generated answer.
func BuildCitations(contexts []models.RetrievedContext) []models.Citation {
	citations := make([]models.Citation, 0, len(contexts))
	for i, c := range contexts {
		citations = append(citations, models.Citation{
			CitationID:      i + 1,
			SourceDocument:  c.SourceDocument,
			SectionTitle:    c.SectionTitle,
			SimilarityScore: c.SimilarityScore,
			ChunkID:         c.ChunkID,
		})
	}
	return citations
}

// ConfidenceScore estimates answer reliability from retrieval quality:
// the mean similarity plus 0.05 per context above 0.85 (bonus capped at
// 0.15), clamped to [0,1]. No contexts means zero confidence.
func ConfidenceScore(contexts []models.RetrievedContext) float64 {
	if len(contexts) == 0 {
		return 0.0
	}

	var sum float64
	highQuality := 0
	for _, c := range contexts {
		sum += c.SimilarityScore
		if c.SimilarityScore > 0.85 {
			highQuality++
		}
	}

	bonus := math.Min(float64(highQuality)*0.05, 0.15)
	confidence := sum/float64(len(contexts)) + bonus
	if confidence > 1.0 {
		confidence = 1.0
	}
	if confidence < 0.0 {
		confidence = 0.0
	}
	return math.Round(confidence*1000) / 1000
}
