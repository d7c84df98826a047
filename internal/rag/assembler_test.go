package rag

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kineticlabs/battintel/internal/models"
)

func ctxList(scores ...float64) []models.RetrievedContext {
	out := make([]models.RetrievedContext, len(scores))
	for i, s := range scores {
		out[i] = models.RetrievedContext{
			Content:         "content",
			SourceDocument:  "doc.md",
			SimilarityScore: s,
			ChunkID:         int64(i + 1),
		}
	}
	return out
}

func TestFormatContext(t *testing.T) {
	contexts := []models.RetrievedContext{
		{Content: "capacity is 40 GWh", SourceDocument: "capacity.md", SectionTitle: "Output", SimilarityScore: 0.92, ChunkID: 7},
		{Content: "plants in three states", SourceDocument: "sites.md", SimilarityScore: 0.8, ChunkID: 9},
	}

	got := FormatContext(contexts)
	assert.True(t, strings.HasPrefix(got, "[Source 1: capacity.md - Output]\ncapacity is 40 GWh\n"))
	assert.Contains(t, got, "\n---\n")
	assert.Contains(t, got, "[Source 2: sites.md]\nplants in three states\n")
}

func TestFormatContextEmpty(t *testing.T) {
	assert.Equal(t, "No relevant context found.", FormatContext(nil))
}

func TestBuildCitations(t *testing.T) {
	contexts := []models.RetrievedContext{
		{Content: "Company X operates a 40 GWh plant", SourceDocument: "capacity.md", SectionTitle: "Output", SimilarityScore: 0.92, ChunkID: 7},
	}

	citations := BuildCitations(contexts)
	require.Len(t, citations, 1)
	assert.Equal(t, 1, citations[0].CitationID)
	assert.Equal(t, "capacity.md", citations[0].SourceDocument)
	assert.Equal(t, "Output", citations[0].SectionTitle)
	assert.Equal(t, 0.92, citations[0].SimilarityScore)
	assert.Equal(t, int64(7), citations[0].ChunkID)
}

func TestBuildCitationsPreservesRankOrder(t *testing.T) {
	citations := BuildCitations(ctxList(0.9, 0.8, 0.7))
	require.Len(t, citations, 3)
	for i, c := range citations {
		assert.Equal(t, i+1, c.CitationID)
	}
}

func TestConfidenceScore(t *testing.T) {
	tests := []struct {
		name   string
		scores []float64
		want   float64
	}{
		{"empty", nil, 0.0},
		{"single mid", []float64{0.7}, 0.7},
		{"single high gets bonus", []float64{0.9}, 0.95},
		{"mean of mixed", []float64{0.8, 0.6}, 0.7},
		{"bonus capped at 0.15", []float64{0.9, 0.9, 0.9, 0.9, 0.9}, 1.0},
		{"clamped to 1.0", []float64{0.99, 0.99}, 1.0},
		{"rounded to 3 decimals", []float64{0.701, 0.702, 0.703}, 0.702},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, ConfidenceScore(ctxList(tt.scores...)), 1e-9)
		})
	}
}

func TestConfidenceScoreBounds(t *testing.T) {
	for _, scores := range [][]float64{
		{0.0}, {1.0}, {0.99, 0.99, 0.99, 0.99}, {0.1, 0.2}, {0.86, 0.86, 0.86},
	} {
		got := ConfidenceScore(ctxList(scores...))
		assert.GreaterOrEqual(t, got, 0.0)
		assert.LessOrEqual(t, got, 1.0)
	}
}
