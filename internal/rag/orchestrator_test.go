package rag

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kineticlabs/battintel/internal/core"
	"github.com/kineticlabs/battintel/internal/models"
)

type stubEmbedder struct{ err error }

func (s *stubEmbedder) Dimensions() int { return 3 }

func (s *stubEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []float32{1, 0, 0}, nil
}

func (s *stubEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

type searchStore struct {
	core.Store

	contexts  []models.RetrievedContext
	lastTopK  int
	threshold float64
}

func (s *searchStore) SearchChunks(ctx context.Context, queryVec []float32, topK int, threshold float64) ([]models.RetrievedContext, error) {
	s.lastTopK = topK
	s.threshold = threshold
	if topK < len(s.contexts) {
		return s.contexts[:topK], nil
	}
	return s.contexts, nil
}

type stubLLM struct {
	response    string
	err         error
	gotSystem   string
	gotHistory  []core.ChatTurn
	gotUserText string
}

func (s *stubLLM) Model() string { return "stub-model" }

func (s *stubLLM) Generate(ctx context.Context, systemPrompt string, history []core.ChatTurn, userPrompt string) (string, error) {
	s.gotSystem = systemPrompt
	s.gotHistory = history
	s.gotUserText = userPrompt
	if s.err != nil {
		return "", s.err
	}
	return s.response, nil
}

func newTestOrchestrator(store *searchStore, llm *stubLLM) *Orchestrator {
	retriever := NewRetriever(store, &stubEmbedder{}, 5, 0.7)
	return NewOrchestrator(retriever, llm)
}

func TestAnswerWithContexts(t *testing.T) {
	store := &searchStore{contexts: []models.RetrievedContext{
		{Content: "Company X operates a 40 GWh plant", SourceDocument: "capacity.md", SectionTitle: "Output", SimilarityScore: 0.92, ChunkID: 7},
	}}
	llm := &stubLLM{response: "Company X has 40 GWh of capacity [Source 1]."}
	o := newTestOrchestrator(store, llm)

	ans, err := o.Answer(context.Background(), "What is Company X's capacity?", nil, 5)
	require.NoError(t, err)

	assert.Equal(t, llm.response, ans.Response)
	require.Len(t, ans.Citations, 1)
	assert.Equal(t, 1, ans.Citations[0].CitationID)
	assert.Equal(t, 0.92, ans.Citations[0].SimilarityScore)
	assert.Equal(t, "stub-model", ans.Model)
	assert.GreaterOrEqual(t, ans.ResponseTimeMs, int64(0))
	assert.InDelta(t, 0.97, ans.ConfidenceScore, 1e-9)

	assert.Contains(t, llm.gotSystem, "[Source X]")
	assert.Contains(t, llm.gotUserText, "[Source 1: capacity.md - Output]")
	assert.Contains(t, llm.gotUserText, "Question: What is Company X's capacity?")
	assert.Equal(t, 5, store.lastTopK)
	assert.Equal(t, 0.7, store.threshold)
}

func TestAnswerNoContexts(t *testing.T) {
	store := &searchStore{}
	llm := &stubLLM{response: "I could not find that in the documents."}
	o := newTestOrchestrator(store, llm)

	ans, err := o.Answer(context.Background(), "anything", nil, 0)
	require.NoError(t, err)

	assert.Empty(t, ans.Citations)
	assert.Equal(t, 0.0, ans.ConfidenceScore)
	assert.Contains(t, llm.gotUserText, "No relevant context found.")
	assert.Equal(t, 5, store.lastTopK, "zero top_k falls back to the default")
}

func TestAnswerClampsHistory(t *testing.T) {
	store := &searchStore{}
	llm := &stubLLM{response: "ok"}
	o := newTestOrchestrator(store, llm)

	history := make([]models.Message, 25)
	for i := range history {
		role := models.RoleUser
		if i%2 == 1 {
			role = models.RoleAssistant
		}
		history[i] = models.Message{Role: role, Content: strings.Repeat("x", i+1)}
	}

	_, err := o.Answer(context.Background(), "q", history, 5)
	require.NoError(t, err)

	require.Len(t, llm.gotHistory, 10)
	// the window keeps the most recent turns, oldest first
	assert.Len(t, llm.gotHistory[0].Content, 16)
	assert.Len(t, llm.gotHistory[9].Content, 25)
}

func TestAnswerProviderFailure(t *testing.T) {
	store := &searchStore{}
	llm := &stubLLM{err: errors.New("quota exhausted")}
	o := newTestOrchestrator(store, llm)

	_, err := o.Answer(context.Background(), "q", nil, 5)
	assert.ErrorContains(t, err, "quota exhausted")
}

func TestAnswerEmptyQuery(t *testing.T) {
	o := newTestOrchestrator(&searchStore{}, &stubLLM{response: "ok"})

	_, err := o.Answer(context.Background(), "   ", nil, 5)
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestRetrieverSearchEmbedFailure(t *testing.T) {
	r := NewRetriever(&searchStore{}, &stubEmbedder{err: errors.New("auth")}, 5, 0.7)

	_, err := r.Search(context.Background(), "q", 5)
	assert.ErrorContains(t, err, "embed query")
}
