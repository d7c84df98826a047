package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/kineticlabs/battintel/internal/core"
	"github.com/kineticlabs/battintel/internal/models"
)

// Retriever embeds a query and runs similarity search against the chunk
// store. An empty result set is a valid outcome, not an error.
type Retriever struct {
	store     core.Store
	embedder  core.EmbeddingProvider
	topK      int
	threshold float64
}

func NewRetriever(store core.Store, embedder core.EmbeddingProvider, topK int, threshold float64) *Retriever {
	return &Retriever{store: store, embedder: embedder, topK: topK, threshold: threshold}
}

// Search returns up to topK contexts above the similarity threshold,
// best match first. topK <= 0 falls back to the configured default.
func (r *Retriever) Search(ctx context.Context, query string, topK int) ([]models.RetrievedContext, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: empty query", core.ErrValidation)
	}
	if topK <= 0 {
		topK = r.topK
	}

	vec, err := r.embedder.EmbedText(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return r.store.SearchChunks(ctx, vec, topK, r.threshold)
}
