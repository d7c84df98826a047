package llm

import (
	"context"
	"sync"

	"github.com/kineticlabs/battintel/internal/core"
)

// CachedEmbedder wraps a provider with an exact-text embedding cache.
// The key is the input text verbatim; there is no near-duplicate matching
// and no eviction, entries live for the lifetime of the service instance.
// Entries are immutable once written, so a plain RWMutex suffices.
type CachedEmbedder struct {
	provider core.EmbeddingProvider

	mu      sync.RWMutex
	entries map[string][]float32
}

func NewCachedEmbedder(provider core.EmbeddingProvider) *CachedEmbedder {
	return &CachedEmbedder{
		provider: provider,
		entries:  make(map[string][]float32),
	}
}

func (c *CachedEmbedder) Dimensions() int { return c.provider.Dimensions() }

func (c *CachedEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	c.mu.RLock()
	vec, ok := c.entries[text]
	c.mu.RUnlock()
	if ok {
		return vec, nil
	}

	vec, err := c.provider.EmbedText(ctx, text)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[text] = vec
	c.mu.Unlock()
	return vec, nil
}

// EmbedTexts serves cached entries and embeds only the misses, stitching
// the results back together in input order.
func (c *CachedEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	results := make([][]float32, len(texts))
	var (
		missTexts   []string
		missIndices []int
	)

	c.mu.RLock()
	for i, t := range texts {
		if vec, ok := c.entries[t]; ok {
			results[i] = vec
		} else {
			missTexts = append(missTexts, t)
			missIndices = append(missIndices, i)
		}
	}
	c.mu.RUnlock()

	if len(missTexts) == 0 {
		return results, nil
	}

	vecs, err := c.provider.EmbedTexts(ctx, missTexts)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	for j, idx := range missIndices {
		results[idx] = vecs[j]
		c.entries[texts[idx]] = vecs[j]
	}
	c.mu.Unlock()
	return results, nil
}

// Clear drops all cached entries.
func (c *CachedEmbedder) Clear() {
	c.mu.Lock()
	c.entries = make(map[string][]float32)
	c.mu.Unlock()
}

// Size reports the number of cached entries.
func (c *CachedEmbedder) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

var _ core.EmbeddingProvider = (*CachedEmbedder)(nil)
