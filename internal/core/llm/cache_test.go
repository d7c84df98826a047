package llm

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingProvider struct {
	mu        sync.Mutex
	textCalls int
	batchSeen [][]string
	err       error
}

func (p *countingProvider) Dimensions() int { return 2 }

func (p *countingProvider) EmbedText(ctx context.Context, text string) ([]float32, error) {
	p.mu.Lock()
	p.textCalls++
	p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	return []float32{float32(len(text)), 1}, nil
}

func (p *countingProvider) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	p.mu.Lock()
	p.batchSeen = append(p.batchSeen, append([]string(nil), texts...))
	p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1}
	}
	return out, nil
}

func TestCachedEmbedderEmbedText(t *testing.T) {
	provider := &countingProvider{}
	c := NewCachedEmbedder(provider)

	v1, err := c.EmbedText(context.Background(), "hello")
	require.NoError(t, err)
	v2, err := c.EmbedText(context.Background(), "hello")
	require.NoError(t, err)

	assert.Equal(t, v1, v2)
	assert.Equal(t, 1, provider.textCalls, "second call must be served from cache")
	assert.Equal(t, 1, c.Size())
}

func TestCachedEmbedderExactMatchOnly(t *testing.T) {
	provider := &countingProvider{}
	c := NewCachedEmbedder(provider)

	_, err := c.EmbedText(context.Background(), "hello")
	require.NoError(t, err)
	_, err = c.EmbedText(context.Background(), "hello ")
	require.NoError(t, err)

	assert.Equal(t, 2, provider.textCalls, "near-duplicates must not share entries")
	assert.Equal(t, 2, c.Size())
}

func TestCachedEmbedderBatchPartialMiss(t *testing.T) {
	provider := &countingProvider{}
	c := NewCachedEmbedder(provider)

	_, err := c.EmbedText(context.Background(), "b")
	require.NoError(t, err)

	vecs, err := c.EmbedTexts(context.Background(), []string{"aaa", "b", "cc"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)

	// order follows the input, cached and fresh entries interleaved
	assert.Equal(t, []float32{3, 1}, vecs[0])
	assert.Equal(t, []float32{1, 1}, vecs[1])
	assert.Equal(t, []float32{2, 1}, vecs[2])

	require.Len(t, provider.batchSeen, 1)
	assert.Equal(t, []string{"aaa", "cc"}, provider.batchSeen[0], "only the misses go to the provider")
	assert.Equal(t, 3, c.Size())
}

func TestCachedEmbedderBatchAllHits(t *testing.T) {
	provider := &countingProvider{}
	c := NewCachedEmbedder(provider)

	_, err := c.EmbedTexts(context.Background(), []string{"x", "y"})
	require.NoError(t, err)

	_, err = c.EmbedTexts(context.Background(), []string{"y", "x"})
	require.NoError(t, err)
	assert.Len(t, provider.batchSeen, 1, "a fully cached batch must not reach the provider")
}

func TestCachedEmbedderClear(t *testing.T) {
	provider := &countingProvider{}
	c := NewCachedEmbedder(provider)

	_, err := c.EmbedText(context.Background(), "hello")
	require.NoError(t, err)
	require.Equal(t, 1, c.Size())

	c.Clear()
	assert.Equal(t, 0, c.Size())

	_, err = c.EmbedText(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, 2, provider.textCalls)
}

func TestCachedEmbedderPropagatesErrors(t *testing.T) {
	provider := &countingProvider{err: errors.New("boom")}
	c := NewCachedEmbedder(provider)

	_, err := c.EmbedText(context.Background(), "hello")
	assert.Error(t, err)
	assert.Equal(t, 0, c.Size(), "failed lookups must not be cached")
}
