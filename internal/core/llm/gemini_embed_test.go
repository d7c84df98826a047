package llm

import (
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendBatchEmbeddings(t *testing.T) {
	resp := &genai.BatchEmbedContentsResponse{
		Embeddings: []*genai.ContentEmbedding{
			{Values: []float32{0.1, 0.2}},
			{Values: []float32{0.3, 0.4}},
		},
	}

	out, err := appendBatchEmbeddings(nil, resp, 2)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, []float32{0.1, 0.2}, out[0])
	assert.Equal(t, []float32{0.3, 0.4}, out[1])
}

func TestAppendBatchEmbeddingsCountMismatch(t *testing.T) {
	resp := &genai.BatchEmbedContentsResponse{
		Embeddings: []*genai.ContentEmbedding{
			{Values: []float32{0.1, 0.2}},
		},
	}

	_, err := appendBatchEmbeddings(nil, resp, 3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "got 1 embeddings for 3 texts")
}
