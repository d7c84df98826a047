package llm

import (
	"context"
	"fmt"
	"os"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/kineticlabs/battintel/internal/core"
)

// geminiMaxBatch is the largest batch one BatchEmbedContents call carries;
// larger inputs are partitioned and re-joined in input order.
const geminiMaxBatch = 100

type GeminiEmbedder struct {
	client    *genai.Client
	modelName string
	dim       int
}

func NewGeminiEmbedder(ctx context.Context, apiKey, modelName string, dim int) (*GeminiEmbedder, error) {
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	if modelName == "" {
		modelName = "text-embedding-004"
	}
	if dim <= 0 {
		dim = 768
	}
	return &GeminiEmbedder{client: cl, modelName: modelName, dim: dim}, nil
}

func (g *GeminiEmbedder) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

func (g *GeminiEmbedder) Dimensions() int { return g.dim }

func (g *GeminiEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vecs, err := g.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("gemini embed: no embedding returned")
	}
	return vecs[0], nil
}

// EmbedTexts batches texts through BatchEmbedContents, partitioning
// oversized inputs and concatenating results in input order.
func (g *GeminiEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	em := g.client.EmbeddingModel(g.modelName)

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += geminiMaxBatch {
		end := start + geminiMaxBatch
		if end > len(texts) {
			end = len(texts)
		}

		batch := em.NewBatch()
		for _, t := range texts[start:end] {
			batch.AddContent(genai.Text(t))
		}

		resp, err := em.BatchEmbedContents(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("gemini batch embed: %w", err)
		}
		out, err = appendBatchEmbeddings(out, resp, end-start)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func appendBatchEmbeddings(out [][]float32, resp *genai.BatchEmbedContentsResponse, want int) ([][]float32, error) {
	if len(resp.Embeddings) != want {
		return nil, fmt.Errorf("gemini batch embed: got %d embeddings for %d texts", len(resp.Embeddings), want)
	}
	for _, e := range resp.Embeddings {
		out = append(out, e.Values)
	}
	return out, nil
}

var _ core.EmbeddingProvider = (*GeminiEmbedder)(nil)
