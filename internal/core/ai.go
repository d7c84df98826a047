package core

import "context"

// ChatTurn is one prior exchange turn handed to the generative model.
type ChatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// EmbeddingProvider produces fixed-width embedding vectors. The vector
// width is a property of the active provider, never a constant; callers
// must read it through Dimensions.
type EmbeddingProvider interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
	// EmbedTexts embeds a batch of any size; providers partition oversized
	// batches internally and return results in input order.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

// LLMProvider is a single request/response exchange with a generative
// model. No streaming, no retries; failures propagate to the caller.
type LLMProvider interface {
	Generate(ctx context.Context, systemPrompt string, history []ChatTurn, userPrompt string) (string, error)
	Model() string
}
