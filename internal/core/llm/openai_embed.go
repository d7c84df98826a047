package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/kineticlabs/battintel/internal/core"
)

const openaiMaxBatch = 100

// OpenAIEmbedder talks to the OpenAI embeddings endpoint (or any
// API-compatible server) over plain HTTP.
type OpenAIEmbedder struct {
	baseURL    string
	apiKey     string
	model      string
	dim        int
	client     *http.Client
	maxRetries int
}

type OpenAIConfig struct {
	BaseURL    string
	APIKey     string
	Model      string
	Dimensions int
	Timeout    time.Duration
}

func NewOpenAIEmbedder(cfg OpenAIConfig) (*OpenAIEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai embedder: missing API key")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = 1536
	}
	t := cfg.Timeout
	if t == 0 {
		t = 30 * time.Second
	}
	return &OpenAIEmbedder{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		dim:        cfg.Dimensions,
		client:     &http.Client{Timeout: t},
		maxRetries: 5,
	}, nil
}

func (c *OpenAIEmbedder) Dimensions() int { return c.dim }

func (c *OpenAIEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("openai embeddings: no embedding returned")
	}
	return vecs[0], nil
}

func (c *OpenAIEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += openaiMaxBatch {
		end := start + openaiMaxBatch
		if end > len(texts) {
			end = len(texts)
		}
		vecs, err := c.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (c *OpenAIEmbedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	type reqBody struct {
		Input      []string `json:"input"`
		Model      string   `json:"model"`
		Dimensions int      `json:"dimensions,omitempty"`
	}
	url := fmt.Sprintf("%s/embeddings", c.baseURL)

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		data, _ := json.Marshal(reqBody{Input: texts, Model: c.model, Dimensions: c.dim})
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = err
			if attempt < c.maxRetries && ctx.Err() == nil {
				time.Sleep(retryDelay(attempt))
				continue
			}
			return nil, lastErr
		}

		// Transient statuses retry with backoff, honoring Retry-After.
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("openai embeddings failed: %s", resp.Status)
			delay := retryDelay(attempt)
			if ra := resp.Header.Get("Retry-After"); ra != "" {
				if secs, err := strconv.Atoi(ra); err == nil {
					delay = time.Duration(secs) * time.Second
				}
			}
			_ = resp.Body.Close()
			if attempt < c.maxRetries && ctx.Err() == nil {
				time.Sleep(delay)
				continue
			}
			return nil, lastErr
		}

		if resp.StatusCode >= 300 {
			_ = resp.Body.Close()
			return nil, fmt.Errorf("openai embeddings failed: %s", resp.Status)
		}

		payload, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			lastErr = err
			if attempt < c.maxRetries && ctx.Err() == nil {
				time.Sleep(retryDelay(attempt))
				continue
			}
			return nil, lastErr
		}

		var parsed struct {
			Data []struct {
				Index     int       `json:"index"`
				Embedding []float32 `json:"embedding"`
			} `json:"data"`
		}
		if err := json.Unmarshal(payload, &parsed); err != nil {
			return nil, fmt.Errorf("openai embeddings: decode response: %w", err)
		}
		if len(parsed.Data) != len(texts) {
			return nil, fmt.Errorf("openai embeddings: got %d vectors for %d inputs", len(parsed.Data), len(texts))
		}

		out := make([][]float32, len(texts))
		for _, item := range parsed.Data {
			if item.Index < 0 || item.Index >= len(out) {
				return nil, fmt.Errorf("openai embeddings: index %d out of range", item.Index)
			}
			out[item.Index] = item.Embedding
		}
		return out, nil
	}
	return nil, lastErr
}

func retryDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	base := 200 * time.Millisecond
	// exponential backoff capped at 5s
	d := base << attempt
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}

var _ core.EmbeddingProvider = (*OpenAIEmbedder)(nil)
