package rag

import (
	"context"
	"fmt"
	"time"

	"github.com/kineticlabs/battintel/internal/core"
	"github.com/kineticlabs/battintel/internal/models"
)

const defaultSystemPrompt = `You are an expert research assistant specializing in the US battery industry.
You provide accurate, well-cited answers based on the research documents provided.

Guidelines:
- Always cite your sources using [Source X] notation
- If information is not in the provided context, clearly state that
- Provide specific numbers, dates, and facts when available
- Maintain objectivity and accuracy
- If asked about topics outside the research scope, politely redirect to battery industry topics`

// historyWindow bounds how many prior messages ride along with a query.
const historyWindow = 10

// Answer is everything the chat layer needs to persist and return for
// one assistant turn.
type Answer struct {
	Response        string
	Citations       []models.Citation
	Contexts        []models.RetrievedContext
	ConfidenceScore float64
	Model           string
	ResponseTimeMs  int64
}

// Orchestrator glues retrieval, context assembly and generation into a
// single question-answering call.
type Orchestrator struct {
	retriever    *Retriever
	llm          core.LLMProvider
	systemPrompt string
}

func NewOrchestrator(retriever *Retriever, llm core.LLMProvider) *Orchestrator {
	return &Orchestrator{retriever: retriever, llm: llm, systemPrompt: defaultSystemPrompt}
}

// Answer retrieves supporting contexts for query, sends them with the
// bounded history to the model, and returns the response alongside the
// citations built from retrieval. Citations come from the retrieved
// contexts, never parsed back out of the model's text. Provider failures
// propagate; no fallback text is synthesized.
func (o *Orchestrator) Answer(ctx context.Context, query string, history []models.Message, topK int) (*Answer, error) {
	start := time.Now()

	contexts, err := o.retriever.Search(ctx, query, topK)
	if err != nil {
		return nil, fmt.Errorf("retrieve contexts: %w", err)
	}

	userPrompt := fmt.Sprintf(`Context from research documents:

%s

---

Question: %s

Please provide a detailed answer based on the context above. Always cite sources using [Source X] notation.`, FormatContext(contexts), query)

	turns := historyTurns(history)

	text, err := o.llm.Generate(ctx, o.systemPrompt, turns, userPrompt)
	if err != nil {
		return nil, fmt.Errorf("generate response: %w", err)
	}

	return &Answer{
		Response:        text,
		Citations:       BuildCitations(contexts),
		Contexts:        contexts,
		ConfidenceScore: ConfidenceScore(contexts),
		Model:           o.llm.Model(),
		ResponseTimeMs:  time.Since(start).Milliseconds(),
	}, nil
}

// historyTurns clamps history to the most recent window, oldest first.
func historyTurns(history []models.Message) []core.ChatTurn {
	if len(history) > historyWindow {
		history = history[len(history)-historyWindow:]
	}
	turns := make([]core.ChatTurn, 0, len(history))
	for _, m := range history {
		turns = append(turns, core.ChatTurn{Role: m.Role, Content: m.Content})
	}
	return turns
}
