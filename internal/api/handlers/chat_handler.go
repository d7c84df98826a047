package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kineticlabs/battintel/internal/config"
	"github.com/kineticlabs/battintel/internal/core"
	"github.com/kineticlabs/battintel/internal/models"
	"github.com/kineticlabs/battintel/internal/rag"
)

const (
	maxQueryLen     = 5000
	maxTopK         = 20
	maxCommentLen   = 1000
	maxHistoryLimit = 500
)

type ChatHandler struct {
	orchestrator *rag.Orchestrator
	conversation *rag.ConversationManager
	store        core.Store
	cfg          *config.Config
}

func NewChatHandler(orch *rag.Orchestrator, conv *rag.ConversationManager, store core.Store, cfg *config.Config) *ChatHandler {
	return &ChatHandler{orchestrator: orch, conversation: conv, store: store, cfg: cfg}
}

type chatQueryRequest struct {
	Query          string `json:"query"`
	SessionID      string `json:"session_id,omitempty"`
	TopK           int    `json:"top_k,omitempty"`
	IncludeSources *bool  `json:"include_sources,omitempty"`
}

type chatQueryResponse struct {
	Response        string            `json:"response"`
	Citations       []models.Citation `json:"citations"`
	ConfidenceScore float64           `json:"confidence_score"`
	SessionID       string            `json:"session_id"`
	Model           string            `json:"model"`
	ResponseTimeMs  int64             `json:"response_time_ms"`
	RetrievedChunks int               `json:"retrieved_chunks"`
}

// Query answers a question from the ingested corpus, threading the
// session's recent history into the prompt and persisting both sides of
// the turn once generation succeeds.
func (h *ChatHandler) Query(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req chatQueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	query := strings.TrimSpace(req.Query)
	if query == "" || utf8.RuneCountInString(query) > maxQueryLen {
		respondError(w, http.StatusBadRequest, "query must be between 1 and 5000 characters")
		return
	}
	if req.TopK < 0 || req.TopK > maxTopK {
		respondError(w, http.StatusBadRequest, "top_k must be between 1 and 20")
		return
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	conv, err := h.conversation.GetOrCreate(ctx, sessionID)
	if err != nil {
		log.Printf("chat: get or create conversation %s: %v", sessionID, err)
		respondError(w, http.StatusInternalServerError, "failed to process query")
		return
	}

	history, _, err := h.conversation.History(ctx, sessionID, 10)
	if err != nil {
		log.Printf("chat: load history %s: %v", sessionID, err)
		respondError(w, http.StatusInternalServerError, "failed to process query")
		return
	}

	ans, err := h.orchestrator.Answer(ctx, query, history, req.TopK)
	if err != nil {
		if errors.Is(err, core.ErrValidation) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		log.Printf("chat: answer failed for session %s: %v", sessionID, err)
		respondError(w, http.StatusInternalServerError, "failed to process query")
		return
	}

	if _, err := h.conversation.RecordTurn(ctx, conv.ID, query, ans); err != nil {
		log.Printf("chat: record turn for session %s: %v", sessionID, err)
		respondError(w, http.StatusInternalServerError, "failed to process query")
		return
	}

	citations := ans.Citations
	if req.IncludeSources != nil && !*req.IncludeSources {
		citations = []models.Citation{}
	}

	respondJSON(w, http.StatusOK, chatQueryResponse{
		Response:        ans.Response,
		Citations:       citations,
		ConfidenceScore: ans.ConfidenceScore,
		SessionID:       sessionID,
		Model:           ans.Model,
		ResponseTimeMs:  ans.ResponseTimeMs,
		RetrievedChunks: len(ans.Contexts),
	})
}

type historyMessage struct {
	ID              int64             `json:"id"`
	Role            string            `json:"role"`
	Content         string            `json:"content"`
	Citations       []models.Citation `json:"citations,omitempty"`
	ConfidenceScore *float64          `json:"confidence_score,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
}

// History returns a session's messages in chronological order.
func (h *ChatHandler) History(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxHistoryLimit {
			respondError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = n
	}

	conv, err := h.store.GetConversationBySession(r.Context(), sessionID)
	if err != nil {
		log.Printf("chat: lookup conversation %s: %v", sessionID, err)
		respondError(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	if conv == nil {
		respondError(w, http.StatusNotFound, "conversation not found")
		return
	}

	msgs, total, err := h.conversation.History(r.Context(), sessionID, limit)
	if err != nil {
		log.Printf("chat: load history %s: %v", sessionID, err)
		respondError(w, http.StatusInternalServerError, "failed to load history")
		return
	}

	out := make([]historyMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, historyMessage{
			ID:              m.ID,
			Role:            m.Role,
			Content:         m.Content,
			Citations:       m.Citations,
			ConfidenceScore: m.ConfidenceScore,
			CreatedAt:       m.CreatedAt,
		})
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"session_id":     sessionID,
		"messages":       out,
		"total_messages": total,
	})
}

type feedbackRequest struct {
	MessageID    int64  `json:"message_id"`
	Rating       int    `json:"rating"`
	FeedbackType string `json:"feedback_type"`
	Comment      string `json:"comment,omitempty"`
}

// Feedback records a 1-5 rating against an existing message, with the
// rated exchange denormalized onto the feedback row.
func (h *ChatHandler) Feedback(w http.ResponseWriter, r *http.Request) {
	var req feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Rating < 1 || req.Rating > 5 {
		respondError(w, http.StatusBadRequest, "rating must be between 1 and 5")
		return
	}
	if len(req.Comment) > maxCommentLen {
		respondError(w, http.StatusBadRequest, "comment too long")
		return
	}

	msg, err := h.store.GetMessage(r.Context(), req.MessageID)
	if err != nil {
		log.Printf("chat: lookup message %d: %v", req.MessageID, err)
		respondError(w, http.StatusInternalServerError, "failed to record feedback")
		return
	}
	if msg == nil {
		respondError(w, http.StatusNotFound, "message not found")
		return
	}

	fb := &models.ChatFeedback{
		MessageID:    req.MessageID,
		Rating:       req.Rating,
		FeedbackType: req.FeedbackType,
		Comment:      req.Comment,
	}
	switch msg.Role {
	case models.RoleUser:
		fb.Query = msg.Content
	case models.RoleAssistant:
		fb.Response = msg.Content
	}

	if err := h.store.InsertFeedback(r.Context(), fb); err != nil {
		log.Printf("chat: insert feedback for message %d: %v", req.MessageID, err)
		respondError(w, http.StatusInternalServerError, "failed to record feedback")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "success", "message": "Feedback recorded"})
}

// DeleteConversation removes a session and all of its messages.
func (h *ChatHandler) DeleteConversation(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")

	if err := h.conversation.Delete(r.Context(), sessionID); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			respondError(w, http.StatusNotFound, "conversation not found")
			return
		}
		log.Printf("chat: delete conversation %s: %v", sessionID, err)
		respondError(w, http.StatusInternalServerError, "failed to delete conversation")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "success", "message": "Conversation deleted"})
}

// Health reports whether the embedding and generation providers are
// configured. Missing credentials yield 503.
func (h *ChatHandler) Health(w http.ResponseWriter, r *http.Request) {
	embeddingHealthy := false
	switch h.cfg.EmbeddingProvider {
	case "gemini":
		embeddingHealthy = h.cfg.GeminiAPIKey != ""
	case "openai":
		embeddingHealthy = h.cfg.OpenAIAPIKey != ""
	case "ollama":
		embeddingHealthy = h.cfg.OllamaURL != ""
	}
	llmHealthy := h.cfg.GeminiAPIKey != ""

	body := map[string]any{
		"status": "healthy",
		"services": map[string]bool{
			"embedding": embeddingHealthy,
			"llm":       llmHealthy,
		},
		"config": map[string]any{
			"embedding_provider":   h.cfg.EmbeddingProvider,
			"llm_model":            h.cfg.GenModel,
			"top_k":                h.cfg.TopK,
			"similarity_threshold": h.cfg.SimilarityThreshold,
		},
	}

	if !embeddingHealthy || !llmHealthy {
		body["status"] = "unhealthy"
		respondJSON(w, http.StatusServiceUnavailable, body)
		return
	}
	respondJSON(w, http.StatusOK, body)
}
