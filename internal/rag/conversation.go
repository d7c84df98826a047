package rag

import (
	"context"
	"fmt"

	"github.com/kineticlabs/battintel/internal/core"
	"github.com/kineticlabs/battintel/internal/core/ingestion_engine"
	"github.com/kineticlabs/battintel/internal/models"
)

// ConversationManager owns session-keyed turn history. It layers the
// message shaping on top of the store so handlers never build Message
// rows by hand.
type ConversationManager struct {
	store core.Store
}

func NewConversationManager(store core.Store) *ConversationManager {
	return &ConversationManager{store: store}
}

// GetOrCreate returns the conversation for sessionID, creating it on
// first use. Repeated calls with the same session return the same
// conversation.
func (m *ConversationManager) GetOrCreate(ctx context.Context, sessionID string) (*models.Conversation, error) {
	return m.store.GetOrCreateConversation(ctx, sessionID)
}

// History returns the most recent limit messages of a session in
// chronological order. A session with no conversation yet yields an
// empty history.
func (m *ConversationManager) History(ctx context.Context, sessionID string, limit int) ([]models.Message, int, error) {
	conv, err := m.store.GetConversationBySession(ctx, sessionID)
	if err != nil {
		return nil, 0, err
	}
	if conv == nil {
		return []models.Message{}, 0, nil
	}

	msgs, err := m.store.ListMessages(ctx, conv.ID, limit)
	if err != nil {
		return nil, 0, err
	}
	total, err := m.store.CountMessages(ctx, conv.ID)
	if err != nil {
		return nil, 0, err
	}
	return msgs, total, nil
}

// RecordTurn persists the user query and the assistant answer as one
// transactional turn and returns the stored assistant message.
func (m *ConversationManager) RecordTurn(ctx context.Context, conversationID int64, query string, ans *Answer) (*models.Message, error) {
	userMsg := &models.Message{
		ConversationID: conversationID,
		Role:           models.RoleUser,
		Content:        query,
		TokenCount:     ingestion_engine.ApproxTokens(query),
	}
	confidence := ans.ConfidenceScore
	assistantMsg := &models.Message{
		ConversationID:  conversationID,
		Role:            models.RoleAssistant,
		Content:         ans.Response,
		Citations:       ans.Citations,
		SourceChunks:    ans.Contexts,
		TokenCount:      ingestion_engine.ApproxTokens(ans.Response),
		ConfidenceScore: &confidence,
		ModelUsed:       ans.Model,
		ResponseTimeMs:  int(ans.ResponseTimeMs),
	}

	if err := m.store.InsertTurn(ctx, userMsg, assistantMsg); err != nil {
		return nil, fmt.Errorf("persist turn: %w", err)
	}
	return assistantMsg, nil
}

// Delete removes a session's conversation and, via cascade, all of its
// messages.
func (m *ConversationManager) Delete(ctx context.Context, sessionID string) error {
	return m.store.DeleteConversation(ctx, sessionID)
}
