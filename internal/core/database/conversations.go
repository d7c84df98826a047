package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kineticlabs/battintel/internal/core"
	"github.com/kineticlabs/battintel/internal/models"
)

// GetOrCreateConversation is idempotent per session id. Two concurrent
// callers racing on a new session both end up bound to the same row: the
// insert is attempted first, and the unique constraint plus re-select
// resolve the loser to the winner's conversation.
func (c *DatabaseClient) GetOrCreateConversation(ctx context.Context, sessionID string) (*models.Conversation, error) {
	if sessionID == "" {
		return nil, errors.New("empty session id")
	}
	if _, err := c.db.ExecContext(ctx,
		`INSERT INTO conversations (session_id) VALUES ($1) ON CONFLICT (session_id) DO NOTHING`,
		sessionID,
	); err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	conv, err := c.GetConversationBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, fmt.Errorf("conversation %q vanished after insert", sessionID)
	}
	return conv, nil
}

func (c *DatabaseClient) GetConversationBySession(ctx context.Context, sessionID string) (*models.Conversation, error) {
	const q = `
		SELECT id, session_id, COALESCE(user_id, ''), is_active, created_at, updated_at
		FROM conversations
		WHERE session_id = $1
	`
	var conv models.Conversation
	err := c.db.QueryRowContext(ctx, q, sessionID).Scan(
		&conv.ID, &conv.SessionID, &conv.UserID, &conv.IsActive, &conv.CreatedAt, &conv.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// DeleteConversation removes a conversation and, through the FK cascade,
// all of its messages in one statement.
func (c *DatabaseClient) DeleteConversation(ctx context.Context, sessionID string) error {
	res, err := c.db.ExecContext(ctx, `DELETE FROM conversations WHERE session_id = $1`, sessionID)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return core.ErrNotFound
	}
	return nil
}

// InsertTurn persists the user message and the assistant reply of one chat
// query in a single transaction, so a failure never leaves an orphan user
// message without its reply.
func (c *DatabaseClient) InsertTurn(ctx context.Context, userMsg, assistantMsg *models.Message) error {
	if userMsg == nil || assistantMsg == nil {
		return errors.New("nil message")
	}
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}

	if err := insertMessage(ctx, tx, userMsg); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("insert user message: %w", err)
	}
	if err := insertMessage(ctx, tx, assistantMsg); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("insert assistant message: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE conversations SET updated_at = now() WHERE id = $1`, userMsg.ConversationID,
	); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("touch conversation: %w", err)
	}
	return tx.Commit()
}

func insertMessage(ctx context.Context, tx *sql.Tx, msg *models.Message) error {
	citations, err := marshalNullable(msg.Citations)
	if err != nil {
		return err
	}
	sourceChunks, err := marshalNullable(msg.SourceChunks)
	if err != nil {
		return err
	}

	const q = `
		INSERT INTO messages
			(conversation_id, role, content, citations, source_chunks, token_count,
			 confidence_score, model_used, response_time_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), NULLIF($9, 0))
		RETURNING id, created_at
	`
	return tx.QueryRowContext(ctx, q,
		msg.ConversationID, msg.Role, msg.Content, citations, sourceChunks, msg.TokenCount,
		msg.ConfidenceScore, msg.ModelUsed, msg.ResponseTimeMs,
	).Scan(&msg.ID, &msg.CreatedAt)
}

func marshalNullable(v any) ([]byte, error) {
	switch x := v.(type) {
	case []models.Citation:
		if len(x) == 0 {
			return nil, nil
		}
	case []models.RetrievedContext:
		if len(x) == 0 {
			return nil, nil
		}
	}
	return json.Marshal(v)
}

// ListMessages returns the `limit` most recent messages, ordered oldest
// first so they can be fed verbatim to the orchestrator's history window.
func (c *DatabaseClient) ListMessages(ctx context.Context, conversationID int64, limit int) ([]models.Message, error) {
	const q = `
		SELECT id, conversation_id, role, content, citations, source_chunks, token_count,
		       confidence_score, COALESCE(model_used, ''), COALESCE(response_time_ms, 0),
		       user_rating, COALESCE(user_feedback, ''), created_at
		FROM (
			SELECT * FROM messages
			WHERE conversation_id = $1
			ORDER BY created_at DESC, id DESC
			LIMIT $2
		) recent
		ORDER BY created_at ASC, id ASC
	`
	rows, err := c.db.QueryContext(ctx, q, conversationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *msg)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) CountMessages(ctx context.Context, conversationID int64) (int, error) {
	var n int
	err := c.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE conversation_id = $1`, conversationID,
	).Scan(&n)
	return n, err
}

func (c *DatabaseClient) GetMessage(ctx context.Context, id int64) (*models.Message, error) {
	const q = `
		SELECT id, conversation_id, role, content, citations, source_chunks, token_count,
		       confidence_score, COALESCE(model_used, ''), COALESCE(response_time_ms, 0),
		       user_rating, COALESCE(user_feedback, ''), created_at
		FROM messages
		WHERE id = $1
	`
	rows, err := c.db.QueryContext(ctx, q, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return scanMessage(rows)
}

func scanMessage(rows *sql.Rows) (*models.Message, error) {
	var (
		msg          models.Message
		citations    []byte
		sourceChunks []byte
	)
	if err := rows.Scan(
		&msg.ID, &msg.ConversationID, &msg.Role, &msg.Content, &citations, &sourceChunks,
		&msg.TokenCount, &msg.ConfidenceScore, &msg.ModelUsed, &msg.ResponseTimeMs,
		&msg.UserRating, &msg.UserFeedback, &msg.CreatedAt,
	); err != nil {
		return nil, err
	}
	if len(citations) > 0 {
		if err := json.Unmarshal(citations, &msg.Citations); err != nil {
			return nil, fmt.Errorf("decode citations for message %d: %w", msg.ID, err)
		}
	}
	if len(sourceChunks) > 0 {
		if err := json.Unmarshal(sourceChunks, &msg.SourceChunks); err != nil {
			return nil, fmt.Errorf("decode source chunks for message %d: %w", msg.ID, err)
		}
	}
	return &msg, nil
}

func (c *DatabaseClient) InsertFeedback(ctx context.Context, fb *models.ChatFeedback) error {
	if fb == nil {
		return errors.New("nil feedback")
	}
	const q = `
		INSERT INTO chat_feedback (message_id, rating, feedback_type, comment, query, response)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6)
		RETURNING id, created_at
	`
	return c.db.QueryRowContext(ctx, q,
		fb.MessageID, fb.Rating, fb.FeedbackType, fb.Comment, fb.Query, fb.Response,
	).Scan(&fb.ID, &fb.CreatedAt)
}
