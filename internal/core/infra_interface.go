package core

import (
	"context"
	"io"

	"github.com/kineticlabs/battintel/internal/models"
)

// Store defines all persistence operations the services need.
// It abstracts Postgres/pgvector so higher layers never depend on a
// specific DB.
type Store interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)

	GetDocumentByPath(ctx context.Context, filePath string) (*models.Document, error)
	GetDocumentByID(ctx context.Context, id int64) (*models.Document, error)
	ListDocuments(ctx context.Context, status string, limit, offset int) ([]models.Document, error)
	// ReplaceDocumentChunks upserts the document record, drops its prior
	// chunks and inserts the new set in a single transaction. A failure
	// partway leaves the prior state intact.
	ReplaceDocumentChunks(ctx context.Context, doc *models.Document, chunks []models.DocumentChunk) error
	MarkDocumentFailed(ctx context.Context, doc *models.Document, errMsg string) error
	DeleteDocument(ctx context.Context, id int64) (deletedChunks int64, err error)
	GetChunksByDocument(ctx context.Context, sourceDocument string, limit, offset int) ([]models.DocumentChunk, error)
	DocumentStats(ctx context.Context) (*models.DocumentStats, error)

	// SearchChunks returns up to topK chunks whose cosine similarity to
	// queryVec exceeds threshold, ordered by descending similarity with
	// chunk id as the deterministic tie-break.
	SearchChunks(ctx context.Context, queryVec []float32, topK int, threshold float64) ([]models.RetrievedContext, error)

	GetOrCreateConversation(ctx context.Context, sessionID string) (*models.Conversation, error)
	GetConversationBySession(ctx context.Context, sessionID string) (*models.Conversation, error)
	DeleteConversation(ctx context.Context, sessionID string) error
	// InsertTurn persists a user message and the assistant reply in one
	// transaction so a failed query never leaves an orphan user message.
	InsertTurn(ctx context.Context, userMsg, assistantMsg *models.Message) error
	ListMessages(ctx context.Context, conversationID int64, limit int) ([]models.Message, error)
	CountMessages(ctx context.Context, conversationID int64) (int, error)
	GetMessage(ctx context.Context, id int64) (*models.Message, error)
	InsertFeedback(ctx context.Context, fb *models.ChatFeedback) error

	Close() error
}

// ObjectClient defines interactions with S3 or any object storage used to
// archive raw uploads before ingestion.
type ObjectClient interface {
	UploadFile(ctx context.Context, bucket, key string, data io.Reader, contentType string) (url string, err error)
	DeleteFile(ctx context.Context, bucket, key string) error
	GetFile(ctx context.Context, bucket, key string) ([]byte, error)
}
