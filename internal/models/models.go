package models

import (
	"time"
)

// User represents an authenticated operator of the system.
type User struct {
	ID           string    `db:"id" json:"id"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Document tracks one ingested source file and its processing state.
// Status moves pending -> processing -> completed|failed; a changed file
// hash on a later scan sends it back through processing.
type Document struct {
	ID               int64     `db:"id" json:"id"`
	FilePath         string    `db:"file_path" json:"file_path"`
	FileName         string    `db:"file_name" json:"file_name"`
	FileType         string    `db:"file_type" json:"file_type"`
	FileSize         int64     `db:"file_size" json:"file_size"`
	FileHash         string    `db:"file_hash" json:"file_hash"`
	ProcessingStatus string    `db:"processing_status" json:"processing_status"`
	TotalChunks      int       `db:"total_chunks" json:"total_chunks"`
	TotalTokens      int       `db:"total_tokens" json:"total_tokens"`
	ErrorMessage     string    `db:"error_message" json:"error_message,omitempty"`
	StorageURL       string    `db:"storage_url" json:"storage_url,omitempty"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

// Document processing statuses.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// DocumentChunk represents one text chunk of a source document with its
// embedding. The content hash is unique system-wide and doubles as the
// dedup key.
type DocumentChunk struct {
	ID             int64     `db:"id" json:"id"`
	SourceDocument string    `db:"source_document" json:"source_document"`
	ChunkIndex     int       `db:"chunk_index" json:"chunk_index"`
	Content        string    `db:"content" json:"content"`
	ContentHash    string    `db:"content_hash" json:"content_hash"`
	SectionTitle   string    `db:"section_title" json:"section_title,omitempty"`
	PageNumber     int       `db:"page_number" json:"page_number,omitempty"`
	Embedding      []float32 `db:"embedding" json:"-"`
	TokenCount     int       `db:"token_count" json:"token_count"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// RetrievedContext is a chunk returned by similarity search, carrying the
// similarity score computed at retrieval time.
type RetrievedContext struct {
	Content         string  `json:"content"`
	SourceDocument  string  `json:"source_document"`
	SectionTitle    string  `json:"section_title,omitempty"`
	SimilarityScore float64 `json:"similarity_score"`
	ChunkID         int64   `json:"chunk_id"`
}

// Citation points from an assistant message back to a chunk. CitationID is
// the 1-based position matching the [Source i] labels in the prompt.
type Citation struct {
	CitationID      int     `json:"citation_id"`
	SourceDocument  string  `json:"source_document"`
	SectionTitle    string  `json:"section_title,omitempty"`
	SimilarityScore float64 `json:"similarity_score"`
	ChunkID         int64   `json:"chunk_id"`
}

// Conversation groups the messages of one chat session.
type Conversation struct {
	ID        int64     `db:"id" json:"id"`
	SessionID string    `db:"session_id" json:"session_id"`
	UserID    string    `db:"user_id" json:"user_id,omitempty"`
	IsActive  bool      `db:"is_active" json:"is_active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Message is a single turn in a conversation. Citations, the context
// snapshot and the confidence score are only set on assistant turns.
type Message struct {
	ID              int64              `db:"id" json:"id"`
	ConversationID  int64              `db:"conversation_id" json:"conversation_id"`
	Role            string             `db:"role" json:"role"` // "user" or "assistant"
	Content         string             `db:"content" json:"content"`
	Citations       []Citation         `db:"citations" json:"citations,omitempty"`
	SourceChunks    []RetrievedContext `db:"source_chunks" json:"source_chunks,omitempty"`
	TokenCount      int                `db:"token_count" json:"token_count"`
	ConfidenceScore *float64           `db:"confidence_score" json:"confidence_score,omitempty"`
	ModelUsed       string             `db:"model_used" json:"model_used,omitempty"`
	ResponseTimeMs  int                `db:"response_time_ms" json:"response_time_ms,omitempty"`
	UserRating      *int               `db:"user_rating" json:"user_rating,omitempty"`
	UserFeedback    string             `db:"user_feedback" json:"user_feedback,omitempty"`
	CreatedAt       time.Time          `db:"created_at" json:"created_at"`
}

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatFeedback stores a user rating for one assistant message, with the
// rated exchange denormalized for later analysis.
type ChatFeedback struct {
	ID           int64     `db:"id" json:"id"`
	MessageID    int64     `db:"message_id" json:"message_id"`
	Rating       int       `db:"rating" json:"rating"` // 1..5
	FeedbackType string    `db:"feedback_type" json:"feedback_type"`
	Comment      string    `db:"comment" json:"comment,omitempty"`
	Query        string    `db:"query" json:"query"`
	Response     string    `db:"response" json:"response"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// DocumentStats aggregates corpus-wide counters for the stats endpoint.
type DocumentStats struct {
	TotalDocuments int     `json:"total_documents"`
	TotalChunks    int     `json:"total_chunks"`
	TotalTokens    int     `json:"total_tokens"`
	Pending        int     `json:"pending"`
	Processing     int     `json:"processing"`
	Completed      int     `json:"completed"`
	Failed         int     `json:"failed"`
	StorageSizeMB  float64 `json:"storage_size_mb"`
}
