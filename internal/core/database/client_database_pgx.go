package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kineticlabs/battintel/internal/config"
	"github.com/kineticlabs/battintel/internal/core"
	"github.com/kineticlabs/battintel/internal/models"
)

type DatabaseClient struct {
	db *sql.DB
}

var _ core.Store = (*DatabaseClient)(nil)

func NewDatabaseClient(ctx context.Context, cfg *config.Config, embedDim int) (*DatabaseClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database client configuration is nil")
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// Sensible pool settings for an API service; adjust as needed.
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := EnsureBootstrapped(ctx, db, embedDim); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	return &DatabaseClient{db: db}, nil
}

func (c *DatabaseClient) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Implementing the store interface for users

func (c *DatabaseClient) CreateUser(ctx context.Context, user *models.User) error {
	if user == nil {
		return errors.New("nil user")
	}
	const q = `
		INSERT INTO users (id, email, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, now(), now())
	`
	_, err := c.db.ExecContext(ctx, q, user.ID, user.Email, user.PasswordHash)
	return err
}

func (c *DatabaseClient) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	const q = `
		SELECT id, email, password_hash, created_at, updated_at
		FROM users WHERE email = $1
	`
	var u models.User
	err := c.db.QueryRowContext(ctx, q, email).Scan(
		&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Implementing the store interface for documents

func (c *DatabaseClient) GetDocumentByPath(ctx context.Context, filePath string) (*models.Document, error) {
	const q = `
		SELECT id, file_path, file_name, file_type, file_size, file_hash,
		       processing_status, total_chunks, total_tokens,
		       COALESCE(error_message, ''), COALESCE(storage_url, ''),
		       created_at, updated_at
		FROM documents
		WHERE file_path = $1
	`
	return c.scanDocument(c.db.QueryRowContext(ctx, q, filePath))
}

func (c *DatabaseClient) GetDocumentByID(ctx context.Context, id int64) (*models.Document, error) {
	const q = `
		SELECT id, file_path, file_name, file_type, file_size, file_hash,
		       processing_status, total_chunks, total_tokens,
		       COALESCE(error_message, ''), COALESCE(storage_url, ''),
		       created_at, updated_at
		FROM documents
		WHERE id = $1
	`
	return c.scanDocument(c.db.QueryRowContext(ctx, q, id))
}

func (c *DatabaseClient) scanDocument(row *sql.Row) (*models.Document, error) {
	var d models.Document
	err := row.Scan(
		&d.ID, &d.FilePath, &d.FileName, &d.FileType, &d.FileSize, &d.FileHash,
		&d.ProcessingStatus, &d.TotalChunks, &d.TotalTokens,
		&d.ErrorMessage, &d.StorageURL, &d.CreatedAt, &d.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (c *DatabaseClient) ListDocuments(ctx context.Context, status string, limit, offset int) ([]models.Document, error) {
	q := `
		SELECT id, file_path, file_name, file_type, file_size, file_hash,
		       processing_status, total_chunks, total_tokens,
		       COALESCE(error_message, ''), COALESCE(storage_url, ''),
		       created_at, updated_at
		FROM documents
	`
	args := []any{}
	if status != "" {
		q += ` WHERE processing_status = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`
		args = append(args, status, limit, offset)
	} else {
		q += ` ORDER BY created_at DESC LIMIT $1 OFFSET $2`
		args = append(args, limit, offset)
	}

	rows, err := c.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Document
	for rows.Next() {
		var d models.Document
		if err := rows.Scan(
			&d.ID, &d.FilePath, &d.FileName, &d.FileType, &d.FileSize, &d.FileHash,
			&d.ProcessingStatus, &d.TotalChunks, &d.TotalTokens,
			&d.ErrorMessage, &d.StorageURL, &d.CreatedAt, &d.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// ReplaceDocumentChunks runs the whole re-ingestion sequence in a single
// transaction: upsert the document record in processing state, drop its
// prior chunks, insert the new set, then flip the record to completed.
// A crash before commit leaves the prior state intact.
func (c *DatabaseClient) ReplaceDocumentChunks(ctx context.Context, doc *models.Document, chunks []models.DocumentChunk) error {
	if doc == nil {
		return errors.New("nil document")
	}
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}

	const upsert = `
		INSERT INTO documents
			(file_path, file_name, file_type, file_size, file_hash, processing_status, storage_url)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''))
		ON CONFLICT (file_path) DO UPDATE SET
			file_name = EXCLUDED.file_name,
			file_type = EXCLUDED.file_type,
			file_size = EXCLUDED.file_size,
			file_hash = EXCLUDED.file_hash,
			processing_status = EXCLUDED.processing_status,
			storage_url = COALESCE(EXCLUDED.storage_url, documents.storage_url),
			error_message = NULL,
			updated_at = now()
		RETURNING id
	`
	if err := tx.QueryRowContext(ctx, upsert,
		doc.FilePath, doc.FileName, doc.FileType, doc.FileSize, doc.FileHash,
		models.StatusProcessing, doc.StorageURL,
	).Scan(&doc.ID); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("upsert document: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM document_chunks WHERE source_document = $1`, doc.FileName,
	); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("delete prior chunks: %w", err)
	}

	// A content-hash collision means "semantically same chunk"; the
	// second write resolves to the first instead of duplicating.
	const insert = `
		INSERT INTO document_chunks
			(source_document, chunk_index, content, content_hash, section_title, page_number, embedding, token_count)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, 0), $7, $8)
		ON CONFLICT (content_hash) DO NOTHING
	`
	stmt, err := tx.PrepareContext(ctx, insert)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	totalTokens := 0
	for i := range chunks {
		ch := &chunks[i]
		vec := pgvector.NewVector(ch.Embedding)
		if _, err := stmt.ExecContext(ctx,
			doc.FileName, ch.ChunkIndex, ch.Content, ch.ContentHash,
			ch.SectionTitle, ch.PageNumber, vec, ch.TokenCount,
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert chunk %d: %w", ch.ChunkIndex, err)
		}
		totalTokens += ch.TokenCount
	}

	const finish = `
		UPDATE documents
		SET processing_status = $2, total_chunks = $3, total_tokens = $4, error_message = NULL, updated_at = now()
		WHERE id = $1
	`
	if _, err := tx.ExecContext(ctx, finish, doc.ID, models.StatusCompleted, len(chunks), totalTokens); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("finalize document: %w", err)
	}

	doc.ProcessingStatus = models.StatusCompleted
	doc.TotalChunks = len(chunks)
	doc.TotalTokens = totalTokens
	return tx.Commit()
}

// MarkDocumentFailed records an ingestion failure on the document record
// without touching whatever chunk set the last successful run committed.
func (c *DatabaseClient) MarkDocumentFailed(ctx context.Context, doc *models.Document, errMsg string) error {
	if doc == nil {
		return errors.New("nil document")
	}
	const q = `
		INSERT INTO documents
			(file_path, file_name, file_type, file_size, file_hash, processing_status, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (file_path) DO UPDATE SET
			processing_status = EXCLUDED.processing_status,
			error_message = EXCLUDED.error_message,
			updated_at = now()
	`
	_, err := c.db.ExecContext(ctx, q,
		doc.FilePath, doc.FileName, doc.FileType, doc.FileSize, doc.FileHash,
		models.StatusFailed, errMsg)
	return err
}

func (c *DatabaseClient) DeleteDocument(ctx context.Context, id int64) (int64, error) {
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return 0, err
	}

	var fileName string
	err = tx.QueryRowContext(ctx, `SELECT file_name FROM documents WHERE id = $1`, id).Scan(&fileName)
	if err == sql.ErrNoRows {
		_ = tx.Rollback()
		return 0, core.ErrNotFound
	}
	if err != nil {
		_ = tx.Rollback()
		return 0, err
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM document_chunks WHERE source_document = $1`, fileName)
	if err != nil {
		_ = tx.Rollback()
		return 0, err
	}
	deleted, _ := res.RowsAffected()

	if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id); err != nil {
		_ = tx.Rollback()
		return 0, err
	}
	return deleted, tx.Commit()
}

func (c *DatabaseClient) GetChunksByDocument(ctx context.Context, sourceDocument string, limit, offset int) ([]models.DocumentChunk, error) {
	const q = `
		SELECT id, source_document, chunk_index, content, content_hash,
		       COALESCE(section_title, ''), COALESCE(page_number, 0), token_count, created_at
		FROM document_chunks
		WHERE source_document = $1
		ORDER BY chunk_index ASC
		LIMIT $2 OFFSET $3
	`
	rows, err := c.db.QueryContext(ctx, q, sourceDocument, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.DocumentChunk
	for rows.Next() {
		var ch models.DocumentChunk
		if err := rows.Scan(
			&ch.ID, &ch.SourceDocument, &ch.ChunkIndex, &ch.Content, &ch.ContentHash,
			&ch.SectionTitle, &ch.PageNumber, &ch.TokenCount, &ch.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}

// SearchChunks finds the top-k chunks above the similarity threshold for a
// query embedding. Similarity is 1 - cosine distance; results come back in
// descending similarity with chunk id as the deterministic tie-break.
func (c *DatabaseClient) SearchChunks(ctx context.Context, queryVec []float32, topK int, threshold float64) ([]models.RetrievedContext, error) {
	const q = `
		SELECT id, content, source_document, COALESCE(section_title, ''),
		       1 - (embedding <=> $1) AS similarity
		FROM document_chunks
		WHERE 1 - (embedding <=> $1) > $2
		ORDER BY embedding <=> $1 ASC, id ASC
		LIMIT $3
	`
	vec := pgvector.NewVector(queryVec)
	rows, err := c.db.QueryContext(ctx, q, vec, threshold, topK)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.RetrievedContext
	for rows.Next() {
		var rc models.RetrievedContext
		if err := rows.Scan(
			&rc.ChunkID, &rc.Content, &rc.SourceDocument, &rc.SectionTitle, &rc.SimilarityScore,
		); err != nil {
			return nil, err
		}
		out = append(out, rc)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) DocumentStats(ctx context.Context) (*models.DocumentStats, error) {
	const q = `
		SELECT COUNT(*),
		       COALESCE(SUM(total_tokens), 0),
		       COALESCE(SUM(file_size), 0),
		       COUNT(*) FILTER (WHERE processing_status = 'pending'),
		       COUNT(*) FILTER (WHERE processing_status = 'processing'),
		       COUNT(*) FILTER (WHERE processing_status = 'completed'),
		       COUNT(*) FILTER (WHERE processing_status = 'failed')
		FROM documents
	`
	var (
		s            models.DocumentStats
		storageBytes int64
	)
	if err := c.db.QueryRowContext(ctx, q).Scan(
		&s.TotalDocuments, &s.TotalTokens, &storageBytes,
		&s.Pending, &s.Processing, &s.Completed, &s.Failed,
	); err != nil {
		return nil, err
	}
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM document_chunks`).Scan(&s.TotalChunks); err != nil {
		return nil, err
	}
	s.StorageSizeMB = float64(storageBytes) / (1024 * 1024)
	return &s, nil
}
