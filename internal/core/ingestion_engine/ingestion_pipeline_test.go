package ingestion_engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kineticlabs/battintel/internal/core"
	"github.com/kineticlabs/battintel/internal/models"
)

// fakeStore implements only what the pipeline touches; anything else
// panics via the embedded nil interface.
type fakeStore struct {
	core.Store

	mu       sync.Mutex
	docs     map[string]*models.Document
	chunks   map[string][]models.DocumentChunk
	failures map[string]string
	replaces int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		docs:     make(map[string]*models.Document),
		chunks:   make(map[string][]models.DocumentChunk),
		failures: make(map[string]string),
	}
}

func (s *fakeStore) GetDocumentByPath(ctx context.Context, filePath string) (*models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.docs[filePath]; ok {
		copied := *d
		return &copied, nil
	}
	return nil, nil
}

func (s *fakeStore) ReplaceDocumentChunks(ctx context.Context, doc *models.Document, chunks []models.DocumentChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replaces++

	stored := *doc
	stored.ProcessingStatus = models.StatusCompleted
	stored.TotalChunks = len(chunks)
	for _, ch := range chunks {
		stored.TotalTokens += ch.TokenCount
	}
	s.docs[doc.FilePath] = &stored
	s.chunks[doc.FileName] = chunks
	return nil
}

func (s *fakeStore) MarkDocumentFailed(ctx context.Context, doc *models.Document, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *doc
	stored.ProcessingStatus = models.StatusFailed
	stored.ErrorMessage = errMsg
	s.docs[doc.FilePath] = &stored
	s.failures[doc.FileName] = errMsg
	return nil
}

type fakeEmbedder struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeEmbedder) Dimensions() int { return 3 }

func (f *fakeEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vecs, err := f.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (f *fakeEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 2, 3}
	}
	return out, nil
}

func testContent() string {
	return "# Production Capacity\n" + strings.Repeat("gigafactory output grew again this quarter across all cell lines ", 20)
}

func newTestPipeline(store core.Store, emb core.EmbeddingProvider, docsDir string) *Pipeline {
	chunker := NewChunker(1000, 200, 100)
	return NewPipeline(store, emb, NewDocconvExtractor(false), chunker, docsDir, 2, 30*time.Second)
}

func writeDoc(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestIngestFileNewDocument(t *testing.T) {
	dir := t.TempDir()
	path := writeDoc(t, dir, "report.md", testContent())

	store := newFakeStore()
	emb := &fakeEmbedder{}
	p := newTestPipeline(store, emb, dir)

	res := p.IngestFile(context.Background(), path)
	require.Equal(t, ResultIngested, res.Status, res.Error)
	assert.Greater(t, res.Chunks, 0)
	assert.Greater(t, res.Tokens, 0)

	doc := store.docs[path]
	require.NotNil(t, doc)
	assert.Equal(t, models.StatusCompleted, doc.ProcessingStatus)
	assert.Equal(t, res.Chunks, doc.TotalChunks)

	sum := sha256.Sum256([]byte(testContent()))
	assert.Equal(t, hex.EncodeToString(sum[:]), doc.FileHash)

	for _, ch := range store.chunks["report.md"] {
		assert.Len(t, ch.Embedding, 3)
	}
}

func TestIngestFileSkipsUnchanged(t *testing.T) {
	dir := t.TempDir()
	path := writeDoc(t, dir, "report.md", testContent())

	store := newFakeStore()
	emb := &fakeEmbedder{}
	p := newTestPipeline(store, emb, dir)

	first := p.IngestFile(context.Background(), path)
	require.Equal(t, ResultIngested, first.Status)
	callsAfterFirst := emb.calls

	second := p.IngestFile(context.Background(), path)
	assert.Equal(t, ResultSkipped, second.Status)
	assert.Equal(t, 0, second.Chunks, "skip reports no new chunks")
	assert.Equal(t, 0, second.Tokens)
	assert.Equal(t, callsAfterFirst, emb.calls, "skip must not re-embed")
	assert.Equal(t, 1, store.replaces, "skip must not rewrite chunks")
}

func TestIngestFileRetriesFailedDocument(t *testing.T) {
	dir := t.TempDir()
	path := writeDoc(t, dir, "report.md", testContent())

	store := newFakeStore()
	sum := sha256.Sum256([]byte(testContent()))
	store.docs[path] = &models.Document{
		FilePath:         path,
		FileName:         "report.md",
		FileHash:         hex.EncodeToString(sum[:]),
		ProcessingStatus: models.StatusFailed,
	}

	p := newTestPipeline(store, &fakeEmbedder{}, dir)

	res := p.IngestFile(context.Background(), path)
	assert.Equal(t, ResultIngested, res.Status, "a failed document must be retried even with an unchanged hash")
	assert.Equal(t, 1, store.replaces)
}

func TestIngestFileReingestsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := writeDoc(t, dir, "report.md", testContent())

	store := newFakeStore()
	p := newTestPipeline(store, &fakeEmbedder{}, dir)

	require.Equal(t, ResultIngested, p.IngestFile(context.Background(), path).Status)
	oldHashes := map[string]bool{}
	for _, ch := range store.chunks["report.md"] {
		oldHashes[ch.ContentHash] = true
	}

	writeDoc(t, dir, "report.md", "# Revised Outlook\n"+strings.Repeat("demand shifted toward lithium iron phosphate chemistries this year ", 20))

	res := p.IngestFile(context.Background(), path)
	require.Equal(t, ResultIngested, res.Status)
	assert.Equal(t, 2, store.replaces)

	for _, ch := range store.chunks["report.md"] {
		assert.False(t, oldHashes[ch.ContentHash], "old chunk hashes must not survive re-ingestion")
	}
}

func TestIngestFileEmbedderFailure(t *testing.T) {
	dir := t.TempDir()
	path := writeDoc(t, dir, "report.md", testContent())

	store := newFakeStore()
	p := newTestPipeline(store, &fakeEmbedder{err: errors.New("quota exceeded")}, dir)

	res := p.IngestFile(context.Background(), path)
	assert.Equal(t, ResultFailed, res.Status)
	assert.Contains(t, res.Error, "quota exceeded")

	doc := store.docs[path]
	require.NotNil(t, doc)
	assert.Equal(t, models.StatusFailed, doc.ProcessingStatus)
	assert.Contains(t, store.failures["report.md"], "quota exceeded")
}

func TestIngestFileMissing(t *testing.T) {
	store := newFakeStore()
	p := newTestPipeline(store, &fakeEmbedder{}, t.TempDir())

	res := p.IngestFile(context.Background(), "/nonexistent/file.md")
	assert.Equal(t, ResultFailed, res.Status)
	assert.NotEmpty(t, res.Error)
}

func TestIngestDirectory(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "a.md", testContent())
	writeDoc(t, dir, "b.md", "# Other\n"+strings.Repeat("solid state cells promise higher energy density per kilogram soon ", 20))
	writeDoc(t, dir, "empty.md", "")
	writeDoc(t, dir, ".hidden", "ignored")

	store := newFakeStore()
	p := newTestPipeline(store, &fakeEmbedder{}, dir)

	results, err := p.IngestDirectory(context.Background())
	require.NoError(t, err, "partial failure must not fail the run")
	require.Len(t, results, 3)

	byFile := map[string]Result{}
	for _, r := range results {
		byFile[r.File] = r
	}
	assert.Equal(t, ResultIngested, byFile["a.md"].Status)
	assert.Equal(t, ResultIngested, byFile["b.md"].Status)
	assert.Equal(t, ResultFailed, byFile["empty.md"].Status)
}

func TestIngestDirectoryAllFailed(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "a.md", "")
	writeDoc(t, dir, "b.md", "   ")

	store := newFakeStore()
	p := newTestPipeline(store, &fakeEmbedder{}, dir)

	results, err := p.IngestDirectory(context.Background())
	assert.Error(t, err)
	assert.Len(t, results, 2)
}

func TestIngestDirectoryEmpty(t *testing.T) {
	p := newTestPipeline(newFakeStore(), &fakeEmbedder{}, t.TempDir())

	results, err := p.IngestDirectory(context.Background())
	require.NoError(t, err)
	assert.Empty(t, results)
}
