package ingestion_engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kineticlabs/battintel/internal/core"
	"github.com/kineticlabs/battintel/internal/models"
)

// Result statuses for a single file.
const (
	ResultIngested = "ingested"
	ResultSkipped  = "skipped"
	ResultFailed   = "failed"
)

// Result describes what happened to one file during ingestion.
type Result struct {
	File   string `json:"file"`
	Status string `json:"status"`
	Chunks int    `json:"chunks"`
	Tokens int    `json:"tokens"`
	Error  string `json:"error,omitempty"`
}

// Pipeline drives ingestion end to end: read, hash, extract, chunk,
// embed, persist. A bounded job queue serves uploads; directory sweeps
// run a worker pool directly.
type Pipeline struct {
	store     core.Store
	embedder  core.EmbeddingProvider
	extractor core.DocumentExtractor
	chunker   *Chunker
	docsDir   string
	workers   int
	timeout   time.Duration
	jobs      chan string
}

func NewPipeline(store core.Store, emb core.EmbeddingProvider, ext core.DocumentExtractor, chunker *Chunker, docsDir string, workers int, timeout time.Duration) *Pipeline {
	if workers < 1 {
		workers = 1
	}
	return &Pipeline{
		store:     store,
		embedder:  emb,
		extractor: ext,
		chunker:   chunker,
		docsDir:   docsDir,
		workers:   workers,
		timeout:   timeout,
		jobs:      make(chan string, 64),
	}
}

// Start launches the background workers that drain the upload queue.
func (p *Pipeline) Start(ctx context.Context) {
	for w := 1; w <= p.workers; w++ {
		go func(w int) {
			for {
				select {
				case <-ctx.Done():
					log.Printf("ingestion: worker %d shutting down", w)
					return
				case path := <-p.jobs:
					res := p.IngestFile(ctx, path)
					if res.Status == ResultFailed {
						log.Printf("ingestion: worker %d: %s failed: %s", w, res.File, res.Error)
					} else {
						log.Printf("ingestion: worker %d: %s %s (%d chunks)", w, res.File, res.Status, res.Chunks)
					}
				}
			}
		}(w)
	}
}

// Enqueue schedules a file path for background ingestion. Blocks when
// the queue is full.
func (p *Pipeline) Enqueue(path string) {
	p.jobs <- path
}

// IngestFile processes a single file. An unchanged file that already
// completed is skipped; any processing error marks the document failed
// and is reported in the result rather than aborting callers.
func (p *Pipeline) IngestFile(ctx context.Context, path string) Result {
	fileName := filepath.Base(path)
	res := Result{File: fileName}

	data, err := os.ReadFile(path)
	if err != nil {
		res.Status = ResultFailed
		res.Error = err.Error()
		return res
	}

	sum := sha256.Sum256(data)
	fileHash := hex.EncodeToString(sum[:])

	doc := &models.Document{
		FilePath:         path,
		FileName:         fileName,
		FileType:         strings.TrimPrefix(strings.ToLower(filepath.Ext(fileName)), "."),
		FileSize:         int64(len(data)),
		FileHash:         fileHash,
		ProcessingStatus: models.StatusProcessing,
	}

	existing, err := p.store.GetDocumentByPath(ctx, path)
	if err != nil {
		return p.fail(ctx, doc, &res, fmt.Errorf("lookup document: %w", err))
	}
	// Only a completed run counts: a failed document with a matching
	// hash must be retried, not skipped forever.
	if existing != nil && existing.FileHash == fileHash && existing.ProcessingStatus == models.StatusCompleted {
		res.Status = ResultSkipped
		return res
	}

	text, err := p.extractor.ExtractText(ctx, data, ContentTypeForFile(fileName))
	if err != nil {
		return p.fail(ctx, doc, &res, err)
	}

	chunks := p.chunker.ChunkDocument(fileName, text)
	if len(chunks) == 0 {
		return p.fail(ctx, doc, &res, fmt.Errorf("no chunks produced from %s", fileName))
	}

	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Content
	}
	vectors, err := p.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return p.fail(ctx, doc, &res, fmt.Errorf("embed chunks: %w", err))
	}
	if len(vectors) != len(chunks) {
		return p.fail(ctx, doc, &res, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks)))
	}
	for i := range chunks {
		chunks[i].Embedding = vectors[i]
	}

	if err := p.store.ReplaceDocumentChunks(ctx, doc, chunks); err != nil {
		return p.fail(ctx, doc, &res, fmt.Errorf("persist chunks: %w", err))
	}

	res.Status = ResultIngested
	res.Chunks = len(chunks)
	for _, ch := range chunks {
		res.Tokens += ch.TokenCount
	}
	return res
}

func (p *Pipeline) fail(ctx context.Context, doc *models.Document, res *Result, err error) Result {
	res.Status = ResultFailed
	res.Error = err.Error()
	if markErr := p.store.MarkDocumentFailed(ctx, doc, err.Error()); markErr != nil {
		log.Printf("ingestion: mark %s failed: %v", doc.FileName, markErr)
	}
	return *res
}

// IngestDirectory sweeps the configured docs directory with a bounded
// worker pool. It returns an error only when every file failed; partial
// failure is reported per file in the results.
func (p *Pipeline) IngestDirectory(ctx context.Context) ([]Result, error) {
	entries, err := os.ReadDir(p.docsDir)
	if err != nil {
		return nil, fmt.Errorf("read docs dir: %w", err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		paths = append(paths, filepath.Join(p.docsDir, e.Name()))
	}
	if len(paths) == 0 {
		return []Result{}, nil
	}

	runCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var mu sync.Mutex
	results := make([]Result, 0, len(paths))

	g, gctx := errgroup.WithContext(runCtx)
	g.SetLimit(p.workers)
	for _, path := range paths {
		path := path
		g.Go(func() error {
			res := p.IngestFile(gctx, path)
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].File < results[j].File })

	failed := 0
	for _, r := range results {
		if r.Status == ResultFailed {
			failed++
		}
	}
	if failed == len(results) {
		return results, fmt.Errorf("ingestion failed for all %d files", failed)
	}
	return results, nil
}
