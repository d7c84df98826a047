package handlers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kineticlabs/battintel/internal/config"
	"github.com/kineticlabs/battintel/internal/core"
	"github.com/kineticlabs/battintel/internal/core/ingestion_engine"
)

type DocumentHandler struct {
	store        core.Store
	objectclient core.ObjectClient
	pipeline     *ingestion_engine.Pipeline
	cfg          *config.Config
}

func NewDocumentHandler(store core.Store, obj core.ObjectClient, pipeline *ingestion_engine.Pipeline, cfg *config.Config) *DocumentHandler {
	return &DocumentHandler{store: store, objectclient: obj, pipeline: pipeline, cfg: cfg}
}

// Upload accepts a multipart file, writes it into the docs directory,
// archives the raw bytes to object storage and queues ingestion in the
// background.
func (h *DocumentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(52 << 20); err != nil {
		respondError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid file")
		return
	}
	defer file.Close()

	cleanName := filepath.Base(header.Filename)
	if cleanName == "." || cleanName == "/" || cleanName == "" {
		respondError(w, http.StatusBadRequest, "invalid file name")
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read file")
		return
	}

	if err := os.MkdirAll(h.cfg.DocsDir, 0o755); err != nil {
		log.Printf("documents: create docs dir: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to store file")
		return
	}
	localPath := filepath.Join(h.cfg.DocsDir, cleanName)
	if err := os.WriteFile(localPath, data, 0o644); err != nil {
		log.Printf("documents: write %s: %v", localPath, err)
		respondError(w, http.StatusInternalServerError, "failed to store file")
		return
	}

	var storageURL string
	if h.objectclient != nil {
		contentType := header.Header.Get("Content-Type")
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		key := fmt.Sprintf("uploads/%s/%s", uuid.NewString(), cleanName)

		uploadCtx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
		defer cancel()

		storageURL, err = h.objectclient.UploadFile(uploadCtx, h.cfg.BucketName, key, bytes.NewReader(data), contentType)
		if err != nil {
			// archive failure is not fatal, the local copy still ingests
			log.Printf("documents: archive %s to object storage: %v", cleanName, err)
		}
	}

	h.pipeline.Enqueue(localPath)

	respondJSON(w, http.StatusAccepted, map[string]any{
		"status":      "processing",
		"file_name":   cleanName,
		"file_size":   len(data),
		"storage_url": storageURL,
	})
}

// TriggerIngestion kicks off a full docs-directory sweep and returns
// immediately. Results land on the document records.
func (h *DocumentHandler) TriggerIngestion(w http.ResponseWriter, r *http.Request) {
	go func() {
		results, err := h.pipeline.IngestDirectory(context.Background())
		if err != nil {
			log.Printf("documents: ingestion run: %v", err)
			return
		}
		log.Printf("documents: ingestion run finished, %d files processed", len(results))
	}()

	respondJSON(w, http.StatusAccepted, map[string]string{"status": "processing"})
}

// List returns document records, optionally filtered by processing
// status.
func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	limit := queryInt(r, "limit", 100)
	offset := queryInt(r, "offset", 0)

	docs, err := h.store.ListDocuments(r.Context(), status, limit, offset)
	if err != nil {
		log.Printf("documents: list: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to list documents")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"documents": docs, "count": len(docs)})
}

// Get returns a single document record by id.
func (h *DocumentHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid document id")
		return
	}

	doc, err := h.store.GetDocumentByID(r.Context(), id)
	if err != nil {
		log.Printf("documents: get %d: %v", id, err)
		respondError(w, http.StatusInternalServerError, "failed to load document")
		return
	}
	if doc == nil {
		respondError(w, http.StatusNotFound, "document not found")
		return
	}

	respondJSON(w, http.StatusOK, doc)
}

// Chunks returns the stored chunks of a document in ordinal order.
func (h *DocumentHandler) Chunks(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid document id")
		return
	}

	doc, err := h.store.GetDocumentByID(r.Context(), id)
	if err != nil {
		log.Printf("documents: get %d: %v", id, err)
		respondError(w, http.StatusInternalServerError, "failed to load document")
		return
	}
	if doc == nil {
		respondError(w, http.StatusNotFound, "document not found")
		return
	}

	limit := queryInt(r, "limit", 100)
	offset := queryInt(r, "offset", 0)

	chunks, err := h.store.GetChunksByDocument(r.Context(), doc.FileName, limit, offset)
	if err != nil {
		log.Printf("documents: chunks of %s: %v", doc.FileName, err)
		respondError(w, http.StatusInternalServerError, "failed to load chunks")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"document": doc.FileName,
		"chunks":   chunks,
		"count":    len(chunks),
	})
}

// Delete removes a document and all of its chunks.
func (h *DocumentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid document id")
		return
	}

	deleted, err := h.store.DeleteDocument(r.Context(), id)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			respondError(w, http.StatusNotFound, "document not found")
			return
		}
		log.Printf("documents: delete %d: %v", id, err)
		respondError(w, http.StatusInternalServerError, "failed to delete document")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"status": "success", "deleted_chunks": deleted})
}

// Stats reports corpus-wide document and chunk counters.
func (h *DocumentHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.DocumentStats(r.Context())
	if err != nil {
		log.Printf("documents: stats: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to load stats")
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}
