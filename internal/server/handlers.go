package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/quokkadev/opsrag/internal/config"
	"github.com/quokkadev/opsrag/internal/extract"
	"github.com/quokkadev/opsrag/internal/generation"
	"github.com/quokkadev/opsrag/internal/ingest"
	"github.com/quokkadev/opsrag/internal/keyword"
	"github.com/quokkadev/opsrag/internal/models"
	"github.com/quokkadev/opsrag/internal/retrieval"
	"github.com/quokkadev/opsrag/internal/storage"
	"github.com/quokkadev/opsrag/internal/vector"
)

const maxUploadBytes = 64 << 20

// Handlers implements the API endpoints.
type Handlers struct {
	cfg       *config.Config
	store     storage.Storage
	ingestor  *ingest.Ingestor
	retriever *retrieval.Retriever
	engine    *generation.Engine
	vectors   vector.Index
	keywords  keyword.Index
	logger    *zap.Logger
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

// Health reports liveness.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ask answers a question from the indexed documents. With "stream": true the
// response is server-sent events; otherwise a single JSON object.
func (h *Handlers) Ask(w http.ResponseWriter, r *http.Request) {
	var req models.AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := req.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	chunks, err := h.retriever.Retrieve(r.Context(), req.Question, req.ActiveDocs)
	if err != nil {
		h.logger.Error("retrieval failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "retrieval failed")
		return
	}

	if req.Stream {
		h.askStream(w, r, req.Question, chunks)
		return
	}

	resp, err := h.engine.Answer(r.Context(), req.Question, chunks)
	if err != nil {
		h.logger.Error("generation failed", zap.Error(err))
		respondError(w, http.StatusBadGateway, "generation failed")
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

func (h *Handlers) askStream(w http.ResponseWriter, r *http.Request, question string,
	chunks []retrieval.RetrievedChunk) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	sendEvent := func(event string, v any) error {
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	resp, err := h.engine.AnswerStream(r.Context(), question, chunks, func(token string) error {
		return sendEvent("token", map[string]string{"token": token})
	})
	if err != nil {
		h.logger.Error("streaming generation failed", zap.Error(err))
		sendEvent("error", map[string]string{"error": "generation failed"})
		return
	}
	sendEvent("sources", resp.Sources)
	sendEvent("done", map[string]string{"answer": resp.Answer})
}

// ListDocuments returns all indexed documents.
func (h *Handlers) ListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := h.store.ListDocuments(r.Context())
	if err != nil {
		h.logger.Error("failed to list documents", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to list documents")
		return
	}
	if docs == nil {
		docs = []*models.Document{}
	}
	respondJSON(w, http.StatusOK, docs)
}

// CreateDocument ingests an uploaded file (multipart field "file") or a raw
// JSON document.
func (h *Handlers) CreateDocument(w http.ResponseWriter, r *http.Request) {
	ct := r.Header.Get("Content-Type")
	if strings.HasPrefix(ct, "multipart/form-data") {
		h.uploadDocument(w, r)
		return
	}

	var input models.DocumentInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	doc, err := h.ingestor.IngestContent(r.Context(), &input)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.vectors.Save(); err != nil {
		h.logger.Warn("failed to persist vector index", zap.Error(err))
	}
	respondJSON(w, http.StatusCreated, doc)
}

func (h *Handlers) uploadDocument(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		respondError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	name := filepath.Base(header.Filename)
	if !extract.Supported(filepath.Ext(name)) {
		respondError(w, http.StatusUnsupportedMediaType,
			fmt.Sprintf("unsupported file type %q", filepath.Ext(name)))
		return
	}

	if err := os.MkdirAll(h.cfg.Storage.DataDir, 0o755); err != nil {
		h.logger.Error("failed to create data dir", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to store file")
		return
	}
	dst := filepath.Join(h.cfg.Storage.DataDir, name)
	out, err := os.Create(dst)
	if err != nil {
		h.logger.Error("failed to create file", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to store file")
		return
	}
	if _, err := io.Copy(out, file); err != nil {
		out.Close()
		os.Remove(dst)
		respondError(w, http.StatusInternalServerError, "failed to store file")
		return
	}
	out.Close()

	doc, skipped, err := h.ingestor.IngestFile(r.Context(), dst)
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if !skipped {
		if err := h.vectors.Save(); err != nil {
			h.logger.Warn("failed to persist vector index", zap.Error(err))
		}
	}
	respondJSON(w, http.StatusCreated, doc)
}

// DeleteDocument removes a document and its chunks from every index.
func (h *Handlers) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.ingestor.DeleteDocument(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respondError(w, http.StatusNotFound, "document not found")
			return
		}
		h.logger.Error("failed to delete document", zap.String("id", id), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to delete document")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"deleted": id})
}

// Ingest re-scans the data directory.
func (h *Handlers) Ingest(w http.ResponseWriter, r *http.Request) {
	res, err := h.ingestor.IngestDirectory(r.Context(), h.cfg.Storage.DataDir)
	if err != nil {
		h.logger.Error("directory ingestion failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "ingestion failed")
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// Search runs a keyword query over chunk contents.
func (h *Handlers) Search(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		respondError(w, http.StatusBadRequest, "missing query parameter q")
		return
	}
	limit := 10
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 100 {
			respondError(w, http.StatusBadRequest, "limit must be between 1 and 100")
			return
		}
		limit = n
	}

	hits, err := h.keywords.Search(q, limit)
	if err != nil {
		h.logger.Error("keyword search failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "search failed")
		return
	}

	results := make([]models.SearchResult, 0, len(hits))
	for _, hit := range hits {
		results = append(results, models.SearchResult{
			DocumentID: hit.DocumentID,
			ChunkID:    hit.ChunkID,
			Title:      hit.Title,
			Page:       hit.Page,
			Snippet:    hit.Fragment,
			Score:      hit.Score,
		})
	}
	respondJSON(w, http.StatusOK, results)
}

// Status reports index size and configuration.
func (h *Handlers) Status(w http.ResponseWriter, r *http.Request) {
	docs, err := h.store.CountDocuments(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to read status")
		return
	}
	chunks, err := h.store.CountChunks(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to read status")
		return
	}

	respondJSON(w, http.StatusOK, models.Status{
		Documents:  docs,
		Chunks:     chunks,
		VectorSize: h.vectors.Size(),
		DiskUsageBytes: storage.DiskUsageBytes(
			h.cfg.Storage.DatabasePath,
			h.cfg.Storage.VectorIndexPath,
			h.cfg.Storage.KeywordIndexPath,
			h.cfg.Storage.DataDir,
		),
		EmbeddingModel: h.cfg.Embedding.Model,
		LLMModel:       h.cfg.LLM.Model,
	})
}
