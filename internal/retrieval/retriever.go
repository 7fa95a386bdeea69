// Package retrieval selects the chunks most relevant to a question.
package retrieval

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/quokkadev/opsrag/internal/config"
	"github.com/quokkadev/opsrag/internal/embedding"
	"github.com/quokkadev/opsrag/internal/models"
	"github.com/quokkadev/opsrag/internal/storage"
	"github.com/quokkadev/opsrag/internal/vector"
	"github.com/quokkadev/opsrag/pkg/utils"
)

// RetrievedChunk is a chunk selected for answering, with its document and
// similarity score.
type RetrievedChunk struct {
	Chunk    *models.DocumentChunk
	Document *models.Document
	Score    float64
}

// Retriever runs vector search with an active-document filter and a relevance
// gate.
type Retriever struct {
	store    storage.Storage
	embedder embedding.Embedder
	vectors  vector.Index
	cfg      config.RetrievalConfig
	logger   *zap.Logger
}

func New(store storage.Storage, embedder embedding.Embedder, vectors vector.Index,
	cfg config.RetrievalConfig, logger *zap.Logger) *Retriever {
	return &Retriever{
		store:    store,
		embedder: embedder,
		vectors:  vectors,
		cfg:      cfg,
		logger:   logger,
	}
}

// Retrieve returns up to TopK chunks for the question, restricted to the
// documents named in activeTitles (all documents when empty).
//
// Chunks scoring below MinSimilarity are dropped. If nothing passes the gate,
// the single best candidate is returned anyway, but only when it shares at
// least one word with the question; otherwise the result is empty and the
// caller should refuse to answer.
func (r *Retriever) Retrieve(ctx context.Context, question string, activeTitles []string) ([]RetrievedChunk, error) {
	queryVec, err := r.embedder.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("failed to embed question: %w", err)
	}

	results, err := r.vectors.Search(queryVec, r.cfg.Candidates)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	active := make(map[string]bool, len(activeTitles))
	for _, t := range activeTitles {
		active[t] = true
	}

	docs := make(map[string]*models.Document)
	var candidates []RetrievedChunk
	for _, res := range results {
		if len(candidates) == r.cfg.TopK {
			break
		}
		chunk, err := r.store.GetChunk(ctx, res.ID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				// Vector index can briefly hold chunks deleted from storage.
				continue
			}
			return nil, err
		}
		doc, ok := docs[chunk.DocumentID]
		if !ok {
			doc, err = r.store.GetDocument(ctx, chunk.DocumentID)
			if err != nil {
				if errors.Is(err, storage.ErrNotFound) {
					continue
				}
				return nil, err
			}
			docs[chunk.DocumentID] = doc
		}
		if len(active) > 0 && !active[doc.Title] {
			continue
		}
		candidates = append(candidates, RetrievedChunk{Chunk: chunk, Document: doc, Score: res.Score})
	}

	relevant := candidates[:0:0]
	for _, c := range candidates {
		if c.Score >= r.cfg.MinSimilarity {
			relevant = append(relevant, c)
		}
	}
	if len(relevant) > 0 {
		return relevant, nil
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	// Weak-match fallback: surface the best candidate only when it shares
	// vocabulary with the question.
	best := candidates[0]
	if utils.KeywordOverlap(question, best.Chunk.Content) >= 1 {
		r.logger.Debug("relevance gate failed, using keyword fallback",
			zap.Float64("score", best.Score))
		return []RetrievedChunk{best}, nil
	}
	return nil, nil
}
