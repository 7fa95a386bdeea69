package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/quokkadev/opsrag/internal/config"
	"github.com/quokkadev/opsrag/internal/embedding"
	"github.com/quokkadev/opsrag/internal/extract"
	"github.com/quokkadev/opsrag/internal/fileid"
	"github.com/quokkadev/opsrag/internal/keyword"
	"github.com/quokkadev/opsrag/internal/models"
	"github.com/quokkadev/opsrag/internal/storage"
	"github.com/quokkadev/opsrag/internal/vector"
)

// Metadata keys recorded on ingested documents.
const (
	metaSourcePath  = "source_path"
	metaContentHash = "content_hash"
)

// Result reports what an ingestion run did.
type Result struct {
	Indexed int
	Skipped int
	Failed  int
	Chunks  int
}

// Ingestor coordinates extraction, chunking, embedding, and indexing.
type Ingestor struct {
	store    storage.Storage
	embedder embedding.Embedder
	vectors  vector.Index
	keywords keyword.Index
	chunker  *Chunker
	exts     map[string]bool
	logger   *zap.Logger
}

// New creates an ingestor with the given backends.
func New(store storage.Storage, embedder embedding.Embedder, vectors vector.Index,
	keywords keyword.Index, cfg config.IngestConfig, logger *zap.Logger) *Ingestor {
	exts := make(map[string]bool, len(cfg.Extensions))
	for _, e := range cfg.Extensions {
		exts[strings.ToLower(e)] = true
	}
	return &Ingestor{
		store:    store,
		embedder: embedder,
		vectors:  vectors,
		keywords: keywords,
		chunker:  NewChunker(cfg.ChunkSize, cfg.ChunkOverlap),
		exts:     exts,
		logger:   logger,
	}
}

// IngestFile indexes a single file. Unchanged files (same content hash as the
// stored document) are skipped. Changed files have their old chunks removed
// before the new ones are written.
func (g *Ingestor) IngestFile(ctx context.Context, path string) (*models.Document, bool, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if !g.exts[ext] || !extract.Supported(ext) {
		return nil, false, fmt.Errorf("unsupported file type %q", ext)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false, fmt.Errorf("failed to read %s: %w", path, err)
	}
	hash := fileid.ContentHash(data)
	docID := fileid.FileDocID(path)

	existing, err := g.store.GetDocument(ctx, docID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, false, err
	}
	if existing != nil && existing.Metadata[metaContentHash] == hash {
		g.logger.Debug("file unchanged, skipping", zap.String("path", path))
		return existing, true, nil
	}

	pages, err := extract.Extract(path)
	if err != nil {
		return nil, false, err
	}

	if existing != nil {
		if err := g.removeChunks(ctx, docID); err != nil {
			return nil, false, err
		}
	}

	doc := &models.Document{
		ID:         docID,
		Title:      filepath.Base(path),
		SourcePath: path,
		Pages:      len(pages),
		Metadata: map[string]string{
			metaSourcePath:  path,
			metaContentHash: hash,
		},
	}
	if existing != nil {
		doc.CreatedAt = existing.CreatedAt
	}

	n, err := g.indexPages(ctx, doc, pages)
	if err != nil {
		return nil, false, err
	}
	doc.Metadata["chunks"] = strconv.Itoa(n)

	if err := g.store.CreateDocument(ctx, doc); err != nil {
		return nil, false, err
	}
	g.logger.Info("indexed document",
		zap.String("id", docID),
		zap.String("title", doc.Title),
		zap.Int("pages", len(pages)),
		zap.Int("chunks", n))
	return doc, false, nil
}

// IngestContent indexes raw text supplied through the API as a single-page
// document with a fresh ID.
func (g *Ingestor) IngestContent(ctx context.Context, input *models.DocumentInput) (*models.Document, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}

	meta := map[string]string{
		metaContentHash: fileid.ContentHash([]byte(input.Content)),
	}
	for k, v := range input.Metadata {
		meta[k] = v
	}
	doc := &models.Document{
		ID:       "doc:" + uuid.NewString(),
		Title:    input.Title,
		Pages:    1,
		Metadata: meta,
	}

	n, err := g.indexPages(ctx, doc, []extract.Page{{Number: 1, Text: input.Content}})
	if err != nil {
		return nil, err
	}
	doc.Metadata["chunks"] = strconv.Itoa(n)

	if err := g.store.CreateDocument(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// IngestDirectory walks dir and ingests every supported file. Individual file
// failures are logged and counted, not fatal.
func (g *Ingestor) IngestDirectory(ctx context.Context, dir string) (*Result, error) {
	res := &Result{}
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != dir {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") || !g.exts[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		doc, skipped, err := g.IngestFile(ctx, path)
		switch {
		case err != nil:
			res.Failed++
			g.logger.Warn("failed to ingest file", zap.String("path", path), zap.Error(err))
		case skipped:
			res.Skipped++
		default:
			res.Indexed++
			if c, err := strconv.Atoi(doc.Metadata["chunks"]); err == nil {
				res.Chunks += c
			}
		}
		return nil
	})
	if err != nil {
		return res, fmt.Errorf("failed to walk %s: %w", dir, err)
	}

	if res.Indexed > 0 {
		if err := g.vectors.Save(); err != nil {
			return res, err
		}
	}
	return res, nil
}

// DeleteDocument removes a document and its chunks from all indexes.
func (g *Ingestor) DeleteDocument(ctx context.Context, docID string) error {
	if err := g.removeChunks(ctx, docID); err != nil {
		return err
	}
	if err := g.store.DeleteDocument(ctx, docID); err != nil {
		return err
	}
	return g.vectors.Save()
}

func (g *Ingestor) removeChunks(ctx context.Context, docID string) error {
	ids, err := g.store.DeleteChunksByDocument(ctx, docID)
	if err != nil {
		return err
	}
	for _, id := range ids {
		g.vectors.Remove(id)
		if err := g.keywords.Delete(id); err != nil {
			g.logger.Warn("failed to remove chunk from keyword index",
				zap.String("chunk", id), zap.Error(err))
		}
	}
	return nil
}

// indexPages chunks and embeds the pages, then writes chunks to storage and
// both indexes. Returns the number of chunks created.
func (g *Ingestor) indexPages(ctx context.Context, doc *models.Document, pages []extract.Page) (int, error) {
	var chunks []*models.DocumentChunk
	var texts []string
	idx := 0
	for _, page := range pages {
		for _, content := range g.chunker.Split(page.Text) {
			chunks = append(chunks, &models.DocumentChunk{
				ID:         uuid.NewString(),
				DocumentID: doc.ID,
				Page:       page.Number,
				ChunkIndex: idx,
				Content:    content,
			})
			texts = append(texts, content)
			idx++
		}
	}
	if len(chunks) == 0 {
		return 0, fmt.Errorf("document %s produced no chunks", doc.Title)
	}

	vecs, err := g.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("failed to embed %s: %w", doc.Title, err)
	}

	if err := g.store.BatchCreateChunks(ctx, chunks); err != nil {
		return 0, err
	}
	for i, c := range chunks {
		if err := g.vectors.Add(c.ID, vecs[i]); err != nil {
			return 0, err
		}
		if err := g.keywords.Index(c.ID, keyword.ChunkEntry{
			DocumentID: doc.ID,
			Title:      doc.Title,
			Page:       c.Page,
			Content:    c.Content,
		}); err != nil {
			return 0, err
		}
	}
	return len(chunks), nil
}
