// Package storage persists documents and chunks.
package storage

import (
	"context"
	"errors"

	"github.com/quokkadev/opsrag/internal/models"
)

// ErrNotFound is returned when a document or chunk does not exist.
var ErrNotFound = errors.New("not found")

// Storage is the document and chunk store.
type Storage interface {
	// CreateDocument inserts a document, or replaces it when the ID exists.
	CreateDocument(ctx context.Context, doc *models.Document) error

	// GetDocument returns the document with the given ID.
	GetDocument(ctx context.Context, id string) (*models.Document, error)

	// ListDocuments returns all documents ordered by title.
	ListDocuments(ctx context.Context) ([]*models.Document, error)

	// DeleteDocument removes a document and all its chunks.
	DeleteDocument(ctx context.Context, id string) error

	// BatchCreateChunks inserts chunks in a single transaction.
	BatchCreateChunks(ctx context.Context, chunks []*models.DocumentChunk) error

	// GetChunk returns the chunk with the given ID.
	GetChunk(ctx context.Context, id string) (*models.DocumentChunk, error)

	// GetChunksByDocument returns a document's chunks ordered by page and
	// chunk index.
	GetChunksByDocument(ctx context.Context, documentID string) ([]*models.DocumentChunk, error)

	// DeleteChunksByDocument removes all chunks of a document and returns
	// their IDs, so callers can clean up the vector and keyword indexes.
	DeleteChunksByDocument(ctx context.Context, documentID string) ([]string, error)

	// CountDocuments returns the number of stored documents.
	CountDocuments(ctx context.Context) (int, error)

	// CountChunks returns the number of stored chunks.
	CountChunks(ctx context.Context) (int, error)

	// Close releases the store.
	Close() error
}
