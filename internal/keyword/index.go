// Package keyword provides full-text search over chunk contents.
package keyword

// ChunkEntry is the indexed representation of a chunk.
type ChunkEntry struct {
	DocumentID string `json:"document_id"`
	Title      string `json:"title"`
	Page       int    `json:"page"`
	Content    string `json:"content"`
}

// Hit is a single search result.
type Hit struct {
	ChunkID    string
	DocumentID string
	Title      string
	Page       int
	Fragment   string
	Score      float64
}

// Index is a persistent keyword index over chunks.
type Index interface {
	// Index adds or updates a chunk by ID.
	Index(chunkID string, entry ChunkEntry) error

	// Delete removes a chunk. Deleting a missing ID is a no-op.
	Delete(chunkID string) error

	// Search runs a match query over chunk contents.
	Search(query string, limit int) ([]Hit, error)

	// Count returns the number of indexed chunks.
	Count() (uint64, error)

	// Close releases the index.
	Close() error
}
