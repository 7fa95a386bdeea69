// Package vector provides the similarity index over chunk embeddings.
package vector

// Result is a single nearest-neighbor hit.
type Result struct {
	ID    string
	Score float64
}

// Index stores embeddings keyed by chunk ID and answers cosine similarity
// queries.
type Index interface {
	// Add inserts or replaces the vector for id.
	Add(id string, embedding []float32) error

	// Search returns up to k results ordered by descending similarity.
	Search(query []float32, k int) ([]Result, error)

	// Remove deletes the vector for id. Removing a missing id is a no-op.
	Remove(id string)

	// Save persists the index to its backing file.
	Save() error

	// Load restores the index from its backing file. A missing file leaves
	// the index empty.
	Load() error

	// Size returns the number of stored vectors.
	Size() int

	// Close persists and releases the index.
	Close() error
}
