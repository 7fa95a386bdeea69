package keyword

import (
	"fmt"
	"os"

	"github.com/blevesearch/bleve/v2"
)

// BleveIndex is the on-disk bleve implementation of Index.
type BleveIndex struct {
	index bleve.Index
}

// OpenBleve opens the index at path, creating it if absent.
func OpenBleve(path string) (*BleveIndex, error) {
	idx, err := bleve.Open(path)
	if err == bleve.ErrorIndexPathDoesNotExist || os.IsNotExist(err) {
		mapping := bleve.NewIndexMapping()
		idx, err = bleve.New(path, mapping)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open keyword index: %w", err)
	}
	return &BleveIndex{index: idx}, nil
}

func (b *BleveIndex) Index(chunkID string, entry ChunkEntry) error {
	if err := b.index.Index(chunkID, entry); err != nil {
		return fmt.Errorf("failed to index chunk %s: %w", chunkID, err)
	}
	return nil
}

func (b *BleveIndex) Delete(chunkID string) error {
	if err := b.index.Delete(chunkID); err != nil {
		return fmt.Errorf("failed to delete chunk %s: %w", chunkID, err)
	}
	return nil
}

func (b *BleveIndex) Search(query string, limit int) ([]Hit, error) {
	q := bleve.NewMatchQuery(query)
	q.SetField("content")

	req := bleve.NewSearchRequestOptions(q, limit, 0, false)
	req.Fields = []string{"document_id", "title", "page", "content"}
	req.Highlight = bleve.NewHighlight()

	res, err := b.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("keyword search failed: %w", err)
	}

	hits := make([]Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		hit := Hit{ChunkID: h.ID, Score: h.Score}
		if v, ok := h.Fields["document_id"].(string); ok {
			hit.DocumentID = v
		}
		if v, ok := h.Fields["title"].(string); ok {
			hit.Title = v
		}
		if v, ok := h.Fields["page"].(float64); ok {
			hit.Page = int(v)
		}
		if frags, ok := h.Fragments["content"]; ok && len(frags) > 0 {
			hit.Fragment = frags[0]
		} else if v, ok := h.Fields["content"].(string); ok {
			hit.Fragment = v
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

func (b *BleveIndex) Count() (uint64, error) {
	n, err := b.index.DocCount()
	if err != nil {
		return 0, fmt.Errorf("failed to count index: %w", err)
	}
	return n, nil
}

func (b *BleveIndex) Close() error {
	return b.index.Close()
}
