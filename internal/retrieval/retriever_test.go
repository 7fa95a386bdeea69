package retrieval

import (
	"context"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/quokkadev/opsrag/internal/config"
	"github.com/quokkadev/opsrag/internal/embedding"
	"github.com/quokkadev/opsrag/internal/models"
	"github.com/quokkadev/opsrag/internal/storage"
	"github.com/quokkadev/opsrag/internal/vector"
)

type fixture struct {
	retriever *Retriever
	store     storage.Storage
	embedder  embedding.Embedder
	vectors   vector.Index
}

func newFixture(t *testing.T, cfg config.RetrievalConfig) *fixture {
	t.Helper()
	dir := t.TempDir()

	store, err := storage.NewSQLiteStorage(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	embedder := embedding.NewMockEmbedder(64)
	vectors := vector.NewMemoryIndex(filepath.Join(dir, "vectors.bin"), 64)

	return &fixture{
		retriever: New(store, embedder, vectors, cfg, zap.NewNop()),
		store:     store,
		embedder:  embedder,
		vectors:   vectors,
	}
}

// addChunk stores a chunk with its embedding under the given document.
func (f *fixture) addChunk(t *testing.T, docID, title, chunkID, content string, page int) {
	t.Helper()
	ctx := context.Background()

	if _, err := f.store.GetDocument(ctx, docID); err != nil {
		if err := f.store.CreateDocument(ctx, &models.Document{ID: docID, Title: title}); err != nil {
			t.Fatal(err)
		}
	}
	if err := f.store.BatchCreateChunks(ctx, []*models.DocumentChunk{
		{ID: chunkID, DocumentID: docID, Page: page, ChunkIndex: 0, Content: content},
	}); err != nil {
		t.Fatal(err)
	}
	vec, err := f.embedder.Embed(ctx, content)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.vectors.Add(chunkID, vec); err != nil {
		t.Fatal(err)
	}
}

func defaultCfg() config.RetrievalConfig {
	return config.RetrievalConfig{TopK: 5, Candidates: 50, MinSimilarity: 0.15}
}

func TestRetrieveRankedResults(t *testing.T) {
	f := newFixture(t, defaultCfg())
	f.addChunk(t, "d1", "k8s.pdf", "c1", "kubectl rollout restart deployment nginx", 2)
	f.addChunk(t, "d1", "k8s.pdf", "c2", "persistent volume claims bind to storage classes", 5)
	f.addChunk(t, "d2", "pg.pdf", "c3", "postgres replication slots and wal archiving", 1)

	got, err := f.retriever.Retrieve(context.Background(), "how do I restart the nginx deployment with kubectl rollout", nil)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(got) == 0 {
		t.Fatal("no chunks retrieved")
	}
	if got[0].Chunk.ID != "c1" {
		t.Errorf("best chunk = %s", got[0].Chunk.ID)
	}
	if got[0].Document.Title != "k8s.pdf" || got[0].Chunk.Page != 2 {
		t.Errorf("provenance = %s page %d", got[0].Document.Title, got[0].Chunk.Page)
	}
	for i := 1; i < len(got); i++ {
		if got[i].Score > got[i-1].Score {
			t.Error("results not ordered by score")
		}
	}
}

func TestRetrieveActiveDocFilter(t *testing.T) {
	f := newFixture(t, defaultCfg())
	f.addChunk(t, "d1", "k8s.pdf", "c1", "kubectl rollout restart deployment", 1)
	f.addChunk(t, "d2", "pg.pdf", "c2", "kubectl is mentioned here too restart", 1)

	got, err := f.retriever.Retrieve(context.Background(), "kubectl restart", []string{"pg.pdf"})
	if err != nil {
		t.Fatal(err)
	}
	for _, c := range got {
		if c.Document.Title != "pg.pdf" {
			t.Errorf("chunk from inactive document %s", c.Document.Title)
		}
	}
	if len(got) == 0 {
		t.Error("active-doc filter removed everything")
	}
}

func TestRetrieveTopKLimit(t *testing.T) {
	cfg := defaultCfg()
	cfg.TopK = 2
	f := newFixture(t, cfg)
	for i, content := range []string{
		"alpha kubernetes restart node",
		"beta kubernetes restart pod",
		"gamma kubernetes restart container",
		"delta kubernetes restart service",
	} {
		f.addChunk(t, "d1", "k8s.pdf", string(rune('a'+i)), content, i+1)
	}

	got, err := f.retriever.Retrieve(context.Background(), "kubernetes restart", nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) > 2 {
		t.Errorf("got %d chunks, top_k is 2", len(got))
	}
}

func TestRetrieveGateRefusesUnrelated(t *testing.T) {
	cfg := defaultCfg()
	cfg.MinSimilarity = 0.95
	f := newFixture(t, cfg)
	f.addChunk(t, "d1", "pg.pdf", "c1", "postgres vacuum tuning autovacuum workers", 1)

	got, err := f.retriever.Retrieve(context.Background(), "baking sourdough bread at home", nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("unrelated question returned %d chunks", len(got))
	}
}

func TestRetrieveFallbackOnKeywordOverlap(t *testing.T) {
	cfg := defaultCfg()
	// Gate nothing passes, forcing the fallback path.
	cfg.MinSimilarity = 0.99
	f := newFixture(t, cfg)
	f.addChunk(t, "d1", "pg.pdf", "c1", "postgres vacuum tuning and autovacuum workers", 3)

	got, err := f.retriever.Retrieve(context.Background(), "tell me about vacuum settings", nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Chunk.ID != "c1" {
		t.Errorf("fallback should return the best overlapping chunk, got %+v", got)
	}
}

func TestRetrieveEmptyIndex(t *testing.T) {
	f := newFixture(t, defaultCfg())
	got, err := f.retriever.Retrieve(context.Background(), "anything at all", nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("empty index returned %d chunks", len(got))
	}
}

func TestRetrieveSkipsStaleVectorEntries(t *testing.T) {
	f := newFixture(t, defaultCfg())
	f.addChunk(t, "d1", "k8s.pdf", "c1", "kubectl restart deployment", 1)

	// Vector entry without a backing chunk row.
	vec, _ := f.embedder.Embed(context.Background(), "kubectl restart orphan")
	if err := f.vectors.Add("orphan", vec); err != nil {
		t.Fatal(err)
	}

	got, err := f.retriever.Retrieve(context.Background(), "kubectl restart", nil)
	if err != nil {
		t.Fatal(err)
	}
	for _, c := range got {
		if c.Chunk.ID == "orphan" {
			t.Error("stale vector entry surfaced")
		}
	}
}
