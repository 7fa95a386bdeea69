package vector

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// MemoryIndex is an exact brute-force cosine index held in memory and
// persisted to a binary file. At documentation-collection scale (thousands to
// low millions of chunks) a linear scan is fast enough and never returns
// approximate results.
type MemoryIndex struct {
	mu         sync.RWMutex
	path       string
	dimensions int
	ids        []string
	vectors    [][]float32
	byID       map[string]int
}

// NewMemoryIndex creates an index persisted at path with the given vector
// dimensionality.
func NewMemoryIndex(path string, dimensions int) *MemoryIndex {
	return &MemoryIndex{
		path:       path,
		dimensions: dimensions,
		byID:       make(map[string]int),
	}
}

func (m *MemoryIndex) Add(id string, embedding []float32) error {
	if len(embedding) != m.dimensions {
		return fmt.Errorf("embedding has %d dimensions, index expects %d",
			len(embedding), m.dimensions)
	}

	vec := make([]float32, len(embedding))
	copy(vec, embedding)

	m.mu.Lock()
	defer m.mu.Unlock()
	if i, ok := m.byID[id]; ok {
		m.vectors[i] = vec
		return nil
	}
	m.byID[id] = len(m.ids)
	m.ids = append(m.ids, id)
	m.vectors = append(m.vectors, vec)
	return nil
}

func (m *MemoryIndex) Search(query []float32, k int) ([]Result, error) {
	if len(query) != m.dimensions {
		return nil, fmt.Errorf("query has %d dimensions, index expects %d",
			len(query), m.dimensions)
	}
	if k <= 0 {
		return nil, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	results := make([]Result, 0, len(m.ids))
	for i, vec := range m.vectors {
		results = append(results, Result{ID: m.ids[i], Score: cosineSimilarity(query, vec)})
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

func (m *MemoryIndex) Remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	i, ok := m.byID[id]
	if !ok {
		return
	}
	last := len(m.ids) - 1
	if i != last {
		m.ids[i] = m.ids[last]
		m.vectors[i] = m.vectors[last]
		m.byID[m.ids[i]] = i
	}
	m.ids = m.ids[:last]
	m.vectors = m.vectors[:last]
	delete(m.byID, id)
}

func (m *MemoryIndex) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.ids)
}

// Save writes the index as: dimensions, count, then per vector the id length,
// id bytes, and raw float32 values, all little-endian. Written to a temp file
// and renamed so a crash never leaves a truncated index.
func (m *MemoryIndex) Save() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return fmt.Errorf("failed to create index directory: %w", err)
	}

	tmp := m.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create index file: %w", err)
	}

	w := bufio.NewWriter(f)
	write := func(v any) error { return binary.Write(w, binary.LittleEndian, v) }

	err = write(uint32(m.dimensions))
	if err == nil {
		err = write(uint32(len(m.ids)))
	}
	for i := 0; err == nil && i < len(m.ids); i++ {
		id := []byte(m.ids[i])
		if err = write(uint32(len(id))); err == nil {
			if _, werr := w.Write(id); werr != nil {
				err = werr
			}
		}
		if err == nil {
			err = write(m.vectors[i])
		}
	}
	if err == nil {
		err = w.Flush()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write index file: %w", err)
	}

	if err := os.Rename(tmp, m.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace index file: %w", err)
	}
	return nil
}

func (m *MemoryIndex) Load() error {
	f, err := os.Open(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to open index file: %w", err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	var dims, count uint32
	if err := binary.Read(r, binary.LittleEndian, &dims); err != nil {
		return fmt.Errorf("failed to read index header: %w", err)
	}
	if int(dims) != m.dimensions {
		return fmt.Errorf("index file has %d dimensions, expected %d", dims, m.dimensions)
	}
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return fmt.Errorf("failed to read index header: %w", err)
	}

	ids := make([]string, 0, count)
	vectors := make([][]float32, 0, count)
	byID := make(map[string]int, count)
	for i := uint32(0); i < count; i++ {
		var idLen uint32
		if err := binary.Read(r, binary.LittleEndian, &idLen); err != nil {
			return fmt.Errorf("failed to read vector %d: %w", i, err)
		}
		idBytes := make([]byte, idLen)
		if _, err := io.ReadFull(r, idBytes); err != nil {
			return fmt.Errorf("failed to read vector %d id: %w", i, err)
		}
		vec := make([]float32, dims)
		if err := binary.Read(r, binary.LittleEndian, vec); err != nil {
			return fmt.Errorf("failed to read vector %d data: %w", i, err)
		}
		byID[string(idBytes)] = len(ids)
		ids = append(ids, string(idBytes))
		vectors = append(vectors, vec)
	}

	m.mu.Lock()
	m.ids = ids
	m.vectors = vectors
	m.byID = byID
	m.mu.Unlock()
	return nil
}

func (m *MemoryIndex) Close() error {
	return m.Save()
}

func cosineSimilarity(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
