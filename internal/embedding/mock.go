package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"strings"

	"github.com/quokkadev/opsrag/pkg/utils"
)

// MockEmbedder produces deterministic vectors from word hashes. Texts sharing
// words get correlated vectors, which is enough for retrieval tests without a
// model server.
type MockEmbedder struct {
	dims int
}

func NewMockEmbedder(dims int) *MockEmbedder {
	if dims <= 0 {
		dims = 64
	}
	return &MockEmbedder{dims: dims}
}

func (m *MockEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, m.dims)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		sum := sha256.Sum256([]byte(word))
		for b := 0; b < 4; b++ {
			bucket := binary.LittleEndian.Uint32(sum[b*4:]) % uint32(m.dims)
			vec[bucket] += 1.0
		}
	}
	// Bias term keeps zero-word texts from producing a zero vector.
	vec[0] += 0.01
	utils.NormalizeL2(vec)
	return vec, nil
}

func (m *MockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec, err := m.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (m *MockEmbedder) Dimensions() int {
	return m.dims
}

func (m *MockEmbedder) Close() error {
	return nil
}
