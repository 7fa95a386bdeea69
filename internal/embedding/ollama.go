package embedding

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms/ollama"
	"go.uber.org/zap"

	"github.com/quokkadev/opsrag/pkg/utils"
)

// OllamaEmbedder embeds text through a local Ollama server.
type OllamaEmbedder struct {
	llm    *ollama.LLM
	model  string
	dims   int
	logger *zap.Logger
}

// NewOllamaEmbedder connects to the Ollama server at baseURL using the given
// embedding model. The connection is lazy; errors surface on first Embed.
func NewOllamaEmbedder(baseURL, model string, dims int, logger *zap.Logger) (*OllamaEmbedder, error) {
	llm, err := ollama.New(
		ollama.WithModel(model),
		ollama.WithServerURL(baseURL),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ollama client: %w", err)
	}
	return &OllamaEmbedder{
		llm:    llm,
		model:  model,
		dims:   dims,
		logger: logger,
	}, nil
}

func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vecs, err := e.llm.CreateEmbedding(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("ollama embedding failed: %w", err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("ollama returned %d embeddings for %d texts", len(vecs), len(texts))
	}
	for i := range vecs {
		utils.NormalizeL2(vecs[i])
	}
	return vecs, nil
}

func (e *OllamaEmbedder) Dimensions() int {
	return e.dims
}

func (e *OllamaEmbedder) Close() error {
	return nil
}
