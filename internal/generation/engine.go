// Package generation produces answers from retrieved context via a local LLM.
package generation

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/schema"
	"go.uber.org/zap"

	"github.com/quokkadev/opsrag/internal/config"
	"github.com/quokkadev/opsrag/internal/models"
	"github.com/quokkadev/opsrag/internal/retrieval"
)

// contentGenerator is the slice of the langchaingo model interface the engine
// needs; tests substitute a fake.
type contentGenerator interface {
	GenerateContent(ctx context.Context, messages []llms.MessageContent,
		options ...llms.CallOption) (*llms.ContentResponse, error)
}

// Engine generates grounded answers with source citations.
type Engine struct {
	llm    contentGenerator
	cfg    config.LLMConfig
	logger *zap.Logger
}

// New connects to the Ollama server configured in cfg.
func New(cfg config.LLMConfig, logger *zap.Logger) (*Engine, error) {
	llm, err := ollama.New(
		ollama.WithModel(cfg.Model),
		ollama.WithServerURL(cfg.BaseURL),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ollama client: %w", err)
	}
	return &Engine{llm: llm, cfg: cfg, logger: logger}, nil
}

// NewWithClient builds an engine over an existing model client. Useful when
// the caller manages the client lifecycle, and for tests.
func NewWithClient(llm llms.Model, cfg config.LLMConfig, logger *zap.Logger) *Engine {
	return &Engine{llm: llm, cfg: cfg, logger: logger}
}

// Answer generates a complete answer for the question from the chunks. Empty
// chunks yield the refusal message without calling the model.
func (e *Engine) Answer(ctx context.Context, question string, chunks []retrieval.RetrievedChunk) (*models.AskResponse, error) {
	return e.generate(ctx, question, chunks, nil)
}

// AnswerStream is Answer with incremental output: onToken receives each model
// token as it arrives. The full response is still returned at the end.
func (e *Engine) AnswerStream(ctx context.Context, question string, chunks []retrieval.RetrievedChunk,
	onToken func(token string) error) (*models.AskResponse, error) {
	return e.generate(ctx, question, chunks, onToken)
}

func (e *Engine) generate(ctx context.Context, question string, chunks []retrieval.RetrievedChunk,
	onToken func(string) error) (*models.AskResponse, error) {
	if len(chunks) == 0 {
		if onToken != nil {
			if err := onToken(RefusalMessage); err != nil {
				return nil, err
			}
		}
		return &models.AskResponse{Answer: RefusalMessage, Sources: []models.Source{}}, nil
	}

	messages := []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeSystem, systemPrompt),
		llms.TextParts(schema.ChatMessageTypeHuman, buildUserPrompt(question, chunks)),
	}

	opts := []llms.CallOption{
		llms.WithTemperature(e.cfg.Temperature),
		llms.WithMaxTokens(e.cfg.MaxTokens),
	}
	if onToken != nil {
		opts = append(opts, llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
			return onToken(string(chunk))
		}))
	}

	resp, err := e.llm.GenerateContent(ctx, messages, opts...)
	if err != nil {
		return nil, fmt.Errorf("generation failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("model returned no choices")
	}

	return &models.AskResponse{
		Answer:  resp.Choices[0].Content,
		Sources: collectSources(chunks),
	}, nil
}

// collectSources dedupes (document, page) pairs keeping the best score, in
// retrieval order.
func collectSources(chunks []retrieval.RetrievedChunk) []models.Source {
	type key struct {
		title string
		page  int
	}
	seen := make(map[key]int)
	sources := make([]models.Source, 0, len(chunks))
	for _, c := range chunks {
		k := key{c.Document.Title, c.Chunk.Page}
		if i, ok := seen[k]; ok {
			if c.Score > sources[i].Score {
				sources[i].Score = c.Score
			}
			continue
		}
		seen[k] = len(sources)
		sources = append(sources, models.Source{
			Title: c.Document.Title,
			Page:  c.Chunk.Page,
			Score: c.Score,
		})
	}
	return sources
}
