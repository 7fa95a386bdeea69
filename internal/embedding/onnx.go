//go:build cgo

package embedding

import (
	"context"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"

	"github.com/quokkadev/opsrag/pkg/utils"
)

const onnxMaxTokens = 256

// ONNXEmbedder runs a local sentence-transformer ONNX model. No external
// server required; works fully offline once the model files are on disk.
type ONNXEmbedder struct {
	session   *ort.DynamicAdvancedSession
	tokenizer *Tokenizer
	dims      int
	logger    *zap.Logger

	// onnxruntime sessions are not safe for concurrent Run calls.
	mu sync.Mutex
}

func NewONNXEmbedder(modelPath, tokenizerPath string, dims int, logger *zap.Logger) (*ONNXEmbedder, error) {
	if modelPath == "" {
		return nil, fmt.Errorf("onnx provider requires embedding.model_path")
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("failed to initialize onnxruntime: %w", err)
		}
	}

	tokenizer, err := LoadTokenizer(tokenizerPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load tokenizer: %w", err)
	}

	session, err := ort.NewDynamicAdvancedSession(modelPath,
		[]string{"input_ids", "attention_mask", "token_type_ids"},
		[]string{"last_hidden_state"},
		nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load onnx model: %w", err)
	}

	logger.Info("loaded onnx embedding model",
		zap.String("model", modelPath),
		zap.Int("dimensions", dims))

	return &ONNXEmbedder{
		session:   session,
		tokenizer: tokenizer,
		dims:      dims,
		logger:    logger,
	}, nil
}

func (e *ONNXEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ids := e.tokenizer.Encode(text, onnxMaxTokens)
	seqLen := len(ids)

	inputIDs := make([]int64, seqLen)
	mask := make([]int64, seqLen)
	types := make([]int64, seqLen)
	copy(inputIDs, ids)
	for i := range mask {
		mask[i] = 1
	}

	shape := ort.NewShape(1, int64(seqLen))
	idTensor, err := ort.NewTensor(shape, inputIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer idTensor.Destroy()
	maskTensor, err := ort.NewTensor(shape, mask)
	if err != nil {
		return nil, fmt.Errorf("failed to create mask tensor: %w", err)
	}
	defer maskTensor.Destroy()
	typeTensor, err := ort.NewTensor(shape, types)
	if err != nil {
		return nil, fmt.Errorf("failed to create type tensor: %w", err)
	}
	defer typeTensor.Destroy()

	outputs := []ort.Value{nil}
	e.mu.Lock()
	err = e.session.Run([]ort.Value{idTensor, maskTensor, typeTensor}, outputs)
	e.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("onnx inference failed: %w", err)
	}
	defer outputs[0].Destroy()

	hidden, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("unexpected output tensor type %T", outputs[0])
	}

	return meanPool(hidden.GetData(), seqLen, e.dims)
}

// meanPool averages token vectors into a single normalized sentence vector.
func meanPool(data []float32, seqLen, dims int) ([]float32, error) {
	if seqLen == 0 || len(data) < seqLen*dims {
		return nil, fmt.Errorf("model output too small: %d floats for %d tokens", len(data), seqLen)
	}
	vec := make([]float32, dims)
	for t := 0; t < seqLen; t++ {
		off := t * dims
		for d := 0; d < dims; d++ {
			vec[d] += data[off+d]
		}
	}
	inv := 1.0 / float32(seqLen)
	for d := range vec {
		vec[d] *= inv
	}
	utils.NormalizeL2(vec)
	return vec, nil
}

func (e *ONNXEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (e *ONNXEmbedder) Dimensions() int {
	return e.dims
}

func (e *ONNXEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session != nil {
		if err := e.session.Destroy(); err != nil {
			return fmt.Errorf("failed to destroy onnx session: %w", err)
		}
		e.session = nil
	}
	return nil
}
