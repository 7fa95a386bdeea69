//go:build !cgo

package embedding

import (
	"fmt"

	"go.uber.org/zap"
)

// NewONNXEmbedder is unavailable without cgo. Build with CGO_ENABLED=1 and a
// local onnxruntime library, or use the ollama provider.
func NewONNXEmbedder(modelPath, tokenizerPath string, dims int, logger *zap.Logger) (Embedder, error) {
	return nil, fmt.Errorf("onnx embedding provider requires a cgo build")
}
