package ai

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"catalog-enricher/internal/metrics"
)

// EmbeddingClient calcula embeddings; cualquier fallo devuelve nil
type EmbeddingClient struct {
	vec       Vectorizer
	dimension int
	logger    *zap.Logger
}

// NewEmbeddingClient crea el cliente; dimension 0 acepta cualquier largo
func NewEmbeddingClient(vec Vectorizer, dimension int, logger *zap.Logger) *EmbeddingClient {
	if logger == nil {
		logger = zap.L()
	}
	return &EmbeddingClient{vec: vec, dimension: dimension, logger: logger.Named("embed")}
}

func (e *EmbeddingClient) Embed(ctx context.Context, text string) []float32 {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	vector, err := e.vec.Vectorize(ctx, text)
	metrics.AICall("embed", err)
	if err != nil {
		e.logger.Warn("embedding failed", zap.Error(err))
		return nil
	}
	if len(vector) == 0 {
		e.logger.Warn("embedding empty")
		return nil
	}
	if e.dimension > 0 && len(vector) != e.dimension {
		e.logger.Warn("embedding dimension mismatch", zap.Int("want", e.dimension), zap.Int("got", len(vector)))
		return nil
	}
	return vector
}
