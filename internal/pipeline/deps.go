package pipeline

import (
	"context"

	"catalog-enricher/internal/ai"
	"catalog-enricher/internal/models"
)

// Classifier asigna etiquetas del vocabulario; nunca falla, degrada a vacío
type Classifier interface {
	Classify(ctx context.Context, in ai.ClassifyInput) models.Classification
}

// Embedder calcula el vector de búsqueda; nil significa sin embedding
type Embedder interface {
	Embed(ctx context.Context, text string) []float32
}

// Describer genera descripciones enriquecidas y resúmenes de metadata
type Describer interface {
	DescribeWithVision(ctx context.Context, text string, imageURLs []string) (string, error)
	SummarizeMetadata(ctx context.Context, meta map[string]string) (string, error)
}

// Capabilities agrupa los clientes de IA; cualquiera puede ser nil (capacidad no disponible)
type Capabilities struct {
	Classifier Classifier
	Embedder   Embedder
	Describer  Describer
}
