package ai

import (
	"context"
	"encoding/base64"
	"errors"
)

//go:generate mockgen -destination=aimock/mock_ai.go -package=aimock catalog-enricher/internal/ai Generator,Vectorizer

var (
	ErrEmptyResponse = errors.New("empty model response")
	ErrBlocked       = errors.New("prompt blocked by provider")
)

// InlineImage es una imagen descargada que viaja dentro del request
type InlineImage struct {
	URL      string
	MIMEType string
	Data     []byte
}

// Base64 devuelve el payload codificado
func (i InlineImage) Base64() string {
	return base64.StdEncoding.EncodeToString(i.Data)
}

// Request es un pedido de generación independiente del proveedor
type Request struct {
	System      string
	Prompt      string
	Images      []InlineImage
	JSON        bool
	Temperature float32
}

// Result es la única forma de respuesta que ve el resto del pipeline
type Result struct {
	Text string
	Err  error
}

// Generator genera texto a partir de un prompt
type Generator interface {
	Generate(ctx context.Context, req Request) Result
}

// Vectorizer calcula el embedding de un texto
type Vectorizer interface {
	Vectorize(ctx context.Context, text string) ([]float32, error)
}
