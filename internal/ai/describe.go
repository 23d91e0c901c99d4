package ai

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"catalog-enricher/internal/metrics"
)

// DescriptionClient genera la descripción enriquecida (description1) y resúmenes de metadata
type DescriptionClient struct {
	gen    Generator
	images *ImageFetcher
	logger *zap.Logger
}

func NewDescriptionClient(gen Generator, images *ImageFetcher, logger *zap.Logger) *DescriptionClient {
	if logger == nil {
		logger = zap.L()
	}
	return &DescriptionClient{gen: gen, images: images, logger: logger.Named("describe")}
}

// DescribeWithVision escribe una descripción de producto a partir del texto y las imágenes
func (d *DescriptionClient) DescribeWithVision(ctx context.Context, text string, imageURLs []string) (string, error) {
	req := Request{
		System: "You write concise, factual product descriptions for semantic search. " +
			"Describe what the product is, its material, style, color and intended use. Plain text, no markdown.",
		Prompt:      "Product information:\n" + strings.TrimSpace(text),
		Temperature: 0.3,
	}
	if d.images != nil && len(imageURLs) > 0 {
		req.Images = d.images.FetchInline(ctx, imageURLs)
	}
	if strings.TrimSpace(text) == "" && len(req.Images) == 0 {
		return "", ErrEmptyResponse
	}

	res := d.gen.Generate(ctx, req)
	metrics.AICall("describe", res.Err)
	if res.Err != nil {
		return "", res.Err
	}
	return strings.TrimSpace(res.Text), nil
}

// SummarizeMetadata resume en una oración los campos de metadata del producto
func (d *DescriptionClient) SummarizeMetadata(ctx context.Context, meta map[string]string) (string, error) {
	if len(meta) == 0 {
		return "", nil
	}

	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		if v := strings.TrimSpace(meta[k]); v != "" {
			fmt.Fprintf(&b, "%s: %s\n", k, v)
		}
	}
	if b.Len() == 0 {
		return "", nil
	}

	res := d.gen.Generate(ctx, Request{
		Prompt:      "Summarize these product attributes in one sentence:\n" + b.String(),
		Temperature: 0.2,
	})
	metrics.AICall("summarize", res.Err)
	if res.Err != nil {
		return "", res.Err
	}
	return strings.TrimSpace(res.Text), nil
}
