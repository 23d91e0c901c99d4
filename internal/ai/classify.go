package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"catalog-enricher/internal/metrics"
	"catalog-enricher/internal/models"
)

var ErrNoJSON = errors.New("no JSON object in model output")

// ClassifyInput es lo que se le pasa al clasificador por producto
type ClassifyInput struct {
	Text        string
	ProductName string
	Vocab       models.Vocabulary
	ImageURLs   []string
	Variants    []models.Variant
}

// ClassificationClient clasifica productos contra el vocabulario de la tienda.
// Nunca devuelve error: cualquier fallo degrada a una clasificación vacía.
type ClassificationClient struct {
	gen    Generator
	images *ImageFetcher
	logger *zap.Logger
}

// NewClassificationClient crea el cliente; images puede ser nil
func NewClassificationClient(gen Generator, images *ImageFetcher, logger *zap.Logger) *ClassificationClient {
	if logger == nil {
		logger = zap.L()
	}
	return &ClassificationClient{gen: gen, images: images, logger: logger.Named("classify")}
}

func (c *ClassificationClient) Classify(ctx context.Context, in ClassifyInput) models.Classification {
	vocab := in.Vocab
	if len(vocab.Categories) == 0 && len(vocab.Types) == 0 && len(vocab.SoftCategories) == 0 {
		return models.EmptyClassification()
	}

	req := Request{
		System:      classifySystem,
		Prompt:      buildClassifyPrompt(in),
		JSON:        true,
		Temperature: 0.1,
	}
	if c.images != nil && len(in.ImageURLs) > 0 {
		req.Images = c.images.FetchInline(ctx, in.ImageURLs)
	}

	res := c.gen.Generate(ctx, req)
	metrics.AICall("classify", res.Err)
	if res.Err != nil {
		c.logger.Warn("classification failed", zap.String("product", in.ProductName), zap.Error(res.Err))
		return models.DegradedClassification()
	}

	raw, err := parseClassification(res.Text)
	if err != nil {
		c.logger.Warn("classification output unparseable", zap.String("product", in.ProductName), zap.Error(err))
		return models.DegradedClassification()
	}

	return models.Classification{
		Category:     intersect(raw.Category, vocab.Categories),
		Type:         intersect(raw.Type, vocab.Types),
		SoftCategory: intersect(raw.SoftCategory, vocab.SoftCategories),
	}
}

const classifySystem = "You are a product taxonomy assistant for an online store. " +
	"You only answer with a JSON object and you only use labels from the lists you are given."

func buildClassifyPrompt(in ClassifyInput) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Product name: %s\n", in.ProductName)
	if text := strings.TrimSpace(in.Text); text != "" {
		fmt.Fprintf(&b, "Description: %s\n", text)
	}
	if sizes, colors := variantFacets(in.Variants); len(sizes)+len(colors) > 0 {
		if len(sizes) > 0 {
			fmt.Fprintf(&b, "Available sizes: %s\n", strings.Join(sizes, ", "))
		}
		if len(colors) > 0 {
			fmt.Fprintf(&b, "Available colors: %s\n", strings.Join(colors, ", "))
		}
	}

	b.WriteString("\nChoose labels ONLY from these lists, copying them exactly:\n")
	fmt.Fprintf(&b, "category: %s\n", jsonList(in.Vocab.Categories))
	fmt.Fprintf(&b, "type: %s\n", jsonList(in.Vocab.Types))
	fmt.Fprintf(&b, "softCategory: %s\n", jsonList(in.Vocab.SoftCategories))
	b.WriteString("\nReturn a JSON object with exactly three keys: \"category\", \"type\" and \"softCategory\". ")
	b.WriteString("Each value is an array of strings. Use [] when no label applies. Do not invent labels.")
	return b.String()
}

func variantFacets(variants []models.Variant) (sizes, colors []string) {
	seen := make(map[string]struct{})
	for _, v := range variants {
		if v.Size != nil {
			if _, ok := seen["s:"+*v.Size]; !ok {
				seen["s:"+*v.Size] = struct{}{}
				sizes = append(sizes, *v.Size)
			}
		}
		if v.Color != nil {
			if _, ok := seen["c:"+*v.Color]; !ok {
				seen["c:"+*v.Color] = struct{}{}
				colors = append(colors, *v.Color)
			}
		}
	}
	return sizes, colors
}

func jsonList(values []string) string {
	if values == nil {
		values = []string{}
	}
	data, _ := json.Marshal(values)
	return string(data)
}

type rawClassification struct {
	Category     []string
	Type         []string
	SoftCategory []string
}

// parseClassification extrae el primer objeto JSON de la salida del modelo
func parseClassification(text string) (rawClassification, error) {
	obj, ok := extractJSONObject(text)
	if !ok {
		return rawClassification{}, ErrNoJSON
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(obj), &fields); err != nil {
		return rawClassification{}, fmt.Errorf("decode classification: %w", err)
	}
	return rawClassification{
		Category:     labelList(fields["category"]),
		Type:         labelList(fields["type"]),
		SoftCategory: labelList(fields["softCategory"]),
	}, nil
}

// labelList acepta un array de strings o un string suelto
func labelList(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil && single != "" {
		return []string{single}
	}
	return nil
}

// extractJSONObject quita los code fences y devuelve el primer {...} balanceado
func extractJSONObject(text string) (string, bool) {
	text = stripCodeFence(strings.TrimSpace(text))

	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString, escaped := false, false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}

func stripCodeFence(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if nl := strings.IndexByte(text, '\n'); nl >= 0 {
		text = text[nl+1:]
	}
	if end := strings.LastIndex(text, "```"); end >= 0 {
		text = text[:end]
	}
	return strings.TrimSpace(text)
}

// intersect conserva las etiquetas del modelo que están en el vocabulario, en su orden y sin repetir
func intersect(labels, vocab []string) []string {
	out := []string{}
	if len(labels) == 0 || len(vocab) == 0 {
		return out
	}

	allowed := make(map[string]string, len(vocab))
	for _, v := range vocab {
		allowed[strings.TrimSpace(v)] = v
	}

	seen := make(map[string]struct{}, len(labels))
	for _, l := range labels {
		canonical, ok := allowed[strings.TrimSpace(l)]
		if !ok {
			continue
		}
		if _, dup := seen[canonical]; dup {
			continue
		}
		seen[canonical] = struct{}{}
		out = append(out, canonical)
	}
	return out
}
