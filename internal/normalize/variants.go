package normalize

import (
	"sort"
	"strconv"
	"strings"

	"catalog-enricher/internal/models"
)

// claves de opción en orden de prioridad
var (
	sizeKeys  = []string{"size", "eu size", "us size"}
	colorKeys = []string{"color", "colour"}
)

// Normalize convierte las variantes de la plataforma a la forma canónica {variants, sizes, colors}.
// Es una función pura: aplicarla dos veces sobre la misma entrada produce el mismo resultado.
func Normalize(raw models.RawProduct) models.Normalized {
	price := ParsePrice
	if raw.PriceInMinorUnits {
		price = ParseMinorUnits
	}

	variants := make([]models.Variant, 0, len(raw.Variants))
	var sizes, colors []string

	for _, rv := range raw.Variants {
		opts := optionMap(rv.Options)

		v := models.Variant{
			ID:             rv.ID,
			Title:          rv.Title,
			SKU:            nonEmpty(rv.SKU),
			Price:          price(rv.Price),
			CompareAtPrice: price(rv.CompareAtPrice),
			Size:           firstOption(opts, sizeKeys),
			Color:          firstOption(opts, colorKeys),
			Options:        rv.Options,
			Available:      rv.Available,
			Quantity:       rv.Quantity,
		}
		if v.Size != nil {
			sizes = append(sizes, *v.Size)
		}
		if v.Color != nil {
			colors = append(colors, *v.Color)
		}
		variants = append(variants, v)
	}

	return models.Normalized{
		Variants: variants,
		Sizes:    sortSizes(dedupe(sizes)),
		Colors:   dedupe(colors),
	}
}

// ProductPrice es el precio más bajo entre variantes, o el precio del producto si no hay variantes con precio
func ProductPrice(raw models.RawProduct, n models.Normalized) float64 {
	lowest := 0.0
	for _, v := range n.Variants {
		if v.Price <= 0 {
			continue
		}
		if lowest == 0 || v.Price < lowest {
			lowest = v.Price
		}
	}
	if lowest > 0 {
		return lowest
	}
	if raw.PriceInMinorUnits {
		return ParseMinorUnits(raw.Price)
	}
	return ParsePrice(raw.Price)
}

func optionMap(options []models.Option) map[string]string {
	m := make(map[string]string, len(options))
	for _, o := range options {
		key := strings.ToLower(strings.TrimSpace(o.Name))
		if _, exists := m[key]; exists {
			continue
		}
		m[key] = strings.TrimSpace(o.Value)
	}
	return m
}

func firstOption(opts map[string]string, keys []string) *string {
	for _, k := range keys {
		if v, ok := opts[k]; ok && v != "" {
			return &v
		}
	}
	return nil
}

func nonEmpty(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}

func dedupe(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// sortSizes ordena numéricamente si todos los valores son números, si no lexicográficamente
func sortSizes(sizes []string) []string {
	nums := make(map[string]float64, len(sizes))
	numeric := true
	for _, s := range sizes {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			numeric = false
			break
		}
		nums[s] = f
	}

	if numeric {
		sort.SliceStable(sizes, func(i, j int) bool { return nums[sizes[i]] < nums[sizes[j]] })
	} else {
		sort.Strings(sizes)
	}
	return sizes
}
