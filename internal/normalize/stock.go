package normalize

import (
	"strings"

	"github.com/spf13/cast"

	"catalog-enricher/internal/models"
)

// sinónimos que cuentan como disponible en las distintas plataformas
var inStockSynonyms = map[string]struct{}{
	"instock":     {},
	"onbackorder": {},
	"available":   {},
	"true":        {},
	"1":           {},
	"yes":         {},
}

// NormalizeStockStatus centraliza los sinónimos de stock (stock_status, availableForSale, etc).
// Cualquier valor desconocido se considera sin stock.
func NormalizeStockStatus(v any) models.StockStatus {
	switch t := v.(type) {
	case nil:
		return models.OutOfStock
	case bool:
		if t {
			return models.InStock
		}
		return models.OutOfStock
	case models.StockStatus:
		v = string(t)
	}

	s := strings.ToLower(strings.TrimSpace(cast.ToString(v)))
	s = strings.NewReplacer("_", "", "-", "", " ", "").Replace(s)
	if _, ok := inStockSynonyms[s]; ok {
		return models.InStock
	}
	return models.OutOfStock
}
