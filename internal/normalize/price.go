package normalize

import (
	"math"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cast"
)

// todo lo que no sea dígito, punto o signo (símbolos de moneda, espacios, letras)
var priceNoise = regexp.MustCompile(`[^0-9.\-]`)

// ParsePrice normaliza un precio de cualquier plataforma a un float con 2 decimales.
// Vacío, inválido o negativo devuelven 0.
func ParsePrice(v any) float64 {
	d, ok := toDecimal(v)
	if !ok || d.IsNegative() {
		return 0
	}
	f, _ := d.Round(2).Float64()
	return f
}

// ParseMinorUnits interpreta el valor en unidades menores (centavos, agorot)
func ParseMinorUnits(v any) float64 {
	d, ok := toDecimal(v)
	if !ok || d.IsNegative() {
		return 0
	}
	f, _ := d.Shift(-2).Round(2).Float64()
	return f
}

func toDecimal(v any) (decimal.Decimal, bool) {
	switch t := v.(type) {
	case nil:
		return decimal.Zero, false
	case decimal.Decimal:
		return t, true
	case string:
		return parseDecimalString(t)
	case []byte:
		return parseDecimalString(string(t))
	}

	f, err := cast.ToFloat64E(v)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Zero, false
	}
	return decimal.NewFromFloat(f), true
}

func parseDecimalString(s string) (decimal.Decimal, bool) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	s = priceNoise.ReplaceAllString(s, "")
	if s == "" || s == "-" || s == "." {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}
