package models

// RawProduct es un producto tal como llega de la plataforma de origen
type RawProduct struct {
	ID                string
	Title             string
	Description       string
	Images            []string
	URL               string
	Price             any
	StockStatus       any
	Variants          []RawVariant
	Categories        []string
	Metadata          map[string]string
	PriceInMinorUnits bool
}

// RawVariant es una variante sin normalizar; los precios pueden venir como texto o número
type RawVariant struct {
	ID             string
	Title          string
	SKU            *string
	Price          any
	CompareAtPrice any
	Options        []Option
	Available      *bool
	Quantity       *int
}

// Normalized es la forma canónica producida por el normalizador de variantes
type Normalized struct {
	Variants []Variant
	Sizes    []string
	Colors   []string
}
