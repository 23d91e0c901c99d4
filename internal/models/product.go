package models

import (
	"time"
)

// StockStatus es el estado de inventario canónico de un producto
type StockStatus string

const (
	InStock    StockStatus = "instock"
	OutOfStock StockStatus = "outofstock"
)

// Product representa un producto enriquecido dentro de la colección products de una tienda
type Product struct {
	ID                      string            `json:"id" bson:"id"`
	Name                    string            `json:"name" bson:"name"`
	Description             string            `json:"description" bson:"description"`
	Images                  []string          `json:"images,omitempty" bson:"images,omitempty"`
	Image                   string            `json:"image,omitempty" bson:"image,omitempty"`
	URL                     string            `json:"url,omitempty" bson:"url,omitempty"`
	Price                   float64           `json:"price" bson:"price"`
	StockStatus             StockStatus       `json:"stockStatus" bson:"stockStatus"`
	Variants                []Variant         `json:"variants,omitempty" bson:"variants,omitempty"`
	Sizes                   []string          `json:"sizes,omitempty" bson:"sizes,omitempty"`
	Colors                  []string          `json:"colors,omitempty" bson:"colors,omitempty"`
	SourceCategories        []string          `json:"sourceCategories,omitempty" bson:"sourceCategories,omitempty"`
	Metadata                map[string]string `json:"metadata,omitempty" bson:"metadata,omitempty"`
	Category                []string          `json:"category" bson:"category"`
	Type                    []string          `json:"type" bson:"type"`
	SoftCategory            []string          `json:"softCategory" bson:"softCategory"`
	Description1            *string           `json:"description1" bson:"description1"`
	Embedding               []float32         `json:"embedding,omitempty" bson:"embedding"`
	SourceHash              string            `json:"sourceHash,omitempty" bson:"sourceHash,omitempty"`
	CategoryTypeProcessedAt *time.Time        `json:"categoryTypeProcessedAt" bson:"categoryTypeProcessedAt"`
	FetchedAt               *time.Time        `json:"fetchedAt" bson:"fetchedAt"`
}

// Variant es una variante normalizada (talla, color, precio)
type Variant struct {
	ID             string   `json:"id" bson:"id"`
	Title          string   `json:"title" bson:"title"`
	SKU            *string  `json:"sku" bson:"sku"`
	Price          float64  `json:"price" bson:"price"`
	CompareAtPrice float64  `json:"compareAtPrice" bson:"compareAtPrice"`
	Size           *string  `json:"size" bson:"size"`
	Color          *string  `json:"color" bson:"color"`
	Options        []Option `json:"options,omitempty" bson:"options,omitempty"`
	Available      *bool    `json:"available,omitempty" bson:"available,omitempty"`
	Quantity       *int     `json:"quantity,omitempty" bson:"quantity,omitempty"`
}

// Option es un par nombre/valor de la plataforma de origen
type Option struct {
	Name  string `json:"name" bson:"name"`
	Value string `json:"value" bson:"value"`
}

// Raw convierte una variante guardada de vuelta al formato crudo, para volver a normalizarla
func (v Variant) Raw() RawVariant {
	return RawVariant{
		ID:             v.ID,
		Title:          v.Title,
		SKU:            v.SKU,
		Price:          v.Price,
		CompareAtPrice: v.CompareAtPrice,
		Options:        v.Options,
		Available:      v.Available,
		Quantity:       v.Quantity,
	}
}

// HasEnrichedDescription indica si hay texto enriquecido sobre el cual clasificar
func (p *Product) HasEnrichedDescription() bool {
	return p.Description1 != nil && *p.Description1 != ""
}

// ProductUpdate representa los campos que escribe una pasada del pipeline.
// Los campos nil no se tocan en el documento.
type ProductUpdate struct {
	Name                    *string
	Description             *string
	Images                  []string
	Image                   *string
	URL                     *string
	Price                   *float64
	StockStatus             *StockStatus
	Variants                []Variant
	Sizes                   []string
	Colors                  []string
	SourceCategories        []string
	Metadata                map[string]string
	Category                []string
	Type                    []string
	SoftCategory            []string
	Description1            *string
	Embedding               []float32
	SourceHash              *string
	CategoryTypeProcessedAt *time.Time
	FetchedAt               *time.Time
}

// Apply aplica la actualización sobre un producto en memoria
func (u ProductUpdate) Apply(p *Product) {
	if u.Name != nil {
		p.Name = *u.Name
	}
	if u.Description != nil {
		p.Description = *u.Description
	}
	if u.Images != nil {
		p.Images = u.Images
	}
	if u.Image != nil {
		p.Image = *u.Image
	}
	if u.URL != nil {
		p.URL = *u.URL
	}
	if u.Price != nil {
		p.Price = *u.Price
	}
	if u.StockStatus != nil {
		p.StockStatus = *u.StockStatus
	}
	if u.Variants != nil {
		p.Variants = u.Variants
	}
	if u.Sizes != nil {
		p.Sizes = u.Sizes
	}
	if u.Colors != nil {
		p.Colors = u.Colors
	}
	if u.SourceCategories != nil {
		p.SourceCategories = u.SourceCategories
	}
	if u.Metadata != nil {
		p.Metadata = u.Metadata
	}
	if u.Category != nil {
		p.Category = u.Category
	}
	if u.Type != nil {
		p.Type = u.Type
	}
	if u.SoftCategory != nil {
		p.SoftCategory = u.SoftCategory
	}
	if u.Description1 != nil {
		d := *u.Description1
		p.Description1 = &d
	}
	if u.Embedding != nil {
		p.Embedding = u.Embedding
	}
	if u.SourceHash != nil {
		p.SourceHash = *u.SourceHash
	}
	if u.CategoryTypeProcessedAt != nil {
		t := *u.CategoryTypeProcessedAt
		p.CategoryTypeProcessedAt = &t
	}
	if u.FetchedAt != nil {
		t := *u.FetchedAt
		p.FetchedAt = &t
	}
}
