package selector

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"catalog-enricher/internal/models"
)

// Selector decide qué productos guardados entran en una pasada de reproceso
type Selector struct {
	Mode                    models.SyncMode
	CategoryFilter          string
	OnlyMissingSoftCategory bool
}

// ForJob arma el selector a partir de los parámetros del job
func ForJob(job models.Job) *Selector {
	return &Selector{
		Mode:                    job.Mode,
		CategoryFilter:          job.CategoryFilter,
		OnlyMissingSoftCategory: job.OnlyMissingSoftCategory,
	}
}

// Store es lo que el selector necesita del almacén de productos
type Store interface {
	BackfillProcessedStamp(ctx context.Context, dbName string, now time.Time) (int64, error)
	FindEligible(ctx context.Context, dbName string, sel *Selector) ([]models.Product, error)
}

// labelFields son las familias de etiquetas que vigila el modo texto
var labelFields = []string{"category", "type", "softCategory"}

// Filter construye la consulta de Mongo equivalente a Matches
func (s *Selector) Filter() bson.M {
	and := bson.A{
		bson.M{"embedding.0": bson.M{"$exists": true}},
		bson.M{"stockStatus": models.InStock},
	}

	switch {
	case s.OnlyMissingSoftCategory:
		and = append(and,
			bson.M{"category.0": bson.M{"$exists": true}},
			bson.M{"softCategory": nil},
		)
	case s.Mode == models.ModeText:
		or := bson.A{}
		for _, f := range labelFields {
			or = append(or, bson.M{f: nil}, bson.M{f: bson.M{"$size": 0}})
		}
		or = append(or, bson.M{"categoryTypeProcessedAt": nil})
		and = append(and, bson.M{"$or": or})
	}

	if s.CategoryFilter != "" {
		and = append(and, bson.M{"category": s.CategoryFilter})
	}
	return bson.M{"$and": and}
}

// Matches evalúa el mismo predicado sobre un documento ya decodificado
func (s *Selector) Matches(p models.Product) bool {
	if len(p.Embedding) == 0 || p.StockStatus != models.InStock {
		return false
	}

	switch {
	case s.OnlyMissingSoftCategory:
		if len(p.Category) == 0 || models.LabelStateOf(p.SoftCategory) != models.LabelUnset {
			return false
		}
	case s.Mode == models.ModeText:
		if !needsClassification(p) {
			return false
		}
	}

	if s.CategoryFilter != "" && !contains(p.Category, s.CategoryFilter) {
		return false
	}
	return true
}

// needsClassification: alguna familia sin etiquetas (ausente, null o vacía) o sin sello
func needsClassification(p models.Product) bool {
	for _, labels := range [][]string{p.Category, p.Type, p.SoftCategory} {
		if models.LabelStateOf(labels) != models.LabelSet {
			return true
		}
	}
	return p.CategoryTypeProcessedAt == nil
}

func contains(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}

// SelectEligible rellena los sellos faltantes y devuelve los productos elegibles
func SelectEligible(ctx context.Context, store Store, dbName string, sel *Selector) ([]models.Product, int64, error) {
	stamped, err := store.BackfillProcessedStamp(ctx, dbName, time.Now().UTC())
	if err != nil {
		return nil, 0, fmt.Errorf("backfill stamps: %w", err)
	}

	products, err := store.FindEligible(ctx, dbName, sel)
	if err != nil {
		return nil, stamped, fmt.Errorf("find eligible: %w", err)
	}
	return products, stamped, nil
}
