package repository

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"catalog-enricher/internal/models"
	"catalog-enricher/internal/selector"
)

var ErrNotFound = errors.New("not found")

// ProductStore es el almacén de productos enriquecidos, una colección por tienda
type ProductStore interface {
	selector.Store

	UpsertProduct(ctx context.Context, dbName, id string, update models.ProductUpdate) error
	FindByID(ctx context.Context, dbName, id string) (*models.Product, error)
	SourceHashes(ctx context.Context, dbName string) (map[string]string, error)
}

// StatusStore guarda el registro de progreso por tienda
type StatusStore interface {
	Reset(ctx context.Context, status models.SyncStatus) error
	AppendLog(ctx context.Context, dbName, line string, max int) error
	UpdateProgress(ctx context.Context, dbName string, done, total int) error
	SetState(ctx context.Context, dbName string, state models.SyncState, stopped bool, finishedAt *time.Time) error
	Get(ctx context.Context, dbName string) (*models.SyncStatus, error)
}

// updateSet traduce la actualización a un $set que solo toca los campos presentes
func updateSet(u models.ProductUpdate) bson.M {
	set := bson.M{}
	if u.Name != nil {
		set["name"] = *u.Name
	}
	if u.Description != nil {
		set["description"] = *u.Description
	}
	if u.Images != nil {
		set["images"] = u.Images
	}
	if u.Image != nil {
		set["image"] = *u.Image
	}
	if u.URL != nil {
		set["url"] = *u.URL
	}
	if u.Price != nil {
		set["price"] = *u.Price
	}
	if u.StockStatus != nil {
		set["stockStatus"] = *u.StockStatus
	}
	if u.Variants != nil {
		set["variants"] = u.Variants
	}
	if u.Sizes != nil {
		set["sizes"] = u.Sizes
	}
	if u.Colors != nil {
		set["colors"] = u.Colors
	}
	if u.SourceCategories != nil {
		set["sourceCategories"] = u.SourceCategories
	}
	if u.Metadata != nil {
		set["metadata"] = u.Metadata
	}
	if u.Category != nil {
		set["category"] = u.Category
	}
	if u.Type != nil {
		set["type"] = u.Type
	}
	if u.SoftCategory != nil {
		set["softCategory"] = u.SoftCategory
	}
	if u.Description1 != nil {
		set["description1"] = *u.Description1
	}
	if u.Embedding != nil {
		set["embedding"] = u.Embedding
	}
	if u.SourceHash != nil {
		set["sourceHash"] = *u.SourceHash
	}
	if u.CategoryTypeProcessedAt != nil {
		set["categoryTypeProcessedAt"] = *u.CategoryTypeProcessedAt
	}
	if u.FetchedAt != nil {
		set["fetchedAt"] = *u.FetchedAt
	}
	return set
}
