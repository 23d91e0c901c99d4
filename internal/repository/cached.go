package repository

import (
	"context"

	"catalog-enricher/internal/cache"
	"catalog-enricher/internal/models"
)

// CachedProductStore descarta el JSON cacheado de un producto cada vez que se escribe
type CachedProductStore struct {
	ProductStore
	cache *cache.Cache
}

func NewCachedProductStore(store ProductStore, c *cache.Cache) *CachedProductStore {
	return &CachedProductStore{ProductStore: store, cache: c}
}

func (s *CachedProductStore) UpsertProduct(ctx context.Context, dbName, id string, update models.ProductUpdate) error {
	err := s.ProductStore.UpsertProduct(ctx, dbName, id, update)
	// también tras un error: la escritura pudo haber llegado a aplicarse
	s.cache.Delete(cache.ProductKey(dbName, id))
	return err
}
