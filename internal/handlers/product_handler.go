package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"catalog-enricher/internal/cache"
	"catalog-enricher/internal/models"
	"catalog-enricher/internal/repository"
)

// ProductReader es la lectura que necesita el handler de productos
type ProductReader interface {
	FindByID(ctx context.Context, dbName, id string) (*models.Product, error)
}

type ProductHandler struct {
	repo  ProductReader
	cache *cache.Cache
}

func NewProductHandler(repo ProductReader, c *cache.Cache) *ProductHandler {
	return &ProductHandler{
		repo:  repo,
		cache: c,
	}
}

// GetProduct obtiene un producto enriquecido por ID (con caché)
func (h *ProductHandler) GetProduct(c *gin.Context) {
	dbName := c.Param("db")
	productID := c.Param("id")
	cacheKey := cache.ProductKey(dbName, productID)

	// Intentar obtener del caché
	if h.cache != nil {
		if data, mime, found := h.cache.GetValue(cacheKey); found {
			c.Data(http.StatusOK, mime, data)
			return
		}
	}

	product, err := h.repo.FindByID(c.Request.Context(), dbName, productID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "product not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get product"})
		return
	}

	data, err := json.Marshal(product)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to encode product"})
		return
	}
	if h.cache != nil {
		h.cache.Set(cacheKey, data, "application/json; charset=utf-8")
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", data)
}
