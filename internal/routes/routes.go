package routes

import (
	"net/http"

	"catalog-enricher/internal/handlers"
	"catalog-enricher/internal/metrics"

	"github.com/gin-gonic/gin"
)

func RegisterRoutes(router *gin.Engine, stores *handlers.StoreHandler, products *handlers.ProductHandler) {
	router.Use(metrics.Middleware())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(metrics.MetricsHandler()))

	v1 := router.Group("/v1/stores/:db")
	{
		v1.POST("/sync", stores.StartSync)
		v1.POST("/reprocess", stores.StartReprocess)
		v1.DELETE("/lock", stores.Stop)
		v1.GET("/status", stores.Status)
		v1.GET("/products/:id", products.GetProduct)
	}
}
