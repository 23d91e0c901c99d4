package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"catalog-enricher/internal/config"
	"catalog-enricher/internal/lock"
	"catalog-enricher/internal/models"
	"catalog-enricher/internal/repository"
)

// Runner es lo que los endpoints de tienda necesitan del servicio de enriquecimiento
type Runner interface {
	StartSync(ctx context.Context, job models.Job) error
	StartReprocess(ctx context.Context, job models.Job) error
	Stop(ctx context.Context, dbName string) error
	Status(ctx context.Context, dbName string) (*models.SyncStatus, error)
}

// StoreHandler expone sync, reproceso, parada y estado por tienda
type StoreHandler struct {
	runner Runner
	jobs   []models.Job
}

func NewStoreHandler(runner Runner, jobs []models.Job) *StoreHandler {
	return &StoreHandler{runner: runner, jobs: jobs}
}

// jobRequest permite sobreescribir el job configurado desde el dashboard
type jobRequest struct {
	Source                  *models.SourceConfig `json:"source"`
	Vocabulary              *models.Vocabulary   `json:"vocabulary"`
	Mode                    *models.SyncMode     `json:"mode"`
	Reprocess               *models.Toggles      `json:"reprocess"`
	CategoryFilter          *string              `json:"categoryFilter"`
	OnlyMissingSoftCategory *bool                `json:"onlyMissingSoftCategory"`
	RefetchOnReprocess      *bool                `json:"refetchOnReprocess"`
}

func (r jobRequest) apply(job *models.Job) {
	if r.Source != nil {
		job.Source = *r.Source
	}
	if r.Vocabulary != nil {
		job.Vocabulary = *r.Vocabulary
	}
	if r.Mode != nil {
		job.Mode = *r.Mode
	}
	if r.Reprocess != nil {
		job.Reprocess = *r.Reprocess
	}
	if r.CategoryFilter != nil {
		job.CategoryFilter = *r.CategoryFilter
	}
	if r.OnlyMissingSoftCategory != nil {
		job.OnlyMissingSoftCategory = *r.OnlyMissingSoftCategory
	}
	if r.RefetchOnReprocess != nil {
		job.RefetchOnReprocess = *r.RefetchOnReprocess
	}
}

// resolveJob arma el job de la tienda: el configurado más lo que venga en el body
func (h *StoreHandler) resolveJob(c *gin.Context) (models.Job, bool) {
	dbName := c.Param("db")
	job, found := config.FindJob(h.jobs, dbName)
	if !found {
		job = models.Job{DBName: dbName}
	}

	var req jobRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return job, false
		}
	}
	req.apply(&job)
	return job, true
}

// StartSync baja y enriquece el catálogo en segundo plano
func (h *StoreHandler) StartSync(c *gin.Context) {
	job, ok := h.resolveJob(c)
	if !ok {
		return
	}
	h.respondStart(c, job, h.runner.StartSync(c.Request.Context(), job))
}

// StartReprocess reclasifica los productos elegibles en segundo plano
func (h *StoreHandler) StartReprocess(c *gin.Context) {
	job, ok := h.resolveJob(c)
	if !ok {
		return
	}
	h.respondStart(c, job, h.runner.StartReprocess(c.Request.Context(), job))
}

func (h *StoreHandler) respondStart(c *gin.Context, job models.Job, err error) {
	switch {
	case err == nil:
		c.JSON(http.StatusAccepted, gin.H{"message": "run started", "dbName": job.DBName})
	case errors.Is(err, lock.ErrLocked):
		c.JSON(http.StatusConflict, gin.H{"error": "a run is already in progress for this store"})
	case errors.Is(err, models.ErrInvalidJob):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start run"})
	}
}

// Stop pide la parada cooperativa de la corrida en curso
func (h *StoreHandler) Stop(c *gin.Context) {
	err := h.runner.Stop(c.Request.Context(), c.Param("db"))
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"message": "stop requested"})
	case errors.Is(err, lock.ErrNotLocked):
		c.JSON(http.StatusNotFound, gin.H{"error": "no run in progress"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to stop run"})
	}
}

// Status devuelve estado, progreso y logs de la tienda
func (h *StoreHandler) Status(c *gin.Context) {
	status, err := h.runner.Status(c.Request.Context(), c.Param("db"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "status not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get status"})
		return
	}
	c.JSON(http.StatusOK, status)
}
