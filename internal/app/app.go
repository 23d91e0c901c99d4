package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"catalog-enricher/internal/ai"
	"catalog-enricher/internal/cache"
	"catalog-enricher/internal/config"
	"catalog-enricher/internal/database"
	"catalog-enricher/internal/fetcher"
	"catalog-enricher/internal/lock"
	"catalog-enricher/internal/models"
	"catalog-enricher/internal/pipeline"
	"catalog-enricher/internal/progress"
	"catalog-enricher/internal/repository"
)

const (
	statusCollection = "sync_status"
	locksCollection  = "locks"
	defaultLeaseTTL  = 2 * time.Minute
)

// Application agrupa las piezas compartidas por el servidor HTTP y la CLI
type Application struct {
	Config   *config.Config
	Logger   *zap.Logger
	Jobs     []models.Job
	Products repository.ProductStore
	Service  *pipeline.Service
	Cache    *cache.Cache

	mongo *mongo.Client
}

// New arma almacenes, lock, clientes de IA y el servicio según la configuración
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Application, error) {
	a := &Application{Config: cfg, Logger: logger}

	jobs, err := config.LoadJobs(cfg.JobsFile)
	switch {
	case err == nil:
		a.Jobs = jobs
	case errors.Is(err, os.ErrNotExist):
		logger.Warn("jobs file not found, jobs must come from requests", zap.String("file", cfg.JobsFile))
	default:
		return nil, fmt.Errorf("load jobs: %w", err)
	}

	var (
		statuses repository.StatusStore
		locks    lock.Manager
	)

	a.Cache = cache.New(10*time.Minute, 512)

	switch cfg.StoreBackend {
	case "memory":
		a.Products = repository.NewMemoryProductStore()
		statuses = repository.NewMemoryStatusStore()
	case "mongo":
		client, err := a.connect(ctx)
		if err != nil {
			return nil, err
		}
		products := repository.NewProductRepository(client)
		for _, job := range a.Jobs {
			if err := products.EnsureIndexes(ctx, job.DBName); err != nil {
				logger.Warn("ensure indexes failed", zap.String("db", job.DBName), zap.Error(err))
			}
		}
		a.Products = products
		statuses = repository.NewStatusRepository(client.Database(cfg.MongoDB).Collection(statusCollection))
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
	a.Products = repository.NewCachedProductStore(a.Products, a.Cache)

	switch cfg.LockBackend {
	case "file":
		locks = lock.NewFileLock(cfg.LockDir, cfg.LockStaleAfter, logger)
	case "mongo":
		client, err := a.connect(ctx)
		if err != nil {
			return nil, err
		}
		ttl := cfg.LockStaleAfter
		if ttl <= 0 {
			ttl = defaultLeaseTTL
		}
		locks = lock.NewMongoLease(client.Database(cfg.MongoDB).Collection(locksCollection), ttl, logger)
	default:
		return nil, fmt.Errorf("unknown lock backend %q", cfg.LockBackend)
	}

	caps, err := a.capabilities(ctx)
	if err != nil {
		return nil, err
	}

	a.Service = pipeline.NewService(pipeline.Deps{
		Store:      a.Products,
		Sink:       progress.NewSink(statuses, cfg.MaxStatusLogs, logger),
		Locks:      locks,
		NewFetcher: a.newFetcher,
		Caps:       caps,
		Workers:    cfg.Workers,
		Logger:     logger,
	})
	return a, nil
}

func (a *Application) connect(ctx context.Context) (*mongo.Client, error) {
	if a.mongo != nil {
		return a.mongo, nil
	}
	client, err := database.Connect(ctx, a.Config.MongoURI, database.ConnectOptions{})
	if err != nil {
		return nil, err
	}
	a.mongo = client
	return client, nil
}

// capabilities construye los clientes de IA; sin API key el pipeline corre degradado
func (a *Application) capabilities(ctx context.Context) (pipeline.Capabilities, error) {
	cfg := a.Config
	if cfg.GeminiAPIKey == "" {
		a.Logger.Warn("GEMINI_API_KEY not set, AI enrichment disabled")
		return pipeline.Capabilities{}, nil
	}

	gemini, err := ai.NewGeminiClient(ctx, ai.GeminiOptions{
		APIKey:         cfg.GeminiAPIKey,
		Model:          cfg.GeminiModel,
		EmbeddingModel: cfg.EmbeddingModel,
		Dimension:      cfg.EmbeddingDim,
	})
	if err != nil {
		return pipeline.Capabilities{}, err
	}

	images := ai.NewImageFetcher(cfg.ImageTimeout, a.Cache, a.Logger)
	return pipeline.Capabilities{
		Classifier: ai.NewClassificationClient(gemini, images, a.Logger),
		Embedder:   ai.NewEmbeddingClient(gemini, cfg.EmbeddingDim, a.Logger),
		Describer:  ai.NewDescriptionClient(gemini, images, a.Logger),
	}, nil
}

func (a *Application) newFetcher(src models.SourceConfig) (fetcher.Fetcher, error) {
	return fetcher.New(src, fetcher.Options{
		Timeout: a.Config.FetchTimeout,
		Retry: fetcher.RetryPolicy{
			MaxAttempts:  a.Config.FetchMaxAttempts,
			InitialDelay: a.Config.FetchInitialDelay,
		},
		RPS:    a.Config.FetchRPS,
		Logger: a.Logger,
	})
}

// Job devuelve el job configurado de una tienda
func (a *Application) Job(dbName string) (models.Job, error) {
	job, ok := config.FindJob(a.Jobs, dbName)
	if !ok {
		return models.Job{}, fmt.Errorf("%w: no job configured for %q", models.ErrInvalidJob, dbName)
	}
	return job, nil
}

// Close detiene las corridas en curso (esperando como mucho hasta que venza ctx) y libera los recursos
func (a *Application) Close(ctx context.Context) {
	if a.Service != nil {
		if err := a.Service.Shutdown(ctx); err != nil {
			a.Logger.Warn("background runs still active", zap.Error(err))
		}
	}
	if a.Cache != nil {
		a.Cache.Close()
	}
	if a.mongo != nil {
		if err := a.mongo.Disconnect(ctx); err != nil {
			a.Logger.Warn("mongo disconnect failed", zap.Error(err))
		}
	}
	_ = a.Logger.Sync()
}
