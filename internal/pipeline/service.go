package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"catalog-enricher/internal/fetcher"
	"catalog-enricher/internal/lock"
	"catalog-enricher/internal/metrics"
	"catalog-enricher/internal/models"
	"catalog-enricher/internal/progress"
	"catalog-enricher/internal/repository"
	"catalog-enricher/internal/selector"
)

// FetcherFactory construye el fetcher de la plataforma de un job
type FetcherFactory func(cfg models.SourceConfig) (fetcher.Fetcher, error)

// Summary es el resultado de una corrida
type Summary struct {
	DBName   string           `json:"dbName"`
	State    models.SyncState `json:"state"`
	Total    int              `json:"total"`
	Failed   int              `json:"failed"`
	Stopped  bool             `json:"stopped"`
	Duration time.Duration    `json:"duration"`
	Logs     []string         `json:"logs,omitempty"`
}

type Deps struct {
	Store      repository.ProductStore
	Sink       *progress.Sink
	Locks      lock.Manager
	NewFetcher FetcherFactory
	Caps       Capabilities
	Workers    int
	Logger     *zap.Logger
}

// Service orquesta las corridas completas por tienda: lock, estado, fetch y procesamiento
type Service struct {
	store      repository.ProductStore
	sink       *progress.Sink
	locks      lock.Manager
	newFetcher FetcherFactory
	batch      *BatchProcessor
	ingester   *Ingester
	logger     *zap.Logger

	wg      sync.WaitGroup
	runMu   sync.Mutex
	running map[string]struct{}
}

func NewService(d Deps) *Service {
	logger := d.Logger
	if logger == nil {
		logger = zap.L()
	}
	return &Service{
		store:      d.Store,
		sink:       d.Sink,
		locks:      d.Locks,
		newFetcher: d.NewFetcher,
		batch:      NewBatchProcessor(d.Store, d.Locks, d.Sink, d.Caps, logger),
		ingester:   NewIngester(d.Store, d.Locks, d.Sink, d.Caps, d.Workers, logger),
		logger:     logger.Named("service"),
		running:    make(map[string]struct{}),
	}
}

// Sync baja el catálogo completo y lo enriquece; bloquea hasta terminar
func (s *Service) Sync(ctx context.Context, job models.Job) (Summary, error) {
	if err := s.begin(ctx, &job, true); err != nil {
		return Summary{DBName: job.DBName}, err
	}
	return s.runSync(ctx, job)
}

// Reprocess reclasifica los productos elegibles; bloquea hasta terminar
func (s *Service) Reprocess(ctx context.Context, job models.Job) (Summary, error) {
	if err := s.begin(ctx, &job, false); err != nil {
		return Summary{DBName: job.DBName}, err
	}
	return s.runReprocess(ctx, job)
}

// StartSync toma el lock y corre la sincronización en segundo plano
func (s *Service) StartSync(ctx context.Context, job models.Job) error {
	if err := s.begin(ctx, &job, true); err != nil {
		return err
	}
	s.background(job, s.runSync)
	return nil
}

// StartReprocess toma el lock y corre el reproceso en segundo plano
func (s *Service) StartReprocess(ctx context.Context, job models.Job) error {
	if err := s.begin(ctx, &job, false); err != nil {
		return err
	}
	s.background(job, s.runReprocess)
	return nil
}

func (s *Service) background(job models.Job, run func(context.Context, models.Job) (Summary, error)) {
	s.runMu.Lock()
	s.running[job.DBName] = struct{}{}
	s.runMu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.runMu.Lock()
			delete(s.running, job.DBName)
			s.runMu.Unlock()
		}()
		if _, err := run(context.Background(), job); err != nil {
			s.logger.Error("run failed", zap.String("db", job.DBName), zap.Error(err))
		}
	}()
}

// Wait espera a las corridas en segundo plano
func (s *Service) Wait() {
	s.wg.Wait()
}

// Shutdown revoca el lock de cada corrida en segundo plano y las espera hasta que venza ctx.
// Cada corrida termina el producto en curso y cierra su estado como detenida.
func (s *Service) Shutdown(ctx context.Context) error {
	s.runMu.Lock()
	dbs := make([]string, 0, len(s.running))
	for db := range s.running {
		dbs = append(dbs, db)
	}
	s.runMu.Unlock()
	if len(dbs) == 0 {
		return nil
	}

	for _, db := range dbs {
		if err := s.locks.Revoke(ctx, db); err != nil && !errors.Is(err, lock.ErrNotLocked) {
			s.logger.Warn("revoke on shutdown failed", zap.String("db", db), zap.Error(err))
		}
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.logger.Warn("shutdown deadline reached with runs in flight", zap.Strings("dbs", dbs))
		return ctx.Err()
	}
}

// Stop pide la parada cooperativa de la corrida en curso
func (s *Service) Stop(ctx context.Context, dbName string) error {
	return s.locks.Revoke(ctx, dbName)
}

// Status devuelve el registro de progreso de la tienda
func (s *Service) Status(ctx context.Context, dbName string) (*models.SyncStatus, error) {
	return s.sink.Status(ctx, dbName)
}

// begin valida el job y toma el lock; sin lock no hay corrida
func (s *Service) begin(ctx context.Context, job *models.Job, needSource bool) error {
	if err := job.Validate(); err != nil {
		return err
	}
	if (needSource || job.RefetchOnReprocess) && !job.HasSource() {
		return fmt.Errorf("%w: source platform and base url are required", models.ErrInvalidJob)
	}
	if err := s.locks.Acquire(ctx, job.DBName); err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	return nil
}

func (s *Service) runSync(ctx context.Context, job models.Job) (sum Summary, err error) {
	db := job.DBName
	start := time.Now()
	sum = Summary{DBName: db}
	defer s.locks.Release(ctx, db)
	defer func() {
		sum.Duration = time.Since(start)
		sum.Logs = s.sink.Lines(db)
		metrics.Run("sync", string(sum.State), sum.Duration)
	}()

	if _, err = s.sink.Init(ctx, db, models.StateRunning, 0); err != nil {
		sum.State = models.StateError
		return sum, err
	}

	raws, err := s.fetch(ctx, job)
	if err != nil {
		sum.State = s.fail(ctx, db, "fetch catalog", err)
		return sum, err
	}
	s.sink.Tick(ctx, db, 0, len(raws))

	res, err := s.ingester.Run(ctx, db, raws, job)
	if err != nil {
		sum.State = s.fail(ctx, db, "ingest", err)
		return sum, err
	}

	sum.Total, sum.Failed, sum.Stopped = res.Total, res.Failed, res.Stopped
	sum.State = models.StateDone
	if res.Stopped {
		sum.State = models.StateIdle
	}
	s.sink.Appendf(ctx, db, "✅ Sync finished: %d enriched, %d unchanged, %d failed", res.Enriched, res.Unchanged, res.Failed)
	s.sink.Finish(ctx, db, sum.State, res.Stopped)
	return sum, nil
}

func (s *Service) runReprocess(ctx context.Context, job models.Job) (sum Summary, err error) {
	db := job.DBName
	start := time.Now()
	sum = Summary{DBName: db}
	defer s.locks.Release(ctx, db)
	defer func() {
		sum.Duration = time.Since(start)
		sum.Logs = s.sink.Lines(db)
		metrics.Run("reprocess", string(sum.State), sum.Duration)
	}()

	if _, err = s.sink.Init(ctx, db, models.StateReprocessing, 0); err != nil {
		sum.State = models.StateError
		return sum, err
	}

	var fresh map[string]models.RawProduct
	if job.RefetchOnReprocess {
		raws, err := s.fetch(ctx, job)
		if err != nil {
			sum.State = s.fail(ctx, db, "fetch catalog", err)
			return sum, err
		}
		fresh = make(map[string]models.RawProduct, len(raws))
		for _, r := range raws {
			fresh[r.ID] = r
		}
	}

	eligible, stamped, err := selector.SelectEligible(ctx, s.store, db, selector.ForJob(job))
	if err != nil {
		sum.State = s.fail(ctx, db, "select eligible", err)
		return sum, err
	}
	s.sink.Appendf(ctx, db, "🔎 %d eligible products (%s mode, %d stamps backfilled)", len(eligible), job.Mode, stamped)
	s.sink.Tick(ctx, db, 0, len(eligible))

	_, outcome := s.batch.Run(ctx, db, eligible, job, fresh)

	sum.Total = len(eligible)
	sum.Stopped = outcome == OutcomeStopped
	sum.State = models.StateDone
	if sum.Stopped {
		sum.State = models.StateIdle
	}
	s.sink.Finish(ctx, db, sum.State, sum.Stopped)
	return sum, nil
}

func (s *Service) fetch(ctx context.Context, job models.Job) ([]models.RawProduct, error) {
	if s.newFetcher == nil {
		return nil, errors.New("no catalog fetcher configured")
	}
	f, err := s.newFetcher(job.Source)
	if err != nil {
		return nil, err
	}

	s.sink.Appendf(ctx, job.DBName, "📥 Fetching catalog from %s", f.Name())
	raws, err := f.FetchAll(ctx)
	if err != nil {
		return nil, err
	}
	s.sink.Appendf(ctx, job.DBName, "📦 Fetched %d products", len(raws))
	return raws, nil
}

// fail deja la corrida en error con una línea legible
func (s *Service) fail(ctx context.Context, dbName, step string, err error) models.SyncState {
	s.sink.Appendf(ctx, dbName, "❌ %s failed: %v", step, err)
	s.sink.Finish(ctx, dbName, models.StateError, false)
	return models.StateError
}
