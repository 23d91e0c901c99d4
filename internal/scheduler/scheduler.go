package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"catalog-enricher/internal/lock"
	"catalog-enricher/internal/models"
	"catalog-enricher/internal/pipeline"
)

// Reprocessor es la corrida que dispara cada entrada programada
type Reprocessor interface {
	Reprocess(ctx context.Context, job models.Job) (pipeline.Summary, error)
}

var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Scheduler registra un reproceso periódico por cada job con schedule
type Scheduler struct {
	sched  *cron.Cron
	runner Reprocessor
	logger *zap.Logger
}

func New(runner Reprocessor, loc *time.Location, logger *zap.Logger) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = zap.L()
	}
	return &Scheduler{
		sched:  cron.New(cron.WithLocation(loc), cron.WithParser(cronParser)),
		runner: runner,
		logger: logger.Named("scheduler"),
	}
}

// Register agrega las entradas; devuelve cuántas quedaron programadas
func (s *Scheduler) Register(jobs []models.Job) (int, error) {
	n := 0
	for _, job := range jobs {
		if job.Schedule == "" {
			continue
		}
		if _, err := s.sched.AddFunc(job.Schedule, func() { s.fire(job) }); err != nil {
			return n, fmt.Errorf("schedule %s %q: %w", job.DBName, job.Schedule, err)
		}
		s.logger.Info("job scheduled", zap.String("db", job.DBName), zap.String("schedule", job.Schedule))
		n++
	}
	return n, nil
}

func (s *Scheduler) fire(job models.Job) {
	defer func() {
		if err := recover(); err != nil {
			s.logger.Error("scheduled run panicked", zap.String("db", job.DBName), zap.Any("panic", err))
		}
	}()

	sum, err := s.runner.Reprocess(context.Background(), job)
	switch {
	case errors.Is(err, lock.ErrLocked):
		s.logger.Info("store busy, skipping scheduled run", zap.String("db", job.DBName))
	case err != nil:
		s.logger.Error("scheduled run failed", zap.String("db", job.DBName), zap.Error(err))
	default:
		s.logger.Info("scheduled run finished",
			zap.String("db", job.DBName),
			zap.String("state", string(sum.State)),
			zap.Int("total", sum.Total),
			zap.Bool("stopped", sum.Stopped))
	}
}

func (s *Scheduler) Start() {
	s.sched.Start()
}

// Stop deja de disparar entradas y espera a las que están corriendo
func (s *Scheduler) Stop() context.Context {
	return s.sched.Stop()
}

// Entries expone las entradas registradas
func (s *Scheduler) Entries() []cron.Entry {
	return s.sched.Entries()
}
