package progress

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"catalog-enricher/internal/models"
	"catalog-enricher/internal/repository"
)

// Sink es el registro de estado y logs que consulta el dashboard.
// Es seguro para uso concurrente desde los workers de ingesta.
type Sink struct {
	store   repository.StatusStore
	maxLogs int
	logger  *zap.Logger

	mu    sync.Mutex
	lines map[string][]string

	tickMu sync.Mutex
	done   map[string]int
}

func NewSink(store repository.StatusStore, maxLogs int, logger *zap.Logger) *Sink {
	if logger == nil {
		logger = zap.L()
	}
	return &Sink{
		store:   store,
		maxLogs: maxLogs,
		logger:  logger.Named("progress"),
		lines:   make(map[string][]string),
		done:    make(map[string]int),
	}
}

// Init reinicia el estado de la tienda para una nueva corrida
func (s *Sink) Init(ctx context.Context, dbName string, state models.SyncState, total int) (string, error) {
	now := time.Now().UTC()
	runID := uuid.NewString()

	s.mu.Lock()
	s.lines[dbName] = nil
	s.mu.Unlock()

	s.tickMu.Lock()
	delete(s.done, dbName)
	s.tickMu.Unlock()

	err := s.store.Reset(ctx, models.SyncStatus{
		DBName:    dbName,
		RunID:     runID,
		State:     state,
		Total:     total,
		StartedAt: &now,
		Logs:      []string{},
	})
	if err != nil {
		return "", fmt.Errorf("reset status: %w", err)
	}
	s.logger.Info("run started", zap.String("db", dbName), zap.String("run_id", runID), zap.String("state", string(state)))
	return runID, nil
}

// Append agrega una línea legible; un fallo del almacén solo se loguea
func (s *Sink) Append(ctx context.Context, dbName, line string) {
	s.mu.Lock()
	lines := append(s.lines[dbName], line)
	if s.maxLogs > 0 && len(lines) > s.maxLogs {
		lines = lines[len(lines)-s.maxLogs:]
	}
	s.lines[dbName] = lines
	s.mu.Unlock()

	s.logger.Info(line, zap.String("db", dbName))
	if err := s.store.AppendLog(ctx, dbName, line, s.maxLogs); err != nil {
		s.logger.Warn("append status log failed", zap.String("db", dbName), zap.Error(err))
	}
}

// Appendf es Append con formato
func (s *Sink) Appendf(ctx context.Context, dbName, format string, args ...any) {
	s.Append(ctx, dbName, fmt.Sprintf(format, args...))
}

// Tick persiste el avance; un tick atrasado de otro worker no lo hace retroceder
func (s *Sink) Tick(ctx context.Context, dbName string, done, total int) {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()
	if done > 0 && done < s.done[dbName] {
		return
	}
	s.done[dbName] = done

	if err := s.store.UpdateProgress(ctx, dbName, done, total); err != nil {
		s.logger.Warn("update progress failed", zap.String("db", dbName), zap.Error(err))
	}
}

// Finish deja el estado terminal de la corrida
func (s *Sink) Finish(ctx context.Context, dbName string, state models.SyncState, stopped bool) {
	if !state.Terminal() {
		s.logger.Warn("finishing run with non-terminal state", zap.String("db", dbName), zap.String("state", string(state)))
	}
	now := time.Now().UTC()
	if err := s.store.SetState(context.WithoutCancel(ctx), dbName, state, stopped, &now); err != nil {
		s.logger.Error("finish status failed", zap.String("db", dbName), zap.Error(err))
	}
	s.logger.Info("run finished", zap.String("db", dbName), zap.String("state", string(state)), zap.Bool("stopped", stopped))
}

// Lines devuelve las líneas acumuladas en este proceso para la tienda
func (s *Sink) Lines(dbName string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.lines[dbName]...)
}

// Status lee el registro persistido de la tienda
func (s *Sink) Status(ctx context.Context, dbName string) (*models.SyncStatus, error) {
	return s.store.Get(ctx, dbName)
}
