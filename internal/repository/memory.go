package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"catalog-enricher/internal/models"
	"catalog-enricher/internal/selector"
)

// MemoryProductStore es un almacén en memoria (STORE_BACKEND=memory y tests)
type MemoryProductStore struct {
	mu     sync.RWMutex
	stores map[string]map[string]*models.Product
	writes map[string]int
}

func NewMemoryProductStore() *MemoryProductStore {
	return &MemoryProductStore{
		stores: make(map[string]map[string]*models.Product),
		writes: make(map[string]int),
	}
}

// Put inserta un producto tal cual
func (m *MemoryProductStore) Put(dbName string, p models.Product) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := p
	m.store(dbName)[p.ID] = &cp
}

func (m *MemoryProductStore) store(dbName string) map[string]*models.Product {
	s, ok := m.stores[dbName]
	if !ok {
		s = make(map[string]*models.Product)
		m.stores[dbName] = s
	}
	return s
}

func (m *MemoryProductStore) UpsertProduct(_ context.Context, dbName, id string, update models.ProductUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.store(dbName)
	p, ok := s[id]
	if !ok {
		p = &models.Product{ID: id}
		s[id] = p
	}
	update.Apply(p)
	m.writes[dbName+"/"+id]++
	return nil
}

// Writes cuenta las escrituras recibidas por un producto
func (m *MemoryProductStore) Writes(dbName, id string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.writes[dbName+"/"+id]
}

func (m *MemoryProductStore) FindByID(_ context.Context, dbName, id string) (*models.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.stores[dbName][id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MemoryProductStore) FindEligible(_ context.Context, dbName string, sel *selector.Selector) ([]models.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.Product
	for _, p := range m.stores[dbName] {
		if sel.Matches(*p) {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryProductStore) BackfillProcessedStamp(_ context.Context, dbName string, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for _, p := range m.stores[dbName] {
		if p.CategoryTypeProcessedAt != nil {
			continue
		}
		stamp := now
		if p.FetchedAt != nil {
			stamp = *p.FetchedAt
		}
		p.CategoryTypeProcessedAt = &stamp
		n++
	}
	return n, nil
}

func (m *MemoryProductStore) SourceHashes(_ context.Context, dbName string) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	hashes := make(map[string]string)
	for id, p := range m.stores[dbName] {
		if p.SourceHash != "" && len(p.Embedding) > 0 {
			hashes[id] = p.SourceHash
		}
	}
	return hashes, nil
}

// MemoryStatusStore guarda los estados en memoria
type MemoryStatusStore struct {
	mu       sync.RWMutex
	statuses map[string]*models.SyncStatus
}

func NewMemoryStatusStore() *MemoryStatusStore {
	return &MemoryStatusStore{statuses: make(map[string]*models.SyncStatus)}
}

func (m *MemoryStatusStore) get(dbName string) *models.SyncStatus {
	s, ok := m.statuses[dbName]
	if !ok {
		s = &models.SyncStatus{DBName: dbName, State: models.StateIdle, Logs: []string{}}
		m.statuses[dbName] = s
	}
	return s
}

func (m *MemoryStatusStore) Reset(_ context.Context, status models.SyncStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if status.Logs == nil {
		status.Logs = []string{}
	}
	m.statuses[status.DBName] = &status
	return nil
}

func (m *MemoryStatusStore) AppendLog(_ context.Context, dbName, line string, max int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.get(dbName)
	s.Logs = append(s.Logs, line)
	if max > 0 && len(s.Logs) > max {
		s.Logs = append([]string(nil), s.Logs[len(s.Logs)-max:]...)
	}
	return nil
}

func (m *MemoryStatusStore) UpdateProgress(_ context.Context, dbName string, done, total int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.get(dbName)
	s.Done = done
	s.Total = total
	s.Progress = models.ProgressPercent(done, total)
	return nil
}

func (m *MemoryStatusStore) SetState(_ context.Context, dbName string, state models.SyncState, stopped bool, finishedAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.get(dbName)
	s.State = state
	s.Stopped = stopped
	if finishedAt != nil {
		t := *finishedAt
		s.FinishedAt = &t
	}
	return nil
}

func (m *MemoryStatusStore) Get(_ context.Context, dbName string) (*models.SyncStatus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.statuses[dbName]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s
	cp.Logs = append([]string(nil), s.Logs...)
	return &cp, nil
}
