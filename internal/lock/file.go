package lock

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type marker struct {
	PID   int    `json:"pid"`
	Time  int64  `json:"time"`
	Owner string `json:"owner"`
}

// FileLock usa un archivo <dir>/<dbName>.lock creado con O_EXCL.
// Dos procesos que compiten antes de escribir el archivo no se excluyen del
// todo en sistemas de archivos de red; sirve para un proceso por tienda.
type FileLock struct {
	dir        string
	staleAfter time.Duration
	logger     *zap.Logger

	mu   sync.Mutex
	held map[string]*fileHold
}

type fileHold struct {
	owner string
	stop  chan struct{}
}

// NewFileLock crea el gestor; staleAfter 0 desactiva la recuperación de marcadores viejos
func NewFileLock(dir string, staleAfter time.Duration, logger *zap.Logger) *FileLock {
	if logger == nil {
		logger = zap.L()
	}
	return &FileLock{
		dir:        dir,
		staleAfter: staleAfter,
		logger:     logger.Named("lock"),
		held:       make(map[string]*fileHold),
	}
}

// Path devuelve la ruta del marcador de una tienda
func (l *FileLock) Path(dbName string) string {
	return filepath.Join(l.dir, dbName+".lock")
}

func (l *FileLock) Acquire(_ context.Context, dbName string) error {
	path := l.Path(dbName)
	owner := uuid.NewString()

	for reclaimed := false; ; reclaimed = true {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			err = json.NewEncoder(f).Encode(marker{PID: os.Getpid(), Time: time.Now().Unix(), Owner: owner})
			_ = f.Close()
			if err != nil {
				_ = os.Remove(path)
				return fmt.Errorf("write lock %s: %w", path, err)
			}
			break
		}
		if !os.IsExist(err) {
			return fmt.Errorf("create lock %s: %w", path, err)
		}

		fi, statErr := os.Stat(path)
		if statErr != nil || reclaimed || l.staleAfter <= 0 || time.Since(fi.ModTime()) < l.staleAfter {
			return fmt.Errorf("%w: %s", ErrLocked, dbName)
		}
		l.logger.Warn("reclaiming stale lock", zap.String("db", dbName), zap.Duration("age", time.Since(fi.ModTime())))
		_ = os.Remove(path)
	}

	hold := &fileHold{owner: owner, stop: make(chan struct{})}
	l.mu.Lock()
	l.held[dbName] = hold
	l.mu.Unlock()

	if l.staleAfter > 0 {
		go l.heartbeat(path, owner, hold.stop)
	}
	return nil
}

// heartbeat mantiene fresco el mtime para que no se considere viejo
func (l *FileLock) heartbeat(path, owner string, stop <-chan struct{}) {
	t := time.NewTicker(l.staleAfter / 3)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			if l.readOwner(path) != owner {
				return
			}
			now := time.Now()
			_ = os.Chtimes(path, now, now)
		}
	}
}

func (l *FileLock) readOwner(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	var m marker
	if err := json.Unmarshal(data, &m); err != nil {
		return ""
	}
	return m.Owner
}

// IsHeld es verdadero mientras el marcador exista y siga siendo nuestro
func (l *FileLock) IsHeld(_ context.Context, dbName string) bool {
	l.mu.Lock()
	hold, ok := l.held[dbName]
	l.mu.Unlock()
	if !ok {
		return false
	}
	return l.readOwner(l.Path(dbName)) == hold.owner
}

// Release borra el marcador si sigue siendo nuestro; los errores se ignoran
func (l *FileLock) Release(_ context.Context, dbName string) {
	l.mu.Lock()
	hold, ok := l.held[dbName]
	delete(l.held, dbName)
	l.mu.Unlock()
	if !ok {
		return
	}
	close(hold.stop)

	path := l.Path(dbName)
	if l.readOwner(path) == hold.owner {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			l.logger.Warn("release lock failed", zap.String("db", dbName), zap.Error(err))
		}
	}
}

// Revoke borra el marcador de cualquier dueño: pedido externo de parada
func (l *FileLock) Revoke(_ context.Context, dbName string) error {
	err := os.Remove(l.Path(dbName))
	if os.IsNotExist(err) {
		return ErrNotLocked
	}
	return err
}
