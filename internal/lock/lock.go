package lock

import (
	"context"
	"errors"
)

var (
	ErrLocked    = errors.New("store is locked by another run")
	ErrNotLocked = errors.New("store is not locked")
)

// Manager es el marcador exclusivo por tienda. Su desaparición a mitad de una
// corrida es la señal de parada cooperativa.
type Manager interface {
	Acquire(ctx context.Context, dbName string) error
	IsHeld(ctx context.Context, dbName string) bool
	Release(ctx context.Context, dbName string)
	Revoke(ctx context.Context, dbName string) error
}
