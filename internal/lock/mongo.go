package lock

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// MongoLease es un lease con TTL y token de dueño en la colección locks
type MongoLease struct {
	collection *mongo.Collection
	ttl        time.Duration
	logger     *zap.Logger

	mu   sync.Mutex
	held map[string]*leaseHold
}

type leaseHold struct {
	owner  string
	cancel context.CancelFunc
}

func NewMongoLease(collection *mongo.Collection, ttl time.Duration, logger *zap.Logger) *MongoLease {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	if logger == nil {
		logger = zap.L()
	}
	return &MongoLease{
		collection: collection,
		ttl:        ttl,
		logger:     logger.Named("lease"),
		held:       make(map[string]*leaseHold),
	}
}

func (l *MongoLease) Acquire(ctx context.Context, dbName string) error {
	owner := uuid.NewString()
	now := time.Now()

	opCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := l.collection.UpdateOne(
		opCtx,
		bson.M{"_id": dbName, "expiresAt": bson.M{"$lt": now}},
		bson.M{"$set": bson.M{
			"owner":      owner,
			"pid":        os.Getpid(),
			"acquiredAt": now,
			"expiresAt":  now.Add(l.ttl),
		}},
		options.Update().SetUpsert(true),
	)
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%w: %s", ErrLocked, dbName)
	}
	if err != nil {
		return fmt.Errorf("acquire lease %s: %w", dbName, err)
	}

	renewCtx, stop := context.WithCancel(context.Background())
	l.mu.Lock()
	l.held[dbName] = &leaseHold{owner: owner, cancel: stop}
	l.mu.Unlock()

	go l.renew(renewCtx, dbName, owner)
	return nil
}

// renew extiende expiresAt mientras el lease siga siendo nuestro
func (l *MongoLease) renew(ctx context.Context, dbName, owner string) {
	t := time.NewTicker(l.ttl / 3)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			opCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			res, err := l.collection.UpdateOne(
				opCtx,
				bson.M{"_id": dbName, "owner": owner},
				bson.M{"$set": bson.M{"expiresAt": time.Now().Add(l.ttl)}},
			)
			cancel()
			if err != nil {
				l.logger.Warn("lease renewal failed", zap.String("db", dbName), zap.Error(err))
				continue
			}
			if res.MatchedCount == 0 {
				return
			}
		}
	}
}

func (l *MongoLease) IsHeld(ctx context.Context, dbName string) bool {
	l.mu.Lock()
	hold, ok := l.held[dbName]
	l.mu.Unlock()
	if !ok {
		return false
	}

	opCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	n, err := l.collection.CountDocuments(opCtx, bson.M{"_id": dbName, "owner": hold.owner})
	if err != nil {
		// un error de lectura no es un pedido de parada
		l.logger.Warn("lease check failed", zap.String("db", dbName), zap.Error(err))
		return true
	}
	return n > 0
}

func (l *MongoLease) Release(ctx context.Context, dbName string) {
	l.mu.Lock()
	hold, ok := l.held[dbName]
	delete(l.held, dbName)
	l.mu.Unlock()
	if !ok {
		return
	}
	hold.cancel()

	opCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if _, err := l.collection.DeleteOne(opCtx, bson.M{"_id": dbName, "owner": hold.owner}); err != nil {
		l.logger.Warn("release lease failed", zap.String("db", dbName), zap.Error(err))
	}
}

func (l *MongoLease) Revoke(ctx context.Context, dbName string) error {
	opCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	res, err := l.collection.DeleteOne(opCtx, bson.M{"_id": dbName})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotLocked
	}
	return nil
}
