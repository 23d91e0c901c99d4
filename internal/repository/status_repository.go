package repository

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"catalog-enricher/internal/models"
)

// StatusRepository guarda un documento sync_status por tienda en la base de administración
type StatusRepository struct {
	collection *mongo.Collection
}

func NewStatusRepository(collection *mongo.Collection) *StatusRepository {
	return &StatusRepository{
		collection: collection,
	}
}

// Reset reemplaza el estado al iniciar una corrida
func (r *StatusRepository) Reset(ctx context.Context, status models.SyncStatus) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if status.Logs == nil {
		status.Logs = []string{}
	}
	_, err := r.collection.ReplaceOne(
		ctx,
		bson.M{"_id": status.DBName},
		status,
		options.Replace().SetUpsert(true),
	)
	return err
}

// AppendLog agrega una línea conservando solo las últimas max
func (r *StatusRepository) AppendLog(ctx context.Context, dbName, line string, max int) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	push := bson.M{"$each": bson.A{line}}
	if max > 0 {
		push["$slice"] = -max
	}
	_, err := r.collection.UpdateOne(
		ctx,
		bson.M{"_id": dbName},
		bson.M{"$push": bson.M{"logs": push}},
		options.Update().SetUpsert(true),
	)
	return err
}

// UpdateProgress actualiza los contadores y el porcentaje
func (r *StatusRepository) UpdateProgress(ctx context.Context, dbName string, done, total int) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := r.collection.UpdateOne(
		ctx,
		bson.M{"_id": dbName},
		bson.M{"$set": bson.M{
			"done":     done,
			"total":    total,
			"progress": models.ProgressPercent(done, total),
		}},
	)
	return err
}

// SetState cambia el estado de la corrida
func (r *StatusRepository) SetState(ctx context.Context, dbName string, state models.SyncState, stopped bool, finishedAt *time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	set := bson.M{"state": state, "stopped": stopped}
	if finishedAt != nil {
		set["finishedAt"] = *finishedAt
	}
	_, err := r.collection.UpdateOne(ctx, bson.M{"_id": dbName}, bson.M{"$set": set}, options.Update().SetUpsert(true))
	return err
}

// Get obtiene el estado de una tienda
func (r *StatusRepository) Get(ctx context.Context, dbName string) (*models.SyncStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var status models.SyncStatus
	err := r.collection.FindOne(ctx, bson.M{"_id": dbName}).Decode(&status)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &status, nil
}
