package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"catalog-enricher/internal/models"
	"catalog-enricher/internal/selector"
)

const productsCollection = "products"

// ProductRepository guarda los productos en la base de cada tienda (una base por dbName)
type ProductRepository struct {
	client *mongo.Client
}

func NewProductRepository(client *mongo.Client) *ProductRepository {
	return &ProductRepository{
		client: client,
	}
}

func (r *ProductRepository) collection(dbName string) *mongo.Collection {
	return r.client.Database(dbName).Collection(productsCollection)
}

// EnsureIndexes crea el índice único por id de plataforma
func (r *ProductRepository) EnsureIndexes(ctx context.Context, dbName string) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err := r.collection(dbName).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "stockStatus", Value: 1}, {Key: "category", Value: 1}}},
	})
	return err
}

// UpsertProduct escribe solo los campos de esta pasada, con clave en el id de plataforma
func (r *ProductRepository) UpsertProduct(ctx context.Context, dbName, id string, update models.ProductUpdate) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	doc := bson.M{"$setOnInsert": bson.M{"id": id}}
	if set := updateSet(update); len(set) > 0 {
		doc["$set"] = set
	}

	_, err := r.collection(dbName).UpdateOne(
		ctx,
		bson.M{"id": id},
		doc,
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("upsert product %s: %w", id, err)
	}
	return nil
}

// FindByID obtiene un producto por id de plataforma
func (r *ProductRepository) FindByID(ctx context.Context, dbName, id string) (*models.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var product models.Product
	err := r.collection(dbName).FindOne(ctx, bson.M{"id": id}).Decode(&product)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &product, nil
}

// FindEligible devuelve los productos que cumplen el filtro del selector
func (r *ProductRepository) FindEligible(ctx context.Context, dbName string, sel *selector.Selector) ([]models.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	findOptions := options.Find().
		SetProjection(bson.M{"embedding": bson.M{"$slice": 1}}).
		SetSort(bson.D{{Key: "id", Value: 1}})

	cursor, err := r.collection(dbName).Find(ctx, sel.Filter(), findOptions)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var products []models.Product
	if err = cursor.All(ctx, &products); err != nil {
		return nil, err
	}
	return products, nil
}

// BackfillProcessedStamp sella los productos sin categoryTypeProcessedAt con fetchedAt, o con now
func (r *ProductRepository) BackfillProcessedStamp(ctx context.Context, dbName string, now time.Time) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	pipeline := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"categoryTypeProcessedAt": bson.M{"$ifNull": bson.A{"$fetchedAt", now}},
		}}},
	}

	result, err := r.collection(dbName).UpdateMany(ctx, bson.M{"categoryTypeProcessedAt": nil}, pipeline)
	if err != nil {
		return 0, err
	}
	return result.ModifiedCount, nil
}

// SourceHashes devuelve id -> sourceHash de los productos ya embebidos
func (r *ProductRepository) SourceHashes(ctx context.Context, dbName string) (map[string]string, error) {
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	filter := bson.M{
		"sourceHash":  bson.M{"$exists": true},
		"embedding.0": bson.M{"$exists": true},
	}
	cursor, err := r.collection(dbName).Find(ctx, filter, options.Find().SetProjection(bson.M{"id": 1, "sourceHash": 1}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	hashes := make(map[string]string)
	for cursor.Next(ctx) {
		var row struct {
			ID         string `bson:"id"`
			SourceHash string `bson:"sourceHash"`
		}
		if err := cursor.Decode(&row); err != nil {
			return nil, err
		}
		hashes[row.ID] = row.SourceHash
	}
	return hashes, cursor.Err()
}
