package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoBackend is an optional secondary Backend writing enriched
// records to a MongoDB collection, for operators who want queryable
// storage alongside (or instead of) the batch JSON files. The Writer
// fans every batch out to all configured backends, so MongoBackend
// and FileBackend commonly run side by side.
type MongoBackend struct {
	client     *mongo.Client
	collection *mongo.Collection
	logger     *slog.Logger
}

// NewMongoBackend connects to uri and resolves the target collection.
func NewMongoBackend(uri, database, collection string, logger *slog.Logger) (*MongoBackend, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongodb connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("mongodb ping: %w", err)
	}

	return &MongoBackend{
		client:     client,
		collection: client.Database(database).Collection(collection),
		logger:     logger.With("component", "mongo_storage"),
	}, nil
}

func (m *MongoBackend) Name() string { return "mongodb" }

func (m *MongoBackend) Write(batch []EnrichedRecord) error {
	docs := make([]any, len(batch))
	for i, r := range batch {
		docs[i] = r
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := m.collection.InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("mongodb insert: %w", err)
	}
	return nil
}

func (m *MongoBackend) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}
