// Package scraper provides the document-store side channel used when the
// stream carries scrape-done notifications instead of whole articles.
package scraper

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/beacon-news/analyzer/golang/internal/config"
	"github.com/beacon-news/analyzer/golang/internal/ports"
)

// MongoRepository fetches full scraped documents by id from the scraper's
// document store.
type MongoRepository struct {
	client     *mongo.Client
	collection *mongo.Collection
	logger     ports.Logger
}

// NewMongoRepository connects to the scraper document store.
func NewMongoRepository(ctx context.Context, cfg *config.MongoConfig, logger ports.Logger) (*MongoRepository, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI()))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	logger.Info("connected to mongodb",
		ports.Field{Key: "host", Value: cfg.Host},
		ports.Field{Key: "port", Value: cfg.Port},
		ports.Field{Key: "db", Value: cfg.Database},
		ports.Field{Key: "collection", Value: cfg.Collection},
	)

	return &MongoRepository{
		client:     client,
		collection: client.Database(cfg.Database).Collection(cfg.Collection),
		logger:     logger.WithFields(ports.Field{Key: "component", Value: "scraper-repository"}),
	}, nil
}

// GetArticleBatch fetches the scraped documents for the given ids and
// returns them as JSON payloads. Missing ids are silently absent from the
// result; the parser handles whatever comes back.
func (r *MongoRepository) GetArticleBatch(ctx context.Context, ids []string) ([][]byte, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	cursor, err := r.collection.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, fmt.Errorf("failed to query scraped articles: %w", err)
	}
	defer cursor.Close(ctx)

	var payloads [][]byte
	for cursor.Next(ctx) {
		var doc bson.M
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode scraped article: %w", err)
		}
		payload, err := bson.MarshalExtJSON(doc, false, false)
		if err != nil {
			return nil, fmt.Errorf("failed to encode scraped article: %w", err)
		}
		payloads = append(payloads, payload)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error while reading scraped articles: %w", err)
	}

	r.logger.Debug("fetched scraped article batch",
		ports.Field{Key: "requested", Value: len(ids)},
		ports.Field{Key: "fetched", Value: len(payloads)},
	)
	return payloads, nil
}

// Close disconnects from the document store.
func (r *MongoRepository) Close(ctx context.Context) error {
	return r.client.Disconnect(ctx)
}
