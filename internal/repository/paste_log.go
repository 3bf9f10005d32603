package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/RishiKendai/keyguard/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const pasteEventsCollection = "paste_events"

// PasteLogRepository stores recorded pastes for instructor review.
type PasteLogRepository struct {
	mongoRepo *MongoRepository
}

func NewPasteLogRepository(mongoRepo *MongoRepository) *PasteLogRepository {
	return &PasteLogRepository{
		mongoRepo: mongoRepo,
	}
}

// EnsureIndexes creates the lookup index and the unique event id index that
// makes redelivered stream messages idempotent.
func (r *PasteLogRepository) EnsureIndexes(ctx context.Context) error {
	err := r.mongoRepo.EnsureIndexes(ctx, pasteEventsCollection,
		mongo.IndexModel{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "detectedAt", Value: -1}}},
		mongo.IndexModel{Keys: bson.D{{Key: "eventId", Value: 1}}, Options: options.Index().SetUnique(true)},
	)
	if err != nil {
		return fmt.Errorf("failed to create paste event indexes: %w", err)
	}
	return nil
}

func (r *PasteLogRepository) InsertPasteEvent(ctx context.Context, event *models.PasteEvent) error {
	event.CreatedAt = time.Now()

	err := r.mongoRepo.InsertOne(ctx, pasteEventsCollection, event)
	if mongo.IsDuplicateKeyError(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to insert paste event: %w", err)
	}

	return nil
}

// ListPasteEventsByUser returns up to limit of the user's pastes, newest
// first. A limit of 0 returns all of them.
func (r *PasteLogRepository) ListPasteEventsByUser(ctx context.Context, userID string, limit int64) ([]*models.PasteEvent, error) {
	filter, opts := pasteEventsByUserQuery(userID, limit)
	cursor, err := r.mongoRepo.FindMany(ctx, pasteEventsCollection, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find paste events: %w", err)
	}
	defer cursor.Close(ctx)

	var events []*models.PasteEvent
	if err := cursor.All(ctx, &events); err != nil {
		return nil, fmt.Errorf("failed to decode paste events: %w", err)
	}

	return events, nil
}

func pasteEventsByUserQuery(userID string, limit int64) (bson.M, *options.FindOptions) {
	opts := options.Find().SetSort(bson.D{{Key: "detectedAt", Value: -1}, {Key: "_id", Value: -1}})
	if limit > 0 {
		opts.SetLimit(limit)
	}
	return bson.M{"userId": userID}, opts
}

func (r *PasteLogRepository) CountPasteEventsByUser(ctx context.Context, userID string) (int64, error) {
	count, err := r.mongoRepo.CountDocuments(ctx, pasteEventsCollection, bson.M{"userId": userID})
	if err != nil {
		return 0, fmt.Errorf("failed to count paste events: %w", err)
	}
	return count, nil
}
