package repository

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	mongoInfra "github.com/RishiKendai/keyguard/internal/infra/mongo"
	"github.com/RishiKendai/keyguard/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func TestPasteEventsByUserQuery(t *testing.T) {
	filter, opts := pasteEventsByUserQuery("u1", 25)

	assert.Equal(t, bson.M{"userId": "u1"}, filter)
	assert.Equal(t, bson.D{{Key: "detectedAt", Value: -1}, {Key: "_id", Value: -1}}, opts.Sort)
	require.NotNil(t, opts.Limit)
	assert.Equal(t, int64(25), *opts.Limit)

	_, opts = pasteEventsByUserQuery("u1", 0)
	assert.Nil(t, opts.Limit)
}

// Runs against a real server when MONGO_URI is set.
func TestPasteLogRepository_Mongo(t *testing.T) {
	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		t.Skip("MONGO_URI not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := mongoInfra.NewClient(ctx, uri, fmt.Sprintf("keyguard_test_%d", time.Now().UnixNano()))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = client.Database.Drop(context.Background())
		client.Close(context.Background())
	})

	repo := NewPasteLogRepository(NewMongoRepository(client))
	require.NoError(t, repo.EnsureIndexes(ctx))

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i, id := range []string{"e1", "e2", "e3"} {
		require.NoError(t, repo.InsertPasteEvent(ctx, &models.PasteEvent{
			ID:         id,
			UserID:     "u1",
			Source:     models.PasteSourceClient,
			DetectedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, repo.InsertPasteEvent(ctx, &models.PasteEvent{
		ID: "other", UserID: "u2", Source: models.PasteSourceHeuristic, DetectedAt: base,
	}))
	// redelivered stream message
	require.NoError(t, repo.InsertPasteEvent(ctx, &models.PasteEvent{
		ID: "e1", UserID: "u1", Source: models.PasteSourceClient, DetectedAt: base,
	}))

	events, err := repo.ListPasteEventsByUser(ctx, "u1", 2)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "e3", events[0].ID)
	assert.Equal(t, "e2", events[1].ID)

	events, err = repo.ListPasteEventsByUser(ctx, "u1", 0)
	require.NoError(t, err)
	assert.Len(t, events, 3)

	count, err := repo.CountPasteEventsByUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}
