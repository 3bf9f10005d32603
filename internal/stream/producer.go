package stream

import (
	"context"
	"fmt"
	"time"

	"github.com/RishiKendai/keyguard/internal/models"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Producer appends paste events to the paste stream.
type Producer struct {
	client    redis.Cmdable
	streamKey string
}

func NewProducer(client redis.Cmdable, streamKey string) *Producer {
	return &Producer{
		client:    client,
		streamKey: streamKey,
	}
}

// Publish adds the event to the stream, assigning an ID and detection time
// when they are missing.
func (p *Producer) Publish(ctx context.Context, event *models.PasteEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.DetectedAt.IsZero() {
		event.DetectedAt = time.Now()
	}

	id, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.streamKey,
		Values: EncodePasteEvent(event),
	}).Result()
	if err != nil {
		return fmt.Errorf("failed to publish paste event: %w", err)
	}

	log.Debug().
		Str("message_id", id).
		Str("event_id", event.ID).
		Str("user_id", event.UserID).
		Str("source", string(event.Source)).
		Msg("Paste event published")
	return nil
}
