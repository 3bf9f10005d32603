package stream

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/RishiKendai/keyguard/internal/metrics"
	"github.com/RishiKendai/keyguard/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// PasteSink persists paste events read from the stream.
type PasteSink interface {
	InsertPasteEvent(ctx context.Context, event *models.PasteEvent) error
}

type Consumer struct {
	client              *redis.Client
	streamKey           string
	consumerGroup       string
	consumerName        string
	sink                PasteSink
	retryHandler        *RetryHandler
	pool                *WorkerPool
	retentionDuration   time.Duration
	pelRecoveryInterval time.Duration
	pelMinIdle          time.Duration
	cleanupInterval     time.Duration
	lastPELCheck        time.Time
}

func NewConsumer(
	client *redis.Client,
	streamKey string,
	consumerGroup string,
	consumerName string,
	sink PasteSink,
	retryHandler *RetryHandler,
	retentionDuration time.Duration,
	workers int,
) *Consumer {
	return &Consumer{
		client:              client,
		streamKey:           streamKey,
		consumerGroup:       consumerGroup,
		consumerName:        consumerName,
		sink:                sink,
		retryHandler:        retryHandler,
		pool:                NewWorkerPool(workers),
		retentionDuration:   retentionDuration,
		pelRecoveryInterval: 30 * time.Second,
		pelMinIdle:          1 * time.Minute,
		cleanupInterval:     1 * time.Hour,
		lastPELCheck:        time.Now(),
	}
}

// Start consumes until ctx is cancelled, then drains the worker pool.
func (c *Consumer) Start(ctx context.Context) error {
	defer c.pool.Close()

	if err := c.createConsumerGroup(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to create consumer group")
	}

	// crash recovery: pick up messages a dead consumer never acknowledged
	if err := c.recoverPEL(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to recover PEL messages on startup")
	}
	c.lastPELCheck = time.Now()

	go c.runCleanupPeriodically(ctx)
	log.Info().
		Str("stream", c.streamKey).
		Str("consumer", c.consumerName).
		Dur("retention", c.retentionDuration).
		Msg("Paste stream consumer started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			if err := c.consume(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				log.Error().Err(err).Msg("Error consuming paste events")
				time.Sleep(1 * time.Second)
			}
		}
	}
}

func (c *Consumer) createConsumerGroup(ctx context.Context) error {
	// "0" so events published before the first consumer started are not lost
	err := c.client.XGroupCreateMkStream(ctx, c.streamKey, c.consumerGroup, "0").Err()
	if err != nil {
		if strings.Contains(err.Error(), "BUSYGROUP") {
			log.Debug().Str("group", c.consumerGroup).Msg("Consumer group already exists")
			return nil
		}
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	log.Info().
		Str("group", c.consumerGroup).
		Str("stream", c.streamKey).
		Msg("Created consumer group")
	return nil
}

// recoverPEL claims and processes messages that stayed pending longer than
// pelMinIdle.
func (c *Consumer) recoverPEL(ctx context.Context) error {
	pending, err := c.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: c.streamKey,
		Group:  c.consumerGroup,
		Start:  "-",
		End:    "+",
		Count:  100,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("failed to get pending messages: %w", err)
	}

	messageIDs := make([]string, 0, len(pending))
	for _, p := range pending {
		if p.Idle >= c.pelMinIdle {
			messageIDs = append(messageIDs, p.ID)
		}
	}
	if len(messageIDs) == 0 {
		return nil
	}

	claimed, err := c.client.XClaim(ctx, &redis.XClaimArgs{
		Stream:   c.streamKey,
		Group:    c.consumerGroup,
		Consumer: c.consumerName,
		MinIdle:  c.pelMinIdle,
		Messages: messageIDs,
	}).Result()
	if err != nil {
		return fmt.Errorf("failed to claim messages: %w", err)
	}

	log.Info().Int("claimed", len(claimed)).Msg("Claimed idle pending paste events")
	c.processBatch(ctx, claimed)
	return nil
}

func (c *Consumer) consume(ctx context.Context) error {
	if time.Since(c.lastPELCheck) > c.pelRecoveryInterval {
		if err := c.recoverPEL(ctx); err != nil {
			log.Warn().Err(err).Msg("Failed to recover PEL messages")
		}
		c.lastPELCheck = time.Now()
	}

	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.consumerGroup,
		Consumer: c.consumerName,
		Streams:  []string{c.streamKey, ">"},
		Count:    10,
		Block:    time.Second,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read from stream: %w", err)
	}

	for _, stream := range streams {
		if stream.Stream != c.streamKey {
			continue
		}
		c.processBatch(ctx, stream.Messages)
	}
	return nil
}

// processBatch fans messages out to the worker pool and returns once all of
// them are handled, so the next read never overlaps an unacknowledged batch.
func (c *Consumer) processBatch(ctx context.Context, messages []redis.XMessage) {
	var wg sync.WaitGroup
	for i := range messages {
		msg := &messages[i]
		wg.Add(1)
		err := c.pool.Submit(func() error {
			defer wg.Done()
			if err := c.processMessage(ctx, msg); err != nil {
				return fmt.Errorf("message %s: %w", msg.ID, err)
			}
			return nil
		})
		if err != nil {
			wg.Done()
			log.Warn().Err(err).Str("message_id", msg.ID).Msg("Paste event left pending")
		}
	}
	wg.Wait()
}

func (c *Consumer) processMessage(ctx context.Context, msg *redis.XMessage) error {
	fields := make(map[string]string, len(msg.Values))
	for key, val := range msg.Values {
		if value, ok := val.(string); ok {
			fields[key] = value
		}
	}

	event, err := ParsePasteEvent(&StreamMessage{ID: msg.ID, Fields: fields})
	if err != nil {
		// malformed messages would fail forever, drop them
		metrics.PasteEventsPersisted.WithLabelValues("malformed").Inc()
		_ = c.acknowledge(ctx, msg.ID)
		return err
	}

	err = c.retryHandler.RetryWithBackoff(ctx, func() error {
		return c.sink.InsertPasteEvent(ctx, event)
	}, msg.ID, msg.Values)
	if err != nil {
		// dead-lettered by the retry handler
		metrics.PasteEventsPersisted.WithLabelValues("dead_lettered").Inc()
		_ = c.acknowledge(ctx, msg.ID)
		return err
	}

	metrics.PasteEventsPersisted.WithLabelValues("stored").Inc()
	return c.acknowledge(ctx, msg.ID)
}

// cleanupOldMessages trims entries older than the retention window.
func (c *Consumer) cleanupOldMessages(ctx context.Context) error {
	cutoffTime := time.Now().Add(-c.retentionDuration)
	minID := fmt.Sprintf("%d-0", cutoffTime.UnixMilli())

	trimmed, err := c.client.XTrimMinID(ctx, c.streamKey, minID).Result()
	if err != nil {
		return fmt.Errorf("failed to trim stream: %w", err)
	}

	if trimmed > 0 {
		log.Debug().
			Int64("trimmed", trimmed).
			Str("cutoff_time", cutoffTime.Format(time.RFC3339)).
			Msg("Trimmed old paste events from stream")
	}
	return nil
}

func (c *Consumer) runCleanupPeriodically(ctx context.Context) {
	ticker := time.NewTicker(c.cleanupInterval)
	defer ticker.Stop()

	if err := c.cleanupOldMessages(ctx); err != nil {
		log.Error().Err(err).Msg("Failed to run initial cleanup")
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.cleanupOldMessages(ctx); err != nil {
				log.Error().Err(err).Msg("Failed to cleanup old messages")
			}
		}
	}
}

func (c *Consumer) acknowledge(ctx context.Context, messageID string) error {
	if err := c.client.XAck(ctx, c.streamKey, c.consumerGroup, messageID).Err(); err != nil {
		log.Error().Err(err).Str("message_id", messageID).Msg("Failed to acknowledge message")
		return err
	}
	return nil
}
