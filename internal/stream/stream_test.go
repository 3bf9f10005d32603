package stream

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/RishiKendai/keyguard/internal/models"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testStream = "keystroke:paste:stream"
	testGroup  = "keystroke:paste:group"
	testDLQ    = "keystroke:paste:dlq"
)

type memorySink struct {
	mu       sync.Mutex
	events   []*models.PasteEvent
	failures int
}

func (s *memorySink) InsertPasteEvent(_ context.Context, event *models.PasteEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures > 0 {
		s.failures--
		return errors.New("mongo unavailable")
	}
	s.events = append(s.events, event)
	return nil
}

func newRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client, mr
}

func newTestConsumer(t *testing.T, client *redis.Client, sink PasteSink, maxRetries int) *Consumer {
	retry := NewRetryHandler(client, testDLQ, maxRetries, time.Millisecond)
	consumer := NewConsumer(client, testStream, testGroup, "consumer-test", sink, retry, time.Hour, 2)
	t.Cleanup(consumer.pool.Close)
	return consumer
}

func TestEncodeParseRoundTrip(t *testing.T) {
	event := &models.PasteEvent{
		ID:         "evt-1",
		UserID:     "u1",
		Language:   "python",
		Source:     models.PasteSourceHeuristic,
		Inserted:   "\nfor i in range(10):\n    print(i)",
		Code:       "x = 1\nfor i in range(10):\n    print(i)",
		DetectedAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}

	fields := make(map[string]string)
	for k, v := range EncodePasteEvent(event) {
		fields[k] = v.(string)
	}

	parsed, err := ParsePasteEvent(&StreamMessage{ID: "1-0", Fields: fields})
	require.NoError(t, err)
	assert.Equal(t, event, parsed)
}

func TestParsePasteEvent_Invalid(t *testing.T) {
	valid := map[string]string{
		"eventId":    "e",
		"userId":     "u",
		"source":     "client",
		"detectedAt": time.Now().UTC().Format(time.RFC3339Nano),
	}

	tests := []struct {
		name   string
		mutate func(map[string]string)
	}{
		{"missing user", func(f map[string]string) { delete(f, "userId") }},
		{"unknown source", func(f map[string]string) { f["source"] = "clipboard" }},
		{"bad time", func(f map[string]string) { f["detectedAt"] = "yesterday" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fields := make(map[string]string)
			for k, v := range valid {
				fields[k] = v
			}
			tt.mutate(fields)
			_, err := ParsePasteEvent(&StreamMessage{ID: "1-0", Fields: fields})
			assert.Error(t, err)
		})
	}
}

func TestProducerConsumer_DeliversEvent(t *testing.T) {
	client, _ := newRedis(t)
	ctx := context.Background()
	sink := &memorySink{}
	consumer := newTestConsumer(t, client, sink, 0)

	event := &models.PasteEvent{UserID: "u1", Language: "c", Source: models.PasteSourceClient, Code: "int x;"}
	require.NoError(t, NewProducer(client, testStream).Publish(ctx, event))
	assert.NotEmpty(t, event.ID)
	assert.False(t, event.DetectedAt.IsZero())

	require.NoError(t, consumer.createConsumerGroup(ctx))
	require.NoError(t, consumer.consume(ctx))

	require.Len(t, sink.events, 1)
	assert.Equal(t, event.ID, sink.events[0].ID)
	assert.Equal(t, "u1", sink.events[0].UserID)
	assert.Equal(t, models.PasteSourceClient, sink.events[0].Source)

	pending, err := client.XPending(ctx, testStream, testGroup).Result()
	require.NoError(t, err)
	assert.Zero(t, pending.Count)
}

func TestConsumer_CreateGroupTwice(t *testing.T) {
	client, _ := newRedis(t)
	consumer := newTestConsumer(t, client, &memorySink{}, 0)

	require.NoError(t, consumer.createConsumerGroup(context.Background()))
	require.NoError(t, consumer.createConsumerGroup(context.Background()))
}

func TestConsumer_MalformedMessageAcknowledged(t *testing.T) {
	client, _ := newRedis(t)
	ctx := context.Background()
	sink := &memorySink{}
	consumer := newTestConsumer(t, client, sink, 0)

	require.NoError(t, client.XAdd(ctx, &redis.XAddArgs{
		Stream: testStream,
		Values: map[string]interface{}{"userId": "u1"},
	}).Err())

	require.NoError(t, consumer.createConsumerGroup(ctx))
	require.NoError(t, consumer.consume(ctx))

	assert.Empty(t, sink.events)
	pending, err := client.XPending(ctx, testStream, testGroup).Result()
	require.NoError(t, err)
	assert.Zero(t, pending.Count)
}

func TestConsumer_RetriesThenSucceeds(t *testing.T) {
	client, _ := newRedis(t)
	ctx := context.Background()
	sink := &memorySink{failures: 2}
	consumer := newTestConsumer(t, client, sink, 3)

	require.NoError(t, NewProducer(client, testStream).Publish(ctx, &models.PasteEvent{
		UserID: "u1", Source: models.PasteSourceHeuristic,
	}))
	require.NoError(t, consumer.createConsumerGroup(ctx))
	require.NoError(t, consumer.consume(ctx))

	assert.Len(t, sink.events, 1)
	dlq, err := client.XLen(ctx, testDLQ).Result()
	require.NoError(t, err)
	assert.Zero(t, dlq)
}

func TestConsumer_DeadLettersAfterMaxRetries(t *testing.T) {
	client, _ := newRedis(t)
	ctx := context.Background()
	sink := &memorySink{failures: 10}
	consumer := newTestConsumer(t, client, sink, 2)

	require.NoError(t, NewProducer(client, testStream).Publish(ctx, &models.PasteEvent{
		ID: "evt-dead", UserID: "u1", Source: models.PasteSourceClient,
	}))
	require.NoError(t, consumer.createConsumerGroup(ctx))
	require.NoError(t, consumer.consume(ctx))

	assert.Empty(t, sink.events)
	entries, err := client.XRange(ctx, testDLQ, "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "evt-dead", entries[0].Values["eventId"])
	assert.Equal(t, "mongo unavailable", entries[0].Values["error"])
}

func TestRetryHandler_StopsOnContextCancel(t *testing.T) {
	client, _ := newRedis(t)
	handler := NewRetryHandler(client, testDLQ, 5, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := handler.RetryWithBackoff(ctx, func() error {
		calls++
		return errors.New("boom")
	}, "1-0", nil)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
