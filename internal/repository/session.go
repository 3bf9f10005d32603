package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/RishiKendai/keyguard/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	sessionKeyPrefix = "keystroke:session:"
	// maxUpdateAttempts bounds optimistic retries when concurrent reports for
	// the same user keep invalidating the watched key.
	maxUpdateAttempts = 10
)

// ErrSessionConflict is returned when Update keeps losing the race for a key.
var ErrSessionConflict = errors.New("session update conflict")

// SessionStore keeps each user's latest keystroke snapshot in Redis.
type SessionStore struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewSessionStore(client redis.UniversalClient, ttl time.Duration) *SessionStore {
	return &SessionStore{
		client: client,
		ttl:    ttl,
	}
}

func sessionKey(userID string) string {
	return sessionKeyPrefix + userID
}

type stringGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func loadSession(ctx context.Context, c stringGetter, key string) (*models.Session, error) {
	raw, err := c.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}

	var session models.Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return &session, nil
}

// Get returns the user's session, or nil when none exists.
func (s *SessionStore) Get(ctx context.Context, userID string) (*models.Session, error) {
	return loadSession(ctx, s.client, sessionKey(userID))
}

// Update reads the session, passes it to fn (nil when none exists) and writes
// fn's result back with a fresh TTL. The key is WATCHed, so a concurrent write
// between the read and the write makes Update start over with the new value;
// fn may therefore run more than once and must not have side effects.
func (s *SessionStore) Update(ctx context.Context, userID string, fn func(current *models.Session) (*models.Session, error)) (*models.Session, error) {
	rkey := sessionKey(userID)

	var saved *models.Session
	txf := func(tx *redis.Tx) error {
		current, err := loadSession(ctx, tx, rkey)
		if err != nil {
			return err
		}
		next, err := fn(current)
		if err != nil {
			return err
		}
		raw, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("failed to encode session: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, rkey, raw, s.ttl)
			return nil
		})
		if err != nil {
			return err
		}
		saved = next
		return nil
	}

	for attempt := 1; attempt <= maxUpdateAttempts; attempt++ {
		err := s.client.Watch(ctx, txf, rkey)
		if err == nil {
			log.Trace().Str("userID", userID).Bool("paste", saved.Paste).Int("attempt", attempt).Msg("Session saved")
			return saved, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			log.Debug().Str("userID", userID).Int("attempt", attempt).Msg("Session changed concurrently, retrying")
			continue
		}
		log.Error().Err(err).
			Str("userID", userID).
			Str("redisKey", rkey).
			Msg("Failed to update session in Redis")
		return nil, fmt.Errorf("failed to update session: %w", err)
	}
	return nil, ErrSessionConflict
}

// Delete removes the session. It reports whether one existed.
func (s *SessionStore) Delete(ctx context.Context, userID string) (bool, error) {
	n, err := s.client.Del(ctx, sessionKey(userID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to delete session: %w", err)
	}
	return n > 0, nil
}
