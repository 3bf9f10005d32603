package stream

import (
	"fmt"
	"time"

	"github.com/RishiKendai/keyguard/internal/models"
)

// StreamMessage is a raw entry read from the paste stream.
type StreamMessage struct {
	ID     string
	Fields map[string]string
}

// EncodePasteEvent flattens a paste event into stream fields.
func EncodePasteEvent(event *models.PasteEvent) map[string]interface{} {
	return map[string]interface{}{
		"eventId":    event.ID,
		"userId":     event.UserID,
		"language":   event.Language,
		"source":     string(event.Source),
		"inserted":   event.Inserted,
		"code":       event.Code,
		"detectedAt": event.DetectedAt.UTC().Format(time.RFC3339Nano),
	}
}

// ParsePasteEvent rebuilds a paste event from stream fields.
func ParsePasteEvent(msg *StreamMessage) (*models.PasteEvent, error) {
	required := []string{"eventId", "userId", "source", "detectedAt"}
	for _, key := range required {
		if msg.Fields[key] == "" {
			return nil, fmt.Errorf("message %s: missing field %q", msg.ID, key)
		}
	}

	source := models.PasteSource(msg.Fields["source"])
	if source != models.PasteSourceClient && source != models.PasteSourceHeuristic {
		return nil, fmt.Errorf("message %s: unknown paste source %q", msg.ID, source)
	}

	detectedAt, err := time.Parse(time.RFC3339Nano, msg.Fields["detectedAt"])
	if err != nil {
		return nil, fmt.Errorf("message %s: invalid detectedAt: %w", msg.ID, err)
	}

	return &models.PasteEvent{
		ID:         msg.Fields["eventId"],
		UserID:     msg.Fields["userId"],
		Language:   msg.Fields["language"],
		Source:     source,
		Inserted:   msg.Fields["inserted"],
		Code:       msg.Fields["code"],
		DetectedAt: detectedAt,
	}, nil
}
