package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/RishiKendai/keyguard/internal/config"
	"github.com/RishiKendai/keyguard/internal/detect"
	"github.com/RishiKendai/keyguard/internal/metrics"
	"github.com/RishiKendai/keyguard/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// SessionRepository stores per-user keystroke sessions. Update must apply fn
// atomically with respect to other updates of the same user.
type SessionRepository interface {
	Get(ctx context.Context, userID string) (*models.Session, error)
	Update(ctx context.Context, userID string, fn func(current *models.Session) (*models.Session, error)) (*models.Session, error)
	Delete(ctx context.Context, userID string) (bool, error)
}

// PasteLister reads the recorded paste log.
type PasteLister interface {
	ListPasteEventsByUser(ctx context.Context, userID string, limit int64) ([]*models.PasteEvent, error)
	CountPasteEventsByUser(ctx context.Context, userID string) (int64, error)
}

// PastePublisher hands recorded pastes to the paste log pipeline.
type PastePublisher interface {
	Publish(ctx context.Context, event *models.PasteEvent) error
}

const (
	defaultPasteLimit = 50
	maxPasteLimit     = 200
)

// Handler holds dependencies for handlers
type Handler struct {
	cfg       *config.Config
	sessions  SessionRepository
	publisher PastePublisher
	pastes    PasteLister
	now       func() time.Time
}

// NewHandler creates a new handler
func NewHandler(cfg *config.Config, sessions SessionRepository, publisher PastePublisher, pastes PasteLister) *Handler {
	return &Handler{
		cfg:       cfg,
		sessions:  sessions,
		publisher: publisher,
		pastes:    pastes,
		now:       time.Now,
	}
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
	})
}

// Track records a typing or paste report. Typing reports are re-checked with
// the paste heuristic against the last stored snapshot, so a paste the editor
// missed is still recorded.
func (h *Handler) Track(c *gin.Context) {
	var req models.KeystrokeEvent
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	if err := validateKeystrokeEvent(req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error: err.Error(),
			Code:  "INVALID_ACTION",
		})
		return
	}

	ctx := c.Request.Context()
	userID := c.GetString(userIDKey)

	metrics.KeystrokeEvents.WithLabelValues(string(req.Action), req.Language).Inc()

	// Paste and typing reports for one user can arrive concurrently; the
	// update is retried against the latest session so the paste flag is
	// never overwritten by a stale read.
	var pasteEvent *models.PasteEvent
	_, err := h.sessions.Update(ctx, userID, func(session *models.Session) (*models.Session, error) {
		if session == nil {
			session = models.NewSession(req.Language)
		}
		pasteEvent = detectPaste(req, session.Code)
		return &models.Session{
			Code:  req.Code,
			Paste: session.Paste || pasteEvent != nil,
		}, nil
	})
	if err != nil {
		log.Error().Err(err).Str("userID", userID).Msg("Failed to save keystroke session")
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error: "Failed to save keystroke session",
			Code:  "INTERNAL_ERROR",
		})
		return
	}

	if pasteEvent != nil {
		pasteEvent.UserID = userID
		pasteEvent.Language = req.Language
		pasteEvent.Code = req.Code
		pasteEvent.DetectedAt = h.now()
		h.recordPaste(ctx, pasteEvent)
	}

	c.JSON(http.StatusOK, models.StatusResponse{Status: "ok"})
}

// detectPaste returns the paste req records against the stored code, or nil.
// Explicit paste reports always count; typing is re-checked heuristically.
func detectPaste(req models.KeystrokeEvent, storedCode string) *models.PasteEvent {
	switch req.Action {
	case models.ActionPaste:
		return &models.PasteEvent{
			Source:   models.PasteSourceClient,
			Inserted: detect.ExtractInserted(storedCode, req.Code),
		}
	case models.ActionTyping:
		span, class := detect.ClassifyChange(storedCode, req.Code)
		if class == detect.Paste {
			return &models.PasteEvent{
				Source:   models.PasteSourceHeuristic,
				Inserted: span.Text,
			}
		}
	}
	return nil
}

// recordPaste publishes the paste to the log pipeline. The session already
// carries the paste flag, so a publish failure is logged and not surfaced.
func (h *Handler) recordPaste(ctx context.Context, event *models.PasteEvent) {
	metrics.PasteDetections.WithLabelValues(string(event.Source)).Inc()
	log.Info().
		Str("userID", event.UserID).
		Str("source", string(event.Source)).
		Int("inserted", len(event.Inserted)).
		Msg("Paste recorded")

	if h.publisher == nil {
		return
	}
	if err := h.publisher.Publish(ctx, event); err != nil {
		log.Warn().Err(err).Str("userID", event.UserID).Msg("Failed to publish paste event")
	}
}

// Report returns the current code and paste status of the caller's session.
func (h *Handler) Report(c *gin.Context) {
	userID := c.GetString(userIDKey)

	session, err := h.sessions.Get(c.Request.Context(), userID)
	if err != nil {
		log.Error().Err(err).Str("userID", userID).Msg("Failed to load keystroke session")
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error: "Failed to load keystroke session",
			Code:  "INTERNAL_ERROR",
		})
		return
	}
	if session == nil {
		session = &models.Session{}
	}

	c.JSON(http.StatusOK, session)
}

// Pastes returns the caller's recorded pastes, newest first.
func (h *Handler) Pastes(c *gin.Context) {
	limit := int64(defaultPasteLimit)
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 1 || n > maxPasteLimit {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{
				Error: fmt.Sprintf("limit must be between 1 and %d", maxPasteLimit),
				Code:  "INVALID_REQUEST",
			})
			return
		}
		limit = n
	}

	ctx := c.Request.Context()
	userID := c.GetString(userIDKey)

	events, err := h.pastes.ListPasteEventsByUser(ctx, userID, limit)
	if err != nil {
		log.Error().Err(err).Str("userID", userID).Msg("Failed to list paste events")
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error: "Failed to load paste log",
			Code:  "INTERNAL_ERROR",
		})
		return
	}
	total, err := h.pastes.CountPasteEventsByUser(ctx, userID)
	if err != nil {
		log.Error().Err(err).Str("userID", userID).Msg("Failed to count paste events")
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error: "Failed to load paste log",
			Code:  "INTERNAL_ERROR",
		})
		return
	}
	if events == nil {
		events = []*models.PasteEvent{}
	}

	c.JSON(http.StatusOK, models.PasteLogResponse{Pastes: events, Total: total})
}

// Clear drops the caller's session. It serves both the unload beacon and the
// explicit post-submission clear; the token always comes from the body.
func (h *Handler) Clear(c *gin.Context) {
	var req models.ClearRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.clearFailed(c, fmt.Errorf("invalid body: %w", err))
		return
	}
	if req.Token == "" {
		h.clearFailed(c, fmt.Errorf("token missing in request body"))
		return
	}

	userID, err := ParseUserToken(h.cfg.JWTSecret, req.Token)
	if err != nil {
		h.clearFailed(c, err)
		return
	}

	if _, err := h.sessions.Delete(c.Request.Context(), userID); err != nil {
		h.clearFailed(c, err)
		return
	}

	metrics.SessionsCleared.WithLabelValues("ok").Inc()
	log.Debug().Str("userID", userID).Str("action", string(req.Action)).Msg("Keystroke session cleared")
	c.JSON(http.StatusOK, models.ClearResponse{
		Message: fmt.Sprintf("Cleared keystrokes for user %s", userID),
	})
}

func (h *Handler) clearFailed(c *gin.Context, err error) {
	metrics.SessionsCleared.WithLabelValues("failed").Inc()
	log.Error().Err(err).Msg("Failed to clear keystrokes on unload")
	c.JSON(http.StatusBadRequest, models.ErrorResponse{
		Error: "Failed to clear keystrokes on unload",
		Code:  "CLEAR_FAILED",
	})
}

func validateKeystrokeEvent(req models.KeystrokeEvent) error {
	if req.Action != models.ActionTyping && req.Action != models.ActionPaste {
		return fmt.Errorf("action must be %q or %q", models.ActionTyping, models.ActionPaste)
	}
	if req.Language == "" {
		return fmt.Errorf("language is required")
	}
	return nil
}
