package handler

import (
	"context"
	"fmt"

	"deep-research-be/internal/pkg/logger"
	"deep-research-be/internal/repository/contract"
	"deep-research-be/internal/repository/memory"
	"deep-research-be/pkg/events"
	pkgNats "deep-research-be/pkg/nats"

	"github.com/google/uuid"
)

// SessionArchiveHandler consumes terminal session events from NATS and
// persists the finished session to Postgres. Running it as a durable consumer
// keeps archiving off the pipeline's hot path and survives restarts.
type SessionArchiveHandler struct {
	sessions *memory.SessionRepository
	archive  contract.ResearchArchiveRepository
	logger   logger.ILogger
}

func NewSessionArchiveHandler(sessions *memory.SessionRepository, archive contract.ResearchArchiveRepository, log logger.ILogger) *SessionArchiveHandler {
	return &SessionArchiveHandler{
		sessions: sessions,
		archive:  archive,
		logger:   log,
	}
}

// Start subscribes to both terminal subjects with a durable consumer.
func (h *SessionArchiveHandler) Start(subscriber *pkgNats.Subscriber) error {
	return subscriber.Subscribe("research.session.*", "session-archiver", h.Handle)
}

// Handle archives the session named in the event. A session that has already
// been evicted from memory is acked without retry; its data is gone either
// way.
func (h *SessionArchiveHandler) Handle(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload().(map[string]interface{})
	if !ok {
		return fmt.Errorf("unexpected payload type %T", event.Payload())
	}

	idStr, ok := payload["session_id"].(string)
	if !ok {
		return fmt.Errorf("terminal event missing session_id")
	}
	sessionID, err := uuid.Parse(idStr)
	if err != nil {
		return fmt.Errorf("invalid session_id %q: %w", idStr, err)
	}

	active, found := h.sessions.Get(sessionID)
	if !found {
		h.logger.Warn("SessionArchiveHandler", "Session already evicted, skipping archive", map[string]interface{}{
			"session_id": sessionID,
		})
		return nil
	}

	if err := h.archive.Save(ctx, active.Archive()); err != nil {
		return fmt.Errorf("failed to archive session %s: %w", sessionID, err)
	}

	h.logger.Info("SessionArchiveHandler", "Session archived", map[string]interface{}{
		"session_id": sessionID,
		"status":     active.Session.Snapshot().Status,
	})
	return nil
}
