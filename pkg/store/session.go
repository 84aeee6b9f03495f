package store

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrSessionNotFound is returned by session lookups for unknown IDs.
var ErrSessionNotFound = errors.New("research session not found")

// ErrAnswerNotReady is returned when a session exists but synthesis has not
// produced an answer yet.
var ErrAnswerNotReady = errors.New("answer not available yet")

// Stage and session statuses.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// StageCount is fixed: plan, gather, assess, synthesize.
const StageCount = 4

// Session represents one pipeline run in memory. The identity fields are set
// once at creation; the progress fields are mutated by the sequencer while
// REST handlers read them concurrently, so access goes through the mutex.
type Session struct {
	ID        uuid.UUID
	Query     string
	Sources   []string
	CreatedAt time.Time

	mu            sync.RWMutex
	status        string
	stageStatuses [StageCount]string
	err           string
	finishedAt    *time.Time
}

// SessionSnapshot is a point-in-time copy of a session's progress fields,
// safe to read while the run continues.
type SessionSnapshot struct {
	Status        string
	StageStatuses [StageCount]string
	Error         string
	FinishedAt    *time.Time
}

// NewSession creates a pending session for a query.
func NewSession(query string, sources []string) *Session {
	s := &Session{
		ID:        uuid.New(),
		Query:     query,
		Sources:   sources,
		status:    StatusPending,
		CreatedAt: time.Now().UTC(),
	}
	for i := range s.stageStatuses {
		s.stageStatuses[i] = StatusPending
	}
	return s
}

// Snapshot returns a consistent copy of the session's progress fields.
func (s *Session) Snapshot() SessionSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return SessionSnapshot{
		Status:        s.status,
		StageStatuses: s.stageStatuses,
		Error:         s.err,
		FinishedAt:    s.finishedAt,
	}
}

// MarkRunning transitions the session into the running state.
func (s *Session) MarkRunning() {
	s.mu.Lock()
	s.status = StatusRunning
	s.mu.Unlock()
}

// SetStageStatus records the status of one stage.
func (s *Session) SetStageStatus(i int, status string) {
	s.mu.Lock()
	s.stageStatuses[i] = status
	s.mu.Unlock()
}

// MarkCompleted finishes the session successfully.
func (s *Session) MarkCompleted() {
	now := time.Now().UTC()
	s.mu.Lock()
	s.status = StatusCompleted
	s.finishedAt = &now
	s.mu.Unlock()
}

// MarkFailed finishes the session with an error message.
func (s *Session) MarkFailed(errMsg string) {
	now := time.Now().UTC()
	s.mu.Lock()
	s.status = StatusFailed
	s.err = errMsg
	s.finishedAt = &now
	s.mu.Unlock()
}

// Terminal reports whether the session reached a final state.
func (s *Session) Terminal() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status == StatusCompleted || s.status == StatusFailed
}
