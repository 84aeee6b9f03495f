package events

import "time"

// Event is the contract for messages published to the external bus (NATS),
// as opposed to ProgressEvent which stays on the in-process bus.
type Event interface {
	EventType() string
	Payload() interface{}
}

// BaseEvent is the generic form an event takes after it is read back from
// the bus, where the concrete type is no longer known.
type BaseEvent struct {
	Type       string                 `json:"type"`
	Data       map[string]interface{} `json:"data"`
	OccurredAt time.Time              `json:"occurred_at"`
}

func (e BaseEvent) EventType() string {
	return e.Type
}

func (e BaseEvent) Payload() interface{} {
	return e.Data
}

// SessionCompletedEvent announces a pipeline run that finished all four
// stages.
type SessionCompletedEvent struct {
	SessionID       string  `json:"session_id"`
	Query           string  `json:"query"`
	ResultCount     int     `json:"result_count"`
	DurationSeconds float64 `json:"duration_seconds"`
}

func (e SessionCompletedEvent) EventType() string {
	return "session.completed"
}

func (e SessionCompletedEvent) Payload() interface{} {
	return e
}

// SessionFailedEvent announces a pipeline run aborted by a stage error.
type SessionFailedEvent struct {
	SessionID string `json:"session_id"`
	Query     string `json:"query"`
	Stage     string `json:"stage"`
	Error     string `json:"error"`
}

func (e SessionFailedEvent) EventType() string {
	return "session.failed"
}

func (e SessionFailedEvent) Payload() interface{} {
	return e
}
