package events

import "time"

// Kind identifies the progress-event variant.
type Kind string

const (
	// Stage lifecycle, emitted by the sequencer.
	KindStageStart    Kind = "stage_start"
	KindStageComplete Kind = "stage_complete"
	KindStageFailed   Kind = "stage_failed"

	// Provider lifecycle, emitted by the fan-out executor.
	KindSearching Kind = "searching"
	KindCompleted Kind = "completed"
	KindFailed    Kind = "failed"

	// Session terminal states, emitted by the session controller.
	KindSessionComplete Kind = "session_complete"
	KindSessionFailed   Kind = "session_failed"
)

// ResultPreview is a trimmed result attached to "completed" events.
// At most three previews are sent per event.
type ResultPreview struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// ProgressEvent is a single progress update. Immutable once published.
type ProgressEvent struct {
	ID           string          `json:"id"`
	Type         Kind            `json:"type"`
	Agent        string          `json:"agent,omitempty"`
	Provider     string          `json:"provider,omitempty"`
	Step         int             `json:"step,omitempty"`
	Query        string          `json:"query,omitempty"`
	Keywords     []string        `json:"keywords,omitempty"`
	Status       string          `json:"status,omitempty"`
	ResultsCount int             `json:"results_count,omitempty"`
	Results      []ResultPreview `json:"results,omitempty"`
	Error        string          `json:"error,omitempty"`
	Timestamp    time.Time       `json:"timestamp"`
}
