package entity

import (
	"time"

	"deep-research-be/pkg/store"

	"github.com/google/uuid"
)

// ResearchSessionArchive is the domain view of a persisted pipeline run.
// Stage outputs are nil when the run failed before the stage produced them.
type ResearchSessionArchive struct {
	Id         uuid.UUID
	Query      string
	Sources    []string
	Status     string
	Error      string
	Plan       *store.ResearchPlan
	Results    []store.ResultItem
	Feedback   *store.Feedback
	Answer     *store.Answer
	CreatedAt  time.Time
	FinishedAt *time.Time
}
