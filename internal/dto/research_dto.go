package dto

import (
	"time"

	"deep-research-be/pkg/store"

	"github.com/google/uuid"
)

type StartResearchRequest struct {
	Query   string   `json:"query" validate:"required,min=3,max=1000"`
	Sources []string `json:"sources" validate:"omitempty,dive,oneof=google arxiv duckduckgo bing"`
}

type StageStatus struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}

type SessionResponse struct {
	Id         uuid.UUID     `json:"id"`
	Query      string        `json:"query"`
	Sources    []string      `json:"sources"`
	Status     string        `json:"status"`
	Stages     []StageStatus `json:"stages"`
	Error      string        `json:"error,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
	FinishedAt *time.Time    `json:"finished_at,omitempty"`
}

// SessionResultsResponse exposes whatever stage outputs exist so far. Fields
// stay null until the owning stage completes.
type SessionResultsResponse struct {
	Id       uuid.UUID           `json:"id"`
	Status   string              `json:"status"`
	Plan     *store.ResearchPlan `json:"plan,omitempty"`
	Results  []store.ResultItem  `json:"results,omitempty"`
	Feedback *store.Feedback     `json:"feedback,omitempty"`
	Answer   *store.Answer       `json:"answer,omitempty"`
}

type SessionListResponse struct {
	Sessions []SessionResponse `json:"sessions"`
	Total    int64             `json:"total"`
	Limit    int               `json:"limit"`
	Offset   int               `json:"offset"`
}
