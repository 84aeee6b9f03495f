package store

import (
	"time"

	"github.com/google/uuid"
)

// Search sources supported by the gather stage.
const (
	SourceGoogle     = "google"
	SourceArxiv      = "arxiv"
	SourceDuckDuckGo = "duckduckgo"
	SourceBing       = "bing"
)

// Shared-state keys. Each key is written by exactly one stage and read by
// later stages.
const (
	KeyQuery    = "query"
	KeyPlan     = "plan"
	KeyResults  = "results"
	KeyFeedback = "feedback"
	KeyAnswer   = "answer"
)

// ResearchQuery is the user's submitted question plus the sources it may use.
type ResearchQuery struct {
	ID        uuid.UUID `json:"id"`
	Content   string    `json:"content"`
	Sources   []string  `json:"sources"`
	CreatedAt time.Time `json:"created_at"`
}

// SearchStep is a single step of the research plan. One step fans out to all
// of its sources concurrently; steps themselves run sequentially.
type SearchStep struct {
	Number      int      `json:"step_number"`
	Description string   `json:"description"`
	Sources     []string `json:"sources"`
	Keywords    []string `json:"keywords"`
}

// ResearchPlan is the plan stage's output.
type ResearchPlan struct {
	QueryID       uuid.UUID    `json:"query_id"`
	Strategy      string       `json:"strategy"`
	Keywords      []string     `json:"keywords"`
	Steps         []SearchStep `json:"search_steps"`
	EstimatedTime int          `json:"estimated_time"` // seconds
}

// ResultItem is one search result collected during the gather stage.
// RelevanceScore is nil until the scoring pass assigns it; once set it is
// always within [0, 1].
type ResultItem struct {
	QueryID        uuid.UUID  `json:"query_id"`
	Source         string     `json:"source"`
	Title          string     `json:"title"`
	URL            string     `json:"url"`
	Snippet        string     `json:"snippet"`
	Authors        []string   `json:"authors,omitempty"`
	PublishedAt    *time.Time `json:"published_date,omitempty"`
	RelevanceScore *float64   `json:"relevance_score,omitempty"`
}

// Score returns the relevance score, or 0 when unscored.
func (r *ResultItem) Score() float64 {
	if r.RelevanceScore == nil {
		return 0
	}
	return *r.RelevanceScore
}

// SetScore clamps v to [0, 1] and assigns it.
func (r *ResultItem) SetScore(v float64) {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	r.RelevanceScore = &v
}

// QualityAnalysis summarizes how good the collected results are.
type QualityAnalysis struct {
	AvgRelevance     float64 `json:"avg_relevance"`
	HighQualityCount int     `json:"high_quality_count"`
	SourceDiversity  float64 `json:"source_diversity"`
	TotalResults     int     `json:"total_results"`
}

// CoverageAnalysis summarizes how well results cover the planned keywords.
type CoverageAnalysis struct {
	CoverageRatio   float64  `json:"coverage_ratio"`
	CoveredKeywords []string `json:"covered_keywords"`
	MissingKeywords []string `json:"missing_keywords"`
	Gaps            []string `json:"gaps"`
}

// Feedback is the assess stage's output.
type Feedback struct {
	CompletenessScore float64          `json:"completeness_score"`
	Quality           QualityAnalysis  `json:"quality_analysis"`
	Coverage          CoverageAnalysis `json:"coverage_analysis"`
	Recommendations   []string         `json:"recommendations"`
	Sufficient        bool             `json:"is_sufficient"`
	Summary           string           `json:"summary"`
}

// Citation points at a source used in the synthesized answer.
type Citation struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	URL    string `json:"url"`
	Number int    `json:"citation_number"`
}

// Section is one heading-delimited block of the answer.
type Section struct {
	Heading   string `json:"heading"`
	Content   string `json:"content"`
	Citations []int  `json:"citations"`
}

// AnswerMetadata carries counts about the synthesized answer.
type AnswerMetadata struct {
	TotalSources int            `json:"total_sources"`
	BySource     map[string]int `json:"by_source"`
	WordCount    int            `json:"word_count"`
	GeneratedAt  time.Time      `json:"generated_at"`
}

// Answer is the synthesize stage's output.
type Answer struct {
	QueryID   uuid.UUID      `json:"query_id"`
	Content   string         `json:"content"`
	Citations []Citation     `json:"citations"`
	Sections  []Section      `json:"sections"`
	Metadata  AnswerMetadata `json:"metadata"`
}
