// Package stage implements the four pipeline stages. Each stage reads its
// inputs from the session's shared state and returns a single output the
// sequencer stores under the stage's key.
package stage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"deep-research-be/internal/pkg/logger"
	"deep-research-be/pkg/events"
	"deep-research-be/pkg/llm"
	"deep-research-be/pkg/research/state"
	"deep-research-be/pkg/store"
)

// ErrMissingQuery is a fatal precondition: the controller always seeds the
// query before starting a run.
var ErrMissingQuery = errors.New("query not found in shared state")

const keywordSystemPrompt = "You are a helpful assistant that extracts relevant keywords for research queries. Return keywords as a comma-separated list."

const (
	maxKeywords      = 10
	fallbackKeywords = 5
	maxSteps         = 3
)

// Queries with academic wording get arXiv added to the source set.
var academicIndicators = []string{
	"paper", "research", "study", "journal", "arxiv",
	"publication", "academic", "scientific", "theory",
	"quantum", "physics", "mathematics", "computer science",
}

// PlanStage turns the research question into keywords and a step-by-step
// search plan.
type PlanStage struct {
	llm    llm.LLMProvider
	logger logger.ILogger
}

func NewPlanStage(provider llm.LLMProvider, log logger.ILogger) *PlanStage {
	return &PlanStage{llm: provider, logger: log}
}

func (s *PlanStage) Name() string { return "plan" }

func (s *PlanStage) Key() string { return store.KeyPlan }

func (s *PlanStage) Produce(ctx context.Context, st *state.Store, bus *events.Bus) (any, error) {
	queryVal, ok := st.Lookup(store.KeyQuery)
	if !ok {
		return nil, ErrMissingQuery
	}
	query, ok := queryVal.(store.ResearchQuery)
	if !ok {
		return nil, fmt.Errorf("unexpected query type %T in shared state", queryVal)
	}

	keywords := s.generateKeywords(ctx, query.Content)
	sources := determineSources(query, keywords)
	steps := buildSteps(keywords, sources)

	plan := store.ResearchPlan{
		QueryID:       query.ID,
		Strategy:      strategySummary(query.Content, steps),
		Keywords:      keywords,
		Steps:         steps,
		EstimatedTime: estimateTime(steps),
	}

	s.logger.Info("PlanStage", "Research plan created", map[string]interface{}{
		"query_id": query.ID,
		"keywords": len(keywords),
		"steps":    len(steps),
		"sources":  sources,
	})
	return plan, nil
}

// generateKeywords asks the LLM for keywords and degrades to the first few
// query words when the model is unavailable or returns nothing.
func (s *PlanStage) generateKeywords(ctx context.Context, query string) []string {
	var keywords []string

	reply, err := s.llm.Chat(ctx, []llm.Message{
		{Role: "system", Content: keywordSystemPrompt},
		{Role: "user", Content: fmt.Sprintf("Extract 5-10 relevant keywords for this research question: %s", query)},
	}, llm.WithTemperature(0.3))
	if err != nil {
		s.logger.Warn("PlanStage", "Keyword generation failed, falling back to query words", map[string]interface{}{
			"error": err.Error(),
		})
	} else {
		for _, part := range strings.Split(reply, ",") {
			if kw := strings.TrimSpace(part); kw != "" {
				keywords = append(keywords, kw)
			}
		}
	}

	if len(keywords) == 0 {
		words := strings.Fields(query)
		if len(words) > fallbackKeywords {
			words = words[:fallbackKeywords]
		}
		keywords = words
	}
	if len(keywords) > maxKeywords {
		keywords = keywords[:maxKeywords]
	}
	return keywords
}

// determineSources starts from the sources the caller asked for (google by
// default) and adds arXiv when the query reads academic.
func determineSources(query store.ResearchQuery, keywords []string) []string {
	sources := query.Sources
	if len(sources) == 0 {
		sources = []string{store.SourceGoogle}
	}

	queryLower := strings.ToLower(query.Content)
	keywordText := strings.ToLower(strings.Join(keywords, " "))

	academic := false
	for _, indicator := range academicIndicators {
		if strings.Contains(queryLower, indicator) || strings.Contains(keywordText, indicator) {
			academic = true
			break
		}
	}
	if academic && !containsSource(sources, store.SourceArxiv) {
		sources = append(sources, store.SourceArxiv)
	}
	return sources
}

func containsSource(sources []string, name string) bool {
	for _, s := range sources {
		if s == name {
			return true
		}
	}
	return false
}

// buildSteps groups keywords into at most three search steps. Every step
// uses the full source set.
func buildSteps(keywords, sources []string) []store.SearchStep {
	groups := groupKeywords(keywords)
	steps := make([]store.SearchStep, 0, len(groups))
	for i, group := range groups {
		steps = append(steps, store.SearchStep{
			Number:      i + 1,
			Description: fmt.Sprintf("Search for: %s", strings.Join(group, ", ")),
			Sources:     append([]string(nil), sources...),
			Keywords:    group,
		})
	}
	return steps
}

func groupKeywords(keywords []string) [][]string {
	if len(keywords) == 0 {
		return nil
	}
	chunk := len(keywords) / maxSteps
	if chunk < 3 {
		chunk = 3
	}

	var groups [][]string
	for i := 0; i < len(keywords) && len(groups) < maxSteps; i += chunk {
		end := i + chunk
		if end > len(keywords) {
			end = len(keywords)
		}
		groups = append(groups, keywords[i:end])
	}
	return groups
}

func strategySummary(query string, steps []store.SearchStep) string {
	seen := make(map[string]struct{})
	var names []string
	for _, step := range steps {
		for _, src := range step.Sources {
			if _, ok := seen[src]; ok {
				continue
			}
			seen[src] = struct{}{}
			names = append(names, src)
		}
	}
	return fmt.Sprintf(
		"Research strategy for '%s': Execute %d search step(s) using %s, focusing on key concepts and related terms.",
		query, len(steps), strings.Join(names, " and "),
	)
}

// estimateTime approximates run time: 10s per step, 5s extra per arXiv step
// for its rate limit, 20s for analysis and synthesis.
func estimateTime(steps []store.SearchStep) int {
	total := len(steps)*10 + 20
	for _, step := range steps {
		if containsSource(step.Sources, store.SourceArxiv) {
			total += 5
		}
	}
	return total
}
