package stage

import (
	"context"
	"errors"
	"fmt"

	"deep-research-be/internal/pkg/logger"
	"deep-research-be/pkg/events"
	"deep-research-be/pkg/research/search"
	"deep-research-be/pkg/research/state"
	"deep-research-be/pkg/store"
)

// ErrMissingPlan is raised when the gather stage runs without a prior plan
// output, before any provider is called.
var ErrMissingPlan = errors.New("research plan not found in shared state")

// GatherStage executes the plan's search steps. Steps run sequentially; the
// providers within a step run concurrently via the fan-out executor. The
// combined results are scored once and written sorted by score descending.
type GatherStage struct {
	fanout *search.FanoutExecutor
	scorer *search.RelevanceScorer
	logger logger.ILogger
}

func NewGatherStage(fanout *search.FanoutExecutor, scorer *search.RelevanceScorer, log logger.ILogger) *GatherStage {
	return &GatherStage{fanout: fanout, scorer: scorer, logger: log}
}

func (s *GatherStage) Name() string { return "gather" }

func (s *GatherStage) Key() string { return store.KeyResults }

func (s *GatherStage) Produce(ctx context.Context, st *state.Store, bus *events.Bus) (any, error) {
	planVal, ok := st.Lookup(store.KeyPlan)
	if !ok {
		return nil, ErrMissingPlan
	}
	plan, ok := planVal.(store.ResearchPlan)
	if !ok {
		return nil, fmt.Errorf("unexpected plan type %T in shared state", planVal)
	}

	queryVal, ok := st.Lookup(store.KeyQuery)
	if !ok {
		return nil, ErrMissingQuery
	}
	query := queryVal.(store.ResearchQuery)

	var all []store.ResultItem
	for _, step := range plan.Steps {
		stepResults := s.fanout.Gather(ctx, query, step, bus)
		all = append(all, stepResults...)
	}

	all = dedupeByURL(all)
	scored := s.scorer.Score(ctx, query.Content, all)

	s.logger.Info("GatherStage", "Gathering finished", map[string]interface{}{
		"query_id":  query.ID,
		"steps":     len(plan.Steps),
		"results":   len(scored),
		"by_source": countBySource(scored),
	})
	return scored, nil
}

// dedupeByURL keeps the first occurrence of each URL, preserving order.
func dedupeByURL(items []store.ResultItem) []store.ResultItem {
	seen := make(map[string]struct{}, len(items))
	out := items[:0]
	for _, item := range items {
		if _, dup := seen[item.URL]; dup {
			continue
		}
		seen[item.URL] = struct{}{}
		out = append(out, item)
	}
	return out
}

func countBySource(items []store.ResultItem) map[string]int {
	counts := make(map[string]int)
	for _, item := range items {
		counts[item.Source]++
	}
	return counts
}
