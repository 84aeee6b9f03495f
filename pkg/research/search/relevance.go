package search

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/semaphore"

	"deep-research-be/internal/pkg/logger"
	"deep-research-be/pkg/store"
)

// DefaultScoringConcurrency bounds in-flight judge calls. Independent from
// the provider pool: scoring throughput is limited by a single LLM backend.
const DefaultScoringConcurrency = 6

// Judge estimates how relevant a result is to the query, in [0, 1].
type Judge interface {
	Relevance(ctx context.Context, query, title, snippet string) (float64, error)
}

// RelevanceScorer assigns a relevance score to every result. A judge failure
// degrades to the deterministic fallback heuristic; Score never fails.
type RelevanceScorer struct {
	judge  Judge
	sem    *semaphore.Weighted
	logger logger.ILogger
}

func NewRelevanceScorer(judge Judge, concurrency int64, log logger.ILogger) *RelevanceScorer {
	if concurrency <= 0 {
		concurrency = DefaultScoringConcurrency
	}
	return &RelevanceScorer{
		judge:  judge,
		sem:    semaphore.NewWeighted(concurrency),
		logger: log,
	}
}

// Score scores all results concurrently under the scoring semaphore, then
// returns them sorted by score descending. The sort is stable: equal scores
// keep their pre-sort relative order. Completion order of individual judge
// calls does not matter.
func (s *RelevanceScorer) Score(ctx context.Context, query string, results []store.ResultItem) []store.ResultItem {
	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func(item *store.ResultItem) {
			defer wg.Done()
			item.SetScore(s.scoreOne(ctx, query, item))
		}(&results[i])
	}
	wg.Wait()

	SortByScore(results)
	return results
}

func (s *RelevanceScorer) scoreOne(ctx context.Context, query string, item *store.ResultItem) float64 {
	if s.judge == nil {
		return FallbackScore(query, item.Title, item.Snippet)
	}

	if err := s.sem.Acquire(ctx, 1); err != nil {
		return FallbackScore(query, item.Title, item.Snippet)
	}
	defer s.sem.Release(1)

	score, err := s.judge.Relevance(ctx, query, item.Title, item.Snippet)
	if err != nil {
		s.logger.Warn("RelevanceScorer", "Judge failed, using fallback heuristic", map[string]interface{}{
			"title": item.Title,
			"error": err.Error(),
		})
		return FallbackScore(query, item.Title, item.Snippet)
	}
	return score
}

// SortByScore sorts results by relevance score descending, stable on ties.
func SortByScore(results []store.ResultItem) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score() > results[j].Score()
	})
}

// FallbackScore is the deterministic term-overlap heuristic used when the
// judge is unavailable: matched query terms over total terms (0.5 for an
// empty query), boosted by title matches, clamped to [0, 1].
func FallbackScore(query, title, snippet string) float64 {
	terms := uniqueTerms(query)
	if len(terms) == 0 {
		return 0.5
	}

	text := strings.ToLower(title + " " + snippet)
	matches := 0
	for _, term := range terms {
		if strings.Contains(text, term) {
			matches++
		}
	}
	score := float64(matches) / float64(len(terms))

	titleLower := strings.ToLower(title)
	titleMatches := 0
	for _, term := range terms {
		if strings.Contains(titleLower, term) {
			titleMatches++
		}
	}
	if titleMatches > 0 {
		score = math.Min(1.0, score+float64(titleMatches)/float64(len(terms))*0.2)
	}

	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

func uniqueTerms(query string) []string {
	seen := make(map[string]struct{})
	var terms []string
	for _, field := range strings.Fields(strings.ToLower(query)) {
		if _, ok := seen[field]; ok {
			continue
		}
		seen[field] = struct{}{}
		terms = append(terms, field)
	}
	return terms
}
