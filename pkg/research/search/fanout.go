// Package search runs the gather stage's concurrent work: fanning a step out
// to every enabled provider and scoring the combined results. Both halves are
// bounded by their own counting semaphore. Provider calls are I/O-bound
// across distinct rate-limited services, scoring is bound by one LLM
// backend's throughput, so the pools are sized independently.
package search

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	"deep-research-be/internal/pkg/logger"
	"deep-research-be/pkg/events"
	"deep-research-be/pkg/provider"
	"deep-research-be/pkg/store"
)

// DefaultProviderConcurrency bounds in-flight provider calls across the
// whole executor, not per step.
const DefaultProviderConcurrency = 4

const maxPreviews = 3

// FanoutExecutor runs one step's providers concurrently and absorbs their
// failures. Gather never fails: a provider error becomes a "failed" event
// and an empty contribution, and the remaining providers are unaffected.
type FanoutExecutor struct {
	providers map[string]provider.SearchProvider
	sem       *semaphore.Weighted
	logger    logger.ILogger
}

func NewFanoutExecutor(providers []provider.SearchProvider, concurrency int64, log logger.ILogger) *FanoutExecutor {
	if concurrency <= 0 {
		concurrency = DefaultProviderConcurrency
	}
	byName := make(map[string]provider.SearchProvider, len(providers))
	for _, p := range providers {
		byName[p.Name()] = p
	}
	return &FanoutExecutor{
		providers: byName,
		sem:       semaphore.NewWeighted(concurrency),
		logger:    log,
	}
}

// Gather fans the step out to every enabled provider the step's sources name.
// All providers of the step run concurrently, each gated by the executor-wide
// semaphore; the call returns when the whole step has finished.
func (e *FanoutExecutor) Gather(ctx context.Context, query store.ResearchQuery, step store.SearchStep, bus *events.Bus) []store.ResultItem {
	var (
		mu      sync.Mutex
		results []store.ResultItem
		wg      sync.WaitGroup
	)

	for _, source := range step.Sources {
		p, ok := e.providers[source]
		if !ok {
			e.logger.Warn("FanoutExecutor", "No provider configured for source", map[string]interface{}{
				"source": source,
				"step":   step.Number,
			})
			continue
		}

		wg.Add(1)
		go func(p provider.SearchProvider) {
			defer wg.Done()
			items := e.searchOne(ctx, p, query, step, bus)
			if len(items) == 0 {
				return
			}
			mu.Lock()
			results = append(results, items...)
			mu.Unlock()
		}(p)
	}

	wg.Wait()
	return results
}

// searchOne performs a single provider call under the semaphore. Failures
// are reported as events and logged, never returned.
func (e *FanoutExecutor) searchOne(ctx context.Context, p provider.SearchProvider, query store.ResearchQuery, step store.SearchStep, bus *events.Bus) []store.ResultItem {
	if err := e.sem.Acquire(ctx, 1); err != nil {
		e.publishFailed(bus, p.Name(), step, err.Error())
		return nil
	}
	defer e.sem.Release(1)

	bus.Publish(events.ProgressEvent{
		Type:     events.KindSearching,
		Provider: p.Name(),
		Step:     step.Number,
		Query:    query.Content,
		Keywords: step.Keywords,
	})

	callCtx, cancel := context.WithTimeout(ctx, p.Timeout())
	defer cancel()

	items, err := p.Search(callCtx, step.Keywords)
	if err != nil {
		e.logger.Error("FanoutExecutor", "Provider search failed", map[string]interface{}{
			"provider": p.Name(),
			"step":     step.Number,
			"error":    err.Error(),
		})
		e.publishFailed(bus, p.Name(), step, err.Error())
		return nil
	}

	for i := range items {
		items[i].QueryID = query.ID
	}

	bus.Publish(events.ProgressEvent{
		Type:         events.KindCompleted,
		Provider:     p.Name(),
		Step:         step.Number,
		Keywords:     step.Keywords,
		ResultsCount: len(items),
		Results:      previews(items),
	})
	return items
}

func (e *FanoutExecutor) publishFailed(bus *events.Bus, providerName string, step store.SearchStep, errText string) {
	bus.Publish(events.ProgressEvent{
		Type:     events.KindFailed,
		Provider: providerName,
		Step:     step.Number,
		Keywords: step.Keywords,
		Error:    errText,
	})
}

func previews(items []store.ResultItem) []events.ResultPreview {
	n := len(items)
	if n > maxPreviews {
		n = maxPreviews
	}
	out := make([]events.ResultPreview, 0, n)
	for _, item := range items[:n] {
		out = append(out, events.ResultPreview{
			Title:   item.Title,
			URL:     item.URL,
			Snippet: item.Snippet,
		})
	}
	return out
}
