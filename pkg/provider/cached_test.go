package provider

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"deep-research-be/pkg/store"
)

// countingProvider tracks upstream calls so tests can observe cache hits.
type countingProvider struct {
	*StubProvider
	calls atomic.Int32
}

func (p *countingProvider) Search(ctx context.Context, keywords []string) ([]store.ResultItem, error) {
	p.calls.Add(1)
	return p.StubProvider.Search(ctx, keywords)
}

func TestCachedServesRepeatQueriesFromCache(t *testing.T) {
	inner := &countingProvider{StubProvider: NewStubProvider("google", []store.ResultItem{
		{Title: "one", URL: "https://1"},
		{Title: "two", URL: "https://2"},
	})}
	c := NewCached(inner, time.Minute)

	first, err := c.Search(context.Background(), []string{"go", "concurrency"})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	second, err := c.Search(context.Background(), []string{"go", "concurrency"})
	if err != nil {
		t.Fatalf("repeat Search failed: %v", err)
	}

	if got := inner.calls.Load(); got != 1 {
		t.Errorf("upstream calls = %d, want 1", got)
	}
	if len(first) != 2 || len(second) != 2 {
		t.Fatalf("result lengths = %d, %d", len(first), len(second))
	}

	// callers must not be able to corrupt cached entries
	second[0].Title = "mutated"
	third, err := c.Search(context.Background(), []string{"go", "concurrency"})
	if err != nil {
		t.Fatalf("third Search failed: %v", err)
	}
	if third[0].Title != "one" {
		t.Errorf("cached entry mutated through returned slice: %q", third[0].Title)
	}
}

func TestCachedKeysByKeywordsAndProvider(t *testing.T) {
	inner := &countingProvider{StubProvider: NewStubProvider("google", []store.ResultItem{
		{Title: "one", URL: "https://1"},
	})}
	c := NewCached(inner, time.Minute)

	if _, err := c.Search(context.Background(), []string{"go"}); err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if _, err := c.Search(context.Background(), []string{"rust"}); err != nil {
		t.Fatalf("Search failed: %v", err)
	}

	if got := inner.calls.Load(); got != 2 {
		t.Errorf("upstream calls = %d, want 2 for distinct keywords", got)
	}
}

func TestCachedDoesNotCacheFailures(t *testing.T) {
	upstreamErr := errors.New("quota exceeded")
	inner := &countingProvider{StubProvider: NewStubProvider("bing", nil).WithError(upstreamErr)}
	c := NewCached(inner, time.Minute)

	for i := 0; i < 2; i++ {
		if _, err := c.Search(context.Background(), []string{"go"}); !errors.Is(err, upstreamErr) {
			t.Fatalf("Search error = %v, want upstream error", err)
		}
	}
	if got := inner.calls.Load(); got != 2 {
		t.Errorf("upstream calls = %d, want 2 (errors must not be cached)", got)
	}
}

func TestCachedDelegatesNameAndTimeout(t *testing.T) {
	inner := NewStubProvider("arxiv", nil).WithTimeout(3 * time.Second)
	c := NewCached(inner, time.Minute)

	if c.Name() != "arxiv" {
		t.Errorf("Name = %q", c.Name())
	}
	if c.Timeout() != 3*time.Second {
		t.Errorf("Timeout = %v", c.Timeout())
	}
}
