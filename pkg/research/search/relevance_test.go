package search

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"deep-research-be/pkg/store"
)

type stubJudge struct {
	scores map[string]float64
	err    error

	inFlight int64
	peak     int64
	delay    time.Duration
}

func (j *stubJudge) Relevance(ctx context.Context, query, title, snippet string) (float64, error) {
	cur := atomic.AddInt64(&j.inFlight, 1)
	defer atomic.AddInt64(&j.inFlight, -1)
	for {
		old := atomic.LoadInt64(&j.peak)
		if cur <= old || atomic.CompareAndSwapInt64(&j.peak, old, cur) {
			break
		}
	}

	if j.delay > 0 {
		time.Sleep(j.delay)
	}
	if j.err != nil {
		return 0, j.err
	}
	return j.scores[title], nil
}

func TestFallbackScore(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		title   string
		snippet string
		want    float64
	}{
		{
			name:  "empty query",
			query: "",
			title: "anything",
			want:  0.5,
		},
		{
			name:    "no matches",
			query:   "quantum computing",
			title:   "cooking recipes",
			snippet: "how to bake bread",
			want:    0,
		},
		{
			name:    "all terms in title",
			query:   "quantum computing",
			title:   "Quantum Computing Explained",
			snippet: "",
			want:    1.0, // 2/2 matched + title boost, clamped
		},
		{
			name:    "half matched in snippet only",
			query:   "quantum computing",
			title:   "A gentle introduction",
			snippet: "all about quantum physics",
			want:    0.5,
		},
		{
			name:    "snippet match plus title boost",
			query:   "quantum computing",
			title:   "Quantum hardware",
			snippet: "quantum devices",
			want:    0.6, // 1/2 matched + 1/2 * 0.2 title boost
		},
		{
			name:    "duplicate query terms count once",
			query:   "quantum quantum quantum",
			title:   "",
			snippet: "quantum",
			want:    1.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FallbackScore(tt.query, tt.title, tt.snippet)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("FallbackScore(%q, %q, %q) = %v, want %v", tt.query, tt.title, tt.snippet, got, tt.want)
			}
		})
	}
}

func TestScoreWithoutJudgeUsesFallback(t *testing.T) {
	scorer := NewRelevanceScorer(nil, 2, nopLogger{})

	results := []store.ResultItem{
		{Title: "unrelated", Snippet: "nothing here"},
		{Title: "quantum computing intro", Snippet: "quantum computing"},
	}

	scored := scorer.Score(context.Background(), "quantum computing", results)

	if scored[0].Title != "quantum computing intro" {
		t.Errorf("best result = %q, want the matching one", scored[0].Title)
	}
	if scored[0].Score() <= scored[1].Score() {
		t.Errorf("scores not descending: %v, %v", scored[0].Score(), scored[1].Score())
	}
}

func TestScoreJudgeFailureDegradesToFallback(t *testing.T) {
	judge := &stubJudge{err: errors.New("model offline")}
	scorer := NewRelevanceScorer(judge, 2, nopLogger{})

	results := []store.ResultItem{
		{Title: "quantum computing", Snippet: "quantum computing"},
	}
	scored := scorer.Score(context.Background(), "quantum computing", results)

	if scored[0].RelevanceScore == nil {
		t.Fatal("result left unscored")
	}
	if scored[0].Score() != 1.0 {
		t.Errorf("fallback score = %v, want 1.0", scored[0].Score())
	}
}

func TestScoreSortsByJudgeDescending(t *testing.T) {
	judge := &stubJudge{scores: map[string]float64{
		"low": 0.2, "high": 0.9, "mid": 0.5,
	}}
	scorer := NewRelevanceScorer(judge, 2, nopLogger{})

	results := []store.ResultItem{
		{Title: "low"}, {Title: "high"}, {Title: "mid"},
	}
	scored := scorer.Score(context.Background(), "q", results)

	want := []string{"high", "mid", "low"}
	for i, title := range want {
		if scored[i].Title != title {
			t.Errorf("position %d = %q, want %q", i, scored[i].Title, title)
		}
	}
}

func TestScoreStableOnTies(t *testing.T) {
	judge := &stubJudge{scores: map[string]float64{
		"first": 0.5, "second": 0.5, "third": 0.5,
	}}
	scorer := NewRelevanceScorer(judge, 2, nopLogger{})

	results := []store.ResultItem{
		{Title: "first"}, {Title: "second"}, {Title: "third"},
	}
	scored := scorer.Score(context.Background(), "q", results)

	want := []string{"first", "second", "third"}
	for i, title := range want {
		if scored[i].Title != title {
			t.Errorf("position %d = %q, want %q (ties must keep input order)", i, scored[i].Title, title)
		}
	}
}

func TestScoreRespectsConcurrencyBound(t *testing.T) {
	const bound = 3

	judge := &stubJudge{scores: map[string]float64{}, delay: 20 * time.Millisecond}
	scorer := NewRelevanceScorer(judge, bound, nopLogger{})

	results := make([]store.ResultItem, 12)
	for i := range results {
		results[i] = store.ResultItem{Title: fmt.Sprintf("r%d", i)}
	}
	scorer.Score(context.Background(), "q", results)

	if got := atomic.LoadInt64(&judge.peak); got > bound {
		t.Errorf("peak concurrent judge calls = %d, want <= %d", got, bound)
	}
}
