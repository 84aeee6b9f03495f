package llm

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

const judgeSystemPrompt = "You are a helpful assistant that evaluates the relevance of search results. Return only a number between 0.0 and 1.0."

// RelevanceJudge asks an LLM how relevant a search result is to a query.
// It satisfies the scorer's Judge interface.
type RelevanceJudge struct {
	provider LLMProvider
}

func NewRelevanceJudge(provider LLMProvider) *RelevanceJudge {
	return &RelevanceJudge{provider: provider}
}

// Relevance returns a score in [0, 1]. A reply that is not a bare number is
// an error; the caller falls back to its heuristic in that case.
func (j *RelevanceJudge) Relevance(ctx context.Context, query, title, snippet string) (float64, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Query: %s\n\n", query)
	if title != "" {
		fmt.Fprintf(&b, "Title: %s\n\n", title)
	}
	fmt.Fprintf(&b, "Snippet: %s\n\n", snippet)
	b.WriteString("How relevant is this result to the query? (0.0 - 1.0)")

	reply, err := j.provider.Chat(ctx, []Message{
		{Role: "system", Content: judgeSystemPrompt},
		{Role: "user", Content: b.String()},
	}, WithTemperature(0), WithMaxTokens(10))
	if err != nil {
		return 0, fmt.Errorf("relevance judge: %w", err)
	}

	score, err := strconv.ParseFloat(strings.TrimSpace(reply), 64)
	if err != nil {
		return 0, fmt.Errorf("relevance judge: unparseable reply %q: %w", reply, err)
	}
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return score, nil
}
