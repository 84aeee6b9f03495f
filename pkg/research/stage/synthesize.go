package stage

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"deep-research-be/internal/pkg/logger"
	"deep-research-be/pkg/events"
	"deep-research-be/pkg/llm"
	"deep-research-be/pkg/research/state"
	"deep-research-be/pkg/store"
)

// ErrNoResults aborts synthesis: unlike assessment, an answer cannot be
// produced from nothing.
var ErrNoResults = errors.New("no search results available for synthesis")

const synthesisSystemPrompt = "You are a research assistant that synthesizes information from multiple sources into comprehensive, well-cited answers. Use markdown formatting with '## ' section headings and cite sources inline as [1], [2], etc."

// maxCitations bounds how many of the top-scored results feed the answer.
const maxCitations = 10

var citationPattern = regexp.MustCompile(`\[(\d+)\]`)

// SynthesizeStage composes the final answer from the highest-scored results,
// preferring an LLM-written draft and degrading to a deterministic summary
// when the model is unavailable.
type SynthesizeStage struct {
	llm    llm.LLMProvider
	logger logger.ILogger
}

func NewSynthesizeStage(provider llm.LLMProvider, log logger.ILogger) *SynthesizeStage {
	return &SynthesizeStage{llm: provider, logger: log}
}

func (s *SynthesizeStage) Name() string { return "synthesize" }

func (s *SynthesizeStage) Key() string { return store.KeyAnswer }

func (s *SynthesizeStage) Produce(ctx context.Context, st *state.Store, bus *events.Bus) (any, error) {
	queryVal, ok := st.Lookup(store.KeyQuery)
	if !ok {
		return nil, ErrMissingQuery
	}
	query, ok := queryVal.(store.ResearchQuery)
	if !ok {
		return nil, fmt.Errorf("unexpected query type %T in shared state", queryVal)
	}

	results, _ := st.Get(store.KeyResults, []store.ResultItem(nil)).([]store.ResultItem)
	if len(results) == 0 {
		return nil, ErrNoResults
	}

	feedback, _ := st.Get(store.KeyFeedback, store.Feedback{}).(store.Feedback)

	top := topResults(results, maxCitations)
	citations := buildCitations(top)

	content := s.generateContent(ctx, query.Content, top, feedback)
	if content == "" {
		content = fallbackContent(query.Content, top, feedback)
	}

	answer := store.Answer{
		QueryID:   query.ID,
		Content:   content,
		Citations: citations,
		Sections:  parseSections(content),
		Metadata: store.AnswerMetadata{
			TotalSources: len(top),
			BySource:     countBySource(top),
			WordCount:    len(strings.Fields(content)),
			GeneratedAt:  time.Now(),
		},
	}

	s.logger.Info("SynthesizeStage", "Answer synthesized", map[string]interface{}{
		"query_id":  query.ID,
		"citations": len(citations),
		"sections":  len(answer.Sections),
		"words":     answer.Metadata.WordCount,
	})
	return answer, nil
}

// topResults returns the n highest-scored results without mutating the
// stored slice.
func topResults(results []store.ResultItem, n int) []store.ResultItem {
	sorted := append([]store.ResultItem(nil), results...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Score() > sorted[j].Score()
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

func buildCitations(results []store.ResultItem) []store.Citation {
	citations := make([]store.Citation, 0, len(results))
	for i, r := range results {
		citations = append(citations, store.Citation{
			ID:     fmt.Sprintf("cite-%d", i+1),
			Title:  r.Title,
			URL:    r.URL,
			Number: i + 1,
		})
	}
	return citations
}

// generateContent drafts the answer with the LLM. An empty return means the
// caller should use the deterministic fallback.
func (s *SynthesizeStage) generateContent(ctx context.Context, query string, results []store.ResultItem, feedback store.Feedback) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Research question: %s\n\n", query)
	if feedback.Summary != "" {
		fmt.Fprintf(&b, "Assessment: %s\n\n", feedback.Summary)
	}
	b.WriteString("Sources:\n")
	for i, r := range results {
		fmt.Fprintf(&b, "[%d] %s (%s)\n%s\n\n", i+1, r.Title, r.Source, r.Snippet)
	}
	b.WriteString("Write a comprehensive, well-structured answer to the research question using these sources. Cite them inline with their [n] numbers.")

	reply, err := s.llm.Chat(ctx, []llm.Message{
		{Role: "system", Content: synthesisSystemPrompt},
		{Role: "user", Content: b.String()},
	}, llm.WithTemperature(0.4))
	if err != nil {
		s.logger.Warn("SynthesizeStage", "LLM synthesis failed, using fallback summary", map[string]interface{}{
			"error": err.Error(),
		})
		return ""
	}
	return strings.TrimSpace(reply)
}

// fallbackContent assembles a citation-backed markdown summary directly from
// the result snippets.
func fallbackContent(query string, results []store.ResultItem, feedback store.Feedback) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Research Summary: %s\n\n", query)

	b.WriteString("## Overview\n\n")
	fmt.Fprintf(&b, "This summary is compiled from %d sources", len(results))
	if feedback.CompletenessScore > 0 {
		fmt.Fprintf(&b, " with an estimated completeness of %d%%", int(feedback.CompletenessScore*100))
	}
	b.WriteString(".\n\n")

	b.WriteString("## Key Findings\n\n")
	for i, r := range results {
		snippet := r.Snippet
		if snippet == "" {
			snippet = r.Title
		}
		fmt.Fprintf(&b, "- %s [%d]\n", snippet, i+1)
	}
	b.WriteString("\n## Sources\n\n")
	for i, r := range results {
		fmt.Fprintf(&b, "%d. [%s](%s)\n", i+1, r.Title, r.URL)
	}
	return b.String()
}

// parseSections splits markdown content on "## " headings and records which
// citations each section references. Text before the first heading becomes an
// "Introduction" section.
func parseSections(content string) []store.Section {
	var sections []store.Section
	add := func(heading, body string) {
		body = strings.TrimSpace(body)
		sections = append(sections, store.Section{
			Heading:   heading,
			Content:   body,
			Citations: extractCitations(body),
		})
	}

	parts := strings.Split(content, "\n## ")
	if strings.HasPrefix(content, "## ") {
		parts = strings.Split(content[3:], "\n## ")
		for _, part := range parts {
			heading, body, _ := strings.Cut(part, "\n")
			add(strings.TrimSpace(heading), body)
		}
		return sections
	}

	if intro := strings.TrimSpace(parts[0]); intro != "" {
		add("Introduction", intro)
	}
	for _, part := range parts[1:] {
		heading, body, _ := strings.Cut(part, "\n")
		add(strings.TrimSpace(heading), body)
	}
	return sections
}

// extractCitations collects the distinct [n] references in order of first
// appearance.
func extractCitations(text string) []int {
	seen := make(map[int]struct{})
	var nums []int
	for _, m := range citationPattern.FindAllStringSubmatch(text, -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		nums = append(nums, n)
	}
	return nums
}
