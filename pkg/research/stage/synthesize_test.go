package stage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"deep-research-be/pkg/research/state"
	"deep-research-be/pkg/store"
)

func synthesisFixture(model *fakeLLM, results []store.ResultItem) (*SynthesizeStage, *state.Store) {
	st := state.New()
	st.Set(store.KeyResults, results)
	return NewSynthesizeStage(model, nopLogger{}), st
}

func TestSynthesizeEmptyResultsFails(t *testing.T) {
	s, st := synthesisFixture(&fakeLLM{}, []store.ResultItem{})
	seedQuery(st, "query", nil)

	_, err := s.Produce(context.Background(), st, silentBus(t))
	if !errors.Is(err, ErrNoResults) {
		t.Errorf("Produce = %v, want ErrNoResults", err)
	}
}

func TestSynthesizeUsesLLMAnswer(t *testing.T) {
	reply := "## Overview\n\nQuantum computing uses qubits [1][2].\n\n## Challenges\n\nDecoherence limits scaling [2][3]."
	model := &fakeLLM{rules: []llmRule{{contains: "Research question", reply: reply}}}

	s, st := synthesisFixture(model, []store.ResultItem{
		scored("intro", "https://1", store.SourceGoogle, 0.9),
		scored("hardware", "https://2", store.SourceArxiv, 0.8),
		scored("scaling", "https://3", store.SourceGoogle, 0.7),
	})
	q := seedQuery(st, "quantum computing challenges", nil)

	out, err := s.Produce(context.Background(), st, silentBus(t))
	if err != nil {
		t.Fatalf("Produce failed: %v", err)
	}
	answer := out.(store.Answer)

	if answer.Content != reply {
		t.Error("answer content differs from LLM reply")
	}
	if answer.QueryID != q.ID {
		t.Error("answer not linked to query")
	}

	if len(answer.Sections) != 2 {
		t.Fatalf("sections = %d, want 2", len(answer.Sections))
	}
	if answer.Sections[0].Heading != "Overview" || answer.Sections[1].Heading != "Challenges" {
		t.Errorf("headings = %q, %q", answer.Sections[0].Heading, answer.Sections[1].Heading)
	}

	wantCites := [][]int{{1, 2}, {2, 3}}
	for i, want := range wantCites {
		got := answer.Sections[i].Citations
		if len(got) != len(want) {
			t.Fatalf("section %d citations = %v, want %v", i, got, want)
		}
		for j := range want {
			if got[j] != want[j] {
				t.Errorf("section %d citation %d = %d, want %d", i, j, got[j], want[j])
			}
		}
	}
}

func TestSynthesizeFallbackOnLLMFailure(t *testing.T) {
	model := &fakeLLM{err: errors.New("model offline")}

	s, st := synthesisFixture(model, []store.ResultItem{
		scored("quantum basics", "https://1", store.SourceGoogle, 0.9),
		scored("qubit design", "https://2", store.SourceArxiv, 0.7),
	})
	seedQuery(st, "quantum computing", nil)

	out, err := s.Produce(context.Background(), st, silentBus(t))
	if err != nil {
		t.Fatalf("Produce failed: %v", err)
	}
	answer := out.(store.Answer)

	if answer.Content == "" {
		t.Fatal("fallback produced no content")
	}
	if !strings.Contains(answer.Content, "## Key Findings") {
		t.Error("fallback missing findings section")
	}
	if !strings.Contains(answer.Content, "[1]") {
		t.Error("fallback missing citation markers")
	}
	if len(answer.Sections) == 0 {
		t.Error("fallback content not parsed into sections")
	}
}

func TestSynthesizeCitesTopTenByScore(t *testing.T) {
	var results []store.ResultItem
	for i := 0; i < 15; i++ {
		results = append(results, scored(
			fmt.Sprintf("result-%d", i),
			fmt.Sprintf("https://r/%d", i),
			store.SourceGoogle,
			float64(i)/15.0,
		))
	}

	model := &fakeLLM{rules: []llmRule{{contains: "Research question", reply: "## Answer\n\nText [1]."}}}
	s, st := synthesisFixture(model, results)
	seedQuery(st, "query", nil)

	out, err := s.Produce(context.Background(), st, silentBus(t))
	if err != nil {
		t.Fatalf("Produce failed: %v", err)
	}
	answer := out.(store.Answer)

	if len(answer.Citations) != 10 {
		t.Fatalf("citations = %d, want 10", len(answer.Citations))
	}
	// highest scored result is result-14
	if answer.Citations[0].Title != "result-14" {
		t.Errorf("top citation = %q, want result-14", answer.Citations[0].Title)
	}
	for i, c := range answer.Citations {
		if c.Number != i+1 {
			t.Errorf("citation %d numbered %d", i, c.Number)
		}
	}
	if answer.Metadata.TotalSources != 10 {
		t.Errorf("total sources = %d, want 10", answer.Metadata.TotalSources)
	}
}

func TestParseSectionsLeadingTextBecomesIntroduction(t *testing.T) {
	content := "Some introduction text [1].\n\n## Details\n\nBody [2]."
	sections := parseSections(content)

	if len(sections) != 2 {
		t.Fatalf("sections = %d, want 2", len(sections))
	}
	if sections[0].Heading != "Introduction" {
		t.Errorf("intro heading = %q, want Introduction", sections[0].Heading)
	}
	if len(sections[0].Citations) != 1 || sections[0].Citations[0] != 1 {
		t.Errorf("intro citations = %v, want [1]", sections[0].Citations)
	}
	if sections[1].Heading != "Details" {
		t.Errorf("second heading = %q", sections[1].Heading)
	}

	// content that opens with a heading has no introduction section
	headed := parseSections("## Details\n\nBody [2].")
	if len(headed) != 1 || headed[0].Heading != "Details" {
		t.Errorf("sections = %+v, want single Details section", headed)
	}
}

func TestExtractCitationsDedupesInOrder(t *testing.T) {
	got := extractCitations("See [2] and [1], also [2] again and [10].")
	want := []int{2, 1, 10}
	if len(got) != len(want) {
		t.Fatalf("citations = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("citation %d = %d, want %d", i, got[i], want[i])
		}
	}
}
