// Simulation runs the full research pipeline offline against stub search
// providers and a scripted LLM, printing every progress event. Useful for
// demoing the event stream without API keys or a running server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"deep-research-be/internal/pkg/logger"
	"deep-research-be/pkg/events"
	"deep-research-be/pkg/llm"
	"deep-research-be/pkg/provider"
	"deep-research-be/pkg/research/executor"
	"deep-research-be/pkg/research/search"
	"deep-research-be/pkg/research/stage"
	"deep-research-be/pkg/research/state"
	"deep-research-be/pkg/store"

	"github.com/fatih/color"
)

// scriptedLLM answers keyword prompts with a fixed list and fails synthesis
// prompts, so the run exercises both the LLM path and the deterministic
// fallbacks.
type scriptedLLM struct{}

func (s *scriptedLLM) Chat(ctx context.Context, history []llm.Message, options ...llm.Option) (string, error) {
	last := history[len(history)-1].Content
	if strings.Contains(last, "Extract") {
		return "quantum computing, qubits, superposition, entanglement, quantum algorithms, error correction, decoherence", nil
	}
	return "", errors.New("scripted model refuses synthesis prompts")
}

func (s *scriptedLLM) Generate(ctx context.Context, prompt string, options ...llm.Option) (string, error) {
	return s.Chat(ctx, []llm.Message{{Role: "user", Content: prompt}}, options...)
}

func main() {
	color.Cyan("=== Deep Research Pipeline Simulation ===")

	sysLogger := logger.NewIsolatedLogger("logs/simulation.log")
	defer sysLogger.Sync()

	providers := []provider.SearchProvider{
		provider.NewStubProvider(store.SourceGoogle, []store.ResultItem{
			{Title: "Quantum computing explained", URL: "https://example.com/qc", Snippet: "An introduction to quantum computing, qubits and superposition."},
			{Title: "Quantum algorithms survey", URL: "https://example.com/algos", Snippet: "Shor, Grover and the state of quantum algorithms."},
			{Title: "Error correction basics", URL: "https://example.com/ecc", Snippet: "Why quantum error correction matters for scaling."},
		}).WithDelay(150 * time.Millisecond),
		provider.NewStubProvider(store.SourceArxiv, []store.ResultItem{
			{Title: "A Survey of Quantum Error Correction", URL: "https://arxiv.org/abs/0000.00001", Snippet: "Recent research on fault-tolerant quantum computation."},
			{Title: "Entanglement in Many-Body Systems", URL: "https://arxiv.org/abs/0000.00002", Snippet: "Study of entanglement and decoherence."},
		}).WithDelay(300 * time.Millisecond),
		provider.NewStubProvider(store.SourceDuckDuckGo, nil).
			WithError(errors.New("simulated provider outage")),
	}

	model := &scriptedLLM{}
	fanout := search.NewFanoutExecutor(providers, search.DefaultProviderConcurrency, sysLogger)
	// nil judge: relevance scoring uses the deterministic keyword fallback
	scorer := search.NewRelevanceScorer(nil, search.DefaultScoringConcurrency, sysLogger)

	runner := executor.NewSequencer(
		stage.NewPlanStage(model, sysLogger),
		stage.NewGatherStage(fanout, scorer, sysLogger),
		stage.NewAssessStage(sysLogger),
		stage.NewSynthesizeStage(model, sysLogger),
		sysLogger,
	)

	session := store.NewSession(
		"What are the main challenges in scaling quantum computing research?",
		[]string{store.SourceGoogle, store.SourceArxiv, store.SourceDuckDuckGo},
	)

	st := state.New()
	st.Set(store.KeyQuery, store.ResearchQuery{
		ID:        session.ID,
		Content:   session.Query,
		Sources:   session.Sources,
		CreatedAt: session.CreatedAt,
	})

	pubSub := events.NewPubSub(64)
	bus := events.NewBus(pubSub, session.ID.String())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, err := bus.Subscribe(ctx)
	if err != nil {
		log.Fatalf("subscribe failed: %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for ev := range stream {
			printEvent(ev)
		}
	}()

	color.White("Session %s", session.ID)
	color.White("Query: %s\n", session.Query)

	start := time.Now()
	if err := runner.Run(context.Background(), session, st, bus); err != nil {
		color.Red("Pipeline failed: %v", err)
	}
	elapsed := time.Since(start)

	cancel()
	wg.Wait()

	fmt.Println()
	color.Cyan("=== Result (%v) ===", elapsed.Round(time.Millisecond))

	if answer, ok := st.Lookup(store.KeyAnswer); ok {
		a := answer.(store.Answer)
		fmt.Println(a.Content)
		fmt.Println()
		color.Yellow("%d citations, %d sections, %d words",
			len(a.Citations), len(a.Sections), a.Metadata.WordCount)
	}
	if feedback, ok := st.Lookup(store.KeyFeedback); ok {
		f := feedback.(store.Feedback)
		color.Yellow("Completeness: %.0f%% (sufficient: %v)", f.CompletenessScore*100, f.Sufficient)
	}
}

func printEvent(ev events.ProgressEvent) {
	ts := ev.Timestamp.Format("15:04:05.000")
	switch ev.Type {
	case events.KindStageStart:
		color.Blue("[%s] stage %d (%s) started", ts, ev.Step+1, ev.Agent)
	case events.KindStageComplete:
		color.Green("[%s] stage %d (%s) completed", ts, ev.Step+1, ev.Agent)
	case events.KindStageFailed:
		color.Red("[%s] stage %d (%s) FAILED: %s", ts, ev.Step+1, ev.Agent, ev.Error)
	case events.KindSearching:
		color.White("[%s]   %s searching step %d: %s", ts, ev.Provider, ev.Step, strings.Join(ev.Keywords, ", "))
	case events.KindCompleted:
		color.Green("[%s]   %s returned %d results", ts, ev.Provider, ev.ResultsCount)
		for _, r := range ev.Results {
			fmt.Printf("             - %s\n", r.Title)
		}
	case events.KindFailed:
		color.Red("[%s]   %s failed: %s", ts, ev.Provider, ev.Error)
	default:
		color.White("[%s] %s", ts, ev.Type)
	}
}
