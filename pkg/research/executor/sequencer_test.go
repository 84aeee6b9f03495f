package executor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"deep-research-be/pkg/events"
	"deep-research-be/pkg/research/state"
	"deep-research-be/pkg/store"
)

type nopLogger struct{}

func (nopLogger) Debug(string, string, map[string]interface{}) {}
func (nopLogger) Info(string, string, map[string]interface{})  {}
func (nopLogger) Warn(string, string, map[string]interface{})  {}
func (nopLogger) Error(string, string, map[string]interface{}) {}
func (nopLogger) Sync() error                                  { return nil }

type stubStage struct {
	name   string
	key    string
	output any
	err    error
	block  time.Duration

	calls int64
	order *[]string
	mu    *sync.Mutex
}

func (s *stubStage) Name() string { return s.name }
func (s *stubStage) Key() string  { return s.key }

func (s *stubStage) Produce(ctx context.Context, st *state.Store, bus *events.Bus) (any, error) {
	atomic.AddInt64(&s.calls, 1)
	if s.order != nil {
		s.mu.Lock()
		*s.order = append(*s.order, s.name)
		s.mu.Unlock()
	}
	if s.block > 0 {
		time.Sleep(s.block)
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.output, nil
}

func newTestBus(t *testing.T) *events.Bus {
	t.Helper()
	pubSub := events.NewPubSub(8)
	t.Cleanup(func() { pubSub.Close() })
	return events.NewBus(pubSub, "test")
}

func fourStages(order *[]string, mu *sync.Mutex) (*stubStage, *stubStage, *stubStage, *stubStage) {
	return &stubStage{name: "plan", key: store.KeyPlan, output: "p", order: order, mu: mu},
		&stubStage{name: "gather", key: store.KeyResults, output: "r", order: order, mu: mu},
		&stubStage{name: "assess", key: store.KeyFeedback, output: "f", order: order, mu: mu},
		&stubStage{name: "synthesize", key: store.KeyAnswer, output: "a", order: order, mu: mu}
}

func TestRunExecutesStagesInOrderExactlyOnce(t *testing.T) {
	var order []string
	var mu sync.Mutex
	plan, gather, assess, synth := fourStages(&order, &mu)

	seq := NewSequencer(plan, gather, assess, synth, nopLogger{})
	session := store.NewSession("q", nil)
	st := state.New()

	if err := seq.Run(context.Background(), session, st, newTestBus(t)); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	want := []string{"plan", "gather", "assess", "synthesize"}
	if len(order) != len(want) {
		t.Fatalf("stage calls = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("stage %d = %s, want %s", i, order[i], want[i])
		}
	}

	for _, s := range []*stubStage{plan, gather, assess, synth} {
		if got := atomic.LoadInt64(&s.calls); got != 1 {
			t.Errorf("stage %s ran %d times", s.name, got)
		}
	}

	snap := session.Snapshot()
	if snap.Status != store.StatusCompleted {
		t.Errorf("session status = %s, want completed", snap.Status)
	}
	if snap.FinishedAt == nil {
		t.Error("session has no finish time")
	}
}

func TestRunStoresOutputsUnderStageKeys(t *testing.T) {
	plan, gather, assess, synth := fourStages(nil, nil)
	seq := NewSequencer(plan, gather, assess, synth, nopLogger{})

	st := state.New()
	if err := seq.Run(context.Background(), store.NewSession("q", nil), st, newTestBus(t)); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	for key, want := range map[string]string{
		store.KeyPlan:     "p",
		store.KeyResults:  "r",
		store.KeyFeedback: "f",
		store.KeyAnswer:   "a",
	} {
		if got, ok := st.Lookup(key); !ok || got != want {
			t.Errorf("state[%s] = %v, want %s", key, got, want)
		}
	}
}

func TestRunStageFailureAbortsPipeline(t *testing.T) {
	stageErr := errors.New("no results")
	plan, gather, assess, synth := fourStages(nil, nil)
	gather.err = stageErr

	seq := NewSequencer(plan, gather, assess, synth, nopLogger{})
	session := store.NewSession("q", nil)
	st := state.New()

	err := seq.Run(context.Background(), session, st, newTestBus(t))
	if err == nil {
		t.Fatal("Run did not fail")
	}

	var se *StageError
	if !errors.As(err, &se) {
		t.Fatalf("error type = %T, want *StageError", err)
	}
	if se.Stage != "gather" {
		t.Errorf("failed stage = %s, want gather", se.Stage)
	}
	if !errors.Is(err, stageErr) {
		t.Error("StageError does not wrap the cause")
	}

	if got := atomic.LoadInt64(&assess.calls); got != 0 {
		t.Errorf("assess ran %d times after failure", got)
	}
	if got := atomic.LoadInt64(&synth.calls); got != 0 {
		t.Errorf("synthesize ran %d times after failure", got)
	}

	if snap := session.Snapshot(); snap.Status != store.StatusFailed {
		t.Errorf("session status = %s, want failed", snap.Status)
	}
	if _, ok := st.Lookup(store.KeyResults); ok {
		t.Error("failed stage's output was stored")
	}
	if got, ok := st.Lookup(store.KeyPlan); !ok || got != "p" {
		t.Error("completed stage output missing after later failure")
	}
}

func TestRunSecondCallWhileRunningReturnsBusy(t *testing.T) {
	plan, gather, assess, synth := fourStages(nil, nil)
	plan.block = 200 * time.Millisecond

	seq := NewSequencer(plan, gather, assess, synth, nopLogger{})
	session := store.NewSession("q", nil)
	st := state.New()
	bus := newTestBus(t)

	firstDone := make(chan error, 1)
	go func() {
		firstDone <- seq.Run(context.Background(), session, st, bus)
	}()

	time.Sleep(50 * time.Millisecond)
	if err := seq.Run(context.Background(), session, st, bus); !errors.Is(err, ErrSessionBusy) {
		t.Errorf("concurrent Run = %v, want ErrSessionBusy", err)
	}

	if err := <-firstDone; err != nil {
		t.Fatalf("first Run failed: %v", err)
	}
}

func TestRunAllowsConcurrentStatusReads(t *testing.T) {
	plan, gather, assess, synth := fourStages(nil, nil)
	plan.block = 20 * time.Millisecond
	gather.block = 20 * time.Millisecond

	seq := NewSequencer(plan, gather, assess, synth, nopLogger{})
	session := store.NewSession("q", nil)
	st := state.New()
	bus := newTestBus(t)

	runDone := make(chan error, 1)
	go func() {
		runDone <- seq.Run(context.Background(), session, st, bus)
	}()

	// Poll the session the way a status endpoint would while the run
	// mutates it.
	valid := map[string]bool{
		store.StatusPending:   true,
		store.StatusRunning:   true,
		store.StatusCompleted: true,
		store.StatusFailed:    true,
	}
	stop := make(chan struct{})
	var readers sync.WaitGroup
	for r := 0; r < 4; r++ {
		readers.Add(1)
		go func() {
			defer readers.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				snap := session.Snapshot()
				if !valid[snap.Status] {
					t.Errorf("observed invalid status %q", snap.Status)
					return
				}
				for _, ss := range snap.StageStatuses {
					if !valid[ss] {
						t.Errorf("observed invalid stage status %q", ss)
						return
					}
				}
				session.Terminal()
			}
		}()
	}

	if err := <-runDone; err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	close(stop)
	readers.Wait()

	snap := session.Snapshot()
	if snap.Status != store.StatusCompleted {
		t.Errorf("final status = %s, want completed", snap.Status)
	}
	for i, ss := range snap.StageStatuses {
		if ss != store.StatusCompleted {
			t.Errorf("stage %d status = %s, want completed", i, ss)
		}
	}
}

func TestRunOnFinishedSessionFails(t *testing.T) {
	plan, gather, assess, synth := fourStages(nil, nil)
	seq := NewSequencer(plan, gather, assess, synth, nopLogger{})
	session := store.NewSession("q", nil)
	st := state.New()
	bus := newTestBus(t)

	if err := seq.Run(context.Background(), session, st, bus); err != nil {
		t.Fatalf("first Run failed: %v", err)
	}
	if err := seq.Run(context.Background(), session, st, bus); !errors.Is(err, ErrSessionFinished) {
		t.Errorf("second Run = %v, want ErrSessionFinished", err)
	}

	for _, s := range []*stubStage{plan, gather, assess, synth} {
		if got := atomic.LoadInt64(&s.calls); got != 1 {
			t.Errorf("stage %s ran %d times across both calls", s.name, got)
		}
	}
}

func TestRunPublishesStageLifecycleEvents(t *testing.T) {
	plan, gather, assess, synth := fourStages(nil, nil)
	assess.err = errors.New("bad data")

	pubSub := events.NewPubSub(8)
	t.Cleanup(func() { pubSub.Close() })
	bus := events.NewBus(pubSub, "test")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stream, err := bus.Subscribe(ctx)
	if err != nil {
		t.Fatal(err)
	}

	var got []events.ProgressEvent
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range stream {
			got = append(got, ev)
		}
	}()

	seq := NewSequencer(plan, gather, assess, synth, nopLogger{})
	_ = seq.Run(context.Background(), store.NewSession("q", nil), state.New(), bus)

	cancel()
	<-done

	want := []struct {
		kind  events.Kind
		agent string
	}{
		{events.KindStageStart, "plan"},
		{events.KindStageComplete, "plan"},
		{events.KindStageStart, "gather"},
		{events.KindStageComplete, "gather"},
		{events.KindStageStart, "assess"},
		{events.KindStageFailed, "assess"},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d events, want %d: %+v", len(got), len(want), got)
	}
	for i, w := range want {
		if got[i].Type != w.kind || got[i].Agent != w.agent {
			t.Errorf("event %d = %s/%s, want %s/%s", i, got[i].Type, got[i].Agent, w.kind, w.agent)
		}
	}
}
