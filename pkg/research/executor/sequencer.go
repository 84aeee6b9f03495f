// Package executor drives the four-stage research pipeline:
// plan → gather → assess → synthesize, strictly in order, over one session's
// shared state.
package executor

import (
	"context"
	"sync"

	"deep-research-be/internal/pkg/logger"
	"deep-research-be/pkg/events"
	"deep-research-be/pkg/research/state"
	"deep-research-be/pkg/store"
)

// Stage is one step of the pipeline. Produce reads its inputs from the
// shared state and returns the single output the sequencer stores under
// Key() before the next stage starts. A returned error is fatal to the
// session.
type Stage interface {
	Name() string
	Key() string
	Produce(ctx context.Context, st *state.Store, bus *events.Bus) (any, error)
}

// Sequencer runs the stages of one session. One sequencer belongs to one
// session; Run is single-flight: a second call while a run is in progress
// fails fast with ErrSessionBusy instead of interleaving.
type Sequencer struct {
	stages [store.StageCount]Stage
	logger logger.ILogger

	mu sync.Mutex // held for the duration of a run
}

func NewSequencer(plan, gather, assess, synthesize Stage, log logger.ILogger) *Sequencer {
	return &Sequencer{
		stages: [store.StageCount]Stage{plan, gather, assess, synthesize},
		logger: log,
	}
}

// Run executes stages 0..3 in order, storing each stage's output in the
// shared state before advancing. On stage failure the session is marked
// failed, a stage_failed event is published, and the error propagates to the
// caller. Terminal states: completed (all four stages returned) or failed.
func (s *Sequencer) Run(ctx context.Context, session *store.Session, st *state.Store, bus *events.Bus) error {
	if !s.mu.TryLock() {
		return ErrSessionBusy
	}
	defer s.mu.Unlock()

	if session.Terminal() {
		return ErrSessionFinished
	}

	session.MarkRunning()
	s.logger.Info("Sequencer", "Pipeline started", map[string]interface{}{
		"session_id": session.ID,
		"query":      session.Query,
	})

	for i, stage := range s.stages {
		session.SetStageStatus(i, store.StatusRunning)
		bus.Publish(events.ProgressEvent{
			Type:  events.KindStageStart,
			Agent: stage.Name(),
			Step:  i,
		})

		output, err := stage.Produce(ctx, st, bus)
		if err != nil {
			stageErr := &StageError{Stage: stage.Name(), Err: err}
			session.SetStageStatus(i, store.StatusFailed)
			session.MarkFailed(stageErr.Error())

			bus.Publish(events.ProgressEvent{
				Type:  events.KindStageFailed,
				Agent: stage.Name(),
				Step:  i,
				Error: err.Error(),
			})
			s.logger.Error("Sequencer", "Stage failed, aborting session", map[string]interface{}{
				"session_id": session.ID,
				"stage":      stage.Name(),
				"error":      err.Error(),
			})
			return stageErr
		}

		// Store the output before advancing so the next stage always sees it.
		st.Set(stage.Key(), output)
		session.SetStageStatus(i, store.StatusCompleted)

		bus.Publish(events.ProgressEvent{
			Type:   events.KindStageComplete,
			Agent:  stage.Name(),
			Step:   i,
			Status: store.StatusCompleted,
		})
	}

	session.MarkCompleted()
	s.logger.Info("Sequencer", "Pipeline completed", map[string]interface{}{
		"session_id": session.ID,
	})
	return nil
}
