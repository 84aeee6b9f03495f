package executor

import (
	"errors"
	"fmt"
)

// ErrSessionBusy is returned when Run is called while another run is already
// in flight for the same session. The in-flight run is unaffected.
var ErrSessionBusy = errors.New("session busy: a run is already in flight")

// ErrSessionFinished is returned when Run is called on a session that
// already reached a terminal state. Stages never execute twice per session.
var ErrSessionFinished = errors.New("session already finished")

// StageError marks a fatal stage failure. It aborts the session; there is no
// stage-level retry and no partial rollback.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
