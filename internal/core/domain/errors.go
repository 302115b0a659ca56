package domain

import (
	"errors"
	"fmt"
)

// ErrInvalidInput marks input the pipeline refuses to start on, such as an
// empty transcript or a zero-byte recording.
var ErrInvalidInput = errors.New("invalid input")

// CollaboratorError reports an external collaborator that could not serve a
// stage: the LLM endpoint is unreachable, the configured model is missing,
// the speech engine is down, storage cannot be written. Always fatal.
type CollaboratorError struct {
	Stage        StageName
	Collaborator string
	Err          error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("stage %s: %s unavailable: %v", e.Stage, e.Collaborator, e.Err)
}

func (e *CollaboratorError) Unwrap() error { return e.Err }

// StageError wraps any other stage failure, including LLM output that does
// not decode into the expected shape.
type StageError struct {
	Stage StageName
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// FailedStage extracts the stage a pipeline error originated from.
func FailedStage(err error) (StageName, bool) {
	var ce *CollaboratorError
	if errors.As(err, &ce) {
		return ce.Stage, true
	}
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage, true
	}
	return "", false
}

// IsCollaboratorUnavailable reports whether the error is a collaborator
// outage rather than a processing failure.
func IsCollaboratorUnavailable(err error) bool {
	var ce *CollaboratorError
	return errors.As(err, &ce)
}
