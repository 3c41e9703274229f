package core

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrDecode means the image bytes could not be decoded into a raster
	ErrDecode = errors.New("image decode failed")
	// ErrStageTimeout means a stage exceeded its deadline
	ErrStageTimeout = errors.New("stage timed out")
	// ErrStageFailure means a stage returned an error
	ErrStageFailure = errors.New("stage failed")
	// ErrSynthesis means the trust synthesizer hit an internal fault
	ErrSynthesis = errors.New("synthesis failed")
)

// StageError attributes an error kind to a named stage
type StageError struct {
	Stage string
	Kind  error
	Err   error
}

func (e *StageError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Stage, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Stage, e.Kind, e.Err)
}

// Is matches against the kind sentinel so errors.Is(err, ErrStageTimeout) works
func (e *StageError) Is(target error) bool {
	return e.Kind == target
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// NewStageError wraps err for stage, classifying context deadline errors as timeouts
func NewStageError(stage string, err error) *StageError {
	var se *StageError
	if errors.As(err, &se) && se.Stage == stage {
		return se
	}
	kind := ErrStageFailure
	switch {
	case errors.Is(err, ErrDecode):
		kind = ErrDecode
	case errors.Is(err, context.DeadlineExceeded):
		kind = ErrStageTimeout
	}
	return &StageError{Stage: stage, Kind: kind, Err: err}
}
