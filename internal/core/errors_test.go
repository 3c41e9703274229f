package core

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewStageError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind error
	}{
		{name: "timeout", err: context.DeadlineExceeded, kind: ErrStageTimeout},
		{name: "wrapped timeout", err: fmt.Errorf("calling provider: %w", context.DeadlineExceeded), kind: ErrStageTimeout},
		{name: "decode", err: fmt.Errorf("png: %w", ErrDecode), kind: ErrDecode},
		{name: "other", err: errors.New("boom"), kind: ErrStageFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			se := NewStageError(StageVision, tt.err)
			assert.ErrorIs(t, se, tt.kind)
			assert.ErrorIs(t, se, tt.err)
			assert.Equal(t, StageVision, se.Stage)
		})
	}
}

func TestStageErrorMessage(t *testing.T) {
	assert.Equal(t, "forensic: stage failed: boom", NewStageError(StageForensic, errors.New("boom")).Error())
	assert.Equal(t, "vision: stage timed out", (&StageError{Stage: StageVision, Kind: ErrStageTimeout}).Error())
}

func TestNewStageErrorDoesNotDoubleWrap(t *testing.T) {
	inner := NewStageError(StageMetadata, errors.New("x"))
	assert.Same(t, inner, NewStageError(StageMetadata, inner))
	assert.NotSame(t, inner, NewStageError(StageVision, inner))
}
