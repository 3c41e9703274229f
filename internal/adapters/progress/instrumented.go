package progress

import (
	"context"

	"github.com/mikey/receipt-forensics/internal/core"
	"github.com/mikey/receipt-forensics/internal/ports"
)

// DropCounter counts progress events a sink failed to store
type DropCounter interface {
	IncrementProgressDropped()
}

// Instrumented counts failed emits on the wrapped repository
type Instrumented struct {
	ports.ProgressRepository
	counter DropCounter
}

// NewInstrumented wraps repo so that Emit failures are counted
func NewInstrumented(repo ports.ProgressRepository, counter DropCounter) *Instrumented {
	return &Instrumented{ProgressRepository: repo, counter: counter}
}

// Emit forwards to the wrapped repository
func (i *Instrumented) Emit(ctx context.Context, event core.ProgressEvent) error {
	err := i.ProgressRepository.Emit(ctx, event)
	if err != nil && i.counter != nil {
		i.counter.IncrementProgressDropped()
	}
	return err
}
