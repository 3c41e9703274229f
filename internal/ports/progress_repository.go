package ports

import (
	"context"

	"github.com/mikey/receipt-forensics/internal/core"
)

// ProgressRepository is a progress sink that can be queried afterwards
type ProgressRepository interface {
	core.ProgressSink

	// Latest returns the most recent event for a receipt, or nil
	Latest(ctx context.Context, receiptID string) (*core.ProgressEvent, error)

	// History returns every retained event for a receipt in emission order
	History(ctx context.Context, receiptID string) ([]core.ProgressEvent, error)

	// Cleanup removes expired events
	Cleanup(ctx context.Context) error

	// Stop stops background cleanup and releases storage
	Stop()
}
