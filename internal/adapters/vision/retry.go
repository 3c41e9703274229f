package vision

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/mikey/receipt-forensics/internal/core"
)

// Retrying wraps a vision stage with exponential backoff. Attempts include
// the first call; the delay starts at the initial interval and doubles.
type Retrying struct {
	next     core.VisionStage
	attempts int
	initial  time.Duration
	logger   *zap.Logger
}

// NewRetrying creates a retrying decorator around next
func NewRetrying(next core.VisionStage, attempts int, initial time.Duration, logger *zap.Logger) *Retrying {
	if attempts < 1 {
		attempts = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retrying{
		next:     next,
		attempts: attempts,
		initial:  initial,
		logger:   logger,
	}
}

// Analyze implements core.VisionStage
func (r *Retrying) Analyze(ctx context.Context, img core.ImageInput) (*core.VisionResult, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = r.initial
	policy.Multiplier = 2
	policy.RandomizationFactor = 0
	policy.MaxElapsedTime = 0

	attempt := 0
	op := func() (*core.VisionResult, error) {
		attempt++
		res, err := r.next.Analyze(ctx, img)
		if err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
			return nil, backoff.Permanent(err)
		}
		return res, err
	}
	notify := func(err error, wait time.Duration) {
		r.logger.Warn("Vision attempt failed, retrying",
			zap.String("receipt_id", img.ReceiptID),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err))
	}

	b := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(r.attempts-1)), ctx)
	return backoff.RetryNotifyWithData(op, b, notify)
}
