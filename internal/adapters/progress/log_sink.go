package progress

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/mikey/receipt-forensics/internal/core"
)

// ErrNoHistory is returned by sinks that do not retain events
var ErrNoHistory = errors.New("progress history is not retained by this sink")

// LogSink writes progress events to the logger and keeps nothing
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a new log sink
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Emit logs the event
func (s *LogSink) Emit(ctx context.Context, event core.ProgressEvent) error {
	fields := []zap.Field{
		zap.String("receipt_id", event.ReceiptID),
		zap.String("agent", event.Agent),
		zap.String("stage", event.Stage),
		zap.Int("progress", event.Progress),
	}
	if len(event.Details) > 0 {
		fields = append(fields, zap.Any("details", event.Details))
	}
	s.logger.Info(event.Message, fields...)
	return nil
}

// Latest is not supported
func (s *LogSink) Latest(ctx context.Context, receiptID string) (*core.ProgressEvent, error) {
	return nil, ErrNoHistory
}

// History is not supported
func (s *LogSink) History(ctx context.Context, receiptID string) ([]core.ProgressEvent, error) {
	return nil, ErrNoHistory
}

// Cleanup is a no-op
func (s *LogSink) Cleanup(ctx context.Context) error { return nil }

// Stop is a no-op
func (s *LogSink) Stop() {}
