package core

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/mikey/receipt-forensics/internal/config"
)

// Fallbacks when the orchestrator config leaves the progress bounds unset
const (
	defaultSinkTimeout          = 5 * time.Second
	defaultProgressCloseTimeout = 2 * time.Second
)

// progressEmitter queues events on a buffered channel and forwards them to the
// sink from a single drain goroutine. Each sink call is bounded by
// sinkTimeout; a sink that times out or panics is skipped for the rest of the
// analysis.
type progressEmitter struct {
	receiptID    string
	sink         ProgressSink
	logger       *zap.Logger
	events       chan ProgressEvent
	done         chan struct{}
	sinkTimeout  time.Duration
	closeTimeout time.Duration

	// broken is set once the sink stalls or panics, abandoned once Close gives
	// up waiting; the drain then discards events without calling the sink
	broken    atomic.Bool
	abandoned atomic.Bool

	mu     sync.Mutex
	closed bool
}

func newProgressEmitter(ctx context.Context, receiptID string, sink ProgressSink, cfg config.OrchestratorConfig, logger *zap.Logger) *progressEmitter {
	buffer := cfg.ProgressBuffer
	if buffer <= 0 {
		buffer = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &progressEmitter{
		receiptID:    receiptID,
		sink:         sink,
		logger:       logger,
		events:       make(chan ProgressEvent, buffer),
		done:         make(chan struct{}),
		sinkTimeout:  cfg.SinkTimeout,
		closeTimeout: cfg.ProgressCloseTimeout,
	}
	if e.sinkTimeout <= 0 {
		e.sinkTimeout = defaultSinkTimeout
	}
	if e.closeTimeout <= 0 {
		e.closeTimeout = defaultProgressCloseTimeout
	}
	// The sink must keep receiving events after the caller's context ends so
	// the terminal checkpoint is not lost.
	go e.drain(context.WithoutCancel(ctx))
	return e
}

// Emit builds a flattened event and queues it. The returned event is the one
// that was queued, before percentage clamping by the drain.
func (e *progressEmitter) Emit(agent, stage, message string, progress int, details map[string]any) ProgressEvent {
	event := ProgressEvent{
		ReceiptID: e.receiptID,
		Agent:     agent,
		Stage:     stage,
		Message:   message,
		Progress:  progress,
		Details:   FlattenDetails(details),
		Timestamp: time.Now(),
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return event
	}
	e.events <- event
	return event
}

// Close stops accepting events and waits, at most closeTimeout, for the queue
// to drain. Events still queued after that are dropped.
func (e *progressEmitter) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	close(e.events)
	e.mu.Unlock()

	timer := time.NewTimer(e.closeTimeout)
	defer timer.Stop()
	select {
	case <-e.done:
	case <-timer.C:
		e.abandoned.Store(true)
		e.logger.Warn("Progress sink did not drain in time, dropping queued events",
			zap.Int("queued", len(e.events)),
			zap.Duration("timeout", e.closeTimeout))
	}
}

func (e *progressEmitter) drain(ctx context.Context) {
	defer close(e.done)
	last := 0
	for event := range e.events {
		if event.Progress < last {
			event.Progress = last
		}
		last = event.Progress
		if e.sink == nil || e.broken.Load() || e.abandoned.Load() {
			continue
		}
		e.deliver(ctx, event)
	}
}

// deliver hands one event to the sink. The call runs on its own goroutine so a
// sink that ignores its context cannot hold up the drain past sinkTimeout.
func (e *progressEmitter) deliver(ctx context.Context, event ProgressEvent) {
	ctx, cancel := context.WithTimeout(ctx, e.sinkTimeout)
	defer cancel()

	result := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				result <- fmt.Errorf("%w: %v", errSinkPanic, r)
			}
		}()
		result <- e.sink.Emit(ctx, event)
	}()

	var err error
	select {
	case err = <-result:
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err == nil {
		return
	}
	if errors.Is(err, errSinkPanic) || errors.Is(err, context.DeadlineExceeded) {
		e.broken.Store(true)
		e.logger.Error("Progress sink failed, skipping further events",
			zap.String("stage", event.Stage),
			zap.Int("progress", event.Progress),
			zap.Error(err))
		return
	}
	e.logger.Warn("Failed to emit progress event",
		zap.String("stage", event.Stage),
		zap.Int("progress", event.Progress),
		zap.Error(err))
}

var errSinkPanic = errors.New("progress sink panicked")

// FlattenDetails converts detail values to transport-safe scalars: strings,
// bools, int64 and finite float64. Anything else is rendered with fmt.Sprint.
func FlattenDetails(details map[string]any) map[string]any {
	if len(details) == 0 {
		return nil
	}
	out := make(map[string]any, len(details))
	for k, v := range details {
		out[k] = flattenValue(v)
	}
	return out
}

func flattenValue(v any) any {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return x
	case int:
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case int64:
		return x
	case uint:
		return int64(x)
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case uint64:
		if x > math.MaxInt64 {
			return fmt.Sprint(x)
		}
		return int64(x)
	case float32:
		return finite(float64(x))
	case float64:
		return finite(x)
	case Verdict:
		return string(x)
	case StageStatus:
		return string(x)
	case fmt.Stringer:
		return x.String()
	case error:
		return x.Error()
	default:
		return fmt.Sprint(x)
	}
}

func finite(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}
