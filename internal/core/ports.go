package core

import (
	"context"
	"time"
)

// VisionStage extracts OCR text and visual anomalies from a receipt image
type VisionStage interface {
	Analyze(ctx context.Context, img ImageInput) (*VisionResult, error)
}

// MetadataStage inspects embedded image metadata for editing traces
type MetadataStage interface {
	Analyze(ctx context.Context, img ImageInput) (*MetadataResult, error)
}

// ReputationStage looks up fraud history for the accounts and merchant in OCR text
type ReputationStage interface {
	Analyze(ctx context.Context, text string) (*ReputationResult, error)
}

// ProgressFunc reports a forensic sub-stage checkpoint
type ProgressFunc func(stage, message string, progress int, details map[string]any)

// ForensicStage runs pixel forensics and error level analysis over the image.
// On a decode failure it returns a zeroed verdict together with an error
// wrapping ErrDecode.
type ForensicStage interface {
	Analyze(ctx context.Context, img ImageInput, hints VisionHints, metadataRisk float64, progress ProgressFunc) (*ForensicVerdict, error)
}

// TrustSynthesizer reduces the aggregate to a trust assessment. On error the
// returned assessment is still a usable safe default.
type TrustSynthesizer interface {
	Synthesize(agg AggregateResult) (TrustAssessment, error)
}

// ProgressSink receives flattened progress events
type ProgressSink interface {
	Emit(ctx context.Context, event ProgressEvent) error
}

// StageObserver records stage outcomes, typically as metrics
type StageObserver interface {
	ObserveStage(stage string, status StageStatus, elapsed time.Duration)
	ObserveAssessment(manipulationScore int, assessment TrustAssessment)
}
