package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mikey/receipt-forensics/internal/config"
	"github.com/mikey/receipt-forensics/internal/logging"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Orchestrator progress checkpoints
const (
	progressStarted          = 5
	progressAgentsRunning    = 20
	progressAgentsComplete   = 35
	progressForensic         = 40
	progressReputation       = 70
	progressSynthesisStarted = 85
	progressSynthesisDone    = 95
	progressComplete         = 100
)

// ReceiptAnalysisService is the core service that runs every detection stage
// for a receipt and reduces them to a trust assessment
type ReceiptAnalysisService struct {
	vision      VisionStage
	metadata    MetadataStage
	forensic    ForensicStage
	reputation  ReputationStage
	synthesizer TrustSynthesizer
	sink        ProgressSink
	observer    StageObserver
	cfg         config.OrchestratorConfig
	logger      *zap.Logger
}

// Stages groups the collaborators of the service. Vision and reputation may be
// nil; a nil vision stage is recorded as failed and reputation is then skipped.
type Stages struct {
	Vision     VisionStage
	Metadata   MetadataStage
	Forensic   ForensicStage
	Reputation ReputationStage
}

// NewReceiptAnalysisService creates a new receipt analysis service
func NewReceiptAnalysisService(
	stages Stages,
	synthesizer TrustSynthesizer,
	sink ProgressSink,
	observer StageObserver,
	cfg config.OrchestratorConfig,
	logger *zap.Logger,
) *ReceiptAnalysisService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReceiptAnalysisService{
		vision:      stages.Vision,
		metadata:    stages.Metadata,
		forensic:    stages.Forensic,
		reputation:  stages.Reputation,
		synthesizer: synthesizer,
		sink:        sink,
		observer:    observer,
		cfg:         cfg,
		logger:      logger,
	}
}

// StageOutcome is the captured result of one stage run
type StageOutcome[T any] struct {
	Value   *T
	Err     error
	Elapsed time.Duration
}

// OK reports whether the stage produced a value without error
func (o StageOutcome[T]) OK() bool {
	return o.Err == nil && o.Value != nil
}

var errNotConfigured = errors.New("stage not configured")

// runStage runs fn under its own deadline. Errors and panics become values on
// the outcome so siblings never observe them.
func runStage[T any](ctx context.Context, stage string, timeout time.Duration, fn func(context.Context) (*T, error)) StageOutcome[T] {
	start := time.Now()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type result struct {
		value *T
		err   error
	}
	ch := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- result{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		v, err := fn(ctx)
		ch <- result{value: v, err: err}
	}()

	var out StageOutcome[T]
	select {
	case r := <-ch:
		out.Value, out.Err = r.value, r.err
	case <-ctx.Done():
		out.Err = ctx.Err()
	}
	if out.Err == nil && out.Value == nil {
		out.Err = errors.New("stage returned no result")
	}
	if out.Err != nil {
		out.Err = NewStageError(stage, out.Err)
	}
	out.Elapsed = time.Since(start)
	return out
}

// AnalyzeReceipt runs the full analysis for the image at imagePath. Only an
// unreadable image file is returned as an error; stage failures are recorded
// in the report's stage logs.
func (s *ReceiptAnalysisService) AnalyzeReceipt(ctx context.Context, imagePath, receiptID string) (*AnalysisReport, error) {
	data, err := os.ReadFile(imagePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read receipt image: %w", err)
	}
	return s.AnalyzeImage(ctx, ImageInput{ReceiptID: receiptID, Path: imagePath, Data: data})
}

// AnalyzeImage runs the full analysis over an image already held in memory
func (s *ReceiptAnalysisService) AnalyzeImage(ctx context.Context, img ImageInput) (*AnalysisReport, error) {
	start := time.Now()
	if img.ReceiptID == "" {
		img.ReceiptID = uuid.NewString()
	}
	if len(img.Data) == 0 {
		return nil, fmt.Errorf("failed to read receipt image: %s is empty", img.Path)
	}
	if img.MimeType == "" {
		img.MimeType = http.DetectContentType(img.Data)
	}

	logger := logging.ForReceipt(s.logger, img.ReceiptID)
	emitter := newProgressEmitter(ctx, img.ReceiptID, s.sink, s.cfg, logger)
	defer emitter.Close()

	emitter.Emit(StageOrchestrator, "analysis_started", "Starting receipt analysis", progressStarted,
		map[string]any{"image_bytes": len(img.Data), "mime_type": img.MimeType})

	var (
		agg  AggregateResult
		logs []StageLog
	)

	// Vision and metadata in parallel. Neither goroutine returns an error to
	// the group so one failure never cancels the other.
	emitter.Emit(StageOrchestrator, "agents_running", "Running vision and metadata analysis", progressAgentsRunning, nil)
	var (
		visionOut   StageOutcome[VisionResult]
		metadataOut StageOutcome[MetadataResult]
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		visionOut = runStage(gctx, StageVision, s.cfg.StageTimeout, func(ctx context.Context) (*VisionResult, error) {
			if s.vision == nil {
				return nil, errNotConfigured
			}
			return s.vision.Analyze(ctx, img)
		})
		return nil
	})
	g.Go(func() error {
		metadataOut = runStage(gctx, StageMetadata, s.cfg.StageTimeout, func(ctx context.Context) (*MetadataResult, error) {
			if s.metadata == nil {
				return nil, errNotConfigured
			}
			return s.metadata.Analyze(ctx, img)
		})
		return nil
	})
	_ = g.Wait()

	if visionOut.OK() {
		agg.Vision = visionOut.Value
		logs = append(logs, s.stageLog(StageVision, StatusSuccess, "confidence", float64(agg.Vision.Confidence), nil, visionOut.Elapsed))
	} else {
		logs = append(logs, s.stageLog(StageVision, StatusFailed, "confidence", 0, visionOut.Err, visionOut.Elapsed))
		logger.Warn("Vision stage failed", zap.Error(visionOut.Err))
	}
	metadataRisk := 0.0
	if metadataOut.OK() {
		agg.Metadata = metadataOut.Value
		metadataRisk = agg.Metadata.RiskScore
		logs = append(logs, s.stageLog(StageMetadata, StatusSuccess, "flags", float64(len(agg.Metadata.Flags)), nil, metadataOut.Elapsed))
	} else {
		logs = append(logs, s.stageLog(StageMetadata, StatusFailed, "flags", 0, metadataOut.Err, metadataOut.Elapsed))
		logger.Warn("Metadata stage failed", zap.Error(metadataOut.Err))
	}

	emitter.Emit(StageOrchestrator, "agents_complete", "Vision and metadata analysis complete", progressAgentsComplete,
		map[string]any{"vision_ok": agg.Vision != nil, "metadata_ok": agg.Metadata != nil})

	// Forensics, with vision hints when available
	emitter.Emit(StageForensic, "forensic_analysis", "Running pixel-level forensic analysis", progressForensic, nil)
	var (
		forensicMu  sync.Mutex
		forensicLog []ProgressEvent
	)
	record := func(stage, message string, progress int, details map[string]any) {
		event := emitter.Emit(StageForensic, stage, message, progress, details)
		forensicMu.Lock()
		forensicLog = append(forensicLog, event)
		forensicMu.Unlock()
	}
	hints := agg.Vision.Hints()
	forensicOut := runStage(ctx, StageForensic, s.cfg.ForensicTimeout, func(ctx context.Context) (*ForensicVerdict, error) {
		if s.forensic == nil {
			return nil, errNotConfigured
		}
		v, err := s.forensic.Analyze(ctx, img, hints, metadataRisk, record)
		if err != nil && v != nil && errors.Is(err, ErrDecode) {
			// zeroed verdict is still usable; surface the decode error on the log
			return v, &degraded{err: err}
		}
		return v, err
	})
	var deg *degraded
	switch {
	case forensicOut.OK():
		agg.Forensic = forensicOut.Value
		logs = append(logs, s.stageLog(StageForensic, StatusSuccess, "manipulation_score", float64(agg.Forensic.ManipulationScore), nil, forensicOut.Elapsed))
	case forensicOut.Value != nil && errors.As(forensicOut.Err, &deg):
		agg.Forensic = forensicOut.Value
		logs = append(logs, s.stageLog(StageForensic, StatusDegraded, "manipulation_score", float64(agg.Forensic.ManipulationScore), deg.err, forensicOut.Elapsed))
		logger.Warn("Forensic stage could not decode image", zap.Error(deg.err))
	default:
		logs = append(logs, s.stageLog(StageForensic, StatusFailed, "manipulation_score", 0, forensicOut.Err, forensicOut.Elapsed))
		logger.Warn("Forensic stage failed", zap.Error(forensicOut.Err))
	}

	// Reputation needs OCR text
	if agg.Vision != nil && s.reputation != nil {
		emitter.Emit(StageReputation, "reputation_check", "Checking merchant and account reputation", progressReputation, nil)
		text := agg.Vision.OCRText
		repOut := runStage(ctx, StageReputation, s.cfg.StageTimeout, func(ctx context.Context) (*ReputationResult, error) {
			return s.reputation.Analyze(ctx, text)
		})
		if repOut.OK() {
			agg.Reputation = repOut.Value
			logs = append(logs, s.stageLog(StageReputation, StatusSuccess, "accounts_checked", float64(len(agg.Reputation.AccountsAnalyzed)), nil, repOut.Elapsed))
		} else {
			logs = append(logs, s.stageLog(StageReputation, StatusFailed, "accounts_checked", 0, repOut.Err, repOut.Elapsed))
			logger.Warn("Reputation stage failed", zap.Error(repOut.Err))
		}
	} else {
		emitter.Emit(StageReputation, "reputation_skipped", "Skipping reputation check, no OCR text available", progressReputation, nil)
		logs = append(logs, s.stageLog(StageReputation, StatusSkipped, "accounts_checked", 0, nil, 0))
	}

	emitter.Emit(StageReasoning, "synthesis_started", "Synthesizing trust assessment", progressSynthesisStarted, nil)
	synthStart := time.Now()
	assessment, err := s.synthesizer.Synthesize(agg)
	if err != nil {
		logs = append(logs, s.stageLog(StageReasoning, StatusFailed, "trust_score", float64(assessment.TrustScore), err, time.Since(synthStart)))
		logger.Error("Trust synthesis failed, using default assessment", zap.Error(err))
	} else {
		logs = append(logs, s.stageLog(StageReasoning, StatusSuccess, "trust_score", float64(assessment.TrustScore), nil, time.Since(synthStart)))
	}
	emitter.Emit(StageReasoning, "synthesis_complete", "Trust assessment complete", progressSynthesisDone,
		map[string]any{"trust_score": assessment.TrustScore, "verdict": assessment.Verdict, "issues": len(assessment.Issues)})

	forensicMu.Lock()
	forensicProgress := append([]ProgressEvent(nil), forensicLog...)
	forensicMu.Unlock()

	report := &AnalysisReport{
		ReceiptID:       img.ReceiptID,
		Assessment:      assessment,
		ForensicDetails: buildForensicDetails(agg, forensicProgress),
		StageLogs:       logs,
		AnalyzedAt:      time.Now(),
	}
	if agg.Vision != nil {
		report.OCRText = agg.Vision.OCRText
	}
	if agg.Reputation != nil {
		report.Merchant = agg.Reputation.Merchant
	}
	report.ProcessingTime = time.Since(start)

	if s.observer != nil {
		s.observer.ObserveAssessment(report.ForensicDetails.ManipulationScore, assessment)
	}

	emitter.Emit(StageOrchestrator, "analysis_complete", "Analysis complete", progressComplete,
		map[string]any{"trust_score": assessment.TrustScore, "verdict": assessment.Verdict, "processing_ms": report.ProcessingTime.Milliseconds()})

	logger.Info("Receipt analysis complete",
		zap.Int("trust_score", assessment.TrustScore),
		zap.String("verdict", string(assessment.Verdict)),
		zap.Int("issues", len(assessment.Issues)),
		zap.Duration("processing_time", report.ProcessingTime))

	return report, nil
}

// degraded marks a stage that returned a usable value alongside an error
type degraded struct {
	err error
}

func (d *degraded) Error() string { return d.err.Error() }
func (d *degraded) Unwrap() error { return d.err }

func (s *ReceiptAnalysisService) stageLog(stage string, status StageStatus, key string, metric float64, err error, elapsed time.Duration) StageLog {
	if s.observer != nil {
		s.observer.ObserveStage(stage, status, elapsed)
	}
	entry := StageLog{
		Agent:     stage,
		Status:    status,
		MetricKey: key,
		Metric:    metric,
		Duration:  elapsed,
	}
	if err != nil {
		entry.Error = err.Error()
	}
	return entry
}

func buildForensicDetails(agg AggregateResult, progress []ProgressEvent) ForensicDetails {
	d := ForensicDetails{
		MetadataFlags:          []string{},
		TechniquesDetected:     []string{},
		AuthenticityIndicators: []string{},
		SuspiciousRegions:      []Region{},
		ForensicProgress:       progress,
	}
	if d.ForensicProgress == nil {
		d.ForensicProgress = []ProgressEvent{}
	}
	if agg.Vision != nil {
		d.OCRConfidence = agg.Vision.Confidence
	}
	if agg.Metadata != nil && agg.Metadata.Flags != nil {
		d.MetadataFlags = agg.Metadata.Flags
	}
	f := agg.Forensic
	if f == nil {
		return d
	}
	d.ManipulationScore = f.ManipulationScore
	d.ForensicVerdict = f.Verdict
	d.ForensicSummary = f.Summary
	if f.TechniquesDetected != nil {
		d.TechniquesDetected = f.TechniquesDetected
	}
	if f.AuthenticityIndicators != nil {
		d.AuthenticityIndicators = f.AuthenticityIndicators
	}
	ela := f.TechnicalDetails.ELA
	d.ManipulationDetected = ela.ManipulationDetected
	d.Heatmap = ela.Heatmap
	if ela.SuspiciousRegions != nil {
		d.SuspiciousRegions = ela.SuspiciousRegions
	}
	dims := f.TechnicalDetails.ImageDimensions
	stats := ela.Statistics
	diff := ela.PixelDiff
	td := f.TechnicalDetails
	d.ImageDimensions = &dims
	d.Statistics = &stats
	d.PixelDiff = &diff
	d.TechnicalDetails = &td
	return d
}
