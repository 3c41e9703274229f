package core

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/mikey/receipt-forensics/internal/config"
)

type fakeVision struct {
	result *VisionResult
	err    error
	delay  time.Duration
}

func (f *fakeVision) Analyze(ctx context.Context, _ ImageInput) (*VisionResult, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.result, f.err
}

type fakeMetadata struct {
	result *MetadataResult
	err    error
}

func (f *fakeMetadata) Analyze(context.Context, ImageInput) (*MetadataResult, error) {
	return f.result, f.err
}

type fakeForensic struct {
	verdict  *ForensicVerdict
	err      error
	hints    VisionHints
	risk     float64
	panicMsg string
}

func (f *fakeForensic) Analyze(_ context.Context, _ ImageInput, hints VisionHints, risk float64, progress ProgressFunc) (*ForensicVerdict, error) {
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	f.hints = hints
	f.risk = risk
	progress("pixel_analysis", "Running pixel analysis", 50, map[string]any{"blocks": 12})
	progress("ela_analysis", "Running error level analysis", 60, nil)
	return f.verdict, f.err
}

type fakeReputation struct {
	result *ReputationResult
	err    error
	text   string
	calls  int
}

func (f *fakeReputation) Analyze(_ context.Context, text string) (*ReputationResult, error) {
	f.calls++
	f.text = text
	return f.result, f.err
}

type fakeSynthesizer struct {
	agg AggregateResult
	err error
}

func (f *fakeSynthesizer) Synthesize(agg AggregateResult) (TrustAssessment, error) {
	f.agg = agg
	if f.err != nil {
		return TrustAssessment{TrustScore: 50, Verdict: VerdictUnclear, Issues: []Issue{}}, f.err
	}
	return TrustAssessment{TrustScore: 88, Verdict: VerdictAuthentic, Issues: []Issue{}}, nil
}

type recordingSink struct {
	mu     sync.Mutex
	events []ProgressEvent
	err    error
}

func (r *recordingSink) Emit(_ context.Context, event ProgressEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return r.err
}

func (r *recordingSink) stages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Stage)
	}
	return out
}

type recordingObserver struct {
	mu       sync.Mutex
	statuses map[string]StageStatus
	verdicts []Verdict
}

func (o *recordingObserver) ObserveStage(stage string, status StageStatus, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.statuses == nil {
		o.statuses = map[string]StageStatus{}
	}
	o.statuses[stage] = status
}

func (o *recordingObserver) ObserveAssessment(_ int, a TrustAssessment) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.verdicts = append(o.verdicts, a.Verdict)
}

func strPtr(s string) *string { return &s }

type ServiceTestSuite struct {
	suite.Suite
	vision     *fakeVision
	metadata   *fakeMetadata
	forensic   *fakeForensic
	reputation *fakeReputation
	synth      *fakeSynthesizer
	sink       *recordingSink
	observer   *recordingObserver
	cfg        config.OrchestratorConfig
	img        ImageInput
}

func (s *ServiceTestSuite) SetupTest() {
	s.vision = &fakeVision{result: &VisionResult{
		OCRText:      "SHOPRITE\nTotal ₦1,500.00\nAccount 0123456789",
		Confidence:   82,
		MerchantName: strPtr("SHOPRITE"),
		TotalAmount:  strPtr("1500.00"),
	}}
	s.metadata = &fakeMetadata{result: &MetadataResult{Flags: []string{"Edited with Photoshop"}, RiskScore: 30, HasEXIF: true}}
	s.forensic = &fakeForensic{verdict: &ForensicVerdict{
		ManipulationScore:  25,
		Verdict:            VerdictUnclear,
		TechniquesDetected: []string{"Noise inconsistency"},
		Summary:            "minor anomalies",
	}}
	s.reputation = &fakeReputation{result: &ReputationResult{
		TotalFraudReports: 0,
		AccountsAnalyzed:  []string{"0123456789"},
		Merchant:          &MerchantInfo{Name: "SHOPRITE", Verified: true},
	}}
	s.synth = &fakeSynthesizer{}
	s.sink = &recordingSink{}
	s.observer = &recordingObserver{}
	s.cfg = config.OrchestratorConfig{StageTimeout: 2 * time.Second, ForensicTimeout: 2 * time.Second, ProgressBuffer: 4}
	s.img = ImageInput{ReceiptID: "r-1", Path: "receipt.png", Data: []byte("\x89PNG\r\n\x1a\nnot really a png")}
}

func (s *ServiceTestSuite) service() *ReceiptAnalysisService {
	stages := Stages{Metadata: s.metadata, Forensic: s.forensic}
	if s.vision != nil {
		stages.Vision = s.vision
	}
	if s.reputation != nil {
		stages.Reputation = s.reputation
	}
	return NewReceiptAnalysisService(stages, s.synth, s.sink, s.observer, s.cfg, nil)
}

func (s *ServiceTestSuite) statusOf(report *AnalysisReport, stage string) StageStatus {
	for _, l := range report.StageLogs {
		if l.Agent == stage {
			return l.Status
		}
	}
	return ""
}

func (s *ServiceTestSuite) TestAllStagesSucceed() {
	report, err := s.service().AnalyzeImage(context.Background(), s.img)
	s.Require().NoError(err)

	s.Equal("r-1", report.ReceiptID)
	s.Equal(88, report.Assessment.TrustScore)
	s.Equal(s.vision.result.OCRText, report.OCRText)
	s.Equal(s.vision.result.OCRText, s.reputation.text)
	s.Require().NotNil(report.Merchant)
	s.True(report.Merchant.Verified)

	s.Equal(VisionHints{MerchantName: "SHOPRITE", TotalAmount: "1500.00"}, s.forensic.hints)
	s.Equal(30.0, s.forensic.risk)

	for _, stage := range []string{StageVision, StageMetadata, StageForensic, StageReputation, StageReasoning} {
		s.Equal(StatusSuccess, s.statusOf(report, stage), stage)
	}
	s.Len(report.StageLogs, 5)

	d := report.ForensicDetails
	s.Equal(82, d.OCRConfidence)
	s.Equal(25, d.ManipulationScore)
	s.Equal([]string{"Edited with Photoshop"}, d.MetadataFlags)
	s.Len(d.ForensicProgress, 2)
	s.Equal("pixel_analysis", d.ForensicProgress[0].Stage)
	s.Equal(int64(12), d.ForensicProgress[0].Details["blocks"])

	s.Equal([]Verdict{VerdictAuthentic}, s.observer.verdicts)
}

func (s *ServiceTestSuite) TestProgressIsMonotonicAndEndsAtHundred() {
	_, err := s.service().AnalyzeImage(context.Background(), s.img)
	s.Require().NoError(err)

	s.sink.mu.Lock()
	events := append([]ProgressEvent(nil), s.sink.events...)
	s.sink.mu.Unlock()

	s.Require().NotEmpty(events)
	s.Equal("analysis_started", events[0].Stage)
	last := events[len(events)-1]
	s.Equal("analysis_complete", last.Stage)
	s.Equal(100, last.Progress)

	prev := 0
	for _, e := range events {
		s.GreaterOrEqual(e.Progress, prev, e.Stage)
		s.Equal("r-1", e.ReceiptID)
		prev = e.Progress
	}
}

func (s *ServiceTestSuite) TestVisionFailureSkipsReputation() {
	s.vision.result = nil
	s.vision.err = errors.New("provider unavailable")

	report, err := s.service().AnalyzeImage(context.Background(), s.img)
	s.Require().NoError(err)

	s.Equal(StatusFailed, s.statusOf(report, StageVision))
	s.Equal(StatusSkipped, s.statusOf(report, StageReputation))
	s.Equal(StatusSuccess, s.statusOf(report, StageMetadata))
	s.Equal(StatusSuccess, s.statusOf(report, StageForensic))
	s.Zero(s.reputation.calls)
	s.Nil(s.synth.agg.Vision)
	s.NotNil(s.synth.agg.Metadata)
	s.Empty(report.OCRText)
	s.Nil(report.Merchant)
	s.Equal(VisionHints{}, s.forensic.hints)
	s.Contains(s.sink.stages(), "reputation_skipped")
	s.Equal(StatusSkipped, s.observer.statuses[StageReputation])
}

func (s *ServiceTestSuite) TestMissingVisionStageIsRecordedAsFailed() {
	s.vision = nil

	report, err := s.service().AnalyzeImage(context.Background(), s.img)
	s.Require().NoError(err)

	s.Equal(StatusFailed, s.statusOf(report, StageVision))
	s.Equal(StatusSkipped, s.statusOf(report, StageReputation))
}

func (s *ServiceTestSuite) TestMetadataFailureDoesNotAffectVision() {
	s.metadata.result = nil
	s.metadata.err = errors.New("exif parse failed")

	report, err := s.service().AnalyzeImage(context.Background(), s.img)
	s.Require().NoError(err)

	s.Equal(StatusFailed, s.statusOf(report, StageMetadata))
	s.Equal(StatusSuccess, s.statusOf(report, StageVision))
	s.Zero(s.forensic.risk)
	s.Equal([]string{}, report.ForensicDetails.MetadataFlags)
}

func (s *ServiceTestSuite) TestForensicDecodeFailureIsDegraded() {
	s.forensic.verdict = &ForensicVerdict{Verdict: VerdictUnclear, Summary: "Image could not be decoded"}
	s.forensic.err = fmt.Errorf("decoding receipt: %w", ErrDecode)

	report, err := s.service().AnalyzeImage(context.Background(), s.img)
	s.Require().NoError(err)

	s.Equal(StatusDegraded, s.statusOf(report, StageForensic))
	s.NotNil(s.synth.agg.Forensic)
	s.Equal("Image could not be decoded", report.ForensicDetails.ForensicSummary)
	for _, l := range report.StageLogs {
		if l.Agent == StageForensic {
			s.Contains(l.Error, "image decode failed")
		}
	}
}

func (s *ServiceTestSuite) TestForensicPanicIsRecorded() {
	s.forensic.panicMsg = "index out of range"

	report, err := s.service().AnalyzeImage(context.Background(), s.img)
	s.Require().NoError(err)

	s.Equal(StatusFailed, s.statusOf(report, StageForensic))
	s.Nil(s.synth.agg.Forensic)
	s.Equal([]string{}, report.ForensicDetails.TechniquesDetected)
	s.Equal([]ProgressEvent{}, report.ForensicDetails.ForensicProgress)
}

func (s *ServiceTestSuite) TestVisionTimeout() {
	s.vision.delay = time.Second
	s.cfg.StageTimeout = 20 * time.Millisecond

	report, err := s.service().AnalyzeImage(context.Background(), s.img)
	s.Require().NoError(err)

	s.Equal(StatusFailed, s.statusOf(report, StageVision))
	for _, l := range report.StageLogs {
		if l.Agent == StageVision {
			s.Contains(l.Error, ErrStageTimeout.Error())
		}
	}
}

func (s *ServiceTestSuite) TestReputationFailureIsRecorded() {
	s.reputation.result = nil
	s.reputation.err = errors.New("database locked")

	report, err := s.service().AnalyzeImage(context.Background(), s.img)
	s.Require().NoError(err)

	s.Equal(StatusFailed, s.statusOf(report, StageReputation))
	s.Nil(report.Merchant)
	s.Nil(s.synth.agg.Reputation)
}

func (s *ServiceTestSuite) TestSynthesisFailureUsesDefault() {
	s.synth.err = errors.New("boom")

	report, err := s.service().AnalyzeImage(context.Background(), s.img)
	s.Require().NoError(err)

	s.Equal(StatusFailed, s.statusOf(report, StageReasoning))
	s.Equal(50, report.Assessment.TrustScore)
	s.Equal(VerdictUnclear, report.Assessment.Verdict)
}

func (s *ServiceTestSuite) TestSinkErrorsAreIgnored() {
	s.sink.err = errors.New("sink down")

	report, err := s.service().AnalyzeImage(context.Background(), s.img)
	s.Require().NoError(err)
	s.Equal(88, report.Assessment.TrustScore)
}

// hungSink never returns until its context ends
type hungSink struct{}

func (hungSink) Emit(ctx context.Context, _ ProgressEvent) error {
	<-ctx.Done()
	return ctx.Err()
}

type explodingSink struct{}

func (explodingSink) Emit(context.Context, ProgressEvent) error {
	panic("sink exploded")
}

func (s *ServiceTestSuite) analyzeWithSink(sink ProgressSink) (*AnalysisReport, error) {
	s.cfg.ProgressBuffer = 32
	s.cfg.SinkTimeout = 50 * time.Millisecond
	s.cfg.ProgressCloseTimeout = 100 * time.Millisecond
	svc := NewReceiptAnalysisService(
		Stages{Vision: s.vision, Metadata: s.metadata, Forensic: s.forensic, Reputation: s.reputation},
		s.synth, sink, s.observer, s.cfg, nil)

	type result struct {
		report *AnalysisReport
		err    error
	}
	ch := make(chan result, 1)
	go func() {
		r, err := svc.AnalyzeImage(context.Background(), s.img)
		ch <- result{r, err}
	}()
	select {
	case r := <-ch:
		return r.report, r.err
	case <-time.After(2 * time.Second):
		s.Require().FailNow("analysis blocked by the progress sink")
		return nil, nil
	}
}

func (s *ServiceTestSuite) TestHungSinkDoesNotBlockAnalysis() {
	report, err := s.analyzeWithSink(hungSink{})
	s.Require().NoError(err)
	s.Equal(88, report.Assessment.TrustScore)
	s.Equal(StatusSuccess, s.statusOf(report, StageForensic))
}

func (s *ServiceTestSuite) TestPanickingSinkDoesNotAbortAnalysis() {
	report, err := s.analyzeWithSink(explodingSink{})
	s.Require().NoError(err)
	s.Equal(88, report.Assessment.TrustScore)
	s.Len(report.StageLogs, 5)
}

func (s *ServiceTestSuite) TestGeneratesReceiptID() {
	s.img.ReceiptID = ""

	report, err := s.service().AnalyzeImage(context.Background(), s.img)
	s.Require().NoError(err)
	s.NotEmpty(report.ReceiptID)
}

func (s *ServiceTestSuite) TestEmptyImageIsError() {
	s.img.Data = nil

	_, err := s.service().AnalyzeImage(context.Background(), s.img)
	s.Error(err)
}

func (s *ServiceTestSuite) TestAnalyzeReceiptReadsFile() {
	path := filepath.Join(s.T().TempDir(), "receipt.png")
	s.Require().NoError(os.WriteFile(path, s.img.Data, 0o600))

	report, err := s.service().AnalyzeReceipt(context.Background(), path, "file-1")
	s.Require().NoError(err)
	s.Equal("file-1", report.ReceiptID)
}

func (s *ServiceTestSuite) TestAnalyzeReceiptMissingFile() {
	_, err := s.service().AnalyzeReceipt(context.Background(), filepath.Join(s.T().TempDir(), "nope.png"), "x")
	s.Require().Error(err)
	s.ErrorIs(err, os.ErrNotExist)
}

func TestServiceTestSuite(t *testing.T) {
	suite.Run(t, new(ServiceTestSuite))
}

func TestRunStageClassifiesErrors(t *testing.T) {
	out := runStage(context.Background(), StageVision, 10*time.Millisecond, func(ctx context.Context) (*VisionResult, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	require.Error(t, out.Err)
	assert.ErrorIs(t, out.Err, ErrStageTimeout)
	assert.False(t, out.OK())

	out = runStage(context.Background(), StageVision, 0, func(context.Context) (*VisionResult, error) {
		return nil, nil
	})
	assert.ErrorIs(t, out.Err, ErrStageFailure)

	out = runStage(context.Background(), StageVision, 0, func(context.Context) (*VisionResult, error) {
		return &VisionResult{Confidence: 1}, nil
	})
	assert.True(t, out.OK())
}
