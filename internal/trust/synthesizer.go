package trust

import (
	"fmt"
	"math"

	"github.com/mikey/receipt-forensics/internal/config"
	"github.com/mikey/receipt-forensics/internal/core"
	"go.uber.org/zap"
)

// Scoring constants
const (
	weakOCRConfidence   = 50
	failedOCRConfidence = 30
	failedOCRPenalty    = 30.0
	weakOCRPenalty      = 15.0
	ocrRewardFactor     = 0.6
	lowTextPenalty      = 25.0
	anomalyPenalty      = 8.0
	manipulationFactor  = 0.4
	metadataFlagPenalty = 5.0
	fraudReportPenalty  = 15.0
	verifiedBonus       = 10.0
	verifiedBonusFloor  = 40.0
)

// Verdict cut-offs on the trust score, plus the hard overrides
const (
	authenticFloor       = 80
	suspiciousFloor      = 60
	unclearFloor         = 35
	overrideFraudReports = 2
	overrideManipulation = 70
)

// Synthesizer reduces an aggregate of stage results to a trust assessment
type Synthesizer struct {
	cfg    config.TrustConfig
	logger *zap.Logger
}

// NewSynthesizer creates a new trust synthesizer
func NewSynthesizer(cfg config.TrustConfig, logger *zap.Logger) *Synthesizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Synthesizer{cfg: cfg, logger: logger}
}

// signals are the scalar inputs read off the aggregate; missing stages read as zero
type signals struct {
	confidence   int
	textLength   int
	anomalies    []string
	manipulation int
	techniques   []string
	metaFlags    []string
	fraudReports int
	verified     bool
}

func readSignals(agg core.AggregateResult) signals {
	var s signals
	if v := agg.Vision; v != nil {
		s.confidence = v.Confidence
		s.textLength = len([]rune(v.OCRText))
		s.anomalies = v.VisualAnomalies
	}
	if f := agg.Forensic; f != nil {
		s.manipulation = f.ManipulationScore
		s.techniques = f.TechniquesDetected
	}
	if m := agg.Metadata; m != nil {
		s.metaFlags = m.Flags
	}
	if r := agg.Reputation; r != nil {
		s.fraudReports = r.TotalFraudReports
		s.verified = r.Merchant != nil && r.Merchant.Verified
	}
	return s
}

// Synthesize implements core.TrustSynthesizer. On an internal fault it returns
// the default assessment together with an error wrapping core.ErrSynthesis.
func (s *Synthesizer) Synthesize(agg core.AggregateResult) (assessment core.TrustAssessment, err error) {
	defer func() {
		if r := recover(); r != nil {
			assessment = DefaultAssessment()
			err = fmt.Errorf("%w: %v", core.ErrSynthesis, r)
		}
	}()

	sig := readSignals(agg)
	if err := sig.validate(); err != nil {
		return DefaultAssessment(), fmt.Errorf("%w: %v", core.ErrSynthesis, err)
	}

	score := s.score(sig)
	verdict := determineVerdict(score, sig)
	issues := s.compileIssues(sig)

	s.logger.Debug("Trust score computed",
		zap.Int("ocr_confidence", sig.confidence),
		zap.Int("anomalies", len(sig.anomalies)),
		zap.Int("manipulation_score", sig.manipulation),
		zap.Int("fraud_reports", sig.fraudReports),
		zap.Int("trust_score", score),
		zap.String("verdict", string(verdict)))

	return core.TrustAssessment{
		TrustScore:     score,
		Verdict:        verdict,
		Issues:         issues,
		Recommendation: recommendation(verdict, score, issues),
	}, nil
}

func (sig signals) validate() error {
	switch {
	case sig.fraudReports < 0:
		return fmt.Errorf("negative fraud report count %d", sig.fraudReports)
	case sig.manipulation < 0 || sig.manipulation > 100:
		return fmt.Errorf("manipulation score %d out of range", sig.manipulation)
	}
	return nil
}

func (s *Synthesizer) score(sig signals) int {
	score := s.cfg.BaseScore

	switch {
	case sig.confidence < failedOCRConfidence:
		score -= failedOCRPenalty
	case sig.confidence < weakOCRConfidence:
		score -= weakOCRPenalty
	default:
		score += float64(sig.confidence-weakOCRConfidence) * ocrRewardFactor
	}
	if sig.textLength < s.cfg.MinTextLength {
		score -= lowTextPenalty
	}
	score -= float64(len(sig.anomalies)) * anomalyPenalty
	score -= float64(sig.manipulation) * manipulationFactor
	score -= float64(len(sig.metaFlags)) * metadataFlagPenalty
	score -= float64(sig.fraudReports) * fraudReportPenalty
	if sig.verified && score > verifiedBonusFloor {
		score += verifiedBonus
	}

	// truncate toward zero before clamping
	return max(0, min(100, int(math.Trunc(score))))
}

func determineVerdict(score int, sig signals) core.Verdict {
	if sig.fraudReports >= overrideFraudReports || sig.manipulation >= overrideManipulation {
		return core.VerdictFraudulent
	}
	switch {
	case score >= authenticFloor:
		return core.VerdictAuthentic
	case score >= suspiciousFloor:
		return core.VerdictSuspicious
	case score >= unclearFloor:
		return core.VerdictUnclear
	default:
		return core.VerdictFraudulent
	}
}

func (s *Synthesizer) compileIssues(sig signals) []core.Issue {
	issues := []core.Issue{}
	for _, anomaly := range sig.anomalies {
		issues = append(issues, core.Issue{
			Kind:        core.IssueVisualManipulation,
			Severity:    core.SeverityHigh,
			Description: anomaly,
		})
	}
	if sig.confidence < weakOCRConfidence {
		issues = append(issues, core.Issue{
			Kind:        core.IssueOCRFailure,
			Severity:    core.SeverityHigh,
			Description: fmt.Sprintf("Failed to extract text reliably (confidence: %d%%) - possible tampering or poor image quality", sig.confidence),
		})
	}
	if sig.textLength < s.cfg.MinTextLength {
		issues = append(issues, core.Issue{
			Kind:        core.IssueInsufficientData,
			Severity:    core.SeverityHigh,
			Description: fmt.Sprintf("Very little text extracted (%d characters) - receipt may be fake or image corrupted", sig.textLength),
		})
	}
	for _, technique := range sig.techniques {
		issues = append(issues, core.Issue{
			Kind:        core.IssueForensicFinding,
			Severity:    core.SeverityHigh,
			Description: "Detected: " + technique,
		})
	}
	for _, flag := range sig.metaFlags {
		issues = append(issues, core.Issue{
			Kind:        core.IssueMetadata,
			Severity:    core.SeverityMedium,
			Description: flag,
		})
	}
	if sig.fraudReports > 0 {
		issues = append(issues, core.Issue{
			Kind:        core.IssueFraudHistory,
			Severity:    core.SeverityHigh,
			Description: fmt.Sprintf("Account has %d verified fraud report(s)", sig.fraudReports),
		})
	}
	return issues
}

// DefaultAssessment is the safe result used when synthesis cannot complete
func DefaultAssessment() core.TrustAssessment {
	return core.TrustAssessment{
		TrustScore: 50,
		Verdict:    core.VerdictUnclear,
		Issues: []core.Issue{{
			Kind:        core.IssueAnalysisError,
			Severity:    core.SeverityMedium,
			Description: "Unable to complete full analysis",
		}},
		Recommendation: "Manual verification recommended",
	}
}
