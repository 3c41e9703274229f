package forensics

import (
	"fmt"

	"github.com/mikey/receipt-forensics/internal/core"
)

// Score contributions of each forensic signal
const (
	weightNoise       = 30.0
	weightCompression = 20.0
	weightClone       = 40.0
	weightELA         = 40.0
	maxMetadataWeight = 10.0
)

const (
	labelClone     = "Clone/Copy-Paste Detection"
	indicatorNoise = "Consistent noise pattern"
	indicatorELA   = "No ELA anomalies detected"
)

// Verdict cut-offs on the manipulation score
const (
	fraudulentThreshold = 70
	suspiciousThreshold = 40
	unclearThreshold    = 20
)

// SynthesizeVerdict combines pixel and ELA results with the metadata risk into
// a bounded manipulation score and verdict
func SynthesizeVerdict(pixel core.PixelForensicResult, ela core.ELAResult, metadataRisk float64) core.ForensicVerdict {
	score := 0.0
	if pixel.NoiseInconsistency {
		score += weightNoise
	}
	if pixel.CompressionAnomalies {
		score += weightCompression
	}
	if pixel.CloneDetected {
		score += weightClone
	}
	if ela.ManipulationDetected {
		score += weightELA
	}
	score += min(maxMetadataWeight, metadataRisk*0.1)
	score = max(0, min(100, score))
	manipulation := int(score)

	techniques := []string{}
	if pixel.CloneDetected {
		techniques = append(techniques, labelClone)
	}
	if ela.ManipulationDetected {
		techniques = append(techniques, ela.Techniques...)
	}

	indicators := []string{}
	if !pixel.NoiseInconsistency {
		indicators = append(indicators, indicatorNoise)
	}
	if !ela.ManipulationDetected {
		indicators = append(indicators, indicatorELA)
	}

	verdict := classify(manipulation)
	return core.ForensicVerdict{
		ManipulationScore:      manipulation,
		Verdict:                verdict,
		TechniquesDetected:     techniques,
		AuthenticityIndicators: indicators,
		Summary:                summary(verdict, manipulation),
		TechnicalDetails: core.TechnicalDetails{
			Pixel:           pixel,
			ELA:             ela,
			MetadataRisk:    metadataRisk,
			ImageDimensions: ela.ImageDimensions,
		},
	}
}

func classify(score int) core.Verdict {
	switch {
	case score >= fraudulentThreshold:
		return core.VerdictFraudulent
	case score >= suspiciousThreshold:
		return core.VerdictSuspicious
	case score >= unclearThreshold:
		return core.VerdictUnclear
	default:
		return core.VerdictAuthentic
	}
}

func summary(v core.Verdict, score int) string {
	switch v {
	case core.VerdictFraudulent:
		return fmt.Sprintf("FRAUDULENT DETECTED: %d/100 manipulation score. Multiple forgery indicators found.", score)
	case core.VerdictSuspicious:
		return fmt.Sprintf("SUSPICIOUS: %d/100 manipulation score. Some anomalies detected, verification recommended.", score)
	case core.VerdictUnclear:
		return fmt.Sprintf("UNCLEAR: %d/100 manipulation score. Insufficient evidence for definitive verdict.", score)
	default:
		return fmt.Sprintf("AUTHENTIC: %d/100 manipulation score. No significant forgery indicators detected.", score)
	}
}
