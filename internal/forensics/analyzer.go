package forensics

import (
	"context"
	"fmt"

	"github.com/mikey/receipt-forensics/internal/config"
	"github.com/mikey/receipt-forensics/internal/core"
	"go.uber.org/zap"
)

// Forensic sub-stage checkpoints
const (
	progressPixel     = 45
	progressELA       = 50
	progressMetadata  = 55
	progressSynthesis = 60
	progressComplete  = 65
)

// Analyzer is the forensic stage: decode, pixel detectors, ELA and verdict
type Analyzer struct {
	pixel  *PixelAnalyzer
	ela    *ELAAnalyzer
	logger *zap.Logger
}

// NewAnalyzer creates a new forensic analyzer
func NewAnalyzer(cfg config.ForensicsConfig, logger *zap.Logger) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{
		pixel:  NewPixelAnalyzer(cfg),
		ela:    NewELAAnalyzer(cfg),
		logger: logger,
	}
}

// Analyze implements core.ForensicStage
func (a *Analyzer) Analyze(ctx context.Context, img core.ImageInput, hints core.VisionHints, metadataRisk float64, progress core.ProgressFunc) (*core.ForensicVerdict, error) {
	emit := func(stage, message string, pct int, details map[string]any) {
		if progress != nil {
			progress(stage, message, pct, details)
		}
	}

	merchant, amount := hints.MerchantName, hints.TotalAmount
	if merchant == "" {
		merchant = "merchant"
	}
	if amount == "" {
		amount = "amount"
	}
	emit("pixel_analysis", fmt.Sprintf("Stage 1/5: Examining pixel patterns around %q and %s fields", merchant, amount), progressPixel, nil)

	raster, err := Decode(img.Data)
	if err != nil {
		a.logger.Warn("Cannot decode receipt image, using zeroed forensic results",
			zap.String("receipt_id", img.ReceiptID),
			zap.Error(err))
		verdict := SynthesizeVerdict(zeroPixelResult(), zeroELAResult(), metadataRisk)
		verdict.TechnicalDetails.DecodeError = err.Error()
		emit("complete", "Forensic analysis degraded: image could not be decoded", progressComplete,
			map[string]any{"manipulation_score": verdict.ManipulationScore, "verdict": verdict.Verdict, "decode_error": err.Error()})
		return &verdict, err
	}

	pixel, err := a.pixel.Analyze(ctx, raster)
	if err != nil {
		return nil, err
	}
	emit("pixel_analysis", "Pixel analysis complete", progressPixel, map[string]any{
		"noise_variance":    pixel.NoiseVariance,
		"compression_score": pixel.CompressionScore,
		"clone_count":       len(pixel.CloneRegions),
		"edge_score":        pixel.EdgeScore,
	})

	emit("ela_analysis", "Stage 2/5: Running error level analysis on the re-saved image", progressELA, nil)
	ela, err := a.ela.Analyze(ctx, raster)
	if err != nil {
		return nil, fmt.Errorf("failed to run error level analysis: %w", err)
	}

	emit("metadata_fusion", "Stage 3/5: Fusing metadata risk", progressMetadata, map[string]any{
		"metadata_risk":         metadataRisk,
		"manipulation_detected": ela.ManipulationDetected,
		"suspicious_regions":    len(ela.SuspiciousRegions),
	})

	emit("synthesis", "Stage 4/5: Synthesizing forensic verdict", progressSynthesis, nil)
	verdict := SynthesizeVerdict(pixel, ela, metadataRisk)

	emit("complete", "Stage 5/5: Forensic analysis complete", progressComplete, map[string]any{
		"manipulation_score": verdict.ManipulationScore,
		"verdict":            verdict.Verdict,
		"techniques":         len(verdict.TechniquesDetected),
	})

	a.logger.Debug("Forensic analysis complete",
		zap.String("receipt_id", img.ReceiptID),
		zap.Int("manipulation_score", verdict.ManipulationScore),
		zap.String("verdict", string(verdict.Verdict)))

	return &verdict, nil
}

func zeroPixelResult() core.PixelForensicResult {
	return core.PixelForensicResult{CloneRegions: []core.ClonePair{}}
}

func zeroELAResult() core.ELAResult {
	return core.ELAResult{
		Techniques:        []string{},
		SuspiciousRegions: []core.Region{},
		Heatmap:           [][]float64{},
		PixelDiff: core.PixelDiffMap{
			DiffMap:  [][]uint8{},
			Hotspots: []core.Hotspot{},
		},
	}
}
