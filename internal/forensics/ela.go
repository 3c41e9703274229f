package forensics

import (
	"bytes"
	"context"
	"fmt"
	"image/jpeg"
	"math"

	"github.com/mikey/receipt-forensics/internal/config"
	"github.com/mikey/receipt-forensics/internal/core"
)

const (
	elaRegionMeanFactor = 1.5
	elaRegionMaxError   = 150.0
	elaBrightLevel      = 128.0
	elaBrightRatio      = 0.15
)

// ELAAnalyzer performs error level analysis by re-encoding the image as JPEG
// and measuring how much each pixel moves
type ELAAnalyzer struct {
	cfg config.ForensicsConfig
}

// NewELAAnalyzer creates a new error level analyzer
func NewELAAnalyzer(cfg config.ForensicsConfig) *ELAAnalyzer {
	return &ELAAnalyzer{cfg: cfg}
}

// Analyze runs error level analysis over the raster
func (a *ELAAnalyzer) Analyze(ctx context.Context, r *Raster) (core.ELAResult, error) {
	recompressed, err := a.recompress(r)
	if err != nil {
		return core.ELAResult{}, err
	}
	if err := ctx.Err(); err != nil {
		return core.ELAResult{}, err
	}

	errMap := errorMap(r, recompressed)
	meanErr := mean(errMap.px)
	maxErr := maxOf(errMap.px)
	stdErr := stddev(errMap.px)

	bright := 0
	for _, v := range errMap.px {
		if v > elaBrightLevel {
			bright++
		}
	}
	brightRatio := float64(bright) / float64(len(errMap.px))

	regions := suspiciousRegions(errMap, a.cfg.ELAGrid, meanErr)

	res := core.ELAResult{
		Statistics: core.ELAStatistics{
			MeanError:        meanErr,
			MaxError:         maxErr,
			StdError:         stdErr,
			BrightPixelRatio: brightRatio,
		},
		SuspiciousRegions: regions,
		Heatmap:           heatmap(errMap, a.cfg.ELAHeatmapSize),
		ImageDimensions:   r.Dimensions(),
		Techniques:        []string{},
	}
	res.ManipulationDetected = stdErr > a.cfg.ELAStdThreshold || len(regions) > a.cfg.ELAMaxRegions

	if stdErr > a.cfg.ELAStdThreshold {
		res.Techniques = append(res.Techniques, fmt.Sprintf("High ELA variance (%.1f) - inconsistent JPEG compression", stdErr))
	}
	if len(regions) > a.cfg.ELAMaxRegions {
		res.Techniques = append(res.Techniques, fmt.Sprintf("%d suspicious regions detected", len(regions)))
	}
	if brightRatio > elaBrightRatio {
		res.Techniques = append(res.Techniques, fmt.Sprintf("Bright ELA patches (%.1f%%) - strong editing indicator", brightRatio*100))
	}

	res.PixelDiff = newDiffMapper(a.cfg).build(r.Luma, recompressed.Luma, r.Width, r.Height)
	return res, nil
}

// recompress round-trips the raster through the JPEG encoder
func (a *ELAAnalyzer) recompress(r *Raster) (*Raster, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, r.Image(), &jpeg.Options{Quality: a.cfg.ELAQuality}); err != nil {
		return nil, fmt.Errorf("failed to re-encode image: %w", err)
	}
	img, err := jpeg.Decode(&buf)
	if err != nil {
		return nil, fmt.Errorf("failed to decode re-encoded image: %w", err)
	}
	return FromImage(img), nil
}

// errorMap is the per-pixel absolute difference averaged over RGB
func errorMap(orig, recompressed *Raster) plane {
	p := plane{w: orig.Width, h: orig.Height, px: make([]float64, orig.Width*orig.Height)}
	for i := range p.px {
		var sum float64
		for c := 0; c < 3; c++ {
			sum += math.Abs(float64(orig.RGB[i*3+c]) - float64(recompressed.RGB[i*3+c]))
		}
		p.px[i] = sum / 3
	}
	return p
}

// suspiciousRegions scans a grid×grid partition of the error map. The grid is
// skipped when a cell would be empty.
func suspiciousRegions(errMap plane, grid int, meanErr float64) []core.Region {
	regions := []core.Region{}
	if grid <= 0 {
		return regions
	}
	cellH, cellW := errMap.h/grid, errMap.w/grid
	if cellH == 0 || cellW == 0 {
		return regions
	}
	for gy := 0; gy < grid; gy++ {
		for gx := 0; gx < grid; gx++ {
			cell := errMap.sub(gx*cellW, gy*cellH, cellW, cellH)
			cellMean := mean(cell.px)
			cellMax := maxOf(cell.px)
			if meanErr > 0 && (cellMean > meanErr*elaRegionMeanFactor || cellMax > elaRegionMaxError) {
				regions = append(regions, core.Region{
					X:         gx * cellW,
					Y:         gy * cellH,
					Width:     cellW,
					Height:    cellH,
					Severity:  min(100, int(cellMean/(meanErr+1e-6)*50)),
					MeanError: cellMean,
					MaxError:  cellMax,
				})
			}
		}
	}
	return regions
}

// heatmap averages the error map into a size×size grid; empty cells are zero
func heatmap(errMap plane, size int) [][]float64 {
	if size <= 0 {
		return [][]float64{}
	}
	cellH, cellW := errMap.h/size, errMap.w/size
	out := make([][]float64, size)
	for gy := 0; gy < size; gy++ {
		out[gy] = make([]float64, size)
		if cellH == 0 || cellW == 0 {
			continue
		}
		for gx := 0; gx < size; gx++ {
			out[gy][gx] = mean(errMap.sub(gx*cellW, gy*cellH, cellW, cellH).px)
		}
	}
	return out
}
