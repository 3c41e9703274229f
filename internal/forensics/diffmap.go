package forensics

import (
	"image"
	"math"

	"github.com/mikey/receipt-forensics/internal/config"
	"github.com/mikey/receipt-forensics/internal/core"
	"golang.org/x/image/draw"
)

const (
	diffChangedLevel  = 10.0
	hotspotMinChanged = 0.15
)

type diffMapper struct {
	maxDim      int
	window      int
	stride      int
	maxHotspots int
}

func newDiffMapper(cfg config.ForensicsConfig) diffMapper {
	return diffMapper{
		maxDim:      cfg.DiffMaxDimension,
		window:      cfg.HotspotWindow,
		stride:      cfg.HotspotStride,
		maxHotspots: cfg.MaxHotspots,
	}
}

// build compares two luma planes of the same size
func (m diffMapper) build(orig, recompressed []uint8, w, h int) core.PixelDiffMap {
	diff := plane{w: w, h: h, px: make([]float64, w*h)}
	changed := 0
	for i := range diff.px {
		d := math.Abs(float64(orig[i]) - float64(recompressed[i]))
		diff.px[i] = d
		if d > diffChangedLevel {
			changed++
		}
	}
	maxDiff := maxOf(diff.px)

	normalized := image.NewGray(image.Rect(0, 0, w, h))
	for i, d := range diff.px {
		if maxDiff > 0 {
			normalized.Pix[i] = uint8(d / maxDiff * 255)
		} else {
			normalized.Pix[i] = uint8(d)
		}
	}

	scaled := normalized
	if m.maxDim > 0 && (h > m.maxDim || w > m.maxDim) {
		scale := math.Min(float64(m.maxDim)/float64(h), float64(m.maxDim)/float64(w))
		nh, nw := int(float64(h)*scale), int(float64(w)*scale)
		nh, nw = max(nh, 1), max(nw, 1)
		scaled = image.NewGray(image.Rect(0, 0, nw, nh))
		draw.BiLinear.Scale(scaled, scaled.Bounds(), normalized, normalized.Bounds(), draw.Src, nil)
	}

	sb := scaled.Bounds()
	rows := make([][]uint8, sb.Dy())
	for y := range rows {
		rows[y] = append([]uint8(nil), scaled.Pix[y*scaled.Stride:y*scaled.Stride+sb.Dx()]...)
	}

	total := w * h
	return core.PixelDiffMap{
		DiffMap:    rows,
		Dimensions: core.Dimensions{Width: sb.Dx(), Height: sb.Dy()},
		Statistics: core.DiffStatistics{
			ChangedPixels:    changed,
			TotalPixels:      total,
			ChangePercentage: float64(changed) / float64(total) * 100,
			MaxDifference:    maxDiff,
			MeanDifference:   mean(diff.px),
		},
		Hotspots: m.hotspots(diff),
	}
}

// hotspots slides a window over the full resolution, un-normalized difference
func (m diffMapper) hotspots(diff plane) []core.Hotspot {
	out := []core.Hotspot{}
	if m.window <= 0 {
		return out
	}
	threshold := float64(m.window*m.window) * hotspotMinChanged
	for _, y := range blockOffsets(diff.h, m.window, m.stride) {
		for _, x := range blockOffsets(diff.w, m.window, m.stride) {
			region := diff.sub(x, y, m.window, m.window)
			changed := 0
			for _, v := range region.px {
				if v > diffChangedLevel {
					changed++
				}
			}
			if float64(changed) <= threshold {
				continue
			}
			out = append(out, core.Hotspot{
				X:             x,
				Y:             y,
				Width:         m.window,
				Height:        m.window,
				Intensity:     mean(region.px),
				ChangedPixels: changed,
			})
			if m.maxHotspots > 0 && len(out) >= m.maxHotspots {
				return out
			}
		}
	}
	return out
}
