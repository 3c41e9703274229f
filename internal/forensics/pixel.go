package forensics

import (
	"context"
	"fmt"
	"image"

	"github.com/corona10/goimagehash"
	"github.com/mikey/receipt-forensics/internal/config"
	"github.com/mikey/receipt-forensics/internal/core"
	"golang.org/x/sync/errgroup"
)

// PixelAnalyzer runs the block-statistic detectors over a raster's luma plane
type PixelAnalyzer struct {
	cfg config.ForensicsConfig
}

// NewPixelAnalyzer creates a new pixel analyzer
func NewPixelAnalyzer(cfg config.ForensicsConfig) *PixelAnalyzer {
	return &PixelAnalyzer{cfg: cfg}
}

// Analyze runs noise, compression, clone and edge detection concurrently and
// merges the results once all four finish
func (a *PixelAnalyzer) Analyze(ctx context.Context, r *Raster) (core.PixelForensicResult, error) {
	var res core.PixelForensicResult
	lp := r.lumaPlane()

	var (
		noise, compression, edge float64
		clones                   []core.ClonePair
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		noise = noiseVariance(lp, a.cfg.NoiseBlockSize)
		return gctx.Err()
	})
	g.Go(func() error {
		compression = compressionScore(lp, a.cfg.DCTBlockSize)
		return gctx.Err()
	})
	g.Go(func() error {
		var err error
		clones, err = detectClones(gctx, lp, a.cfg)
		return err
	})
	g.Go(func() error {
		edge = edgeScore(lp, a.cfg.EdgeBlockSize)
		return gctx.Err()
	})
	if err := g.Wait(); err != nil {
		return res, fmt.Errorf("failed to run pixel detectors: %w", err)
	}

	res.NoiseVariance = noise
	res.NoiseInconsistency = noise > a.cfg.NoiseThreshold
	res.CompressionScore = compression
	res.CompressionAnomalies = compression > a.cfg.CompressionThreshold
	res.CloneRegions = clones
	if res.CloneRegions == nil {
		res.CloneRegions = []core.ClonePair{}
	}
	res.CloneDetected = len(clones) > 0
	res.EdgeScore = edge
	res.EdgeAnomalies = edge > a.cfg.EdgeThreshold
	return res, nil
}

// noiseVariance is the standard deviation, across blocks, of the variance of
// each block's Laplacian response
func noiseVariance(p plane, size int) float64 {
	var variances []float64
	for _, y := range blockOffsets(p.h, size, size) {
		for _, x := range blockOffsets(p.w, size, size) {
			variances = append(variances, variance(laplacian(p.sub(x, y, size, size)).px))
		}
	}
	return finiteOrZero(stddev(variances))
}

// compressionScore compares the high-frequency DCT energy across blocks.
// The score is std/max of the per-block variances of coefficients [n/2:n, n/2:n].
func compressionScore(p plane, size int) float64 {
	if size < 2 {
		return 0
	}
	basis := newDCTBasis(size)
	half := size / 2
	hf := make([]float64, 0, (size-half)*(size-half))

	var variances []float64
	for _, y := range blockOffsets(p.h, size, size) {
		for _, x := range blockOffsets(p.w, size, size) {
			coeffs := basis.transform(p.sub(x, y, size, size).px)
			hf = hf[:0]
			for k := half; k < size; k++ {
				hf = append(hf, coeffs[k*size+half:k*size+size]...)
			}
			variances = append(variances, variance(hf))
		}
	}
	if len(variances) == 0 {
		return 0
	}
	return finiteOrZero(stddev(variances) / (maxOf(variances) + 1e-6))
}

// detectClones hashes every window and confirms hash collisions with SSIM.
// Pairs are reported in raster-scan order of the duplicate window, stopping
// at cfg.CloneMaxPairs.
func detectClones(ctx context.Context, p plane, cfg config.ForensicsConfig) ([]core.ClonePair, error) {
	size := cfg.CloneBlockSize
	type seen struct {
		pos   core.Point
		block plane
	}
	first := make(map[uint64]seen)
	var pairs []core.ClonePair

	for _, y := range blockOffsets(p.h, size, cfg.CloneStride) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, x := range blockOffsets(p.w, size, cfg.CloneStride) {
			block := p.sub(x, y, size, size)
			if cfg.CloneMinVariance > 0 && variance(block.px) <= cfg.CloneMinVariance {
				continue
			}
			hash, err := goimagehash.DifferenceHash(grayImage(block))
			if err != nil {
				return nil, fmt.Errorf("failed to hash block at (%d,%d): %w", y, x, err)
			}
			key := hash.GetHash()
			pos := core.Point{Row: y, Col: x}
			prev, ok := first[key]
			if !ok {
				first[key] = seen{pos: pos, block: block}
				continue
			}
			if sim := ssim(block, prev.block); sim > cfg.CloneSimilarity {
				pairs = append(pairs, core.ClonePair{Origin: prev.pos, Duplicate: pos, Similarity: sim})
				if cfg.CloneMaxPairs > 0 && len(pairs) >= cfg.CloneMaxPairs {
					return pairs, nil
				}
			}
		}
	}
	return pairs, nil
}

// edgeScore is the coefficient of variation of per-block Sobel magnitude variance
func edgeScore(p plane, size int) float64 {
	mag := sobelMagnitude(p)
	var variances []float64
	for _, y := range blockOffsets(p.h, size, size) {
		for _, x := range blockOffsets(p.w, size, size) {
			variances = append(variances, variance(mag.sub(x, y, size, size).px))
		}
	}
	if len(variances) == 0 {
		return 0
	}
	return finiteOrZero(stddev(variances) / (mean(variances) + 1e-6))
}

func grayImage(p plane) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, p.w, p.h))
	for i, v := range p.px {
		img.Pix[i] = uint8(v)
	}
	return img
}
