package forensics

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikey/receipt-forensics/internal/config"
	"github.com/mikey/receipt-forensics/internal/core"
)

func TestBlockOffsetsSkipsFlushBlock(t *testing.T) {
	assert.Equal(t, []int{0}, blockOffsets(64, 32, 32))
	assert.Equal(t, []int{0, 32}, blockOffsets(65, 32, 32))
	assert.Empty(t, blockOffsets(32, 32, 32))
	assert.Equal(t, []int{0, 8, 16}, blockOffsets(40, 16, 8))
}

func TestReflect101(t *testing.T) {
	assert.Equal(t, 1, reflect101(-1, 5))
	assert.Equal(t, 2, reflect101(-2, 5))
	assert.Equal(t, 3, reflect101(5, 5))
	assert.Equal(t, 4, reflect101(4, 5))
	assert.Equal(t, 0, reflect101(3, 1))
}

func TestLumaMatchesGrayModel(t *testing.T) {
	r := FromImage(noise(8, 8, 3))
	for i := range r.Luma {
		assert.Equal(t, r.RGB[i*3], r.Luma[i], "gray input keeps its luma")
	}
	assert.Equal(t, uint8(76), luma(255, 0, 0))
	assert.Equal(t, uint8(150), luma(0, 255, 0))
	assert.Equal(t, uint8(29), luma(0, 0, 255))
}

func TestDCTConstantBlockHasOnlyDC(t *testing.T) {
	b := newDCTBasis(8)
	block := make([]float64, 64)
	for i := range block {
		block[i] = 10
	}
	out := b.transform(block)
	assert.InDelta(t, 80.0, out[0], 1e-9)
	for i := 1; i < 64; i++ {
		assert.InDelta(t, 0.0, out[i], 1e-9)
	}
}

func TestSSIM(t *testing.T) {
	a := FromImage(noise(16, 16, 1)).lumaPlane()
	b := FromImage(noise(16, 16, 2)).lumaPlane()

	assert.InDelta(t, 1.0, ssim(a, a), 1e-9)
	assert.Less(t, ssim(a, b), 0.5)

	flat := FromImage(flatGray(16, 16, 90)).lumaPlane()
	assert.InDelta(t, 1.0, ssim(flat, flat), 1e-9)
	assert.Equal(t, 0.0, ssim(a, plane{w: 4, h: 4, px: make([]float64, 16)}))
}

func TestDetectClonesFindsCopiedBlock(t *testing.T) {
	cfg := config.DefaultForensicsConfig()
	img := noise(128, 128, 42)
	copyBlock(img, 8, 8, 96, 72, 16)

	pairs, err := detectClones(context.Background(), FromImage(img).lumaPlane(), cfg)
	require.NoError(t, err)
	require.NotEmpty(t, pairs)

	found := false
	for _, p := range pairs {
		if p.Origin == (core.Point{Row: 8, Col: 8}) && p.Duplicate == (core.Point{Row: 72, Col: 96}) {
			found = true
			assert.Greater(t, p.Similarity, cfg.CloneSimilarity)
			assert.LessOrEqual(t, p.Similarity, 1.0+1e-9)
		}
	}
	assert.True(t, found, "copied block should be reported, got %v", pairs)
}

func TestDetectClonesOnFlatImage(t *testing.T) {
	cfg := config.DefaultForensicsConfig()
	lp := FromImage(flatGray(96, 96, 240)).lumaPlane()

	t.Run("every window collides and the list is capped", func(t *testing.T) {
		pairs, err := detectClones(context.Background(), lp, cfg)
		require.NoError(t, err)
		require.Len(t, pairs, cfg.CloneMaxPairs)
		for _, p := range pairs {
			assert.Equal(t, core.Point{Row: 0, Col: 0}, p.Origin)
		}
		assert.Equal(t, core.Point{Row: 0, Col: 8}, pairs[0].Duplicate)
	})

	t.Run("minimum variance skips flat windows", func(t *testing.T) {
		cfg := cfg
		cfg.CloneMinVariance = 1
		pairs, err := detectClones(context.Background(), lp, cfg)
		require.NoError(t, err)
		assert.Empty(t, pairs)
	})
}

func TestDetectClonesHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := detectClones(ctx, FromImage(noise(64, 64, 1)).lumaPlane(), config.DefaultForensicsConfig())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPixelAnalyzer(t *testing.T) {
	cfg := config.DefaultForensicsConfig()
	a := NewPixelAnalyzer(cfg)

	t.Run("flat image has no noise, compression or edge anomalies", func(t *testing.T) {
		res, err := a.Analyze(context.Background(), FromImage(flatGray(128, 128, 128)))
		require.NoError(t, err)
		assert.False(t, res.NoiseInconsistency)
		assert.Zero(t, res.NoiseVariance)
		assert.False(t, res.CompressionAnomalies)
		assert.Zero(t, res.CompressionScore)
		assert.False(t, res.EdgeAnomalies)
		assert.Zero(t, res.EdgeScore)
	})

	t.Run("half noisy image is inconsistent", func(t *testing.T) {
		res, err := a.Analyze(context.Background(), FromImage(halfNoise(160, 160, 7)))
		require.NoError(t, err)
		assert.True(t, res.NoiseInconsistency)
		assert.Greater(t, res.NoiseVariance, cfg.NoiseThreshold)
		assert.True(t, res.EdgeAnomalies)
	})

	t.Run("tiny image yields no blocks", func(t *testing.T) {
		res, err := a.Analyze(context.Background(), FromImage(noise(8, 8, 5)))
		require.NoError(t, err)
		assert.Zero(t, res.NoiseVariance)
		assert.Zero(t, res.CompressionScore)
		assert.Zero(t, res.EdgeScore)
		assert.False(t, res.CloneDetected)
		assert.NotNil(t, res.CloneRegions)
	})

	t.Run("results are deterministic and finite", func(t *testing.T) {
		r := FromImage(halfNoise(128, 96, 11))
		first, err := a.Analyze(context.Background(), r)
		require.NoError(t, err)
		second, err := a.Analyze(context.Background(), r)
		require.NoError(t, err)
		assert.Equal(t, first, second)
		for _, v := range []float64{first.NoiseVariance, first.CompressionScore, first.EdgeScore} {
			assert.False(t, math.IsNaN(v) || math.IsInf(v, 0))
			assert.GreaterOrEqual(t, v, 0.0)
		}
		assert.LessOrEqual(t, len(first.CloneRegions), cfg.CloneMaxPairs)
	})
}
