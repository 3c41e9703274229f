package forensics

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func flatGray(w, h int, v uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = v
	}
	return img
}

func horizontalGradient(w, h int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetGray(x, y, color.Gray{Y: uint8(64 + x*128/w)})
		}
	}
	return img
}

func noise(w, h int, seed int64) *image.Gray {
	rng := rand.New(rand.NewSource(seed))
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = uint8(rng.Intn(256))
	}
	return img
}

// halfNoise is flat on the left half and random on the right half
func halfNoise(w, h int, seed int64) *image.Gray {
	img := flatGray(w, h, 200)
	rng := rand.New(rand.NewSource(seed))
	for y := 0; y < h; y++ {
		for x := w / 2; x < w; x++ {
			img.SetGray(x, y, color.Gray{Y: uint8(rng.Intn(256))})
		}
	}
	return img
}

// copyBlock copies a size×size block from (sx, sy) to (dx, dy)
func copyBlock(img *image.Gray, sx, sy, dx, dy, size int) {
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			img.SetGray(dx+x, dy+y, img.GrayAt(sx+x, sy+y))
		}
	}
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}
