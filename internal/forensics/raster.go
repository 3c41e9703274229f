package forensics

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/mikey/receipt-forensics/internal/core"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Raster is a decoded 8-bit RGB image with its luma plane. It is never
// mutated after construction and may be shared across goroutines.
type Raster struct {
	Width  int
	Height int
	// RGB holds three bytes per pixel, row major
	RGB []uint8
	// Luma holds one byte per pixel, row major
	Luma []uint8
}

// Decode decodes image bytes into a Raster. Errors wrap core.ErrDecode.
func Decode(data []byte) (*Raster, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrDecode, err)
	}
	r := FromImage(img)
	if r.Width == 0 || r.Height == 0 {
		return nil, fmt.Errorf("%w: empty %s image", core.ErrDecode, format)
	}
	return r, nil
}

// FromImage converts any image to a Raster. Alpha is dropped without
// compositing.
func FromImage(img image.Image) *Raster {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	r := &Raster{
		Width:  w,
		Height: h,
		RGB:    make([]uint8, w*h*3),
		Luma:   make([]uint8, w*h),
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
			i := y*w + x
			r.RGB[i*3] = c.R
			r.RGB[i*3+1] = c.G
			r.RGB[i*3+2] = c.B
			r.Luma[i] = luma(c.R, c.G, c.B)
		}
	}
	return r
}

// luma is the ITU-R 601-2 transform with fixed point rounding
func luma(r, g, b uint8) uint8 {
	return uint8((19595*uint32(r) + 38470*uint32(g) + 7471*uint32(b) + 1<<15) >> 16)
}

// Image returns the raster as an opaque RGBA image
func (r *Raster) Image() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, r.Width, r.Height))
	for i := 0; i < r.Width*r.Height; i++ {
		img.Pix[i*4] = r.RGB[i*3]
		img.Pix[i*4+1] = r.RGB[i*3+1]
		img.Pix[i*4+2] = r.RGB[i*3+2]
		img.Pix[i*4+3] = 0xff
	}
	return img
}

// Dimensions returns the raster size
func (r *Raster) Dimensions() core.Dimensions {
	return core.Dimensions{Width: r.Width, Height: r.Height}
}

// plane is a float64 grid used by the detectors
type plane struct {
	w, h int
	px   []float64
}

func (r *Raster) lumaPlane() plane {
	p := plane{w: r.Width, h: r.Height, px: make([]float64, len(r.Luma))}
	for i, v := range r.Luma {
		p.px[i] = float64(v)
	}
	return p
}

func (p plane) at(x, y int) float64 {
	return p.px[y*p.w+x]
}

// sub copies the w×h block at (x, y)
func (p plane) sub(x, y, w, h int) plane {
	out := plane{w: w, h: h, px: make([]float64, w*h)}
	for row := 0; row < h; row++ {
		copy(out.px[row*w:(row+1)*w], p.px[(y+row)*p.w+x:(y+row)*p.w+x+w])
	}
	return out
}

// blockOffsets lists block origins along a dimension. A block at offset o is
// used only when o+size < dim, so the trailing flush block is never scanned.
func blockOffsets(dim, size, step int) []int {
	if size <= 0 || step <= 0 {
		return nil
	}
	var out []int
	for o := 0; o < dim-size; o += step {
		out = append(out, o)
	}
	return out
}

// reflect101 maps an out-of-range index back into [0, n) mirroring around the
// edge pixel without repeating it
func reflect101(i, n int) int {
	if n == 1 {
		return 0
	}
	for i < 0 || i >= n {
		if i < 0 {
			i = -i
		}
		if i >= n {
			i = 2*(n-1) - i
		}
	}
	return i
}
