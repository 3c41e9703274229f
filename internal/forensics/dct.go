package forensics

import "math"

// dctBasis holds the orthonormal DCT-II matrix for an n-point transform
type dctBasis struct {
	n int
	c []float64
}

func newDCTBasis(n int) dctBasis {
	b := dctBasis{n: n, c: make([]float64, n*n)}
	for k := 0; k < n; k++ {
		scale := math.Sqrt(2.0 / float64(n))
		if k == 0 {
			scale = math.Sqrt(1.0 / float64(n))
		}
		for i := 0; i < n; i++ {
			b.c[k*n+i] = scale * math.Cos(math.Pi*float64(2*i+1)*float64(k)/float64(2*n))
		}
	}
	return b
}

// transform computes the 2-D DCT-II of an n×n block as C·X·Cᵀ
func (b dctBasis) transform(block []float64) []float64 {
	n := b.n
	tmp := make([]float64, n*n)
	for k := 0; k < n; k++ {
		for j := 0; j < n; j++ {
			var s float64
			for i := 0; i < n; i++ {
				s += b.c[k*n+i] * block[i*n+j]
			}
			tmp[k*n+j] = s
		}
	}
	out := make([]float64, n*n)
	for k := 0; k < n; k++ {
		for l := 0; l < n; l++ {
			var s float64
			for j := 0; j < n; j++ {
				s += tmp[k*n+j] * b.c[l*n+j]
			}
			out[k*n+l] = s
		}
	}
	return out
}
