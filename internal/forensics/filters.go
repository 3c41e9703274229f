package forensics

import "math"

// laplacian applies the 4-neighbour kernel [[0,1,0],[1,-4,1],[0,1,0]] with a
// reflect-101 border
func laplacian(p plane) plane {
	out := plane{w: p.w, h: p.h, px: make([]float64, len(p.px))}
	for y := 0; y < p.h; y++ {
		up, down := reflect101(y-1, p.h), reflect101(y+1, p.h)
		for x := 0; x < p.w; x++ {
			left, right := reflect101(x-1, p.w), reflect101(x+1, p.w)
			out.px[y*p.w+x] = p.at(x, up) + p.at(x, down) + p.at(left, y) + p.at(right, y) - 4*p.at(x, y)
		}
	}
	return out
}

// sobelMagnitude returns sqrt(gx²+gy²) of the 3×3 Sobel derivatives with a
// reflect-101 border
func sobelMagnitude(p plane) plane {
	out := plane{w: p.w, h: p.h, px: make([]float64, len(p.px))}
	for y := 0; y < p.h; y++ {
		y0, y2 := reflect101(y-1, p.h), reflect101(y+1, p.h)
		for x := 0; x < p.w; x++ {
			x0, x2 := reflect101(x-1, p.w), reflect101(x+1, p.w)
			gx := (p.at(x2, y0) + 2*p.at(x2, y) + p.at(x2, y2)) -
				(p.at(x0, y0) + 2*p.at(x0, y) + p.at(x0, y2))
			gy := (p.at(x0, y2) + 2*p.at(x, y2) + p.at(x2, y2)) -
				(p.at(x0, y0) + 2*p.at(x, y0) + p.at(x2, y0))
			out.px[y*p.w+x] = math.Sqrt(gx*gx + gy*gy)
		}
	}
	return out
}
