package forensics

const (
	ssimWindow    = 7
	ssimDataRange = 255.0
	ssimK1        = 0.01
	ssimK2        = 0.03
)

// ssim returns the mean structural similarity of two equally sized planes,
// using a 7×7 uniform window with sample covariance. Only windows that lie
// fully inside the block contribute to the mean.
func ssim(a, b plane) float64 {
	if a.w != b.w || a.h != b.h || a.w < ssimWindow || a.h < ssimWindow {
		return 0
	}
	const np = ssimWindow * ssimWindow
	covNorm := float64(np) / float64(np-1)
	c1 := (ssimK1 * ssimDataRange) * (ssimK1 * ssimDataRange)
	c2 := (ssimK2 * ssimDataRange) * (ssimK2 * ssimDataRange)

	var total float64
	var count int
	for y := 0; y+ssimWindow <= a.h; y++ {
		for x := 0; x+ssimWindow <= a.w; x++ {
			var sa, sb, saa, sbb, sab float64
			for dy := 0; dy < ssimWindow; dy++ {
				for dx := 0; dx < ssimWindow; dx++ {
					va := a.at(x+dx, y+dy)
					vb := b.at(x+dx, y+dy)
					sa += va
					sb += vb
					saa += va * va
					sbb += vb * vb
					sab += va * vb
				}
			}
			ua, ub := sa/np, sb/np
			vara := covNorm * (saa/np - ua*ua)
			varb := covNorm * (sbb/np - ub*ub)
			cov := covNorm * (sab/np - ua*ub)

			num := (2*ua*ub + c1) * (2*cov + c2)
			den := (ua*ua + ub*ub + c1) * (vara + varb + c2)
			total += num / den
			count++
		}
	}
	return finiteOrZero(total / float64(count))
}
