package dotprod

import (
	"math"

	"github.com/jvlmdr/go-cv/rimg64"
)

// MinDotNaive computes the same score as MinDot
// by visiting every neighbour of every pixel.
func MinDotNaive(f *rimg64.Multi, window int, thresh float64) *rimg64.Multi {
	checkWindow(window)
	checkFlow(f)
	m := Margin(window)
	g := Threshold(f, thresh)
	at := func(x, y int) (float64, float64) {
		if x < 0 || x >= g.Width || y < 0 || y >= g.Height {
			return 0, 0
		}
		return g.At(x, y, 0), g.At(x, y, 1)
	}

	dst := rimg64.NewMulti(f.Width, f.Height, 1)
	for x := 0; x < f.Width; x++ {
		for y := 0; y < f.Height; y++ {
			u, v := at(x, y)
			score := math.Inf(1)
			for i := -m; i <= m; i++ {
				for j := -m; j <= m; j++ {
					if i == 0 && j == 0 {
						continue
					}
					p, q := at(x+i, y+j)
					// Conversions prevent fused multiply-add.
					d := float64(u*p) + float64(v*q)
					score = math.Min(score, d)
				}
			}
			dst.Set(x, y, 0, score)
		}
	}
	return dst
}
