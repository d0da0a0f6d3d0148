package cmlflow

import (
	"math"

	"github.com/jvlmdr/go-cv/rimg64"
	"github.com/kenya-sk/CIP/flow"
)

// AccumulateNaive computes the same result as Accumulate
// by walking the full window from every pixel at every time.
// It is much slower.
func AccumulateNaive(seq *flow.Series, window int, mask Mask) *flow.Series {
	size := checkInput(seq, window, mask)
	timeMax := seq.TimeMax()
	dst := flow.NewSeries(timeMax, size.X, size.Y, 2)
	for t := 2; t <= timeMax; t++ {
		end := windowEnd(t, window, timeMax)
		cml := dst.Fields[t]
		for x := 0; x < size.X; x++ {
			for y := 0; y < size.Y; y++ {
				if mask != nil && !validThrough(mask, t, end, x, y) {
					continue
				}
				dx, dy := walk(seq.Fields[t:end], x, y)
				cml.Set(x, y, 0, dx)
				cml.Set(x, y, 1, dy)
			}
		}
	}
	return dst
}

func validThrough(mask Mask, start, end, x, y int) bool {
	for s := start; s < end; s++ {
		if !mask.Valid(s, x, y) {
			return false
		}
	}
	return true
}

// walk follows the chain of fields starting at pixel (x, y)
// and returns the net displacement.
// The flow is sampled at the floor of the current position.
// The walk stops when the position leaves the grid.
func walk(fields []*rimg64.Multi, x, y int) (dx, dy float64) {
	i, j := float64(x), float64(y)
	for _, f := range fields {
		u, v := int(math.Floor(i)), int(math.Floor(j))
		if !inGrid(u, v, f.Width, f.Height) {
			break
		}
		i += f.At(u, v, 0)
		j += f.At(u, v, 1)
	}
	return i - float64(x), j - float64(y)
}

func inGrid(x, y, width, height int) bool {
	return x >= 0 && x < width && y >= 0 && y < height
}

// windowEnd returns one past the last flow index in the window starting at t.
func windowEnd(t, window, timeMax int) int {
	return min(t+window, timeMax+1)
}
