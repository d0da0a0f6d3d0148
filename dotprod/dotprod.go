package dotprod

import (
	"fmt"
	"math"

	"github.com/jvlmdr/go-cv/rimg64"
	"gonum.org/v1/gonum/floats"
)

// MinDot computes the reversal score of a 2-channel flow field.
// The score at each pixel is the minimum dot product of its vector
// with the vectors of its neighbours in a window x window square.
// Vectors with squared norm below thresh are zero.
// Neighbours outside the field are zero.
// The result has one channel.
//
// Each pair of pixels is only multiplied once.
// The rows of the padded field are multiplied with the rows of the
// field shifted by each offset in HalfOffsets, and the product is
// attributed to both ends of the pair.
func MinDot(f *rimg64.Multi, window int, thresh float64) *rimg64.Multi {
	checkWindow(window)
	checkFlow(f)
	m := Margin(window)
	p := pad(f, m, thresh)

	width, height := f.Width, f.Height
	score := make([]float64, width*height)
	for i := range score {
		score[i] = math.Inf(1)
	}
	update := func(x, y int, d float64) {
		// Position in padded coordinates.
		x, y = x-m, y-m
		if x < 0 || x >= width || y < 0 || y >= height {
			return
		}
		if i := y*width + x; d < score[i] {
			score[i] = d
		}
	}

	prod := make([]float64, p.width)
	tmp := make([]float64, p.width)
	for _, s := range HalfOffsets(m) {
		n := p.width - s.X
		for y := 0; y < p.height; y++ {
			yb := y + s.Y
			if yb < 0 || yb >= p.height {
				continue
			}
			ua, va := p.row(y, 0, n)
			ub, vb := p.row(yb, s.X, n)
			floats.MulTo(prod[:n], ua, ub)
			floats.MulTo(tmp[:n], va, vb)
			floats.Add(prod[:n], tmp[:n])
			for x, d := range prod[:n] {
				update(x, y, d)
				update(x+s.X, yb, d)
			}
		}
	}

	dst := rimg64.NewMulti(width, height, 1)
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			dst.Set(x, y, 0, score[y*width+x])
		}
	}
	return dst
}

// padded stores the two channels of a flow field in row-major order
// with a zero border.
type padded struct {
	width, height int
	u, v          []float64
}

// row returns n elements of row y starting at column x.
func (p *padded) row(y, x, n int) (u, v []float64) {
	i := y*p.width + x
	return p.u[i : i+n], p.v[i : i+n]
}

func pad(f *rimg64.Multi, margin int, thresh float64) *padded {
	p := &padded{width: f.Width + 2*margin, height: f.Height + 2*margin}
	p.u = make([]float64, p.width*p.height)
	p.v = make([]float64, p.width*p.height)
	for x := 0; x < f.Width; x++ {
		for y := 0; y < f.Height; y++ {
			u, v := f.At(x, y, 0), f.At(x, y, 1)
			if u*u+v*v < thresh {
				continue
			}
			i := (y+margin)*p.width + x + margin
			p.u[i], p.v[i] = u, v
		}
	}
	return p
}

// Threshold returns a copy of f in which every vector
// with squared norm below thresh is zero.
func Threshold(f *rimg64.Multi, thresh float64) *rimg64.Multi {
	checkFlow(f)
	g := rimg64.NewMulti(f.Width, f.Height, 2)
	for x := 0; x < f.Width; x++ {
		for y := 0; y < f.Height; y++ {
			u, v := f.At(x, y, 0), f.At(x, y, 1)
			if u*u+v*v < thresh {
				continue
			}
			g.Set(x, y, 0, u)
			g.Set(x, y, 1, v)
		}
	}
	return g
}

func checkWindow(window int) {
	if window < 3 || window%2 == 0 {
		panic(fmt.Sprintf("window must be odd and at least 3: %d", window))
	}
}

func checkFlow(f *rimg64.Multi) {
	if f.Channels != 2 {
		panic(fmt.Sprintf("flow must have 2 channels: %d", f.Channels))
	}
}
