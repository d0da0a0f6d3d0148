package denseflow

import (
	"image"

	"github.com/jvlmdr/go-cv/rimg64"
)

// HornSchunck estimates flow with the method of Horn and Schunck,
// solved with Jacobi iterations.
// Borders are mirrored.
type HornSchunck struct {
	// Smoothness weight.
	Alpha      float64
	Iterations int
}

// DefaultHornSchunck converges on frames of a few hundred pixels.
var DefaultHornSchunck = HornSchunck{Alpha: 100, Iterations: 160}

func (h HornSchunck) Estimate(prev, next image.Image) (*rimg64.Multi, error) {
	if err := checkFrames(prev, next); err != nil {
		return nil, err
	}
	return h.EstimateGray(Gray(prev), Gray(next)), nil
}

// EstimateGray computes the flow between two single-channel images.
func (h HornSchunck) EstimateGray(f1, f2 *rimg64.Multi) *rimg64.Multi {
	d := derivatives(f1, f2)
	width, height := f1.Width, f1.Height
	uv := rimg64.NewMulti(width, height, 2)
	old := rimg64.NewMulti(width, height, 2)
	for k := 0; k < h.Iterations; k++ {
		copy(old.Elems, uv.Elems)
		jacobi(1/h.Alpha, d, old, uv)
	}
	return uv
}

// Channels of the derivative image.
const (
	fx = iota
	fy
	ft
)

// derivatives averages central differences of the two frames in space
// and takes the difference in time.
func derivatives(f1, f2 *rimg64.Multi) *rimg64.Multi {
	width, height := f1.Width, f1.Height
	at := func(f *rimg64.Multi, x, y int) float64 {
		return f.At(mirror(x, width), mirror(y, height), 0)
	}
	d := rimg64.NewMulti(width, height, 3)
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			dx := at(f1, x+1, y) - at(f1, x-1, y) + at(f2, x+1, y) - at(f2, x-1, y)
			dy := at(f1, x, y+1) - at(f1, x, y-1) + at(f2, x, y+1) - at(f2, x, y-1)
			d.Set(x, y, fx, dx/4)
			d.Set(x, y, fy, dy/4)
			d.Set(x, y, ft, f2.At(x, y, 0)-f1.At(x, y, 0))
		}
	}
	return d
}

// jacobi performs one iteration from old into uv.
// Neighbours outside the image do not contribute.
func jacobi(help float64, d, old, uv *rimg64.Multi) {
	width, height := uv.Width, uv.Height
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			var n int
			var u, v float64
			for _, p := range [...]image.Point{{x - 1, y}, {x + 1, y}, {x, y - 1}, {x, y + 1}} {
				if p.X < 0 || p.X >= width || p.Y < 0 || p.Y >= height {
					continue
				}
				n++
				u += old.At(p.X, p.Y, 0)
				v += old.At(p.X, p.Y, 1)
			}
			if n == 0 {
				continue
			}
			dx, dy, dt := d.At(x, y, fx), d.At(x, y, fy), d.At(x, y, ft)
			u0, v0 := old.At(x, y, 0), old.At(x, y, 1)
			u -= help * dx * (dy*v0 + dt)
			u /= float64(n) + help*dx*dx
			v -= help * dy * (dx*u0 + dt)
			v /= float64(n) + help*dy*dy
			uv.Set(x, y, 0, u)
			uv.Set(x, y, 1, v)
		}
	}
}

// mirror reflects an index into [0, n) with the border sample repeated.
func mirror(i, n int) int {
	if n == 1 {
		return 0
	}
	for i < 0 || i >= n {
		if i < 0 {
			i = -i - 1
		}
		if i >= n {
			i = 2*n - i - 1
		}
	}
	return i
}
