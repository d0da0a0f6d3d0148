package cmlflow

import (
	"math"
	"math/rand"
	"testing"

	"github.com/jvlmdr/go-cv/rimg64"
	"github.com/kenya-sk/CIP/flow"
)

func epsEq(want, got, eps float64) bool {
	return math.Abs(want-got) <= eps
}

// Generates a flow series with integer displacements in [-r, r].
func randIntSeries(r *rand.Rand, width, height, timeMax, radius int) *flow.Series {
	seq := flow.NewSeries(timeMax, width, height, 2)
	for t := 2; t <= timeMax; t++ {
		f := seq.Fields[t]
		for x := 0; x < width; x++ {
			for y := 0; y < height; y++ {
				f.Set(x, y, 0, float64(r.Intn(2*radius+1)-radius))
				f.Set(x, y, 1, float64(r.Intn(2*radius+1)-radius))
			}
		}
	}
	return seq
}

func constSeries(width, height, timeMax int, dx, dy float64) *flow.Series {
	seq := flow.NewSeries(timeMax, width, height, 2)
	for t := 2; t <= timeMax; t++ {
		fill(seq.Fields[t], dx, dy)
	}
	return seq
}

func fill(f *rimg64.Multi, dx, dy float64) {
	for x := 0; x < f.Width; x++ {
		for y := 0; y < f.Height; y++ {
			f.Set(x, y, 0, dx)
			f.Set(x, y, 1, dy)
		}
	}
}

func testSeriesEq(t *testing.T, want, got *flow.Series, eps float64) {
	if want.Len() != got.Len() {
		t.Fatalf("lengths differ: want %d, got %d", want.Len(), got.Len())
	}
	for i := range want.Fields {
		testFieldEq(t, i, want.Fields[i], got.Fields[i], eps)
	}
}

func testFieldEq(t *testing.T, time int, want, got *rimg64.Multi, eps float64) {
	if want.Width != got.Width || want.Height != got.Height || want.Channels != got.Channels {
		t.Fatalf("time %d: sizes differ: want %dx%dx%d, got %dx%dx%d", time,
			want.Width, want.Height, want.Channels, got.Width, got.Height, got.Channels)
	}
	for x := 0; x < want.Width; x++ {
		for y := 0; y < want.Height; y++ {
			for k := 0; k < want.Channels; k++ {
				u, v := want.At(x, y, k), got.At(x, y, k)
				if !epsEq(u, v, eps) {
					t.Errorf("time %d, at (%d, %d, %d): want %.4g, got %.4g", time, x, y, k, u, v)
				}
			}
		}
	}
}
