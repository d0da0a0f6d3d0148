package dotprod

import (
	"context"
	"image"
	"math"
	"math/rand"
	"runtime"
	"testing"

	"github.com/jvlmdr/go-cv/rimg64"
	"github.com/kenya-sk/CIP/flow"
)

func epsEq(want, got, eps float64) bool {
	return math.Abs(want-got) <= eps
}

func randFlow(r *rand.Rand, width, height int) *rimg64.Multi {
	f := rimg64.NewMulti(width, height, 2)
	for i := range f.Elems {
		f.Elems[i] = r.NormFloat64() * 3
	}
	return f
}

func constFlow(width, height int, u, v float64) *rimg64.Multi {
	f := rimg64.NewMulti(width, height, 2)
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			f.Set(x, y, 0, u)
			f.Set(x, y, 1, v)
		}
	}
	return f
}

func TestHalfOffsets(t *testing.T) {
	for m := 0; m <= 4; m++ {
		offsets := HalfOffsets(m)
		if want := (m+1)*(2*m+1) - 1; len(offsets) != want {
			t.Errorf("margin %d: want %d offsets, got %d", m, want, len(offsets))
		}
		seen := make(map[image.Point]bool)
		for _, s := range offsets {
			if s == (image.Point{}) {
				t.Errorf("margin %d: contains zero offset", m)
			}
			seen[s] = true
		}
		// Every offset in the square is covered up to sign.
		for dx := -m; dx <= m; dx++ {
			for dy := -m; dy <= m; dy++ {
				s := image.Pt(dx, dy)
				if s == (image.Point{}) {
					continue
				}
				if !seen[s] && !seen[s.Mul(-1)] {
					t.Errorf("margin %d: offset %v not covered", m, s)
				}
			}
		}
	}
}

func TestMinDot_uniform(t *testing.T) {
	const (
		width  = 12
		height = 9
		window = 5
	)
	f := constFlow(width, height, 1, 0)
	score := MinDot(f, window, 0)
	m := Margin(window)
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			border := x < m || x >= width-m || y < m || y >= height-m
			got := score.At(x, y, 0)
			if border {
				// Dot product with the zero padding.
				if got != 0 {
					t.Errorf("border (%d, %d): want 0, got %g", x, y, got)
				}
				continue
			}
			if got != 1 {
				t.Errorf("interior (%d, %d): want 1, got %g", x, y, got)
			}
		}
	}
}

func TestMinDot_magnitude(t *testing.T) {
	f := constFlow(10, 10, 3, 4)
	score := MinDot(f, 3, 0)
	if got := score.At(5, 5, 0); got != 25 {
		t.Errorf("want 25, got %g", got)
	}
}

func TestMinDot_opposite(t *testing.T) {
	const (
		width  = 16
		height = 10
	)
	// Left half moves right, right half moves left.
	f := rimg64.NewMulti(width, height, 2)
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			if x < width/2 {
				f.Set(x, y, 0, 2)
			} else {
				f.Set(x, y, 0, -2)
			}
		}
	}
	score := MinDot(f, 3, 0)
	for y := 1; y < height-1; y++ {
		for _, x := range []int{width/2 - 1, width / 2} {
			if got := score.At(x, y, 0); got != -4 {
				t.Errorf("boundary (%d, %d): want -4, got %g", x, y, got)
			}
		}
		for _, x := range []int{2, width - 3} {
			if got := score.At(x, y, 0); got != 4 {
				t.Errorf("away (%d, %d): want 4, got %g", x, y, got)
			}
		}
	}
}

func TestMinDot_threshold(t *testing.T) {
	f := rimg64.NewMulti(8, 8, 2)
	f.Set(3, 3, 0, 1)
	f.Set(4, 3, 0, -1)
	// Squared norm 1 is below 2.
	score := MinDot(f, 3, 2)
	for i, x := range score.Elems {
		if x != 0 {
			t.Fatalf("element %d: want 0, got %g", i, x)
		}
	}
	// Not below 1.
	score = MinDot(f, 3, 1)
	if got := score.At(3, 3, 0); got != -1 {
		t.Errorf("want -1, got %g", got)
	}
}

func TestMinDot_doesNotModifyInput(t *testing.T) {
	f := constFlow(6, 6, 0.5, 0)
	MinDot(f, 3, 1)
	if got := f.At(2, 2, 0); got != 0.5 {
		t.Errorf("input modified: got %g", got)
	}
}

func TestMinDot_vsNaive(t *testing.T) {
	width, height := 40, 30
	if testing.Short() {
		t.Log("reduce size in short mode")
		width, height = 12, 9
	}
	r := rand.New(rand.NewSource(1))
	for _, window := range []int{3, 5, 7} {
		for _, thresh := range []float64{0, 4, 20} {
			f := randFlow(r, width, height)
			want := MinDotNaive(f, window, thresh)
			got := MinDot(f, window, thresh)
			for x := 0; x < width; x++ {
				for y := 0; y < height; y++ {
					p, q := want.At(x, y, 0), got.At(x, y, 0)
					if !epsEq(p, q, 1e-9) {
						t.Errorf("window %d, thresh %g, at (%d, %d): want %.6g, got %.6g", window, thresh, x, y, p, q)
					}
				}
			}
		}
	}
}

// The score does not depend on which pixel of a pair is visited first.
func TestMinDot_mirror(t *testing.T) {
	r := rand.New(rand.NewSource(2))
	f := randFlow(r, 11, 11)
	// Rotate by 180 degrees: every offset is negated.
	g := rimg64.NewMulti(11, 11, 2)
	for x := 0; x < 11; x++ {
		for y := 0; y < 11; y++ {
			for k := 0; k < 2; k++ {
				g.Set(10-x, 10-y, k, f.At(x, y, k))
			}
		}
	}
	a := MinDot(f, 5, 1)
	b := MinDot(g, 5, 1)
	for x := 0; x < 11; x++ {
		for y := 0; y < 11; y++ {
			if p, q := a.At(x, y, 0), b.At(10-x, 10-y, 0); !epsEq(p, q, 1e-9) {
				t.Errorf("at (%d, %d): %.6g and %.6g", x, y, p, q)
			}
		}
	}
}

func TestMinDot_badWindow(t *testing.T) {
	for _, window := range []int{1, 2, 4} {
		func() {
			defer func() {
				if recover() == nil {
					t.Errorf("window %d: expected panic", window)
				}
			}()
			MinDot(constFlow(4, 4, 1, 0), window, 0)
		}()
	}
}

func TestSeries(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	cml := flow.NewSeries(6, 10, 8, 2)
	for time := 2; time <= 6; time++ {
		cml.Fields[time] = randFlow(r, 10, 8)
	}
	for _, workers := range []int{0, 1, 3} {
		score, err := Series(context.Background(), cml, 3, 1, workers)
		if err != nil {
			t.Fatal(err)
		}
		if score.Len() != cml.Len() {
			t.Fatalf("want %d fields, got %d", cml.Len(), score.Len())
		}
		for time := 0; time < 2; time++ {
			if !flow.IsZero(score.Fields[time]) {
				t.Errorf("workers %d: field %d not zero", workers, time)
			}
		}
		for time := 2; time <= 6; time++ {
			want := MinDot(cml.Fields[time], 3, 1)
			for i := range want.Elems {
				if want.Elems[i] != score.Fields[time].Elems[i] {
					t.Fatalf("workers %d, time %d: element %d differs", workers, time, i)
				}
			}
		}
	}
}

func TestSeries_canceled(t *testing.T) {
	cml := flow.NewSeries(4, 6, 6, 2)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Series(ctx, cml, 3, 0, 1); err == nil {
		t.Error("expected error from canceled context")
	}
}

func TestPoints(t *testing.T) {
	score := rimg64.NewMulti(4, 3, 1)
	score.Set(2, 0, 0, -11)
	score.Set(1, 2, 0, -20)
	score.Set(3, 1, 0, -10)
	pts := Points(score, -10)
	want := []image.Point{{2, 0}, {1, 2}}
	if len(pts) != len(want) {
		t.Fatalf("want %v, got %v", want, pts)
	}
	for i := range want {
		if pts[i] != want[i] {
			t.Errorf("point %d: want %v, got %v", i, want[i], pts[i])
		}
	}
}

func TestWorkerLimit(t *testing.T) {
	if got := workerLimit(0); got != runtime.GOMAXPROCS(0) {
		t.Errorf("workers 0: want %d, got %d", runtime.GOMAXPROCS(0), got)
	}
	if got := workerLimit(3); got != 3 {
		t.Errorf("workers 3: want 3, got %d", got)
	}
}
