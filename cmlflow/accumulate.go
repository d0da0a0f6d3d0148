package cmlflow

import (
	"fmt"
	"image"
	"math"

	"github.com/jvlmdr/go-cv/rimg64"
	"github.com/kenya-sk/CIP/flow"
	"github.com/sirupsen/logrus"
)

// Stats counts how the pixels of each time step were obtained.
type Stats struct {
	// Pixels inherited from the previous time by shifting.
	Shifted int
	// Sources whose shifted position left the grid.
	Dropped int
	// Pixels which had to be walked in full.
	Recomputed int
}

func (s *Stats) add(t Stats) {
	s.Shifted += t.Shifted
	s.Dropped += t.Dropped
	s.Recomputed += t.Recomputed
}

// Accumulator chains per-step flow across a sliding window.
type Accumulator struct {
	// Number of steps in each window.
	Window int
	// Optional. Pixels not valid at every step of a window are zero.
	Mask Mask
	// Optional. Defaults to the standard logger.
	Log logrus.FieldLogger
}

// Accumulate computes the cumulative flow at every time in [2, TimeMax].
// Entries 0 and 1 of the result are zero.
func Accumulate(seq *flow.Series, window int, mask Mask) *flow.Series {
	acc := &Accumulator{Window: window, Mask: mask}
	dst, _ := acc.Accumulate(seq)
	return dst
}

// Accumulate computes the full history of cumulative flow.
func (a *Accumulator) Accumulate(seq *flow.Series) (*flow.Series, Stats) {
	size := checkInput(seq, a.Window, a.Mask)
	dst := flow.NewSeries(seq.TimeMax(), size.X, size.Y, 2)
	stats, err := a.Stream(seq, func(t int, cml *rimg64.Multi) error {
		dst.Fields[t] = cml
		return nil
	})
	if err != nil {
		// The callback never fails.
		panic(err)
	}
	return dst, stats
}

// Stream computes the cumulative flow for t = 2, ..., TimeMax in order
// and passes each field to emit, which owns it.
// Internally only the raw fields of times t and t+1 are kept,
// the field at t+1 being derived from the one at t without walking
// every pixel through the whole window.
// Stream stops at the first error returned by emit.
func (a *Accumulator) Stream(seq *flow.Series, emit func(t int, cml *rimg64.Multi) error) (Stats, error) {
	size := checkInput(seq, a.Window, a.Mask)
	log := a.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	var (
		timeMax = seq.TimeMax()
		total   Stats
		counter *windowCounter
	)
	if a.Mask != nil {
		counter = newWindowCounter(a.Mask)
	}
	if timeMax < 2 {
		return total, nil
	}

	curr := rimg64.NewMulti(size.X, size.Y, 2)
	next := rimg64.NewMulti(size.X, size.Y, 2)
	done := make([]bool, size.X*size.Y)
	// The first window has no predecessor.
	start := Stats{Recomputed: recompute(seq.Fields[2:windowEnd(2, a.Window, timeMax)], curr, done)}
	total.add(start)

	for t := 2; t <= timeMax; t++ {
		end := windowEnd(t, a.Window, timeMax)
		if counter != nil {
			counter.moveTo(t, end)
		}
		if err := emit(t, masked(curr, counter)); err != nil {
			return total, err
		}
		if t == timeMax {
			break
		}
		st := shift(seq.Fields, curr, next, done, t, end, windowEnd(t+1, a.Window, timeMax))
		log.WithFields(logrus.Fields{
			"time":       t + 1,
			"shifted":    st.Shifted,
			"dropped":    st.Dropped,
			"recomputed": st.Recomputed,
		}).Debug("cumulate")
		total.add(st)
		curr, next = next, curr
	}
	return total, nil
}

// shift derives next (window [t+1, nextEnd)) from curr (window [t, end)).
//
// The trajectory from pixel p at time t takes its first step with flow t
// to q = floor(p + flow[t](p)). The trajectory from q at time t+1 is the
// rest of it, so next(q) = curr(p) - flow[t](p), plus the contribution of
// the field which enters the window, sampled where that trajectory ends.
// Pixels which no source reaches are walked in full.
func shift(fields []*rimg64.Multi, curr, next *rimg64.Multi, done []bool, t, end, nextEnd int) Stats {
	var st Stats
	width, height := curr.Width, curr.Height
	first := fields[t]
	var enter *rimg64.Multi
	if nextEnd > end {
		enter = fields[end]
	}
	for i := range done {
		done[i] = false
	}
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			fx, fy := first.At(x, y, 0), first.At(x, y, 1)
			qx, qy := int(math.Floor(float64(x)+fx)), int(math.Floor(float64(y)+fy))
			if !inGrid(qx, qy, width, height) {
				st.Dropped++
				continue
			}
			if done[qy*width+qx] {
				continue
			}
			dx := curr.At(x, y, 0) - fx
			dy := curr.At(x, y, 1) - fy
			if enter != nil {
				ex := int(math.Floor(float64(qx) + dx))
				ey := int(math.Floor(float64(qy) + dy))
				if inGrid(ex, ey, width, height) {
					dx += enter.At(ex, ey, 0)
					dy += enter.At(ex, ey, 1)
				}
			}
			next.Set(qx, qy, 0, dx)
			next.Set(qx, qy, 1, dy)
			done[qy*width+qx] = true
			st.Shifted++
		}
	}
	st.Recomputed = recompute(fields[t+1:nextEnd], next, done)
	return st
}

// recompute walks every pixel not marked in done and stores the result in dst.
func recompute(fields []*rimg64.Multi, dst *rimg64.Multi, done []bool) int {
	var n int
	for x := 0; x < dst.Width; x++ {
		for y := 0; y < dst.Height; y++ {
			if done[y*dst.Width+x] {
				continue
			}
			dx, dy := walk(fields, x, y)
			dst.Set(x, y, 0, dx)
			dst.Set(x, y, 1, dy)
			n++
		}
	}
	return n
}

// masked returns a copy of f with pixels outside the window's valid region set to zero.
func masked(f *rimg64.Multi, counter *windowCounter) *rimg64.Multi {
	g := f.Clone()
	if counter == nil {
		return g
	}
	for x := 0; x < g.Width; x++ {
		for y := 0; y < g.Height; y++ {
			if !counter.valid(x, y) {
				g.Set(x, y, 0, 0)
				g.Set(x, y, 1, 0)
			}
		}
	}
	return g
}

func checkInput(seq *flow.Series, window int, mask Mask) image.Point {
	if window < 1 {
		panic(fmt.Sprintf("window size must be positive: %d", window))
	}
	if seq.Len() < 2 {
		panic(fmt.Sprintf("series too short: %d fields", seq.Len()))
	}
	size := seq.Size()
	seq.CheckShape(size.X, size.Y, 2)
	seq.CheckZeroPrefix()
	if mask != nil {
		checkMask(mask, size.X, size.Y, seq.Len())
	}
	return size
}
