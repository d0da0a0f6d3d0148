package stabilize

import (
	"context"
	"fmt"
	"image"
	"runtime"

	"github.com/kenya-sk/CIP/dataset"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// DefaultMinFeatures is the number of tracked features
// at or below which a measurement is rejected.
const DefaultMinFeatures = 50

// Stabilizer estimates the drift of every page over time.
type Stabilizer struct {
	Tracker Tracker
	Source  dataset.Source
	// Normalized angle variance at or above which a measurement is rejected.
	AngleThresh float64
	MinFeatures int
	// Maximum number of pages measured concurrently. GOMAXPROCS if <= 0.
	Workers int
	Log     logrus.FieldLogger
}

// Result of stabilization.
type Result struct {
	Offsets *Offsets
	// Accepted or substituted movement of each step.
	Movements *Offsets
	// Number of steps whose movement was substituted.
	FeatureFallbacks  int
	VarianceFallbacks int
}

func (s *Stabilizer) log() logrus.FieldLogger {
	if s.Log == nil {
		return logrus.StandardLogger()
	}
	return s.Log
}

// Run measures every page then integrates the movements.
func (s *Stabilizer) Run(ctx context.Context, info dataset.Info) (*Result, error) {
	meas, err := s.Measure(ctx, info)
	if err != nil {
		return nil, err
	}
	res := Resolve(meas, s.AngleThresh, s.log())
	s.log().WithFields(logrus.Fields{
		"pages":              info.PageMax,
		"times":              info.TimeMax,
		"feature_fallbacks":  res.FeatureFallbacks,
		"variance_fallbacks": res.VarianceFallbacks,
	}).Info("stabilize done")
	return res, nil
}

// Measure tracks features through the frames of each page.
// The result is indexed [page][time]; page 0 and times 0, 1 are empty.
func (s *Stabilizer) Measure(ctx context.Context, info dataset.Info) ([][]Measurement, error) {
	meas := make([][]Measurement, info.PageMax+1)
	for page := range meas {
		meas[page] = make([]Measurement, info.TimeMax+1)
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workerLimit(s.Workers))
	for page := 1; page <= info.PageMax; page++ {
		page := page
		g.Go(func() error {
			return s.measurePage(ctx, page, meas[page])
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return meas, nil
}

func (s *Stabilizer) measurePage(ctx context.Context, page int, dst []Measurement) error {
	minFeatures := s.MinFeatures
	if minFeatures <= 0 {
		minFeatures = DefaultMinFeatures
	}
	var prev image.Image
	for t := 1; t < len(dst); t++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		next, err := s.Source.Frame(t, page)
		if err != nil {
			return err
		}
		if prev != nil {
			tr, err := s.Tracker.Track(prev, next)
			if err != nil {
				return errors.Wrapf(err, "track page %d time %d", page, t)
			}
			dst[t] = Measure(tr, minFeatures)
			s.log().WithFields(logrus.Fields{
				"page":     page,
				"time":     t,
				"features": dst[t].Features,
				"status":   dst[t].Status,
			}).Debug("track")
		}
		prev = next
	}
	return nil
}

// Resolve integrates measured movements into offsets.
// The angle variances are first normalized by their maximum.
// A step with too few features or a normalized variance of at least
// angleThresh takes the movement of the previous page at the same time.
// Pages are resolved in increasing order, page 0 has no movement.
func Resolve(meas [][]Measurement, angleThresh float64, log logrus.FieldLogger) *Result {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if len(meas) == 0 {
		panic("no pages")
	}
	pageMax, timeMax := len(meas)-1, len(meas[0])-1
	for page := range meas {
		if len(meas[page]) != timeMax+1 {
			panic(fmt.Sprintf("different number of times: page %d has %d, want %d", page, len(meas[page]), timeMax+1))
		}
	}
	var varMax float64
	for page := 1; page <= pageMax; page++ {
		for t := 2; t <= timeMax; t++ {
			if m := meas[page][t]; m.Status == Measured {
				varMax = max(varMax, m.AngleVar)
			}
		}
	}

	res := &Result{
		Offsets:   NewOffsets(pageMax, timeMax),
		Movements: NewOffsets(pageMax, timeMax),
	}
	for t := 2; t <= timeMax; t++ {
		for page := 1; page <= pageMax; page++ {
			m := meas[page][t]
			mv := m.Movement
			switch {
			case m.Status != Measured:
				mv = res.Movements.At(page-1, t)
				res.FeatureFallbacks++
				log.WithFields(logrus.Fields{"page": page, "time": t, "features": m.Features}).Debug("too few features, use previous page")
			case normalize(m.AngleVar, varMax) >= angleThresh:
				mv = res.Movements.At(page-1, t)
				res.VarianceFallbacks++
				log.WithFields(logrus.Fields{"page": page, "time": t, "angle_var": m.AngleVar}).Debug("angle variance too large, use previous page")
			}
			res.Movements.Set(page, t, mv)
			prev := res.Offsets.At(page, t-1)
			res.Offsets.Set(page, t, [3]float64{prev[0] + mv[0], prev[1] + mv[1], prev[2] + mv[2]})
		}
	}
	return res
}

func normalize(x, m float64) float64 {
	if m == 0 {
		return x
	}
	return x / m
}

// workerLimit is the number of concurrent goroutines for n workers.
func workerLimit(n int) int {
	if n <= 0 {
		return runtime.GOMAXPROCS(0)
	}
	return n
}
