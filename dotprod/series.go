package dotprod

import (
	"context"
	"image"
	"runtime"

	"github.com/jvlmdr/go-cv/rimg64"
	"github.com/kenya-sk/CIP/flow"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Series computes the score of every cumulative flow field
// at times 2 to TimeMax.
// Fields are processed concurrently by at most workers goroutines
// (GOMAXPROCS if workers <= 0).
// The fields at times 0 and 1 of the result are zero.
func Series(ctx context.Context, cml *flow.Series, window int, thresh float64, workers int) (*flow.Series, error) {
	return SeriesLog(ctx, cml, window, thresh, workers, nil)
}

// SeriesLog is like Series and reports progress to log.
// If log is nil, the standard logger is used.
func SeriesLog(ctx context.Context, cml *flow.Series, window int, thresh float64, workers int, log logrus.FieldLogger) (*flow.Series, error) {
	checkWindow(window)
	if log == nil {
		log = logrus.StandardLogger()
	}
	size := cml.Size()
	cml.CheckShape(size.X, size.Y, 2)
	dst := flow.NewSeries(cml.TimeMax(), size.X, size.Y, 1)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workerLimit(workers))
	for t := 2; t <= cml.TimeMax(); t++ {
		t := t
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			// Each goroutine writes a distinct element.
			dst.Fields[t] = MinDot(cml.Fields[t], window, thresh)
			log.WithField("time", t).Debug("dot product")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return dst, nil
}

// Points returns the pixels whose score is strictly less than thresh
// in row-major order.
func Points(score *rimg64.Multi, thresh float64) []image.Point {
	var pts []image.Point
	for y := 0; y < score.Height; y++ {
		for x := 0; x < score.Width; x++ {
			if score.At(x, y, 0) < thresh {
				pts = append(pts, image.Pt(x, y))
			}
		}
	}
	return pts
}

// workerLimit is the number of concurrent goroutines for n workers.
func workerLimit(n int) int {
	if n <= 0 {
		return runtime.GOMAXPROCS(0)
	}
	return n
}
