package pipeline

import (
	"context"
	"image"

	"github.com/jvlmdr/go-cv/rimg64"
	"github.com/kenya-sk/CIP/cluster"
	"github.com/kenya-sk/CIP/cmlflow"
	"github.com/kenya-sk/CIP/denseflow"
	"github.com/kenya-sk/CIP/dotprod"
	"github.com/kenya-sk/CIP/flow"
	"github.com/kenya-sk/CIP/overlay"
	"github.com/kenya-sk/CIP/report"
	"github.com/kenya-sk/CIP/stabilize"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// ArrowStep is the spacing of flow arrows in videos.
const ArrowStep = 8

// Number of empty frames between pages of the stabilized video.
const pageGap = 10

// Stabilize computes the offsets of every frame and saves them.
func (p *Pipeline) Stabilize(ctx context.Context) (*stabilize.Offsets, error) {
	p.log().Info("stabilize start")
	s := &stabilize.Stabilizer{
		Tracker:     p.Tracker,
		Source:      p.Source,
		AngleThresh: p.Config.Stabilize.AngleThresh,
		MinFeatures: p.Config.Stabilize.MinFeatures,
		Workers:     p.Config.Workers,
		Log:         p.log(),
	}
	res, err := s.Run(ctx, p.Info)
	if err != nil {
		return nil, errors.Wrap(err, "stabilize")
	}
	fname := p.Config.Path(p.Config.Stabilize.DumpPath, 0)
	if err := mkdirFor(fname); err != nil {
		return nil, err
	}
	if err := stabilize.SaveOffsetsExt(fname, res.Offsets); err != nil {
		return nil, errors.Wrapf(err, "save offsets %s", fname)
	}
	if p.Config.OutputVideo && p.Record != nil {
		if err := p.stabilizedVideo(res.Offsets); err != nil {
			return nil, err
		}
	}
	return res.Offsets, nil
}

func (p *Pipeline) stabilizedVideo(o *stabilize.Offsets) error {
	fname := p.Config.Path(p.Config.Stabilize.VideoPath, 0)
	size := p.Canvas.Size
	return p.record(fname, func(rec Recorder) error {
		for page := 1; page <= p.Info.PageMax; page++ {
			if !p.recordPage(page) {
				continue
			}
			for t := 1; t <= p.Info.TimeMax; t++ {
				im, err := p.placed(o, t, page)
				if err != nil {
					return err
				}
				fr := overlay.Frame{Image: im, Labels: []overlay.Label{
					{Text: overlay.FrameLabel(page, t), At: labelAt(size, 1.0/6)},
					{Text: overlay.OffsetLabel(o.At(page, t)), At: labelAt(size, 11.0/16)},
				}}
				if err := rec.Write(fr); err != nil {
					return err
				}
			}
			if err := rec.Blank(pageGap); err != nil {
				return err
			}
		}
		return nil
	})
}

// Cumulate estimates and accumulates the flow of each page and saves it.
// Pages are processed concurrently.
func (p *Pipeline) Cumulate(ctx context.Context, o *stabilize.Offsets, pages []int) error {
	p.log().WithField("pages", len(pages)).Info("cumulate start")
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workerLimit(p.Config.Workers))
	for _, page := range pages {
		page := page
		g.Go(func() error {
			return p.cumulatePage(ctx, o, page)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	p.log().Info("cumulate done")
	return nil
}

// Flow estimates the flow of every step of a page on the canvas.
// The flow of step t is zero outside the frames at t-1 and t.
func (p *Pipeline) Flow(ctx context.Context, o *stabilize.Offsets, page int) (*flow.Series, error) {
	log := p.log().WithField("page", page)
	size := p.Canvas.Size
	seq := flow.NewSeries(p.Info.TimeMax, size.X, size.Y, 2)
	prev, err := p.placed(o, 1, page)
	if err != nil {
		return nil, err
	}
	for t := 2; t <= p.Info.TimeMax; t++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		next, err := p.placed(o, t, page)
		if err != nil {
			return nil, err
		}
		f, err := p.Estimator.Estimate(prev, next)
		if err != nil {
			return nil, errors.Wrapf(err, "estimate flow page %d time %d", page, t)
		}
		flow.CheckField(f, size.X, size.Y, 2, t)
		r := p.Canvas.Placement(o.At(page, t-1)).Intersect(p.Canvas.Placement(o.At(page, t)))
		denseflow.Mask(f, r)
		seq.Fields[t] = f
		log.WithField("time", t).Debug("flow")
		prev = next
	}
	return seq, nil
}

func (p *Pipeline) cumulatePage(ctx context.Context, o *stabilize.Offsets, page int) error {
	log := p.log().WithField("page", page)
	seq, err := p.Flow(ctx, o, page)
	if err != nil {
		return err
	}
	fname := p.Config.Path(p.Config.Cumulative.DumpPath, page)
	if err := mkdirFor(fname); err != nil {
		return err
	}
	size := p.Canvas.Size
	w, err := flow.CreateSeriesExt(fname, flow.Shape{TimeMax: p.Info.TimeMax, Width: size.X, Height: size.Y, Channels: 2})
	if err != nil {
		return errors.Wrapf(err, "create cumulative flow %s", fname)
	}
	// Only the arrows are kept for the video.
	var arrows [][]overlay.Segment
	if p.recordPage(page) {
		arrows = make([][]overlay.Segment, p.Info.TimeMax+1)
	}
	emit := func(t int, cml *rimg64.Multi) error {
		if arrows != nil {
			arrows[t] = overlay.Arrows(cml, ArrowStep)
		}
		return w.Write(t, cml)
	}
	if err := p.accumulate(log, seq, p.Canvas.Mask(o, page), emit); err != nil {
		w.Close()
		return errors.Wrapf(err, "write cumulative flow %s", fname)
	}
	if err := w.Close(); err != nil {
		return errors.Wrapf(err, "save cumulative flow %s", fname)
	}
	log.WithField("file", fname).Info("cumulative flow saved")
	if arrows == nil {
		return nil
	}
	return p.fieldVideo(p.Config.Path(p.Config.Cumulative.VideoPath, page), o, page, func(t int, fr *overlay.Frame) {
		fr.Arrows = arrows[t]
	})
}

// accumulate passes the cumulative flow of each time from 2 to emit.
func (p *Pipeline) accumulate(log logrus.FieldLogger, seq *flow.Series, mask cmlflow.Mask, emit func(t int, cml *rimg64.Multi) error) error {
	window := p.Config.Cumulative.WindowSize
	if p.Naive {
		cml := cmlflow.AccumulateNaive(seq, window, mask)
		for t := 2; t <= cml.TimeMax(); t++ {
			if err := emit(t, cml.Fields[t]); err != nil {
				return err
			}
		}
		return nil
	}
	acc := &cmlflow.Accumulator{Window: window, Mask: mask, Log: log}
	stats, err := acc.Stream(seq, emit)
	if err != nil {
		return err
	}
	log.WithFields(logrus.Fields{
		"shifted":    stats.Shifted,
		"dropped":    stats.Dropped,
		"recomputed": stats.Recomputed,
	}).Debug("accumulate")
	return nil
}

// Dot computes the reversal score of each page and saves it.
// If DOT.RECALCULATE is not set, saved scores are loaded instead.
// Pages are processed in order, times concurrently.
func (p *Pipeline) Dot(ctx context.Context, o *stabilize.Offsets, pages []int) error {
	p.log().WithField("pages", len(pages)).Info("dot start")
	for _, page := range pages {
		score, err := p.dotPage(ctx, page)
		if err != nil {
			return err
		}
		if !p.recordPage(page) {
			continue
		}
		thresh := p.Config.Dot.DotThreshold
		err = p.fieldVideo(p.Config.Path(p.Config.Dot.VideoPath, page), o, page, func(t int, fr *overlay.Frame) {
			fr.Points = dotprod.Points(score.Fields[t], thresh)
		})
		if err != nil {
			return err
		}
	}
	p.log().Info("dot done")
	return nil
}

func (p *Pipeline) dotPage(ctx context.Context, page int) (*flow.Series, error) {
	log := p.log().WithField("page", page)
	dump := p.Config.Path(p.Config.Dot.DumpPath, page)
	if !p.Config.Dot.Recalculate {
		score, err := p.loadSeries(dump, 1)
		if err != nil {
			return nil, errors.Wrapf(err, "load scores %s", dump)
		}
		log.WithField("file", dump).Info("scores loaded")
		return score, nil
	}
	fname := p.Config.Path(p.Config.Cumulative.DumpPath, page)
	cml, err := p.loadSeries(fname, 2)
	if err != nil {
		return nil, errors.Wrapf(err, "load cumulative flow %s", fname)
	}
	c := p.Config.Dot
	score, err := dotprod.SeriesLog(ctx, cml, c.WindowSize, c.FlowThreshold, p.Config.Workers, log)
	if err != nil {
		return nil, err
	}
	if err := mkdirFor(dump); err != nil {
		return nil, err
	}
	if err := flow.SaveSeriesExt(dump, score); err != nil {
		return nil, errors.Wrapf(err, "save scores %s", dump)
	}
	log.WithField("file", dump).Info("scores saved")
	return score, nil
}

// Detect clusters the reversal points of every page and writes the report.
func (p *Pipeline) Detect(ctx context.Context, o *stabilize.Offsets) error {
	c := p.Config.Detect
	rng := cluster.NewRNG(c.Seed)
	var pts []cluster.Point
	for page := 1; page <= p.Info.PageMax; page++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		fname := p.Config.Path(p.Config.Dot.DumpPath, page)
		score, err := p.loadSeries(fname, 1)
		if err != nil {
			return errors.Wrapf(err, "load scores %s", fname)
		}
		pts = append(pts, cluster.Collect(score, page, c.DotThreshold, p.Info.TimeMax*c.PointsPerTime, rng)...)
	}
	pts = cluster.Stride(pts, c.Stride)
	scale := cluster.DefaultScale
	scale.X, scale.Y = float64(p.Canvas.Size.X), float64(p.Canvas.Size.Y)
	labels := cluster.DBSCAN{Eps: c.Eps, MinSamples: c.MinSamples}.Fit(scale.Features(pts))
	events := cluster.Events(pts, labels, c.MinDuration)

	geom := cluster.DefaultGeometry
	geom.Canvas = p.Canvas
	boxes := make([][]report.Box, len(events))
	for i, e := range events {
		boxes[i] = e.Boxes(o, p.Info.PageMax, geom)
	}
	fname := p.Config.Path(c.OutputPath, 0)
	if err := mkdirFor(fname); err != nil {
		return err
	}
	if err := report.WriteFile(fname, p.Info.TimeMax, boxes); err != nil {
		return errors.Wrapf(err, "write report %s", fname)
	}
	p.log().WithFields(logrus.Fields{
		"points": len(pts),
		"events": len(events),
		"file":   fname,
	}).Info("detect done")
	return nil
}

// loadSeries reads a series of the dataset's length on the canvas.
func (p *Pipeline) loadSeries(fname string, channels int) (*flow.Series, error) {
	s, err := flow.LoadSeriesExt(fname)
	if err != nil {
		return nil, err
	}
	if s.TimeMax() != p.Info.TimeMax {
		return nil, errors.Errorf("%d times, dataset has %d", s.TimeMax(), p.Info.TimeMax)
	}
	if size, chans := s.Size(), s.Channels(); size != p.Canvas.Size || chans != channels {
		return nil, errors.Errorf("different size: %v with %d channels, want %v with %d", size, chans, p.Canvas.Size, channels)
	}
	return s, nil
}

// fieldVideo writes the frames of a page from time 2 with an overlay
// added by draw for each time.
func (p *Pipeline) fieldVideo(fname string, o *stabilize.Offsets, page int, draw func(t int, fr *overlay.Frame)) error {
	size := p.Canvas.Size
	return p.record(fname, func(rec Recorder) error {
		for t := 2; t <= p.Info.TimeMax; t++ {
			im, err := p.placed(o, t, page)
			if err != nil {
				return err
			}
			fr := overlay.Frame{Image: im, Labels: []overlay.Label{
				{Text: overlay.FrameLabel(page, t), At: labelAt(size, 1.0/6)},
			}}
			draw(t, &fr)
			if err := rec.Write(fr); err != nil {
				return err
			}
		}
		return nil
	})
}

// record opens a video, passes it to fn and closes it.
func (p *Pipeline) record(fname string, fn func(rec Recorder) error) (err error) {
	if err := mkdirFor(fname); err != nil {
		return err
	}
	rec, err := p.Record(fname, p.Canvas.Size)
	if err != nil {
		return errors.Wrapf(err, "create video %s", fname)
	}
	defer func() {
		if e := rec.Close(); e != nil && err == nil {
			err = errors.Wrapf(e, "close video %s", fname)
		}
	}()
	if err := fn(rec); err != nil {
		return errors.Wrapf(err, "write video %s", fname)
	}
	p.log().WithField("file", fname).Info("video saved")
	return nil
}

// labelAt is a position near the bottom of the canvas.
func labelAt(size image.Point, fx float64) image.Point {
	return image.Pt(int(float64(size.X)*fx), size.Y-25)
}
