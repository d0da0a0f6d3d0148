// Package pipeline runs the stages of division detection on a dataset.
package pipeline

import (
	"context"
	"image"
	"os"
	"path/filepath"
	"runtime"

	"github.com/kenya-sk/CIP/config"
	"github.com/kenya-sk/CIP/dataset"
	"github.com/kenya-sk/CIP/denseflow"
	"github.com/kenya-sk/CIP/overlay"
	"github.com/kenya-sk/CIP/stabilize"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Recorder receives the frames of an output video.
type Recorder interface {
	Write(fr overlay.Frame) error
	// Blank appends n empty frames.
	Blank(n int) error
	Close() error
}

// RecorderFunc opens a video for frames of the given size.
type RecorderFunc func(fname string, size image.Point) (Recorder, error)

// Pipeline holds the collaborators of every stage.
type Pipeline struct {
	Config    *config.Config
	Source    dataset.Source
	Info      dataset.Info
	Canvas    stabilize.Canvas
	Tracker   stabilize.Tracker
	Estimator denseflow.Estimator
	// Use the naive accumulation.
	Naive bool
	// Videos are only written if OUTPUT_VIDEO is set and Record is not nil.
	Record RecorderFunc
	Log    logrus.FieldLogger
}

func (p *Pipeline) log() logrus.FieldLogger {
	if p.Log == nil {
		return logrus.StandardLogger()
	}
	return p.Log
}

// Pages returns the pages selected by page: all of them if page is 0.
func (p *Pipeline) Pages(page int) ([]int, error) {
	if page < 0 || page > p.Info.PageMax {
		return nil, errors.Errorf("page out of range [1, %d]: %d", p.Info.PageMax, page)
	}
	if page > 0 {
		return []int{page}, nil
	}
	pages := make([]int, p.Info.PageMax)
	for i := range pages {
		pages[i] = i + 1
	}
	return pages, nil
}

// recordPage reports whether a video is written for a page.
func (p *Pipeline) recordPage(page int) bool {
	if !p.Config.OutputVideo || p.Record == nil {
		return false
	}
	return p.Config.Video.Page == 0 || p.Config.Video.Page == page
}

// sizer is a source which reads the size of a frame without decoding it.
type sizer interface {
	FrameSize(time, page int) (image.Point, error)
}

// CheckFrameSize compares the first frame with the raw size of the canvas.
// Sources which cannot read the size cheaply are not checked.
func (p *Pipeline) CheckFrameSize() error {
	src, ok := p.Source.(sizer)
	if !ok {
		return nil
	}
	size, err := src.FrameSize(1, 1)
	if err != nil {
		return err
	}
	if size != p.Canvas.Raw {
		return errors.Errorf("frame size %v, canvas expects %v", size, p.Canvas.Raw)
	}
	return nil
}

// Run executes every stage in order.
func (p *Pipeline) Run(ctx context.Context) error {
	if err := p.CheckFrameSize(); err != nil {
		return err
	}
	o, err := p.Stabilize(ctx)
	if err != nil {
		return err
	}
	pages, err := p.Pages(0)
	if err != nil {
		return err
	}
	if err := p.Cumulate(ctx, o, pages); err != nil {
		return err
	}
	if err := p.Dot(ctx, o, pages); err != nil {
		return err
	}
	return p.Detect(ctx, o)
}

// LoadOffsets reads the offsets written by Stabilize.
func (p *Pipeline) LoadOffsets() (*stabilize.Offsets, error) {
	fname := p.Config.Path(p.Config.Stabilize.DumpPath, 0)
	o, err := stabilize.LoadOffsetsExt(fname)
	if err != nil {
		return nil, errors.Wrapf(err, "load offsets %s", fname)
	}
	if o.PageMax != p.Info.PageMax || o.TimeMax != p.Info.TimeMax {
		return nil, errors.Errorf("offsets %s: %d pages, %d times, dataset has %d pages, %d times",
			fname, o.PageMax, o.TimeMax, p.Info.PageMax, p.Info.TimeMax)
	}
	return o, nil
}

// placed returns a frame drawn on the canvas.
func (p *Pipeline) placed(o *stabilize.Offsets, t, page int) (*image.RGBA, error) {
	im, err := p.Source.Frame(t, page)
	if err != nil {
		return nil, err
	}
	return p.Canvas.Place(im, o.At(page, t)), nil
}

// mkdirFor creates the directory of a file.
func mkdirFor(fname string) error {
	dir := filepath.Dir(fname)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "create directory %s", dir)
	}
	return nil
}

// workerLimit is the number of concurrent goroutines for n workers.
func workerLimit(n int) int {
	if n <= 0 {
		return runtime.GOMAXPROCS(0)
	}
	return n
}
