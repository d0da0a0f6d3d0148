// Package denseflow estimates a displacement for every pixel between two frames.
package denseflow

import (
	"fmt"
	"image"
	"image/color"

	"github.com/jvlmdr/go-cv/rimg64"
)

// Estimator computes the dense flow from prev to next.
// The result has two channels (dx, dy) and the size of the frames.
type Estimator interface {
	Estimate(prev, next image.Image) (*rimg64.Multi, error)
}

// Gray converts an image to a single channel of luminance in [0, 255].
// The origin of the result is the minimum of the bounds.
func Gray(im image.Image) *rimg64.Multi {
	b := im.Bounds()
	f := rimg64.NewMulti(b.Dx(), b.Dy(), 1)
	for x := 0; x < b.Dx(); x++ {
		for y := 0; y < b.Dy(); y++ {
			g := color.GrayModel.Convert(im.At(b.Min.X+x, b.Min.Y+y)).(color.Gray)
			f.Set(x, y, 0, float64(g.Y))
		}
	}
	return f
}

// Mask sets the flow to zero outside r.
func Mask(f *rimg64.Multi, r image.Rectangle) {
	for x := 0; x < f.Width; x++ {
		for y := 0; y < f.Height; y++ {
			if image.Pt(x, y).In(r) {
				continue
			}
			for k := 0; k < f.Channels; k++ {
				f.Set(x, y, k, 0)
			}
		}
	}
}

func checkFrames(prev, next image.Image) error {
	if p, q := prev.Bounds().Size(), next.Bounds().Size(); p != q {
		return fmt.Errorf("different size: %v and %v", p, q)
	}
	return nil
}
