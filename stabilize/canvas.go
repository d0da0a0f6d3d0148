package stabilize

import (
	"image"

	"github.com/kenya-sk/CIP/cmlflow"
	"golang.org/x/image/draw"
)

// Canvas places raw frames on a larger image to cancel their drift.
type Canvas struct {
	Raw  image.Point
	Size image.Point
}

// DefaultCanvas has a raw frame of 480x480 on a canvas twice as large.
var DefaultCanvas = Canvas{Raw: image.Pt(480, 480), Size: image.Pt(960, 960)}

// Limit returns the largest offset on each axis which keeps
// the raw frame inside the canvas.
func (c Canvas) Limit() image.Point {
	return c.Size.Sub(c.Raw).Div(2)
}

// Placement returns the rectangle of the canvas covered by the raw frame.
// The frame is centred and moved by the negated offset,
// which is first limited to the canvas.
// Offsets are truncated towards zero.
func (c Canvas) Placement(offset [3]float64) image.Rectangle {
	lim := c.Limit()
	dx := int(clamp(offset[0], -float64(lim.X), float64(lim.X)))
	dy := int(clamp(offset[1], -float64(lim.Y), float64(lim.Y)))
	p := image.Pt(lim.X-dx, lim.Y-dy)
	return image.Rectangle{p, p.Add(c.Raw)}
}

// Place draws a raw frame onto a new black canvas.
func (c Canvas) Place(im image.Image, offset [3]float64) *image.RGBA {
	dst := image.NewRGBA(image.Rectangle{Max: c.Size})
	r := c.Placement(offset)
	draw.Copy(dst, r.Min, im, im.Bounds(), draw.Src, nil)
	return dst
}

// Mask returns the region of the canvas which is covered by the raw frame
// of a page at each flow step.
// Step t, the transition from time t-1 to t, is valid inside both frames.
func (c Canvas) Mask(o *Offsets, page int) *cmlflow.RectMask {
	rects := make([]image.Rectangle, o.TimeMax+1)
	rects[0] = c.Placement(o.At(page, 0))
	for t := 1; t <= o.TimeMax; t++ {
		prev := c.Placement(o.At(page, t-1))
		rects[t] = prev.Intersect(c.Placement(o.At(page, t)))
	}
	return &cmlflow.RectMask{Width: c.Size.X, Height: c.Size.Y, Rects: rects}
}
