// Package overlay computes what is drawn over the frames of output videos.
package overlay

import (
	"fmt"
	"image"

	"github.com/jvlmdr/go-cv/rimg64"
	"github.com/nfnt/resize"
)

// Segment is a line from A to B.
type Segment struct {
	A, B image.Point
}

// Arrows samples a flow field every step pixels, starting at step/2,
// and returns the displacement at each sample as a segment.
// End points are truncated towards zero.
func Arrows(f *rimg64.Multi, step int) []Segment {
	if step < 1 {
		panic(fmt.Sprintf("step must be positive: %d", step))
	}
	var segs []Segment
	for y := step / 2; y < f.Height; y += step {
		for x := step / 2; x < f.Width; x += step {
			dx, dy := f.At(x, y, 0), f.At(x, y, 1)
			b := image.Pt(int(float64(x)+dx), int(float64(y)+dy))
			segs = append(segs, Segment{image.Pt(x, y), b})
		}
	}
	return segs
}

// Label is text drawn at a position.
type Label struct {
	Text string
	At   image.Point
}

// Frame is an image and what to draw over it.
// Positions are in the coordinates of Image.
type Frame struct {
	Image  image.Image
	Labels []Label
	Arrows []Segment
	Points []image.Point
}

// FrameLabel identifies a frame.
func FrameLabel(page, time int) string {
	return fmt.Sprintf("[page: %03d time: %03d]", page, time)
}

// OffsetLabel shows a stabilization offset truncated to integers.
func OffsetLabel(offset [3]float64) string {
	return fmt.Sprintf("[%03d,%03d,%03d]", int(offset[0]), int(offset[1]), int(offset[2]))
}

// Scale resizes an image by a factor with bilinear interpolation.
// The image is returned as is if the factor is 1.
func Scale(im image.Image, factor float64) image.Image {
	if factor == 1 {
		return im
	}
	size := ScaledSize(im.Bounds().Size(), factor)
	return resize.Resize(uint(size.X), uint(size.Y), im, resize.Bilinear)
}

// ScaledSize is the size of an image resized by a factor, at least 1x1.
func ScaledSize(size image.Point, factor float64) image.Point {
	return image.Pt(max(1, int(float64(size.X)*factor)), max(1, int(float64(size.Y)*factor)))
}

// ScalePoint maps a point into an image resized by a factor.
func ScalePoint(p image.Point, factor float64) image.Point {
	return image.Pt(int(float64(p.X)*factor), int(float64(p.Y)*factor))
}
