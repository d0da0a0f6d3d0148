// Package video writes frames with overlays to a video file.
package video

import (
	"image"
	"image/color"

	"github.com/kenya-sk/CIP/overlay"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

const (
	// Codec is the fourcc of output files.
	Codec = "avc1"
	// FPS is the frame rate of output files.
	FPS = 5
)

var (
	// Text is the color of labels.
	Text = color.RGBA{255, 255, 255, 0}
	// Arrow is the color of flow arrows.
	Arrow = color.RGBA{255, 0, 0, 0}
	// Point is the color of marked points.
	Point = color.RGBA{0, 0, 255, 0}
)

// Writer writes frames of a fixed size, resized by Scale.
type Writer struct {
	Scale float64

	vw   *gocv.VideoWriter
	size image.Point
}

// Create opens a video file for frames of the given size.
func Create(fname string, size image.Point, scale float64) (*Writer, error) {
	if scale <= 0 {
		return nil, errors.Errorf("scale must be positive: %g", scale)
	}
	out := overlay.ScaledSize(size, scale)
	vw, err := gocv.VideoWriterFile(fname, Codec, FPS, out.X, out.Y, true)
	if err != nil {
		return nil, errors.Wrapf(err, "open video %s", fname)
	}
	if !vw.IsOpened() {
		vw.Close()
		return nil, errors.Errorf("open video %s: writer not opened", fname)
	}
	return &Writer{Scale: scale, vw: vw, size: size}, nil
}

// Write draws the overlays of a frame and appends it.
func (w *Writer) Write(fr overlay.Frame) error {
	if s := fr.Image.Bounds().Size(); s != w.size {
		return errors.Errorf("frame size %v, video size %v", s, w.size)
	}
	mat, err := gocv.ImageToMatRGB(overlay.Scale(fr.Image, w.Scale))
	if err != nil {
		return errors.Wrap(err, "convert frame")
	}
	defer mat.Close()
	at := func(p image.Point) image.Point { return overlay.ScalePoint(p, w.Scale) }
	for _, s := range fr.Arrows {
		gocv.Line(&mat, at(s.A), at(s.B), Arrow, 1)
	}
	for _, p := range fr.Points {
		gocv.Circle(&mat, at(p), 3, Point, -1)
	}
	for _, l := range fr.Labels {
		gocv.PutText(&mat, l.Text, at(l.At), gocv.FontHersheySimplex, w.Scale, Text, 2)
	}
	return w.vw.Write(mat)
}

// Blank appends n black frames.
func (w *Writer) Blank(n int) error {
	im := image.NewRGBA(image.Rectangle{Max: w.size})
	for i := 0; i < n; i++ {
		if err := w.Write(overlay.Frame{Image: im}); err != nil {
			return err
		}
	}
	return nil
}

// Close finishes the file.
func (w *Writer) Close() error {
	return w.vw.Close()
}
