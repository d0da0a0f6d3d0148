package cluster

import (
	"math"

	"github.com/kenya-sk/CIP/report"
	"github.com/kenya-sk/CIP/stabilize"
)

// Event is a cluster of points lasting several time steps.
type Event struct {
	Label int
	// First and last time of the points.
	First, Last int
	// Mean canvas position and page.
	X, Y, Page float64
	Size       int
}

// Events summarizes every cluster whose points span
// more than minDuration time steps, in order of label.
func Events(pts []Point, labels []int, minDuration int) []Event {
	if len(pts) != len(labels) {
		panic("different number of points and labels")
	}
	var n int
	for _, l := range labels {
		n = max(n, l+1)
	}
	events := make([]Event, n)
	for i := range events {
		events[i] = Event{Label: i, First: math.MaxInt, Last: math.MinInt}
	}
	for i, p := range pts {
		l := labels[i]
		if l < 0 {
			continue
		}
		e := &events[l]
		e.First = min(e.First, p.Time)
		e.Last = max(e.Last, p.Time)
		e.X += float64(p.X)
		e.Y += float64(p.Y)
		e.Page += float64(p.Page)
		e.Size++
	}
	var dst []Event
	for _, e := range events {
		if e.Size == 0 || e.Last-e.First <= minDuration {
			continue
		}
		s := float64(e.Size)
		e.X, e.Y, e.Page = e.X/s, e.Y/s, e.Page/s
		dst = append(dst, e)
	}
	return dst
}

// Geometry describes the box drawn around an event.
type Geometry struct {
	Canvas stabilize.Canvas
	// Side of the box in raw pixels.
	CellWidth float64
	// Number of pages spanned by the box.
	CellHeight float64
}

// DefaultGeometry has boxes of 50 pixels and 8 pages.
var DefaultGeometry = Geometry{Canvas: stabilize.DefaultCanvas, CellWidth: 50, CellHeight: 8}

// Boxes returns the box of the event for times 1 to timeMax.
// The box is centred on the mean position, mapped back to the raw frame
// of the mean page, and clamped to the frame and to [0, pageMax].
// The event is active from First until before Last.
func (e Event) Boxes(o *stabilize.Offsets, pageMax int, geom Geometry) []report.Box {
	boxes := make([]report.Box, o.TimeMax)
	page := int(e.Page)
	raw := geom.Canvas.Raw
	w, h := geom.CellWidth/2, geom.CellHeight/2
	for t := 1; t <= o.TimeMax; t++ {
		if t < e.First || t >= e.Last {
			boxes[t-1] = report.None
			continue
		}
		// Inverse of the placement on the canvas.
		r := geom.Canvas.Placement(o.At(page, t))
		x := e.X - float64(r.Min.X)
		y := e.Y - float64(r.Min.Y)
		boxes[t-1] = report.Box{
			X0: max(0, int(x-w)),
			Y0: max(0, int(y-w)),
			Z0: max(0, int(e.Page-h)),
			X1: min(raw.X, int(x+w)),
			Y1: min(raw.Y, int(y+w)),
			Z1: min(pageMax, int(e.Page+h)),
		}
	}
	return boxes
}
