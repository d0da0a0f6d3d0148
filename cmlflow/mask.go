package cmlflow

import (
	"fmt"
	"image"
)

// Mask reports whether the flow at pixel (x, y) of step t can be trusted.
// Step t is the transition from frame t-1 to frame t.
type Mask interface {
	Size() image.Point
	// Steps returns the number of steps, including step 0.
	Steps() int
	Valid(t, x, y int) bool
}

// RectMask has one valid rectangle per step.
type RectMask struct {
	Width, Height int
	Rects         []image.Rectangle
}

func (m *RectMask) Size() image.Point { return image.Pt(m.Width, m.Height) }

func (m *RectMask) Steps() int { return len(m.Rects) }

func (m *RectMask) Valid(t, x, y int) bool {
	return image.Pt(x, y).In(m.Rects[t])
}

// GridMask stores one boolean per pixel per step.
// Bits[t][y*Width+x] is true if the pixel is valid.
type GridMask struct {
	Width, Height int
	Bits          [][]bool
}

// NewGridMask returns a mask which is valid everywhere.
func NewGridMask(width, height, steps int) *GridMask {
	bits := make([][]bool, steps)
	for t := range bits {
		bits[t] = make([]bool, width*height)
		for i := range bits[t] {
			bits[t][i] = true
		}
	}
	return &GridMask{width, height, bits}
}

func (m *GridMask) Size() image.Point { return image.Pt(m.Width, m.Height) }

func (m *GridMask) Steps() int { return len(m.Bits) }

func (m *GridMask) Valid(t, x, y int) bool {
	return m.Bits[t][y*m.Width+x]
}

// Set marks the pixel valid or invalid at step t.
func (m *GridMask) Set(t, x, y int, valid bool) {
	m.Bits[t][y*m.Width+x] = valid
}

// Exclude marks every pixel of r invalid at step t.
func (m *GridMask) Exclude(t int, r image.Rectangle) {
	r = r.Intersect(image.Rect(0, 0, m.Width, m.Height))
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			m.Set(t, x, y, false)
		}
	}
}

func checkMask(m Mask, width, height, steps int) {
	if size := m.Size(); size != image.Pt(width, height) {
		panic(fmt.Sprintf("different size: mask %v, flow %v", size, image.Pt(width, height)))
	}
	if m.Steps() < steps {
		panic(fmt.Sprintf("mask too short: %d steps, need %d", m.Steps(), steps))
	}
}

// windowCounter counts, for every pixel, the invalid steps in [start, end).
// Windows must advance monotonically.
type windowCounter struct {
	mask          Mask
	width, height int
	invalid       []int32
	start, end    int
}

func newWindowCounter(mask Mask) *windowCounter {
	size := mask.Size()
	return &windowCounter{
		mask:    mask,
		width:   size.X,
		height:  size.Y,
		invalid: make([]int32, size.X*size.Y),
	}
}

func (c *windowCounter) moveTo(start, end int) {
	for s := c.start; s < start && s < c.end; s++ {
		c.add(s, -1)
	}
	for s := max(c.end, start); s < end; s++ {
		c.add(s, 1)
	}
	c.start, c.end = start, end
}

func (c *windowCounter) add(s int, delta int32) {
	for y := 0; y < c.height; y++ {
		for x := 0; x < c.width; x++ {
			if !c.mask.Valid(s, x, y) {
				c.invalid[y*c.width+x] += delta
			}
		}
	}
}

func (c *windowCounter) valid(x, y int) bool {
	return c.invalid[y*c.width+x] == 0
}
