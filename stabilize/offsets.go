package stabilize

import "fmt"

// Offsets holds the stabilization offset (x, y, z) of every page at every time.
// Pages and times are 1-origin; index 0 is zero.
type Offsets struct {
	PageMax, TimeMax int
	// Elems[(page*(TimeMax+1)+t)*3+k]
	Elems []float64
}

// NewOffsets allocates zero offsets.
func NewOffsets(pageMax, timeMax int) *Offsets {
	return &Offsets{pageMax, timeMax, make([]float64, (pageMax+1)*(timeMax+1)*3)}
}

func (o *Offsets) index(page, t int) int {
	if page < 0 || page > o.PageMax || t < 0 || t > o.TimeMax {
		panic(fmt.Sprintf("out of range: page %d, time %d (max %d, %d)", page, t, o.PageMax, o.TimeMax))
	}
	return (page*(o.TimeMax+1) + t) * 3
}

// At returns the offset of a page at a time.
func (o *Offsets) At(page, t int) [3]float64 {
	i := o.index(page, t)
	return [3]float64{o.Elems[i], o.Elems[i+1], o.Elems[i+2]}
}

// Set modifies the offset of a page at a time.
func (o *Offsets) Set(page, t int, v [3]float64) {
	i := o.index(page, t)
	copy(o.Elems[i:i+3], v[:])
}

func clamp(x, a, b float64) float64 {
	return max(a, min(b, x))
}
