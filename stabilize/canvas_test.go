package stabilize

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanvas_Placement(t *testing.T) {
	c := DefaultCanvas
	cases := []struct {
		offset [3]float64
		min    image.Point
	}{
		{[3]float64{0, 0, 0}, image.Pt(240, 240)},
		{[3]float64{10, -20, 5}, image.Pt(230, 260)},
		{[3]float64{1000, 0, 0}, image.Pt(0, 240)},
		{[3]float64{0, -1000, 0}, image.Pt(240, 480)},
		// Truncated towards zero.
		{[3]float64{-3.7, 2.9, 0}, image.Pt(243, 238)},
	}
	for _, q := range cases {
		r := c.Placement(q.offset)
		assert.Equal(t, image.Rectangle{q.min, q.min.Add(c.Raw)}, r, "offset %v", q.offset)
		assert.True(t, r.In(image.Rectangle{Max: c.Size}), "offset %v", q.offset)
	}
}

func TestCanvas_Place(t *testing.T) {
	c := Canvas{Raw: image.Pt(4, 4), Size: image.Pt(8, 8)}
	im := image.NewRGBA(image.Rect(0, 0, 4, 4))
	white := color.RGBA{255, 255, 255, 255}
	for x := 0; x < 4; x++ {
		for y := 0; y < 4; y++ {
			im.Set(x, y, white)
		}
	}
	dst := c.Place(im, [3]float64{1, 0, 0})
	assert.Equal(t, image.Rect(0, 0, 8, 8), dst.Bounds())
	for x := 0; x < 8; x++ {
		for y := 0; y < 8; y++ {
			inside := x >= 1 && x < 5 && y >= 2 && y < 6
			got := dst.RGBAAt(x, y)
			if inside {
				assert.Equal(t, white, got, "at (%d, %d)", x, y)
			} else {
				assert.Equal(t, color.RGBA{}, got, "at (%d, %d)", x, y)
			}
		}
	}
}

func TestCanvas_Mask(t *testing.T) {
	c := Canvas{Raw: image.Pt(4, 4), Size: image.Pt(8, 8)}
	o := NewOffsets(1, 3)
	o.Set(1, 2, [3]float64{2, 0, 0})
	o.Set(1, 3, [3]float64{2, 1, 0})
	m := c.Mask(o, 1)
	assert.Equal(t, 4, m.Steps())
	assert.Equal(t, c.Size, m.Size())
	assert.Equal(t, image.Rect(2, 2, 6, 6), m.Rects[1])
	assert.Equal(t, image.Rect(2, 2, 4, 6), m.Rects[2])
	assert.Equal(t, image.Rect(0, 2, 4, 5), m.Rects[3])
	assert.True(t, m.Valid(2, 3, 3))
	assert.False(t, m.Valid(2, 4, 3))
}
