package dotprod

import "image"

// HalfOffsets returns the offsets with dx in [0, margin] and dy in
// [-margin, margin], excluding (0, 0), in that order.
// Every non-zero offset s in the square [-margin, margin]^2 has s or -s
// in the set (both if dx is zero).
// There are (margin+1)(2*margin+1)-1 of them.
func HalfOffsets(margin int) []image.Point {
	if margin < 0 {
		panic("negative margin")
	}
	n := (margin+1)*(2*margin+1) - 1
	offsets := make([]image.Point, 0, n)
	for dx := 0; dx <= margin; dx++ {
		for dy := -margin; dy <= margin; dy++ {
			if dx == 0 && dy == 0 {
				continue
			}
			offsets = append(offsets, image.Pt(dx, dy))
		}
	}
	return offsets
}

// Margin returns the half-width of an odd window.
func Margin(window int) int {
	return (window - 1) / 2
}
