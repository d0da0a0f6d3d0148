// Package cluster groups reversal points into division events.
package cluster

import (
	"sort"

	"github.com/kenya-sk/CIP/dotprod"
	"github.com/kenya-sk/CIP/flow"
	"github.com/valyala/fastrand"
)

// Point is a pixel of the stabilized canvas with a low score.
type Point struct {
	Time, Page int
	X, Y       int
}

// Collect returns the points of one page whose score is below thresh,
// for times 1 to TimeMax in order.
// If there are more than limit points, limit of them are kept at random,
// preserving their order. No limit if limit <= 0.
func Collect(score *flow.Series, page int, thresh float64, limit int, rng *fastrand.RNG) []Point {
	var pts []Point
	for t := 1; t <= score.TimeMax(); t++ {
		for _, p := range dotprod.Points(score.Fields[t], thresh) {
			pts = append(pts, Point{Time: t, Page: page, X: p.X, Y: p.Y})
		}
	}
	if limit <= 0 || len(pts) <= limit {
		return pts
	}
	return sample(pts, limit, rng)
}

// sample chooses n distinct elements by a partial Fisher-Yates shuffle.
func sample(pts []Point, n int, rng *fastrand.RNG) []Point {
	idx := make([]int, len(pts))
	for i := range idx {
		idx[i] = i
	}
	for i := 0; i < n; i++ {
		j := i + int(rng.Uint32n(uint32(len(idx)-i)))
		idx[i], idx[j] = idx[j], idx[i]
	}
	idx = idx[:n]
	sort.Ints(idx)
	dst := make([]Point, n)
	for i, j := range idx {
		dst[i] = pts[j]
	}
	return dst
}

// NewRNG returns a generator with a fixed seed.
// A zero seed gives a different sequence on every run.
func NewRNG(seed uint32) *fastrand.RNG {
	rng := new(fastrand.RNG)
	rng.Seed(seed)
	return rng
}

// Stride keeps every n-th point starting with the first.
func Stride(pts []Point, n int) []Point {
	if n <= 1 {
		return pts
	}
	dst := make([]Point, 0, (len(pts)+n-1)/n)
	for i := 0; i < len(pts); i += n {
		dst = append(dst, pts[i])
	}
	return dst
}

// Scale divides each coordinate to make them comparable.
type Scale struct {
	Time, Page, X, Y float64
}

// DefaultScale normalizes points on the 960x960 canvas.
var DefaultScale = Scale{Time: 400, Page: 260, X: 960, Y: 960}

// Features returns the normalized coordinates of every point.
func (s Scale) Features(pts []Point) [][4]float64 {
	f := make([][4]float64, len(pts))
	for i, p := range pts {
		f[i] = [4]float64{
			float64(p.Time) / s.Time,
			float64(p.Page) / s.Page,
			float64(p.X) / s.X,
			float64(p.Y) / s.Y,
		}
	}
	return f
}
