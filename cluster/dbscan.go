package cluster

import (
	"fmt"
	"math"

	"github.com/theodesp/unionfind"
)

// Noise is the label of points which belong to no cluster.
const Noise = -1

// DBSCAN is density-based clustering with a fixed radius.
type DBSCAN struct {
	// Maximum Euclidean distance between neighbours.
	Eps float64
	// Number of neighbours, including the point itself,
	// for a point to be a core point.
	MinSamples int
}

// DefaultDBSCAN suits features normalized by DefaultScale.
var DefaultDBSCAN = DBSCAN{Eps: 0.02, MinSamples: 100}

// Fit labels every point.
// Core points which are neighbours belong to the same cluster.
// Other points with a core neighbour join the cluster of the first one,
// the rest are Noise.
// Clusters are numbered from 0 in order of their first point.
func (c DBSCAN) Fit(x [][4]float64) []int {
	if c.Eps <= 0 {
		panic(fmt.Sprintf("radius must be positive: %g", c.Eps))
	}
	g := newGrid(x, c.Eps)
	core := make([]bool, len(x))
	for i := range x {
		var n int
		g.neighbors(i, func(int) { n++ })
		core[i] = n >= c.MinSamples
	}

	uf := unionfind.NewThreadSafeUnionFind(len(x))
	for i := range x {
		if !core[i] {
			continue
		}
		g.neighbors(i, func(j int) {
			if core[j] && j > i {
				uf.Union(i, j)
			}
		})
	}

	root := make([]int, len(x))
	for i := range x {
		root[i] = -1
		if core[i] {
			root[i] = uf.Root(i)
			continue
		}
		first := -1
		g.neighbors(i, func(j int) {
			if core[j] && (first < 0 || j < first) {
				first = j
			}
		})
		if first >= 0 {
			root[i] = uf.Root(first)
		}
	}

	labels := make([]int, len(x))
	ids := make(map[int]int)
	for i, r := range root {
		if r < 0 {
			labels[i] = Noise
			continue
		}
		id, ok := ids[r]
		if !ok {
			id = len(ids)
			ids[r] = id
		}
		labels[i] = id
	}
	return labels
}

type cell [4]int

// grid buckets points into cells of side eps
// so that neighbours lie in adjacent cells.
type grid struct {
	x     [][4]float64
	eps   float64
	cells map[cell][]int
}

func newGrid(x [][4]float64, eps float64) *grid {
	g := &grid{x: x, eps: eps, cells: make(map[cell][]int)}
	for i := range x {
		k := g.cell(x[i])
		g.cells[k] = append(g.cells[k], i)
	}
	return g
}

func (g *grid) cell(p [4]float64) cell {
	var k cell
	for d := range p {
		k[d] = int(math.Floor(p[d] / g.eps))
	}
	return k
}

// neighbors calls fn for every point within eps of point i, including i.
func (g *grid) neighbors(i int, fn func(j int)) {
	p := g.x[i]
	k := g.cell(p)
	eps2 := g.eps * g.eps
	var off cell
	for off[0] = -1; off[0] <= 1; off[0]++ {
		for off[1] = -1; off[1] <= 1; off[1]++ {
			for off[2] = -1; off[2] <= 1; off[2]++ {
				for off[3] = -1; off[3] <= 1; off[3]++ {
					q := cell{k[0] + off[0], k[1] + off[1], k[2] + off[2], k[3] + off[3]}
					for _, j := range g.cells[q] {
						if dist2(p, g.x[j]) <= eps2 {
							fn(j)
						}
					}
				}
			}
		}
	}
}

func dist2(a, b [4]float64) float64 {
	var s float64
	for d := range a {
		e := a[d] - b[d]
		s += e * e
	}
	return s
}
