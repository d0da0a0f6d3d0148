package stabilize

import (
	"image"
	"math"

	"gonum.org/v1/gonum/stat"
)

// Tracker follows sparse features from one frame to the next.
type Tracker interface {
	Track(prev, next image.Image) (Tracking, error)
}

// Tracking lists the displacement (dx, dy, dz) of every feature
// which was tracked successfully.
type Tracking struct {
	Displacements [][3]float64
}

// Status says whether a measurement can be used as is.
type Status int

const (
	// Movement was measured from enough features.
	Measured Status = iota
	// Too few features were tracked. Movement is not set.
	TooFewFeatures
)

func (s Status) String() string {
	switch s {
	case Measured:
		return "measured"
	case TooFewFeatures:
		return "too few features"
	default:
		return "unknown"
	}
}

// Measurement is the movement of one page between two frames.
type Measurement struct {
	Status   Status
	Movement [3]float64
	// Variance of the direction of displacement, in degrees squared.
	AngleVar float64
	Features int
}

// Measure summarizes a tracking.
// A tracking with no more than minFeatures features is not measured.
func Measure(tr Tracking, minFeatures int) Measurement {
	n := len(tr.Displacements)
	if n <= minFeatures || n == 0 {
		return Measurement{Status: TooFewFeatures, Features: n}
	}
	return Measurement{
		Status:   Measured,
		Movement: meanDisplacement(tr.Displacements),
		AngleVar: angleVariance(tr.Displacements),
		Features: n,
	}
}

func meanDisplacement(d [][3]float64) [3]float64 {
	var mean [3]float64
	x := make([]float64, len(d))
	for k := range mean {
		for i := range d {
			x[i] = d[i][k]
		}
		mean[k] = stat.Mean(x, nil)
	}
	return mean
}

// angleVariance computes the population variance of the direction
// atan2(dx, dy) in degrees.
// Components no greater than 5 are zero before taking the direction.
func angleVariance(d [][3]float64) float64 {
	angles := make([]float64, len(d))
	for i := range d {
		dx, dy := d[i][0], d[i][1]
		if dx <= 5 {
			dx = 0
		}
		if dy <= 5 {
			dy = 0
		}
		angles[i] = math.Atan2(dx, dy) * 180 / math.Pi
	}
	return stat.PopVariance(angles, nil)
}
