package cvflow

import (
	"image"

	"github.com/kenya-sk/CIP/stabilize"
	"gocv.io/x/gocv"
)

// LucasKanade tracks corners of the foreground with pyramidal Lucas-Kanade.
// The foreground is found by Otsu thresholding of the previous frame
// and corners outside it are not tracked.
type LucasKanade struct {
	MaxCorners  int
	Quality     float64
	MinDistance float64
	// Side of the search window at each pyramid level.
	WinSize int
	// Number of pyramid levels above the original image.
	MaxLevel int
	// Iterations and accuracy of the search.
	MaxIter int
	Epsilon float64
}

// DefaultLucasKanade finds up to 200 corners at least 10 pixels apart
// and tracks them in a 20x20 window over 5 pyramid levels.
var DefaultLucasKanade = LucasKanade{
	MaxCorners:  200,
	Quality:     0.001,
	MinDistance: 10,
	WinSize:     20,
	MaxLevel:    5,
	MaxIter:     30,
	Epsilon:     0.01,
}

func (lk LucasKanade) Track(prev, next image.Image) (stabilize.Tracking, error) {
	a, b, err := grayPair(prev, next)
	if err != nil {
		return stabilize.Tracking{}, err
	}
	defer a.Close()
	defer b.Close()

	fg := gocv.NewMat()
	defer fg.Close()
	gocv.Threshold(a, &fg, 0, 255, gocv.ThresholdBinary|gocv.ThresholdOtsu)

	corners := gocv.NewMat()
	defer corners.Close()
	gocv.GoodFeaturesToTrack(a, &corners, lk.MaxCorners, lk.Quality, lk.MinDistance)
	if corners.Empty() {
		return stabilize.Tracking{}, nil
	}

	moved := gocv.NewMat()
	defer moved.Close()
	status := gocv.NewMat()
	defer status.Close()
	errs := gocv.NewMat()
	defer errs.Close()
	criteria := gocv.NewTermCriteria(gocv.Count|gocv.EPS, lk.MaxIter, lk.Epsilon)
	win := image.Pt(lk.WinSize, lk.WinSize)
	gocv.CalcOpticalFlowPyrLKWithParams(a, b, corners, moved, &status, &errs, win, lk.MaxLevel, criteria, 0, 1e-4)

	var tr stabilize.Tracking
	for i := 0; i < status.Rows(); i++ {
		if status.GetUCharAt(i, 0) != 1 {
			continue
		}
		p, q := corners.GetVecfAt(i, 0), moved.GetVecfAt(i, 0)
		if !inForeground(fg, p[0], p[1]) {
			continue
		}
		d := [3]float64{float64(q[0] - p[0]), float64(q[1] - p[1]), 0}
		tr.Displacements = append(tr.Displacements, d)
	}
	return tr, nil
}

// inForeground reports whether the pixel under a corner is set in the mask.
func inForeground(mask gocv.Mat, x, y float32) bool {
	c, r := int(x+0.5), int(y+0.5)
	if r < 0 || r >= mask.Rows() || c < 0 || c >= mask.Cols() {
		return false
	}
	return mask.GetUCharAt(r, c) != 0
}
