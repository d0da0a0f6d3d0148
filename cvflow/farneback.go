package cvflow

import (
	"image"

	"github.com/jvlmdr/go-cv/rimg64"
	"gocv.io/x/gocv"
)

// Farneback is a dense flow estimator using polynomial expansion.
type Farneback struct {
	PyrScale   float64
	Levels     int
	WinSize    int
	Iterations int
	PolyN      int
	PolySigma  float64
}

// DefaultFarneback is used for the stabilized frames.
var DefaultFarneback = Farneback{
	PyrScale:   0.5,
	Levels:     3,
	WinSize:    15,
	Iterations: 3,
	PolyN:      5,
	PolySigma:  1.2,
}

func (f Farneback) Estimate(prev, next image.Image) (*rimg64.Multi, error) {
	a, b, err := grayPair(prev, next)
	if err != nil {
		return nil, err
	}
	defer a.Close()
	defer b.Close()

	uv := gocv.NewMat()
	defer uv.Close()
	gocv.CalcOpticalFlowFarneback(a, b, &uv, f.PyrScale, f.Levels, f.WinSize, f.Iterations, f.PolyN, f.PolySigma, 0)

	dst := rimg64.NewMulti(uv.Cols(), uv.Rows(), 2)
	for y := 0; y < uv.Rows(); y++ {
		for x := 0; x < uv.Cols(); x++ {
			v := uv.GetVecfAt(y, x)
			dst.Set(x, y, 0, float64(v[0]))
			dst.Set(x, y, 1, float64(v[1]))
		}
	}
	return dst, nil
}
