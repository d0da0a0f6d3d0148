// Package cvflow estimates flow and tracks features with OpenCV.
package cvflow

import (
	"image"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// grayMat converts an image to an 8-bit single channel Mat.
// The caller must close the result.
func grayMat(im image.Image) (gocv.Mat, error) {
	if g, ok := im.(*image.Gray); ok {
		return gocv.ImageGrayToMatGray(g)
	}
	bgr, err := gocv.ImageToMatRGB(im)
	if err != nil {
		return gocv.Mat{}, errors.Wrap(err, "convert image")
	}
	defer bgr.Close()
	gray := gocv.NewMat()
	gocv.CvtColor(bgr, &gray, gocv.ColorBGRToGray)
	return gray, nil
}

// grayPair converts two frames of equal size.
func grayPair(prev, next image.Image) (gocv.Mat, gocv.Mat, error) {
	if p, q := prev.Bounds().Size(), next.Bounds().Size(); p != q {
		return gocv.Mat{}, gocv.Mat{}, errors.Errorf("different size: %v and %v", p, q)
	}
	a, err := grayMat(prev)
	if err != nil {
		return gocv.Mat{}, gocv.Mat{}, err
	}
	b, err := grayMat(next)
	if err != nil {
		a.Close()
		return gocv.Mat{}, gocv.Mat{}, err
	}
	return a, b, nil
}
