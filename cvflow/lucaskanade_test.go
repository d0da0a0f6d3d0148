package cvflow

import (
	"testing"

	"gocv.io/x/gocv"
)

func TestInForeground(t *testing.T) {
	mask := gocv.NewMatWithSize(4, 6, gocv.MatTypeCV8U)
	defer mask.Close()
	// Row 1, column 2.
	mask.SetUCharAt(1, 2, 255)
	cases := []struct {
		x, y float32
		want bool
	}{
		{2, 1, true},
		{2.3, 0.8, true},
		{1, 2, false},
		{-1, 1, false},
		{2, 4, false},
		{6, 0, false},
	}
	for _, q := range cases {
		if got := inForeground(mask, q.x, q.y); got != q.want {
			t.Errorf("(%g, %g): want %v, got %v", q.x, q.y, q.want, got)
		}
	}
}

func TestDefaultLucasKanade(t *testing.T) {
	lk := DefaultLucasKanade
	if lk.WinSize != 20 || lk.MaxLevel != 5 {
		t.Errorf("want 20x20 window over 5 levels, got %d and %d", lk.WinSize, lk.MaxLevel)
	}
	if lk.MaxIter != 30 || lk.Epsilon != 0.01 {
		t.Errorf("want 30 iterations to 0.01, got %d and %g", lk.MaxIter, lk.Epsilon)
	}
}
