package flow

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/jvlmdr/go-cv/rimg64"
)

// EncodeSeriesCSV writes a size record followed by one record per non-zero element.
func EncodeSeriesCSV(w io.Writer, s *Series) error {
	enc, err := newCSVEncoder(w, ShapeOf(s))
	if err != nil {
		return err
	}
	for t, f := range s.Fields {
		if err := enc.encodeField(t, f); err != nil {
			return err
		}
	}
	return enc.flush()
}

type csvEncoder struct {
	ww *csv.Writer
}

func newCSVEncoder(w io.Writer, sh Shape) (*csvEncoder, error) {
	ww := csv.NewWriter(w)
	if err := ww.Write(formatSize(sh.TimeMax, sh.Width, sh.Height, sh.Channels)); err != nil {
		return nil, err
	}
	return &csvEncoder{ww}, nil
}

// encodeField writes the elements of f which are not +0.
func (e *csvEncoder) encodeField(t int, f *rimg64.Multi) error {
	for x := 0; x < f.Width; x++ {
		for y := 0; y < f.Height; y++ {
			for k := 0; k < f.Channels; k++ {
				v := f.At(x, y, k)
				if v == 0 && !math.Signbit(v) {
					continue
				}
				if err := e.ww.Write(formatElem(t, x, y, k, v)); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (e *csvEncoder) flush() error {
	e.ww.Flush()
	return e.ww.Error()
}

func formatSize(timeMax, width, height, chans int) []string {
	return []string{
		"size",
		strconv.FormatInt(int64(timeMax), 10),
		strconv.FormatInt(int64(width), 10),
		strconv.FormatInt(int64(height), 10),
		strconv.FormatInt(int64(chans), 10),
	}
}

func formatElem(t, x, y, k int, v float64) []string {
	return []string{
		"elem",
		strconv.FormatInt(int64(t), 10),
		strconv.FormatInt(int64(x), 10),
		strconv.FormatInt(int64(y), 10),
		strconv.FormatInt(int64(k), 10),
		strconv.FormatFloat(v, 'g', -1, 64),
	}
}

// DecodeSeriesCSV reads the format written by EncodeSeriesCSV.
// The size record must come first.
func DecodeSeriesCSV(r io.Reader) (*Series, error) {
	var s *Series
	rr := csv.NewReader(r)
	rr.FieldsPerRecord = -1
	for {
		rec, err := rr.Read()
		if err == io.EOF {
			if s == nil {
				return nil, fmt.Errorf("no size record")
			}
			return s, nil
		}
		if err != nil {
			return nil, err
		}
		if len(rec) == 0 {
			continue
		}

		var field string
		field, rec = rec[0], rec[1:]
		switch field {
		case "size":
			if s != nil {
				return nil, fmt.Errorf("duplicate size record")
			}
			ints, err := parseInts(rec, 4)
			if err != nil {
				return nil, err
			}
			for _, n := range ints {
				if n < 0 {
					return nil, fmt.Errorf("negative size: %v", ints)
				}
			}
			s = NewSeries(ints[0], ints[1], ints[2], ints[3])
		case "elem":
			if s == nil {
				return nil, fmt.Errorf("element before size record")
			}
			if err := errIfLenNotEq(5, len(rec)); err != nil {
				return nil, err
			}
			ints, err := parseInts(rec[:4], 4)
			if err != nil {
				return nil, err
			}
			v, err := strconv.ParseFloat(rec[4], 64)
			if err != nil {
				return nil, err
			}
			if err := setElem(s, ints[0], ints[1], ints[2], ints[3], v); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("unknown field: %s", field)
		}
	}
}

func setElem(s *Series, t, x, y, k int, v float64) error {
	if t < 0 || t >= len(s.Fields) {
		return fmt.Errorf("time out of range: %d", t)
	}
	f := s.Fields[t]
	if !inside(f, x, y, k) {
		return fmt.Errorf("element out of range: (%d, %d, %d)", x, y, k)
	}
	f.Set(x, y, k, v)
	return nil
}

func inside(f *rimg64.Multi, x, y, k int) bool {
	return x >= 0 && x < f.Width && y >= 0 && y < f.Height && k >= 0 && k < f.Channels
}

func parseInts(s []string, n int) ([]int, error) {
	if err := errIfLenNotEq(n, len(s)); err != nil {
		return nil, err
	}
	ints := make([]int, n)
	for i := range s {
		x, err := strconv.ParseInt(s[i], 10, 32)
		if err != nil {
			return nil, err
		}
		ints[i] = int(x)
	}
	return ints, nil
}

func errIfLenNotEq(want, got int) error {
	if want != got {
		return fmt.Errorf("wrong number of elements in line: %d (expect %d)", got, want)
	}
	return nil
}
