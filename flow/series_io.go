package flow

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path"

	"github.com/jvlmdr/go-cv/rimg64"
	"github.com/jvlmdr/go-file/fileutil"
	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"
)

// Shape is the extent of a series.
type Shape struct {
	TimeMax  int
	Width    int
	Height   int
	Channels int
}

// ShapeOf returns the extent of a series.
func ShapeOf(s *Series) Shape {
	size := s.Size()
	return Shape{s.TimeMax(), size.X, size.Y, s.Channels()}
}

func (sh Shape) check() error {
	if sh.TimeMax < 0 || sh.Width < 0 || sh.Height < 0 || sh.Channels < 0 {
		return fmt.Errorf("negative size: %+v", sh)
	}
	return nil
}

// checkField returns an error unless f has the shape of the series.
func (sh Shape) checkField(f *rimg64.Multi, t int) error {
	if f == nil {
		return fmt.Errorf("missing field at time %d", t)
	}
	if f.Width != sh.Width || f.Height != sh.Height || f.Channels != sh.Channels {
		return fmt.Errorf("different size at time %d: want %dx%dx%d, got %dx%dx%d",
			t, sh.Width, sh.Height, sh.Channels, f.Width, f.Height, f.Channels)
	}
	if want := sh.Width * sh.Height * sh.Channels; len(f.Elems) != want {
		return fmt.Errorf("wrong number of elements at time %d: %d (expect %d)", t, len(f.Elems), want)
	}
	return nil
}

// SeriesWriter receives the fields of a series in increasing time order.
// Fields which are not written are zero.
type SeriesWriter interface {
	Write(t int, f *rimg64.Multi) error
	Close() error
}

// CreateSeriesExt opens a series for writing with the codec of SaveSeriesExt.
// The .csv and .msgpack codecs write each field as it is received,
// other formats keep the series in memory until Close.
func CreateSeriesExt(fname string, sh Shape) (SeriesWriter, error) {
	if err := sh.check(); err != nil {
		return nil, err
	}
	ext := path.Ext(fname)
	if ext != ".csv" && ext != ".msgpack" {
		s := NewSeries(sh.TimeMax, sh.Width, sh.Height, sh.Channels)
		return &seriesWriter{shape: sh, last: -1, enc: &memEncoder{fname, s}}, nil
	}
	file, err := os.Create(fname)
	if err != nil {
		return nil, err
	}
	var enc fieldEncoder
	if ext == ".csv" {
		enc, err = newCSVEncoder(file, sh)
	} else {
		enc, err = newMsgpackEncoder(file, sh)
	}
	if err != nil {
		file.Close()
		return nil, err
	}
	return &seriesWriter{shape: sh, last: -1, enc: enc, file: file}, nil
}

type fieldEncoder interface {
	encodeField(t int, f *rimg64.Multi) error
	flush() error
}

type seriesWriter struct {
	shape Shape
	last  int
	enc   fieldEncoder
	file  *os.File
}

func (w *seriesWriter) Write(t int, f *rimg64.Multi) error {
	if t <= w.last {
		return fmt.Errorf("time out of order: %d after %d", t, w.last)
	}
	if t > w.shape.TimeMax {
		return fmt.Errorf("time out of range: %d (max %d)", t, w.shape.TimeMax)
	}
	if err := w.shape.checkField(f, t); err != nil {
		return err
	}
	w.last = t
	return w.enc.encodeField(t, f)
}

func (w *seriesWriter) Close() error {
	err := w.enc.flush()
	if w.file != nil {
		if e := w.file.Close(); err == nil {
			err = e
		}
	}
	return err
}

// memEncoder collects the fields and saves them with fileutil.
type memEncoder struct {
	fname string
	s     *Series
}

func (e *memEncoder) encodeField(t int, f *rimg64.Multi) error {
	e.s.Fields[t] = f
	return nil
}

func (e *memEncoder) flush() error {
	return fileutil.SaveExt(e.fname, e.s)
}

// msgpackEncoder writes the shape then a time and a field for each field.
type msgpackEncoder struct {
	bw  *bufio.Writer
	enc *msgpack.Encoder
}

func newMsgpackEncoder(w io.Writer, sh Shape) (*msgpackEncoder, error) {
	bw := bufio.NewWriter(w)
	e := &msgpackEncoder{bw: bw, enc: msgpack.NewEncoder(bw)}
	if err := e.enc.Encode(sh); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *msgpackEncoder) encodeField(t int, f *rimg64.Multi) error {
	if err := e.enc.EncodeInt(int64(t)); err != nil {
		return err
	}
	return e.enc.Encode(f)
}

func (e *msgpackEncoder) flush() error {
	return e.bw.Flush()
}

// DecodeSeriesMsgpack reads the format written by the .msgpack codec.
func DecodeSeriesMsgpack(r io.Reader) (*Series, error) {
	dec := msgpack.NewDecoder(r)
	var sh Shape
	if err := dec.Decode(&sh); err != nil {
		return nil, errors.Wrap(err, "decode size")
	}
	if err := sh.check(); err != nil {
		return nil, err
	}
	s := NewSeries(sh.TimeMax, sh.Width, sh.Height, sh.Channels)
	last := -1
	for {
		t, err := dec.DecodeInt()
		if errors.Is(err, io.EOF) {
			return s, nil
		}
		if err != nil {
			return nil, errors.Wrap(err, "decode time")
		}
		if t <= last || t > sh.TimeMax {
			return nil, fmt.Errorf("time out of order: %d after %d", t, last)
		}
		f := new(rimg64.Multi)
		if err := dec.Decode(f); err != nil {
			return nil, errors.Wrapf(err, "decode field %d", t)
		}
		if err := sh.checkField(f, t); err != nil {
			return nil, err
		}
		s.Fields[t] = f
		last = t
	}
}

// SaveSeriesExt saves a series in a format chosen by the file extension:
// .csv, .msgpack, or any extension understood by fileutil (gob, json).
func SaveSeriesExt(fname string, s *Series) error {
	ext := path.Ext(fname)
	if ext != ".csv" && ext != ".msgpack" {
		return fileutil.SaveExt(fname, s)
	}
	w, err := CreateSeriesExt(fname, ShapeOf(s))
	if err != nil {
		return err
	}
	for t, f := range s.Fields {
		if err := w.Write(t, f); err != nil {
			w.Close()
			return err
		}
	}
	return w.Close()
}

// LoadSeriesExt is the inverse of SaveSeriesExt.
// Every field must have the size of the first one.
func LoadSeriesExt(fname string) (*Series, error) {
	s, err := loadSeriesExt(fname)
	if err != nil {
		return nil, errors.Wrapf(err, "load series %s", fname)
	}
	if err := checkLoaded(s); err != nil {
		return nil, errors.Wrapf(err, "load series %s", fname)
	}
	return s, nil
}

func loadSeriesExt(fname string) (*Series, error) {
	switch path.Ext(fname) {
	case ".csv", ".msgpack":
		file, err := os.Open(fname)
		if err != nil {
			return nil, err
		}
		defer file.Close()
		if path.Ext(fname) == ".csv" {
			return DecodeSeriesCSV(file)
		}
		return DecodeSeriesMsgpack(file)
	}
	var s *Series
	if err := fileutil.LoadExt(fname, &s); err != nil {
		return nil, err
	}
	return s, nil
}

func checkLoaded(s *Series) error {
	if s == nil || len(s.Fields) == 0 {
		return fmt.Errorf("no fields")
	}
	f := s.Fields[0]
	if f == nil {
		return fmt.Errorf("missing field at time 0")
	}
	sh := Shape{len(s.Fields) - 1, f.Width, f.Height, f.Channels}
	if err := sh.check(); err != nil {
		return err
	}
	for t, f := range s.Fields {
		if err := sh.checkField(f, t); err != nil {
			return err
		}
	}
	return nil
}
