package stabilize

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path"
	"strconv"

	"github.com/jvlmdr/go-file/fileutil"
	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"
)

// SaveOffsetsExt saves offsets in a format chosen by the file extension:
// .csv, .msgpack, or any extension understood by fileutil (gob, json).
func SaveOffsetsExt(fname string, o *Offsets) error {
	switch path.Ext(fname) {
	case ".csv":
		file, err := os.Create(fname)
		if err != nil {
			return err
		}
		defer file.Close()
		return EncodeOffsetsCSV(file, o)
	case ".msgpack":
		file, err := os.Create(fname)
		if err != nil {
			return err
		}
		defer file.Close()
		return msgpack.NewEncoder(file).Encode(o)
	default:
		return fileutil.SaveExt(fname, o)
	}
}

// LoadOffsetsExt is the inverse of SaveOffsetsExt.
func LoadOffsetsExt(fname string) (*Offsets, error) {
	o, err := loadOffsetsExt(fname)
	if err != nil {
		return nil, errors.Wrapf(err, "load offsets %s", fname)
	}
	if want := (o.PageMax + 1) * (o.TimeMax + 1) * 3; len(o.Elems) != want {
		return nil, fmt.Errorf("load offsets %s: wrong number of elements: %d (expect %d)", fname, len(o.Elems), want)
	}
	return o, nil
}

func loadOffsetsExt(fname string) (*Offsets, error) {
	switch path.Ext(fname) {
	case ".csv":
		file, err := os.Open(fname)
		if err != nil {
			return nil, err
		}
		defer file.Close()
		return DecodeOffsetsCSV(file)
	case ".msgpack":
		file, err := os.Open(fname)
		if err != nil {
			return nil, err
		}
		defer file.Close()
		o := new(Offsets)
		if err := msgpack.NewDecoder(file).Decode(o); err != nil {
			return nil, err
		}
		return o, nil
	}
	var o *Offsets
	if err := fileutil.LoadExt(fname, &o); err != nil {
		return nil, err
	}
	return o, nil
}

// EncodeOffsetsCSV writes a size record then one record page,time,x,y,z
// for every page and time.
func EncodeOffsetsCSV(w io.Writer, o *Offsets) error {
	ww := csv.NewWriter(w)
	size := []string{"size", strconv.Itoa(o.PageMax), strconv.Itoa(o.TimeMax)}
	if err := ww.Write(size); err != nil {
		return err
	}
	for page := 0; page <= o.PageMax; page++ {
		for t := 0; t <= o.TimeMax; t++ {
			v := o.At(page, t)
			rec := []string{
				"offset",
				strconv.Itoa(page),
				strconv.Itoa(t),
				strconv.FormatFloat(v[0], 'g', -1, 64),
				strconv.FormatFloat(v[1], 'g', -1, 64),
				strconv.FormatFloat(v[2], 'g', -1, 64),
			}
			if err := ww.Write(rec); err != nil {
				return err
			}
		}
	}
	ww.Flush()
	return ww.Error()
}

// DecodeOffsetsCSV reads the format written by EncodeOffsetsCSV.
func DecodeOffsetsCSV(r io.Reader) (*Offsets, error) {
	var o *Offsets
	rr := csv.NewReader(r)
	rr.FieldsPerRecord = -1
	for {
		rec, err := rr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(rec) == 0 {
			continue
		}
		switch rec[0] {
		case "size":
			if o != nil {
				return nil, fmt.Errorf("duplicate size record")
			}
			if len(rec) != 3 {
				return nil, fmt.Errorf("wrong number of elements in line: %d (expect 3)", len(rec))
			}
			pageMax, err := strconv.Atoi(rec[1])
			if err != nil {
				return nil, err
			}
			timeMax, err := strconv.Atoi(rec[2])
			if err != nil {
				return nil, err
			}
			if pageMax < 0 || timeMax < 0 {
				return nil, fmt.Errorf("negative size: %d, %d", pageMax, timeMax)
			}
			o = NewOffsets(pageMax, timeMax)
		case "offset":
			if o == nil {
				return nil, fmt.Errorf("offset before size record")
			}
			if len(rec) != 6 {
				return nil, fmt.Errorf("wrong number of elements in line: %d (expect 6)", len(rec))
			}
			page, err := strconv.Atoi(rec[1])
			if err != nil {
				return nil, err
			}
			t, err := strconv.Atoi(rec[2])
			if err != nil {
				return nil, err
			}
			if page < 0 || page > o.PageMax || t < 0 || t > o.TimeMax {
				return nil, fmt.Errorf("out of range: page %d, time %d", page, t)
			}
			var v [3]float64
			for k := range v {
				if v[k], err = strconv.ParseFloat(rec[3+k], 64); err != nil {
					return nil, err
				}
			}
			o.Set(page, t, v)
		default:
			return nil, fmt.Errorf("unknown field: %s", rec[0])
		}
	}
	if o == nil {
		return nil, fmt.Errorf("no size record")
	}
	return o, nil
}
