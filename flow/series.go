package flow

import (
	"fmt"
	"image"

	"github.com/jvlmdr/go-cv/rimg64"
)

// Series is a sequence of equally sized fields indexed by time.
// Time is 1-origin: Fields[t] describes the transition t-1 -> t
// for flow, or the value at time t for derived fields.
// Fields[0] and Fields[1] are zero for flow series.
type Series struct {
	Fields []*rimg64.Multi
}

// NewSeries allocates zero fields for times 0 to timeMax inclusive.
func NewSeries(timeMax, width, height, channels int) *Series {
	fields := make([]*rimg64.Multi, timeMax+1)
	for t := range fields {
		fields[t] = rimg64.NewMulti(width, height, channels)
	}
	return &Series{fields}
}

// Len returns the number of fields including index 0.
func (s *Series) Len() int { return len(s.Fields) }

// TimeMax returns the largest valid time index.
func (s *Series) TimeMax() int { return len(s.Fields) - 1 }

func (s *Series) At(t int) *rimg64.Multi { return s.Fields[t] }

// Size returns the size of the fields.
// It panics if the fields differ in size.
func (s *Series) Size() image.Point {
	size := s.Fields[0].Size()
	for _, f := range s.Fields {
		if !f.Size().Eq(size) {
			panic(fmt.Sprintf("different size: found %v and %v", size, f.Size()))
		}
	}
	return size
}

// Channels returns the number of channels of the fields.
// It panics if the fields differ in channels.
func (s *Series) Channels() int {
	channels := s.Fields[0].Channels
	for _, f := range s.Fields {
		if f.Channels != channels {
			panic(fmt.Sprintf("different channels: found %d and %d", channels, f.Channels))
		}
	}
	return channels
}

// CheckShape panics unless every field is width x height x channels.
func (s *Series) CheckShape(width, height, channels int) {
	for t, f := range s.Fields {
		CheckField(f, width, height, channels, t)
	}
}

// CheckZeroPrefix panics unless the fields at time 0 and 1 are zero.
func (s *Series) CheckZeroPrefix() {
	if len(s.Fields) < 2 {
		panic(fmt.Sprintf("series too short: %d fields", len(s.Fields)))
	}
	for t := 0; t < 2; t++ {
		if !IsZero(s.Fields[t]) {
			panic(fmt.Sprintf("field at time %d is not zero", t))
		}
	}
}

// CheckField panics unless f is width x height x channels.
// The time index only appears in the message.
func CheckField(f *rimg64.Multi, width, height, channels, t int) {
	if f.Width != width || f.Height != height {
		panic(fmt.Sprintf("different size at time %d: want %dx%d, got %dx%d", t, width, height, f.Width, f.Height))
	}
	if f.Channels != channels {
		panic(fmt.Sprintf("different channels at time %d: want %d, got %d", t, channels, f.Channels))
	}
}

// IsZero reports whether every element of f is zero.
func IsZero(f *rimg64.Multi) bool {
	for _, x := range f.Elems {
		if x != 0 {
			return false
		}
	}
	return true
}
