package dataset

import (
	"image"

	"github.com/pkg/errors"
)

// Key identifies a frame.
type Key struct {
	Time, Page int
}

// Memory is a Source backed by a map.
type Memory map[Key]image.Image

// Frame returns the stored image or an error with cause ErrNotFound.
func (m Memory) Frame(time, page int) (image.Image, error) {
	im, ok := m[Key{time, page}]
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "frame time %d page %d", time, page)
	}
	return im, nil
}
