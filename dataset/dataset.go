package dataset

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jvlmdr/go-file/fileutil"
	"github.com/pkg/errors"
)

// ErrNotFound is the cause of errors for missing frames and index files.
var ErrNotFound = errors.New("not found")

// Source provides the raw frame of a page at a time.
// Time and page are 1-origin.
type Source interface {
	Frame(time, page int) (image.Image, error)
}

// Dir reads frames from the directory layout
//
//	<Base>/<Prefix><Level>/t<time>/<Prefix><Level>_t<time>_page_<page>.tif
//
// with level, time and page zero-padded to 2, 3 and 4 digits.
type Dir struct {
	Base   string
	Prefix string
	Level  int
	// Expected frame size. Not checked if zero.
	Size image.Point
}

// Root returns the directory of the level.
func (d *Dir) Root() string {
	return filepath.Join(d.Base, fmt.Sprintf("%s%02d", d.Prefix, d.Level))
}

// Path returns the file name of a frame.
func (d *Dir) Path(time, page int) string {
	name := fmt.Sprintf("%s%02d_t%03d_page_%04d.tif", d.Prefix, d.Level, time, page)
	return filepath.Join(d.Root(), fmt.Sprintf("t%03d", time), name)
}

// Frame loads the image file of a frame.
// If the file does not exist, the error has cause ErrNotFound.
func (d *Dir) Frame(time, page int) (image.Image, error) {
	name := d.Path(time, page)
	if _, err := os.Stat(name); os.IsNotExist(err) {
		return nil, errors.Wrapf(ErrNotFound, "frame %s", name)
	}
	im, err := loadImage(name)
	if err != nil {
		return nil, errors.Wrapf(err, "load frame %s", name)
	}
	if err := checkSize(im, d.Size); err != nil {
		return nil, errors.Wrapf(err, "frame %s", name)
	}
	return im, nil
}

// FrameSize reads the size of a frame without decoding it.
func (d *Dir) FrameSize(time, page int) (image.Point, error) {
	name := d.Path(time, page)
	if _, err := os.Stat(name); os.IsNotExist(err) {
		return image.Point{}, errors.Wrapf(ErrNotFound, "frame %s", name)
	}
	return loadImageSize(name)
}

func checkSize(im image.Image, want image.Point) error {
	if want == (image.Point{}) {
		return nil
	}
	if got := im.Bounds().Size(); got != want {
		return fmt.Errorf("different size: want %v, got %v", want, got)
	}
	return nil
}

// Info describes the extent of a dataset.
type Info struct {
	TimeMax int
	PageMax int
}

// ReadInfo reads input.csv in the level directory.
// The first line is a header, followed by the number of times
// and the number of pages on one line each.
func (d *Dir) ReadInfo() (Info, error) {
	name := filepath.Join(d.Root(), "input.csv")
	if _, err := os.Stat(name); os.IsNotExist(err) {
		return Info{}, errors.Wrapf(ErrNotFound, "dataset index %s", name)
	}
	lines, err := fileutil.LoadLines(name)
	if err != nil {
		return Info{}, errors.Wrapf(err, "load dataset index %s", name)
	}
	info, err := parseInfo(lines)
	if err != nil {
		return Info{}, errors.Wrapf(err, "parse dataset index %s", name)
	}
	return info, nil
}

// parseInfo reads a header line then the number of times and pages.
// Blank lines are ignored.
func parseInfo(all []string) (Info, error) {
	var lines []string
	for _, line := range all {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) < 3 {
		return Info{}, fmt.Errorf("need 3 lines: found %d", len(lines))
	}
	timeMax, err := strconv.Atoi(strings.TrimSpace(lines[1]))
	if err != nil {
		return Info{}, errors.Wrap(err, "number of times")
	}
	pageMax, err := strconv.Atoi(strings.TrimSpace(lines[2]))
	if err != nil {
		return Info{}, errors.Wrap(err, "number of pages")
	}
	if timeMax < 1 || pageMax < 1 {
		return Info{}, fmt.Errorf("invalid extent: %d times, %d pages", timeMax, pageMax)
	}
	return Info{TimeMax: timeMax, PageMax: pageMax}, nil
}

// ReadInfo reads the extent of the level directory under base.
func ReadInfo(base, prefix string, level int) (Info, error) {
	d := &Dir{Base: base, Prefix: prefix, Level: level}
	return d.ReadInfo()
}
