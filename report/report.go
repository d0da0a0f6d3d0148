// Package report writes detected events as a tab-separated text file.
//
// The file starts with the number of times and the number of events,
// followed by a blank line. Each event is a block of one line per time
// and a blank line. A line holds the box x0 y0 z0 x1 y1 z1 of the event
// at that time, or six -1 if the event is not active.
package report

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
)

// Box is a region of the raw frames spanning pages [Z0, Z1].
type Box struct {
	X0, Y0, Z0 int
	X1, Y1, Z1 int
}

// None marks a time at which an event is not active.
var None = Box{-1, -1, -1, -1, -1, -1}

// Write writes the boxes of every event.
// Each event must have exactly timeMax boxes, for times 1 to timeMax.
func Write(w io.Writer, timeMax int, events [][]Box) error {
	for i, boxes := range events {
		if len(boxes) != timeMax {
			return fmt.Errorf("event %d: want %d boxes, got %d", i, timeMax, len(boxes))
		}
	}
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "%d\n%d\n\n", timeMax, len(events))
	for _, boxes := range events {
		for _, b := range boxes {
			fmt.Fprintf(bw, "%d\t%d\t%d\t%d\t%d\t%d\n", b.X0, b.Y0, b.Z0, b.X1, b.Y1, b.Z1)
		}
		fmt.Fprintln(bw)
	}
	return bw.Flush()
}

// WriteFile creates a file and calls Write.
func WriteFile(fname string, timeMax int, events [][]Box) error {
	file, err := os.Create(fname)
	if err != nil {
		return errors.Wrapf(err, "create report %s", fname)
	}
	if err := Write(file, timeMax, events); err != nil {
		file.Close()
		return errors.Wrapf(err, "write report %s", fname)
	}
	return file.Close()
}
