/*
Package flow holds dense displacement fields and time series of them.

A field is a *rimg64.Multi with At(x, y, k): x is the column, y the row.
Flow fields have two channels (dx, dy); score fields have one.

Series are 1-origin in time. For a flow series Fields[t] is the
displacement from frame t-1 to frame t and Fields[0], Fields[1] are zero:

	seq := flow.NewSeries(timeMax, 960, 960, 2)
	for t := 2; t <= timeMax; t++ {
		seq.Fields[t] = estimate(frame[t-1], frame[t])
	}
	seq.CheckZeroPrefix()

Series are saved with SaveSeriesExt, which picks the codec from the
file extension (.csv, .msgpack, .gob, .json). CreateSeriesExt writes a
series one field at a time.
*/
package flow
