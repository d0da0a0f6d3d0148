/*
Package cmlflow accumulates dense flow over a sliding window of time steps.

The cumulative flow at pixel p and time t is the net displacement of a
point which starts at p and follows the flow fields t, t+1, ..., t+w-1
(or up to the last field). The flow is sampled at the floor of the
current position, without interpolation, and the walk stops if the
position leaves the grid.

Walking every pixel through every window costs O(width*height*w) per time.
Accumulate instead derives the field at t+1 from the field at t by moving
each value one step along its own trajectory, only walking the pixels
which no trajectory reaches. For integer-valued flow the two agree exactly:

	fast := cmlflow.Accumulate(seq, 3, nil)
	slow := cmlflow.AccumulateNaive(seq, 3, nil)

A Mask marks the pixels whose flow is meaningful at each step, for example
those inside the raw frame after stabilization. The result is zero
at every pixel which is not valid throughout its window.
*/
package cmlflow
