// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package histogram computes histograms of a field that is
// distributed across the ranks of a communicator.
//
// Each rank holds a local buffer of field values. Compute first
// reduces the local extents to global ones, derives the bin edges from
// the global extents, counts its local values, and finally sums the
// counts across ranks. Because edges depend only on reduced values,
// every rank derives identical edges and ends with identical counts.
//
// All of Compute's reductions are collectives: every rank of the
// communicator must call Compute with the same options.
package histogram

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/insitu/comm"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// DefaultBins is the number of bins used when Options.Bins is zero.
const DefaultBins = 256

// Range is an explicit histogram range.
type Range struct {
	Min, Max float64
}

// Options configures a histogram computation.
type Options struct {
	// Field names the field being binned. It is informational.
	Field string
	// Bins is the number of bins. DefaultBins is used if it is zero.
	Bins int
	// Range, if set, fixes the histogram's range instead of deriving
	// it from the data's global extents. Values outside the range are
	// not counted.
	Range *Range
}

func (o Options) bins() int {
	if o.Bins == 0 {
		return DefaultBins
	}
	return o.Bins
}

// Validate checks the options for consistency.
func (o Options) Validate() error {
	if o.Bins < 0 {
		return errors.E(errors.Invalid, fmt.Sprintf("histogram: invalid number of bins %d", o.Bins))
	}
	if r := o.Range; r != nil {
		if !finite(r.Min) || !finite(r.Max) {
			return errors.E(errors.Invalid, fmt.Sprintf("histogram: range [%v, %v] is not finite", r.Min, r.Max))
		}
		if r.Min >= r.Max {
			return errors.E(errors.Invalid, fmt.Sprintf("histogram: min value (%v) must be smaller than max (%v)", r.Min, r.Max))
		}
	}
	return nil
}

// A Histogram is the result of a distributed histogram computation.
type Histogram struct {
	// Field is the name of the binned field.
	Field string
	// Cycle is the simulation cycle of the binned data.
	Cycle int64
	// Min and Max are the global extents of the data. They are +Inf
	// and -Inf if no rank held any values.
	Min, Max float64
	// Edges holds len(Counts)+1 non-decreasing bin edges. Bin i
	// covers [Edges[i], Edges[i+1]); the last bin also includes its
	// upper edge.
	Edges []float64
	// Counts holds the global number of values in each bin.
	Counts []int64
	// NaN is the number of values on this rank that were not numbers.
	NaN int64
	// Dropped is the number of values on this rank that fell outside
	// an explicit range.
	Dropped int64
}

// Total returns the number of values counted in h.
func (h *Histogram) Total() int64 {
	var n int64
	for _, c := range h.Counts {
		n += c
	}
	return n
}

// Empty tells whether no rank held any values.
func (h *Histogram) Empty() bool {
	return h.Min > h.Max
}

// LocalExtents returns the minimum and maximum of values, ignoring
// NaNs. If values holds no numbers, LocalExtents returns the
// reduction identities +Inf and -Inf, so that the rank does not
// influence the global extents.
func LocalExtents(values []float64) (min, max float64) {
	min, max = math.Inf(1), math.Inf(-1)
	for _, v := range values {
		if math.IsNaN(v) {
			continue
		}
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return
}

// GlobalExtents returns the minimum and maximum of the values held
// by all ranks of c. It is a collective.
func GlobalExtents(ctx context.Context, c comm.Communicator, values []float64) (min, max float64, err error) {
	lo, hi := LocalExtents(values)
	mins, err := comm.AllreduceFloat64(ctx, c, comm.Min, []float64{lo})
	if err != nil {
		return 0, 0, err
	}
	maxs, err := comm.AllreduceFloat64(ctx, c, comm.Max, []float64{hi})
	if err != nil {
		return 0, 0, err
	}
	return mins[0], maxs[0], nil
}

// Edges returns bins+1 equally spaced edges spanning [min, max]
// inclusive. A degenerate range (min == max) is widened to
// [min-0.5, max+0.5] so that the bins keep a non-zero width. Ranges
// wider than the largest float64 are interpolated from their ends.
func Edges(min, max float64, bins int) ([]float64, error) {
	if bins < 1 {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("histogram: invalid number of bins %d", bins))
	}
	if !finite(min) || !finite(max) {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("histogram: range [%v, %v] is not finite", min, max))
	}
	if min > max {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("histogram: min value (%v) exceeds max (%v)", min, max))
	}
	if min == max {
		min, max = min-0.5, max+0.5
	}
	edges := make([]float64, bins+1)
	if finite(max - min) {
		floats.Span(edges, min, max)
	} else {
		for i := range edges {
			t := float64(i) / float64(bins)
			edges[i] = min*(1-t) + max*t
		}
	}
	edges[0], edges[bins] = min, max
	return edges, nil
}

// Count returns the number of values in each of the bins delimited by
// edges. Bins are half-open, except for the last, which is closed.
// Values outside [edges[0], edges[len(edges)-1]] and NaNs are not
// counted. Count does not modify values. Fewer than two edges
// delimit no bins, and Count returns nil.
func Count(values, edges []float64) []int64 {
	if len(edges) < 2 {
		return nil
	}
	counts := make([]int64, len(edges)-1)
	lo, hi := edges[0], edges[len(edges)-1]
	x := make([]float64, 0, len(values))
	for _, v := range values {
		if v >= lo && v <= hi {
			x = append(x, v)
		}
	}
	if len(x) == 0 {
		return counts
	}
	sort.Float64s(x)
	// The final divider is nudged past the upper edge to close the last
	// bin.
	dividers := append([]float64(nil), edges...)
	dividers[len(dividers)-1] = math.Nextafter(hi, math.Inf(1))
	for i, c := range stat.Histogram(nil, dividers, x, nil) {
		counts[i] = int64(c)
	}
	return counts
}

// Compute computes the histogram of the values held by all ranks of
// c. It is a collective: every rank of c must call Compute with the
// same options. A rank without values passes an empty slice.
//
// The range is derived from the global extents unless opts.Range is
// set. If no rank holds any values, the range is [0, 1] and all counts
// are zero.
func Compute(ctx context.Context, c comm.Communicator, values []float64, opts Options) (*Histogram, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	h := &Histogram{Field: opts.Field}
	var err error
	if h.Min, h.Max, err = GlobalExtents(ctx, c, values); err != nil {
		return nil, err
	}
	lo, hi := h.Min, h.Max
	switch {
	case opts.Range != nil:
		lo, hi = opts.Range.Min, opts.Range.Max
	case h.Empty():
		lo, hi = 0, 1
	}
	if h.Edges, err = Edges(lo, hi, opts.bins()); err != nil {
		return nil, err
	}
	local := Count(values, h.Edges)
	var counted int64
	for _, n := range local {
		counted += n
	}
	for _, v := range values {
		if math.IsNaN(v) {
			h.NaN++
		}
	}
	h.Dropped = int64(len(values)) - counted - h.NaN
	if h.Counts, err = comm.AllreduceInt64(ctx, c, comm.Sum, local); err != nil {
		return nil, err
	}
	return h, nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
