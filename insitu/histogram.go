// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package insitu

import (
	"context"
	"sync"

	"github.com/grailbio/base/log"
	"github.com/grailbio/insitu/blueprint"
	"github.com/grailbio/insitu/histogram"
	"github.com/grailbio/insitu/stats"
)

// HistogramExtract computes a distributed histogram of a field at
// every time step and reports it on the leader rank.
type HistogramExtract struct {
	Options histogram.Options

	mu   sync.Mutex
	last *histogram.Histogram
}

// NewHistogramExtract returns an extract that bins the field named
// by opts.Field.
func NewHistogramExtract(opts histogram.Options) *HistogramExtract {
	return &HistogramExtract{Options: opts}
}

// Execute implements Extract. The field's values are gathered from
// all of the rank's domains; a rank without domains contributes no
// values but still takes part in the reductions. A domain that lacks
// the field fails the step with errors.NotExist.
func (x *HistogramExtract) Execute(ctx context.Context, step *Step) error {
	values, err := fieldValues(step.Domains, x.Options.Field)
	if err != nil {
		return err
	}
	h, err := histogram.Compute(ctx, step.Comm, values, x.Options)
	if err != nil {
		return err
	}
	h.Cycle = step.Cycle
	step.Stats.Int(stats.NumValues).Add(int64(len(values)))
	step.Stats.Int(stats.NumNaN).Add(h.NaN)
	step.Stats.Int(stats.NumDropped).Add(h.Dropped)
	log.Debug.Printf("rank %d: field %s: %d local values, global extents [%v, %v]",
		step.Comm.Rank(), x.Options.Field, len(values), h.Min, h.Max)
	x.mu.Lock()
	x.last = h
	x.mu.Unlock()
	return histogram.Report(step.Stdout, step.Comm, h)
}

// Last returns the histogram computed by the most recent successful
// step, or nil.
func (x *HistogramExtract) Last() *histogram.Histogram {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.last
}

// fieldValues concatenates the values of the named field across
// domains. A single domain's buffer is returned without copying.
func fieldValues(domains []*blueprint.Node, name string) ([]float64, error) {
	switch len(domains) {
	case 0:
		return nil, nil
	case 1:
		return blueprint.Field(domains[0], name)
	}
	var values []float64
	for _, d := range domains {
		v, err := blueprint.Field(d, name)
		if err != nil {
			return nil, err
		}
		values = append(values, v...)
	}
	return values, nil
}
