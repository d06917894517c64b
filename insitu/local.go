// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package insitu

import (
	"context"
	"fmt"
	"io"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/insitu/blueprint"
	"github.com/grailbio/insitu/comm"
	"github.com/grailbio/insitu/histogram"
	"github.com/grailbio/insitu/stats"
	"golang.org/x/sync/errgroup"
)

// Assign distributes paths over n ranks, round robin. Ranks beyond
// the number of paths receive none. Assign returns nil if n < 1.
func Assign(paths []string, n int) [][]string {
	if n < 1 {
		return nil
	}
	assign := make([][]string, n)
	for i, path := range paths {
		assign[i%n] = append(assign[i%n], path)
	}
	return assign
}

// LoadDomains loads the blueprint documents at paths and returns a
// node holding all of their domains. No paths yields an empty node.
func LoadDomains(ctx context.Context, paths []string) (*blueprint.Node, error) {
	nodes := make([]*blueprint.Node, len(paths))
	for i, path := range paths {
		var err error
		if nodes[i], err = blueprint.Load(ctx, path); err != nil {
			return nil, err
		}
	}
	return blueprint.Multi(nodes...), nil
}

// Result is the outcome of a rank's histogram step.
type Result struct {
	Rank      int
	Histogram *histogram.Histogram
	Stats     stats.Values
}

// RunRank executes a single histogram step for the rank given by c
// over the domains stored at paths. The leader's report is written
// to stdout.
func RunRank(ctx context.Context, c comm.Communicator, paths []string, opts histogram.Options, stdout io.Writer) (Result, error) {
	data, err := LoadDomains(ctx, paths)
	if err != nil {
		return Result{}, err
	}
	rt := New(c, Stdout(stdout))
	x := NewHistogramExtract(opts)
	rt.AddExtract("histogram", x)
	if err := rt.Publish(data); err != nil {
		return Result{}, err
	}
	if err := rt.Execute(ctx); err != nil {
		return Result{}, err
	}
	return Result{Rank: c.Rank(), Histogram: x.Last(), Stats: rt.Stats().Snapshot()}, nil
}

// RunLocal runs the histogram step on n in-process ranks, the paths
// distributed among them by Assign. If any rank fails, the others are
// abandoned through their context.
func RunLocal(ctx context.Context, n int, paths []string, opts histogram.Options, stdout io.Writer) ([]Result, error) {
	if n < 1 {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("insitu: invalid number of ranks %d", n))
	}
	var (
		group   = comm.NewGroup(n)
		assign  = Assign(paths, n)
		results = make([]Result, n)
	)
	g, ctx := errgroup.WithContext(ctx)
	for i := range group {
		i := i
		g.Go(func() (err error) {
			log.Debug.Printf("rank %d: %d file(s)", i, len(assign[i]))
			results[i], err = RunRank(ctx, group[i], assign[i], opts, stdout)
			return
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
