// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package cluster runs the ranks of an in-situ job on bigmachine
// machines, one rank per machine. Every machine runs a Rank service,
// which executes the rank program, and a Reducer service. The
// reducer on the first machine, the leader, hosts the rendezvous
// through which all ranks of a job perform their collectives.
package cluster

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/status"
	"github.com/grailbio/bigmachine"
	"github.com/grailbio/insitu/histogram"
	"github.com/grailbio/insitu/insitu"
	"golang.org/x/sync/errgroup"
)

var jobCounter uint64

// A Cluster is a set of machines, each hosting one rank.
type Cluster struct {
	machines []*bigmachine.Machine
	status   *status.Status
}

// Start starts n machines on b and waits for all of them to be
// running. Additional parameters are passed to bigmachine.
func Start(ctx context.Context, b *bigmachine.B, n int, params ...bigmachine.Param) (*Cluster, error) {
	if n < 1 {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("cluster: invalid number of ranks %d", n))
	}
	params = append([]bigmachine.Param{bigmachine.Services{
		"Rank":    &rankService{},
		"Reducer": &reducerService{},
	}}, params...)
	machines, err := b.Start(ctx, n, params...)
	if err != nil {
		return nil, err
	}
	c := &Cluster{machines: machines, status: new(status.Status)}
	group := c.status.Group("ranks")
	g, ctx := errgroup.WithContext(ctx)
	for i := range machines {
		i, m := i, machines[i]
		task := group.Start()
		task.Title(fmt.Sprintf("rank %d", i))
		task.Print("waiting for machine to boot")
		g.Go(func() error {
			select {
			case <-m.Wait(bigmachine.Running):
			case <-ctx.Done():
				task.Done()
				return ctx.Err()
			}
			if err := m.Err(); err != nil {
				task.Printf("failed to start: %v", err)
				task.Done()
				return errors.E(fmt.Sprintf("cluster: machine %s for rank %d", m.Addr, i), err)
			}
			task.Title(fmt.Sprintf("rank %d: %s", i, m.Addr))
			task.Print("running")
			log.Printf("rank %d: machine %s is ready", i, m.Addr)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, m := range machines {
			m.Cancel()
		}
		return nil, err
	}
	return c, nil
}

// Size returns the number of ranks in the cluster.
func (c *Cluster) Size() int {
	return len(c.machines)
}

// Status returns the cluster's status, suitable for display by a
// status.Reporter.
func (c *Cluster) Status() *status.Status {
	return c.status
}

// Leader returns the machine hosting rank 0.
func (c *Cluster) Leader() *bigmachine.Machine {
	return c.machines[0]
}

// Run runs one histogram step across the cluster's ranks, the paths
// distributed among them by insitu.Assign. Run returns each rank's
// result and the leader's report.
func (c *Cluster) Run(ctx context.Context, paths []string, opts histogram.Options) ([]insitu.Result, []byte, error) {
	var (
		n       = len(c.machines)
		job     = fmt.Sprintf("histogram-%d-%d", time.Now().UnixNano(), atomic.AddUint64(&jobCounter, 1))
		assign  = insitu.Assign(paths, n)
		replies = make([]RunReply, n)
		leader  = c.Leader()
	)
	log.Printf("job %s: %d file(s) over %d rank(s)", job, len(paths), n)
	defer func() {
		if err := leader.Call(context.Background(), "Reducer.Release", job, nil); err != nil {
			log.Error.Printf("job %s: release: %v", job, err)
		}
	}()
	g, gctx := errgroup.WithContext(ctx)
	for i := range c.machines {
		i, m := i, c.machines[i]
		req := RunRequest{
			Job:     job,
			Rank:    i,
			Size:    n,
			Leader:  leader.Addr,
			Paths:   assign[i],
			Options: opts,
		}
		g.Go(func() error {
			return m.Call(gctx, "Rank.Run", req, &replies[i])
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	results := make([]insitu.Result, n)
	for i, reply := range replies {
		results[i] = insitu.Result{Rank: i, Histogram: reply.Histogram, Stats: reply.Stats}
	}
	return results, replies[0].Output, nil
}
