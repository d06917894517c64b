// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package cluster

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/bigmachine"
	"github.com/grailbio/insitu/comm"
	"github.com/grailbio/insitu/histogram"
	"github.com/grailbio/insitu/insitu"
	"github.com/grailbio/insitu/stats"
)

// RunRequest asks a machine to execute one rank of a job.
type RunRequest struct {
	// Job identifies the job's collectives on the leader.
	Job string
	// Rank and Size give the rank's position in the job's group.
	Rank, Size int
	// Leader is the address of the machine hosting the job's
	// reducer.
	Leader string
	// Paths are the blueprint documents holding the rank's domains.
	Paths []string
	// Options configures the histogram.
	Options histogram.Options
}

// RunReply is the outcome of a rank.
type RunReply struct {
	// Output is what the rank wrote to its standard output. It is
	// empty for every rank but the leader.
	Output    []byte
	Histogram *histogram.Histogram
	Stats     stats.Values
}

// Contribution is a rank's part of a collective round.
type Contribution struct {
	Job        string
	Seq        uint64
	Rank, Size int
	Op         comm.Op
	Vector     comm.Vector
}

// rankService runs ranks on a machine.
type rankService struct {
	// Exported satisfies gob, which needs at least one exported field.
	Exported struct{}

	mu sync.Mutex
	b  *bigmachine.B
}

func (s *rankService) Init(b *bigmachine.B) error {
	s.mu.Lock()
	s.b = b
	s.mu.Unlock()
	return nil
}

// Run executes the rank described by req. Collectives are forwarded
// to the job's reducer on the leader machine.
func (s *rankService) Run(ctx context.Context, req RunRequest, reply *RunReply) error {
	s.mu.Lock()
	b := s.b
	s.mu.Unlock()
	leader, err := b.Dial(ctx, req.Leader)
	if err != nil {
		return errors.E(errors.Net, fmt.Sprintf("cluster: rank %d: dial leader %s", req.Rank, req.Leader), err)
	}
	c := &remote{leader: leader, job: req.Job, rank: req.Rank, size: req.Size}
	var out bytes.Buffer
	res, err := insitu.RunRank(ctx, c, req.Paths, req.Options, &out)
	if err != nil {
		log.Error.Printf("job %s: rank %d: %v", req.Job, req.Rank, err)
		return err
	}
	reply.Output = out.Bytes()
	reply.Histogram = res.Histogram
	reply.Stats = res.Stats
	return nil
}

// remote is a communicator whose collectives are performed by a
// reducer service on another machine.
type remote struct {
	leader     *bigmachine.Machine
	job        string
	rank, size int
	seq        uint64
}

func (r *remote) Rank() int { return r.rank }
func (r *remote) Size() int { return r.size }

func (r *remote) Allreduce(ctx context.Context, op comm.Op, v comm.Vector) (comm.Vector, error) {
	r.seq++
	arg := Contribution{Job: r.job, Seq: r.seq, Rank: r.rank, Size: r.size, Op: op, Vector: v}
	var result comm.Vector
	err := r.leader.Call(ctx, "Reducer.Allreduce", arg, &result)
	return result, err
}

// reducerService hosts the rendezvous of every job led by its
// machine.
type reducerService struct {
	// Exported satisfies gob, which needs at least one exported field.
	Exported struct{}

	mu   sync.Mutex
	jobs map[string]*comm.Rendezvous
}

func (s *reducerService) Init(*bigmachine.B) error {
	s.mu.Lock()
	if s.jobs == nil {
		s.jobs = make(map[string]*comm.Rendezvous)
	}
	s.mu.Unlock()
	return nil
}

// Allreduce contributes to a round of the contribution's job and
// replies with the round's result once all of the job's ranks have
// contributed.
func (s *reducerService) Allreduce(ctx context.Context, c Contribution, reply *comm.Vector) error {
	if c.Size < 1 {
		return errors.E(errors.Invalid, fmt.Sprintf("cluster: job %s: invalid group size %d", c.Job, c.Size))
	}
	s.mu.Lock()
	r := s.jobs[c.Job]
	if r == nil {
		r = comm.NewRendezvous(c.Size)
		s.jobs[c.Job] = r
	}
	s.mu.Unlock()
	if r.Size() != c.Size {
		return errors.E(errors.Invalid, fmt.Sprintf("cluster: job %s: rank %d assumes %d ranks, job has %d", c.Job, c.Rank, c.Size, r.Size()))
	}
	v, err := r.Allreduce(ctx, c.Job, c.Seq, c.Rank, c.Op, c.Vector)
	if err != nil {
		return err
	}
	*reply = v
	return nil
}

// Release discards the state of a finished job.
func (s *reducerService) Release(ctx context.Context, job string, _ *struct{}) error {
	s.mu.Lock()
	delete(s.jobs, job)
	s.mu.Unlock()
	return nil
}
