// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package comm

import (
	"context"
	"fmt"
	"sync"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/insitu/ctxsync"
)

// A Rendezvous is the meeting point of a group's collectives. Each
// collective is a round, identified by a job name and a per-rank
// sequence number; the round completes once every rank has
// contributed. Contributions are reduced in rank order so that every
// participant, and every run, observes bit-identical results.
//
// If the ranks disagree on the operator or on the shape of their
// vectors, every participant of the round receives an error of kind
// errors.Invalid.
type Rendezvous struct {
	size int

	mu     sync.Mutex
	cond   *ctxsync.Cond
	rounds map[roundKey]*round
}

type roundKey struct {
	job string
	seq uint64
}

type round struct {
	op       Op
	shape    Vector
	contribs []Vector
	have     []bool
	n        int
	// pending is the number of ranks that have yet to collect the
	// round's result.
	pending int

	done   bool
	result Vector
	err    error
}

// NewRendezvous returns a rendezvous for a group of the given size.
func NewRendezvous(size int) *Rendezvous {
	if size < 1 {
		log.Panicf("comm: invalid group size %d", size)
	}
	r := &Rendezvous{size: size, rounds: make(map[roundKey]*round)}
	r.cond = ctxsync.NewCond(&r.mu)
	return r
}

// Size returns the size of the group served by r.
func (r *Rendezvous) Size() int {
	return r.size
}

// Allreduce contributes rank's vector v to round (job, seq) and
// waits for the round's result.
func (r *Rendezvous) Allreduce(ctx context.Context, job string, seq uint64, rank int, op Op, v Vector) (Vector, error) {
	if rank < 0 || rank >= r.size {
		return Vector{}, errors.E(errors.Invalid, fmt.Sprintf("comm: rank %d out of range for group of size %d", rank, r.size))
	}
	key := roundKey{job, seq}
	r.mu.Lock()
	defer r.mu.Unlock()
	rd := r.rounds[key]
	if rd == nil {
		rd = &round{
			op:       op,
			shape:    v,
			contribs: make([]Vector, r.size),
			have:     make([]bool, r.size),
			pending:  r.size,
		}
		if !op.valid() {
			rd.err = errors.E(errors.Invalid, fmt.Sprintf("comm: invalid operator %v", op))
		}
		r.rounds[key] = rd
	}
	if rd.have[rank] {
		return Vector{}, errors.E(errors.Invalid, fmt.Sprintf("comm: rank %d contributed twice to round %s/%d", rank, job, seq))
	}
	rd.have[rank] = true
	rd.contribs[rank] = v.Copy()
	rd.n++
	switch {
	case rd.err != nil:
	case op != rd.op:
		rd.err = errors.E(errors.Invalid, fmt.Sprintf("comm: round %s/%d: rank %d reduces with %v, others with %v", job, seq, rank, op, rd.op))
	case !v.Compatible(rd.shape):
		rd.err = errors.E(errors.Invalid, fmt.Sprintf("comm: round %s/%d: rank %d contributed a vector of shape (%d, %d), others (%d, %d)",
			job, seq, rank, len(v.Float), len(v.Int), len(rd.shape.Float), len(rd.shape.Int)))
	}
	if rd.n == r.size {
		rd.finish()
		r.cond.Broadcast()
	}
	if err := r.cond.WaitUntil(ctx, func() bool { return rd.done }); err != nil {
		return Vector{}, err
	}
	rd.pending--
	if rd.pending == 0 {
		delete(r.rounds, key)
	}
	if rd.err != nil {
		return Vector{}, rd.err
	}
	return rd.result.Copy(), nil
}

func (rd *round) finish() {
	defer func() {
		rd.done = true
		rd.contribs = nil
	}()
	if rd.err != nil {
		return
	}
	rd.result = rd.contribs[0].Copy()
	for _, v := range rd.contribs[1:] {
		if err := rd.op.Reduce(rd.result, v); err != nil {
			rd.err = err
			return
		}
	}
}

// NewGroup returns the communicators of an in-process group of n
// ranks. Communicator i has rank i; each is meant to be driven by its
// own goroutine.
func NewGroup(n int) []Communicator {
	r := NewRendezvous(n)
	group := make([]Communicator, n)
	for i := range group {
		group[i] = &member{r: r, rank: i}
	}
	return group
}

type member struct {
	r    *Rendezvous
	rank int
	seq  uint64
}

func (m *member) Rank() int { return m.rank }
func (m *member) Size() int { return m.r.Size() }

func (m *member) Allreduce(ctx context.Context, op Op, v Vector) (Vector, error) {
	m.seq++
	return m.r.Allreduce(ctx, "", m.seq, m.rank, op, v)
}
