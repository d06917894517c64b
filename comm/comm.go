// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package comm defines communicators: handles to a fixed group of
// cooperating ranks that can perform collective reductions.
//
// Collectives are synchronous barriers. Every rank in the group must
// invoke the same sequence of collectives with compatible arguments;
// a rank that skips one leaves its peers blocked. The context passed
// to a collective lets the caller abandon a blocked call, but an
// abandoned round is never retried and the group should be considered
// broken afterwards.
//
// A Communicator is used by a single goroutine at a time.
package comm

import (
	"context"
	"fmt"
	"math"

	"github.com/grailbio/base/errors"
)

// Op is an element-wise reduction operator.
type Op int

const (
	// Min computes the element-wise minimum.
	Min Op = iota + 1
	// Max computes the element-wise maximum.
	Max
	// Sum computes the element-wise sum.
	Sum
)

// String returns the operator's name.
func (op Op) String() string {
	switch op {
	case Min:
		return "min"
	case Max:
		return "max"
	case Sum:
		return "sum"
	default:
		return fmt.Sprintf("Op(%d)", int(op))
	}
}

func (op Op) valid() bool {
	return op == Min || op == Max || op == Sum
}

// Vector is the payload of a collective: a float64 part and an int64
// part, each reduced element-wise.
type Vector struct {
	Float []float64
	Int   []int64
}

// Copy returns a deep copy of v.
func (v Vector) Copy() Vector {
	var c Vector
	if v.Float != nil {
		c.Float = append([]float64(nil), v.Float...)
	}
	if v.Int != nil {
		c.Int = append([]int64(nil), v.Int...)
	}
	return c
}

// Compatible tells whether v and w have the same shape.
func (v Vector) Compatible(w Vector) bool {
	return len(v.Float) == len(w.Float) && len(v.Int) == len(w.Int)
}

// Reduce folds src into dst using op. Dst and src must be
// compatible.
func (op Op) Reduce(dst, src Vector) error {
	if !dst.Compatible(src) {
		return errors.E(errors.Invalid, "comm: incompatible vectors")
	}
	switch op {
	case Min:
		for i, f := range src.Float {
			dst.Float[i] = math.Min(dst.Float[i], f)
		}
		for i, n := range src.Int {
			if n < dst.Int[i] {
				dst.Int[i] = n
			}
		}
	case Max:
		for i, f := range src.Float {
			dst.Float[i] = math.Max(dst.Float[i], f)
		}
		for i, n := range src.Int {
			if n > dst.Int[i] {
				dst.Int[i] = n
			}
		}
	case Sum:
		for i, f := range src.Float {
			dst.Float[i] += f
		}
		for i, n := range src.Int {
			dst.Int[i] += n
		}
	default:
		return errors.E(errors.Invalid, fmt.Sprintf("comm: invalid operator %v", op))
	}
	return nil
}

// A Communicator is a rank's handle to its group.
type Communicator interface {
	// Rank returns this rank's index in the group, in [0, Size()).
	Rank() int
	// Size returns the number of ranks in the group.
	Size() int
	// Allreduce contributes v to a reduction by op across all ranks
	// in the group, and returns the reduced vector. Every rank
	// receives the same result. Allreduce blocks until all ranks
	// have contributed.
	Allreduce(ctx context.Context, op Op, v Vector) (Vector, error)
}

// AllreduceFloat64 performs an Allreduce of a float64 slice.
func AllreduceFloat64(ctx context.Context, c Communicator, op Op, send []float64) ([]float64, error) {
	v, err := c.Allreduce(ctx, op, Vector{Float: send})
	return v.Float, err
}

// AllreduceInt64 performs an Allreduce of an int64 slice.
func AllreduceInt64(ctx context.Context, c Communicator, op Op, send []int64) ([]int64, error) {
	v, err := c.Allreduce(ctx, op, Vector{Int: send})
	return v.Int, err
}

// Leader tells whether c is the group's leader, rank 0.
func Leader(c Communicator) bool {
	return c.Rank() == 0
}

// Self returns a communicator for a group of one rank.
func Self() Communicator {
	return self{}
}

type self struct{}

func (self) Rank() int { return 0 }
func (self) Size() int { return 1 }

func (self) Allreduce(ctx context.Context, op Op, v Vector) (Vector, error) {
	if err := ctx.Err(); err != nil {
		return Vector{}, err
	}
	if !op.valid() {
		return Vector{}, errors.E(errors.Invalid, fmt.Sprintf("comm: invalid operator %v", op))
	}
	return v.Copy(), nil
}
