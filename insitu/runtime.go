// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package insitu implements the per-rank runtime that a simulation
// drives once per time step. The simulation publishes the rank's data
// for the step, and the runtime executes the registered extracts
// against it. Extracts may perform collectives on the rank's
// communicator, so every rank of a group must register the same
// extracts and execute the same steps.
package insitu

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/insitu/blueprint"
	"github.com/grailbio/insitu/comm"
	"github.com/grailbio/insitu/stats"
)

// An Extract is executed by the runtime at each time step.
type Extract interface {
	Execute(ctx context.Context, step *Step) error
}

// ExtractFunc adapts a function to an Extract.
type ExtractFunc func(ctx context.Context, step *Step) error

// Execute implements Extract.
func (f ExtractFunc) Execute(ctx context.Context, step *Step) error {
	return f(ctx, step)
}

// A Step is the state an extract sees during one time step.
type Step struct {
	// Cycle is the simulation cycle of the published data.
	Cycle int64
	// Data is the rank's published data.
	Data *blueprint.Node
	// Domains are the mesh domains held by the rank. A rank may
	// hold no domains.
	Domains []*blueprint.Node
	// Comm is the rank's communicator.
	Comm comm.Communicator
	// Stdout receives the extract's report output.
	Stdout io.Writer
	// Stats holds the rank's counters.
	Stats *stats.Map
}

// Option configures a Runtime.
type Option func(*Runtime)

// Stdout directs report output to w instead of os.Stdout.
func Stdout(w io.Writer) Option {
	return func(r *Runtime) { r.stdout = w }
}

// Stats directs the runtime's counters to m.
func Stats(m *stats.Map) Option {
	return func(r *Runtime) { r.stats = m }
}

type namedExtract struct {
	name string
	Extract
}

// A Runtime is bound to one rank of a communicator.
type Runtime struct {
	comm     comm.Communicator
	stdout   io.Writer
	stats    *stats.Map
	extracts []namedExtract

	step *Step
}

// New returns a runtime for the rank given by c.
func New(c comm.Communicator, opts ...Option) *Runtime {
	r := &Runtime{comm: c, stdout: os.Stdout}
	for _, opt := range opts {
		opt(r)
	}
	if r.stats == nil {
		r.stats = stats.NewMap()
	}
	return r
}

// Stats returns the runtime's counters.
func (r *Runtime) Stats() *stats.Map {
	return r.stats
}

// AddExtract registers an extract. Extracts are executed in the order
// in which they were added.
func (r *Runtime) AddExtract(name string, e Extract) {
	for _, x := range r.extracts {
		if x.name == name {
			log.Panicf("insitu: extract %s is already registered", name)
		}
	}
	r.extracts = append(r.extracts, namedExtract{name, e})
}

// Publish binds the runtime to the rank's data for the next time step.
// The data may describe a single domain, a collection of domains, or
// be nil for a rank that holds no data. The cycle is taken from the
// first domain that records one; all of the rank's domains must
// agree on it.
func (r *Runtime) Publish(data *blueprint.Node) error {
	step := &Step{
		Data:    data,
		Domains: blueprint.Domains(data),
		Comm:    r.comm,
		Stdout:  r.stdout,
		Stats:   r.stats,
	}
	haveCycle := false
	for _, d := range step.Domains {
		cycle, id, err := blueprint.State(d)
		if err != nil {
			return err
		}
		if !d.Has("state/cycle") {
			continue
		}
		if haveCycle && cycle != step.Cycle {
			return errors.E(errors.Invalid, fmt.Sprintf("insitu: domain %d is at cycle %d, others at %d", id, cycle, step.Cycle))
		}
		step.Cycle, haveCycle = cycle, true
	}
	r.stats.Int(stats.NumDomains).Add(int64(len(step.Domains)))
	r.step = step
	return nil
}

// Execute runs every registered extract against the published data.
// Execute fails with errors.Precondition if no data was published
// since the last call.
func (r *Runtime) Execute(ctx context.Context) error {
	step := r.step
	if step == nil {
		return errors.E(errors.Precondition, "insitu: execute called without published data")
	}
	r.step = nil
	log.Debug.Printf("rank %d/%d: executing cycle %d with %d domain(s)", r.comm.Rank(), r.comm.Size(), step.Cycle, len(step.Domains))
	for _, x := range r.extracts {
		if err := x.Execute(ctx, step); err != nil {
			return errors.E(fmt.Sprintf("insitu: extract %s at cycle %d", x.name, step.Cycle), err)
		}
	}
	r.stats.Int(stats.NumSteps).Add(1)
	return nil
}
