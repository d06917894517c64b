// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package insituconfig provides the shared configuration of insitu
// jobs. It uses the configuration mechanism in package
// github.com/grailbio/base/config, and reads a default profile from
// $HOME/.insitu/config. For example, the profile
//
//	param insitu (
//		system = ec2system
//		ranks = 8
//		bins = 64
//	)
//
// runs jobs over eight EC2 machines with 64 histogram bins.
package insituconfig

import (
	"flag"
	"fmt"
	"os"

	"github.com/grailbio/base/config"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/must"
	"github.com/grailbio/bigmachine"
	"github.com/grailbio/insitu/histogram"

	// Used to provide ec2system.System bigmachines.
	_ "github.com/grailbio/bigmachine/ec2system"
)

// Path determines the location of the insitu profile read by Parse.
var Path = os.ExpandEnv("$HOME/.insitu/config")

// Config is the configuration of insitu jobs.
type Config struct {
	// System is the bigmachine system on which ranks run. When nil,
	// ranks run in the current process.
	System bigmachine.System
	// Ranks is the number of ranks in a job.
	Ranks int
	// Bins is the default number of histogram bins.
	Bins int
	// Status displays job status on the console when true.
	Status bool
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Ranks < 1 {
		return errors.E(errors.Invalid, fmt.Sprintf("insituconfig: ranks must be positive, got %d", c.Ranks))
	}
	if c.Bins < 1 {
		return errors.E(errors.Invalid, fmt.Sprintf("insituconfig: bins must be positive, got %d", c.Bins))
	}
	return nil
}

func init() {
	config.Register("insitu", func(inst *config.Instance) {
		cfg := new(Config)
		inst.IntVar(&cfg.Ranks, "ranks", 1, "number of ranks in a job")
		inst.IntVar(&cfg.Bins, "bins", histogram.DefaultBins, "default number of histogram bins")
		inst.BoolVar(&cfg.Status, "status", false, "display job status on the console")
		inst.InstanceVar(&cfg.System, "system", "", "the bigmachine system on which ranks run")
		inst.Doc = "insitu configures in-situ analysis jobs"
		inst.New = func() (interface{}, error) {
			if err := cfg.Validate(); err != nil {
				return nil, err
			}
			return cfg, nil
		}
	})
}

// Parse registers configuration flags and calls flag.Parse. It reads
// the insitu configuration from Path, as amended by any flags, and
// returns it. Parse panics if the configuration is invalid.
func Parse() *Config {
	config.RegisterFlags("", Path)
	flag.Parse()
	must.Nil(config.ProcessFlags())
	var cfg *Config
	config.Must("insitu", &cfg)
	return cfg
}
