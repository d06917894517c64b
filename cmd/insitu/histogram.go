// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"os"

	"github.com/grailbio/base/log"
	"github.com/grailbio/base/must"
	"github.com/grailbio/base/status"
	"github.com/grailbio/bigmachine"
	"github.com/grailbio/insitu/cluster"
	"github.com/grailbio/insitu/histogram"
	"github.com/grailbio/insitu/insitu"
	"github.com/grailbio/insitu/insituconfig"
	"github.com/grailbio/insitu/stats"
)

func histogramCmd(b *bigmachine.B, cfg *insituconfig.Config, args []string) {
	var (
		flags = flag.NewFlagSet("histogram", flag.ExitOnError)
		field = flags.String("field", "energy", "name of the field to histogram")
		bins  = flags.Int("bins", cfg.Bins, "number of bins")
		min   = flags.Float64("min", math.NaN(), "lower edge of the first bin; defaults to the field's global minimum")
		max   = flags.Float64("max", math.NaN(), "upper edge of the last bin; defaults to the field's global maximum")
		ranks = flags.Int("ranks", cfg.Ranks, "number of ranks")
	)
	flags.Usage = func() {
		fmt.Fprintf(os.Stderr, `usage: insitu histogram [flags] files...

Histogram computes the histogram of a field across the mesh domains
stored in the given blueprint documents. Documents are distributed
over the ranks round robin; ranks without documents contribute no
values. The report is printed by rank 0.

Flags:
`)
		flags.PrintDefaults()
		os.Exit(2)
	}
	must.Nil(flags.Parse(args))
	if flags.NArg() == 0 {
		flags.Usage()
	}
	opts := histogram.Options{Field: *field, Bins: *bins}
	switch minSet, maxSet := !math.IsNaN(*min), !math.IsNaN(*max); {
	case minSet && maxSet:
		opts.Range = &histogram.Range{Min: *min, Max: *max}
	case minSet || maxSet:
		log.Fatal("flags -min and -max must be provided together")
	}
	if err := opts.Validate(); err != nil {
		log.Fatal(err)
	}
	if *ranks < 1 {
		log.Fatalf("invalid number of ranks %d", *ranks)
	}

	ctx := context.Background()
	var results []insitu.Result
	if cfg.System == nil {
		var err error
		results, err = insitu.RunLocal(ctx, *ranks, flags.Args(), opts, os.Stdout)
		if err != nil {
			log.Fatal(err)
		}
	} else {
		c, err := cluster.Start(ctx, b, *ranks)
		if err != nil {
			log.Fatal(err)
		}
		if cfg.Status {
			var console status.Reporter
			go console.Go(os.Stderr, c.Status())
		}
		var out []byte
		results, out, err = c.Run(ctx, flags.Args(), opts)
		if err != nil {
			log.Fatal(err)
		}
		os.Stdout.Write(out)
	}
	total := make(stats.Values)
	for _, r := range results {
		log.Debug.Printf("rank %d: %s", r.Rank, r.Stats)
		total.Merge(r.Stats)
	}
	log.Printf("%d rank(s): %s", len(results), total)
}
