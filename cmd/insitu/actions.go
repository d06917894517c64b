// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/grailbio/base/log"
	"github.com/grailbio/base/must"
	"github.com/grailbio/insitu/actions"
)

func actionsCmd(args []string) {
	var (
		flags  = flag.NewFlagSet("actions", flag.ExitOnError)
		field  = flags.String("field", "energy", "field to render")
		levels = flags.Int("levels", 5, "number of contour levels")
		prefix = flags.String("prefix", "", "image prefix; defaults to <field>_contour")
		script = flags.String("script", "", "register a histogram script extract instead of a contour")
		bins   = flags.Int("bins", 128, "number of bins passed to the histogram script")
		out    = flags.String("out", "ascent_actions.json", "path of the action document")
	)
	flags.Usage = func() {
		fmt.Fprintf(os.Stderr, `usage: insitu actions [flags]

Actions writes an action document that renders a contour of a field,
or with -script registers a histogram script extract. The document is
written as YAML if the output path ends in .yaml or .yml, as JSON
otherwise.

Flags:
`)
		flags.PrintDefaults()
		os.Exit(2)
	}
	must.Nil(flags.Parse(args))
	if flags.NArg() != 0 {
		flags.Usage()
	}
	var a *actions.Actions
	if *script != "" {
		a = actions.Histogram(*field, *bins, *script)
	} else {
		if *prefix == "" {
			*prefix = *field + "_contour"
		}
		a = actions.Contour(*field, *levels, *prefix)
	}
	if err := actions.Write(context.Background(), *out, a); err != nil {
		log.Fatal(err)
	}
	log.Printf("wrote %d action(s) to %s", a.Len(), *out)
}
