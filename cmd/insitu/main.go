// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Command insitu runs in-situ analyses over blueprint mesh documents
// and writes visualization action documents.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/file/s3file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/must"
	"github.com/grailbio/bigmachine"
	"github.com/grailbio/insitu/insituconfig"
)

func init() {
	file.RegisterImplementation("s3", s3file.NewImplementation(
		s3file.NewDefaultProvider(session.Options{})))
}

func usage() {
	fmt.Fprintf(os.Stderr, `Insitu runs in-situ analyses over blueprint mesh domains.

Usage:

	insitu [flags] <command> [arguments]

The commands are:

	histogram   compute a distributed histogram of a field
	actions     write a visualization action document

Domain documents and action documents may be local paths or s3:// URLs.
Configuration is read from %s; run "insitu -help" for flags.
`, insituconfig.Path)
	os.Exit(2)
}

func main() {
	log.AddFlags()
	log.SetFlags(0)
	log.SetPrefix("insitu: ")
	must.Func = log.Fatal
	flag.Usage = usage
	cfg := insituconfig.Parse()
	// Machines re-execute this binary; Start does not return on them.
	system := cfg.System
	if system == nil {
		system = bigmachine.Local
	}
	b := bigmachine.Start(system)
	defer b.Shutdown()
	if flag.NArg() == 0 {
		flag.Usage()
	}

	cmd, args := flag.Arg(0), flag.Args()[1:]
	switch cmd {
	default:
		fmt.Fprintln(os.Stderr, "unknown command", cmd)
		flag.Usage()
	case "histogram":
		histogramCmd(b, cfg, args)
	case "actions":
		actionsCmd(args)
	}
}
