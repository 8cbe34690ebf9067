// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// kgmapper unifies gene and protein identifiers held in an RDF4J
// triplestore using the node normalization service, and prepares the
// CELLxGENE datasets that the knowledge graph is built from.
//
// The standard pipeline swaps PR protein terms referenced by CL for their
// UniProtKB cross-references, links UniProtKB proteins to the Ensembl genes
// that produce them with RO:0003000 statements, and then rewrites Ensembl
// gene nodes onto their NCBIGene equivalents, recording the Ensembl
// identifier as an oboInOwl:hasDbXref of the NCBIGene node.
//
// Updates are sent to the RDF4J statements endpoint of the repository in
// batches. Failed queries, normalizations and updates are logged and the
// run continues unless the strict flag is set. A summary document of the
// runs is written to the specified summary file in JSON format
// corresponding to the following Go structs.
//
//  type Summary struct {
//  	// Endpoint is the triplestore repository
//  	// the runs were applied to.
//  	Endpoint string
//
//  	// DryRun indicates that updates were not
//  	// sent to the endpoint.
//  	DryRun bool
//
//  	// Runs holds the summaries of each run.
//  	Runs []*Run
//  }
//
//  type Run struct {
//  	ID, Job string
//  	Start, End time.Time
//  	Discovered, Targets int
//  	Normalized int
//  	Missing map[string]int
//  	Statements, Batches, Failed, Skipped int
//  	Merged, Chained []string
//  }
//
// The ENDPOINT_URL and NODE_NORMALIZATION_URL environment variables
// override the configured triplestore and normalization service.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

type options struct {
	config   string
	endpoint string
	dryRun   bool
	strict   bool
	workers  int
	summary  string
	plot     string
	verbose  bool
}

func main() {
	var opts options
	root := &cobra.Command{
		Use:   "kgmapper",
		Short: "Unify gene and protein identifiers in a triplestore",
		Long: `kgmapper unifies gene and protein identifiers held in an RDF4J
triplestore using the node normalization service, and prepares the
CELLxGENE datasets that the knowledge graph is built from.

The standard pipeline swaps PR protein terms referenced by CL for their
UniProtKB cross-references, links UniProtKB proteins to the Ensembl genes
that produce them with RO:0003000 statements, and then rewrites Ensembl
gene nodes onto their NCBIGene equivalents, recording the Ensembl
identifier as an oboInOwl:hasDbXref of the NCBIGene node.

Failed queries, normalizations and updates are logged and the run
continues unless --strict is given. With --dry-run update requests are
written to standard output instead of being sent.

The ENDPOINT_URL and NODE_NORMALIZATION_URL environment variables
override the configured triplestore and normalization service.

Copyright ©2020 Dan Kortschak. All rights reserved.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	flags := root.PersistentFlags()
	flags.StringVar(&opts.config, "config", "", "specify a YAML configuration file")
	flags.StringVar(&opts.endpoint, "endpoint", "", "specify the triplestore repository URL")
	flags.BoolVar(&opts.dryRun, "dry-run", false, "write updates to stdout instead of sending them")
	flags.BoolVar(&opts.strict, "strict", false, "stop on the first failed update")
	flags.IntVar(&opts.workers, "workers", 0, "number of concurrent normalization requests")
	flags.StringVar(&opts.summary, "summary", "", "specify the JSON summary output file")
	flags.StringVar(&opts.plot, "plot", "", "specify the run plot output file (.png/.svg/.pdf)")
	flags.BoolVar(&opts.verbose, "verbose", false, "log debug detail")

	root.AddCommand(
		pipelineCommand(&opts),
		jobCommand(&opts, "unify-genes", "Rewrite Ensembl gene nodes onto NCBIGene"),
		jobCommand(&opts, "link-ensembl", "Link UniProtKB proteins to Ensembl genes"),
		jobCommand(&opts, "link-genes", "Link UniProtKB proteins to Ensembl and NCBIGene genes"),
		swapCommand(&opts),
		curateCommand(&opts),
		fetchCommand(&opts),
		graphsCommand(&opts),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := root.ExecuteContext(ctx)
	stop()
	if err != nil {
		log.Fatal(err)
	}
}

// logger returns the structured logger handed to library packages.
func (o *options) logger() *slog.Logger {
	level := slog.LevelInfo
	if o.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
