// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/obask/kgmapper/internal/config"
	"github.com/obask/kgmapper/internal/nodenorm"
	"github.com/obask/kgmapper/internal/report"
	"github.com/obask/kgmapper/internal/sparql"
	"github.com/obask/kgmapper/internal/unify"
)

func pipelineCommand(opts *options) *cobra.Command {
	var pr prFlags
	cmd := &cobra.Command{
		Use:   "pipeline",
		Short: "Run the standard unification sequence",
		Long: `pipeline runs the standard unification sequence against the
triplestore: swap-pr, link-ensembl and then unify-genes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runJobs(cmd, opts, &pr, unify.Jobs())
		},
	}
	pr.register(cmd)
	return cmd
}

func jobCommand(opts *options, name, short string) *cobra.Command {
	job, ok := unify.JobNamed(name)
	if !ok {
		panic(fmt.Sprintf("no job named %q", name))
	}
	return &cobra.Command{
		Use:   name,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runJobs(cmd, opts, nil, []unify.Job{job})
		},
	}
}

func swapCommand(opts *options) *cobra.Command {
	var pr prFlags
	cmd := &cobra.Command{
		Use:   "swap-pr",
		Short: "Swap PR protein terms for their UniProtKB cross-references",
		Long: `swap-pr renames PR protein terms to the UniProtKB identifier they
cross-reference, replacing the UniProtKB hasDbXref on the renamed node with
the PR identifier.

The PR terms are obtained from Ubergraph, unless a PR OWL file is given.
The file can be obtained from http://purl.obolibrary.org/obo/pr.owl.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runJobs(cmd, opts, &pr, []unify.Job{unify.SwapPR})
		},
	}
	pr.register(cmd)
	return cmd
}

type prFlags struct {
	owl  string
	taxa []string
}

func (f *prFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.owl, "pr-owl", "", "specify a local PR OWL file (RDF/XML)")
	cmd.Flags().StringSliceVar(&f.taxa, "taxa", nil, "NCBITaxon CURIEs restricting PR OWL classes")
}

func (f *prFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	if f == nil {
		return
	}
	if f.owl != "" {
		cfg.PR.OWL = f.owl
	}
	if cmd.Flags().Changed("taxa") {
		cfg.PR.Taxa = f.taxa
	}
}

// loadConfig returns the configuration with command flags applied.
func loadConfig(opts *options) (config.Config, error) {
	cfg, err := config.Load(opts.config, os.Getenv)
	if err != nil {
		return cfg, err
	}
	if opts.endpoint != "" {
		cfg.Endpoint = opts.endpoint
	}
	if opts.workers > 0 {
		cfg.NormalizeWorkers = opts.workers
	}
	if opts.dryRun {
		cfg.DryRun = true
	}
	if opts.strict {
		cfg.Strict = true
	}
	return cfg, cfg.Validate()
}

func runJobs(cmd *cobra.Command, opts *options, pr *prFlags, jobs []unify.Job) error {
	log.Println(os.Args)
	log.Println("[loading configuration]")
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	pr.apply(cmd, &cfg)

	logger := opts.logger()
	reg, err := cfg.Registry()
	if err != nil {
		return err
	}
	httpClient := &http.Client{Timeout: cfg.Timeout}
	store := sparql.NewClient(cfg.Endpoint,
		sparql.WithHTTPClient(httpClient),
		sparql.WithLogger(logger),
		sparql.WithUpdatePath(cfg.UpdatePath),
	)
	var updater unify.Updater = store
	if cfg.DryRun {
		updater = sparql.NewWriter(os.Stdout)
	}
	var pairs unify.PairSource
	if cfg.PR.OWL != "" {
		pairs = unify.OWLFile{Path: cfg.PR.OWL, Taxa: cfg.PR.Taxa}
	} else {
		pairs = unify.Ubergraph{Client: sparql.NewClient(cfg.Ubergraph,
			sparql.WithHTTPClient(httpClient),
			sparql.WithLogger(logger),
		)}
	}

	p, err := unify.New(store, updater,
		nodenorm.NewClient(cfg.Normalizer,
			nodenorm.WithHTTPClient(httpClient),
			nodenorm.WithLogger(logger),
		),
		unify.Config{
			Registry:           reg,
			XrefPredicate:      cfg.XrefPredicate,
			NormalizeBatchSize: cfg.NormalizeBatchSize,
			NormalizeWorkers:   cfg.NormalizeWorkers,
			UpdateBatchSize:    cfg.UpdateBatchSize,
			Strict:             cfg.Strict,
			Pairs:              pairs,
			Logger:             logger,
		},
	)
	if err != nil {
		return err
	}

	summary := &report.Summary{Endpoint: store.UpdateEndpoint(), DryRun: cfg.DryRun}
	for _, job := range jobs {
		log.Printf("[running %s]", job.Name)
		run, err := p.Run(cmd.Context(), job)
		summary.Runs = append(summary.Runs, run)
		if err != nil {
			writeReports(opts, summary)
			return fmt.Errorf("%s: %w", job.Name, err)
		}
		log.Printf("%s: %d discovered, %d normalized, %d statements in %d batches (%d failed, %d skipped)",
			job.Name, run.Discovered, run.Normalized, run.Statements, run.Batches, run.Failed, run.Skipped)
		if len(run.Missing) != 0 {
			var missing []string
			for prefix, n := range run.Missing {
				missing = append(missing, fmt.Sprintf("%s=%d", prefix, n))
			}
			sort.Strings(missing)
			log.Printf("%s: normalized targets missing from store: %s", job.Name, strings.Join(missing, " "))
		}
	}
	writeReports(opts, summary)
	return nil
}

// writeReports writes the requested summary and plot. Failures are logged
// so that they do not mask the outcome of the runs.
func writeReports(opts *options, summary *report.Summary) {
	if opts.summary != "" {
		log.Println("[writing summary]")
		err := summary.WriteJSON(opts.summary)
		if err != nil {
			log.Printf("failed to write summary: %v", err)
		}
	}
	if opts.plot != "" {
		log.Println("[plotting runs]")
		err := report.Plot(opts.plot, summary.Runs)
		if err != nil {
			log.Printf("failed to plot runs: %v", err)
		}
	}
}
