// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package unify implements identifier unification runs over a triplestore.
//
// A run discovers the identifiers of a source namespace held in the store,
// resolves them with a node normalization service and applies the
// resulting rewrites or links as bounded batches of SPARQL updates. Each
// stage is fail-open: a failed query or normalization contributes nothing
// and the run carries on with what remains. Updates are applied one batch
// at a time in lexical order of source identifier.
package unify // import "github.com/obask/kgmapper/internal/unify"

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/obask/kgmapper/internal/curie"
	"github.com/obask/kgmapper/internal/report"
	"github.com/obask/kgmapper/internal/sparql"
)

// Selector runs SELECT queries binding ?s.
type Selector interface {
	Select(ctx context.Context, query string) []string
}

// Updater applies SPARQL update requests.
type Updater interface {
	Update(ctx context.Context, update string) error
}

// Normalizer resolves CURIEs to equivalent identifiers.
type Normalizer interface {
	Normalize(ctx context.Context, curies []string, field string, keywords []string) map[string][]string
}

// PairSource provides the PR terms to swap for UniProtKB identifiers.
type PairSource interface {
	Pairs(ctx context.Context) ([]sparql.Swap, error)
}

// Config holds the parameters of a Pipeline.
type Config struct {
	// Registry is the CURIE namespace registry.
	// If nil, curie.Default is used.
	Registry *curie.Registry

	// XrefPredicate is the IRI of the provenance
	// predicate used by rewrites.
	XrefPredicate string

	// NormalizeBatchSize is the maximum number of
	// CURIEs sent in a normalization request, and
	// NormalizeWorkers is the number of requests
	// that may be in flight at once.
	NormalizeBatchSize int
	NormalizeWorkers   int

	// UpdateBatchSize is the maximum number of
	// rewrites, links or swaps in an update request.
	UpdateBatchSize int

	// Strict aborts a run on the first failed
	// update request.
	Strict bool

	// Pairs is the source of PR swap pairs.
	Pairs PairSource

	Logger *slog.Logger
}

// Pipeline runs unification jobs.
type Pipeline struct {
	store   Selector
	updater Updater
	norm    Normalizer
	pairs   PairSource

	registry *curie.Registry
	builder  *sparql.Builder

	normalizeBatch int
	workers        int
	updateBatch    int
	strict         bool

	log *slog.Logger
}

// New returns a new Pipeline that discovers identifiers using store,
// resolves them with norm and applies updates with updater.
func New(store Selector, updater Updater, norm Normalizer, cfg Config) (*Pipeline, error) {
	if cfg.Registry == nil {
		cfg.Registry = curie.Default()
	}
	if cfg.XrefPredicate == "" {
		cfg.XrefPredicate = sparql.HasDbXref
	}
	if cfg.NormalizeWorkers < 1 {
		cfg.NormalizeWorkers = 1
	}
	if cfg.NormalizeBatchSize <= 0 || cfg.UpdateBatchSize <= 0 {
		return nil, errors.New("unify: batch sizes must be positive")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	b, err := sparql.NewBuilder(cfg.Registry, cfg.XrefPredicate)
	if err != nil {
		return nil, fmt.Errorf("unify: %w", err)
	}
	return &Pipeline{
		store:          store,
		updater:        updater,
		norm:           norm,
		pairs:          cfg.Pairs,
		registry:       cfg.Registry,
		builder:        b,
		normalizeBatch: cfg.NormalizeBatchSize,
		workers:        cfg.NormalizeWorkers,
		updateBatch:    cfg.UpdateBatchSize,
		strict:         cfg.Strict,
		log:            cfg.Logger,
	}, nil
}

// Run runs the job and returns its summary. The summary is returned even
// when an error is. Errors are returned only for invalid jobs, cancelled
// contexts and, in strict mode, failed updates.
func (p *Pipeline) Run(ctx context.Context, job Job) (*report.Run, error) {
	run := &report.Run{
		ID:    uuid.NewString(),
		Job:   job.Name,
		Start: time.Now(),
	}
	log := p.log.With("run", run.ID, "job", job.Name)
	log.Info("starting run", "mode", job.Mode)

	var err error
	switch job.Mode {
	case Rewrite, Link:
		err = p.unify(ctx, log, run, job)
	case Swap:
		err = p.swap(ctx, log, run)
	default:
		err = fmt.Errorf("unify: invalid mode for %s: %v", job.Name, job.Mode)
	}
	run.End = time.Now()
	log.Info("finished run",
		"discovered", run.Discovered, "normalized", run.Normalized,
		"statements", run.Statements, "batches", run.Batches,
		"failed", run.Failed, "skipped", run.Skipped,
		"duration", run.End.Sub(run.Start),
	)
	return run, err
}

func (p *Pipeline) unify(ctx context.Context, log *slog.Logger, run *report.Run, job Job) error {
	src, ok := p.registry.Namespace(job.Source)
	if !ok {
		return fmt.Errorf("unify: unknown source namespace for %s: %q", job.Name, job.Source)
	}
	var targetNS []curie.Namespace
	for _, name := range job.Targets {
		ns, ok := p.registry.Namespace(name)
		if !ok {
			return fmt.Errorf("unify: unknown target namespace for %s: %q", job.Name, name)
		}
		targetNS = append(targetNS, ns)
	}

	sources, err := p.discover(ctx, src)
	if err != nil {
		return err
	}
	run.Discovered = len(sources)
	log.Info("discovered source identifiers", "namespace", src.Name, "count", len(sources))

	present := make(map[string]bool)
	for _, ns := range targetNS {
		ids, err := p.discover(ctx, ns)
		if err != nil {
			return err
		}
		for _, id := range ids {
			present[id] = true
		}
		log.Info("discovered target identifiers", "namespace", ns.Name, "count", len(ids))
	}
	run.Targets = len(present)

	mapping, err := p.normalize(ctx, sources, job.Field, job.Keywords)
	if err != nil {
		return err
	}
	run.Normalized = len(mapping)
	log.Info("normalized identifiers", "count", len(mapping))

	if len(targetNS) != 0 {
		for _, targets := range mapping {
			for _, t := range targets {
				if present[t] {
					continue
				}
				if run.Missing == nil {
					run.Missing = make(map[string]int)
				}
				prefix, _, _ := curie.Split(t)
				run.Missing[prefix]++
			}
		}
		for prefix, n := range run.Missing {
			log.Info("normalized targets missing from store", "prefix", prefix, "count", n)
		}
	}

	switch job.Mode {
	case Rewrite:
		run.Merged, run.Chained = collisions(mapping)
		for _, id := range run.Merged {
			log.Warn("target claimed by more than one source", "target", id)
		}
		for _, id := range run.Chained {
			log.Warn("target is also a source", "target", id)
		}
		return p.rewrite(ctx, log, run, mapping)
	case Link:
		return p.link(ctx, log, run, mapping, present)
	}
	panic("unreachable")
}

// discover returns the CURIEs of the typed nodes in the store within ns.
func (p *Pipeline) discover(ctx context.Context, ns curie.Namespace) ([]string, error) {
	q, err := sparql.NamespaceQuery(ns.IRI)
	if err != nil {
		return nil, fmt.Errorf("unify: %w", err)
	}
	iris := p.store.Select(ctx, q)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var ids []string
	for _, c := range p.registry.Compact(iris) {
		// The namespace filter is a substring match
		// so may hit IRIs in other namespaces.
		if curie.HasPrefix(c, ns.Prefix) {
			ids = append(ids, c)
		}
	}
	return ids, nil
}

// normalize resolves curies in chunks of at most the normalization batch
// size, with up to the configured number of concurrent requests.
func (p *Pipeline) normalize(ctx context.Context, curies []string, field string, keywords []string) (map[string][]string, error) {
	mapping := make(map[string][]string)
	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for _, chunk := range chunks(curies, p.normalizeBatch) {
		chunk := chunk
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			m := p.norm.Normalize(ctx, chunk, field, keywords)
			mu.Lock()
			for k, v := range m {
				mapping[k] = v
			}
			mu.Unlock()
			return nil
		})
	}
	return mapping, g.Wait()
}

func (p *Pipeline) rewrite(ctx context.Context, log *slog.Logger, run *report.Run, mapping map[string][]string) error {
	sources := make([]string, 0, len(mapping))
	for s := range mapping {
		sources = append(sources, s)
	}
	sort.Strings(sources)

	for _, chunk := range chunks(sources, p.updateBatch) {
		sub := make(map[string][]string, len(chunk))
		for _, s := range chunk {
			sub[s] = mapping[s]
		}
		req, skipped := p.builder.Rewrites(sub)
		for _, s := range skipped {
			log.Warn("skipped rewrite", "source", s, "targets", mapping[s])
		}
		run.Skipped += len(skipped)
		err := p.apply(ctx, log, run, req, req.Len())
		if err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) link(ctx context.Context, log *slog.Logger, run *report.Run, mapping map[string][]string, present map[string]bool) error {
	sources := make([]string, 0, len(mapping))
	for s := range mapping {
		sources = append(sources, s)
	}
	sort.Strings(sources)

	var links []sparql.Link
	for _, s := range sources {
		for _, t := range mapping[s] {
			if !present[t] {
				continue
			}
			links = append(links, sparql.Link{Subject: t, Predicate: sparql.Produces, Object: s})
		}
	}

	for _, chunk := range chunks(links, p.updateBatch) {
		req, skipped := p.builder.Links(chunk)
		for _, l := range skipped {
			log.Warn("skipped link", "gene", l.Subject, "protein", l.Object)
		}
		run.Skipped += len(skipped)
		err := p.apply(ctx, log, run, req, len(chunk)-len(skipped))
		if err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) swap(ctx context.Context, log *slog.Logger, run *report.Run) error {
	if p.pairs == nil {
		return errors.New("unify: no PR pair source")
	}
	pairs, err := p.pairs.Pairs(ctx)
	if err != nil {
		// Pair discovery is fail-open like
		// store discovery.
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Error("failed to obtain PR pairs", "err", err)
		return nil
	}
	run.Discovered = len(pairs)
	log.Info("discovered PR terms", "count", len(pairs))

	// Each pair is two operations.
	n := p.updateBatch / 2
	if n < 1 {
		n = 1
	}
	for _, chunk := range chunks(pairs, n) {
		req, skipped := p.builder.Swaps(chunk)
		for _, sw := range skipped {
			log.Warn("skipped swap", "pr", sw.IRI, "uniprot", sw.CURIE)
		}
		run.Skipped += len(skipped)
		err := p.apply(ctx, log, run, req, req.Len())
		if err != nil {
			return err
		}
	}
	return nil
}

// apply sends a single request holding n statements.
func (p *Pipeline) apply(ctx context.Context, log *slog.Logger, run *report.Run, req *sparql.Request, n int) error {
	if req.Len() == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	run.Batches++
	run.Statements += n
	err := p.updater.Update(ctx, req.String())
	if err != nil {
		run.Failed++
		log.Error("update failed", "batch", run.Batches, "statements", n, "err", err)
		if p.strict {
			return fmt.Errorf("unify: %s batch %d: %w", run.Job, run.Batches, err)
		}
		return nil
	}
	log.Info("applied update", "batch", run.Batches, "statements", n)
	return nil
}

// chunks returns s partitioned into consecutive slices of at most n
// elements.
func chunks[T any](s []T, n int) [][]T {
	var c [][]T
	for len(s) > n {
		c = append(c, s[:n:n])
		s = s[n:]
	}
	if len(s) != 0 {
		c = append(c, s)
	}
	return c
}
