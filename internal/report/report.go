// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package report holds the accounting for identifier unification runs and
// writes run summaries and plots.
package report // import "github.com/obask/kgmapper/internal/report"

import (
	"encoding/json"
	"os"
	"time"
)

// Run is the summary of a single job run.
type Run struct {
	// ID identifies the run in logs.
	ID string

	// Job is the name of the job.
	Job string

	// Start and End are the wall clock bounds
	// of the run.
	Start, End time.Time

	// Discovered is the number of in-scope
	// identifiers found in the store for the
	// source namespace and Targets is the number
	// found for the target namespaces.
	Discovered, Targets int

	// Normalized is the number of source
	// identifiers resolved by the normalization
	// service. Missing counts resolved targets
	// that were not present in the store, keyed
	// by target prefix.
	Normalized int
	Missing    map[string]int `json:",omitempty"`

	// Statements is the number of update
	// operations sent, in Batches requests, of
	// which Failed requests were not applied.
	// Skipped counts identifiers that could not be
	// expressed in an update.
	Statements, Batches, Failed, Skipped int

	// Merged lists targets claimed by more than
	// one source and Chained lists targets that
	// are themselves sources of the run.
	Merged  []string `json:",omitempty"`
	Chained []string `json:",omitempty"`
}

// Stage is a named count used for plotting.
type Stage struct {
	Name  string
	Count int
}

// Stages returns the stage counts of the run in pipeline order.
func (r *Run) Stages() []Stage {
	return []Stage{
		{"discovered", r.Discovered},
		{"targets", r.Targets},
		{"normalized", r.Normalized},
		{"statements", r.Statements},
		{"skipped", r.Skipped},
		{"failed", r.Failed},
	}
}

// Summary is a collection of run summaries.
type Summary struct {
	// Endpoint is the triplestore repository
	// the runs were applied to.
	Endpoint string

	// DryRun indicates that updates were not
	// sent to the endpoint.
	DryRun bool

	// Runs holds the summaries of each run.
	Runs []*Run
}

// WriteJSON writes the summary to the file at path in indented JSON.
func (s *Summary) WriteJSON(path string) error {
	b, err := json.MarshalIndent(s, "", "\t")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}
