// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package unify

import (
	"fmt"

	"github.com/obask/kgmapper/internal/nodenorm"
)

// Mode is the kind of update a job makes.
type Mode int

const (
	// Rewrite moves every triple mentioning a source
	// identifier onto its primary normalized target.
	Rewrite Mode = iota

	// Link inserts a gene produces protein statement
	// from each normalized target that is present in
	// the store to its source.
	Link

	// Swap renames PR terms to their UniProtKB
	// cross-reference.
	Swap
)

func (m Mode) String() string {
	switch m {
	case Rewrite:
		return "rewrite"
	case Link:
		return "link"
	case Swap:
		return "swap"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Job describes a single unification run.
type Job struct {
	// Name is the name of the job used in logs
	// and summaries.
	Name string

	Mode Mode

	// Source is the registry name of the namespace
	// whose identifiers are normalized.
	Source string

	// Targets are the registry names of the
	// namespaces that normalized identifiers are
	// expected to be found in.
	Targets []string

	// Field and Keywords select the identifiers
	// taken from the normalization response.
	Field    string
	Keywords []string
}

// Standard jobs.
var (
	SwapPR = Job{
		Name: "swap-pr",
		Mode: Swap,
	}
	LinkEnsembl = Job{
		Name:     "link-ensembl",
		Mode:     Link,
		Source:   "uniprot",
		Targets:  []string{"ensembl"},
		Field:    nodenorm.EquivalentIdentifiers,
		Keywords: []string{"ENSEMBL"},
	}
	LinkGenes = Job{
		Name:     "link-genes",
		Mode:     Link,
		Source:   "uniprot",
		Targets:  []string{"ensembl", "ncbigene"},
		Field:    nodenorm.EquivalentIdentifiers,
		Keywords: []string{"NCBIGene", "ENSEMBL"},
	}
	UnifyGenes = Job{
		Name:     "unify-genes",
		Mode:     Rewrite,
		Source:   "ensembl",
		Targets:  []string{"ncbigene"},
		Field:    nodenorm.ID,
		Keywords: []string{"NCBIGene"},
	}
)

// Jobs returns the standard job sequence: PR terms are swapped for their
// UniProtKB identifiers, proteins are linked to their Ensembl genes and
// Ensembl genes are unified with NCBIGene.
func Jobs() []Job {
	return []Job{SwapPR, LinkEnsembl, UnifyGenes}
}

// JobNamed returns the standard job with the given name.
func JobNamed(name string) (Job, bool) {
	for _, j := range []Job{SwapPR, LinkEnsembl, LinkGenes, UnifyGenes} {
		if j.Name == name {
			return j, true
		}
	}
	return Job{}, false
}
