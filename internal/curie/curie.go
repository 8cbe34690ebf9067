// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package curie

import (
	"fmt"
	"sort"
	"strings"
)

// Namespace associates a CURIE prefix with the IRI namespace it abbreviates.
type Namespace struct {
	// Name is the configuration key for the namespace,
	// for example "ensembl".
	Name string `yaml:"name"`

	// Prefix is the CURIE prefix used by the
	// normalization service, for example "ENSEMBL".
	Prefix string `yaml:"prefix"`

	// IRI is the full namespace IRI text, for
	// example "http://identifiers.org/ensembl/".
	IRI string `yaml:"iri"`
}

// Standard namespaces.
var (
	UniProt  = Namespace{Name: "uniprot", Prefix: "UniProtKB", IRI: "https://identifiers.org/uniprot/"}
	Ensembl  = Namespace{Name: "ensembl", Prefix: "ENSEMBL", IRI: "http://identifiers.org/ensembl/"}
	NCBIGene = Namespace{Name: "ncbigene", Prefix: "NCBIGene", IRI: "http://www.ncbi.nlm.nih.gov/gene/"}
	PR       = Namespace{Name: "pr", Prefix: "PR", IRI: "http://purl.obolibrary.org/obo/PR_"}
)

// Registry is a set of namespaces used for IRI compaction and expansion.
type Registry struct {
	// byLength is ordered longest to shortest
	// to ensure prefixes are not eagerly chosen.
	byLength []Namespace
	byPrefix map[string]Namespace
	byName   map[string]Namespace
}

// Default returns a registry holding the UniProtKB, Ensembl, NCBIGene
// and PR namespaces.
func Default() *Registry {
	r, err := NewRegistry(UniProt, Ensembl, NCBIGene, PR)
	if err != nil {
		panic(err)
	}
	return r
}

// NewRegistry returns a registry for the provided namespaces. Namespace
// names and prefixes must be unique and IRIs must be non-empty.
func NewRegistry(namespaces ...Namespace) (*Registry, error) {
	r := &Registry{
		byPrefix: make(map[string]Namespace),
		byName:   make(map[string]Namespace),
	}
	for _, ns := range namespaces {
		if ns.Prefix == "" || ns.IRI == "" {
			return nil, fmt.Errorf("curie: incomplete namespace %+v", ns)
		}
		if strings.Contains(ns.Prefix, ":") {
			return nil, fmt.Errorf("curie: invalid prefix %q", ns.Prefix)
		}
		if _, exists := r.byPrefix[ns.Prefix]; exists {
			return nil, fmt.Errorf("curie: duplicate prefix %q", ns.Prefix)
		}
		r.byPrefix[ns.Prefix] = ns
		if ns.Name != "" {
			if _, exists := r.byName[ns.Name]; exists {
				return nil, fmt.Errorf("curie: duplicate namespace name %q", ns.Name)
			}
			r.byName[ns.Name] = ns
		}
		r.byLength = append(r.byLength, ns)
	}
	sort.SliceStable(r.byLength, func(i, j int) bool {
		return len(r.byLength[i].IRI) > len(r.byLength[j].IRI)
	})
	return r, nil
}

// Namespace returns the namespace registered with the given name.
func (r *Registry) Namespace(name string) (Namespace, bool) {
	ns, ok := r.byName[name]
	return ns, ok
}

// Namespaces returns the registered namespaces, longest IRI first.
func (r *Registry) Namespaces() []Namespace {
	return append([]Namespace(nil), r.byLength...)
}

// CURIE returns the compact form of iri. The returned bool is false if
// iri is not within a registered namespace or has no local part.
func (r *Registry) CURIE(iri string) (string, bool) {
	for _, ns := range r.byLength {
		if strings.HasPrefix(iri, ns.IRI) {
			local := strings.TrimPrefix(iri, ns.IRI)
			if len(local) == 0 {
				return "", false
			}
			return ns.Prefix + ":" + local, true
		}
	}
	return "", false
}

// URI returns the full IRI for curie. The returned bool is false if the
// CURIE prefix is not registered.
func (r *Registry) URI(curie string) (string, bool) {
	prefix, local, ok := Split(curie)
	if !ok {
		return "", false
	}
	ns, ok := r.byPrefix[prefix]
	if !ok {
		return "", false
	}
	return ns.IRI + local, true
}

// Compact returns the CURIEs for the IRIs in iris in order. IRIs outside
// the registered namespaces are dropped.
func (r *Registry) Compact(iris []string) []string {
	curies := make([]string, 0, len(iris))
	for _, iri := range iris {
		c, ok := r.CURIE(iri)
		if !ok {
			continue
		}
		curies = append(curies, c)
	}
	return curies
}

// Split splits a CURIE into its prefix and local parts.
func Split(curie string) (prefix, local string, ok bool) {
	i := strings.Index(curie, ":")
	if i <= 0 || i == len(curie)-1 {
		return "", "", false
	}
	return curie[:i], curie[i+1:], true
}

// HasPrefix returns whether curie has the given prefix.
func HasPrefix(curie, prefix string) bool {
	p, _, ok := Split(curie)
	return ok && p == prefix
}
