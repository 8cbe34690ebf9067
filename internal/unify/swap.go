// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package unify

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"gonum.org/v1/gonum/graph/formats/rdf"

	"github.com/kortschak/gogo"

	"github.com/obask/kgmapper/internal/owl"
	"github.com/obask/kgmapper/internal/sparql"
)

// Binder runs general SELECT queries.
type Binder interface {
	Bindings(ctx context.Context, query string) ([]map[string]string, error)
}

// UbergraphURL is the public Ubergraph SPARQL endpoint.
const UbergraphURL = "https://ubergraph.apps.renci.org/sparql"

// subclassQuery finds human and mouse PR protein classes that are
// subclasses of PR terms used by CL cell types, with their UniProtKB
// cross-references.
const subclassQuery = `PREFIX obo: <http://purl.obolibrary.org/obo/>
PREFIX rdfs: <http://www.w3.org/2000/01/rdf-schema#>

SELECT DISTINCT ?pr ?mpr (STR(?mxref) AS ?uniprot)
WHERE {
  GRAPH <http://reasoner.renci.org/ontology> {
    ?pr rdfs:isDefinedBy obo:pr.owl .
    ?cell rdfs:isDefinedBy obo:cl.owl .
  }
  GRAPH <http://reasoner.renci.org/nonredundant> {
    ?cell ?r ?pr .
    ?mpr rdfs:subClassOf ?pr .
  }
  GRAPH <http://reasoner.renci.org/redundant> {
    { ?mpr obo:RO_0002160 obo:NCBITaxon_9606 }
    UNION
    { ?mpr obo:RO_0002160 obo:NCBITaxon_10090 }
  }
  GRAPH <http://reasoner.renci.org/ontology> {
    ?mpr <http://www.geneontology.org/formats/oboInOwl#hasDbXref> ?mxref .
    FILTER(STRSTARTS(STR(?mxref), "UniProtKB:"))
  }
}
ORDER BY ?pr ?mpr
`

// directQuery finds PR terms used by CL cell types that directly carry
// a UniProtKB cross-reference.
const directQuery = `PREFIX obo: <http://purl.obolibrary.org/obo/>
PREFIX rdfs: <http://www.w3.org/2000/01/rdf-schema#>

SELECT DISTINCT ?pr (STR(?xref) AS ?uniprot)
WHERE {
  ?pr rdfs:isDefinedBy obo:pr.owl .
  ?cell rdfs:isDefinedBy obo:cl.owl .
  ?cell ?r ?pr .
  ?pr <http://www.geneontology.org/formats/oboInOwl#hasDbXref> ?xref .
  FILTER(STRSTARTS(STR(?xref), "UniProtKB"))
}
ORDER BY ?pr
`

// Ubergraph is a PairSource that queries Ubergraph for the PR terms
// referenced by CL.
type Ubergraph struct {
	Client Binder
}

// Pairs returns the subclass pairs followed by the direct pairs.
func (u Ubergraph) Pairs(ctx context.Context) ([]sparql.Swap, error) {
	var pairs []sparql.Swap
	for _, q := range []struct {
		query string
		pr    string
	}{
		{query: subclassQuery, pr: "mpr"},
		{query: directQuery, pr: "pr"},
	} {
		rows, err := u.Client.Bindings(ctx, q.query)
		if err != nil {
			return nil, fmt.Errorf("unify: ubergraph: %w", err)
		}
		pairs = append(pairs, extractPairs(rows, q.pr, "uniprot")...)
	}
	return pairs, nil
}

func extractPairs(rows []map[string]string, pr, uniprot string) []sparql.Swap {
	var pairs []sparql.Swap
	for _, r := range rows {
		iri, ok := r[pr]
		if !ok {
			continue
		}
		id, ok := r[uniprot]
		if !ok {
			continue
		}
		pairs = append(pairs, sparql.Swap{IRI: iri, CURIE: id})
	}
	return pairs
}

// OWLFile is a PairSource that reads PR classes from a local PR OWL file.
type OWLFile struct {
	// Path is the path to the RDF/XML file.
	Path string

	// Taxa restricts the classes used to those
	// only in one of the listed NCBITaxon CURIEs.
	// If empty, all classes are used.
	Taxa []string
}

// Pairs returns the UniProtKB cross-references of the non-deprecated PR
// classes in the file, ordered by PR IRI and then by cross-reference.
func (o OWLFile) Pairs(ctx context.Context) ([]sparql.Swap, error) {
	f, err := os.Open(o.Path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return PRPairs(f, o.Taxa)
}

// PRPairs returns the PR to UniProtKB swap pairs held in the PR OWL data
// read from r.
func PRPairs(r io.Reader, taxa []string) ([]sparql.Swap, error) {
	dec, err := owl.NewDecoder(r)
	if err != nil {
		return nil, fmt.Errorf("unify: %w", err)
	}
	g := gogo.NewGraph()
	for {
		s, err := dec.Unmarshal()
		if err != nil {
			if err != io.EOF {
				return nil, fmt.Errorf("unify: %w", err)
			}
			break
		}
		s.Subject.UID = 0
		s.Predicate.UID = 0
		s.Object.UID = 0
		g.AddStatement(s)
	}

	allowed := make(map[string]bool)
	for _, t := range taxa {
		allowed["<"+oboIRI(t)+">"] = true
	}

	var (
		typ       = "<" + owl.Type + ">"
		class     = "<" + owl.Class + ">"
		xref      = "<" + owl.HasDbXref + ">"
		deprec    = "<" + owl.Deprecated + ">"
		inTaxon   = "<" + owl.OnlyInTaxon + ">"
		prPrefix  = "<" + sparql.PR.IRI
		isPRClass = func(s *rdf.Statement) bool {
			return s.Predicate.Value == typ && s.Object.Value == class
		}
	)

	var pairs []sparql.Swap
	nodes := g.Nodes()
	for nodes.Next() {
		term := nodes.Node().(rdf.Term)
		if !strings.HasPrefix(term.Value, prPrefix) {
			continue
		}
		if len(g.Query(term).Out(isPRClass).Result()) == 0 {
			continue
		}
		if len(g.Query(term).Out(func(s *rdf.Statement) bool { return s.Predicate.Value == deprec }).Result()) != 0 {
			continue
		}
		if len(allowed) != 0 {
			inAllowed := g.Query(term).Out(func(s *rdf.Statement) bool {
				return s.Predicate.Value == inTaxon && allowed[s.Object.Value]
			}).Result()
			if len(inAllowed) == 0 {
				continue
			}
		}
		iri, _, _, err := term.Parts()
		if err != nil {
			return nil, fmt.Errorf("unify: %w", err)
		}
		for _, x := range g.Query(term).Out(func(s *rdf.Statement) bool { return s.Predicate.Value == xref }).Result() {
			text, _, kind, err := x.Parts()
			if err != nil || kind != rdf.Literal {
				continue
			}
			if !strings.HasPrefix(text, "UniProtKB:") {
				continue
			}
			pairs = append(pairs, sparql.Swap{IRI: iri, CURIE: text})
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].IRI != pairs[j].IRI {
			return pairs[i].IRI < pairs[j].IRI
		}
		return pairs[i].CURIE < pairs[j].CURIE
	})
	return pairs, nil
}

// oboIRI returns the OBO PURL for an OBO CURIE such as NCBITaxon:9606.
func oboIRI(c string) string {
	return "http://purl.obolibrary.org/obo/" + strings.Replace(c, ":", "_", 1)
}
