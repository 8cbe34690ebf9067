// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sparql

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/pkg/diff"
	"github.com/pkg/diff/write"

	"gonum.org/v1/gonum/graph/formats/rdf"

	"github.com/obask/kgmapper/internal/curie"
)

const prefixBlock = `PREFIX ENSEMBL: <http://identifiers.org/ensembl/>
PREFIX NCBIGene: <http://www.ncbi.nlm.nih.gov/gene/>
PREFIX PR: <http://purl.obolibrary.org/obo/PR_>
PREFIX RO: <http://purl.obolibrary.org/obo/RO_>
PREFIX UniProtKB: <https://identifiers.org/uniprot/>
PREFIX oio: <http://www.geneontology.org/formats/oboInOwl#>
PREFIX owl: <http://www.w3.org/2002/07/owl#>

`

var builderTests = []struct {
	name    string
	mapping map[string][]string
	want    string
	skipped []string
}{
	{
		name: "single",
		mapping: map[string][]string{
			"ENSEMBL:ENSG00000163586": {"NCBIGene:2168"},
		},
		want: prefixBlock + `DELETE {
  ENSEMBL:ENSG00000163586 ?p ?o .
  ?s2 ?p2 ENSEMBL:ENSG00000163586 .
}
INSERT {
  NCBIGene:2168 ?p ?o .
  ?s2 ?p2 NCBIGene:2168 .
  NCBIGene:2168 oio:hasDbXref "ENSEMBL:ENSG00000163586" .
}
WHERE {
  {
    ENSEMBL:ENSG00000163586 ?p ?o .
  }
  UNION
  {
    ?s2 ?p2 ENSEMBL:ENSG00000163586 .
  }
}
`,
	},
	{
		name: "secondary targets and ordering",
		mapping: map[string][]string{
			"ENSEMBL:ENSG00000163586": {"NCBIGene:2168"},
			"ENSEMBL:ENSG00000121410": {"NCBIGene:1", "NCBIGene:503538"},
		},
		want: prefixBlock + `DELETE {
  ENSEMBL:ENSG00000121410 ?p ?o .
  ?s2 ?p2 ENSEMBL:ENSG00000121410 .
}
INSERT {
  NCBIGene:1 ?p ?o .
  ?s2 ?p2 NCBIGene:1 .
  NCBIGene:1 oio:hasDbXref "ENSEMBL:ENSG00000121410" .
  NCBIGene:1 oio:hasDbXref "NCBIGene:503538" .
}
WHERE {
  {
    ENSEMBL:ENSG00000121410 ?p ?o .
  }
  UNION
  {
    ?s2 ?p2 ENSEMBL:ENSG00000121410 .
  }
} ;
DELETE {
  ENSEMBL:ENSG00000163586 ?p ?o .
  ?s2 ?p2 ENSEMBL:ENSG00000163586 .
}
INSERT {
  NCBIGene:2168 ?p ?o .
  ?s2 ?p2 NCBIGene:2168 .
  NCBIGene:2168 oio:hasDbXref "ENSEMBL:ENSG00000163586" .
}
WHERE {
  {
    ENSEMBL:ENSG00000163586 ?p ?o .
  }
  UNION
  {
    ?s2 ?p2 ENSEMBL:ENSG00000163586 .
  }
}
`,
	},
	{
		name: "unsafe local part and skipped sources",
		mapping: map[string][]string{
			"ENSEMBL:ENSG00000163586":               {"NCBIGene:21/68"},
			"ENSEMBL:ENSG1> ?p ?o } ; DROP ALL ; #": {"NCBIGene:2168"},
			"ENSEMBL:ENSG00000000003":               nil,
			"HGNC:1097":                             {"NCBIGene:673"},
		},
		want: prefixBlock + `DELETE {
  ENSEMBL:ENSG00000163586 ?p ?o .
  ?s2 ?p2 ENSEMBL:ENSG00000163586 .
}
INSERT {
  <http://www.ncbi.nlm.nih.gov/gene/21/68> ?p ?o .
  ?s2 ?p2 <http://www.ncbi.nlm.nih.gov/gene/21/68> .
  <http://www.ncbi.nlm.nih.gov/gene/21/68> oio:hasDbXref "ENSEMBL:ENSG00000163586" .
}
WHERE {
  {
    ENSEMBL:ENSG00000163586 ?p ?o .
  }
  UNION
  {
    ?s2 ?p2 ENSEMBL:ENSG00000163586 .
  }
}
`,
		skipped: []string{
			"ENSEMBL:ENSG00000000003",
			"ENSEMBL:ENSG1> ?p ?o } ; DROP ALL ; #",
			"HGNC:1097",
		},
	},
}

func TestBuilderRewrites(t *testing.T) {
	b, err := NewBuilder(curie.Default(), HasDbXref)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, test := range builderTests {
		req, skipped := b.Rewrites(test.mapping)
		got := req.String()
		if got != test.want {
			var buf bytes.Buffer
			err := diff.Text("got", "want", got, test.want, &buf, write.TerminalColor())
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			t.Errorf("unexpected request for %q:\n%s", test.name, &buf)
		}
		if strings.Join(skipped, "\n") != strings.Join(test.skipped, "\n") {
			t.Errorf("unexpected skipped sources for %q: got:%q want:%q", test.name, skipped, test.skipped)
		}
		if req.Len() != len(test.mapping)-len(test.skipped) {
			t.Errorf("unexpected operation count for %q: got:%d want:%d",
				test.name, req.Len(), len(test.mapping)-len(test.skipped))
		}
	}
}

func TestProvenanceTriplePerRewrite(t *testing.T) {
	b, err := NewBuilder(curie.Default(), EquivalentClass)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	mapping := map[string][]string{
		"ENSEMBL:ENSG00000163586": {"NCBIGene:2168"},
		"ENSEMBL:ENSG00000121410": {"NCBIGene:1"},
		"ENSEMBL:ENSG00000175899": {"NCBIGene:2"},
	}
	req, _ := b.Rewrites(mapping)
	text := req.String()
	for src, targets := range mapping {
		want := targets[0] + ` owl:equivalentClass "` + src + `" .`
		if n := strings.Count(text, want); n != 1 {
			t.Errorf("unexpected count of provenance triple %q: got:%d want:1", want, n)
		}
	}
}

func TestBuilderLinks(t *testing.T) {
	b, err := NewBuilder(curie.Default(), HasDbXref)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	req, skipped := b.Links([]Link{
		{Subject: "ENSEMBL:ENSG00000121410", Predicate: Produces, Object: "UniProtKB:P04217"},
		{Subject: "HGNC:5", Predicate: Produces, Object: "UniProtKB:P04217"},
	})
	if len(skipped) != 1 || skipped[0].Subject != "HGNC:5" {
		t.Errorf("unexpected skipped links: %v", skipped)
	}
	want := prefixBlock + `INSERT DATA {
  <http://identifiers.org/ensembl/ENSG00000121410> <http://purl.obolibrary.org/obo/RO_0003000> <https://identifiers.org/uniprot/P04217> .
}
`
	if got := req.String(); got != want {
		var buf bytes.Buffer
		err := diff.Text("got", "want", got, want, &buf, write.TerminalColor())
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		t.Errorf("unexpected request:\n%s", &buf)
	}

	// The INSERT DATA body must be valid N-Triples.
	body := strings.TrimSuffix(strings.TrimPrefix(req.Operations[0].String(), "INSERT DATA {\n"), "}")
	dec := rdf.NewDecoder(strings.NewReader(strings.TrimSpace(body) + "\n"))
	var n int
	for {
		_, err := dec.Unmarshal()
		if err != nil {
			if err != io.EOF {
				t.Errorf("unexpected error decoding statements: %v", err)
			}
			break
		}
		n++
	}
	if n != 1 {
		t.Errorf("unexpected number of statements: got:%d want:1", n)
	}

	empty, _ := b.Links(nil)
	if empty.Len() != 0 {
		t.Errorf("unexpected operations for empty links: %d", empty.Len())
	}
}

func TestBuilderSwaps(t *testing.T) {
	b, err := NewBuilder(curie.Default(), HasDbXref)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	req, skipped := b.Swaps([]Swap{
		{IRI: "http://purl.obolibrary.org/obo/PR_P04217", CURIE: "UniProtKB:P04217"},
		{IRI: "http://example.org/not_pr", CURIE: "UniProtKB:P04217"},
	})
	if len(skipped) != 1 {
		t.Errorf("unexpected skipped swaps: %v", skipped)
	}
	want := prefixBlock + `DELETE {
  PR:P04217 ?p ?o .
}
INSERT {
  UniProtKB:P04217 ?p ?o .
}
WHERE {
  PR:P04217 ?p ?o .
} ;
DELETE {
  UniProtKB:P04217 oio:hasDbXref "UniProtKB:P04217" .
}
INSERT {
  UniProtKB:P04217 oio:hasDbXref "PR:P04217" .
}
WHERE {
  UniProtKB:P04217 oio:hasDbXref "UniProtKB:P04217" .
}
`
	if got := req.String(); got != want {
		var buf bytes.Buffer
		err := diff.Text("got", "want", got, want, &buf, write.TerminalColor())
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		t.Errorf("unexpected request:\n%s", &buf)
	}
}

func TestTermEscaping(t *testing.T) {
	for _, iri := range []string{
		"",
		"http://example.org/a b",
		"http://example.org/a>",
		"http://example.org/a\nb",
		`http://example.org/"`,
	} {
		if _, err := IRI(iri); err == nil {
			t.Errorf("expected error for IRI %q", iri)
		}
	}
	lit, err := Literal(`UniProtKB:"P04217"`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := `"UniProtKB:\"P04217\""`; string(lit) != want {
		t.Errorf("unexpected literal: got:%s want:%s", lit, want)
	}
}

func TestNamespaceQuery(t *testing.T) {
	got, err := NamespaceQuery("http://identifiers.org/ensembl/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := `SELECT DISTINCT ?s
WHERE {
  ?s a ?o . FILTER(CONTAINS(STR(?s), "http://identifiers.org/ensembl/"))
}
`
	if got != want {
		t.Errorf("unexpected query:\ngot:\n%s\nwant:\n%s", got, want)
	}
}
