// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package unify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obask/kgmapper/internal/nodenorm"
	"github.com/obask/kgmapper/internal/sparql"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// store is a Selector holding the typed node IRIs of a triplestore.
type store []string

func (s store) Select(_ context.Context, query string) []string {
	var iris []string
	for _, iri := range s {
		ns := iri[:strings.LastIndex(iri, "/")+1]
		if strings.Contains(query, `"`+ns+`"`) {
			iris = append(iris, iri)
		}
	}
	return iris
}

// updates is an Updater recording update requests.
type updates struct {
	mu     sync.Mutex
	bodies []string
	fail   func(n int) error
}

func (u *updates) Update(_ context.Context, update string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.bodies = append(u.bodies, update)
	if u.fail != nil {
		return u.fail(len(u.bodies))
	}
	return nil
}

// normalizer is a Normalizer backed by a fixed mapping.
type normalizer struct {
	mu      sync.Mutex
	mapping map[string][]string
	calls   [][]string
}

func (n *normalizer) Normalize(_ context.Context, curies []string, _ string, _ []string) map[string][]string {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, curies)
	m := make(map[string][]string)
	for _, c := range curies {
		if t, ok := n.mapping[c]; ok {
			m[c] = t
		}
	}
	return m
}

func newPipeline(t *testing.T, s Selector, u Updater, n Normalizer, cfg Config) *Pipeline {
	t.Helper()
	if cfg.NormalizeBatchSize == 0 {
		cfg.NormalizeBatchSize = nodenorm.MaxBatch
	}
	if cfg.UpdateBatchSize == 0 {
		cfg.UpdateBatchSize = 1000
	}
	cfg.Logger = discard
	p, err := New(s, u, n, cfg)
	require.NoError(t, err)
	return p
}

func TestLinkEndToEnd(t *testing.T) {
	var (
		mu      sync.Mutex
		updates []string
	)
	triplestore := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/statements" {
			b, err := io.ReadAll(r.Body)
			if err != nil {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			mu.Lock()
			updates = append(updates, string(b))
			mu.Unlock()
			w.WriteHeader(http.StatusNoContent)
			return
		}
		if err := r.ParseForm(); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		q := r.PostForm.Get("query")
		var iri string
		switch {
		case strings.Contains(q, "https://identifiers.org/uniprot/"):
			iri = "https://identifiers.org/uniprot/P04217"
		case strings.Contains(q, "http://identifiers.org/ensembl/"):
			iri = "http://identifiers.org/ensembl/ENSG00000121410"
		}
		w.Header().Set("Content-Type", "application/sparql-results+json")
		fmt.Fprintf(w, `{"head":{"vars":["s"]},"results":{"bindings":[{"s":{"type":"uri","value":%q}}]}}`, iri)
	}))
	defer triplestore.Close()

	normalization := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/get_normalized_nodes" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		fmt.Fprint(w, `{
  "UniProtKB:P04217": {
    "id": {"identifier": "UniProtKB:P04217"},
    "equivalent_identifiers": [
      {"identifier": "UniProtKB:P04217"},
      {"identifier": "ENSEMBL:ENSG00000121410"},
      {"identifier": "ENSEMBL:ENSG00000999999"}
    ]
  }
}`)
	}))
	defer normalization.Close()

	p := newPipeline(t,
		sparql.NewClient(triplestore.URL, sparql.WithLogger(discard)),
		sparql.NewClient(triplestore.URL, sparql.WithLogger(discard)),
		nodenorm.NewClient(normalization.URL, nodenorm.WithLogger(discard)),
		Config{},
	)
	run, err := p.Run(context.Background(), LinkEnsembl)
	require.NoError(t, err)

	assert.NotEmpty(t, run.ID)
	assert.Equal(t, 1, run.Discovered)
	assert.Equal(t, 1, run.Targets)
	assert.Equal(t, 1, run.Normalized)
	assert.Equal(t, 1, run.Statements)
	assert.Equal(t, 1, run.Batches)
	assert.Equal(t, 0, run.Failed)
	assert.Equal(t, map[string]int{"ENSEMBL": 1}, run.Missing)

	require.Len(t, updates, 1)
	assert.Contains(t, updates[0], "INSERT DATA {\n"+
		"  <http://identifiers.org/ensembl/ENSG00000121410> <http://purl.obolibrary.org/obo/RO_0003000> <https://identifiers.org/uniprot/P04217> .\n"+
		"}")
	assert.NotContains(t, updates[0], "ENSG00000999999")
}

func ensemblStore(n int) (store, map[string][]string) {
	var s store
	mapping := make(map[string][]string)
	// Reverse order to check that updates are
	// not applied in discovery order.
	for i := n - 1; i >= 0; i-- {
		s = append(s, fmt.Sprintf("http://identifiers.org/ensembl/ENSG%011d", i))
		mapping[fmt.Sprintf("ENSEMBL:ENSG%011d", i)] = []string{fmt.Sprintf("NCBIGene:%d", i+1)}
	}
	return s, mapping
}

func TestRewriteBatches(t *testing.T) {
	const n = 2500
	s, mapping := ensemblStore(n)
	norm := &normalizer{mapping: mapping}
	var u updates
	p := newPipeline(t, s, &u, norm, Config{
		NormalizeBatchSize: 1000,
		NormalizeWorkers:   3,
		UpdateBatchSize:    1000,
	})

	run, err := p.Run(context.Background(), UnifyGenes)
	require.NoError(t, err)
	assert.Equal(t, n, run.Discovered)
	assert.Equal(t, n, run.Normalized)
	assert.Equal(t, n, run.Statements)
	assert.Equal(t, 3, run.Batches)
	assert.Equal(t, map[string]int{"NCBIGene": n}, run.Missing)
	assert.Empty(t, run.Merged)
	assert.Empty(t, run.Chained)

	require.Len(t, norm.calls, 3)
	var normalized int
	for _, c := range norm.calls {
		assert.LessOrEqual(t, len(c), 1000)
		normalized += len(c)
	}
	assert.Equal(t, n, normalized)

	require.Len(t, u.bodies, 3)
	want := []int{1000, 1000, 500}
	var last string
	for i, b := range u.bodies {
		assert.Equal(t, want[i], strings.Count(b, "DELETE {"), "request %d", i)
		assert.Equal(t, 1, strings.Count(b, "PREFIX ENSEMBL:"), "request %d", i)

		// Sources must be applied in lexical order.
		var sources []string
		for _, line := range strings.Split(b, "\n") {
			line = strings.TrimSpace(line)
			if strings.HasPrefix(line, "ENSEMBL:") && strings.HasSuffix(line, "?p ?o .") {
				sources = append(sources, strings.Fields(line)[0])
			}
		}
		// Each source appears in DELETE and WHERE.
		assert.Len(t, sources, 2*want[i])
		assert.True(t, sort.StringsAreSorted(sources), "request %d not sorted", i)
		assert.Less(t, last, sources[0])
		last = sources[len(sources)-1]
	}
	assert.Contains(t, u.bodies[0], `NCBIGene:1 oio:hasDbXref "ENSEMBL:ENSG00000000000" .`)
}

func TestFailOpen(t *testing.T) {
	s, _ := ensemblStore(10)
	var u updates
	norm := &normalizer{}
	p := newPipeline(t, s, &u, norm, Config{})

	run, err := p.Run(context.Background(), UnifyGenes)
	require.NoError(t, err)
	assert.Equal(t, 10, run.Discovered)
	assert.Equal(t, 0, run.Normalized)
	assert.Equal(t, 0, run.Batches)
	assert.Empty(t, u.bodies)

	// Nothing discovered.
	norm = &normalizer{}
	p = newPipeline(t, store(nil), &u, norm, Config{})
	run, err = p.Run(context.Background(), UnifyGenes)
	require.NoError(t, err)
	assert.Equal(t, 0, run.Discovered)
	assert.Empty(t, norm.calls)
	assert.Empty(t, u.bodies)
}

func TestNormalizationServiceFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	s, _ := ensemblStore(3)
	var u updates
	p := newPipeline(t, s, &u, nodenorm.NewClient(srv.URL, nodenorm.WithLogger(discard)), Config{})
	run, err := p.Run(context.Background(), UnifyGenes)
	require.NoError(t, err)
	assert.Equal(t, 3, run.Discovered)
	assert.Equal(t, 0, run.Normalized)
	assert.Empty(t, u.bodies)
}

var errRejected = errors.New("rejected")

func TestUpdateFailures(t *testing.T) {
	s, mapping := ensemblStore(30)
	norm := &normalizer{mapping: mapping}

	u := &updates{fail: func(n int) error {
		if n == 1 {
			return errRejected
		}
		return nil
	}}
	p := newPipeline(t, s, u, norm, Config{UpdateBatchSize: 10})
	run, err := p.Run(context.Background(), UnifyGenes)
	require.NoError(t, err)
	assert.Equal(t, 3, run.Batches)
	assert.Equal(t, 1, run.Failed)
	assert.Len(t, u.bodies, 3)

	u = &updates{fail: func(int) error { return errRejected }}
	p = newPipeline(t, s, u, norm, Config{UpdateBatchSize: 10, Strict: true})
	run, err = p.Run(context.Background(), UnifyGenes)
	assert.ErrorIs(t, err, errRejected)
	assert.Equal(t, 1, run.Batches)
	assert.Equal(t, 1, run.Failed)
	assert.Len(t, u.bodies, 1)
}

func TestRewriteSkipped(t *testing.T) {
	s := store{
		"http://identifiers.org/ensembl/ENSG00000163586",
		"http://identifiers.org/ensembl/ENSG00000121410",
	}
	norm := &normalizer{mapping: map[string][]string{
		"ENSEMBL:ENSG00000163586": {"NCBIGene:2168"},
		"ENSEMBL:ENSG00000121410": {"HGNC:5"},
	}}
	var u updates
	p := newPipeline(t, s, &u, norm, Config{})
	run, err := p.Run(context.Background(), UnifyGenes)
	require.NoError(t, err)
	assert.Equal(t, 1, run.Skipped)
	assert.Equal(t, 1, run.Statements)
	require.Len(t, u.bodies, 1)
	assert.Contains(t, u.bodies[0], "ENSEMBL:ENSG00000163586 ?p ?o .")
	assert.NotContains(t, u.bodies[0], "ENSG00000121410")
}

func TestCancelled(t *testing.T) {
	s, mapping := ensemblStore(5)
	var u updates
	p := newPipeline(t, s, &u, &normalizer{mapping: mapping}, Config{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Run(ctx, UnifyGenes)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, u.bodies)
}

func TestInvalidJob(t *testing.T) {
	p := newPipeline(t, store(nil), &updates{}, &normalizer{}, Config{})
	for _, job := range []Job{
		{Name: "source", Mode: Rewrite, Source: "hgnc"},
		{Name: "target", Mode: Link, Source: "uniprot", Targets: []string{"hgnc"}},
		{Name: "mode", Mode: Mode(9)},
		SwapPR,
	} {
		_, err := p.Run(context.Background(), job)
		assert.Error(t, err, job.Name)
	}

	_, err := New(store(nil), &updates{}, &normalizer{}, Config{UpdateBatchSize: 1})
	assert.Error(t, err)
}

func TestCollisions(t *testing.T) {
	merged, chained := collisions(map[string][]string{
		"ENSEMBL:A": {"NCBIGene:1"},
		"ENSEMBL:B": {"NCBIGene:1", "NCBIGene:2"},
		"ENSEMBL:C": {"ENSEMBL:A"},
		"ENSEMBL:D": {"NCBIGene:4"},
		"ENSEMBL:E": nil,
	})
	assert.Equal(t, []string{"NCBIGene:1"}, merged)
	assert.Equal(t, []string{"ENSEMBL:A"}, chained)
}

func TestChunks(t *testing.T) {
	for _, test := range []struct {
		n    int
		size int
		want []int
	}{
		{n: 0, size: 3, want: nil},
		{n: 3, size: 3, want: []int{3}},
		{n: 7, size: 3, want: []int{3, 3, 1}},
		{n: 2, size: 1000, want: []int{2}},
	} {
		s := make([]int, test.n)
		var got []int
		for _, c := range chunks(s, test.size) {
			got = append(got, len(c))
		}
		assert.Equal(t, test.want, got, "n=%d size=%d", test.n, test.size)
	}
}

func TestJobs(t *testing.T) {
	var names []string
	for _, j := range Jobs() {
		names = append(names, j.Name)
	}
	assert.Equal(t, []string{"swap-pr", "link-ensembl", "unify-genes"}, names)

	j, ok := JobNamed("link-genes")
	assert.True(t, ok)
	assert.Equal(t, Link, j.Mode)
	_, ok = JobNamed("unknown")
	assert.False(t, ok)
}
