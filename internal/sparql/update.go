// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sparql

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"gonum.org/v1/gonum/graph/formats/rdf"

	"github.com/obask/kgmapper/internal/curie"
)

// Predicates and ontology prefixes used in generated updates.
const (
	HasDbXref       = "http://www.geneontology.org/formats/oboInOwl#hasDbXref"
	EquivalentClass = "http://www.w3.org/2002/07/owl#equivalentClass"
	SameAs          = "http://www.w3.org/2002/07/owl#sameAs"

	// Produces is RO:0003000, gene produces gene product.
	Produces = "http://purl.obolibrary.org/obo/RO_0003000"
)

// Prefix is a SPARQL PREFIX declaration.
type Prefix struct {
	Name string
	IRI  string
}

// Ontology prefixes declared in every request built by a Builder.
var (
	PR  = Prefix{Name: "PR", IRI: "http://purl.obolibrary.org/obo/PR_"}
	RO  = Prefix{Name: "RO", IRI: "http://purl.obolibrary.org/obo/RO_"}
	OIO = Prefix{Name: "oio", IRI: "http://www.geneontology.org/formats/oboInOwl#"}
	OWL = Prefix{Name: "owl", IRI: "http://www.w3.org/2002/07/owl#"}
)

// Node is a rendered SPARQL term or variable.
type Node string

// Var returns a variable node.
func Var(name string) Node {
	return Node("?" + name)
}

// badIRIChars are the characters excluded from IRIREF by the SPARQL grammar.
const badIRIChars = " <>\"{}|^`\\"

// IRI returns a node for a full IRI. It is an error for the IRI to contain
// characters that would terminate or corrupt an IRI reference.
func IRI(iri string) (Node, error) {
	if iri == "" {
		return "", fmt.Errorf("sparql: empty IRI")
	}
	if strings.ContainsAny(iri, badIRIChars) || strings.IndexFunc(iri, func(r rune) bool { return r < 0x20 }) >= 0 {
		return "", fmt.Errorf("sparql: invalid IRI %q", iri)
	}
	t, err := rdf.NewIRITerm(iri)
	if err != nil {
		return "", fmt.Errorf("sparql: invalid IRI %q: %w", iri, err)
	}
	return Node(t.Value), nil
}

// Literal returns a node for a plain string literal with its text escaped.
func Literal(text string) (Node, error) {
	t, err := rdf.NewLiteralTerm(text, "")
	if err != nil {
		return "", fmt.Errorf("sparql: invalid literal %q: %w", text, err)
	}
	return Node(t.Value), nil
}

// Pattern is a single triple pattern.
type Pattern struct {
	Subject, Predicate, Object Node
}

func (p Pattern) String() string {
	return fmt.Sprintf("%s %s %s .", p.Subject, p.Predicate, p.Object)
}

// Operation is a single SPARQL update operation.
type Operation interface {
	fmt.Stringer
}

// Modify is a DELETE/INSERT/WHERE operation. Each element of Where is a
// group graph pattern; more than one group is joined with UNION.
type Modify struct {
	Delete []Pattern
	Insert []Pattern
	Where  [][]Pattern
}

func (m Modify) String() string {
	var buf strings.Builder
	if len(m.Delete) != 0 {
		buf.WriteString("DELETE {\n")
		writePatterns(&buf, "  ", m.Delete)
		buf.WriteString("}\n")
	}
	if len(m.Insert) != 0 {
		buf.WriteString("INSERT {\n")
		writePatterns(&buf, "  ", m.Insert)
		buf.WriteString("}\n")
	}
	buf.WriteString("WHERE {\n")
	switch len(m.Where) {
	case 0:
	case 1:
		writePatterns(&buf, "  ", m.Where[0])
	default:
		for i, g := range m.Where {
			if i != 0 {
				buf.WriteString("  UNION\n")
			}
			buf.WriteString("  {\n")
			writePatterns(&buf, "    ", g)
			buf.WriteString("  }\n")
		}
	}
	buf.WriteString("}")
	return buf.String()
}

func writePatterns(buf *strings.Builder, indent string, patterns []Pattern) {
	for _, p := range patterns {
		buf.WriteString(indent)
		buf.WriteString(p.String())
		buf.WriteByte('\n')
	}
}

// InsertData is an INSERT DATA operation over ground statements.
type InsertData struct {
	Statements []*rdf.Statement
}

func (d InsertData) String() string {
	var buf strings.Builder
	buf.WriteString("INSERT DATA {\n")
	for _, s := range d.Statements {
		buf.WriteString("  ")
		buf.WriteString(s.String())
		buf.WriteByte('\n')
	}
	buf.WriteString("}")
	return buf.String()
}

// Rewrite returns the operation that moves every triple mentioning source,
// as subject or as object, onto primary and records each of xrefs as a
// cross-reference of primary with the predicate pred.
func Rewrite(source, primary, pred Node, xrefs ...Node) Modify {
	m := Modify{
		Delete: []Pattern{
			{source, Var("p"), Var("o")},
			{Var("s2"), Var("p2"), source},
		},
		Insert: []Pattern{
			{primary, Var("p"), Var("o")},
			{Var("s2"), Var("p2"), primary},
		},
		Where: [][]Pattern{
			{{source, Var("p"), Var("o")}},
			{{Var("s2"), Var("p2"), source}},
		},
	}
	for _, x := range xrefs {
		m.Insert = append(m.Insert, Pattern{primary, pred, x})
	}
	return m
}

// Rename returns the operation that moves every triple with from as its
// subject onto to.
func Rename(from, to Node) Modify {
	return Modify{
		Delete: []Pattern{{from, Var("p"), Var("o")}},
		Insert: []Pattern{{to, Var("p"), Var("o")}},
		Where:  [][]Pattern{{{from, Var("p"), Var("o")}}},
	}
}

// Replace returns the operation that replaces the object old of the
// subject and predicate pred with new.
func Replace(subject, pred, old, new Node) Modify {
	return Modify{
		Delete: []Pattern{{subject, pred, old}},
		Insert: []Pattern{{subject, pred, new}},
		Where:  [][]Pattern{{{subject, pred, old}}},
	}
}

// Request is a compound update request.
type Request struct {
	Prefixes   []Prefix
	Operations []Operation
}

// Len returns the number of operations in the request.
func (r *Request) Len() int {
	return len(r.Operations)
}

// String returns the request body. The prefix declarations are written
// once and operations are separated by semicolons.
func (r *Request) String() string {
	var buf strings.Builder
	for _, p := range r.Prefixes {
		fmt.Fprintf(&buf, "PREFIX %s: <%s>\n", p.Name, p.IRI)
	}
	if len(r.Prefixes) != 0 {
		buf.WriteByte('\n')
	}
	for i, op := range r.Operations {
		if i != 0 {
			buf.WriteString(" ;\n")
		}
		buf.WriteString(op.String())
	}
	buf.WriteByte('\n')
	return buf.String()
}

// safeLocal matches local parts that can be written as a prefixed name
// without escaping.
var safeLocal = regexp.MustCompile(`^[A-Za-z0-9_]([A-Za-z0-9_.-]*[A-Za-z0-9_-])?$`)

// Builder builds update requests for identifier CURIEs.
type Builder struct {
	registry *curie.Registry
	prefixes []Prefix
	xref     Node
	dbXref   Node
}

// NewBuilder returns a Builder that expands CURIEs with reg and records
// provenance with the predicate IRI xref. The registry namespaces and the
// PR, RO, oio and owl ontology prefixes are declared in each request.
func NewBuilder(reg *curie.Registry, xref string) (*Builder, error) {
	pred, err := IRI(xref)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var prefixes []Prefix
	for _, ns := range reg.Namespaces() {
		seen[ns.Prefix] = true
		prefixes = append(prefixes, Prefix{Name: ns.Prefix, IRI: ns.IRI})
	}
	for _, p := range []Prefix{PR, RO, OIO, OWL} {
		if seen[p.Name] {
			continue
		}
		prefixes = append(prefixes, p)
	}
	sort.Slice(prefixes, func(i, j int) bool { return prefixes[i].Name < prefixes[j].Name })
	b := &Builder{registry: reg, prefixes: prefixes}
	b.xref = b.compact(xref, pred)
	b.dbXref, err = b.IRINode(HasDbXref)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// Node returns the node for a CURIE with a registered prefix. It is
// written in prefixed form when the local part allows it.
func (b *Builder) Node(c string) (Node, error) {
	iri, ok := b.registry.URI(c)
	if !ok {
		return "", fmt.Errorf("sparql: unregistered CURIE %q", c)
	}
	n, err := IRI(iri)
	if err != nil {
		return "", err
	}
	return b.compact(iri, n), nil
}

// IRINode returns the node for a full IRI, written in prefixed form when
// the IRI is within a declared prefix.
func (b *Builder) IRINode(iri string) (Node, error) {
	n, err := IRI(iri)
	if err != nil {
		return "", err
	}
	return b.compact(iri, n), nil
}

func (b *Builder) compact(iri string, n Node) Node {
	best := -1
	for i, p := range b.prefixes {
		if !strings.HasPrefix(iri, p.IRI) {
			continue
		}
		if best < 0 || len(p.IRI) > len(b.prefixes[best].IRI) {
			best = i
		}
	}
	if best < 0 {
		return n
	}
	local := strings.TrimPrefix(iri, b.prefixes[best].IRI)
	if !safeLocal.MatchString(local) {
		return n
	}
	return Node(b.prefixes[best].Name + ":" + local)
}

// Term returns the rdf.Term for a CURIE with a registered prefix.
func (b *Builder) Term(c string) (rdf.Term, error) {
	iri, ok := b.registry.URI(c)
	if !ok {
		return rdf.Term{}, fmt.Errorf("sparql: unregistered CURIE %q", c)
	}
	if _, err := IRI(iri); err != nil {
		return rdf.Term{}, err
	}
	return rdf.NewIRITerm(iri)
}

// Rewrites returns a request holding one Rewrite operation for each
// source in mapping, in lexical order of source. The first target of each
// source is the primary; the source and every remaining target are
// recorded as cross-references of the primary. Sources with no targets,
// or with identifiers that cannot be expressed, are returned in skipped.
func (b *Builder) Rewrites(mapping map[string][]string) (req *Request, skipped []string) {
	sources := make([]string, 0, len(mapping))
	for s := range mapping {
		sources = append(sources, s)
	}
	sort.Strings(sources)

	req = &Request{Prefixes: b.prefixes}
	for _, src := range sources {
		op, err := b.rewrite(src, mapping[src])
		if err != nil {
			skipped = append(skipped, src)
			continue
		}
		req.Operations = append(req.Operations, op)
	}
	return req, skipped
}

func (b *Builder) rewrite(source string, targets []string) (Operation, error) {
	if len(targets) == 0 {
		return nil, fmt.Errorf("sparql: no targets for %q", source)
	}
	s, err := b.Node(source)
	if err != nil {
		return nil, err
	}
	p, err := b.Node(targets[0])
	if err != nil {
		return nil, err
	}
	xrefs := make([]Node, 0, len(targets))
	for _, x := range append([]string{source}, targets[1:]...) {
		l, err := Literal(x)
		if err != nil {
			return nil, err
		}
		xrefs = append(xrefs, l)
	}
	return Rewrite(s, p, b.xref, xrefs...), nil
}

// Link is a statement linking two CURIEs with a predicate IRI.
type Link struct {
	Subject   string
	Predicate string
	Object    string
}

// Links returns a request holding a single INSERT DATA operation for the
// provided links. Links that cannot be expressed are returned in skipped.
func (b *Builder) Links(links []Link) (req *Request, skipped []Link) {
	var data InsertData
	for _, l := range links {
		s, err := b.Term(l.Subject)
		if err != nil {
			skipped = append(skipped, l)
			continue
		}
		p, err := rdf.NewIRITerm(l.Predicate)
		if err != nil {
			skipped = append(skipped, l)
			continue
		}
		o, err := b.Term(l.Object)
		if err != nil {
			skipped = append(skipped, l)
			continue
		}
		data.Statements = append(data.Statements, &rdf.Statement{Subject: s, Predicate: p, Object: o})
	}
	req = &Request{Prefixes: b.prefixes}
	if len(data.Statements) != 0 {
		req.Operations = []Operation{data}
	}
	return req, skipped
}

// Swap is a pair of a full term IRI and the CURIE that replaces it.
type Swap struct {
	IRI   string
	CURIE string
}

// Swaps returns a request renaming each IRI to its CURIE and replacing
// the self-referencing oio:hasDbXref literal on the renamed node with
// a reference to the old identifier. The replacement literal is derived
// from the old IRI by compaction with the registry. Pairs that cannot be
// expressed are returned in skipped.
func (b *Builder) Swaps(swaps []Swap) (req *Request, skipped []Swap) {
	req = &Request{Prefixes: b.prefixes}
	for _, sw := range swaps {
		ops, err := b.swap(sw)
		if err != nil {
			skipped = append(skipped, sw)
			continue
		}
		req.Operations = append(req.Operations, ops...)
	}
	return req, skipped
}

func (b *Builder) swap(sw Swap) ([]Operation, error) {
	from, err := b.IRINode(sw.IRI)
	if err != nil {
		return nil, err
	}
	to, err := b.Node(sw.CURIE)
	if err != nil {
		return nil, err
	}
	old, err := Literal(sw.CURIE)
	if err != nil {
		return nil, err
	}
	id, ok := b.registry.CURIE(sw.IRI)
	if !ok {
		return nil, fmt.Errorf("sparql: cannot compact %q", sw.IRI)
	}
	new, err := Literal(id)
	if err != nil {
		return nil, err
	}
	return []Operation{
		Rename(from, to),
		Replace(to, b.dbXref, old, new),
	}, nil
}
