// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package owl

import (
	"encoding/xml"
	"strings"

	"gonum.org/v1/gonum/graph/formats/rdf"
)

// This file contains the logic required to unmarshal owl:Class elements
// and map them to RDF N-Triples. Existential restrictions are collapsed to
// a single statement from the class to the restriction filler, in the
// manner of the Ubergraph nonredundant graph.

// Predicate and class IRIs emitted by the decoder.
const (
	Type       = "http://www.w3.org/1999/02/22-rdf-syntax-ns#type"
	Label      = "http://www.w3.org/2000/01/rdf-schema#label"
	SubClassOf = "http://www.w3.org/2000/01/rdf-schema#subClassOf"
	Class      = "http://www.w3.org/2002/07/owl#Class"
	Deprecated = "http://www.w3.org/2002/07/owl#deprecated"
	HasDbXref  = "http://www.geneontology.org/formats/oboInOwl#hasDbXref"

	// OnlyInTaxon is the RO relation used by PR
	// to restrict a class to an organism.
	OnlyInTaxon = "http://purl.obolibrary.org/obo/RO_0002160"
)

var (
	rdfType     = mustTerm(rdf.NewIRITerm(Type))
	rdfsLabel   = mustTerm(rdf.NewIRITerm(Label))
	rdfsSubCls  = mustTerm(rdf.NewIRITerm(SubClassOf))
	owlClass    = mustTerm(rdf.NewIRITerm(Class))
	owlDeprec   = mustTerm(rdf.NewIRITerm(Deprecated))
	oboDbXref   = mustTerm(rdf.NewIRITerm(HasDbXref))
	trueLiteral = mustTerm(rdf.NewLiteralTerm("true", "http://www.w3.org/2001/XMLSchema#boolean"))
)

type class struct {
	XMLName xml.Name

	About string `xml:"about,attr"`

	Label      []rdfDataType `xml:"label"`
	HasDbXref  []rdfDataType `xml:"hasDbXref"`
	Deprecated []rdfDataType `xml:"deprecated"`
	SubClassOf []subClassOf  `xml:"subClassOf"`
}

func (c class) collect(dst []*rdf.Statement) []*rdf.Statement {
	if strings.TrimSpace(c.About) == "" {
		// Anonymous class expressions are not
		// addressable by identifier.
		return dst
	}
	subj := mustTerm(rdf.NewIRITerm(c.About))
	dst = append(dst, &rdf.Statement{Subject: subj, Predicate: rdfType, Object: owlClass})

	for _, l := range c.Label {
		if obj, ok := l.literal(); ok {
			dst = append(dst, &rdf.Statement{Subject: subj, Predicate: rdfsLabel, Object: obj})
		}
	}
	for _, x := range c.HasDbXref {
		if obj, ok := x.literal(); ok {
			dst = append(dst, &rdf.Statement{Subject: subj, Predicate: oboDbXref, Object: obj})
		}
	}
	for _, d := range c.Deprecated {
		if strings.TrimSpace(d.Text) == "true" {
			dst = append(dst, &rdf.Statement{Subject: subj, Predicate: owlDeprec, Object: trueLiteral})
		}
	}
	for _, s := range c.SubClassOf {
		dst = s.collect(dst, subj)
	}
	return dst
}

type subClassOf struct {
	Resource    string        `xml:"resource,attr"`
	Restriction []restriction `xml:"Restriction"`
}

func (s subClassOf) collect(dst []*rdf.Statement, subj rdf.Term) []*rdf.Statement {
	if s.Resource != "" {
		obj := mustTerm(rdf.NewIRITerm(s.Resource))
		dst = append(dst, &rdf.Statement{Subject: subj, Predicate: rdfsSubCls, Object: obj})
	}
	for _, r := range s.Restriction {
		if r.OnProperty.Resource == "" || r.SomeValuesFrom.Resource == "" {
			continue
		}
		pred := mustTerm(rdf.NewIRITerm(r.OnProperty.Resource))
		obj := mustTerm(rdf.NewIRITerm(r.SomeValuesFrom.Resource))
		dst = append(dst, &rdf.Statement{Subject: subj, Predicate: pred, Object: obj})
	}
	return dst
}

type restriction struct {
	OnProperty     rdfDataType `xml:"onProperty"`
	SomeValuesFrom rdfDataType `xml:"someValuesFrom"`
}

type rdfDataType struct {
	Resource string `xml:"resource,attr"`
	Text     string `xml:",chardata"`
	Datatype string `xml:"datatype,attr"`
}

// literal returns the literal term for the element's text. Elements
// holding a resource reference or no text are not literals.
func (r rdfDataType) literal() (rdf.Term, bool) {
	if r.Resource != "" || strings.TrimSpace(r.Text) == "" {
		return rdf.Term{}, false
	}
	return mustTerm(rdf.NewLiteralTerm(r.Text, r.Datatype)), true
}

func mustTerm(t rdf.Term, err error) rdf.Term {
	if err != nil {
		panic(err)
	}
	return t
}
