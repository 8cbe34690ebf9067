// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package owl

import (
	"encoding/xml"
	"io"

	"gonum.org/v1/gonum/graph/formats/rdf"
)

// Decoder is an OBO in OWL class decoder. rdf.Statements returned by
// calls to the Unmarshal method have their Terms' UID fields set so that
// unique terms will have unique IDs. Term UIDs are based from 1 to allow
// RDF-aware client graphs to assign ID if no ID has been assigned.
//
// Elements other than top-level owl:Class declarations are skipped.
type Decoder struct {
	xml  *xml.Decoder
	root bool

	strings map[string]string
	ids     map[string]int64

	curr int
	buf  []*rdf.Statement
	seen map[[3]int64]bool
}

// NewDecoder returns a new Decoder that takes input from r.
func NewDecoder(r io.Reader) (*Decoder, error) {
	dec := &Decoder{
		xml:     xml.NewDecoder(r),
		strings: make(map[string]string),
		ids:     make(map[string]int64),
		seen:    make(map[[3]int64]bool),
	}
	for !dec.root {
		err := dec.fillBuffer()
		if err != nil {
			return nil, err
		}
	}
	return dec, nil
}

// Unmarshal returns the next unique statement from the input stream.
// It returns io.EOF when the stream is exhausted.
func (dec *Decoder) Unmarshal() (*rdf.Statement, error) {
	for {
		s, err := dec.next()
		if err != nil {
			return nil, err
		}
		key := [3]int64{
			dec.label(&s.Subject),
			dec.label(&s.Predicate),
			dec.label(&s.Object),
		}
		if dec.seen[key] {
			continue
		}
		dec.seen[key] = true
		return s, nil
	}
}

// next pops the next buffered statement, decoding more classes
// when the buffer is empty.
func (dec *Decoder) next() (*rdf.Statement, error) {
	for dec.curr == len(dec.buf) {
		dec.curr = 0
		dec.buf = dec.buf[:0]
		err := dec.fillBuffer()
		if err != nil {
			return nil, err
		}
	}
	s := dec.buf[dec.curr]
	dec.buf[dec.curr] = nil
	dec.curr++
	return s, nil
}

// label interns the value of t and sets its UID, returning the UID.
func (dec *Decoder) label(t *rdf.Term) int64 {
	if v, ok := dec.strings[t.Value]; ok {
		t.Value = v
	} else if t.Value != "" {
		dec.strings[t.Value] = t.Value
	}
	id, ok := dec.ids[t.Value]
	if !ok {
		id = int64(len(dec.ids)) + 1
		dec.ids[t.Value] = id
	}
	t.UID = id
	return id
}

func (dec *Decoder) fillBuffer() (err error) {
	defer func() {
		r := recover()
		switch r := r.(type) {
		case nil:
			return
		case error:
			err = r
		default:
			panic(r)
		}
	}()
	tok, err := dec.xml.Token()
	if err != nil {
		return err
	}
	start, ok := tok.(xml.StartElement)
	if !ok {
		return nil
	}
	switch start.Name.Local {
	case "RDF":
		dec.root = true

	case "Class":
		var c class
		err = dec.xml.DecodeElement(&c, &start)
		if err != nil {
			return err
		}
		dec.buf = c.collect(dec.buf)

	default:
		return dec.xml.Skip()
	}
	return nil
}
