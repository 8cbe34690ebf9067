// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package owl implements decoding the class declarations of an RDF/XML
// encoded OBO ontology such as the Protein Ontology. Only the parts of a
// class needed for identifier cross-referencing are decoded. It is not a
// complete RDF/XML parser implementation.
package owl // import "github.com/obask/kgmapper/internal/owl"
