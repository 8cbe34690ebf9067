// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package sparql implements a minimal SPARQL 1.1 protocol client for
// SELECT queries and UPDATE requests, and a typed builder for the update
// operations used to rewrite identifier nodes in a triplestore.
//
// Terms in generated requests are constructed with the gonum rdf package,
// so IRIs are validated and literal text is escaped before it reaches the
// request body. The builder is not a general SPARQL serializer.
package sparql // import "github.com/obask/kgmapper/internal/sparql"
