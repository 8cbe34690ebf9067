// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package curie translates between full identifier IRIs and compact
// prefix:local identifiers for a fixed registry of namespaces.
package curie // import "github.com/obask/kgmapper/internal/curie"
