// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package unify

import (
	"sort"
	"strings"

	"gonum.org/v1/gonum/graph/formats/rdf"

	"github.com/kortschak/gogo"
)

const unifies = "<local:unifies>"

// collisions returns the primary targets of mapping that are claimed by
// more than one source, and the primary targets that are themselves
// sources of the mapping. Rewrites involving either are order dependent.
func collisions(mapping map[string][]string) (merged, chained []string) {
	g := gogo.NewGraph()
	for src, targets := range mapping {
		if len(targets) == 0 {
			continue
		}
		g.AddStatement(&rdf.Statement{
			Subject:   rdf.Term{Value: "<" + src + ">"},
			Predicate: rdf.Term{Value: unifies},
			Object:    rdf.Term{Value: "<" + targets[0] + ">"},
		})
	}

	isUnify := func(s *rdf.Statement) bool {
		return s.Predicate.Value == unifies
	}
	nodes := g.Nodes()
	for nodes.Next() {
		target := nodes.Node().(rdf.Term)
		claims := g.Query(target).In(isUnify).Result()
		if len(claims) == 0 {
			continue
		}
		id := strings.TrimSuffix(strings.TrimPrefix(target.Value, "<"), ">")
		if len(claims) > 1 {
			merged = append(merged, id)
		}
		if len(g.Query(target).Out(isUnify).Result()) != 0 {
			chained = append(chained, id)
		}
	}
	sort.Strings(merged)
	sort.Strings(chained)
	return merged, chained
}
