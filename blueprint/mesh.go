// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package blueprint

import (
	"fmt"
	"strings"

	"github.com/grailbio/base/errors"
)

// domainKeys are the top-level entries that mark a node as a single
// mesh domain rather than a collection of domains.
var domainKeys = []string{"state", "fields", "coordsets", "topologies"}

// IsDomain tells whether n describes a single mesh domain.
func IsDomain(n *Node) bool {
	if n == nil || n.kind != Object {
		return false
	}
	for _, key := range domainKeys {
		if n.lookup(key) != nil {
			return true
		}
	}
	return false
}

// Domains returns the mesh domains described by n: n itself if it is a
// domain, otherwise each child of n that is a domain. A nil or empty
// node has no domains.
func Domains(n *Node) []*Node {
	if n == nil {
		return nil
	}
	if IsDomain(n) {
		return []*Node{n}
	}
	var domains []*Node
	for _, child := range n.children {
		if IsDomain(child) {
			domains = append(domains, child)
		}
	}
	return domains
}

// Multi returns a list node whose children are the domains of each
// of the provided nodes, in order. The domains are shared, not copied.
func Multi(nodes ...*Node) *Node {
	m := &Node{kind: List}
	for _, n := range nodes {
		m.children = append(m.children, Domains(n)...)
	}
	return m
}

// Field returns the values of the named field of a domain, read from
// "fields/<name>/values". An error of kind errors.NotExist naming the
// domain's known fields is returned if the field is absent.
// Multi-component fields are rejected with errors.Invalid.
func Field(domain *Node, name string) ([]float64, error) {
	field, err := domain.Fetch("fields/" + name)
	if err != nil {
		var known []string
		if fields, err := domain.Fetch("fields"); err == nil {
			known = fields.Names()
		}
		return nil, errors.E(errors.NotExist,
			fmt.Sprintf("blueprint: domain does not contain field %q; known = [%s]", name, strings.Join(known, " ")))
	}
	values, err := field.Fetch("values")
	if err != nil {
		return nil, errors.E(errors.NotExist, fmt.Sprintf("blueprint: field %q has no values", name))
	}
	if values.kind != Leaf {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("blueprint: field %q is not a scalar field", name))
	}
	return values.Float64s()
}

// State returns the simulation cycle and the domain id recorded under
// "state/cycle" and "state/domain_id". Missing entries read as zero.
func State(domain *Node) (cycle, domainID int64, err error) {
	if n, ferr := domain.Fetch("state/cycle"); ferr == nil {
		if cycle, err = n.Int64(); err != nil {
			return
		}
	}
	if n, ferr := domain.Fetch("state/domain_id"); ferr == nil {
		if domainID, err = n.Int64(); err != nil {
			return
		}
	}
	return
}
