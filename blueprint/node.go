// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package blueprint implements the small part of the hierarchical,
// path-addressable data model that in-situ extracts consume. A Node is
// either empty, an object with ordered named children, a list of
// children, or a leaf holding a scalar or a numeric array. Paths are
// slash separated ("fields/energy/values"); a numeric path element
// indexes into a list.
//
// Simulation codes publish one node per time step. It may describe a
// single mesh domain or a list (or object) of domains; see Domains.
package blueprint

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
)

// Kind is the kind of a Node.
type Kind int

const (
	// Empty nodes carry neither children nor a value.
	Empty Kind = iota
	// Object nodes carry named children in insertion order.
	Object
	// List nodes carry unnamed children.
	List
	// Leaf nodes carry a value.
	Leaf
)

// String returns the kind's name.
func (k Kind) String() string {
	switch k {
	case Empty:
		return "empty"
	case Object:
		return "object"
	case List:
		return "list"
	case Leaf:
		return "leaf"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// A Node is a vertex in a data tree. The zero Node is empty and ready
// to use. Nodes are not safe for concurrent mutation.
type Node struct {
	kind     Kind
	names    []string
	children []*Node
	value    interface{}
}

// NewNode returns a new, empty node.
func NewNode() *Node {
	return new(Node)
}

// Kind returns the node's kind.
func (n *Node) Kind() Kind {
	return n.kind
}

// Len returns the number of children of an object or list node.
func (n *Node) Len() int {
	return len(n.children)
}

// Index returns the i'th child of an object or list node.
func (n *Node) Index(i int) *Node {
	return n.children[i]
}

// Names returns the names of an object node's children, in order.
func (n *Node) Names() []string {
	if n.kind != Object {
		return nil
	}
	names := make([]string, len(n.names))
	copy(names, n.names)
	return names
}

// Has tells whether path resolves to a node.
func (n *Node) Has(path string) bool {
	_, err := n.Fetch(path)
	return err == nil
}

// Fetch returns the node at the provided path. Fetch returns an
// error of kind errors.NotExist if any element of the path is
// missing.
func (n *Node) Fetch(path string) (*Node, error) {
	cur := n
	for _, elem := range split(path) {
		next := cur.lookup(elem)
		if next == nil {
			return nil, errors.E(errors.NotExist, fmt.Sprintf("blueprint: path %q: no element %q", path, elem))
		}
		cur = next
	}
	return cur, nil
}

// Child returns the node at the provided path, creating any missing
// object nodes along the way. Leaf or empty nodes on the path are
// turned into objects, discarding their values. List elements must be
// addressed by an existing index; Child panics otherwise.
func (n *Node) Child(path string) *Node {
	cur := n
	for _, elem := range split(path) {
		if next := cur.lookup(elem); next != nil {
			cur = next
			continue
		}
		if cur.kind == List {
			log.Panicf("blueprint: path %q: %q is not an index into a list of %d", path, elem, len(cur.children))
		}
		if cur.kind != Object {
			cur.reset(Object)
		}
		next := new(Node)
		cur.names = append(cur.names, elem)
		cur.children = append(cur.children, next)
		cur = next
	}
	return cur
}

// Set sets the value of the node at path, creating it if necessary.
// See SetValue for the accepted types.
func (n *Node) Set(path string, v interface{}) {
	n.Child(path).SetValue(v)
}

// SetValue turns n into a leaf holding v. Integers are stored as
// int64, floating point numbers as float64, and numeric slices as
// []int64 or []float64. A *Node value replaces n with a copy of that
// node. SetValue panics on any other type.
func (n *Node) SetValue(v interface{}) {
	switch v := v.(type) {
	case *Node:
		*n = *v.Copy()
		return
	case nil:
		n.reset(Empty)
		return
	}
	val, ok := normalize(v)
	if !ok {
		log.Panicf("blueprint: unsupported value type %T", v)
	}
	n.reset(Leaf)
	n.value = val
}

// Append appends a new empty child to a list node and returns it.
// Empty and leaf nodes are first turned into lists.
func (n *Node) Append() *Node {
	if n.kind != List {
		n.reset(List)
	}
	child := new(Node)
	n.children = append(n.children, child)
	return child
}

// Value returns the value of a leaf node, or nil.
func (n *Node) Value() interface{} {
	if n.kind != Leaf {
		return nil
	}
	return n.value
}

// Float64s returns the numeric contents of a leaf node as a
// []float64. Integer arrays are widened into a fresh slice; a float64
// array is returned without copying and must be treated as read-only.
// Scalars are returned as a single-element slice.
func (n *Node) Float64s() ([]float64, error) {
	switch v := n.Value().(type) {
	case []float64:
		return v, nil
	case []int64:
		f := make([]float64, len(v))
		for i := range v {
			f[i] = float64(v[i])
		}
		return f, nil
	case float64:
		return []float64{v}, nil
	case int64:
		return []float64{float64(v)}, nil
	}
	return nil, errors.E(errors.Invalid, fmt.Sprintf("blueprint: %s node is not numeric", n.describe()))
}

// Int64 returns the integer value of a leaf node. Floating point
// values are accepted when they are integral.
func (n *Node) Int64() (int64, error) {
	switch v := n.Value().(type) {
	case int64:
		return v, nil
	case float64:
		if i := int64(v); float64(i) == v {
			return i, nil
		}
	}
	return 0, errors.E(errors.Invalid, fmt.Sprintf("blueprint: %s node is not an integer", n.describe()))
}

// Float64 returns the scalar numeric value of a leaf node.
func (n *Node) Float64() (float64, error) {
	switch v := n.Value().(type) {
	case float64:
		return v, nil
	case int64:
		return float64(v), nil
	}
	return 0, errors.E(errors.Invalid, fmt.Sprintf("blueprint: %s node is not a number", n.describe()))
}

// Str returns the string value of a leaf node.
func (n *Node) Str() (string, error) {
	if s, ok := n.Value().(string); ok {
		return s, nil
	}
	return "", errors.E(errors.Invalid, fmt.Sprintf("blueprint: %s node is not a string", n.describe()))
}

// Copy returns a deep copy of n.
func (n *Node) Copy() *Node {
	c := &Node{kind: n.kind}
	if n.names != nil {
		c.names = append([]string(nil), n.names...)
	}
	for _, child := range n.children {
		c.children = append(c.children, child.Copy())
	}
	switch v := n.value.(type) {
	case []float64:
		c.value = append([]float64(nil), v...)
	case []int64:
		c.value = append([]int64(nil), v...)
	default:
		c.value = v
	}
	return c
}

func (n *Node) lookup(elem string) *Node {
	switch n.kind {
	case Object:
		for i, name := range n.names {
			if name == elem {
				return n.children[i]
			}
		}
	case List:
		i, err := strconv.Atoi(elem)
		if err == nil && i >= 0 && i < len(n.children) {
			return n.children[i]
		}
	}
	return nil
}

func (n *Node) reset(kind Kind) {
	n.kind = kind
	n.names = nil
	n.children = nil
	n.value = nil
}

func (n *Node) describe() string {
	if n.kind == Leaf {
		return fmt.Sprintf("%T", n.value)
	}
	return n.kind.String()
}

func split(path string) []string {
	var elems []string
	for _, elem := range strings.Split(path, "/") {
		if elem != "" {
			elems = append(elems, elem)
		}
	}
	return elems
}

func normalize(v interface{}) (interface{}, bool) {
	switch v := v.(type) {
	case string, bool, int64, float64, []float64, []int64:
		return v, true
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case uint32:
		return int64(v), true
	case float32:
		return float64(v), true
	case []int:
		out := make([]int64, len(v))
		for i := range v {
			out[i] = int64(v[i])
		}
		return out, true
	case []int32:
		out := make([]int64, len(v))
		for i := range v {
			out[i] = int64(v[i])
		}
		return out, true
	case []float32:
		out := make([]float64, len(v))
		for i := range v {
			out[i] = float64(v[i])
		}
		return out, true
	}
	return nil, false
}
