// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package blueprint

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/grailbio/base/errors"
	"gopkg.in/yaml.v3"
)

// Decode reads a single JSON or YAML document from r.
func Decode(r io.Reader) (*Node, error) {
	n := new(Node)
	if err := yaml.NewDecoder(r).Decode(n); err != nil {
		if err == io.EOF {
			return n, nil
		}
		return nil, errors.E(errors.Invalid, "blueprint: decode", err)
	}
	return n, nil
}

// UnmarshalYAML implements yaml.Unmarshaler. Sequences of numbers
// become numeric array leaves: []int64 when every element is an
// integer, []float64 otherwise.
func (n *Node) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.DocumentNode:
		if len(value.Content) == 0 {
			n.reset(Empty)
			return nil
		}
		return n.UnmarshalYAML(value.Content[0])
	case yaml.AliasNode:
		return n.UnmarshalYAML(value.Alias)
	case yaml.MappingNode:
		n.reset(Object)
		for i := 0; i+1 < len(value.Content); i += 2 {
			child := new(Node)
			if err := child.UnmarshalYAML(value.Content[i+1]); err != nil {
				return err
			}
			n.names = append(n.names, value.Content[i].Value)
			n.children = append(n.children, child)
		}
		return nil
	case yaml.SequenceNode:
		if arr, ok := numericArray(value.Content); ok {
			n.reset(Leaf)
			n.value = arr
			return nil
		}
		n.reset(List)
		for _, item := range value.Content {
			child := new(Node)
			if err := child.UnmarshalYAML(item); err != nil {
				return err
			}
			n.children = append(n.children, child)
		}
		return nil
	case yaml.ScalarNode:
		return n.unmarshalScalar(value)
	}
	return fmt.Errorf("blueprint: line %d: unexpected YAML node kind %v", value.Line, value.Kind)
}

func (n *Node) unmarshalScalar(value *yaml.Node) error {
	var v interface{}
	switch value.ShortTag() {
	case "!!null":
		n.reset(Empty)
		return nil
	case "!!int":
		var i int64
		if err := value.Decode(&i); err != nil {
			return err
		}
		v = i
	case "!!float":
		var f float64
		if err := value.Decode(&f); err != nil {
			return err
		}
		v = f
	case "!!bool":
		var b bool
		if err := value.Decode(&b); err != nil {
			return err
		}
		v = b
	default:
		v = value.Value
	}
	n.reset(Leaf)
	n.value = v
	return nil
}

// numericArray returns the contents of a sequence of numeric scalars.
// Empty sequences decode as empty []float64 arrays.
func numericArray(items []*yaml.Node) (interface{}, bool) {
	var (
		ints    = make([]int64, 0, len(items))
		isFloat bool
	)
	for _, item := range items {
		if item.Kind != yaml.ScalarNode {
			return nil, false
		}
		switch item.ShortTag() {
		case "!!int":
			var i int64
			if err := item.Decode(&i); err != nil {
				return nil, false
			}
			ints = append(ints, i)
		case "!!float":
			isFloat = true
		default:
			return nil, false
		}
	}
	if !isFloat && len(items) > 0 {
		return ints, true
	}
	floats := make([]float64, len(items))
	for i, item := range items {
		if err := item.Decode(&floats[i]); err != nil {
			return nil, false
		}
	}
	return floats, true
}

// MarshalYAML implements yaml.Marshaler.
func (n *Node) MarshalYAML() (interface{}, error) {
	return n.yamlNode(), nil
}

func (n *Node) yamlNode() *yaml.Node {
	switch n.kind {
	case Object:
		y := &yaml.Node{Kind: yaml.MappingNode}
		for i, name := range n.names {
			key := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: name}
			y.Content = append(y.Content, key, n.children[i].yamlNode())
		}
		return y
	case List:
		y := &yaml.Node{Kind: yaml.SequenceNode}
		for _, child := range n.children {
			y.Content = append(y.Content, child.yamlNode())
		}
		return y
	case Leaf:
		switch v := n.value.(type) {
		case []float64:
			y := &yaml.Node{Kind: yaml.SequenceNode, Style: yaml.FlowStyle}
			for _, f := range v {
				y.Content = append(y.Content, yamlScalar("!!float", strconv.FormatFloat(f, 'g', -1, 64)))
			}
			return y
		case []int64:
			y := &yaml.Node{Kind: yaml.SequenceNode, Style: yaml.FlowStyle}
			for _, i := range v {
				y.Content = append(y.Content, yamlScalar("!!int", strconv.FormatInt(i, 10)))
			}
			return y
		case float64:
			return yamlScalar("!!float", yamlFloat(v))
		case int64:
			return yamlScalar("!!int", strconv.FormatInt(v, 10))
		case bool:
			return yamlScalar("!!bool", strconv.FormatBool(v))
		case string:
			return yamlScalar("!!str", v)
		}
	}
	return yamlScalar("!!null", "null")
}

func yamlScalar(tag, value string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: value}
}

func yamlFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return ".nan"
	case math.IsInf(f, 1):
		return ".inf"
	case math.IsInf(f, -1):
		return "-.inf"
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if _, err := strconv.ParseInt(s, 10, 64); err == nil {
		// Keep the float tag on round trips.
		s += ".0"
	}
	return s
}

// MarshalJSON implements json.Marshaler. Object children are written
// in insertion order.
func (n *Node) MarshalJSON() ([]byte, error) {
	var b bytes.Buffer
	if err := n.writeJSON(&b); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

func (n *Node) writeJSON(b *bytes.Buffer) error {
	switch n.kind {
	case Object:
		b.WriteByte('{')
		for i, name := range n.names {
			if i > 0 {
				b.WriteByte(',')
			}
			key, err := json.Marshal(name)
			if err != nil {
				return err
			}
			b.Write(key)
			b.WriteByte(':')
			if err := n.children[i].writeJSON(b); err != nil {
				return err
			}
		}
		b.WriteByte('}')
	case List:
		b.WriteByte('[')
		for i, child := range n.children {
			if i > 0 {
				b.WriteByte(',')
			}
			if err := child.writeJSON(b); err != nil {
				return err
			}
		}
		b.WriteByte(']')
	case Leaf:
		p, err := json.Marshal(n.value)
		if err != nil {
			return errors.E(errors.Invalid, "blueprint: encode", err)
		}
		b.Write(p)
	default:
		b.WriteString("null")
	}
	return nil
}
