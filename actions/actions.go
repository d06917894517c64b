// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package actions builds action documents for an in-situ
// visualization runtime. An action document is a list of actions,
// each a tree naming the action and its parameters, for example:
//
//	[
//	  {"action": "add_pipelines", "pipelines": {...}},
//	  {"action": "add_scenes", "scenes": {...}},
//	  {"action": "execute"},
//	  {"action": "reset"}
//	]
//
// The runtime reads the document (conventionally ascent_actions.json)
// at each time step. This package only constructs and writes the
// document; interpreting it is the runtime's business.
package actions

import (
	"context"
	"fmt"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/insitu/blueprint"
)

// Action names understood by the runtime.
const (
	AddPipelines = "add_pipelines"
	AddScenes    = "add_scenes"
	AddExtracts  = "add_extracts"
	Execute      = "execute"
	Reset        = "reset"
)

// Actions is an ordered list of actions.
type Actions struct {
	root *blueprint.Node
}

// New returns an empty action list.
func New() *Actions {
	return &Actions{root: blueprint.NewNode()}
}

// Append appends an action with the given name and returns its node
// so that parameters may be set on it.
func (a *Actions) Append(name string) *blueprint.Node {
	n := a.root.Append()
	n.Set("action", name)
	return n
}

// AddPipelines appends an add_pipelines action.
func (a *Actions) AddPipelines(pipelines *blueprint.Node) {
	a.Append(AddPipelines).Child("pipelines").SetValue(pipelines)
}

// AddScenes appends an add_scenes action.
func (a *Actions) AddScenes(scenes *blueprint.Node) {
	a.Append(AddScenes).Child("scenes").SetValue(scenes)
}

// AddExtracts appends an add_extracts action.
func (a *Actions) AddExtracts(extracts *blueprint.Node) {
	a.Append(AddExtracts).Child("extracts").SetValue(extracts)
}

// Execute appends an execute action.
func (a *Actions) Execute() {
	a.Append(Execute)
}

// Reset appends a reset action.
func (a *Actions) Reset() {
	a.Append(Reset)
}

// Len returns the number of actions.
func (a *Actions) Len() int {
	return a.root.Len()
}

// Node returns the action list as a node.
func (a *Actions) Node() *blueprint.Node {
	return a.root
}

// Names returns the names of the actions, in order. An action whose
// name is missing or not a string is named "". Documents returned by
// Read always have string names.
func (a *Actions) Names() []string {
	names := make([]string, a.root.Len())
	for i := range names {
		if n, err := a.root.Index(i).Fetch("action"); err == nil {
			names[i], _ = n.Str()
		}
	}
	return names
}

// Write writes the action document to path, as YAML if the path
// ends in ".yaml" or ".yml" and as JSON otherwise.
func Write(ctx context.Context, path string, a *Actions) error {
	return blueprint.Save(ctx, path, a.root)
}

// Read reads an action document from path.
func Read(ctx context.Context, path string) (*Actions, error) {
	n, err := blueprint.Load(ctx, path)
	if err != nil {
		return nil, err
	}
	if n.Kind() != blueprint.List && n.Kind() != blueprint.Empty {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("actions: %s: document is a %v, not a list", path, n.Kind()))
	}
	for i := 0; i < n.Len(); i++ {
		name, err := n.Index(i).Fetch("action")
		if err != nil {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("actions: %s: entry %d has no action", path, i))
		}
		if _, err := name.Str(); err != nil {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("actions: %s: entry %d: action is not a string", path, i), err)
		}
	}
	return &Actions{root: n}, nil
}

// Contour returns the actions that render a contour of field at the
// given number of levels, pseudocolored by the same field. Images are
// written with the provided prefix; the runtime appends ".png".
func Contour(field string, levels int, prefix string) *Actions {
	pipelines := blueprint.NewNode()
	pipelines.Set("pl1/f1/type", "contour")
	pipelines.Set("pl1/f1/params/field", field)
	pipelines.Set("pl1/f1/params/levels", levels)

	scenes := blueprint.NewNode()
	scenes.Set("s1/plots/p1/type", "pseudocolor")
	scenes.Set("s1/plots/p1/pipeline", "pl1")
	scenes.Set("s1/plots/p1/field", field)
	scenes.Set("s1/image_prefix", prefix)

	a := New()
	a.AddPipelines(pipelines)
	a.AddScenes(scenes)
	a.Execute()
	a.Reset()
	return a
}

// Histogram returns the actions that register a script extract
// computing a histogram of field with the given number of bins.
func Histogram(field string, bins int, script string) *Actions {
	extracts := blueprint.NewNode()
	extracts.Set("e1/type", "python")
	extracts.Set("e1/params/file", script)
	extracts.Set("e1/params/field", field)
	extracts.Set("e1/params/bins", bins)

	a := New()
	a.AddExtracts(extracts)
	a.Execute()
	a.Reset()
	return a
}
