// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package insitu

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/insitu/blueprint"
	"github.com/grailbio/insitu/comm"
	"github.com/grailbio/insitu/histogram"
	"github.com/grailbio/insitu/stats"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

func testDomain(cycle, id int, energy ...float64) *blueprint.Node {
	n := blueprint.NewNode()
	n.Set("state/cycle", cycle)
	n.Set("state/domain_id", id)
	n.Set("fields/energy/association", "element")
	n.Set("fields/energy/values", energy)
	return n
}

func TestRuntimeSteps(t *testing.T) {
	var (
		ctx = context.Background()
		out bytes.Buffer
		rt  = New(comm.Self(), Stdout(&out))
		x   = NewHistogramExtract(histogram.Options{Field: "energy", Bins: 2})
	)
	rt.AddExtract("histogram", x)
	for cycle := 1; cycle <= 3; cycle++ {
		data := blueprint.Multi(
			testDomain(cycle, 0, 0, float64(cycle)),
			testDomain(cycle, 1, float64(cycle)),
		)
		assert.NoError(t, rt.Publish(data))
		assert.NoError(t, rt.Execute(ctx))
		h := x.Last()
		expect.EQ(t, h.Cycle, int64(cycle))
		expect.EQ(t, h.Max, float64(cycle))
		expect.EQ(t, h.Counts, []int64{1, 2})
	}
	if got, want := strings.Count(out.String(), "Histogram of energy"), 3; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	vals := rt.Stats().Snapshot()
	expect.EQ(t, vals[stats.NumSteps], int64(3))
	expect.EQ(t, vals[stats.NumDomains], int64(6))
	expect.EQ(t, vals[stats.NumValues], int64(9))

	// Each publication is consumed by one Execute.
	if err := rt.Execute(ctx); !errors.Is(errors.Precondition, err) {
		t.Errorf("got %v, want Precondition", err)
	}
}

func TestRuntimeExtractOrder(t *testing.T) {
	var (
		rt    = New(comm.Self())
		order []string
	)
	for _, name := range []string{"b", "a", "c"} {
		name := name
		rt.AddExtract(name, ExtractFunc(func(ctx context.Context, step *Step) error {
			order = append(order, name)
			return nil
		}))
	}
	assert.NoError(t, rt.Publish(nil))
	assert.NoError(t, rt.Execute(context.Background()))
	expect.EQ(t, order, []string{"b", "a", "c"})

	defer func() {
		if recover() == nil {
			t.Error("expected panic on duplicate extract")
		}
	}()
	rt.AddExtract("a", ExtractFunc(func(context.Context, *Step) error { return nil }))
}

func TestRuntimeExtractError(t *testing.T) {
	rt := New(comm.Self())
	rt.AddExtract("histogram", NewHistogramExtract(histogram.Options{Field: "density"}))
	assert.NoError(t, rt.Publish(testDomain(7, 0, 1, 2)))
	err := rt.Execute(context.Background())
	if !errors.Is(errors.NotExist, err) {
		t.Fatalf("got %v, want NotExist", err)
	}
	if !strings.Contains(err.Error(), "cycle 7") {
		t.Errorf("error %q does not name the cycle", err)
	}
}

func TestPublishCycleMismatch(t *testing.T) {
	rt := New(comm.Self())
	err := rt.Publish(blueprint.Multi(testDomain(1, 0), testDomain(2, 1)))
	if !errors.Is(errors.Invalid, err) {
		t.Errorf("got %v, want Invalid", err)
	}
}

func TestAssign(t *testing.T) {
	got := Assign([]string{"a", "b", "c", "d", "e"}, 3)
	want := [][]string{{"a", "d"}, {"b", "e"}, {"c"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
	if got := Assign([]string{"a"}, 2); got[1] != nil {
		t.Errorf("got %v, want an empty rank", got)
	}
	if got := Assign([]string{"a"}, 0); got != nil {
		t.Errorf("got %v, want nil", got)
	}
}

func writeDomains(t *testing.T, dir string, domains ...*blueprint.Node) []string {
	t.Helper()
	paths := make([]string, len(domains))
	for i, d := range domains {
		paths[i] = filepath.Join(dir, fmt.Sprintf("domain%03d.json", i))
		assert.NoError(t, blueprint.Save(context.Background(), paths[i], d))
	}
	return paths
}

func TestRunLocal(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "insitu")
	defer cleanup()
	paths := writeDomains(t, dir,
		testDomain(10, 0, 1, 2, 3),
		testDomain(10, 1, 4, 5, 10),
		testDomain(10, 2, 7.5),
	)
	var out bytes.Buffer
	// Four ranks over three files leaves rank 3 without data.
	results, err := RunLocal(context.Background(), 4, paths, histogram.Options{Field: "energy", Bins: 4}, &out)
	assert.NoError(t, err)
	expect.EQ(t, len(results), 4)
	for _, r := range results {
		h := r.Histogram
		expect.EQ(t, h.Min, 1.0)
		expect.EQ(t, h.Max, 10.0)
		expect.EQ(t, h.Edges, []float64{1, 3.25, 5.5, 7.75, 10})
		expect.EQ(t, h.Counts, []int64{3, 2, 1, 1})
	}
	expect.EQ(t, results[3].Stats[stats.NumValues], int64(0))
	expect.EQ(t, results[0].Stats[stats.NumValues], int64(3))
	if got, want := strings.Count(out.String(), "Histogram of energy"), 1; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if !strings.Contains(out.String(), "(cycle 10)") {
		t.Errorf("output %q does not name the cycle", out.String())
	}
}

func TestRunLocalNoRanks(t *testing.T) {
	for _, n := range []int{0, -1} {
		_, err := RunLocal(context.Background(), n, []string{"a.json"}, histogram.Options{Field: "energy"}, &bytes.Buffer{})
		if !errors.Is(errors.Invalid, err) {
			t.Errorf("%d ranks: got %v, want Invalid", n, err)
		}
	}
}

func TestRunLocalMissingField(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "insitu")
	defer cleanup()
	// Only rank 1 lacks the field: rank 0 blocks in the first
	// reduction and must be released when rank 1 fails.
	other := blueprint.NewNode()
	other.Set("state/cycle", 1)
	other.Set("fields/pressure/values", []float64{2})
	paths := writeDomains(t, dir, testDomain(1, 0, 1), other)
	_, err := RunLocal(context.Background(), 2, paths, histogram.Options{Field: "energy"}, &bytes.Buffer{})
	if !errors.Is(errors.NotExist, err) {
		t.Errorf("got %v, want NotExist", err)
	}
}
