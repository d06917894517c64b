// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package histogram

import (
	"bytes"
	"context"
	"math"
	"reflect"
	"strings"
	"testing"

	fuzz "github.com/google/gofuzz"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/insitu/comm"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
	"golang.org/x/sync/errgroup"
)

// computeAll runs Compute on an in-process group with one rank per
// buffer and returns each rank's histogram.
func computeAll(t *testing.T, buffers [][]float64, opts Options) []*Histogram {
	t.Helper()
	var (
		group = comm.NewGroup(len(buffers))
		hs    = make([]*Histogram, len(buffers))
		g     errgroup.Group
		ctx   = context.Background()
	)
	for i := range group {
		i := i
		g.Go(func() (err error) {
			hs[i], err = Compute(ctx, group[i], buffers[i], opts)
			return
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
	return hs
}

func TestTwoRanks(t *testing.T) {
	hs := computeAll(t, [][]float64{{1, 2, 3}, {4, 5, 10}}, Options{Field: "energy", Bins: 4})
	for rank, h := range hs {
		if got, want := h.Min, 1.0; got != want {
			t.Errorf("rank %d: got %v, want %v", rank, got, want)
		}
		if got, want := h.Max, 10.0; got != want {
			t.Errorf("rank %d: got %v, want %v", rank, got, want)
		}
		if got, want := h.Edges, []float64{1, 3.25, 5.5, 7.75, 10}; !reflect.DeepEqual(got, want) {
			t.Errorf("rank %d: got %v, want %v", rank, got, want)
		}
		if got, want := h.Counts, []int64{3, 2, 0, 1}; !reflect.DeepEqual(got, want) {
			t.Errorf("rank %d: got %v, want %v", rank, got, want)
		}
		if got, want := h.Total(), int64(6); got != want {
			t.Errorf("rank %d: got %v, want %v", rank, got, want)
		}
	}
}

func TestEmptyRank(t *testing.T) {
	hs := computeAll(t, [][]float64{{-3, 8}, nil, {2}}, Options{Bins: 2})
	for rank, h := range hs {
		if got, want := h.Min, -3.0; got != want {
			t.Errorf("rank %d: got %v, want %v", rank, got, want)
		}
		if got, want := h.Max, 8.0; got != want {
			t.Errorf("rank %d: got %v, want %v", rank, got, want)
		}
		if got, want := h.Counts, []int64{2, 1}; !reflect.DeepEqual(got, want) {
			t.Errorf("rank %d: got %v, want %v", rank, got, want)
		}
	}
}

func TestNoValues(t *testing.T) {
	hs := computeAll(t, [][]float64{nil, {}}, Options{Bins: 2})
	for _, h := range hs {
		if !h.Empty() {
			t.Errorf("expected empty histogram, got extents [%v, %v]", h.Min, h.Max)
		}
		expect.EQ(t, h.Edges, []float64{0, 0.5, 1})
		expect.EQ(t, h.Counts, []int64{0, 0})
	}
}

func TestDegenerate(t *testing.T) {
	hs := computeAll(t, [][]float64{{5, 5}, {5}}, Options{Bins: 4})
	for _, h := range hs {
		expect.EQ(t, h.Min, 5.0)
		expect.EQ(t, h.Max, 5.0)
		expect.EQ(t, h.Edges, []float64{4.5, 4.75, 5, 5.25, 5.5})
		expect.EQ(t, h.Counts, []int64{0, 0, 3, 0})
	}
}

func TestExplicitRange(t *testing.T) {
	opts := Options{Bins: 2, Range: &Range{Min: 0, Max: 4}}
	hs := computeAll(t, [][]float64{{-1, 0, 1, 4}, {2, 9, math.NaN()}}, opts)
	expect.EQ(t, hs[0].Min, -1.0)
	expect.EQ(t, hs[0].Max, 9.0)
	expect.EQ(t, hs[0].Edges, []float64{0, 2, 4})
	expect.EQ(t, hs[0].Counts, []int64{2, 2})
	expect.EQ(t, hs[0].Dropped, int64(1))
	expect.EQ(t, hs[1].Dropped, int64(1))
	expect.EQ(t, hs[1].NaN, int64(1))

	for _, r := range []Range{{1, 1}, {2, 1}, {0, math.Inf(1)}} {
		r := r
		_, err := Compute(context.Background(), comm.Self(), nil, Options{Range: &r})
		if !errors.Is(errors.Invalid, err) {
			t.Errorf("%v: got %v, want Invalid", r, err)
		}
	}
}

func TestDefaultBins(t *testing.T) {
	h, err := Compute(context.Background(), comm.Self(), []float64{0, 1}, Options{})
	assert.NoError(t, err)
	expect.EQ(t, len(h.Counts), DefaultBins)
	expect.EQ(t, len(h.Edges), DefaultBins+1)
	expect.EQ(t, h.Counts[0], int64(1))
	expect.EQ(t, h.Counts[DefaultBins-1], int64(1))
}

func TestLocalExtents(t *testing.T) {
	min, max := LocalExtents(nil)
	if !math.IsInf(min, 1) || !math.IsInf(max, -1) {
		t.Errorf("got [%v, %v], want [+Inf, -Inf]", min, max)
	}
	min, max = LocalExtents([]float64{math.NaN(), 3, -1, math.NaN()})
	expect.EQ(t, min, -1.0)
	expect.EQ(t, max, 3.0)
}

func TestEdgesInvalid(t *testing.T) {
	for _, c := range []struct {
		min, max float64
		bins     int
	}{
		{0, 1, 0},
		{0, 1, -1},
		{2, 1, 3},
		{math.Inf(-1), 1, 3},
		{0, math.NaN(), 3},
	} {
		if _, err := Edges(c.min, c.max, c.bins); !errors.Is(errors.Invalid, err) {
			t.Errorf("%v: got %v, want Invalid", c, err)
		}
	}
}

func TestCount(t *testing.T) {
	edges := []float64{0, 1, 2}
	values := []float64{2, 0, 1, 0.5, 2, -0.1, 2.1, math.NaN()}
	expect.EQ(t, Count(values, edges), []int64{2, 3})
	// The input is left untouched.
	expect.EQ(t, values[0], 2.0)
	expect.EQ(t, Count(nil, edges), []int64{0, 0})
	if got := Count(values, nil); got != nil {
		t.Errorf("got %v, want nil", got)
	}
	if got := Count(values, []float64{1}); got != nil {
		t.Errorf("got %v, want nil", got)
	}
}

func TestFullRange(t *testing.T) {
	edges, err := Edges(-math.MaxFloat64, math.MaxFloat64, 4)
	assert.NoError(t, err)
	expect.EQ(t, len(edges), 5)
	expect.EQ(t, edges[0], -math.MaxFloat64)
	expect.EQ(t, edges[4], math.MaxFloat64)
	for i := 1; i < len(edges); i++ {
		if math.IsInf(edges[i], 0) || edges[i] <= edges[i-1] {
			t.Fatalf("edges %v are not increasing and finite", edges)
		}
	}
	for _, h := range computeAll(t, [][]float64{{-math.MaxFloat64}, {math.MaxFloat64, 0}}, Options{Bins: 4}) {
		expect.EQ(t, h.Min, -math.MaxFloat64)
		expect.EQ(t, h.Max, math.MaxFloat64)
		expect.EQ(t, h.Counts, []int64{1, 0, 1, 1})
	}
}

func TestReportLeaderOnly(t *testing.T) {
	var (
		group = comm.NewGroup(3)
		outs  = make([]bytes.Buffer, len(group))
		g     errgroup.Group
		ctx   = context.Background()
	)
	for i := range group {
		i := i
		g.Go(func() error {
			h, err := Compute(ctx, group[i], []float64{float64(i)}, Options{Field: "energy", Bins: 3})
			if err != nil {
				return err
			}
			return Report(&outs[i], group[i], h)
		})
	}
	assert.NoError(t, g.Wait())
	out := outs[0].String()
	for _, want := range []string{"energy extents: 0 2", "Counts:\n[1 1 1]", "Bin Edges:\n[0 ", " 2]\n"} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q does not contain %q", out, want)
		}
	}
	for i := 1; i < len(outs); i++ {
		if got, want := outs[i].Len(), 0; got != want {
			t.Errorf("rank %d wrote %d bytes", i, got)
		}
	}
}

func TestProperties(t *testing.T) {
	fz := fuzz.New().NilChance(0)
	for iter := 0; iter < 50; iter++ {
		var (
			nrank   = 1 + iter%6
			buffers = make([][]float64, nrank)
			total   int
		)
		for i := range buffers {
			var n uint8
			fz.Fuzz(&n)
			// Leave some ranks empty.
			if n%7 == 0 {
				continue
			}
			buffers[i] = make([]float64, n)
			for j := range buffers[i] {
				fz.Fuzz(&buffers[i][j])
				buffers[i][j] = buffers[i][j]*1000 - 500
			}
			total += int(n)
		}
		var bins uint8
		fz.Fuzz(&bins)
		hs := computeAll(t, buffers, Options{Bins: 1 + int(bins)%64})
		for rank, h := range hs {
			if got, want := h.Total(), int64(total); got != want {
				t.Fatalf("rank %d: got %v, want %v", rank, got, want)
			}
			if !reflect.DeepEqual(h.Edges, hs[0].Edges) || !reflect.DeepEqual(h.Counts, hs[0].Counts) {
				t.Fatalf("rank %d disagrees with rank 0", rank)
			}
			if h.Min != hs[0].Min || h.Max != hs[0].Max {
				t.Fatalf("rank %d: extents disagree", rank)
			}
			for i := 1; i < len(h.Edges); i++ {
				if h.Edges[i] < h.Edges[i-1] {
					t.Fatalf("edges decrease: %v", h.Edges)
				}
			}
		}
		for _, buf := range buffers {
			for _, v := range buf {
				if v < hs[0].Min || v > hs[0].Max {
					t.Fatalf("value %v outside extents [%v, %v]", v, hs[0].Min, hs[0].Max)
				}
			}
		}
	}
}
