// Copyright 2026 Radiocosmo Authors. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package flagging

import (
	"context"
	"sync"
	"testing"

	"github.com/radiocosmo/driftvis/comm"
	"github.com/radiocosmo/driftvis/darray"
	"github.com/radiocosmo/driftvis/stream"
)

func runGroups(t *testing.T, n int, fn func(t *testing.T, ctx context.Context, g *comm.Group)) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup
	for _, g := range comm.LocalGroups(n) {
		wg.Add(1)
		go func(g *comm.Group) {
			defer wg.Done()
			defer func() {
				if t.Failed() {
					cancel()
				}
			}()
			fn(t, ctx, g)
		}(g)
	}
	wg.Wait()
}

// weightStream builds a (4, 3, 8) time stream with a weight field
// whose samples are all one.
func weightStream(g *comm.Group) *stream.TimeStream {
	vis := darray.New([]int{4, 3, 8}, darray.Complex128, g, 0)
	ts := stream.NewTimeStream(vis, make([]float64, 8))
	w := darray.New([]int{4, 3, 8}, darray.Float64, g, 0)
	wd := w.Float64s()
	for i := range wd {
		wd[i] = 1
	}
	ts.SetDist(stream.FieldWeight, w)
	return ts
}

func TestSmoothVisWeightPreservesZeros(t *testing.T) {
	runGroups(t, 2, func(t *testing.T, ctx context.Context, g *comm.Group) {
		ts := weightStream(g)
		wd := ts.Dist(stream.FieldWeight).Float64s()
		// An outlier to smooth away and a zero to preserve.
		wd[2] = 100
		wd[5] = 0
		SmoothVisWeight(ts.Container, 5)
		if wd[5] != 0 {
			t.Errorf("zero weight resurrected to %v", wd[5])
		}
		if wd[2] != 1 {
			t.Errorf("outlier smoothed to %v, want 1", wd[2])
		}
	})
}

func TestThresholdVisWeight(t *testing.T) {
	runGroups(t, 2, func(t *testing.T, ctx context.Context, g *comm.Group) {
		ts := weightStream(g)
		wd := ts.Dist(stream.FieldWeight).Float64s()
		wd[0] = 0.01
		if err := ThresholdVisWeight(ctx, ts.Container, 0, 0.5); err != nil {
			t.Fatal(err)
		}
		if wd[0] != 0 {
			t.Errorf("weight below half the mean kept at %v", wd[0])
		}
		if wd[1] != 1 {
			t.Errorf("weight above threshold cut to %v", wd[1])
		}
	})
}

type fakeTelescope struct {
	baselines [][3]float64
}

func (f fakeTelescope) Baselines() [][3]float64 { return f.baselines }
func (f fakeTelescope) IndexMap() []ProdPair {
	m := make([]ProdPair, len(f.baselines))
	for i := range m {
		m[i] = ProdPair{A: 0, B: i}
	}
	return m
}

func TestMaskBaselines(t *testing.T) {
	runGroups(t, 2, func(t *testing.T, ctx context.Context, g *comm.Group) {
		ts := weightStream(g)
		tel := fakeTelescope{baselines: [][3]float64{
			{0, 0, 0},
			{10, 0, 0},
			{100, 0, 0},
		}}
		if n := MaskBaselines(ts.Container, tel, 1, 50); n != 2 {
			t.Fatalf("cut %d baselines, want 2", n)
		}
		wd := ts.Dist(stream.FieldWeight).Float64s()
		lf := ts.Vis().LocalShape()[0]
		for f := 0; f < lf; f++ {
			for k := 0; k < 3; k++ {
				want := 1.0
				if k != 1 {
					want = 0
				}
				if wd[(f*3+k)*8] != want {
					t.Fatalf("weight[%d][%d] = %v, want %v", f, k, wd[(f*3+k)*8], want)
				}
			}
		}
	})
}

func TestApplyRFIMask(t *testing.T) {
	runGroups(t, 2, func(t *testing.T, ctx context.Context, g *comm.Group) {
		ts := weightStream(g)
		lf := ts.Vis().LocalShape()[0]
		rows := make([]bool, lf*8)
		for f := 0; f < lf; f++ {
			rows[f*8+3] = true
		}
		mask := darray.Wrap(rows, []int{4, 8}, 0, g)
		mts := ApplyRFIMask(ts, mask)
		md := mts.Mask().Bools()
		wd := ts.Dist(stream.FieldWeight).Float64s()
		for f := 0; f < lf; f++ {
			for k := 0; k < 3; k++ {
				for j := 0; j < 8; j++ {
					want := j == 3
					if md[(f*3+k)*8+j] != want {
						t.Fatalf("mask[%d][%d][%d] = %v, want %v", f, k, j, md[(f*3+k)*8+j], want)
					}
					if (wd[(f*3+k)*8+j] == 0) != want {
						t.Fatalf("weight[%d][%d][%d] = %v", f, k, j, wd[(f*3+k)*8+j])
					}
				}
			}
		}
	})
}
