// Copyright 2026 Radiocosmo Authors. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package stream

import (
	"context"
	"sync"
	"testing"

	"github.com/radiocosmo/driftvis/comm"
	"github.com/radiocosmo/driftvis/darray"
	"github.com/radiocosmo/driftvis/shapecheck"
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

func TestContainerCapabilities(t *testing.T) {
	runGroups(t, 2, func(t *testing.T, ctx context.Context, g *comm.Group) {
		vis := darray.New([]int{4, 3, 6}, darray.Complex128, g, 0)
		ts := NewTimeStream(vis, make([]float64, 6))
		if !ts.Has(FieldVis) || !ts.Has(FieldTimestamp) {
			t.Error("timestream missing required fields")
		}
		if ts.Has(FieldMask) || ts.Has(FieldWeight) {
			t.Error("timestream claims fields it does not have")
		}
		mask := darray.New([]int{4, 3, 6}, darray.Bool, g, 0)
		mts := NewMaskedTimeStream(ts, mask)
		if !mts.Has(FieldMask) {
			t.Error("masked timestream has no mask")
		}
		if mts.Vis() != vis {
			t.Error("derivation did not adopt vis by reference")
		}
	})
}

func TestSetDistAxisInvariant(t *testing.T) {
	runGroups(t, 2, func(t *testing.T, ctx context.Context, g *comm.Group) {
		c := NewContainer(g)
		c.SetDist("a", darray.New([]int{4, 6}, darray.Float64, g, 0))
		defer func() {
			if e := recover(); e == nil {
				t.Error("expected panic")
			} else if _, ok := e.(*shapecheck.Error); !ok {
				t.Errorf("panic value %v is not a shape error", e)
			}
		}()
		c.SetDist("b", darray.New([]int{4, 6}, darray.Float64, g, 1))
	})
}

// TestRedistributeAll verifies that redistributing a container moves
// every distributed field onto the new axis together.
func TestRedistributeAll(t *testing.T) {
	runGroups(t, 3, func(t *testing.T, ctx context.Context, g *comm.Group) {
		vis := darray.New([]int{6, 2, 9}, darray.Complex128, g, 0)
		weight := darray.New([]int{6, 2, 9}, darray.Float64, g, 0)
		ss := NewSiderealStream(vis, weight, make([]float64, 9))
		if err := ss.Redistribute(ctx, 2); err != nil {
			t.Fatal(err)
		}
		if got := ss.Vis().Axis(); got != 2 {
			t.Errorf("vis axis %d, want 2", got)
		}
		if got := ss.Weight().Axis(); got != 2 {
			t.Errorf("weight axis %d, want 2", got)
		}
	})
}

func TestFingerprint(t *testing.T) {
	runGroups(t, 1, func(t *testing.T, ctx context.Context, g *comm.Group) {
		vis := darray.New([]int{2, 2, 4}, darray.Complex128, g, 0)
		ts := NewTimeStream(vis, make([]float64, 4))
		ts.SetAttr("acq", "20260829T000000Z")
		fp := ts.Fingerprint()
		if fp != ts.Fingerprint() {
			t.Error("fingerprint not stable")
		}
		ts.SetAttr("acq", "20260830T000000Z")
		if fp == ts.Fingerprint() {
			t.Error("fingerprint ignores attributes")
		}
	})
}
