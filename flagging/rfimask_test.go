// Copyright 2026 Radiocosmo Authors. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package flagging

import (
	"context"
	"math"
	"testing"

	"github.com/radiocosmo/driftvis/comm"
	"github.com/radiocosmo/driftvis/darray"
	"github.com/radiocosmo/driftvis/rfi"
	"github.com/radiocosmo/driftvis/stream"
)

const (
	mtNF   = 4
	mtProd = 2
	mtNT   = 32
)

// maskTestStream builds a two-product stream with a gentle ripple and
// a saturating burst in product 1 at time sample 4.
func maskTestStream(g *comm.Group) *stream.TimeStream {
	vis := darray.New([]int{mtNF, mtProd, mtNT}, darray.Complex128, g, 0)
	local := vis.Complex128s()
	off := vis.Offset()
	lf := vis.LocalShape()[0]
	for f := 0; f < lf; f++ {
		gf := off + f
		for k := 0; k < mtProd; k++ {
			for j := 0; j < mtNT; j++ {
				a := 1 + 0.1*math.Sin(float64(gf*31+k*7+j))
				if k == 1 && j == 4 {
					a = 100
				}
				local[(f*mtProd+k)*mtNT+j] = complex(a, 0)
			}
		}
	}
	return stream.NewTimeStream(vis, make([]float64, mtNT))
}

func TestMaskStream(t *testing.T) {
	for _, n := range []int{1, 2, 3} {
		runGroups(t, n, func(t *testing.T, ctx context.Context, g *comm.Group) {
			ts := maskTestStream(g)
			cfg := rfi.DefaultConfig()
			cfg.SIR = false
			// Frequencies clear of the TV bands.
			p := rfi.Params{Freq: []float64{810, 811, 812, 813}}
			mask, err := MaskStream(ctx, ts, [][]int{{0}, {1}}, cfg, p)
			if err != nil {
				t.Fatal(err)
			}
			if mask.Axis() != 0 {
				t.Fatalf("mask sharded over axis %d, want 0", mask.Axis())
			}
			lf := ts.Vis().LocalShape()[0]
			md := mask.Bools()
			if len(md) != lf*mtNT {
				t.Fatalf("local mask has %d samples, want %d", len(md), lf*mtNT)
			}
			// The burst lives in the second polarization only;
			// the cross-worker OR must still deliver it to every
			// rank's shard.
			for f := 0; f < lf; f++ {
				if !md[f*mtNT+4] {
					t.Errorf("burst sample unflagged in local row %d (%d workers)", f, n)
				}
				if md[f*mtNT+20] {
					t.Errorf("clean sample flagged in local row %d (%d workers)", f, n)
				}
			}
		})
	}
}

func TestMaskStreamSIR(t *testing.T) {
	runGroups(t, 2, func(t *testing.T, ctx context.Context, g *comm.Group) {
		ts := maskTestStream(g)
		cfg := rfi.DefaultConfig()
		cfg.SIR = true
		cfg.SIREta = 0.2
		p := rfi.Params{Freq: []float64{810, 811, 812, 813}}
		mask, err := MaskStream(ctx, ts, [][]int{{0}, {1}}, cfg, p)
		if err != nil {
			t.Fatal(err)
		}
		base, err := func() (*darray.Array, error) {
			cfg.SIR = false
			return MaskStream(ctx, ts, [][]int{{0}, {1}}, cfg, p)
		}()
		if err != nil {
			t.Fatal(err)
		}
		md, bd := mask.Bools(), base.Bools()
		for i, f := range bd {
			if f && !md[i] {
				t.Fatalf("dilation cleared flag %d", i)
			}
		}
	})
}
