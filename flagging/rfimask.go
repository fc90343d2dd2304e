// Copyright 2026 Radiocosmo Authors. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package flagging

import (
	"context"
	"fmt"
	"math/cmplx"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"

	"github.com/radiocosmo/driftvis/darray"
	"github.com/radiocosmo/driftvis/rfi"
	"github.com/radiocosmo/driftvis/shapecheck"
	"github.com/radiocosmo/driftvis/stream"
)

// MaskStream runs the RFI masking engine over a time stream and
// returns the resulting per (channel, time) mask, sharded over
// frequency like the stream itself. pols groups the correlation
// products into polarizations; the per-polarization radiometric
// metric is the mean visibility amplitude over the group's products.
//
// The metric array is resharded over polarization so that every
// tested grid holds the full frequency and time extent the median
// filters need, the per-worker masks are OR'ed with an all-gather,
// and any SIR dilation runs last on the combined mask. All workers
// must call it together.
func MaskStream(ctx context.Context, ts *stream.TimeStream, pols [][]int, cfg rfi.Config, p rfi.Params) (*darray.Array, error) {
	g := ts.Group()
	vis := ts.Vis()
	shape := vis.Shape()
	if len(shape) != 3 {
		shapecheck.Panicf(1, "vis has %d axes, want 3", len(shape))
	}
	if vis.Axis() != 0 {
		shapecheck.Panicf(1, "vis must be sharded over frequency")
	}
	nf, nprod, nt := shape[0], shape[1], shape[2]
	if len(p.Freq) != nf {
		shapecheck.Panicf(1, "have %d frequencies for %d channels", len(p.Freq), nf)
	}
	npol := len(pols)
	if npol == 0 {
		shapecheck.Panicf(1, "no polarizations")
	}
	for _, prods := range pols {
		for _, k := range prods {
			if k < 0 || k >= nprod {
				shapecheck.Panicf(1, "product %d out of range [0, %d)", k, nprod)
			}
		}
	}

	// Per-polarization metric, local frequency rows.
	lf := vis.LocalShape()[0]
	local := vis.Complex128s()
	sens := make([]float64, npol*lf*nt)
	for pi, prods := range pols {
		for f := 0; f < lf; f++ {
			row := sens[(pi*lf+f)*nt : (pi*lf+f+1)*nt]
			for _, k := range prods {
				v := local[(f*nprod+k)*nt : (f*nprod+k+1)*nt]
				for j := range row {
					row[j] += cmplx.Abs(v[j])
				}
			}
			if len(prods) > 1 {
				for j := range row {
					row[j] /= float64(len(prods))
				}
			}
		}
	}
	sensArr := darray.Wrap(sens, []int{npol, nf, nt}, 1, g)
	sensArr, err := sensArr.Redistribute(ctx, 0)
	if err != nil {
		return nil, err
	}

	// Test the locally held polarizations over the full grid. The
	// dilation is withheld here: it does not commute with the
	// cross-worker OR and runs once on the combined mask instead.
	lp := sensArr.LocalShape()[0]
	poff := sensArr.Offset()
	localMask := make([]bool, nf*nt)
	if lp > 0 {
		grids := make([][]float64, lp)
		data := sensArr.Float64s()
		for i := range grids {
			grids[i] = data[i*nf*nt : (i+1)*nf*nt]
		}
		pp := p
		if p.Start != nil {
			pp.Start = p.Start[poff : poff+lp]
		}
		cfgLocal := cfg
		cfgLocal.SIR = false
		localMask = cfgLocal.Mask(grids, pp)
	}

	parts, err := g.AllGather(ctx, localMask)
	if err != nil {
		return nil, err
	}
	combined := make([]bool, nf*nt)
	for _, part := range parts {
		m, ok := part.([]bool)
		if !ok {
			return nil, errors.E(errors.Fatal, fmt.Sprintf("mask: unexpected gather message %T", part))
		}
		if len(m) != len(combined) {
			return nil, errors.E(errors.Fatal, fmt.Sprintf("mask: gathered %d samples, want %d", len(m), len(combined)))
		}
		for i, f := range m {
			combined[i] = combined[i] || f
		}
	}
	if cfg.SIR {
		static := make([]bool, nf*nt)
		if p.Static != nil {
			for i := 0; i < nf; i++ {
				if p.Static[i] {
					for j := 0; j < nt; j++ {
						static[i*nt+j] = true
					}
				}
			}
		}
		combined = rfi.AddSIR(combined, static, nf, nt, cfg.SIREta)
	}
	if g.Rank() == 0 {
		flagged := 0
		for _, f := range combined {
			if f {
				flagged++
			}
		}
		log.Printf("flagging: combined mask flags %.2f%% of %d x %d samples",
			100*float64(flagged)/float64(len(combined)), nf, nt)
	}

	off := vis.Offset()
	rows := append([]bool(nil), combined[off*nt:(off+lf)*nt]...)
	return darray.Wrap(rows, []int{nf, nt}, 0, g), nil
}
