// Copyright 2026 Radiocosmo Authors. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package flagging implements container-level data quality tasks:
// weight smoothing and thresholding, baseline cuts and the
// application of RFI masks. Numeric kernels live in package rfi;
// this package supplies the distributed plumbing around them.
package flagging

import (
	"context"
	"encoding/gob"
	"fmt"
	"math"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"

	"github.com/radiocosmo/driftvis/darray"
	"github.com/radiocosmo/driftvis/rfi"
	"github.com/radiocosmo/driftvis/shapecheck"
	"github.com/radiocosmo/driftvis/stream"
)

func init() {
	gob.Register(weightStats{})
	gob.Register([]bool{})
}

// Telescope describes the array geometry needed for baseline cuts.
// Implementations are read-only collaborators; tasks never mutate
// them.
type Telescope interface {
	// Baselines returns the physical separation vector of every
	// correlation product, in metres (east, north, up).
	Baselines() [][3]float64
	// IndexMap returns the input pair forming each correlation
	// product, in product order.
	IndexMap() []ProdPair
}

// ProdPair identifies the two correlator inputs of a product.
type ProdPair struct {
	A, B int
}

// SmoothVisWeight replaces the weight of every (channel, product)
// series with its moving median over time. Samples whose weight is
// exactly zero are excluded from the medians and stay zero: a zeroed
// weight marks deliberately discarded data and must never be
// resurrected by smoothing.
func SmoothVisWeight(c *stream.Container, window int) {
	w := c.Dist(stream.FieldWeight)
	if w == nil {
		shapecheck.Panicf(1, "container has no weight")
	}
	if window <= 0 || window%2 == 0 {
		shapecheck.Panicf(1, "smoothing window %d must be odd and positive", window)
	}
	shape := w.LocalShape()
	nt := shape[len(shape)-1]
	data := w.Float64s()
	mask := make([]bool, nt)
	for off := 0; off < len(data); off += nt {
		row := data[off : off+nt]
		for j, v := range row {
			mask[j] = v == 0
		}
		sm := rfi.MedFilt(row, mask, 1, nt, [2]int{1, window})
		for j := range row {
			if mask[j] {
				continue
			}
			if v := sm[j]; !math.IsNaN(v) {
				row[j] = v
			}
		}
	}
}

type weightStats struct {
	Sum   float64
	Count int64
}

// ThresholdVisWeight zeroes every weight below
// max(absolute, relative * mean), where the mean is taken over all
// nonzero weights of the whole distributed array. All workers must
// call it together.
func ThresholdVisWeight(ctx context.Context, c *stream.Container, absolute, relative float64) error {
	w := c.Dist(stream.FieldWeight)
	if w == nil {
		return errors.E(errors.Invalid, "container has no weight")
	}
	g := c.Group()
	data := w.Float64s()
	var local weightStats
	for _, v := range data {
		if v != 0 {
			local.Sum += v
			local.Count++
		}
	}
	parts, err := g.AllGather(ctx, local)
	if err != nil {
		return err
	}
	var total weightStats
	for _, p := range parts {
		s, ok := p.(weightStats)
		if !ok {
			return errors.E(errors.Fatal, fmt.Sprintf("threshold: unexpected reduction message %T", p))
		}
		total.Sum += s.Sum
		total.Count += s.Count
	}
	threshold := absolute
	if total.Count > 0 {
		if rel := relative * total.Sum / float64(total.Count); rel > threshold {
			threshold = rel
		}
	}
	cut := 0
	for i, v := range data {
		if v != 0 && v < threshold {
			data[i] = 0
			cut++
		}
	}
	if len(data) > 0 {
		log.Printf("flagging: thresholded %.2f%% of local weights below %g",
			100*float64(cut)/float64(len(data)), threshold)
	}
	return nil
}

// MaskBaselines zeroes the weight of every correlation product whose
// baseline length falls outside [minLength, maxLength). A
// non-positive maxLength means no upper cut. Returns the number of
// products cut.
func MaskBaselines(c *stream.Container, tel Telescope, minLength, maxLength float64) int {
	w := c.Dist(stream.FieldWeight)
	if w == nil {
		shapecheck.Panicf(1, "container has no weight")
	}
	shape := w.LocalShape()
	if len(shape) != 3 {
		shapecheck.Panicf(1, "weight has %d axes, want 3", len(shape))
	}
	baselines := tel.Baselines()
	nprod := shape[1]
	if len(baselines) != nprod {
		shapecheck.Panicf(1, "telescope has %d baselines for %d products", len(baselines), nprod)
	}
	cut := make([]bool, nprod)
	ncut := 0
	for k, b := range baselines {
		l := math.Sqrt(b[0]*b[0] + b[1]*b[1] + b[2]*b[2])
		if l < minLength || (maxLength > 0 && l >= maxLength) {
			cut[k] = true
			ncut++
		}
	}
	if ncut == 0 {
		return 0
	}
	data := w.Float64s()
	nt := shape[2]
	for f := 0; f < shape[0]; f++ {
		for k := 0; k < nprod; k++ {
			if !cut[k] {
				continue
			}
			row := data[(f*nprod+k)*nt : (f*nprod+k+1)*nt]
			for j := range row {
				row[j] = 0
			}
		}
	}
	log.Printf("flagging: cut %d of %d baselines", ncut, nprod)
	return ncut
}

// ApplyRFIMask folds a per (channel, time) mask into a time stream:
// the mask is broadcast over the product axis to build a
// MaskedTimeStream, and any weight field has its flagged samples
// zeroed. mask must share ts's group and frequency sharding.
func ApplyRFIMask(ts *stream.TimeStream, mask *darray.Array) *stream.MaskedTimeStream {
	vis := ts.Vis()
	vshape := vis.LocalShape()
	mshape := mask.LocalShape()
	if len(vshape) != 3 || len(mshape) != 2 || vshape[0] != mshape[0] || vshape[2] != mshape[1] {
		shapecheck.Panicf(1, "mask local shape %v does not match vis %v", mshape, vshape)
	}
	if mask.Axis() != 0 || vis.Axis() != 0 {
		shapecheck.Panicf(1, "mask and vis must both be sharded over frequency")
	}
	nf, nprod, nt := vshape[0], vshape[1], vshape[2]
	flat := mask.Bools()
	full := make([]bool, nf*nprod*nt)
	for f := 0; f < nf; f++ {
		for k := 0; k < nprod; k++ {
			copy(full[(f*nprod+k)*nt:(f*nprod+k+1)*nt], flat[f*nt:(f+1)*nt])
		}
	}
	expanded := darray.Wrap(full, vis.Shape(), 0, ts.Group())
	if w := ts.Dist(stream.FieldWeight); w != nil {
		wd := w.Float64s()
		for i, m := range full {
			if m {
				wd[i] = 0
			}
		}
	}
	return stream.NewMaskedTimeStream(ts, expanded)
}
