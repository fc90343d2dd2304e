// Copyright 2026 Radiocosmo Authors. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package stream

import (
	"github.com/radiocosmo/driftvis/darray"
	"github.com/radiocosmo/driftvis/shapecheck"
)

// Field names shared by the concrete container kinds.
const (
	FieldVis       = "vis"
	FieldWeight    = "weight"
	FieldMask      = "mask"
	FieldGains     = "gains"
	FieldDR        = "dr"
	FieldTimestamp = "timestamp"
	FieldRA        = "ra"
)

// A TimeStream holds visibilities against a globally-ordered
// timestamp axis. The vis field has shape (freq, prod, time).
type TimeStream struct {
	*Container
}

// NewTimeStream builds a timestream from a visibility array and its
// replicated timestamp axis. The trailing vis axis and the timestamp
// array must agree in length.
func NewTimeStream(vis *darray.Array, timestamp []float64) *TimeStream {
	shape := vis.Shape()
	if shape[len(shape)-1] != len(timestamp) {
		shapecheck.Panicf(1, "vis time axis %d does not match %d timestamps", shape[len(shape)-1], len(timestamp))
	}
	ts := &TimeStream{NewContainer(vis.Group())}
	ts.SetDist(FieldVis, vis)
	ts.SetCommon(FieldTimestamp, timestamp)
	return ts
}

// Vis returns the visibility array.
func (ts *TimeStream) Vis() *darray.Array { return ts.Dist(FieldVis) }

// Timestamp returns the replicated timestamp axis.
func (ts *TimeStream) Timestamp() []float64 { return ts.Common(FieldTimestamp).([]float64) }

// A MaskedTimeStream is a timestream with a boolean bad-sample mask
// of the same shape as vis.
type MaskedTimeStream struct {
	*Container
}

// NewMaskedTimeStream derives a masked timestream from ts and an
// externally computed mask. The new container copies ts's attribute
// and common maps and adopts ts's vis field by reference: the
// visibility array is shared between the two containers until the
// donor is discarded.
func NewMaskedTimeStream(ts *TimeStream, mask *darray.Array) *MaskedTimeStream {
	if mask.DType() != darray.Bool {
		shapecheck.Panicf(1, "mask is %v, want bool", mask.DType())
	}
	vis := ts.Vis()
	if !sameShape(mask.Shape(), vis.Shape()) || mask.Axis() != vis.Axis() {
		shapecheck.Panicf(1, "mask %v does not match vis %v", mask, vis)
	}
	mts := &MaskedTimeStream{ts.derive()}
	mts.SetDist(FieldVis, vis)
	mts.SetDist(FieldMask, mask)
	return mts
}

// Vis returns the visibility array.
func (m *MaskedTimeStream) Vis() *darray.Array { return m.Dist(FieldVis) }

// Mask returns the boolean bad-sample mask.
func (m *MaskedTimeStream) Mask() *darray.Array { return m.Dist(FieldMask) }

// Timestamp returns the replicated timestamp axis.
func (m *MaskedTimeStream) Timestamp() []float64 { return m.Common(FieldTimestamp).([]float64) }

// A NoiseInjTimeStream holds gain-corrected visibilities from noise
// injection along with the gain solutions and their dynamic range.
type NoiseInjTimeStream struct {
	*Container
}

// NewNoiseInjTimeStream builds a noise-injection timestream from its
// component arrays, copying attributes from the donor timestream.
// gains has the shape of vis; dr has shape (freq, 1, time).
func NewNoiseInjTimeStream(ts *TimeStream, vis, gains, dr *darray.Array, timestamp []float64) *NoiseInjTimeStream {
	if !sameShape(gains.Shape(), vis.Shape()) {
		shapecheck.Panicf(1, "gains %v does not match vis %v", gains, vis)
	}
	nits := &NoiseInjTimeStream{ts.derive()}
	nits.SetCommon(FieldTimestamp, timestamp)
	nits.SetDist(FieldVis, vis)
	nits.SetDist(FieldGains, gains)
	nits.SetDist(FieldDR, dr)
	return nits
}

// Vis returns the gain-corrected visibility array.
func (n *NoiseInjTimeStream) Vis() *darray.Array { return n.Dist(FieldVis) }

// Gains returns the gain array. To remove the gain correction from
// the visibilities, multiply vis by gains.
func (n *NoiseInjTimeStream) Gains() *darray.Array { return n.Dist(FieldGains) }

// DR returns the dynamic-range parameter of the gain solution.
func (n *NoiseInjTimeStream) DR() *darray.Array { return n.Dist(FieldDR) }

// Timestamp returns the replicated timestamp axis.
func (n *NoiseInjTimeStream) Timestamp() []float64 { return n.Common(FieldTimestamp).([]float64) }

// A SiderealStream holds visibilities and weights against a
// replicated right-ascension axis.
type SiderealStream struct {
	*Container
}

// NewSiderealStream builds a sidereal stream from visibility and
// weight arrays and the replicated RA axis in degrees.
func NewSiderealStream(vis, weight *darray.Array, ra []float64) *SiderealStream {
	if !sameShape(weight.Shape(), vis.Shape()) || weight.Axis() != vis.Axis() {
		shapecheck.Panicf(1, "weight %v does not match vis %v", weight, vis)
	}
	ss := &SiderealStream{NewContainer(vis.Group())}
	ss.SetDist(FieldVis, vis)
	ss.SetDist(FieldWeight, weight)
	ss.SetCommon(FieldRA, ra)
	return ss
}

// Vis returns the visibility array.
func (s *SiderealStream) Vis() *darray.Array { return s.Dist(FieldVis) }

// Weight returns the per-sample noise weights.
func (s *SiderealStream) Weight() *darray.Array { return s.Dist(FieldWeight) }

// RA returns the replicated right-ascension axis.
func (s *SiderealStream) RA() []float64 { return s.Common(FieldRA).([]float64) }

func sameShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
