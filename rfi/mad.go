// Copyright 2026 Radiocosmo Authors. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package rfi

import "math"

// MADToSigma converts a median absolute deviation to an equivalent
// Gaussian standard deviation.
const MADToSigma = 1.4826

// MAD estimates, at every point of the (nf x nt) grid x, the size of
// the point's deviation from a local baseline in Gaussian-sigma
// units. The baseline is a masked moving median with window
// baseSize; the deviation scale is a masked moving median of the
// absolute deviations with window madSize, restored to sigma units
// by MADToSigma. Positions where too much surrounding data is masked
// yield NaN; callers must substitute a sentinel of at least twice
// their flagging threshold so under-determined points are always
// flagged rather than silently passed.
func MAD(x []float64, mask []bool, nf, nt int, baseSize, madSize [2]int) []float64 {
	checkGrid(1, len(x), len(mask), nf, nt)
	baseline := MedFilt(x, mask, nf, nt, baseSize)
	dev := make([]float64, len(x))
	for i := range dev {
		dev[i] = math.Abs(x[i] - baseline[i])
	}
	scale := MedFilt(dev, mask, nf, nt, madSize)
	out := make([]float64, len(x))
	for i := range out {
		s := scale[i] * MADToSigma
		if s == 0 || math.IsNaN(s) {
			out[i] = nan
			continue
		}
		out[i] = dev[i] / s
	}
	return out
}
