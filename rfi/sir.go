// Copyright 2026 Radiocosmo Authors. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package rfi

// SIR1D applies the scale-invariant rank operator to a single flag
// line: a sample is flagged when it lies inside some interval whose
// flagged fraction exceeds 1-eta. Each sample carries weight eta when
// flagged and eta-1 when clean; a sample x is dilated into the mask
// exactly when some interval covering x has non-negative total
// weight. Larger eta dilates more aggressively.
func SIR1D(flag []bool, eta float64) []bool {
	n := len(flag)
	// Prefix sums of the sample weights. m[i] is the sum over
	// samples [0, i).
	m := make([]float64, n+1)
	for i, f := range flag {
		w := eta - 1
		if f {
			w = eta
		}
		m[i+1] = m[i] + w
	}
	// An interval [i, j) covering x has non-negative weight iff
	// m[j] >= m[i] for some i <= x < j, so x is flagged exactly
	// when the running minimum of m up to x meets a later value.
	prefMin := make([]float64, n+1)
	prefMin[0] = m[0]
	for i := 1; i <= n; i++ {
		prefMin[i] = prefMin[i-1]
		if m[i] < prefMin[i] {
			prefMin[i] = m[i]
		}
	}
	sufMax := make([]float64, n+1)
	sufMax[n] = m[n]
	for i := n - 1; i >= 0; i-- {
		sufMax[i] = sufMax[i+1]
		if m[i] > sufMax[i] {
			sufMax[i] = m[i]
		}
	}
	out := make([]bool, n)
	for x := 0; x < n; x++ {
		out[x] = sufMax[x+1] >= prefMin[x]
	}
	return out
}

// SIR applies SIR1D to every frequency row of an (nf x nt) mask. The
// result always contains the input for eta > 0.
func SIR(mask []bool, nf, nt int, eta float64) []bool {
	checkGrid(1, len(mask), len(mask), nf, nt)
	out := make([]bool, nf*nt)
	for i := 0; i < nf; i++ {
		copy(out[i*nt:(i+1)*nt], SIR1D(mask[i*nt:(i+1)*nt], eta))
	}
	return out
}

// AddSIR dilates mask along the time axis with the scale-invariant
// rank operator, ignoring samples carried by baseFlag. Samples in
// baseFlag are excluded from the dilation input, so a statically
// masked region does not bleed flags into its neighbourhood, and are
// restored into the result afterwards.
func AddSIR(mask, baseFlag []bool, nf, nt int, eta float64) []bool {
	checkGrid(1, len(mask), len(baseFlag), nf, nt)
	out := make([]bool, nf*nt)
	line := make([]bool, nt)
	for i := 0; i < nf; i++ {
		row := mask[i*nt : (i+1)*nt]
		base := baseFlag[i*nt : (i+1)*nt]
		for j := 0; j < nt; j++ {
			line[j] = row[j] && !base[j]
		}
		dil := SIR1D(line, eta)
		for j := 0; j < nt; j++ {
			out[i*nt+j] = dil[j] || base[j]
		}
	}
	return out
}
