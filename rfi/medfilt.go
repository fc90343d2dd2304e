// Copyright 2026 Radiocosmo Authors. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package rfi implements the radio-frequency-interference masking
// engine: masked median filtering, median-absolute-deviation
// estimation, the iterative SumThreshold flagger, TV-band flagging,
// and the scale-invariant-rank mask dilation operator. All
// procedures are state-free and operate on one worker's locally-held
// (frequency x time) slice, stored row-major with frequency as the
// leading axis; they are invoked identically on every worker after
// the containing dataset has been redistributed so that the needed
// axis is fully local.
package rfi

import (
	"math"
	"sort"

	"github.com/radiocosmo/driftvis/shapecheck"
)

// NaN marks positions where a statistic is undefined because too
// much of the surrounding data is masked. Callers must replace it
// with a conservative always-flag sentinel before thresholding.
var nan = math.NaN()

// MedFilt computes a moving masked median of the (nf x nt) grid x:
// at each position, the median of the unmasked values inside a
// window of size[0] frequency channels by size[1] time samples
// centered there. Masked positions contribute no weight. Positions
// whose entire window is masked yield NaN. The window is truncated
// at the grid edges.
func MedFilt(x []float64, mask []bool, nf, nt int, size [2]int) []float64 {
	checkGrid(1, len(x), len(mask), nf, nt)
	if size[0] <= 0 || size[1] <= 0 {
		shapecheck.Panicf(1, "invalid window %v", size)
	}
	var (
		out = make([]float64, len(x))
		hf  = size[0] / 2
		ht  = size[1] / 2
		buf = make([]float64, 0, size[0]*size[1])
	)
	for i := 0; i < nf; i++ {
		f0, f1 := i-hf, i+hf
		if f0 < 0 {
			f0 = 0
		}
		if f1 > nf-1 {
			f1 = nf - 1
		}
		for j := 0; j < nt; j++ {
			t0, t1 := j-ht, j+ht
			if t0 < 0 {
				t0 = 0
			}
			if t1 > nt-1 {
				t1 = nt - 1
			}
			buf = buf[:0]
			for fi := f0; fi <= f1; fi++ {
				row := fi * nt
				for ti := t0; ti <= t1; ti++ {
					if !mask[row+ti] {
						buf = append(buf, x[row+ti])
					}
				}
			}
			out[i*nt+j] = median(buf)
		}
	}
	return out
}

// MedFiltCmplx filters complex data by applying the masked median to
// the real and imaginary parts independently and recombining.
func MedFiltCmplx(x []complex128, mask []bool, nf, nt int, size [2]int) []complex128 {
	checkGrid(1, len(x), len(mask), nf, nt)
	re := make([]float64, len(x))
	im := make([]float64, len(x))
	for i, v := range x {
		re[i] = real(v)
		im[i] = imag(v)
	}
	fre := MedFilt(re, mask, nf, nt, size)
	fim := MedFilt(im, mask, nf, nt, size)
	out := make([]complex128, len(x))
	for i := range out {
		out[i] = complex(fre[i], fim[i])
	}
	return out
}

// median returns the median of buf, mutating it. An empty buf yields
// NaN.
func median(buf []float64) float64 {
	n := len(buf)
	if n == 0 {
		return nan
	}
	sort.Float64s(buf)
	if n%2 == 1 {
		return buf[n/2]
	}
	return 0.5 * (buf[n/2-1] + buf[n/2])
}

// maskedMedian returns the median of the unmasked values of x.
func maskedMedian(x []float64, mask []bool) float64 {
	buf := make([]float64, 0, len(x))
	for i, v := range x {
		if !mask[i] {
			buf = append(buf, v)
		}
	}
	return median(buf)
}

func checkGrid(calldepth, nx, nmask, nf, nt int) {
	if nx != nf*nt {
		shapecheck.Panicf(calldepth+1, "grid has %d elements, want %d x %d", nx, nf, nt)
	}
	if nmask != nx {
		shapecheck.Panicf(calldepth+1, "mask has %d elements, want %d", nmask, nx)
	}
}
