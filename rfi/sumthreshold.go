// Copyright 2026 Radiocosmo Authors. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package rfi

import "math"

// SumThreshold runs the iterative SumThreshold flagger over the
// (nf x nt) grid data. Window sizes m double from 1 up to maxM; at
// each m, windows of m samples are tested along the time axis and
// then along the frequency axis, and a window whose sum of unflagged
// data exceeds count*threshold(m) in either sign is flagged whole.
// The per-size threshold shrinks geometrically,
//
//	threshold(m) = threshold1 / 1.5^log2(m),
//
// so that wide, weak interference is caught by the larger windows.
// Flags accumulate monotonically: the result is a superset of
// startFlag, and samples flagged at one window size are excluded
// from the sums at all later sizes. startFlag is not mutated.
func SumThreshold(data []float64, nf, nt int, maxM int, startFlag []bool, threshold1 float64) []bool {
	checkGrid(1, len(data), len(startFlag), nf, nt)
	flag := append([]bool(nil), startFlag...)
	for m := 1; m <= maxM; m *= 2 {
		threshold := threshold1
		if m > 1 {
			threshold = threshold1 / math.Pow(1.5, math.Log2(float64(m)))
		}
		sumthresholdPass(data, flag, nf, nt, m, threshold, true)
		sumthresholdPass(data, flag, nf, nt, m, threshold, false)
	}
	return flag
}

// sumthresholdPass tests all m-sample windows along the time axis
// (alongTime) or the frequency axis. Within a pass, every line is
// scanned against the flag state at pass start and the offending
// windows are folded into the accumulator only after the line has
// been scanned, so the pass result does not depend on scan order.
func sumthresholdPass(data []float64, flag []bool, nf, nt, m int, threshold float64, alongTime bool) {
	var lines, n, lineStride, stride int
	if alongTime {
		lines, n, lineStride, stride = nf, nt, nt, 1
	} else {
		lines, n, lineStride, stride = nt, nf, 1, nt
	}
	if m > n {
		return
	}
	offending := make([]int, 0, n)
	for li := 0; li < lines; li++ {
		base := li * lineStride
		var (
			dsum float64
			csum int
		)
		for i := 0; i < m; i++ {
			if idx := base + i*stride; !flag[idx] {
				dsum += data[idx]
				csum++
			}
		}
		offending = offending[:0]
		for start := 0; ; start++ {
			if t := float64(csum) * threshold; dsum > t || dsum < -t {
				offending = append(offending, start)
			}
			if start+m >= n {
				break
			}
			if out := base + start*stride; !flag[out] {
				dsum -= data[out]
				csum--
			}
			if in := base + (start+m)*stride; !flag[in] {
				dsum += data[in]
				csum++
			}
		}
		for _, s := range offending {
			for i := 0; i < m; i++ {
				flag[base+(s+i)*stride] = true
			}
		}
	}
}
