// Copyright 2026 Radiocosmo Authors. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package rfi

import (
	"gonum.org/v1/gonum/mathext"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/radiocosmo/driftvis/shapecheck"
)

// Broadcast-television bands: 67 sub-bands of 6 MHz starting at
// 398 MHz.
const (
	tvStartFreq = 398.0
	tvWidthFreq = 6.0
	tvNumBands  = 67
)

var stdNormal = distuv.Normal{Mu: 0, Sigma: 1}

// SigmaToP returns the two-sided probability of a Gaussian excursion
// larger than sigma.
func SigmaToP(sigma float64) float64 {
	return 2 * stdNormal.Survival(sigma)
}

// PToSigma returns the sigma exceeded by the tails of a Gaussian
// with probability p.
func PToSigma(p float64) float64 {
	return stdNormal.Quantile(1 - p/2)
}

// InvBinomCDFProb returns the per-trial probability p such that
// Pr(X <= k; N, p) = F for a binomial X, using the incomplete-beta
// form of the binomial CDF.
func InvBinomCDFProb(k, n int, f float64) float64 {
	return mathext.InvRegIncBeta(float64(k+1), float64(n-k), 1-f)
}

// TVChannelsFlag performs a higher-sensitivity flagging for the TV
// station bands. dev is the (nf x nt) grid of deviations in sigma
// units; freq gives the frequency in MHz of each of the nf channels.
// For every band, a per-channel threshold is derived so that, under
// the Gaussian null implied by sigma, the chance of more than
// f*(band size) channels exceeding it simultaneously is bounded by
// the same false-positive rate; a time sample at which the measured
// exceedance fraction surpasses f has the entire band flagged. NaN
// deviations never count as exceedances.
func TVChannelsFlag(dev []float64, freq []float64, nf, nt int, sigma, f float64) []bool {
	checkGrid(1, len(dev), nf*nt, nf, nt)
	if len(freq) != nf {
		shapecheck.Panicf(1, "have %d frequencies for %d channels", len(freq), nf)
	}
	pFalse := SigmaToP(sigma)
	mask := make([]bool, nf*nt)
	sel := make([]int, 0, nf)
	for band := 0; band < tvNumBands; band++ {
		fs := tvStartFreq + float64(band)*tvWidthFreq
		fe := fs + tvWidthFreq
		sel = sel[:0]
		for i, fq := range freq {
			if fq >= fs && fq < fe {
				sel = append(sel, i)
			}
		}
		n := len(sel)
		if n == 0 {
			continue
		}
		k := int(f * float64(n))
		if k >= n {
			continue
		}
		t := PToSigma(InvBinomCDFProb(k, n, 1-pFalse))
		for j := 0; j < nt; j++ {
			exceed := 0
			for _, i := range sel {
				if dev[i*nt+j] > t {
					exceed++
				}
			}
			if float64(exceed)/float64(n) > f {
				for _, i := range sel {
					mask[i*nt+j] = true
				}
			}
		}
	}
	return mask
}
