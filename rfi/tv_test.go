// Copyright 2026 Radiocosmo Authors. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package rfi

import (
	"math"
	"testing"
)

func TestSigmaRoundTrip(t *testing.T) {
	for _, s := range []float64{1, 2, 5} {
		if got := PToSigma(SigmaToP(s)); math.Abs(got-s) > 1e-9 {
			t.Errorf("PToSigma(SigmaToP(%v)) = %v", s, got)
		}
	}
}

// tvGrid builds 20 channels inside the first TV band with nexceed of
// them pushed far above any plausible threshold at time sample 1.
func tvGrid(nexceed int) (dev, freq []float64) {
	const nf, nt = 20, 4
	freq = make([]float64, nf)
	for i := range freq {
		freq[i] = 398.5 + float64(i)*0.25
	}
	dev = make([]float64, nf*nt)
	for i := 0; i < nexceed; i++ {
		dev[i*nt+1] = 50
	}
	return dev, freq
}

func TestTVChannelsFlag(t *testing.T) {
	const nf, nt = 20, 4
	// With f = 0.5 and 20 channels in the band, 11 exceedances
	// flag the whole band at that sample and 9 do not.
	dev, freq := tvGrid(11)
	mask := TVChannelsFlag(dev, freq, nf, nt, 5, 0.5)
	for i := 0; i < nf; i++ {
		if !mask[i*nt+1] {
			t.Fatalf("channel %d not flagged at the contaminated sample", i)
		}
		if mask[i*nt+0] || mask[i*nt+2] {
			t.Fatalf("channel %d flagged at a clean sample", i)
		}
	}

	dev, freq = tvGrid(9)
	mask = TVChannelsFlag(dev, freq, nf, nt, 5, 0.5)
	for i, f := range mask {
		if f {
			t.Fatalf("flag at %d with only 9 of 20 channels over threshold", i)
		}
	}
}

func TestTVChannelsFlagNaN(t *testing.T) {
	dev, freq := tvGrid(11)
	for i := range dev {
		if dev[i] == 0 {
			dev[i] = math.NaN()
		}
	}
	mask := TVChannelsFlag(dev, freq, 20, 4, 5, 0.5)
	for i := 0; i < 20; i++ {
		if !mask[i*4+1] {
			t.Fatalf("channel %d not flagged with NaN fill", i)
		}
	}
}
