// Copyright 2026 Radiocosmo Authors. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package rfi

import (
	"math"

	"github.com/grailbio/base/log"

	"github.com/radiocosmo/driftvis/shapecheck"
)

// MaskType selects which of the computed masks becomes the final one.
type MaskType string

const (
	// TypeMAD keeps only the pointwise MAD mask.
	TypeMAD MaskType = "mad"
	// TypeSumThreshold keeps only the SumThreshold mask.
	TypeSumThreshold MaskType = "sumthreshold"
	// TypeCombine uses the SumThreshold mask everywhere except
	// inside bright-source transit windows, where the gentler MAD
	// mask substitutes.
	TypeCombine MaskType = "combine"
)

// Config holds the tunables of the masking engine. The zero value is
// not useful; start from DefaultConfig.
type Config struct {
	// Sigma is the false-positive rate of the pointwise tests, in
	// Gaussian-sigma units.
	Sigma float64
	// TVFraction is the fraction of a TV band that must exceed
	// threshold before the whole band is flagged.
	TVFraction float64
	// MaxM caps the SumThreshold window-doubling sequence.
	MaxM int
	// StartSigma scales the initial SumThreshold threshold,
	// expressed in units of the data's own MAD estimate.
	StartSigma float64
	// RemoveMedian subtracts the per-channel masked median over
	// time before any test runs.
	RemoveMedian bool
	// SIR enables the final scale-invariant-rank dilation.
	SIR bool
	// SIREta sets the dilation aggressiveness, in (0, 1).
	SIREta float64
	// Type selects the combination policy.
	Type MaskType
	// BaseSize and MADSize are the (frequency, time) window shapes
	// of the baseline and deviation median filters.
	BaseSize [2]int
	MADSize  [2]int
}

// DefaultConfig returns the production masking configuration.
func DefaultConfig() Config {
	return Config{
		Sigma:        5,
		TVFraction:   0.5,
		MaxM:         8,
		StartSigma:   8,
		RemoveMedian: true,
		SIR:          true,
		SIREta:       0.2,
		Type:         TypeCombine,
		BaseSize:     [2]int{11, 3},
		MADSize:      [2]int{21, 21},
	}
}

// Params carries the per-run context of a Mask call. Everything the
// policy depends on beyond the data itself is passed here explicitly;
// the engine holds no implicit state between calls.
type Params struct {
	// Freq gives the centre frequency in MHz of each channel.
	Freq []float64
	// MADTimes marks the time samples inside a bright-source or
	// solar transit window, where the MAD mask substitutes for the
	// SumThreshold mask under TypeCombine. May be nil when no
	// substitution is wanted.
	MADTimes []bool
	// Static marks channels that are unusable regardless of the
	// data (see FrequencyMask). May be nil.
	Static []bool
	// Start optionally supplies a per-polarization starting flag
	// grid, typically derived from zero weights. When nil only the
	// static channel mask seeds the tests.
	Start [][]bool
}

// Mask computes the combined RFI mask over one or more polarizations
// of an (nf x nt) metric grid, typically a radiometric sensitivity.
// Each polarization is tested independently with both the pointwise
// MAD test and SumThreshold, the per-polarization masks are OR'ed,
// and the two accumulated masks are merged according to c.Type. The
// result never loses a flag present in the static mask or in any
// Start grid.
func (c Config) Mask(pols [][]float64, p Params) []bool {
	nf := len(p.Freq)
	if len(pols) == 0 || nf == 0 {
		shapecheck.Panicf(1, "no data")
	}
	if len(pols[0])%nf != 0 {
		shapecheck.Panicf(1, "grid has %d elements, not a multiple of %d channels", len(pols[0]), nf)
	}
	nt := len(pols[0]) / nf

	staticGrid := make([]bool, nf*nt)
	if p.Static != nil {
		if len(p.Static) != nf {
			shapecheck.Panicf(1, "static mask has %d channels, want %d", len(p.Static), nf)
		}
		for i := 0; i < nf; i++ {
			if p.Static[i] {
				for j := 0; j < nt; j++ {
					staticGrid[i*nt+j] = true
				}
			}
		}
	}
	if p.MADTimes != nil && len(p.MADTimes) != nt {
		shapecheck.Panicf(1, "transit window mask has %d samples, want %d", len(p.MADTimes), nt)
	}

	madAll := make([]bool, nf*nt)
	stAll := make([]bool, nf*nt)
	for pi, pol := range pols {
		checkGrid(1, len(pol), nf*nt, nf, nt)
		data := append([]float64(nil), pol...)

		wflag := make([]bool, nf*nt)
		if p.Start != nil {
			checkGrid(1, len(pol), len(p.Start[pi]), nf, nt)
			copy(wflag, p.Start[pi])
		}
		// The per-channel median sees only the weight-derived flag;
		// the static channel mask folds in afterwards.
		if c.RemoveMedian {
			Destripe(data, wflag, nf, nt)
		}
		start := append([]bool(nil), staticGrid...)
		for i, f := range wflag {
			start[i] = start[i] || f
		}

		dev := MAD(data, start, nf, nt, c.BaseSize, c.MADSize)
		// Under-determined points must always flag.
		for i, d := range dev {
			if math.IsNaN(d) {
				dev[i] = 2 * c.Sigma
			}
		}
		tv := TVChannelsFlag(dev, p.Freq, nf, nt, c.Sigma, c.TVFraction)
		for i := range madAll {
			madAll[i] = madAll[i] || dev[i] > c.Sigma || tv[i] || start[i]
		}

		stStart := make([]bool, nf*nt)
		for i := range stStart {
			stStart[i] = start[i] || tv[i]
		}
		threshold1 := c.startThreshold(data, stStart)
		st := SumThreshold(data, nf, nt, c.MaxM, stStart, threshold1)
		for i, f := range st {
			stAll[i] = stAll[i] || f
		}
	}

	var mask []bool
	switch c.Type {
	case TypeMAD:
		mask = madAll
	case TypeSumThreshold:
		mask = stAll
	case TypeCombine:
		mask = stAll
		if p.MADTimes != nil {
			for i := 0; i < nf; i++ {
				for j := 0; j < nt; j++ {
					if p.MADTimes[j] {
						mask[i*nt+j] = madAll[i*nt+j]
					}
				}
			}
		}
	default:
		shapecheck.Panicf(1, "unknown mask type %q", c.Type)
	}

	if c.SIR {
		mask = AddSIR(mask, staticGrid, nf, nt, c.SIREta)
	}

	flagged := 0
	for _, f := range mask {
		if f {
			flagged++
		}
	}
	log.Printf("rfi: flagged %.2f%% of %d x %d samples (%d polarizations)",
		100*float64(flagged)/float64(len(mask)), nf, nt, len(pols))
	return mask
}

// startThreshold derives the initial SumThreshold threshold from the
// data's own MAD noise estimate, scaled so that after the geometric
// shrink the threshold at the largest window sits StartSigma noise
// units above zero.
func (c Config) startThreshold(data []float64, mask []bool) float64 {
	med := maskedMedian(data, mask)
	dev := make([]float64, 0, len(data))
	for i, v := range data {
		if !mask[i] {
			dev = append(dev, math.Abs(v-med))
		}
	}
	rms := MADToSigma * median(dev)
	if math.IsNaN(rms) || rms == 0 {
		rms = 1
	}
	return rms * c.StartSigma * math.Pow(float64(c.MaxM), math.Log2(1.5)-0.5)
}
