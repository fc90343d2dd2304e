// Copyright 2026 Radiocosmo Authors. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package rfi

import (
	"math/rand"
	"testing"

	fuzz "github.com/google/gofuzz"
)

func TestSIRBridge(t *testing.T) {
	in := []bool{true, false, true}
	if got := SIR1D(in, 0.6); !got[1] {
		t.Errorf("eta 0.6 did not bridge a single-sample gap: %v", got)
	}
	if got := SIR1D(in, 0.2); got[1] {
		t.Errorf("eta 0.2 bridged a single-sample gap: %v", got)
	}
}

func TestSIRDilates(t *testing.T) {
	in := make([]bool, 20)
	for j := 5; j < 15; j++ {
		in[j] = true
	}
	out := SIR1D(in, 0.5)
	nin, nout := count(in), count(out)
	if nout <= nin {
		t.Errorf("dilation did not grow a long run: %d -> %d", nin, nout)
	}
}

func TestSIRMonotone(t *testing.T) {
	fz := fuzz.New().NilChance(0).NumElements(1, 128)
	rng := rand.New(rand.NewSource(3))
	for iter := 0; iter < 200; iter++ {
		var in []bool
		fz.Fuzz(&in)
		eta := rng.Float64()*0.98 + 0.01
		out := SIR1D(in, eta)
		for j, f := range in {
			if f && !out[j] {
				t.Fatalf("eta %v cleared flag %d of %v", eta, j, in)
			}
		}
	}
}

func TestAddSIRExcludesBase(t *testing.T) {
	const nf, nt = 1, 20
	base := make([]bool, nt)
	for j := 5; j < 15; j++ {
		base[j] = true
	}
	mask := append([]bool(nil), base...)
	// With the run carried entirely by the base flag, nothing is
	// left to dilate from.
	out := AddSIR(mask, base, nf, nt, 0.5)
	for j, f := range out {
		if f != base[j] {
			t.Fatalf("out[%d] = %v, want %v: base flag bled into the dilation", j, f, base[j])
		}
	}
	// The same run without the exclusion does dilate.
	out = AddSIR(mask, make([]bool, nt), nf, nt, 0.5)
	if count(out) <= count(mask) {
		t.Error("dilation without a base flag did not grow the run")
	}
}

func count(m []bool) int {
	n := 0
	for _, f := range m {
		if f {
			n++
		}
	}
	return n
}
