// Copyright 2026 Radiocosmo Authors. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package rfi

import "testing"

func TestSumThresholdFlat(t *testing.T) {
	const nf, nt = 16, 64
	data := make([]float64, nf*nt)
	for i := range data {
		data[i] = 7
	}
	flag := SumThreshold(data, nf, nt, 8, make([]bool, nf*nt), 1000)
	for i, f := range flag {
		if f {
			t.Fatalf("spurious flag at %d on flat data", i)
		}
	}
}

func TestSumThresholdRun(t *testing.T) {
	// A run of 8 samples at +5 on a zero background with
	// threshold1 = 10: the pointwise test (threshold 10) misses
	// it, the windowed tests (threshold 4.44 at m=4) catch it,
	// and nothing outside the run gets flagged because windows
	// straddling the run edge dilute below threshold.
	const nf, nt = 8, 32
	data := make([]float64, nf*nt)
	for j := 10; j < 18; j++ {
		data[3*nt+j] = 5
		data[6*nt+j] = -5
	}
	flag := SumThreshold(data, nf, nt, 8, make([]bool, nf*nt), 10)
	for i := 0; i < nf; i++ {
		for j := 0; j < nt; j++ {
			want := (i == 3 || i == 6) && j >= 10 && j < 18
			if flag[i*nt+j] != want {
				t.Fatalf("flag[%d][%d] = %v, want %v", i, j, flag[i*nt+j], want)
			}
		}
	}
}

func TestSumThresholdSuperset(t *testing.T) {
	const nf, nt = 4, 16
	data := make([]float64, nf*nt)
	start := make([]bool, nf*nt)
	start[2*nt+5] = true
	flag := SumThreshold(data, nf, nt, 4, start, 100)
	if !flag[2*nt+5] {
		t.Error("start flag dropped")
	}
	if start[2*nt+5] != true {
		t.Error("start flag mutated")
	}
}

func TestSumThresholdExcludesFlagged(t *testing.T) {
	// A huge sample that is already flagged must not drag its
	// window over threshold.
	const nf, nt = 2, 16
	data := make([]float64, nf*nt)
	start := make([]bool, nf*nt)
	data[4] = 1e6
	start[4] = true
	flag := SumThreshold(data, nf, nt, 8, start, 10)
	for i, f := range flag {
		if f && i != 4 {
			t.Fatalf("flag at %d leaked from an excluded sample", i)
		}
	}
}
