// Copyright 2026 Radiocosmo Authors. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package ephem

import (
	"math"
	"testing"
)

var testSite = Observatory{Longitude: -119.62 * math.Pi / 180, Latitude: 49.32 * math.Pi / 180}

func TestLSARate(t *testing.T) {
	// The sidereal angle must advance by 2pi per sidereal day.
	t0 := 1.7e9
	a0 := testSite.LSA(t0)
	a1 := testSite.LSA(t0 + SiderealDay)
	if d := math.Abs(wrap(a1 - a0)); d > 1e-4 && d < 2*math.Pi-1e-4 {
		t.Errorf("LSA advanced by %v over a sidereal day", d)
	}
}

func TestNextTransit(t *testing.T) {
	t0 := 1.7e9
	tt := testSite.NextTransit(CasA.RA, t0)
	if tt < t0 || tt >= t0+SiderealDay {
		t.Fatalf("transit %v outside [t0, t0+sidereal day)", tt-t0)
	}
	if lsa := testSite.LSA(tt); math.Abs(wrap(lsa-CasA.RA)) > 1e-3 && math.Abs(wrap(lsa-CasA.RA)) < 2*math.Pi-1e-3 {
		t.Errorf("LSA at transit is %v, want %v", lsa, CasA.RA)
	}
	// Transits recur at the sidereal rate.
	tt2 := testSite.NextTransit(CasA.RA, tt+1)
	if d := tt2 - tt; math.Abs(d-SiderealDay) > 1 {
		t.Errorf("transit spacing %v, want %v", d, SiderealDay)
	}
}

func TestSolarPosition(t *testing.T) {
	// Around the June solstice the Sun sits near its maximum
	// declination of 23.44 degrees.
	// 2026-06-21 12:00 UTC.
	ts := 1781956800.0
	_, dec := SolarPosition(ts)
	if math.Abs(dec-0.4091) > 0.02 {
		t.Errorf("solstice declination %v, want about 0.409", dec)
	}
}

func TestTransitWindows(t *testing.T) {
	t0 := 1.7e9
	tt := testSite.NextTransit(CygA.RA, t0)
	// One day of ten-second samples bracketing the transit.
	n := 8640
	timestamp := make([]float64, n)
	for i := range timestamp {
		timestamp[i] = tt - 43200 + float64(i)*10
	}
	mask := testSite.TransitWindows(timestamp)
	half := BeamWindow / (2 * math.Pi) * SiderealDay / 2
	for i, ts := range timestamp {
		if math.Abs(ts-tt) < half-1 && !mask[i] {
			t.Fatalf("sample at transit offset %v not masked", ts-tt)
		}
	}
	// Far from any transit at least some samples must survive.
	clean := 0
	for _, m := range mask {
		if !m {
			clean++
		}
	}
	if clean == 0 {
		t.Error("every sample masked")
	}
}
