// Copyright 2026 Radiocosmo Authors. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package ephem provides the small amount of positional astronomy the
// pipeline needs: local sidereal angles, transit times of the bright
// point sources, and an approximate solar position. Angles are
// radians and times are Unix seconds throughout.
package ephem

import "math"

// SiderealDay is the length of one sidereal day in seconds.
const SiderealDay = 86164.0905

// BeamWindow is the width in right ascension over which a transiting
// source contaminates the visibilities.
const BeamWindow = 2 * math.Pi / 90

// Source is a fixed celestial source in equatorial coordinates
// (J2000).
type Source struct {
	Name string
	RA   float64
	Dec  float64
}

// The bright point sources whose transits saturate the receivers.
var (
	CasA = Source{Name: "CAS_A", RA: 6.123487, Dec: 1.026515}
	CygA = Source{Name: "CYG_A", RA: 5.233687, Dec: 0.709407}
	TauA = Source{Name: "TAU_A", RA: 1.459672, Dec: 0.384225}
)

// BrightSources lists the sources used for transit masking, brightest
// first.
var BrightSources = []Source{CasA, CygA, TauA}

// Observatory describes the telescope site. Longitude is positive
// east, in radians.
type Observatory struct {
	Longitude float64
	Latitude  float64
}

func julianDay(t float64) float64 {
	return t/86400 + 2440587.5
}

// LSA returns the local sidereal angle at Unix time t, in [0, 2pi).
// It is the Earth rotation angle offset by the site longitude, which
// is accurate to well under the beam width over the epochs of
// interest.
func (o Observatory) LSA(t float64) float64 {
	tu := julianDay(t) - 2451545.0
	era := 2 * math.Pi * (0.7790572732640 + 1.00273781191135448*tu)
	return wrap(era + o.Longitude)
}

// NextTransit returns the first time at or after t at which a source
// at right ascension ra crosses the local meridian.
func (o Observatory) NextTransit(ra, t float64) float64 {
	dra := wrap(ra - o.LSA(t))
	return t + dra/(2*math.Pi)*SiderealDay
}

// SolarPosition returns the right ascension and declination of the
// Sun at Unix time t, using the low-precision formula from the
// Astronomical Almanac (good to about 0.01 rad).
func SolarPosition(t float64) (ra, dec float64) {
	n := julianDay(t) - 2451545.0
	l := 4.89495042 + 0.0172027924*n
	g := 6.240040768 + 0.0172019703*n
	lambda := l + 0.0334230552*math.Sin(g) + 0.00034906585*math.Sin(2*g)
	eps := 0.409087723 - 6.98e-9*n
	ra = math.Atan2(math.Cos(eps)*math.Sin(lambda), math.Cos(lambda))
	dec = math.Asin(math.Sin(eps) * math.Sin(lambda))
	return wrap(ra), dec
}

// NextSolarTransit returns the first solar transit at or after t. The
// solar right ascension drifts during the day, so the fixed-source
// solution is refined once.
func (o Observatory) NextSolarTransit(t float64) float64 {
	ra, _ := SolarPosition(t)
	tt := o.NextTransit(ra, t)
	ra, _ = SolarPosition(tt)
	tt2 := o.NextTransit(ra, t)
	return tt2
}

// TransitWindows marks every sample of timestamp that falls inside a
// transit window of one of the bright point sources or of the Sun.
// Each window spans the beam width in right ascension, widened by
// 1/cos(declination) because a source off the celestial equator
// crosses the beam more slowly, and converted to seconds at the
// sidereal rate.
func (o Observatory) TransitWindows(timestamp []float64) []bool {
	mask := make([]bool, len(timestamp))
	if len(timestamp) == 0 {
		return mask
	}
	t0, t1 := timestamp[0], timestamp[0]
	for _, t := range timestamp {
		if t < t0 {
			t0 = t
		}
		if t > t1 {
			t1 = t
		}
	}
	markTransits(mask, timestamp, t0, t1, func(t float64) (float64, float64) {
		tt := o.NextSolarTransit(t)
		_, dec := SolarPosition(tt)
		return tt, transitHalfWidth(dec)
	})
	for _, src := range BrightSources {
		src := src
		markTransits(mask, timestamp, t0, t1, func(t float64) (float64, float64) {
			return o.NextTransit(src.RA, t), transitHalfWidth(src.Dec)
		})
	}
	return mask
}

// transitHalfWidth returns the half-width in seconds of a transit
// window for a source at the given declination.
func transitHalfWidth(dec float64) float64 {
	return BeamWindow / (2 * math.Pi) * SiderealDay / (2 * math.Cos(dec))
}

// markTransits walks the transits covering [t0, t1] and marks the
// samples inside each window. next returns the first transit at or
// after its argument along with the window half-width to apply there.
func markTransits(mask []bool, timestamp []float64, t0, t1 float64, next func(float64) (float64, float64)) {
	maxHalf := transitHalfWidth(CasA.Dec)
	for t := t0 - maxHalf; t <= t1+maxHalf; {
		tt, half := next(t)
		for i, ts := range timestamp {
			if ts >= tt-half && ts <= tt+half {
				mask[i] = true
			}
		}
		t = tt + 1
	}
}

func wrap(a float64) float64 {
	a = math.Mod(a, 2*math.Pi)
	if a < 0 {
		a += 2 * math.Pi
	}
	return a
}
