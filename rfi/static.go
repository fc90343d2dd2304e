// Copyright 2026 Radiocosmo Authors. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package rfi

// staticBands lists frequency ranges (MHz, inclusive start, exclusive
// end) of persistent terrestrial transmitters that are unusable
// regardless of the data: aircraft navigation, LTE uplink and
// downlink, band II FM spillover and the satellite downlink around
// 400 MHz.
var staticBands = [][2]float64{
	{399.9, 400.05},
	{449.75, 450.25},
	{454.0, 455.0},
	{499.9, 500.1},
	{529.9, 536.1},
	{541.9, 554.1},
	{564.0, 585.0},
	{693.0, 698.0},
	{729.0, 745.0},
	{746.0, 756.0},
	{777.0, 787.0},
}

// FrequencyMask returns the static per-channel mask for the given
// channel centre frequencies in MHz. Masked channels are true.
func FrequencyMask(freq []float64) []bool {
	mask := make([]bool, len(freq))
	for i, f := range freq {
		for _, b := range staticBands {
			if f >= b[0] && f < b[1] {
				mask[i] = true
				break
			}
		}
	}
	return mask
}
