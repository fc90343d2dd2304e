// Copyright 2026 Radiocosmo Authors. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package rfi

// Destripe removes the masked median over time from every frequency
// row of an (nf x nt) grid, in place. Rows with no unmasked samples
// are left untouched.
func Destripe(x []float64, mask []bool, nf, nt int) {
	checkGrid(1, len(x), len(mask), nf, nt)
	for i := 0; i < nf; i++ {
		row := x[i*nt : (i+1)*nt]
		med := maskedMedian(row, mask[i*nt:(i+1)*nt])
		if med != med {
			continue
		}
		for j := range row {
			row[j] -= med
		}
	}
}

// DestripeCmplx removes the masked median over time from every
// frequency row of a complex grid, treating real and imaginary parts
// independently.
func DestripeCmplx(x []complex128, mask []bool, nf, nt int) {
	checkGrid(1, len(x), len(mask), nf, nt)
	re := make([]float64, nt)
	im := make([]float64, nt)
	for i := 0; i < nf; i++ {
		row := x[i*nt : (i+1)*nt]
		m := mask[i*nt : (i+1)*nt]
		for j, v := range row {
			re[j] = real(v)
			im[j] = imag(v)
		}
		medRe := maskedMedian(re, m)
		medIm := maskedMedian(im, m)
		if medRe != medRe || medIm != medIm {
			continue
		}
		for j := range row {
			row[j] -= complex(medRe, medIm)
		}
	}
}
