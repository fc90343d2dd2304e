// Copyright 2026 Radiocosmo Authors. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package darray

import (
	"github.com/radiocosmo/driftvis/shapecheck"
)

// Reshape returns a view of the array with a new global shape. The
// shard axis must survive the reshape intact: newShape must contain
// an axis of the same extent, preceded and followed by the same total
// number of elements, so that no data movement is needed. Merging the
// shard axis with another axis panics; Redistribute off the axis
// first. The local buffer is shared with the receiver.
func (a *Array) Reshape(newShape []int) *Array {
	if got, want := prod(newShape), prod(a.shape); got != want {
		shapecheck.Panicf(1, "cannot reshape %v (%d elements) to %v (%d elements)", a.shape, want, newShape, got)
	}
	pre, post := 1, 1
	for i := 0; i < a.axis; i++ {
		pre *= a.shape[i]
	}
	for i := a.axis + 1; i < len(a.shape); i++ {
		post *= a.shape[i]
	}
	newAxis := -1
	p := 1
	for i, dim := range newShape {
		if p == pre && dim == a.shape[a.axis] {
			q := 1
			for j := i + 1; j < len(newShape); j++ {
				q *= newShape[j]
			}
			if q == post {
				newAxis = i
				break
			}
		}
		p *= dim
	}
	if newAxis < 0 {
		shapecheck.Panicf(1, "reshape %v to %v would merge shard axis %d; redistribute first", a.shape, newShape, a.axis)
	}
	return &Array{
		group: a.group,
		shape: append([]int(nil), newShape...),
		dtype: a.dtype,
		axis:  newAxis,
		off:   a.off,
		local: a.local,
	}
}

// Transpose returns the array with its axes permuted so that axis i
// of the result is axis perm[i] of the receiver. The shard axis is
// re-mapped to its new position. The permutation is applied to the
// local buffer, so the result owns fresh storage.
func (a *Array) Transpose(perm []int) *Array {
	if len(perm) != len(a.shape) {
		shapecheck.Panicf(1, "permutation %v does not match %d-dimensional array", perm, len(a.shape))
	}
	seen := make([]bool, len(perm))
	for _, p := range perm {
		if p < 0 || p >= len(perm) || seen[p] {
			shapecheck.Panicf(1, "invalid permutation %v", perm)
		}
		seen[p] = true
	}
	var (
		ndim       = len(a.shape)
		localShape = a.LocalShape()
		newLocal   = make([]int, ndim)
		newShape   = make([]int, ndim)
		newAxis    = -1
	)
	for i, p := range perm {
		newShape[i] = a.shape[p]
		newLocal[i] = localShape[p]
		if p == a.axis {
			newAxis = i
		}
	}
	dst := alloc(a.dtype, prod(newLocal))
	cp := copier(a.dtype, dst, a.local)
	srcStrides := strides(localShape)
	dstStrides := strides(newLocal)
	// Walk the destination in row-major order, gathering strided
	// elements from the source. The innermost destination axis is
	// copied contiguously when it is also innermost in the source.
	var walk func(axis, dstOff, srcOff int)
	walk = func(axis, dstOff, srcOff int) {
		if axis == ndim-1 {
			if perm[axis] == ndim-1 {
				cp(dstOff, srcOff, newLocal[axis])
				return
			}
			stride := srcStrides[perm[axis]]
			for i := 0; i < newLocal[axis]; i++ {
				cp(dstOff+i, srcOff+i*stride, 1)
			}
			return
		}
		for i := 0; i < newLocal[axis]; i++ {
			walk(axis+1, dstOff+i*dstStrides[axis], srcOff+i*srcStrides[perm[axis]])
		}
	}
	walk(0, 0, 0)
	return &Array{
		group: a.group,
		shape: newShape,
		dtype: a.dtype,
		axis:  newAxis,
		off:   a.off,
		local: dst,
	}
}
