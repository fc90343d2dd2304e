// Copyright 2026 Radiocosmo Authors. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package darray implements N-dimensional arrays sharded along one
// axis across a worker group. Every worker holds one contiguous slice
// of the shard axis; the union of the workers' slices covers the
// global extent exactly, and all workers agree on the global shape,
// element type, and shard axis. A worker's local shard is owned
// exclusively by that worker: data moves between workers only through
// the collective Redistribute operation.
//
// Local data is stored row-major in a flat slice whose shape is the
// global shape with the shard axis replaced by the local extent.
package darray

import (
	"fmt"

	"github.com/radiocosmo/driftvis/comm"
	"github.com/radiocosmo/driftvis/shapecheck"
)

// DType is the element type of an Array.
type DType int

const (
	// Float64 designates real-valued arrays backed by []float64.
	Float64 DType = iota
	// Complex128 designates complex-valued arrays backed by []complex128.
	Complex128
	// Bool designates boolean arrays backed by []bool.
	Bool
)

// String implements fmt.Stringer.
func (d DType) String() string {
	switch d {
	case Float64:
		return "float64"
	case Complex128:
		return "complex128"
	case Bool:
		return "bool"
	}
	return fmt.Sprintf("dtype(%d)", int(d))
}

func alloc(d DType, n int) interface{} {
	switch d {
	case Float64:
		return make([]float64, n)
	case Complex128:
		return make([]complex128, n)
	case Bool:
		return make([]bool, n)
	}
	shapecheck.Panicf(1, "invalid dtype %v", d)
	panic("unreachable")
}

func length(data interface{}) int {
	switch x := data.(type) {
	case []float64:
		return len(x)
	case []complex128:
		return len(x)
	case []bool:
		return len(x)
	}
	shapecheck.Panicf(1, "invalid buffer type %T", data)
	panic("unreachable")
}

func dtypeOf(data interface{}) DType {
	switch data.(type) {
	case []float64:
		return Float64
	case []complex128:
		return Complex128
	case []bool:
		return Bool
	}
	shapecheck.Panicf(1, "invalid buffer type %T", data)
	panic("unreachable")
}

// Partition computes rank's contiguous slice of a global extent of n
// elements split across size workers. Slices are balanced: sizes
// differ by at most one element, larger slices first. The partition
// is deterministic, so every worker computes the same split.
func Partition(n, size, rank int) (off, sz int) {
	base := n / size
	rem := n % size
	if rank < rem {
		return rank * (base + 1), base + 1
	}
	return rem*(base+1) + (rank-rem)*base, base
}

// An Array is one worker's handle on a distributed N-dimensional
// array. Arrays are value-like: operations return new handles and
// never mutate peers' data, but the local buffer is shared between
// handles unless an operation says otherwise.
type Array struct {
	group *comm.Group
	shape []int
	dtype DType
	axis  int
	off   int
	local interface{}
}

// New creates an empty distributed array of the given global shape
// and element type, sharded along shardAxis across group. Every
// worker of the group must call New with identical arguments. New
// panics if shardAxis is out of range.
func New(shape []int, dtype DType, group *comm.Group, shardAxis int) *Array {
	shapecheck.Axis(1, shardAxis, len(shape))
	for i, n := range shape {
		if n <= 0 {
			shapecheck.Panicf(1, "invalid extent %d for axis %d", n, i)
		}
	}
	off, sz := Partition(shape[shardAxis], group.Size(), group.Rank())
	n := sz
	for i, dim := range shape {
		if i != shardAxis {
			n *= dim
		}
	}
	return &Array{
		group: group,
		shape: append([]int(nil), shape...),
		dtype: dtype,
		axis:  shardAxis,
		off:   off,
		local: alloc(dtype, n),
	}
}

// Wrap constructs a distributed array directly from data already held
// locally by each worker, declaring axis as the shard axis. shape is
// the global shape. The caller asserts cross-worker consistency: no
// validation beyond the local buffer length is performed, and the
// local extent must match the balanced partition of the shard axis.
func Wrap(local interface{}, shape []int, axis int, group *comm.Group) *Array {
	shapecheck.Axis(1, axis, len(shape))
	off, sz := Partition(shape[axis], group.Size(), group.Rank())
	n := sz
	for i, dim := range shape {
		if i != axis {
			n *= dim
		}
	}
	if got := length(local); got != n {
		shapecheck.Panicf(1, "local buffer has %d elements, want %d for shape %v sharded on axis %d", got, n, shape, axis)
	}
	return &Array{
		group: group,
		shape: append([]int(nil), shape...),
		dtype: dtypeOf(local),
		axis:  axis,
		off:   off,
		local: local,
	}
}

// Shape returns a copy of the array's global shape.
func (a *Array) Shape() []int { return append([]int(nil), a.shape...) }

// DType returns the array's element type.
func (a *Array) DType() DType { return a.dtype }

// Axis returns the index of the axis the array is currently sharded
// along.
func (a *Array) Axis() int { return a.axis }

// Offset returns this worker's starting offset along the shard axis.
func (a *Array) Offset() int { return a.off }

// Group returns the worker group the array is distributed over.
func (a *Array) Group() *comm.Group { return a.group }

// LocalShape returns the shape of this worker's local shard: the
// global shape with the shard axis replaced by the local extent.
func (a *Array) LocalShape() []int {
	shape := a.Shape()
	_, sz := Partition(a.shape[a.axis], a.group.Size(), a.group.Rank())
	shape[a.axis] = sz
	return shape
}

// Local returns the worker's local buffer: a flat, row-major
// []float64, []complex128, or []bool of the local shape. Mutating it
// mutates the array.
func (a *Array) Local() interface{} { return a.local }

// Float64s returns the local buffer of a Float64 array.
func (a *Array) Float64s() []float64 {
	x, ok := a.local.([]float64)
	if !ok {
		shapecheck.Panicf(1, "array is %v, not float64", a.dtype)
	}
	return x
}

// Complex128s returns the local buffer of a Complex128 array.
func (a *Array) Complex128s() []complex128 {
	x, ok := a.local.([]complex128)
	if !ok {
		shapecheck.Panicf(1, "array is %v, not complex128", a.dtype)
	}
	return x
}

// Bools returns the local buffer of a Bool array.
func (a *Array) Bools() []bool {
	x, ok := a.local.([]bool)
	if !ok {
		shapecheck.Panicf(1, "array is %v, not bool", a.dtype)
	}
	return x
}

// An Index pairs a local position with its global position along the
// shard axis.
type Index struct {
	Local, Global int
}

// Enumerate returns the (local, global) index pairs of the positions
// this worker owns along axis. It is defined only when axis is the
// current shard axis; Enumerate panics otherwise.
func (a *Array) Enumerate(axis int) []Index {
	shapecheck.Axis(1, axis, len(a.shape))
	if axis != a.axis {
		shapecheck.Panicf(1, "enumerate axis %d, but array is sharded on axis %d", axis, a.axis)
	}
	_, sz := Partition(a.shape[a.axis], a.group.Size(), a.group.Rank())
	ix := make([]Index, sz)
	for i := range ix {
		ix[i] = Index{Local: i, Global: a.off + i}
	}
	return ix
}

// Slice returns a new array restricted to [start, stop) along axis,
// copying the local data. axis must not be the shard axis.
func (a *Array) Slice(axis, start, stop int) *Array {
	shapecheck.Axis(1, axis, len(a.shape))
	if axis == a.axis {
		shapecheck.Panicf(1, "cannot slice along shard axis %d", axis)
	}
	if start < 0 || stop > a.shape[axis] || start >= stop {
		shapecheck.Panicf(1, "slice [%d, %d) out of range for axis %d of extent %d", start, stop, axis, a.shape[axis])
	}
	localShape := a.LocalShape()
	newLocalShape := append([]int(nil), localShape...)
	newLocalShape[axis] = stop - start
	dst := alloc(a.dtype, prod(newLocalShape))
	srcStart := make([]int, len(a.shape))
	srcStart[axis] = start
	copyBlock(copier(a.dtype, dst, a.local),
		newLocalShape, make([]int, len(a.shape)),
		localShape, srcStart,
		newLocalShape)
	shape := a.Shape()
	shape[axis] = stop - start
	return &Array{
		group: a.group,
		shape: shape,
		dtype: a.dtype,
		axis:  a.axis,
		off:   a.off,
		local: dst,
	}
}

func prod(shape []int) int {
	n := 1
	for _, dim := range shape {
		n *= dim
	}
	return n
}

// String returns a descriptive string of the local handle.
func (a *Array) String() string {
	return fmt.Sprintf("darray%v%v[axis %d, rank %d/%d, offset %d]",
		a.shape, a.dtype, a.axis, a.group.Rank(), a.group.Size(), a.off)
}
