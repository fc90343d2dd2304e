// Copyright 2026 Radiocosmo Authors. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package darray

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/radiocosmo/driftvis/shapecheck"
)

// A Block is a rectangular sub-block of an array, exchanged between
// workers during redistribution. Start locates the block within the
// destination worker's frame of reference; Data is the block's
// row-major contents.
//
// Block implements gob.GobEncoder and gob.GobDecoder with an
// explicit little-endian layout: Data hides its element type behind
// an interface, and a fixed codec keeps the wire format compact and
// stable without registering every concrete slice type with gob.
type Block struct {
	Start []int
	Shape []int
	Data  interface{}
}

// GobEncode implements gob.GobEncoder.
func (b *Block) GobEncode() ([]byte, error) {
	var buf bytes.Buffer
	writeInts := func(xs []int) {
		binary.Write(&buf, binary.LittleEndian, uint32(len(xs)))
		for _, x := range xs {
			binary.Write(&buf, binary.LittleEndian, uint64(x))
		}
	}
	writeInts(b.Start)
	writeInts(b.Shape)
	switch data := b.Data.(type) {
	case []float64:
		buf.WriteByte(byte(Float64))
		binary.Write(&buf, binary.LittleEndian, uint64(len(data)))
		for _, v := range data {
			binary.Write(&buf, binary.LittleEndian, math.Float64bits(v))
		}
	case []complex128:
		buf.WriteByte(byte(Complex128))
		binary.Write(&buf, binary.LittleEndian, uint64(len(data)))
		for _, v := range data {
			binary.Write(&buf, binary.LittleEndian, math.Float64bits(real(v)))
			binary.Write(&buf, binary.LittleEndian, math.Float64bits(imag(v)))
		}
	case []bool:
		buf.WriteByte(byte(Bool))
		binary.Write(&buf, binary.LittleEndian, uint64(len(data)))
		for _, v := range data {
			if v {
				buf.WriteByte(1)
			} else {
				buf.WriteByte(0)
			}
		}
	default:
		return nil, fmt.Errorf("darray: cannot encode block of %T", b.Data)
	}
	return buf.Bytes(), nil
}

// GobDecode implements gob.GobDecoder.
func (b *Block) GobDecode(p []byte) error {
	buf := bytes.NewReader(p)
	readInts := func() ([]int, error) {
		var n uint32
		if err := binary.Read(buf, binary.LittleEndian, &n); err != nil {
			return nil, err
		}
		xs := make([]int, n)
		for i := range xs {
			var x uint64
			if err := binary.Read(buf, binary.LittleEndian, &x); err != nil {
				return nil, err
			}
			xs[i] = int(x)
		}
		return xs, nil
	}
	var err error
	if b.Start, err = readInts(); err != nil {
		return err
	}
	if b.Shape, err = readInts(); err != nil {
		return err
	}
	kind, err := buf.ReadByte()
	if err != nil {
		return err
	}
	var n uint64
	if err := binary.Read(buf, binary.LittleEndian, &n); err != nil {
		return err
	}
	switch DType(kind) {
	case Float64:
		data := make([]float64, n)
		for i := range data {
			var v uint64
			if err := binary.Read(buf, binary.LittleEndian, &v); err != nil {
				return err
			}
			data[i] = math.Float64frombits(v)
		}
		b.Data = data
	case Complex128:
		data := make([]complex128, n)
		for i := range data {
			var re, im uint64
			if err := binary.Read(buf, binary.LittleEndian, &re); err != nil {
				return err
			}
			if err := binary.Read(buf, binary.LittleEndian, &im); err != nil {
				return err
			}
			data[i] = complex(math.Float64frombits(re), math.Float64frombits(im))
		}
		b.Data = data
	case Bool:
		data := make([]bool, n)
		for i := range data {
			v, err := buf.ReadByte()
			if err != nil {
				return err
			}
			data[i] = v != 0
		}
		b.Data = data
	default:
		return fmt.Errorf("darray: cannot decode block dtype %d", kind)
	}
	return nil
}

// copier returns a function that copies n elements from src[so:] to
// dst[do:]. dst and src must be buffers of the given dtype.
func copier(dtype DType, dst, src interface{}) func(do, so, n int) {
	switch dtype {
	case Float64:
		d, s := dst.([]float64), src.([]float64)
		return func(do, so, n int) { copy(d[do:do+n], s[so:so+n]) }
	case Complex128:
		d, s := dst.([]complex128), src.([]complex128)
		return func(do, so, n int) { copy(d[do:do+n], s[so:so+n]) }
	case Bool:
		d, s := dst.([]bool), src.([]bool)
		return func(do, so, n int) { copy(d[do:do+n], s[so:so+n]) }
	}
	shapecheck.Panicf(1, "invalid dtype %v", dtype)
	panic("unreachable")
}

// strides returns the row-major strides of shape.
func strides(shape []int) []int {
	s := make([]int, len(shape))
	stride := 1
	for i := len(shape) - 1; i >= 0; i-- {
		s[i] = stride
		stride *= shape[i]
	}
	return s
}

// copyBlock copies a block of the given shape from position srcStart
// of a row-major buffer of shape srcShape into position dstStart of a
// row-major buffer of shape dstShape, using cp to move contiguous
// runs. The innermost axis is copied as one run.
func copyBlock(cp func(do, so, n int), dstShape, dstStart, srcShape, srcStart, blockShape []int) {
	ndim := len(blockShape)
	if ndim == 0 {
		return
	}
	dstStrides := strides(dstShape)
	srcStrides := strides(srcShape)
	var walk func(axis, dstOff, srcOff int)
	walk = func(axis, dstOff, srcOff int) {
		if axis == ndim-1 {
			cp(dstOff, srcOff, blockShape[axis])
			return
		}
		for i := 0; i < blockShape[axis]; i++ {
			walk(axis+1,
				dstOff+i*dstStrides[axis],
				srcOff+i*srcStrides[axis])
		}
	}
	dstOff, srcOff := 0, 0
	for i := 0; i < ndim; i++ {
		dstOff += dstStart[i] * dstStrides[i]
		srcOff += srcStart[i] * srcStrides[i]
	}
	walk(0, dstOff, srcOff)
}
