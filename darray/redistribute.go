// Copyright 2026 Radiocosmo Authors. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package darray

import (
	"context"
	"encoding/gob"
	"fmt"

	"github.com/grailbio/base/errors"
	"github.com/radiocosmo/driftvis/shapecheck"
)

func init() {
	gob.Register(&Block{})
}

// Redistribute reshards the array so that newAxis becomes the shard
// axis. It is implemented as an all-to-all exchange: every worker
// cuts, for every destination worker, the sub-block of its local data
// that falls in the destination's future range of newAxis, and
// receives the corresponding blocks for its own new range. The
// array's values are unchanged; only the ownership partition moves.
//
// Redistribute is a synchronization barrier: no worker proceeds past
// it until all workers of the group have posted it. The result is
// deterministic for a fixed worker group. If newAxis already is the
// shard axis, the same handle is returned without communication.
func (a *Array) Redistribute(ctx context.Context, newAxis int) (*Array, error) {
	shapecheck.Axis(1, newAxis, len(a.shape))
	if newAxis == a.axis {
		return a, nil
	}
	var (
		size       = a.group.Size()
		ndim       = len(a.shape)
		localShape = a.LocalShape()
		msgs       = make([]interface{}, size)
	)
	for r := 0; r < size; r++ {
		dstOff, dstSz := Partition(a.shape[newAxis], size, r)
		blockShape := append([]int(nil), localShape...)
		blockShape[newAxis] = dstSz
		srcStart := make([]int, ndim)
		srcStart[newAxis] = dstOff
		data := alloc(a.dtype, prod(blockShape))
		copyBlock(copier(a.dtype, data, a.local),
			blockShape, make([]int, ndim),
			localShape, srcStart,
			blockShape)
		start := make([]int, ndim)
		start[a.axis] = a.off
		msgs[r] = &Block{Start: start, Shape: blockShape, Data: data}
	}
	in, err := a.group.AllToAll(ctx, msgs)
	if err != nil {
		return nil, err
	}
	b := New(a.shape, a.dtype, a.group, newAxis)
	newLocalShape := b.LocalShape()
	for from, msg := range in {
		blk, ok := msg.(*Block)
		if !ok {
			return nil, errors.E(errors.Fatal, fmt.Sprintf("redistribute: unexpected message %T from rank %d", msg, from))
		}
		copyBlock(copier(a.dtype, b.local, blk.Data),
			newLocalShape, blk.Start,
			blk.Shape, make([]int, ndim),
			blk.Shape)
	}
	return b, nil
}
