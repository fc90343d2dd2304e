// Copyright 2026 Radiocosmo Authors. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package comm implements the worker groups over which driftvis
// distributes its datasets. A group is a fixed set of workers running
// the same program; the only communication between workers is through
// the group's collective operations: broadcast, all-gather, and
// all-to-all. Every collective is a barrier: a worker may not proceed
// past a collective until all workers in the group have posted it, and
// all workers must reach the same collectives in the same order. A
// worker that skips a collective its peers have posted blocks the
// whole group until the context completes; workers that may fail
// before a collective must convert the failure into a group-visible
// outcome with Check first.
package comm

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Transport moves one round of all-to-all messages between the
// workers of a group. Implementations match rounds by sequence
// number; a round completes on any rank only once every rank has
// posted it.
type Transport interface {
	// Exchange delivers msgs[i] to rank i and returns the messages
	// addressed to this rank by every rank, indexed by sender. It
	// blocks until the round is complete on this rank, or until the
	// context is done.
	Exchange(ctx context.Context, rank int, round uint64, msgs []interface{}) ([]interface{}, error)
}

// A Group is one worker's handle on a worker group. Groups are not
// safe for concurrent use: each worker owns its Group exclusively,
// mirroring the single-program-multiple-data execution model.
type Group struct {
	rank, size int
	round      uint64
	transport  Transport
}

// NewGroup returns rank's handle on a group of the given size
// communicating over the provided transport. All ranks of a group
// must share the same transport instance or transport rendezvous
// domain.
func NewGroup(rank, size int, transport Transport) *Group {
	if rank < 0 || rank >= size {
		panic(fmt.Sprintf("comm: rank %d out of range for group of %d", rank, size))
	}
	return &Group{rank: rank, size: size, transport: transport}
}

// Rank returns this worker's rank within the group.
func (g *Group) Rank() int { return g.rank }

// Size returns the number of workers in the group.
func (g *Group) Size() int { return g.size }

// AllToAll delivers msgs[i] to rank i and returns one message from
// every rank, indexed by sender. len(msgs) must equal the group size.
func (g *Group) AllToAll(ctx context.Context, msgs []interface{}) ([]interface{}, error) {
	if len(msgs) != g.size {
		panic(fmt.Sprintf("comm: all-to-all with %d messages in group of %d", len(msgs), g.size))
	}
	round := g.round
	g.round++
	return g.transport.Exchange(ctx, g.rank, round, msgs)
}

// AllGather collects v from every rank; the returned slice is indexed
// by rank and is identical on all ranks.
func (g *Group) AllGather(ctx context.Context, v interface{}) ([]interface{}, error) {
	msgs := make([]interface{}, g.size)
	for i := range msgs {
		msgs[i] = v
	}
	return g.AllToAll(ctx, msgs)
}

// Broadcast distributes root's value v to every rank. Non-root ranks
// pass the value they would have sent (usually nil); it is discarded.
func (g *Group) Broadcast(ctx context.Context, root int, v interface{}) (interface{}, error) {
	msgs := make([]interface{}, g.size)
	if g.rank == root {
		for i := range msgs {
			msgs[i] = v
		}
	}
	vs, err := g.AllToAll(ctx, msgs)
	if err != nil {
		return nil, err
	}
	return vs[root], nil
}

// Barrier blocks until every rank has entered it.
func (g *Group) Barrier(ctx context.Context) error {
	_, err := g.AllGather(ctx, nil)
	return err
}

// Check agrees on a group-wide outcome for a fallible per-worker
// step. Every rank contributes its local error (nil for success); if
// any rank failed, Check returns a *CollectiveError naming all
// failing ranks, on every rank. Callers run Check between a fallible
// local step and the next data collective so that a failure on one
// worker cannot desynchronize the group.
func (g *Group) Check(ctx context.Context, err error) error {
	var msg interface{}
	if err != nil {
		msg = err.Error()
	}
	vs, cerr := g.AllGather(ctx, msg)
	if cerr != nil {
		return cerr
	}
	var failed *CollectiveError
	for rank, v := range vs {
		s, ok := v.(string)
		if !ok {
			continue
		}
		if failed == nil {
			failed = &CollectiveError{Errors: make(map[int]string)}
		}
		failed.Errors[rank] = s
	}
	if failed == nil {
		return nil
	}
	return failed
}

// CollectiveError is the group-wide outcome of a failed Check round.
// It is returned identically on every rank, including ranks whose
// local step succeeded.
type CollectiveError struct {
	// Errors maps the rank of each failed worker to its error text.
	Errors map[int]string
}

// Error implements error.
func (e *CollectiveError) Error() string {
	ranks := make([]int, 0, len(e.Errors))
	for rank := range e.Errors {
		ranks = append(ranks, rank)
	}
	sort.Ints(ranks)
	s := fmt.Sprintf("%d worker(s) failed:", len(ranks))
	for _, rank := range ranks {
		s += fmt.Sprintf(" [%d] %s;", rank, e.Errors[rank])
	}
	return s
}

// cond is a condition variable with a context-aware Wait, used by
// transports to rendezvous collective rounds.
type cond struct {
	l     sync.Locker
	waitc chan struct{}
}

func newCond(l sync.Locker) *cond {
	return &cond{l: l}
}

// broadcast notifies waiters of a state change. It must only be
// called while the cond's lock is held.
func (c *cond) broadcast() {
	if c.waitc != nil {
		close(c.waitc)
		c.waitc = nil
	}
}

// wait returns after the next call to broadcast, or if the context is
// complete. The cond's lock must be held when calling wait.
func (c *cond) wait(ctx context.Context) error {
	if c.waitc == nil {
		c.waitc = make(chan struct{})
	}
	waitc := c.waitc
	c.l.Unlock()
	var err error
	select {
	case <-waitc:
	case <-ctx.Done():
		err = ctx.Err()
	}
	c.l.Lock()
	return err
}
