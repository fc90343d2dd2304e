// Copyright 2026 Radiocosmo Authors. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package comm

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// localTransport rendezvouses collective rounds between workers
// running as goroutines in one process. Messages are passed by
// reference; workers must not retain references into peers' buffers
// beyond the collective that delivered them.
type localTransport struct {
	size int

	mu     sync.Mutex
	cond   *cond
	rounds map[uint64]*localRound
}

type localRound struct {
	// msgs[from][to] holds the message from rank from to rank to.
	msgs   [][]interface{}
	posted int
	taken  int
}

func newLocalTransport(size int) *localTransport {
	t := &localTransport{
		size:   size,
		rounds: make(map[uint64]*localRound),
	}
	t.cond = newCond(&t.mu)
	return t
}

// Exchange implements Transport.
func (t *localTransport) Exchange(ctx context.Context, rank int, round uint64, msgs []interface{}) ([]interface{}, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.rounds[round]
	if !ok {
		r = &localRound{msgs: make([][]interface{}, t.size)}
		t.rounds[round] = r
	}
	r.msgs[rank] = msgs
	r.posted++
	t.cond.broadcast()
	for r.posted < t.size {
		if err := t.cond.wait(ctx); err != nil {
			return nil, err
		}
	}
	out := make([]interface{}, t.size)
	for from := 0; from < t.size; from++ {
		out[from] = r.msgs[from][rank]
	}
	r.taken++
	if r.taken == t.size {
		delete(t.rounds, round)
	}
	return out, nil
}

// LocalGroups returns handles for an n-worker group whose collectives
// rendezvous in-process. Each handle must be used by exactly one
// goroutine.
func LocalGroups(n int) []*Group {
	transport := newLocalTransport(n)
	groups := make([]*Group, n)
	for rank := range groups {
		groups[rank] = NewGroup(rank, n, transport)
	}
	return groups
}

// Run runs fn concurrently on an n-worker in-process group, one
// goroutine per worker, and returns the first error. The context
// passed to fn is canceled when any worker fails, unblocking peers
// waiting in collectives the failed worker will never post.
func Run(ctx context.Context, n int, fn func(ctx context.Context, g *Group) error) error {
	groups := LocalGroups(n)
	eg, ctx := errgroup.WithContext(ctx)
	for _, g := range groups {
		g := g
		eg.Go(func() error {
			return fn(ctx, g)
		})
	}
	return eg.Wait()
}
