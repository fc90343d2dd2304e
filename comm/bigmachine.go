// Copyright 2026 Radiocosmo Authors. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package comm

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"sync"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/bigmachine"
	"golang.org/x/sync/errgroup"
)

// Peer is the bigmachine service that carries collective traffic for
// one worker machine. Each machine in a cluster runs a Peer; ranks
// exchange rounds by posting gob-encoded messages directly to their
// destination machines, and a round completes on a machine when posts
// from all peers have arrived. Message types that are not gob
// self-describing must be registered with gob.Register by the worker
// program.
type Peer struct {
	// Exported just satisfies gob's persnickety nature: we need at least
	// one exported field.
	Exported struct{}

	b *bigmachine.B

	mu       sync.Mutex
	cond     *cond
	rank     int
	addrs    []string
	machines []*bigmachine.Machine
	rounds   map[uint64]*peerRound
}

type peerRound struct {
	msgs []interface{}
	have int
}

// Init implements bigmachine's service initialization hook.
func (p *Peer) Init(b *bigmachine.B) error {
	p.b = b
	p.cond = newCond(&p.mu)
	p.rounds = make(map[uint64]*peerRound)
	return nil
}

// peerConfig carries the cluster address book to each machine.
type peerConfig struct {
	Rank  int
	Addrs []string
}

// postRequest carries one rank-to-rank message of one collective
// round.
type postRequest struct {
	From    int
	Round   uint64
	Payload []byte
}

// Configure installs the cluster address book on this machine. It is
// called once by the driver after all machines have booted.
func (p *Peer) Configure(ctx context.Context, config peerConfig, _ *struct{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.addrs != nil {
		return errors.E(errors.Invalid, "peer already configured")
	}
	p.rank = config.Rank
	p.addrs = config.Addrs
	p.machines = make([]*bigmachine.Machine, len(config.Addrs))
	log.Printf("peer %d/%d configured", config.Rank, len(config.Addrs))
	return nil
}

// Post receives one message of one round from a peer machine.
func (p *Peer) Post(ctx context.Context, req postRequest, _ *struct{}) error {
	msg, err := decodeMessage(req.Payload)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deposit(req.From, req.Round, msg)
	return nil
}

// deposit stores a message and wakes the rank if its round filled.
// The peer's lock must be held.
func (p *Peer) deposit(from int, round uint64, msg interface{}) {
	r, ok := p.rounds[round]
	if !ok {
		r = &peerRound{msgs: make([]interface{}, len(p.addrs))}
		p.rounds[round] = r
	}
	r.msgs[from] = msg
	r.have++
	p.cond.broadcast()
}

// Exchange implements Transport. Outgoing messages are pushed to
// their destination machines; Exchange then blocks until every peer's
// message for the round has arrived.
func (p *Peer) Exchange(ctx context.Context, rank int, round uint64, msgs []interface{}) ([]interface{}, error) {
	p.mu.Lock()
	if p.addrs == nil {
		p.mu.Unlock()
		return nil, errors.E(errors.Invalid, "peer not configured")
	}
	if rank != p.rank {
		p.mu.Unlock()
		return nil, errors.E(errors.Invalid, fmt.Sprintf("rank %d does not match peer rank %d", rank, p.rank))
	}
	p.mu.Unlock()
	eg, ctx2 := errgroup.WithContext(ctx)
	for to := range msgs {
		to, msg := to, msgs[to]
		if to == rank {
			p.mu.Lock()
			p.deposit(rank, round, msg)
			p.mu.Unlock()
			continue
		}
		eg.Go(func() error {
			payload, err := encodeMessage(msg)
			if err != nil {
				return err
			}
			m, err := p.dial(ctx2, to)
			if err != nil {
				return err
			}
			return m.RetryCall(ctx2, "Peer.Post", postRequest{From: rank, Round: round, Payload: payload}, nil)
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for {
		r := p.rounds[round]
		if r != nil && r.have == len(p.addrs) {
			delete(p.rounds, round)
			return r.msgs, nil
		}
		if err := p.cond.wait(ctx); err != nil {
			return nil, err
		}
	}
}

// Group returns this machine's handle on the cluster's worker group.
// It may be called only after the driver has configured the peer.
func (p *Peer) Group() (*Group, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.addrs == nil {
		return nil, errors.E(errors.Invalid, "peer not configured")
	}
	return NewGroup(p.rank, len(p.addrs), p), nil
}

func (p *Peer) dial(ctx context.Context, rank int) (*bigmachine.Machine, error) {
	p.mu.Lock()
	m := p.machines[rank]
	addr := p.addrs[rank]
	p.mu.Unlock()
	if m != nil {
		return m, nil
	}
	m, err := p.b.Dial(ctx, addr)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	p.machines[rank] = m
	p.mu.Unlock()
	return m, nil
}

func encodeMessage(msg interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&msg); err != nil {
		return nil, errors.E(err, "comm: cannot encode collective message")
	}
	return buf.Bytes(), nil
}

func decodeMessage(payload []byte) (interface{}, error) {
	var msg interface{}
	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(&msg); err != nil {
		return nil, errors.E(err, "comm: cannot decode collective message")
	}
	return msg, nil
}

// StartMachines boots n machines, each running a Peer service
// alongside the caller's extra services, waits for them to come up,
// and installs the cluster address book on every peer. The returned
// machines are ready to run SPMD worker code that obtains its Group
// from the machine's Peer.
func StartMachines(ctx context.Context, b *bigmachine.B, n int, services bigmachine.Services) ([]*bigmachine.Machine, error) {
	all := bigmachine.Services{"Peer": &Peer{}}
	for name, svc := range services {
		all[name] = svc
	}
	machines, err := b.Start(ctx, n, all)
	if err != nil {
		return nil, err
	}
	addrs := make([]string, n)
	for i, m := range machines {
		<-m.Wait(bigmachine.Running)
		if err := m.Err(); err != nil {
			return nil, errors.E(err, fmt.Sprintf("machine %d failed to start", i))
		}
		addrs[i] = m.Addr
		log.Printf("machine %v is ready", m.Addr)
	}
	eg, ctx := errgroup.WithContext(ctx)
	for rank, m := range machines {
		rank, m := rank, m
		eg.Go(func() error {
			return m.RetryCall(ctx, "Peer.Configure", peerConfig{Rank: rank, Addrs: addrs}, nil)
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return machines, nil
}
