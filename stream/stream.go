// Copyright 2026 Radiocosmo Authors. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package stream implements the typed data containers that driftvis
// pipelines pass between stages. A Container bundles replicated
// ("common") arrays, which hold identical values on every worker, and
// distributed arrays sharded across the container's worker group,
// together with free-form attribute metadata. All distributed fields
// of a container share one shard axis and worker group at any moment:
// redistribution applies to the container as a whole.
package stream

import (
	"context"
	"sort"

	"github.com/spaolacci/murmur3"

	"github.com/radiocosmo/driftvis/comm"
	"github.com/radiocosmo/driftvis/darray"
	"github.com/radiocosmo/driftvis/shapecheck"
)

// A Container owns a set of named fields. Deriving one container
// kind from another transfers named distributed fields by reference,
// establishing shared ownership of those arrays until the donor is
// discarded; common and attribute maps are copied.
type Container struct {
	group  *comm.Group
	common map[string]interface{}
	dist   map[string]*darray.Array
	attrs  map[string]string
}

// NewContainer returns an empty container bound to group.
func NewContainer(group *comm.Group) *Container {
	return &Container{
		group:  group,
		common: make(map[string]interface{}),
		dist:   make(map[string]*darray.Array),
		attrs:  make(map[string]string),
	}
}

// Group returns the container's worker group.
func (c *Container) Group() *comm.Group { return c.group }

// Has tells whether the container carries a field (common or
// distributed) with the given name. Concrete container kinds use Has
// as their capability probe.
func (c *Container) Has(name string) bool {
	if _, ok := c.common[name]; ok {
		return true
	}
	_, ok := c.dist[name]
	return ok
}

// SetCommon installs a replicated field. The caller asserts that
// every worker installs an identical value.
func (c *Container) SetCommon(name string, v interface{}) {
	c.common[name] = v
}

// Common returns the replicated field name, or nil.
func (c *Container) Common(name string) interface{} {
	return c.common[name]
}

// SetDist installs a distributed field. All distributed fields of a
// container must share the container's group and a single shard
// axis; SetDist panics otherwise.
func (c *Container) SetDist(name string, a *darray.Array) {
	if a.Group() != c.group {
		shapecheck.Panicf(1, "field %s belongs to a different worker group", name)
	}
	for other, b := range c.dist {
		if b.Axis() != a.Axis() {
			shapecheck.Panicf(1, "field %s is sharded on axis %d, but field %s is sharded on axis %d",
				name, a.Axis(), other, b.Axis())
		}
	}
	c.dist[name] = a
}

// Dist returns the distributed field name, or nil.
func (c *Container) Dist(name string) *darray.Array {
	return c.dist[name]
}

// Attr returns the attribute value for key, or the empty string.
func (c *Container) Attr(key string) string { return c.attrs[key] }

// SetAttr sets provenance metadata.
func (c *Container) SetAttr(key, value string) { c.attrs[key] = value }

// distNames returns the distributed field names in sorted order.
// Collective operations iterate fields in this order so that every
// worker posts the same collectives in the same sequence.
func (c *Container) distNames() []string {
	names := make([]string, 0, len(c.dist))
	for name := range c.dist {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Redistribute reshards every distributed field of the container onto
// axis. It is a collective: all workers of the group must call it
// with the same axis.
func (c *Container) Redistribute(ctx context.Context, axis int) error {
	for _, name := range c.distNames() {
		a, err := c.dist[name].Redistribute(ctx, axis)
		if err != nil {
			return err
		}
		c.dist[name] = a
	}
	return nil
}

// Fingerprint returns a stable identity hash of the container's
// attribute metadata and field names, used to tag derived data with
// its provenance.
func (c *Container) Fingerprint() uint64 {
	h := murmur3.New64()
	keys := make([]string, 0, len(c.attrs))
	for k := range c.attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		h.Write([]byte(k))
		h.Write([]byte{0})
		h.Write([]byte(c.attrs[k]))
		h.Write([]byte{0})
	}
	for _, name := range c.distNames() {
		h.Write([]byte(name))
		h.Write([]byte{0})
	}
	names := make([]string, 0, len(c.common))
	for name := range c.common {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		h.Write([]byte(name))
		h.Write([]byte{0})
	}
	return h.Sum64()
}

// derive returns a fresh container on the same group with copies of
// the donor's attribute and common maps. Distributed fields are not
// copied; the caller transfers those explicitly.
func (c *Container) derive() *Container {
	d := NewContainer(c.group)
	for k, v := range c.attrs {
		d.attrs[k] = v
	}
	for k, v := range c.common {
		d.common[k] = v
	}
	return d
}
