// Copyright 2026 Radiocosmo Authors. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package ingest assembles a single time-ordered TimeStream from many
// per-file visibility chunks, each loaded by one worker of a group.
// Files are distributed across workers along the file axis, loaded
// and validated independently, and the assembled array is resharded
// onto the frequency axis for analysis.
package ingest

import (
	"context"
	"encoding/gob"
	"fmt"
	"sort"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"

	"github.com/radiocosmo/driftvis/comm"
	"github.com/radiocosmo/driftvis/darray"
	"github.com/radiocosmo/driftvis/stream"
)

// A Reader exposes one acquisition file: a fixed-shape complex
// visibility array of shape (freq, prod, time) and its per-record
// timestamps.
type Reader interface {
	// Shape returns the file's visibility shape.
	Shape() (nfreq, nprod, ntime int)
	// ReadVis reads the full visibility array, row-major over
	// (freq, prod, time), into dst.
	ReadVis(dst []complex128) error
	// Timestamp returns the file's timestamps, one per time sample.
	Timestamp() []float64
	// Close releases the file's resources.
	Close() error
}

// An Opener opens one source file for reading.
type Opener func(path string) (Reader, error)

// loadParallelism bounds how many of a worker's assigned files are
// held open at once, keeping peak memory to a small constant number
// of file buffers per worker.
const loadParallelism = 2

// tsRecord pairs a global file index with that file's timestamps,
// exchanged between workers to build the merged time axis.
type tsRecord struct {
	File      int
	Timestamp []float64
}

func init() {
	gob.Register([]int{})
	gob.Register([]tsRecord{})
}

// FromFiles loads the ordered, contiguous list of source files into
// one TimeStream distributed over g. Every worker of the group must
// call FromFiles with identical paths; each worker loads only its
// assigned slice of the file axis.
//
// A file is accepted only if its shape matches the first file's
// shape exactly, or if it is the last file and is short along the
// time axis only. Any other mismatch is fatal and, like every
// per-worker failure, is converted into a group-wide abort before
// the next collective.
//
// The returned stream's vis field has shape (freq, prod, time),
// sharded on frequency; its timestamp field is the globally-ordered
// concatenation of the per-file timestamps.
func FromFiles(ctx context.Context, g *comm.Group, open Opener, paths []string) (*stream.TimeStream, error) {
	if len(paths) == 0 {
		return nil, errors.E(errors.Invalid, "ingest: no files")
	}
	// One worker reads the reference shape; all workers must observe
	// the same outcome before the shape broadcast.
	var shape []int
	var shapeErr error
	if g.Rank() == 0 {
		r, err := open(paths[0])
		if err != nil {
			shapeErr = errors.E(err, fmt.Sprintf("ingest: cannot open %s", paths[0]))
		} else {
			nfreq, nprod, ntime := r.Shape()
			shape = []int{nfreq, nprod, ntime}
			shapeErr = r.Close()
		}
	}
	if err := g.Check(ctx, shapeErr); err != nil {
		return nil, err
	}
	v, err := g.Broadcast(ctx, 0, shape)
	if err != nil {
		return nil, err
	}
	shape = v.([]int)
	var (
		nfreq = shape[0]
		nprod = shape[1]
		ntime = shape[2]
		nfile = len(paths)
	)

	dset := darray.New([]int{nfile, nfreq, nprod, ntime}, darray.Complex128, g, 0)
	var (
		local   = dset.Complex128s()
		slot    = nfreq * nprod * ntime
		assign  = dset.Enumerate(0)
		records = make([]tsRecord, len(assign))
	)
	loadErr := traverse.Limit(loadParallelism).Each(len(assign), func(i int) error {
		ix := assign[i]
		path := paths[ix.Global]
		log.Printf("worker %d reading %s", g.Rank(), path)
		r, err := open(path)
		if err != nil {
			return errors.E(err, fmt.Sprintf("ingest: cannot open %s", path))
		}
		defer r.Close()
		f, p, nt := r.Shape()
		switch {
		case f == nfreq && p == nprod && nt == ntime:
			if err := r.ReadVis(local[ix.Local*slot : (ix.Local+1)*slot]); err != nil {
				return errors.E(err, fmt.Sprintf("ingest: cannot read %s", path))
			}
		case ix.Global == nfile-1 && f == nfreq && p == nprod && nt < ntime:
			// A short last file: copy only the available samples and
			// leave the remainder of the slot unwritten.
			buf := make([]complex128, f*p*nt)
			if err := r.ReadVis(buf); err != nil {
				return errors.E(err, fmt.Sprintf("ingest: cannot read %s", path))
			}
			for fp := 0; fp < f*p; fp++ {
				copy(local[ix.Local*slot+fp*ntime:ix.Local*slot+fp*ntime+nt], buf[fp*nt:(fp+1)*nt])
			}
		default:
			return errors.E(errors.Fatal,
				fmt.Sprintf("ingest: data from %s has shape (%d, %d, %d), want (%d, %d, %d)",
					path, f, p, nt, nfreq, nprod, ntime))
		}
		records[i] = tsRecord{File: ix.Global, Timestamp: append([]float64(nil), r.Timestamp()...)}
		return nil
	})
	// A load failure on any worker must become group-visible here:
	// the timestamp exchange below is a collective, and a worker that
	// returned early would deadlock its peers.
	if err := g.Check(ctx, loadErr); err != nil {
		return nil, err
	}

	timestamp, err := mergeTimestamps(ctx, g, records)
	if err != nil {
		return nil, err
	}

	// Reshard onto frequency, then merge the file and time axes into
	// one flattened time axis.
	dset, err = dset.Redistribute(ctx, 1)
	if err != nil {
		return nil, err
	}
	dset = dset.Transpose([]int{1, 2, 0, 3})
	dset = dset.Reshape([]int{nfreq, nprod, nfile * ntime})

	// A short last file leaves trailing unwritten samples; trim the
	// merged time axis to the timestamps actually read.
	if len(timestamp) != nfile*ntime {
		dset = dset.Slice(2, 0, len(timestamp))
	}

	ts := stream.NewTimeStream(dset, timestamp)
	ts.SetAttr("nfile", fmt.Sprint(nfile))
	ts.SetAttr("first_file", paths[0])
	ts.SetAttr("last_file", paths[nfile-1])
	return ts, nil
}

// mergeTimestamps exchanges every worker's per-file timestamp records
// and concatenates them in global file order. The collected axis is
// identical on every worker.
func mergeTimestamps(ctx context.Context, g *comm.Group, records []tsRecord) ([]float64, error) {
	vs, err := g.AllGather(ctx, records)
	if err != nil {
		return nil, err
	}
	var flat []tsRecord
	for from, v := range vs {
		recs, ok := v.([]tsRecord)
		if !ok {
			return nil, errors.E(errors.Fatal, fmt.Sprintf("ingest: unexpected timestamp message %T from rank %d", v, from))
		}
		flat = append(flat, recs...)
	}
	sort.Slice(flat, func(i, j int) bool { return flat[i].File < flat[j].File })
	var timestamp []float64
	for _, rec := range flat {
		timestamp = append(timestamp, rec.Timestamp...)
	}
	return timestamp, nil
}
