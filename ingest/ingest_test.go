// Copyright 2026 Radiocosmo Authors. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package ingest

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/radiocosmo/driftvis/comm"
	"github.com/radiocosmo/driftvis/stream"
)

const (
	testFreq = 4
	testProd = 3
	testTime = 6
)

// val is the synthetic visibility injected at (file, freq, prod, t).
func val(file, f, p, t int) complex128 {
	return complex(float64(file*1000+f*100+p*10+t), float64(file))
}

// fakeReader serves synthetic visibilities for one file.
type fakeReader struct {
	file               int
	nfreq, nprod, ntime int
	t0                 float64
}

func (r *fakeReader) Shape() (int, int, int) { return r.nfreq, r.nprod, r.ntime }

func (r *fakeReader) Timestamp() []float64 {
	ts := make([]float64, r.ntime)
	for i := range ts {
		ts[i] = r.t0 + float64(i)
	}
	return ts
}

func (r *fakeReader) ReadVis(dst []complex128) error {
	i := 0
	for f := 0; f < r.nfreq; f++ {
		for p := 0; p < r.nprod; p++ {
			for t := 0; t < r.ntime; t++ {
				dst[i] = val(r.file, f, p, t)
				i++
			}
		}
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

// fakeOpener serves nfile files; the last one is short by half a
// time axis when shortLast is set, and file badFile (if >= 0) has a
// wrong product count.
func fakeOpener(nfile int, shortLast bool, badFile int) Opener {
	return func(path string) (Reader, error) {
		var file int
		if _, err := fmt.Sscanf(path, "file%d", &file); err != nil {
			return nil, err
		}
		r := &fakeReader{
			file:  file,
			nfreq: testFreq,
			nprod: testProd,
			ntime: testTime,
			t0:    float64(file * testTime),
		}
		if shortLast && file == nfile-1 {
			r.ntime = testTime / 2
		}
		if file == badFile {
			r.nprod++
		}
		return r, nil
	}
}

func paths(nfile int) []string {
	ps := make([]string, nfile)
	for i := range ps {
		ps[i] = fmt.Sprintf("file%d", i)
	}
	return ps
}

func runIngest(t *testing.T, workers, nfile int, open Opener) ([]*stream.TimeStream, []error) {
	t.Helper()
	streams := make([]*stream.TimeStream, workers)
	errs := make([]error, workers)
	comm.Run(context.Background(), workers, func(ctx context.Context, g *comm.Group) error {
		ts, err := FromFiles(ctx, g, open, paths(nfile))
		streams[g.Rank()], errs[g.Rank()] = ts, err
		return nil
	})
	return streams, errs
}

func TestFromFiles(t *testing.T) {
	const nfile = 4
	for workers := 1; workers <= 4; workers++ {
		t.Run(fmt.Sprint(workers), func(t *testing.T) {
			streams, errs := runIngest(t, workers, nfile, fakeOpener(nfile, false, -1))
			for rank, err := range errs {
				if err != nil {
					t.Fatalf("rank %d: %v", rank, err)
				}
			}
			for rank, ts := range streams {
				vis := ts.Vis()
				wantShape := []int{testFreq, testProd, nfile * testTime}
				if got := fmt.Sprint(vis.Shape()); got != fmt.Sprint(wantShape) {
					t.Fatalf("rank %d: shape %v, want %v", rank, got, wantShape)
				}
				if vis.Axis() != 0 {
					t.Fatalf("rank %d: sharded on axis %d, want 0 (freq)", rank, vis.Axis())
				}
				// Timestamps are globally ordered regardless of which
				// worker loaded which file.
				timestamp := ts.Timestamp()
				if len(timestamp) != nfile*testTime {
					t.Fatalf("rank %d: %d timestamps, want %d", rank, len(timestamp), nfile*testTime)
				}
				for i, v := range timestamp {
					if v != float64(i) {
						t.Fatalf("rank %d: timestamp[%d] = %v", rank, i, v)
					}
				}
				// Every locally-held sample carries its injected value.
				local := vis.Complex128s()
				localShape := vis.LocalShape()
				off := vis.Offset()
				for lf := 0; lf < localShape[0]; lf++ {
					for p := 0; p < testProd; p++ {
						for gt := 0; gt < nfile*testTime; gt++ {
							got := local[(lf*testProd+p)*nfile*testTime+gt]
							want := val(gt/testTime, off+lf, p, gt%testTime)
							if got != want {
								t.Fatalf("rank %d: vis[%d %d %d] = %v, want %v", rank, off+lf, p, gt, got, want)
							}
						}
					}
				}
			}
		})
	}
}

// TestFromFilesShortLast exercises the permitted short trailing file:
// a 4-file ingestion whose last file has half the nominal time axis
// yields a stream of exactly 3T + T/2 samples.
func TestFromFilesShortLast(t *testing.T) {
	const nfile = 4
	wantTime := 3*testTime + testTime/2
	for _, workers := range []int{1, 2} {
		t.Run(fmt.Sprint(workers), func(t *testing.T) {
			streams, errs := runIngest(t, workers, nfile, fakeOpener(nfile, true, -1))
			for rank, err := range errs {
				if err != nil {
					t.Fatalf("rank %d: %v", rank, err)
				}
			}
			for rank, ts := range streams {
				if got := len(ts.Timestamp()); got != wantTime {
					t.Fatalf("rank %d: %d timestamps, want %d", rank, got, wantTime)
				}
				vis := ts.Vis()
				if got := vis.Shape()[2]; got != wantTime {
					t.Fatalf("rank %d: time axis %d, want %d", rank, got, wantTime)
				}
				// The trailing samples come from the short file.
				local := vis.Complex128s()
				off := vis.Offset()
				localShape := vis.LocalShape()
				for lf := 0; lf < localShape[0]; lf++ {
					for p := 0; p < testProd; p++ {
						for gt := 3 * testTime; gt < wantTime; gt++ {
							got := local[(lf*testProd+p)*wantTime+gt]
							want := val(3, off+lf, p, gt-3*testTime)
							if got != want {
								t.Fatalf("rank %d: vis[%d %d %d] = %v, want %v", rank, off+lf, p, gt, got, want)
							}
						}
					}
				}
			}
		})
	}
}

// TestFromFilesShapeMismatch verifies that a wrong-shaped file aborts
// ingestion on every worker, naming the offending file, even on
// workers whose own loads succeeded.
func TestFromFilesShapeMismatch(t *testing.T) {
	const nfile = 4
	_, errs := runIngest(t, 2, nfile, fakeOpener(nfile, false, 1))
	for rank, err := range errs {
		if err == nil {
			t.Fatalf("rank %d: expected error", rank)
		}
		if !strings.Contains(err.Error(), "file1") {
			t.Errorf("rank %d: error %q does not name the offending file", rank, err)
		}
	}
}

func TestFromFilesOpenError(t *testing.T) {
	open := func(path string) (Reader, error) {
		return nil, fmt.Errorf("no such acquisition %s", path)
	}
	_, errs := runIngest(t, 3, 2, open)
	for rank, err := range errs {
		if err == nil {
			t.Fatalf("rank %d: expected error", rank)
		}
		if _, ok := err.(*comm.CollectiveError); !ok {
			t.Errorf("rank %d: error %T is not collective", rank, err)
		}
	}
}
