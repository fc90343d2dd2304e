// Copyright 2026 Radiocosmo Authors. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package ingest

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
)

// Raw visibility interchange format: a fixed little-endian header
// (magic, version, nfreq, nprod, ntime), followed by ntime float64
// timestamps, followed by nfreq*nprod*ntime complex64 visibilities
// in row-major (freq, prod, time) order. Visibilities are widened to
// complex128 on read. Paths are opened through base/file, so any
// file system it supports (including s3://) works.

const (
	rawMagic   = "DVIS"
	rawVersion = 1
)

// rawReader is the Reader for the raw interchange format.
type rawReader struct {
	ctx       context.Context
	f         file.File
	r         io.Reader
	nfreq     int
	nprod     int
	ntime     int
	timestamp []float64
}

// OpenRaw opens a raw-format visibility file. The returned Reader's
// timestamps are read eagerly; the visibility payload is read by
// ReadVis.
func OpenRaw(ctx context.Context, path string) (Reader, error) {
	f, err := file.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	r := bufio.NewReader(f.Reader(ctx))
	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		f.Close(ctx)
		return nil, errors.E(err, fmt.Sprintf("raw: cannot read header of %s", path))
	}
	if string(magic[:]) != rawMagic {
		f.Close(ctx)
		return nil, errors.E(errors.Invalid, fmt.Sprintf("raw: %s is not a raw visibility file", path))
	}
	var header struct {
		Version uint32
		Nfreq   uint32
		Nprod   uint32
		Ntime   uint32
	}
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		f.Close(ctx)
		return nil, errors.E(err, fmt.Sprintf("raw: cannot read header of %s", path))
	}
	if header.Version != rawVersion {
		f.Close(ctx)
		return nil, errors.E(errors.Invalid, fmt.Sprintf("raw: %s has version %d, want %d", path, header.Version, rawVersion))
	}
	timestamp := make([]float64, header.Ntime)
	if err := binary.Read(r, binary.LittleEndian, timestamp); err != nil {
		f.Close(ctx)
		return nil, errors.E(err, fmt.Sprintf("raw: cannot read timestamps of %s", path))
	}
	return &rawReader{
		ctx:       ctx,
		f:         f,
		r:         r,
		nfreq:     int(header.Nfreq),
		nprod:     int(header.Nprod),
		ntime:     int(header.Ntime),
		timestamp: timestamp,
	}, nil
}

// Shape implements Reader.
func (r *rawReader) Shape() (nfreq, nprod, ntime int) {
	return r.nfreq, r.nprod, r.ntime
}

// Timestamp implements Reader.
func (r *rawReader) Timestamp() []float64 { return r.timestamp }

// ReadVis implements Reader.
func (r *rawReader) ReadVis(dst []complex128) error {
	if want := r.nfreq * r.nprod * r.ntime; len(dst) != want {
		return errors.E(errors.Invalid, fmt.Sprintf("raw: destination has %d elements, want %d", len(dst), want))
	}
	buf := make([]byte, 8*r.ntime)
	for off := 0; off < len(dst); off += r.ntime {
		if _, err := io.ReadFull(r.r, buf); err != nil {
			return err
		}
		for i := 0; i < r.ntime; i++ {
			re := math.Float32frombits(binary.LittleEndian.Uint32(buf[8*i:]))
			im := math.Float32frombits(binary.LittleEndian.Uint32(buf[8*i+4:]))
			dst[off+i] = complex(float64(re), float64(im))
		}
	}
	return nil
}

// Close implements Reader.
func (r *rawReader) Close() error { return r.f.Close(r.ctx) }

// WriteRaw writes one raw-format visibility file. vis is row-major
// over (freq, prod, time) and is narrowed to complex64 on disk.
func WriteRaw(ctx context.Context, path string, nfreq, nprod int, timestamp []float64, vis []complex128) (err error) {
	ntime := len(timestamp)
	if want := nfreq * nprod * ntime; len(vis) != want {
		return errors.E(errors.Invalid, fmt.Sprintf("raw: vis has %d elements, want %d", len(vis), want))
	}
	f, err := file.Create(ctx, path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(ctx); err == nil {
			err = cerr
		}
	}()
	w := bufio.NewWriter(f.Writer(ctx))
	w.WriteString(rawMagic)
	header := struct {
		Version uint32
		Nfreq   uint32
		Nprod   uint32
		Ntime   uint32
	}{rawVersion, uint32(nfreq), uint32(nprod), uint32(ntime)}
	if err := binary.Write(w, binary.LittleEndian, &header); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, timestamp); err != nil {
		return err
	}
	buf := make([]byte, 8)
	for _, v := range vis {
		binary.LittleEndian.PutUint32(buf, math.Float32bits(float32(real(v))))
		binary.LittleEndian.PutUint32(buf[4:], math.Float32bits(float32(imag(v))))
		if _, err := w.Write(buf); err != nil {
			return err
		}
	}
	return w.Flush()
}
