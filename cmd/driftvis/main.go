// Copyright 2026 Radiocosmo Authors. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Driftvis is a command line driver for the transit-telescope
// visibility pipeline: it merges raw acquisition files into a single
// time stream and runs the RFI masking engine over it, either
// in-process or on a group of bigmachine workers.
package main

import (
	"context"
	"encoding/gob"
	"flag"
	"fmt"
	"math"
	"os"

	"github.com/grailbio/base/data"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/must"
	"github.com/grailbio/bigmachine"
	"golang.org/x/sync/errgroup"

	"github.com/radiocosmo/driftvis/comm"
	"github.com/radiocosmo/driftvis/ephem"
	"github.com/radiocosmo/driftvis/flagging"
	"github.com/radiocosmo/driftvis/ingest"
	"github.com/radiocosmo/driftvis/rfi"
	"github.com/radiocosmo/driftvis/stream"
)

func init() {
	gob.Register([]complex128{})
	gob.Register(job{})
}

func usage() {
	fmt.Fprintf(os.Stderr, `Driftvis processes transit-telescope visibility data.

Usage:

	driftvis <command> [-flags] file...

The commands are:

	ingest      merge raw visibility files into one time stream
	mask        ingest, then compute and apply the RFI mask

Common flags:

	-workers    number of SPMD workers (default 2)
	-machines   run workers on bigmachine instead of in-process
	-o          output file
`)
	os.Exit(2)
}

// job carries one pipeline invocation to the workers. It is the unit
// shipped to bigmachine, so every field must be gob-encodable.
type job struct {
	Command string
	Paths   []string
	Out     string

	// Frequency axis of the raw files, MHz: channel i sits at
	// Freq0 + i*DFreq.
	Freq0 float64
	DFreq float64

	// Site coordinates, degrees east and north.
	Longitude float64
	Latitude  float64

	Cfg rfi.Config
}

func main() {
	log.AddFlags()
	log.SetFlags(0)
	log.SetPrefix("driftvis: ")
	must.Func = log.Fatal
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
	}
	command := flag.Arg(0)
	if command != "ingest" && command != "mask" {
		fmt.Fprintf(os.Stderr, "unknown command %q\n", command)
		flag.Usage()
	}

	flags := flag.NewFlagSet(command, flag.ExitOnError)
	var (
		workers  = flags.Int("workers", 2, "number of SPMD workers")
		machines = flags.Bool("machines", false, "run workers on bigmachine")
		out      = flags.String("o", "out.dvis", "output file")
		freq0    = flags.Float64("freq0", 800, "frequency of channel 0, MHz")
		dfreq    = flags.Float64("dfreq", -400.0/1024, "channel spacing, MHz")
		lon      = flags.Float64("lon", -119.62, "site longitude, degrees east")
		lat      = flags.Float64("lat", 49.32, "site latitude, degrees north")
	)
	cfg := rfi.DefaultConfig()
	flags.Float64Var(&cfg.Sigma, "sigma", cfg.Sigma, "pointwise threshold, sigma units")
	flags.Float64Var(&cfg.TVFraction, "tv-fraction", cfg.TVFraction, "TV band exceedance fraction")
	flags.IntVar(&cfg.MaxM, "max-m", cfg.MaxM, "largest SumThreshold window")
	flags.Float64Var(&cfg.StartSigma, "start-sigma", cfg.StartSigma, "initial SumThreshold threshold, sigma units")
	flags.BoolVar(&cfg.RemoveMedian, "remove-median", cfg.RemoveMedian, "subtract the per-channel median")
	flags.BoolVar(&cfg.SIR, "sir", cfg.SIR, "apply scale-invariant-rank dilation")
	flags.Float64Var(&cfg.SIREta, "sir-eta", cfg.SIREta, "dilation aggressiveness")
	masktype := flags.String("mask-type", string(cfg.Type), "mask combination: mad, sumthreshold or combine")
	must.Nil(flags.Parse(flag.Args()[1:]))
	cfg.Type = rfi.MaskType(*masktype)
	if flags.NArg() == 0 {
		log.Fatal("no input files")
	}

	j := job{
		Command:   command,
		Paths:     flags.Args(),
		Out:       *out,
		Freq0:     *freq0,
		DFreq:     *dfreq,
		Longitude: *lon,
		Latitude:  *lat,
		Cfg:       cfg,
	}
	ctx := context.Background()
	var err error
	if *machines {
		err = runMachines(ctx, *workers, j)
	} else {
		err = comm.Run(ctx, *workers, func(ctx context.Context, g *comm.Group) error {
			return j.run(ctx, g)
		})
	}
	must.Nil(err)
}

// worker is the bigmachine service running on each machine: the
// collective transport plus the pipeline entry point. It is
// registered under the Peer service name so that both the collective
// posts and the job call land on the same instance.
type worker struct {
	comm.Peer
}

// Run executes the configured job on this machine's rank.
func (w *worker) Run(ctx context.Context, j job, _ *struct{}) error {
	g, err := w.Group()
	if err != nil {
		return err
	}
	return j.run(ctx, g)
}

func runMachines(ctx context.Context, n int, j job) error {
	b := bigmachine.Start(bigmachine.Local)
	defer b.Shutdown()
	machines, err := comm.StartMachines(ctx, b, n, bigmachine.Services{"Peer": &worker{}})
	if err != nil {
		return err
	}
	eg, ctx := errgroup.WithContext(ctx)
	for _, m := range machines {
		m := m
		eg.Go(func() error {
			return m.RetryCall(ctx, "Peer.Run", j, nil)
		})
	}
	return eg.Wait()
}

// run is the SPMD body executed by every worker.
func (j job) run(ctx context.Context, g *comm.Group) error {
	ts, err := ingest.FromFiles(ctx, g, func(path string) (ingest.Reader, error) {
		return ingest.OpenRaw(ctx, path)
	}, j.Paths)
	if err != nil {
		return err
	}
	if j.Command == "mask" {
		if err := j.mask(ctx, g, ts); err != nil {
			return err
		}
	}
	return writeStream(ctx, g, ts, j.Out)
}

// mask computes the RFI mask over the ingested stream and zeroes the
// flagged visibilities in place.
func (j job) mask(ctx context.Context, g *comm.Group, ts *stream.TimeStream) error {
	shape := ts.Vis().Shape()
	nf, nprod := shape[0], shape[1]
	freq := make([]float64, nf)
	for i := range freq {
		freq[i] = j.Freq0 + float64(i)*j.DFreq
	}
	// The raw interchange format carries no input map, so all
	// products are tested as a single polarization.
	prods := make([]int, nprod)
	for k := range prods {
		prods[k] = k
	}
	obs := ephem.Observatory{
		Longitude: j.Longitude * math.Pi / 180,
		Latitude:  j.Latitude * math.Pi / 180,
	}
	p := rfi.Params{
		Freq:     freq,
		MADTimes: obs.TransitWindows(ts.Timestamp()),
		Static:   rfi.FrequencyMask(freq),
	}
	mask, err := flagging.MaskStream(ctx, ts, [][]int{prods}, j.Cfg, p)
	if err != nil {
		return err
	}
	mts := flagging.ApplyRFIMask(ts, mask)
	vis := mts.Vis().Complex128s()
	for i, m := range mts.Mask().Bools() {
		if m {
			vis[i] = 0
		}
	}
	return nil
}

// writeStream gathers the frequency shards to rank 0 and writes the
// whole stream as one raw file.
func writeStream(ctx context.Context, g *comm.Group, ts *stream.TimeStream, path string) error {
	vis := ts.Vis()
	parts, err := g.AllGather(ctx, vis.Complex128s())
	if err != nil {
		return err
	}
	if g.Rank() != 0 {
		return nil
	}
	shape := vis.Shape()
	full := make([]complex128, 0, shape[0]*shape[1]*shape[2])
	for _, part := range parts {
		full = append(full, part.([]complex128)...)
	}
	log.Printf("writing %d x %d x %d stream (%s) to %s",
		shape[0], shape[1], shape[2], data.Size(len(full)*16), path)
	return ingest.WriteRaw(ctx, path, shape[0], shape[1], ts.Timestamp(), full)
}
