// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command npx2lcio converts an NPX2 recording file to an LCIO one.
package main // import "github.com/go-lpc/npx/cmd/npx2lcio"

import (
	"compress/flate"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/go-lpc/npx/internal/npx2"
	"github.com/go-lpc/npx/internal/xcnv"
	"go-hep.org/x/hep/lcio"
)

var (
	msg = log.New(os.Stdout, "npx2lcio: ", 0)
)

func main() {
	var (
		oname = flag.String("o", "out.lcio", "path to output LCIO file")
		compr = flag.Int("lvl", flate.DefaultCompression, "compression level for output LCIO file")
		run   = flag.Int("run", -1, "run number to use for output LCIO file (default: recording number)")
	)

	flag.Usage = func() {
		fmt.Printf(`Usage: npx2lcio [OPTIONS] file.npx2

ex:
 $> npx2lcio -o out.lcio -lvl=9 ./recording_slot3_1.npx2
 $> npx2lcio -o out.lcio -run=1234 ./probe.npx2

options:
`)
		flag.PrintDefaults()
	}

	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		msg.Fatalf("missing input NPX2 file")
	}

	if *oname == "" {
		flag.Usage()
		msg.Fatalf("invalid output LCIO file name")
	}

	err := process(*oname, *compr, int32(*run), flag.Arg(0))
	if err != nil {
		msg.Fatalf("could not convert NPX2 file: %+v", err)
	}
}

func process(oname string, lvl int, run int32, fname string) error {
	f, err := os.Open(fname)
	if err != nil {
		return fmt.Errorf("could not open NPX2 file: %w", err)
	}
	defer f.Close()

	if run < 0 {
		run, err = runNbrFrom(fname)
		if err != nil {
			return fmt.Errorf("could not infer run from %q: %w", fname, err)
		}
	}

	w, err := lcio.Create(oname)
	if err != nil {
		return fmt.Errorf("could not create output LCIO file: %w", err)
	}
	defer w.Close()

	w.SetCompressionLevel(lvl)

	err = xcnv.NPX2LCIO(w, npx2.NewDecoder(f), run, msg)
	if err != nil {
		return fmt.Errorf("could not convert NPX2 to LCIO: %w", err)
	}

	err = w.Close()
	if err != nil {
		return fmt.Errorf("could not close output LCIO file: %w", err)
	}

	return nil
}

// runNbrFrom returns the recording number of a recording file.
func runNbrFrom(fname string) (int32, error) {
	var (
		name = filepath.Base(fname)
		slot int32
		run  int32
	)
	_, err := fmt.Sscanf(name, "recording_slot%d_%d.npx2", &slot, &run)
	return run, err
}
