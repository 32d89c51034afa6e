// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command npx-split splits an NPX2 recording file into n NPX2 files,
// one per probe.
//
// Example:
//
//	$> npx-split -o out.npx2 ./recording_slot3_1.npx2
//	npx-split: creating output file "out-s03-p00.npx2"...
//	npx-split: creating output file "out-s03-p01.npx2"...
package main // import "github.com/go-lpc/npx/cmd/npx-split"

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-lpc/npx/internal/npx2"
)

var (
	msg = log.New(os.Stdout, "npx-split: ", 0)
)

func main() {
	xmain(os.Args[1:])
}

func xmain(args []string) {
	var (
		fset = flag.NewFlagSet("npx-split", flag.ExitOnError)

		oname = fset.String("o", "out.npx2", "path to output NPX2 file")
	)

	fset.Usage = func() {
		fmt.Printf(`Usage: npx-split [OPTIONS] file.npx2

ex:
 $> npx-split -o out.npx2 ./recording_slot3_1.npx2

options:
`)
		fset.PrintDefaults()
	}

	err := fset.Parse(args)
	if err != nil {
		log.Fatalf("could not parse input arguments: %+v", err)
	}

	if fset.NArg() != 1 {
		fset.Usage()
		msg.Fatalf("missing input NPX2 file")
	}

	if *oname == "" {
		fset.Usage()
		msg.Fatalf("invalid output NPX2 file")
	}

	fname := fset.Arg(0)
	err = process(*oname, fname)
	if err != nil {
		msg.Fatalf("could not split NPX2 file %q: %+v", fname, err)
	}
}

type probeID struct {
	slot uint8
	port int8
}

func process(oname, fname string) error {
	f, err := os.Open(fname)
	if err != nil {
		return fmt.Errorf("could not open NPX2 file: %w", err)
	}
	defer f.Close()

	var (
		out = make(map[probeID]*npx2.Encoder)
		fs  []*os.File
	)
	defer func() {
		for _, o := range fs {
			_ = o.Close()
		}
	}()

	dec := npx2.NewDecoder(f)
loop:
	for {
		var rec npx2.Record
		err := dec.Decode(&rec)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break loop
			}
			return fmt.Errorf("could not decode record: %w", err)
		}

		id := probeID{rec.Slot, rec.Port}
		enc, ok := out[id]
		if !ok {
			oid := outFileFrom(oname, id)
			msg.Printf("creating output file %q...", oid)
			o, err := os.Create(oid)
			if err != nil {
				return fmt.Errorf("could not create output file: %w", err)
			}
			fs = append(fs, o)

			enc = npx2.NewEncoder(o)
			out[id] = enc
		}

		err = enc.Encode(&rec)
		if err != nil {
			return fmt.Errorf("could not encode record: %w", err)
		}
	}

	for _, o := range fs {
		err := o.Close()
		if err != nil {
			return fmt.Errorf("could not close output file %q: %w", o.Name(), err)
		}
	}
	fs = nil

	return nil
}

func outFileFrom(fname string, id probeID) string {
	var (
		ext   = filepath.Ext(fname)
		oname = strings.TrimSuffix(fname, ext) + fmt.Sprintf("-s%02d-p%02d%s", id.slot, id.port, ext)
	)
	return oname
}
