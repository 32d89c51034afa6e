// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"compress/flate"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-lpc/npx/internal/npx2"
	"go-hep.org/x/hep/lcio"
)

func TestRunNbrFrom(t *testing.T) {
	for _, tc := range []struct {
		fname string
		run   int32
	}{
		{
			fname: "./recording_slot3_1.npx2",
			run:   1,
		},
		{
			fname: "/some/dir/recording_slot12_42.npx2",
			run:   42,
		},
		{
			fname: "../some/dir/recording_slot0_7.npx2",
			run:   7,
		},
	} {
		t.Run(tc.fname, func(t *testing.T) {
			got, err := runNbrFrom(tc.fname)
			if err != nil {
				t.Fatalf("could not infer run-nbr: %+v", err)
			}
			if got != tc.run {
				t.Fatalf("invalid run: got=%d, want=%d", got, tc.run)
			}
		})
	}

	if _, err := runNbrFrom("data.npx2"); err == nil {
		t.Fatalf("expected an error")
	}
}

func TestNPX2LCIO(t *testing.T) {
	tmp := t.TempDir()

	fname := filepath.Join(tmp, "recording_slot3_5.npx2")
	f, err := os.Create(fname)
	if err != nil {
		t.Fatalf("could not create NPX2 file: %+v", err)
	}
	defer f.Close()

	enc := npx2.NewEncoder(f)
	for i := 0; i < 4; i++ {
		rec := npx2.Record{Slot: 3, Port: int8(i % 2)}
		rec.Packet.Timestamp[0] = uint32(12 * i)
		err = enc.Encode(&rec)
		if err != nil {
			t.Fatalf("could not encode record: %+v", err)
		}
	}

	err = f.Close()
	if err != nil {
		t.Fatalf("could not close NPX2 file: %+v", err)
	}

	err = process(fname+".lcio", flate.DefaultCompression, -1, fname)
	if err != nil {
		t.Fatalf("could not convert NPX2 file: %+v", err)
	}

	r, err := lcio.Open(fname + ".lcio")
	if err != nil {
		t.Fatalf("could not open LCIO file: %+v", err)
	}
	defer r.Close()
	if !r.Next() {
		t.Fatalf("could not read first LCIO event: %+v", r.Err())
	}
	if got, want := r.RunHeader().RunNumber, int32(5); got != want {
		t.Fatalf("invalid run number: got=%d, want=%d", got, want)
	}

	oname := filepath.Join(tmp, "probe.lcio")
	err = process(oname, flate.BestCompression, 1234, fname)
	if err != nil {
		t.Fatalf("could not convert NPX2 file with explicit run: %+v", err)
	}

	err = process(fname+".lcio", flate.DefaultCompression, -1, filepath.Join(tmp, "missing.npx2"))
	if err == nil {
		t.Fatalf("expected an error")
	}
}
