// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/go-lpc/npx/internal/npx2"
)

func TestSplit(t *testing.T) {
	tmp := t.TempDir()
	oname := filepath.Join(tmp, "out.npx2")

	f, err := os.Create(filepath.Join(tmp, "recording.npx2"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	recs := make([]npx2.Record, 5)
	for i := range recs {
		rec := &recs[i]
		rec.Slot = 3
		rec.Port = int8(i % 2)
		rec.Packet.Timestamp[0] = uint32(i)
		rec.Packet.AP[0][0] = int16(-i)
		rec.Packet.LFP[1] = int16(i)
	}

	enc := npx2.NewEncoder(f)
	for i := range recs {
		err := enc.Encode(&recs[i])
		if err != nil {
			t.Fatalf("could not encode record #%d: %+v", i, err)
		}
	}
	err = f.Close()
	if err != nil {
		t.Fatalf("could not close input file: %+v", err)
	}

	err = process(oname, f.Name())
	if err != nil {
		t.Fatalf("could not split file: %+v", err)
	}

	for _, tc := range []struct {
		name string
		want []npx2.Record
	}{
		{"out-s03-p00.npx2", []npx2.Record{recs[0], recs[2], recs[4]}},
		{"out-s03-p01.npx2", []npx2.Record{recs[1], recs[3]}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			f, err := os.Open(filepath.Join(tmp, tc.name))
			if err != nil {
				t.Fatalf("could not open output file: %+v", err)
			}
			defer f.Close()

			var (
				dec = npx2.NewDecoder(f)
				got []npx2.Record
			)
			for {
				var rec npx2.Record
				err := dec.Decode(&rec)
				if errors.Is(err, io.EOF) {
					break
				}
				if err != nil {
					t.Fatalf("could not decode record: %+v", err)
				}
				got = append(got, rec)
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("invalid records in %q", tc.name)
			}
		})
	}
}

func TestSplitInvalid(t *testing.T) {
	tmp := t.TempDir()
	fname := filepath.Join(tmp, "bad.npx2")
	err := os.WriteFile(fname, []byte("not an NPX2 stream"), 0644)
	if err != nil {
		t.Fatal(err)
	}

	err = process(filepath.Join(tmp, "out.npx2"), fname)
	if err == nil {
		t.Fatalf("expected an error")
	}

	err = process(filepath.Join(tmp, "out.npx2"), filepath.Join(tmp, "missing.npx2"))
	if err == nil {
		t.Fatalf("expected an error")
	}
}

func TestOutFileFrom(t *testing.T) {
	for _, tc := range []struct {
		fname string
		id    probeID
		want  string
	}{
		{"out.npx2", probeID{3, 0}, "out-s03-p00.npx2"},
		{"dir.v1/out.npx2", probeID{12, 3}, "dir.v1/out-s12-p03.npx2"},
		{"out", probeID{1, 1}, "out-s01-p01"},
	} {
		if got := outFileFrom(tc.fname, tc.id); got != tc.want {
			t.Fatalf("invalid output name: got=%q, want=%q", got, tc.want)
		}
	}
}
