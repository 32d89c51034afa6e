// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package xcnv

import (
	"bytes"
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/go-lpc/npx/driver"
	"github.com/go-lpc/npx/internal/npx2"
	"go-hep.org/x/hep/lcio"
)

func TestNPX2LCIO(t *testing.T) {
	tmp := t.TempDir()

	recs := make([]npx2.Record, 3)
	for i := range recs {
		rec := &recs[i]
		rec.Slot = 3
		rec.Port = int8(i % 2)
		for j := range rec.Packet.Timestamp {
			rec.Packet.Timestamp[j] = uint32(i*driver.NumAUX + j)
			rec.Packet.Trigger[j] = uint16(j % 2 * 0x40)
			for ch := range rec.Packet.AP[j] {
				rec.Packet.AP[j][ch] = int16(ch - j - i)
			}
		}
		for ch := range rec.Packet.LFP {
			rec.Packet.LFP[ch] = int16(-ch)
		}
	}

	const run = 42
	msg := log.New(io.Discard, "", 0)

	raw := new(bytes.Buffer)
	enc := npx2.NewEncoder(raw)
	for i := range recs {
		if err := enc.Encode(&recs[i]); err != nil {
			t.Fatalf("could not encode record: %+v", err)
		}
	}

	fname := filepath.Join(tmp, "run.lcio")
	lw, err := lcio.Create(fname)
	if err != nil {
		t.Fatalf("could not create LCIO file: %+v", err)
	}
	defer lw.Close()

	err = NPX2LCIO(lw, npx2.NewDecoder(bytes.NewReader(raw.Bytes())), run, msg)
	if err != nil {
		t.Fatalf("could not convert to LCIO: %+v", err)
	}
	err = lw.Close()
	if err != nil {
		t.Fatalf("could not close LCIO file: %+v", err)
	}

	lr, err := lcio.Open(fname)
	if err != nil {
		t.Fatalf("could not open LCIO file: %+v", err)
	}
	defer lr.Close()

	out, err := os.Create(filepath.Join(tmp, "run.npx2"))
	if err != nil {
		t.Fatalf("could not create NPX2 file: %+v", err)
	}
	defer out.Close()

	err = LCIO2NPX(out, lr, 1, msg)
	if err != nil {
		t.Fatalf("could not convert to NPX2: %+v", err)
	}
	err = out.Close()
	if err != nil {
		t.Fatalf("could not close NPX2 file: %+v", err)
	}

	got, err := os.ReadFile(out.Name())
	if err != nil {
		t.Fatalf("could not read NPX2 file: %+v", err)
	}

	dec := npx2.NewDecoder(bytes.NewReader(got))
	for i := range recs {
		var rec npx2.Record
		err := dec.Decode(&rec)
		if err != nil {
			t.Fatalf("could not decode record #%d: %+v", i, err)
		}
		if !reflect.DeepEqual(rec, recs[i]) {
			t.Fatalf("round-trip failed for record #%d", i)
		}
	}
	var rec npx2.Record
	if err := dec.Decode(&rec); !errors.Is(err, io.EOF) {
		t.Fatalf("invalid end of stream: %+v", err)
	}
}

func TestNPX2LCIOInvalid(t *testing.T) {
	tmp := t.TempDir()
	lw, err := lcio.Create(filepath.Join(tmp, "bad.lcio"))
	if err != nil {
		t.Fatalf("could not create LCIO file: %+v", err)
	}
	defer lw.Close()

	err = NPX2LCIO(lw, npx2.NewDecoder(bytes.NewReader([]byte("not-a-record"))), 1, log.New(io.Discard, "", 0))
	if err == nil {
		t.Fatalf("expected an error")
	}
}
