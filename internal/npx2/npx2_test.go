// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package npx2

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"

	"github.com/go-lpc/npx/driver"
	"golang.org/x/xerrors"
)

func newRecord(slot uint8, port int8, seed int) Record {
	rec := Record{Slot: slot, Port: port}
	for i := 0; i < driver.NumAUX; i++ {
		rec.Packet.Timestamp[i] = uint32(seed*driver.NumAUX + i)
		rec.Packet.Trigger[i] = uint16(i % 2 * 64)
		for ch := 0; ch < driver.NumChannels; ch++ {
			rec.Packet.AP[i][ch] = int16(seed + ch - i*100)
		}
	}
	for ch := 0; ch < driver.NumChannels; ch++ {
		rec.Packet.LFP[ch] = int16(-seed - ch)
	}
	return rec
}

func TestCodec(t *testing.T) {
	want := []Record{
		newRecord(3, 0, 1),
		newRecord(3, 1, 2),
		newRecord(7, -1, 3),
	}

	buf := new(bytes.Buffer)
	enc := NewEncoder(buf)
	for i := range want {
		err := enc.Encode(&want[i])
		if err != nil {
			t.Fatalf("could not encode record %d: %+v", i, err)
		}
	}

	if got, want := buf.Len(), len(want)*RecordSize; got != want {
		t.Fatalf("invalid stream size: got=%d, want=%d", got, want)
	}

	dec := NewDecoder(buf)
	for i := range want {
		var rec Record
		err := dec.Decode(&rec)
		if err != nil {
			t.Fatalf("could not decode record %d: %+v", i, err)
		}
		if rec != want[i] {
			t.Fatalf("invalid record %d: slot=%d port=%d", i, rec.Slot, rec.Port)
		}
	}

	var rec Record
	err := dec.Decode(&rec)
	if !errors.Is(err, io.EOF) {
		t.Fatalf("invalid end-of-stream error: %+v", err)
	}
}

func TestDecodeErrors(t *testing.T) {
	valid := new(bytes.Buffer)
	rec := newRecord(1, 2, 3)
	if err := NewEncoder(valid).Encode(&rec); err != nil {
		t.Fatalf("could not encode record: %+v", err)
	}

	badMagic := append([]byte(nil), valid.Bytes()...)
	binary.LittleEndian.PutUint32(badMagic, 0xdeadbeef)

	for _, tc := range []struct {
		name string
		raw  []byte
		want error
	}{
		{
			name: "short-header",
			raw:  valid.Bytes()[:3],
			want: xerrors.Errorf("npx2: could not read record header #0: %w", io.ErrUnexpectedEOF),
		},
		{
			name: "bad-magic",
			raw:  badMagic,
			want: xerrors.Errorf("npx2: invalid record #0 magic (got=0xdeadbeef)"),
		},
		{
			name: "no-payload",
			raw:  valid.Bytes()[:hdrSize],
			want: xerrors.Errorf("npx2: could not read record #0 payload: %w", io.ErrUnexpectedEOF),
		},
		{
			name: "short-payload",
			raw:  valid.Bytes()[:RecordSize-1],
			want: xerrors.Errorf("npx2: could not read record #0 payload: %w", io.ErrUnexpectedEOF),
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			var rec Record
			err := NewDecoder(bytes.NewReader(tc.raw)).Decode(&rec)
			if err == nil {
				t.Fatalf("expected an error")
			}
			if got, want := err.Error(), tc.want.Error(); got != want {
				t.Fatalf("invalid error:\ngot= %q\nwant=%q", got, want)
			}
		})
	}
}

type failWriter struct{}

func (failWriter) Write(p []byte) (int, error) { return 0, io.ErrClosedPipe }

func TestEncodeError(t *testing.T) {
	rec := newRecord(4, 1, 0)
	err := NewEncoder(failWriter{}).Encode(&rec)
	if !errors.Is(err, io.ErrClosedPipe) {
		t.Fatalf("invalid error: %+v", err)
	}
}
