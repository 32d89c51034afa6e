// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package npx2 encodes and decodes streams of probe packets, as written
// by basestations when file streaming is enabled.
//
// A stream is a sequence of fixed-size little-endian records:
//
//	magic   u32 "NPX2"
//	slot    u8
//	port    i8
//	pad     u16
//	ts      [12]u32
//	trig    [12]u16
//	ap      [12][384]i16
//	lfp     [384]i16
package npx2 // import "github.com/go-lpc/npx/internal/npx2"

import (
	"encoding/binary"
	"io"

	"github.com/go-lpc/npx/driver"
	"golang.org/x/xerrors"
)

const (
	Magic = 0x3258504e // "NPX2"

	hdrSize = 8
	pktSize = driver.NumAUX*4 + driver.NumAUX*2 +
		driver.NumAUX*driver.NumChannels*2 + driver.NumChannels*2

	// RecordSize is the size in bytes of an encoded record.
	RecordSize = hdrSize + pktSize
)

// Record is a packet read from the probe on (Slot, Port).
type Record struct {
	Slot   uint8
	Port   int8
	Packet driver.Packet
}

// Encoder writes records to an underlying io.Writer.
type Encoder struct {
	w   io.Writer
	buf []byte
}

// NewEncoder returns a new encoder that writes to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w, buf: make([]byte, RecordSize)}
}

// Encode writes rec to the underlying stream.
func (enc *Encoder) Encode(rec *Record) error {
	var (
		buf = enc.buf
		pkt = &rec.Packet
		o   = hdrSize
	)
	binary.LittleEndian.PutUint32(buf[0:], Magic)
	buf[4] = rec.Slot
	buf[5] = uint8(rec.Port)
	binary.LittleEndian.PutUint16(buf[6:], 0)

	for _, v := range pkt.Timestamp {
		binary.LittleEndian.PutUint32(buf[o:], v)
		o += 4
	}
	for _, v := range pkt.Trigger {
		binary.LittleEndian.PutUint16(buf[o:], v)
		o += 2
	}
	for i := range pkt.AP {
		for _, v := range pkt.AP[i] {
			binary.LittleEndian.PutUint16(buf[o:], uint16(v))
			o += 2
		}
	}
	for _, v := range pkt.LFP {
		binary.LittleEndian.PutUint16(buf[o:], uint16(v))
		o += 2
	}

	_, err := enc.w.Write(buf)
	if err != nil {
		return xerrors.Errorf("npx2: could not write record (slot=%d, port=%d): %w", rec.Slot, rec.Port, err)
	}
	return nil
}

// Decoder reads records from an underlying io.Reader.
type Decoder struct {
	r   io.Reader
	buf []byte
	n   int64 // number of decoded records
}

// NewDecoder returns a new decoder that reads from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r, buf: make([]byte, RecordSize)}
}

// Decode reads the next record from the underlying stream.
// Decode returns io.EOF at the end of a well-formed stream.
func (dec *Decoder) Decode(rec *Record) error {
	_, err := io.ReadFull(dec.r, dec.buf[:hdrSize])
	switch {
	case err == io.EOF:
		return io.EOF
	case err != nil:
		return xerrors.Errorf("npx2: could not read record header #%d: %w", dec.n, err)
	}

	if v := binary.LittleEndian.Uint32(dec.buf); v != Magic {
		return xerrors.Errorf("npx2: invalid record #%d magic (got=0x%x)", dec.n, v)
	}
	rec.Slot = dec.buf[4]
	rec.Port = int8(dec.buf[5])

	_, err = io.ReadFull(dec.r, dec.buf[hdrSize:])
	if err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return xerrors.Errorf("npx2: could not read record #%d payload: %w", dec.n, err)
	}

	var (
		buf = dec.buf
		pkt = &rec.Packet
		o   = hdrSize
	)
	for i := range pkt.Timestamp {
		pkt.Timestamp[i] = binary.LittleEndian.Uint32(buf[o:])
		o += 4
	}
	for i := range pkt.Trigger {
		pkt.Trigger[i] = binary.LittleEndian.Uint16(buf[o:])
		o += 2
	}
	for i := range pkt.AP {
		for j := range pkt.AP[i] {
			pkt.AP[i][j] = int16(binary.LittleEndian.Uint16(buf[o:]))
			o += 2
		}
	}
	for i := range pkt.LFP {
		pkt.LFP[i] = int16(binary.LittleEndian.Uint16(buf[o:]))
		o += 2
	}
	dec.n++

	return nil
}
