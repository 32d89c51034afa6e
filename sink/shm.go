// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sink

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/go-lpc/npx/internal/mmap"
)

const (
	shmMagic = 0x314d48535850584e // "NXPXSHM1"

	shmOffMagic   = 0
	shmOffNChans  = 8
	shmOffDepth   = 16
	shmOffHead    = 24 // total number of written samples
	shmOffTail    = 32 // total number of read samples
	shmOffDropped = 40
	shmHdrSize    = 64
)

// Shm is a ring of samples living in a shared memory file, so that
// host processes may drain the data of a probe.
//
// A single writer advances the head index; a single reader advances
// the tail index. Samples are stored as a timestamp, an event word
// and nchans float32 values.
type Shm struct {
	h      *mmap.Handle
	nchans int
	depth  int
	recsz  int
	buf    []byte
}

// CreateShm creates a shared memory ring at fname.
func CreateShm(fname string, nchans, depth int) (*Shm, error) {
	if nchans <= 0 || depth <= 0 {
		return nil, fmt.Errorf("sink: invalid shm geometry (nchans=%d, depth=%d)", nchans, depth)
	}
	recsz := shmRecSize(nchans)
	h, err := mmap.Create(fname, shmHdrSize+depth*recsz)
	if err != nil {
		return nil, fmt.Errorf("sink: could not create shm ring: %w", err)
	}
	h.StoreU64(shmOffNChans, uint64(nchans))
	h.StoreU64(shmOffDepth, uint64(depth))
	h.StoreU64(shmOffHead, 0)
	h.StoreU64(shmOffTail, 0)
	h.StoreU64(shmOffDropped, 0)
	h.StoreU64(shmOffMagic, shmMagic)

	return newShm(h, nchans, depth), nil
}

// OpenShm opens an existing shared memory ring.
func OpenShm(fname string) (*Shm, error) {
	h, err := mmap.Open(fname)
	if err != nil {
		return nil, fmt.Errorf("sink: could not open shm ring: %w", err)
	}
	if h.Len() < shmHdrSize {
		_ = h.Close()
		return nil, fmt.Errorf("sink: invalid shm ring %q (size=%d)", fname, h.Len())
	}
	if v := h.LoadU64(shmOffMagic); v != shmMagic {
		_ = h.Close()
		return nil, fmt.Errorf("sink: invalid shm ring magic 0x%x", v)
	}
	var (
		nchans = int(h.LoadU64(shmOffNChans))
		depth  = int(h.LoadU64(shmOffDepth))
	)
	if want := shmHdrSize + depth*shmRecSize(nchans); h.Len() < want {
		_ = h.Close()
		return nil, fmt.Errorf("sink: truncated shm ring %q (got=%d, want=%d)", fname, h.Len(), want)
	}
	return newShm(h, nchans, depth), nil
}

func shmRecSize(nchans int) int {
	return 8 + 8 + 4*nchans
}

func newShm(h *mmap.Handle, nchans, depth int) *Shm {
	recsz := shmRecSize(nchans)
	return &Shm{
		h:      h,
		nchans: nchans,
		depth:  depth,
		recsz:  recsz,
		buf:    make([]byte, recsz),
	}
}

func (shm *Shm) Append(data []float32, ts []int64, events []uint64, n int) (int, error) {
	err := checkAppend(shm.nchans, data, ts, events, n)
	if err != nil {
		return 0, err
	}

	var (
		head = shm.h.LoadU64(shmOffHead)
		tail = shm.h.LoadU64(shmOffTail)
		room = shm.depth - int(head-tail)
		m    = n
	)
	if room < m {
		m = room
	}
	for i := 0; i < m; i++ {
		binary.LittleEndian.PutUint64(shm.buf[0:], uint64(ts[i]))
		binary.LittleEndian.PutUint64(shm.buf[8:], events[i])
		for ch, v := range data[i*shm.nchans : (i+1)*shm.nchans] {
			binary.LittleEndian.PutUint32(shm.buf[16+4*ch:], math.Float32bits(v))
		}
		_, err = shm.h.WriteAt(shm.buf, shm.offset(head))
		if err != nil {
			return i, fmt.Errorf("sink: could not write shm sample: %w", err)
		}
		head++
		shm.h.StoreU64(shmOffHead, head)
	}
	if m < n {
		shm.h.StoreU64(shmOffDropped, shm.h.LoadU64(shmOffDropped)+uint64(n-m))
	}
	return m, nil
}

// Read moves at most max of the oldest samples into the provided slices,
// and returns the number of samples read.
func (shm *Shm) Read(data []float32, ts []int64, events []uint64, max int) (int, error) {
	var (
		head = shm.h.LoadU64(shmOffHead)
		tail = shm.h.LoadU64(shmOffTail)
		n    = int(head - tail)
	)
	if max < n {
		n = max
	}
	for i := 0; i < n; i++ {
		_, err := shm.h.ReadAt(shm.buf, shm.offset(tail))
		if err != nil {
			return i, fmt.Errorf("sink: could not read shm sample: %w", err)
		}
		ts[i] = int64(binary.LittleEndian.Uint64(shm.buf[0:]))
		events[i] = binary.LittleEndian.Uint64(shm.buf[8:])
		row := data[i*shm.nchans : (i+1)*shm.nchans]
		for ch := range row {
			row[ch] = math.Float32frombits(binary.LittleEndian.Uint32(shm.buf[16+4*ch:]))
		}
		tail++
		shm.h.StoreU64(shmOffTail, tail)
	}
	return n, nil
}

func (shm *Shm) offset(i uint64) int64 {
	return int64(shmHdrSize + int(i%uint64(shm.depth))*shm.recsz)
}

// Len returns the number of buffered samples.
func (shm *Shm) Len() int {
	return int(shm.h.LoadU64(shmOffHead) - shm.h.LoadU64(shmOffTail))
}

// Cap returns the maximum number of buffered samples.
func (shm *Shm) Cap() int { return shm.depth }

// NumChans returns the number of channels of a sample.
func (shm *Shm) NumChans() int { return shm.nchans }

// Dropped returns the number of samples dropped by the writer.
func (shm *Shm) Dropped() int64 {
	return int64(shm.h.LoadU64(shmOffDropped))
}

// Close unmaps the shared memory ring.
func (shm *Shm) Close() error {
	return shm.h.Close()
}

var _ Sink = (*Shm)(nil)
