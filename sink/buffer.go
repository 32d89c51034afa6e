// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sink

import (
	"fmt"
	"sync"
)

// Buffer is an in-memory ring of samples.
// When full, Buffer drops the newest samples and counts them.
type Buffer struct {
	mu     sync.Mutex
	nchans int
	depth  int

	data []float32
	ts   []int64
	evts []uint64

	beg  int // index of the oldest sample
	size int // number of buffered samples

	dropped int64
}

// NewBuffer creates a ring of depth samples of nchans channels.
func NewBuffer(nchans, depth int) *Buffer {
	if nchans <= 0 || depth <= 0 {
		panic(fmt.Errorf("sink: invalid buffer geometry (nchans=%d, depth=%d)", nchans, depth))
	}
	return &Buffer{
		nchans: nchans,
		depth:  depth,
		data:   make([]float32, nchans*depth),
		ts:     make([]int64, depth),
		evts:   make([]uint64, depth),
	}
}

func (buf *Buffer) Append(data []float32, ts []int64, events []uint64, n int) (int, error) {
	err := checkAppend(buf.nchans, data, ts, events, n)
	if err != nil {
		return 0, err
	}

	buf.mu.Lock()
	defer buf.mu.Unlock()

	m := n
	if room := buf.depth - buf.size; room < m {
		m = room
	}
	for i := 0; i < m; i++ {
		j := (buf.beg + buf.size) % buf.depth
		copy(buf.data[j*buf.nchans:(j+1)*buf.nchans], data[i*buf.nchans:(i+1)*buf.nchans])
		buf.ts[j] = ts[i]
		buf.evts[j] = events[i]
		buf.size++
	}
	buf.dropped += int64(n - m)
	return m, nil
}

// Read moves at most max of the oldest samples into the provided slices,
// and returns the number of samples read.
// The slices must be able to hold max samples.
func (buf *Buffer) Read(data []float32, ts []int64, events []uint64, max int) int {
	buf.mu.Lock()
	defer buf.mu.Unlock()

	n := max
	if buf.size < n {
		n = buf.size
	}
	for i := 0; i < n; i++ {
		j := buf.beg
		copy(data[i*buf.nchans:(i+1)*buf.nchans], buf.data[j*buf.nchans:(j+1)*buf.nchans])
		ts[i] = buf.ts[j]
		events[i] = buf.evts[j]
		buf.beg = (buf.beg + 1) % buf.depth
		buf.size--
	}
	return n
}

// Len returns the number of buffered samples.
func (buf *Buffer) Len() int {
	buf.mu.Lock()
	defer buf.mu.Unlock()
	return buf.size
}

// Cap returns the maximum number of buffered samples.
func (buf *Buffer) Cap() int { return buf.depth }

// NumChans returns the number of channels of a sample.
func (buf *Buffer) NumChans() int { return buf.nchans }

// Dropped returns the number of samples dropped since the last Clear.
func (buf *Buffer) Dropped() int64 {
	buf.mu.Lock()
	defer buf.mu.Unlock()
	return buf.dropped
}

// Clear empties the buffer.
func (buf *Buffer) Clear() {
	buf.mu.Lock()
	defer buf.mu.Unlock()
	buf.beg = 0
	buf.size = 0
	buf.dropped = 0
}

var _ Sink = (*Buffer)(nil)
