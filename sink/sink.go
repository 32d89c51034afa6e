// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package sink provides the bounded sample buffers probes publish
// their converted data into.
package sink // import "github.com/go-lpc/npx/sink"

import (
	"fmt"
)

// Sink is a bounded multi-channel sample buffer.
//
// Append appends n samples: data holds n*nchans values (sample-major),
// ts and events hold n values each. Append returns the number of samples
// that could be stored; the overflow policy belongs to the sink.
type Sink interface {
	Append(data []float32, ts []int64, events []uint64, n int) (int, error)
}

func checkAppend(nchans int, data []float32, ts []int64, events []uint64, n int) error {
	switch {
	case n < 0:
		return fmt.Errorf("sink: invalid number of samples %d", n)
	case len(data) < n*nchans:
		return fmt.Errorf("sink: short data slice (got=%d, want=%d)", len(data), n*nchans)
	case len(ts) < n:
		return fmt.Errorf("sink: short timestamps slice (got=%d, want=%d)", len(ts), n)
	case len(events) < n:
		return fmt.Errorf("sink: short events slice (got=%d, want=%d)", len(events), n)
	}
	return nil
}
