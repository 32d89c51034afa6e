// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package daq

import (
	"bytes"
	"io"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-daq/tdaq/log"
	"github.com/go-lpc/npx/driver"
	"github.com/go-lpc/npx/driver/sim"
)

// syncBuffer is a bytes.Buffer safe for concurrent use.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newMsg(w io.Writer) log.MsgStream {
	return log.NewMsgStream("npx", log.LvlDebug, w)
}

func newTestDriver(limit int) *sim.Driver {
	return sim.New(
		sim.Basestation{Slot: 3, Probes: []sim.Probe{
			{Port: 0, Serial: 100, PartNumber: "PRB_1_4_0480_1", Limit: limit},
			{Port: 1, Serial: 101, PartNumber: "PRB_1_4_0480_1", Limit: limit},
		}},
		sim.Basestation{Slot: 5},
	)
}

func waitFor(t *testing.T, name string, f func() bool) {
	t.Helper()
	timeout := time.NewTimer(10 * time.Second)
	defer timeout.Stop()
	for !f() {
		select {
		case <-timeout.C:
			t.Fatalf("timeout waiting for %s", name)
		case <-time.After(time.Millisecond):
		}
	}
}

func count(calls []string, prefix string) int {
	n := 0
	for _, call := range calls {
		if strings.HasPrefix(call, prefix) {
			n++
		}
	}
	return n
}

func TestConvert(t *testing.T) {
	for _, tc := range []struct {
		raw  int16
		gain int
		want float64
	}{
		{0, 0, 0},
		{1024, 0, 24000},
		{1024, 4, 1200},
		{-512, 4, -600},
		{512, 7, 200},
	} {
		got := float64(Convert(tc.raw, tc.gain))
		if math.Abs(got-tc.want) > 1e-2 {
			t.Fatalf("invalid conversion of %d (gain=%d): got=%v, want=%v", tc.raw, tc.gain, got, tc.want)
		}
	}

	if got, want := NumGains(), 8; got != want {
		t.Fatalf("invalid number of gains: got=%d, want=%d", got, want)
	}
	if got, want := Gain(DefaultAPGain), float32(1000); got != want {
		t.Fatalf("invalid default AP gain: got=%v, want=%v", got, want)
	}
	if got, want := Gain(DefaultLFPGain), float32(50); got != want {
		t.Fatalf("invalid default LFP gain: got=%v, want=%v", got, want)
	}
	if err := checkGain(8); err == nil {
		t.Fatalf("expected an error for an invalid gain index")
	}
}

func TestReferenceOf(t *testing.T) {
	for _, tc := range []struct {
		idx  int
		want Reference
		err  bool
	}{
		{idx: 0, want: Reference{Type: driver.RefExternal}},
		{idx: 1, want: Reference{Type: driver.RefTip}},
		{idx: 2, want: Reference{Type: driver.RefInternal, Bank: 0}},
		{idx: 4, want: Reference{Type: driver.RefInternal, Bank: 2}},
		{idx: 5, err: true},
		{idx: -1, err: true},
	} {
		got, err := ReferenceOf(tc.idx)
		switch {
		case tc.err && err == nil:
			t.Fatalf("idx=%d: expected an error", tc.idx)
		case !tc.err && err != nil:
			t.Fatalf("idx=%d: could not get reference: %+v", tc.idx, err)
		}
		if got != tc.want {
			t.Fatalf("idx=%d: invalid reference: got=%+v, want=%+v", tc.idx, got, tc.want)
		}
	}
}

func TestEventCode(t *testing.T) {
	for _, tc := range []struct {
		trigger uint16
		want    uint64
	}{
		{0x00, 1},
		{0x40, 0},
		{0x01, 0},
		{0xffff, 0},
	} {
		if got := eventCode(tc.trigger); got != tc.want {
			t.Fatalf("invalid event code for 0x%x: got=%d, want=%d", tc.trigger, got, tc.want)
		}
	}
}

func TestStrings(t *testing.T) {
	for _, tc := range []struct {
		v    interface{ String() string }
		want string
	}{
		{AP, "ap"},
		{LFP, "lfp"},
		{Stream(3), "stream(3)"},
		{Idle, "idle"},
		{Discovered, "discovered"},
		{Acquiring, "acquiring"},
		{State(9), "state(9)"},
	} {
		if got := tc.v.String(); got != tc.want {
			t.Fatalf("invalid string: got=%q, want=%q", got, tc.want)
		}
	}
}
