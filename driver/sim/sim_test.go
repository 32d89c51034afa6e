// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sim

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/go-lpc/npx/driver"
	"github.com/go-lpc/npx/internal/npx2"
)

func newTestDriver() *Driver {
	return New(
		Basestation{Slot: 3, Probes: []Probe{
			{Port: 1, Serial: 101, PartNumber: "PRB_1_4_0480_1", Limit: 10},
			{Port: 0, Serial: 100, PartNumber: "PRB_1_4_0480_1", Limit: 10},
		}},
		Basestation{Slot: 5},
	)
}

func TestScan(t *testing.T) {
	drv := newTestDriver()
	mask, err := drv.Scan()
	if err != nil {
		t.Fatalf("could not scan: %+v", err)
	}
	if got, want := mask, uint32(1<<3|1<<5); got != want {
		t.Fatalf("invalid slot mask: got=0b%b, want=0b%b", got, want)
	}

	ports, err := drv.ProbePorts(3)
	if err != nil {
		t.Fatalf("could not get probe ports: %+v", err)
	}
	if got, want := ports, []int{0, 1}; !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid ports: got=%v, want=%v", got, want)
	}

	_, err = drv.ProbeInfo(3, 2)
	if got, want := driver.StatusOf(err), driver.NotConnected; got != want {
		t.Fatalf("invalid status: got=%v, want=%v", got, want)
	}

	_, err = drv.BSInfo(7)
	if got, want := driver.StatusOf(err), driver.NotConnected; got != want {
		t.Fatalf("invalid status: got=%v, want=%v", got, want)
	}
}

func TestReadPackets(t *testing.T) {
	drv := newTestDriver()
	buf := make([]driver.Packet, 4)

	n, err := drv.ReadPackets(3, 0, buf)
	if err != nil {
		t.Fatalf("could not read packets: %+v", err)
	}
	if n != 0 {
		t.Fatalf("read packets from a stopped basestation: n=%d", n)
	}

	if err := drv.Trigger(3); err == nil {
		t.Fatalf("expected an error triggering a non-armed basestation")
	}

	for _, f := range []func(int) error{drv.Arm, drv.Trigger} {
		if err := f(3); err != nil {
			t.Fatalf("could not start basestation: %+v", err)
		}
	}

	total := 0
	for _, want := range []int{4, 4, 2, 0} {
		n, err := drv.ReadPackets(3, 0, buf)
		if err != nil {
			t.Fatalf("could not read packets: %+v", err)
		}
		if n != want {
			t.Fatalf("invalid number of packets: got=%d, want=%d", n, want)
		}
		total += n
	}
	if got, want := drv.Produced(3, 0), uint64(total); got != want {
		t.Fatalf("invalid produced count: got=%d, want=%d", got, want)
	}
	if got, want := buf[1].Timestamp[0], uint32(9*driver.NumAUX); got != want {
		t.Fatalf("invalid timestamp: got=%d, want=%d", got, want)
	}

	drv.Fail("ReadPackets", 3, 1, driver.CodeTimeout)
	_, err = drv.ReadPackets(3, 1, buf)
	if !errors.Is(err, driver.ErrTimeout) {
		t.Fatalf("invalid error: %+v", err)
	}
	drv.Fail("ReadPackets", 3, 1, driver.CodeSuccess)
	n, err = drv.ReadPackets(3, 1, buf)
	if err != nil || n != 4 {
		t.Fatalf("invalid read after clearing failure: n=%d, err=%+v", n, err)
	}
}

func TestFifoState(t *testing.T) {
	drv := newTestDriver()
	avail, headroom, err := drv.FifoState(3, 0)
	if err != nil {
		t.Fatalf("could not get fifo state: %+v", err)
	}
	if avail != 0 || headroom != fifoDepth {
		t.Fatalf("invalid fifo state: avail=%d, headroom=%d", avail, headroom)
	}

	drv.SetFifo(3, 0, 30, 70)
	avail, headroom, err = drv.FifoState(3, 0)
	if err != nil {
		t.Fatalf("could not get fifo state: %+v", err)
	}
	if avail != 30 || headroom != 70 {
		t.Fatalf("invalid fifo state: avail=%d, headroom=%d", avail, headroom)
	}
}

func TestFileStream(t *testing.T) {
	tmp := t.TempDir()
	fname := filepath.Join(tmp, "recording_slot3_1.npx2")

	drv := newTestDriver()
	if err := drv.EnableFileStream(3, true); err == nil {
		t.Fatalf("expected an error enabling a stream without file name")
	}

	if err := drv.SetFileStream(3, fname); err != nil {
		t.Fatalf("could not set file stream: %+v", err)
	}
	if err := drv.EnableFileStream(3, true); err != nil {
		t.Fatalf("could not enable file stream: %+v", err)
	}
	_ = drv.Arm(3)
	_ = drv.Trigger(3)

	buf := make([]driver.Packet, 3)
	for _, port := range []int{0, 1} {
		if _, err := drv.ReadPackets(3, port, buf); err != nil {
			t.Fatalf("could not read packets: %+v", err)
		}
	}
	if err := drv.EnableFileStream(3, false); err != nil {
		t.Fatalf("could not disable file stream: %+v", err)
	}

	f, err := os.Open(fname)
	if err != nil {
		t.Fatalf("could not open stream file: %+v", err)
	}
	defer f.Close()

	var (
		dec   = npx2.NewDecoder(f)
		ports []int8
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
		if rec.Slot != 3 {
			t.Fatalf("invalid slot: %d", rec.Slot)
		}
		ports = append(ports, rec.Port)
	}
	if got, want := ports, []int8{0, 0, 0, 1, 1, 1}; !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid recorded ports: got=%v, want=%v", got, want)
	}
}

func TestSyncMaster(t *testing.T) {
	drv := newTestDriver()
	if err := drv.SetSyncMaster(3); err != nil {
		t.Fatalf("could not set sync master: %+v", err)
	}
	if err := drv.SetSyncMaster(5); err != nil {
		t.Fatalf("could not set sync master: %+v", err)
	}
	if drv.SyncMaster(3) || !drv.SyncMaster(5) {
		t.Fatalf("invalid sync master")
	}

	if err := drv.SetSyncFrequency(5, 10); err == nil {
		t.Fatalf("expected an error for an invalid sync frequency")
	}

	want := []string{"SetSyncMaster(3)", "SetSyncMaster(5)"}
	if got := drv.Calls(); !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid calls:\ngot= %q\nwant=%q", got, want)
	}
}
