// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package daq

import (
	"fmt"
	"os"
	"sync"

	"github.com/go-daq/tdaq/log"
	"github.com/go-lpc/npx/driver"
)

// Basestation is an acquisition unit hosted in a chassis slot.
type Basestation struct {
	slot int
	info driver.BSInfo
	bsc  driver.BSCInfo

	drv driver.Driver
	msg log.MsgStream

	probes []*Probe

	mu     sync.Mutex
	inited bool
	master bool
	dir    string
}

// Slot returns the chassis slot of the basestation.
func (bs *Basestation) Slot() int { return bs.slot }

// Info returns the firmware identity of the basestation.
func (bs *Basestation) Info() driver.BSInfo { return bs.info }

// BSC returns the identity of the connect board of the basestation.
func (bs *Basestation) BSC() driver.BSCInfo { return bs.bsc }

// Probes returns the probes of the basestation, ordered by port.
func (bs *Basestation) Probes() []*Probe { return bs.probes }

// Probe returns the probe plugged on port, or nil.
func (bs *Basestation) Probe(port int) *Probe {
	for _, p := range bs.probes {
		if p.port == port {
			return p
		}
	}
	return nil
}

func (bs *Basestation) String() string {
	return fmt.Sprintf("basestation(slot=%d)", bs.slot)
}

// InitializeProbes initializes all the probes of the basestation.
// Once successful, subsequent calls are no-ops.
func (bs *Basestation) InitializeProbes() error {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	if bs.inited {
		return nil
	}

	var (
		first error
		nerrs int
	)
	for _, p := range bs.probes {
		err := p.initialize()
		if err != nil {
			bs.msg.Errorf("%+v", err)
			if first == nil {
				first = err
			}
			nerrs++
		}
	}
	if first != nil {
		return fmt.Errorf("daq: could not initialize %d probe(s) of %v: %w", nerrs, bs, first)
	}

	bs.inited = true
	return nil
}

func (bs *Basestation) probeOn(port int) *Probe {
	p := bs.Probe(port)
	if p == nil {
		bs.msg.Warnf("%v: no probe on port %d", bs, port)
	}
	return p
}

// SetChannels selects the electrode banks of the probe on port.
// Requests for a port without probe are logged and ignored.
func (bs *Basestation) SetChannels(port int, banks []int) error {
	p := bs.probeOn(port)
	if p == nil {
		return nil
	}
	return p.SetChannels(banks)
}

// SetReferences sets the reference index of the probe on port.
// Requests for a port without probe are logged and ignored.
func (bs *Basestation) SetReferences(port, ref int) error {
	p := bs.probeOn(port)
	if p == nil {
		return nil
	}
	return p.SetReference(ref)
}

// SetGains sets the AP and LFP gain indices of the probe on port.
// Requests for a port without probe are logged and ignored.
func (bs *Basestation) SetGains(port, ap, lfp int) error {
	p := bs.probeOn(port)
	if p == nil {
		return nil
	}
	return p.SetGains(ap, lfp)
}

// SetAPFilterState enables or disables the AP filter of the probe on port.
// Requests for a port without probe are logged and ignored.
func (bs *Basestation) SetAPFilterState(port int, on bool) error {
	p := bs.probeOn(port)
	if p == nil {
		return nil
	}
	return p.SetAPFilter(on)
}

// MakeSyncMaster makes the basestation the source of the sync clock.
func (bs *Basestation) MakeSyncMaster() error {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	err := bs.drv.SetSyncMaster(bs.slot)
	if err != nil {
		return fmt.Errorf("daq: could not make %v sync master: %w", bs, err)
	}
	err = bs.drv.SetSyncOutput(bs.slot, true)
	if err != nil {
		return fmt.Errorf("daq: could not enable sync output of %v: %w", bs, err)
	}
	bs.master = true
	return nil
}

// IsSyncMaster returns whether the basestation is the sync master.
func (bs *Basestation) IsSyncMaster() bool {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	return bs.master
}

// SetSyncOutput enables or disables the sync output of the basestation.
func (bs *Basestation) SetSyncOutput(on bool) error {
	err := bs.drv.SetSyncOutput(bs.slot, on)
	if err != nil {
		return fmt.Errorf("daq: could not set sync output of %v: %w", bs, err)
	}
	return nil
}

// SyncFrequencies returns the available sync frequencies, in Hz.
func (bs *Basestation) SyncFrequencies() ([]int, error) {
	freqs, err := bs.drv.SyncFrequencies(bs.slot)
	if err != nil {
		return nil, fmt.Errorf("daq: could not retrieve sync frequencies of %v: %w", bs, err)
	}
	return freqs, nil
}

// SetSyncFrequency selects the sync frequency with index idx.
func (bs *Basestation) SetSyncFrequency(idx int) error {
	err := bs.drv.SetSyncFrequency(bs.slot, idx)
	if err != nil {
		return fmt.Errorf("daq: could not set sync frequency of %v: %w", bs, err)
	}
	return nil
}

// Temperature returns the temperature of the basestation, in °C.
func (bs *Basestation) Temperature() (float64, error) {
	v, err := bs.drv.Temperature(bs.slot)
	if err != nil {
		return 0, fmt.Errorf("daq: could not read temperature of %v: %w", bs, err)
	}
	return v, nil
}

// StartAcquisition starts streaming data from all the probes.
// Probes must have been initialized.
func (bs *Basestation) StartAcquisition() error {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	if !bs.inited {
		return fmt.Errorf("daq: could not start %v: probes not initialized", bs)
	}

	for _, p := range bs.probes {
		p.reset()
	}

	err := bs.drv.Arm(bs.slot)
	if err != nil {
		return fmt.Errorf("daq: could not arm %v: %w", bs, err)
	}
	err = bs.drv.Trigger(bs.slot)
	if err != nil {
		return fmt.Errorf("daq: could not trigger %v: %w", bs, err)
	}
	return nil
}

// StopAcquisition stops streaming data from all the probes.
func (bs *Basestation) StopAcquisition() error {
	err := bs.drv.Stop(bs.slot)
	if err != nil {
		return fmt.Errorf("daq: could not stop %v: %w", bs, err)
	}
	return nil
}

// FillPercentage returns the largest FIFO fill fraction of the probes.
func (bs *Basestation) FillPercentage() float64 {
	fill := 0.0
	for _, p := range bs.probes {
		if v := p.FillPercentage(); v > fill {
			fill = v
		}
	}
	return fill
}

// SetSavingDirectory sets the directory recordings are saved into.
func (bs *Basestation) SetSavingDirectory(dir string) {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	bs.dir = dir
}

// SavingDirectory returns the directory recordings are saved into.
// It defaults to the current working directory.
func (bs *Basestation) SavingDirectory() string {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	if bs.dir != "" {
		return bs.dir
	}
	return cwd()
}

func cwd() string {
	dir, err := os.Getwd()
	if err != nil {
		return "."
	}
	return dir
}

func (bs *Basestation) startFileStream(fname string) error {
	err := bs.drv.SetFileStream(bs.slot, fname)
	if err != nil {
		return fmt.Errorf("daq: could not set file stream of %v: %w", bs, err)
	}
	err = bs.drv.EnableFileStream(bs.slot, true)
	if err != nil {
		return fmt.Errorf("daq: could not enable file stream of %v: %w", bs, err)
	}
	return nil
}

func (bs *Basestation) stopFileStream() error {
	err := bs.drv.EnableFileStream(bs.slot, false)
	if err != nil {
		return fmt.Errorf("daq: could not disable file stream of %v: %w", bs, err)
	}
	return nil
}

// readout drains the FIFO of every probe once.
// Read errors are logged and do not prevent the other probes from
// being drained.
func (bs *Basestation) readout() int {
	n := 0
	for _, p := range bs.probes {
		v, err := p.readout()
		if err != nil {
			bs.msg.Warnf("%+v", err)
		}
		n += v
	}
	return n
}
