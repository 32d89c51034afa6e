// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package daq implements the acquisition of data from basestations
// and their probes: discovery of the hardware, conversion of raw
// packets into calibrated AP and LFP samples, fill-level monitoring
// and recording sessions spanning all basestations.
package daq // import "github.com/go-lpc/npx/daq"

import (
	"fmt"

	"github.com/go-lpc/npx/driver"
)

const (
	NumChannels = driver.NumChannels

	SampleCount = 64 // maximum number of packets read per probe and step

	APSampleRate  = 30000.0 // Hz
	LFPSampleRate = 2500.0  // Hz
	BitVolts      = 0.195   // µV per bit

	DefaultAPGain  = 4 // 1000x
	DefaultLFPGain = 0 // 50x

	NumBanks = 3

	// FIFO fill fraction is refreshed whenever the AP timestamp
	// is a multiple of fifoCheckPeriod (2s at 30kHz).
	fifoCheckPeriod = 60000

	bufferDepth = 10000
)

var gains = [...]float32{50, 125, 250, 500, 1000, 1500, 2000, 3000}

// internal reference channels, indexed by bank.
var internalRefs = [...]int{192, 576, 960}

// NumGains returns the number of entries in the gain table.
func NumGains() int { return len(gains) }

// Gain returns the amplification factor for the gain index idx.
func Gain(idx int) float32 { return gains[idx] }

// NumReferences returns the number of valid reference indices.
func NumReferences() int { return 2 + len(internalRefs) }

// Convert converts a raw probe reading into µV, using the gain index g.
func Convert(raw int16, g int) float32 {
	return float32(raw) * 1.2 / 1024 * 1e6 / gains[g]
}

func checkGain(g int) error {
	if g < 0 || g >= len(gains) {
		return fmt.Errorf("daq: invalid gain index %d", g)
	}
	return nil
}

// Reference describes the reference a probe records against.
type Reference struct {
	Type driver.RefType
	Bank int // internal reference bank
}

// ReferenceOf returns the reference for the reference index idx:
// 0 is the external reference, 1 the tip and the following indices
// select the internal reference banks.
func ReferenceOf(idx int) (Reference, error) {
	switch {
	case idx == 0:
		return Reference{Type: driver.RefExternal}, nil
	case idx == 1:
		return Reference{Type: driver.RefTip}, nil
	case idx >= 2 && idx < NumReferences():
		return Reference{Type: driver.RefInternal, Bank: idx - 2}, nil
	default:
		return Reference{}, fmt.Errorf("daq: invalid reference index %d", idx)
	}
}

// eventCode derives the event code of a sub-sample from its AUX trigger word.
//
// The code is a binary toggle: 1 when the trigger word is zero, 0 otherwise,
// whatever bits of the word are set.
// TODO(npx): decode the sync input bit (0x40) alone once the AUX wiring of
// the basestations is confirmed.
func eventCode(trigger uint16) uint64 {
	if trigger != 0 {
		return 0
	}
	return 1
}

// Stream identifies the AP or LFP data stream of a probe.
type Stream int

const (
	AP Stream = iota
	LFP
)

func (s Stream) String() string {
	switch s {
	case AP:
		return "ap"
	case LFP:
		return "lfp"
	default:
		return fmt.Sprintf("stream(%d)", int(s))
	}
}

// State is the state of the acquisition system.
type State int

const (
	Idle State = iota
	Discovered
	Acquiring
)

func (st State) String() string {
	switch st {
	case Idle:
		return "idle"
	case Discovered:
		return "discovered"
	case Acquiring:
		return "acquiring"
	default:
		return fmt.Sprintf("state(%d)", int(st))
	}
}
