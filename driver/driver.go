// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package driver describes the boundary with the vendor driver of the
// acquisition hardware: basestations hosted in chassis slots, each
// streaming packets from the probes plugged on its ports.
package driver // import "github.com/go-lpc/npx/driver"

const (
	NumChannels = 384 // number of recording channels of a probe
	NumAUX      = 12  // number of AP sub-samples held by a packet
	MaxSlots    = 32  // number of chassis slots scanned for basestations
)

// RefType is the kind of reference a probe channel is recorded against.
type RefType uint8

const (
	RefExternal RefType = iota
	RefTip
	RefInternal
)

func (ref RefType) String() string {
	switch ref {
	case RefExternal:
		return "ext"
	case RefTip:
		return "tip"
	case RefInternal:
		return "int"
	default:
		return "ref(???)"
	}
}

// BSInfo describes a basestation.
type BSInfo struct {
	Slot            int
	FirmwareVersion string
	BootVersion     string
}

// BSCInfo describes the connect board of a basestation.
type BSCInfo struct {
	BootVersion  string
	PartNumber   string
	SerialNumber uint64
}

// ProbeInfo describes a probe.
type ProbeInfo struct {
	SerialNumber uint64
	PartNumber   string
}

// HeadstageInfo describes the headstage a probe is connected through.
type HeadstageInfo struct {
	SerialNumber uint64
	PartNumber   string
	Version      string
}

// FlexInfo describes the flex cable of a probe.
type FlexInfo struct {
	PartNumber string
	Version    string
}

// Packet is a block of electrode data read from a probe FIFO.
// A packet holds NumAUX AP sub-samples and a single LFP sample.
type Packet struct {
	Timestamp [NumAUX]uint32
	Trigger   [NumAUX]uint16
	AP        [NumAUX][NumChannels]int16
	LFP       [NumChannels]int16
}

// Driver is the set of vendor driver operations used by the acquisition.
//
// All methods return nil or a *Error carrying the translated status.
// Implementations must be safe for concurrent use: probes of distinct
// basestations are read from distinct goroutines.
type Driver interface {
	APIVersion() (string, error)

	// Scan returns the bitmask of slots hosting a basestation.
	Scan() (uint32, error)

	OpenBS(slot int) error
	CloseBS(slot int) error
	BSInfo(slot int) (BSInfo, error)
	BSCInfo(slot int) (BSCInfo, error)

	// ProbePorts returns the ports of slot with a connected probe.
	ProbePorts(slot int) ([]int, error)
	ProbeInfo(slot, port int) (ProbeInfo, error)
	HeadstageInfo(slot, port int) (HeadstageInfo, error)
	FlexInfo(slot, port int) (FlexInfo, error)

	InitProbe(slot, port int) error
	SelectElectrode(slot, port, ch, bank int) error
	SetReference(slot, port, ch int, ref RefType, bank int) error
	SetGain(slot, port, ch, apGain, lfpGain int) error
	SetAPFilter(slot, port int, on bool) error
	WriteProbeConfig(slot, port int) error

	SetSyncMaster(slot int) error
	SetSyncOutput(slot int, on bool) error
	SyncFrequencies(slot int) ([]int, error)
	SetSyncFrequency(slot, idx int) error
	Temperature(slot int) (float64, error)

	Arm(slot int) error
	Trigger(slot int) error
	Stop(slot int) error

	// ReadPackets reads at most len(dst) packets from the FIFO of the
	// probe on (slot, port). A zero count with a nil error means no
	// new data is available.
	ReadPackets(slot, port int, dst []Packet) (int, error)

	// FifoState returns the number of packets available in the probe
	// FIFO and the remaining headroom.
	FifoState(slot, port int) (avail, headroom int, err error)

	SetFileStream(slot int, fname string) error
	EnableFileStream(slot int, on bool) error
}
