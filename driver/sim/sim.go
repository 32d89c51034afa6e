// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package sim provides a simulated acquisition driver, with basestations
// and probes generating deterministic packets.
package sim // import "github.com/go-lpc/npx/driver/sim"

import (
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/go-lpc/npx/driver"
	"github.com/go-lpc/npx/internal/npx2"
)

const (
	apiVersion = "sim-3.31"
	fifoDepth  = 4096
)

// Probe describes a simulated probe.
type Probe struct {
	Port       int
	Serial     uint64
	PartNumber string

	// Limit is the total number of packets the probe will produce.
	// Zero means no limit.
	Limit int
}

// Basestation describes a simulated basestation.
type Basestation struct {
	Slot   int
	Probes []Probe
}

// Generator fills the n-th packet produced by the probe on (slot, port).
type Generator func(slot, port int, n uint64, pkt *driver.Packet)

// Driver is a simulated acquisition driver.
type Driver struct {
	// Gen generates packets. It defaults to a sawtooth pattern.
	Gen Generator

	// Rate is the number of packets per second produced by each running
	// probe. Zero means packets are produced as fast as they are read.
	Rate float64

	mu    sync.Mutex
	bss   map[int]*basestation
	fail  map[key]driver.Code
	calls []string
}

type key struct {
	op   string
	slot int
	port int
}

type basestation struct {
	slot    int
	open    bool
	armed   bool
	running bool
	start   time.Time

	master  bool
	syncOut bool
	freq    int
	ports   []int
	probes  map[int]*probe

	stream struct {
		fname string
		f     *os.File
		enc   *npx2.Encoder
	}
}

type probe struct {
	info   driver.ProbeInfo
	limit  int
	inited bool

	apGains  [driver.NumChannels]int
	lfpGains [driver.NumChannels]int
	banks    [driver.NumChannels]int
	ref      driver.RefType
	refBank  int
	filter   bool

	seq  uint64 // number of packets produced
	fifo struct {
		set      bool
		avail    int
		headroom int
	}
}

var syncFreqs = []int{1, 10, 100, 1000}

// New creates a simulated driver with the provided basestations.
func New(bss ...Basestation) *Driver {
	drv := &Driver{
		Gen:  Sawtooth,
		bss:  make(map[int]*basestation, len(bss)),
		fail: make(map[key]driver.Code),
	}
	for _, v := range bss {
		bs := &basestation{
			slot:   v.Slot,
			probes: make(map[int]*probe, len(v.Probes)),
		}
		for _, p := range v.Probes {
			bs.ports = append(bs.ports, p.Port)
			bs.probes[p.Port] = &probe{
				info:  driver.ProbeInfo{SerialNumber: p.Serial, PartNumber: p.PartNumber},
				limit: p.Limit,
			}
		}
		sort.Ints(bs.ports)
		drv.bss[v.Slot] = bs
	}
	return drv
}

// Sawtooth generates AP and LFP values following the channel index,
// with timestamps counting sub-samples.
func Sawtooth(slot, port int, n uint64, pkt *driver.Packet) {
	for i := range pkt.AP {
		pkt.Timestamp[i] = uint32(n)*driver.NumAUX + uint32(i)
		pkt.Trigger[i] = 0
		for ch := range pkt.AP[i] {
			pkt.AP[i][ch] = int16((int(n)+ch)%1024 - 512)
		}
	}
	for ch := range pkt.LFP {
		pkt.LFP[ch] = int16(ch % 256)
	}
}

// Fail makes every following call to op on (slot, port) fail with code.
// Basestation-level operations use port -1.
// A success code clears the injected failure.
func (drv *Driver) Fail(op string, slot, port int, code driver.Code) {
	drv.mu.Lock()
	defer drv.mu.Unlock()
	k := key{op, slot, port}
	if code == driver.CodeSuccess {
		delete(drv.fail, k)
		return
	}
	drv.fail[k] = code
}

// SetFifo forces the FIFO state reported for the probe on (slot, port).
func (drv *Driver) SetFifo(slot, port, avail, headroom int) {
	drv.mu.Lock()
	defer drv.mu.Unlock()
	p := drv.probe(slot, port)
	if p == nil {
		return
	}
	p.fifo.set = true
	p.fifo.avail = avail
	p.fifo.headroom = headroom
}

// Calls returns the list of recorded calls to operations changing
// the state of the hardware.
func (drv *Driver) Calls() []string {
	drv.mu.Lock()
	defer drv.mu.Unlock()
	return append([]string(nil), drv.calls...)
}

// Settings returns the gains, reference and filter state
// held by the probe on (slot, port).
func (drv *Driver) Settings(slot, port int) (apGain, lfpGain int, ref driver.RefType, filter bool) {
	drv.mu.Lock()
	defer drv.mu.Unlock()
	p := drv.probe(slot, port)
	if p == nil {
		return -1, -1, 0, false
	}
	return p.apGains[0], p.lfpGains[0], p.ref, p.filter
}

// Produced returns the number of packets produced by the probe on (slot, port).
func (drv *Driver) Produced(slot, port int) uint64 {
	drv.mu.Lock()
	defer drv.mu.Unlock()
	p := drv.probe(slot, port)
	if p == nil {
		return 0
	}
	return p.seq
}

// SyncMaster returns whether the basestation in slot is the sync master.
func (drv *Driver) SyncMaster(slot int) bool {
	drv.mu.Lock()
	defer drv.mu.Unlock()
	bs, ok := drv.bss[slot]
	return ok && bs.master
}

func (drv *Driver) record(format string, args ...interface{}) {
	drv.calls = append(drv.calls, fmt.Sprintf(format, args...))
}

func (drv *Driver) check(op string, slot, port int) error {
	code, ok := drv.fail[key{op, slot, port}]
	if !ok {
		return nil
	}
	return driver.NewError(op, slot, port, code)
}

func (drv *Driver) bs(op string, slot int) (*basestation, error) {
	if err := drv.check(op, slot, -1); err != nil {
		return nil, err
	}
	bs, ok := drv.bss[slot]
	if !ok {
		return nil, driver.NewError(op, slot, -1, driver.CodeNoSlot)
	}
	return bs, nil
}

func (drv *Driver) probe(slot, port int) *probe {
	bs, ok := drv.bss[slot]
	if !ok {
		return nil
	}
	return bs.probes[port]
}

func (drv *Driver) pr(op string, slot, port int) (*basestation, *probe, error) {
	if err := drv.check(op, slot, port); err != nil {
		return nil, nil, err
	}
	bs, ok := drv.bss[slot]
	if !ok {
		return nil, nil, driver.NewError(op, slot, port, driver.CodeNoSlot)
	}
	p, ok := bs.probes[port]
	if !ok {
		return nil, nil, driver.NewError(op, slot, port, driver.CodeNoLink)
	}
	return bs, p, nil
}

func (drv *Driver) APIVersion() (string, error) {
	return apiVersion, nil
}

func (drv *Driver) Scan() (uint32, error) {
	drv.mu.Lock()
	defer drv.mu.Unlock()
	if err := drv.check("Scan", -1, -1); err != nil {
		return 0, err
	}
	var mask uint32
	for slot := range drv.bss {
		mask |= 1 << uint(slot)
	}
	return mask, nil
}

func (drv *Driver) OpenBS(slot int) error {
	drv.mu.Lock()
	defer drv.mu.Unlock()
	bs, err := drv.bs("OpenBS", slot)
	if err != nil {
		return err
	}
	bs.open = true
	drv.record("OpenBS(%d)", slot)
	return nil
}

func (drv *Driver) CloseBS(slot int) error {
	drv.mu.Lock()
	defer drv.mu.Unlock()
	bs, err := drv.bs("CloseBS", slot)
	if err != nil {
		return err
	}
	bs.open = false
	bs.running = false
	bs.closeStream()
	drv.record("CloseBS(%d)", slot)
	return nil
}

func (drv *Driver) BSInfo(slot int) (driver.BSInfo, error) {
	drv.mu.Lock()
	defer drv.mu.Unlock()
	if _, err := drv.bs("BSInfo", slot); err != nil {
		return driver.BSInfo{}, err
	}
	return driver.BSInfo{
		Slot:            slot,
		FirmwareVersion: "2.0.169",
		BootVersion:     "2.0.169",
	}, nil
}

func (drv *Driver) BSCInfo(slot int) (driver.BSCInfo, error) {
	drv.mu.Lock()
	defer drv.mu.Unlock()
	if _, err := drv.bs("BSCInfo", slot); err != nil {
		return driver.BSCInfo{}, err
	}
	return driver.BSCInfo{
		BootVersion:  "1.2.166",
		PartNumber:   "NP2_QBSC_00",
		SerialNumber: 0x5c0000 + uint64(slot),
	}, nil
}

func (drv *Driver) ProbePorts(slot int) ([]int, error) {
	drv.mu.Lock()
	defer drv.mu.Unlock()
	bs, err := drv.bs("ProbePorts", slot)
	if err != nil {
		return nil, err
	}
	return append([]int(nil), bs.ports...), nil
}

func (drv *Driver) ProbeInfo(slot, port int) (driver.ProbeInfo, error) {
	drv.mu.Lock()
	defer drv.mu.Unlock()
	_, p, err := drv.pr("ProbeInfo", slot, port)
	if err != nil {
		return driver.ProbeInfo{}, err
	}
	return p.info, nil
}

func (drv *Driver) HeadstageInfo(slot, port int) (driver.HeadstageInfo, error) {
	drv.mu.Lock()
	defer drv.mu.Unlock()
	_, p, err := drv.pr("HeadstageInfo", slot, port)
	if err != nil {
		return driver.HeadstageInfo{}, err
	}
	return driver.HeadstageInfo{
		SerialNumber: p.info.SerialNumber + 1000,
		PartNumber:   "NPM_HS_01",
		Version:      "1.0",
	}, nil
}

func (drv *Driver) FlexInfo(slot, port int) (driver.FlexInfo, error) {
	drv.mu.Lock()
	defer drv.mu.Unlock()
	if _, _, err := drv.pr("FlexInfo", slot, port); err != nil {
		return driver.FlexInfo{}, err
	}
	return driver.FlexInfo{PartNumber: "NPM_FLEX_01", Version: "1.0"}, nil
}

func (drv *Driver) InitProbe(slot, port int) error {
	drv.mu.Lock()
	defer drv.mu.Unlock()
	_, p, err := drv.pr("InitProbe", slot, port)
	if err != nil {
		return err
	}
	p.inited = true
	drv.record("InitProbe(%d, %d)", slot, port)
	return nil
}

func (drv *Driver) SelectElectrode(slot, port, ch, bank int) error {
	drv.mu.Lock()
	defer drv.mu.Unlock()
	_, p, err := drv.pr("SelectElectrode", slot, port)
	if err != nil {
		return err
	}
	if ch < 0 || ch >= driver.NumChannels {
		return driver.NewError("SelectElectrode", slot, port, driver.CodeWrongChannel)
	}
	p.banks[ch] = bank
	return nil
}

func (drv *Driver) SetReference(slot, port, ch int, ref driver.RefType, bank int) error {
	drv.mu.Lock()
	defer drv.mu.Unlock()
	_, p, err := drv.pr("SetReference", slot, port)
	if err != nil {
		return err
	}
	if ch < 0 || ch >= driver.NumChannels {
		return driver.NewError("SetReference", slot, port, driver.CodeWrongChannel)
	}
	p.ref = ref
	p.refBank = bank
	return nil
}

func (drv *Driver) SetGain(slot, port, ch, apGain, lfpGain int) error {
	drv.mu.Lock()
	defer drv.mu.Unlock()
	_, p, err := drv.pr("SetGain", slot, port)
	if err != nil {
		return err
	}
	if ch < 0 || ch >= driver.NumChannels {
		return driver.NewError("SetGain", slot, port, driver.CodeWrongChannel)
	}
	p.apGains[ch] = apGain
	p.lfpGains[ch] = lfpGain
	return nil
}

func (drv *Driver) SetAPFilter(slot, port int, on bool) error {
	drv.mu.Lock()
	defer drv.mu.Unlock()
	_, p, err := drv.pr("SetAPFilter", slot, port)
	if err != nil {
		return err
	}
	p.filter = on
	return nil
}

func (drv *Driver) WriteProbeConfig(slot, port int) error {
	drv.mu.Lock()
	defer drv.mu.Unlock()
	if _, _, err := drv.pr("WriteProbeConfig", slot, port); err != nil {
		return err
	}
	drv.record("WriteProbeConfig(%d, %d)", slot, port)
	return nil
}

func (drv *Driver) SetSyncMaster(slot int) error {
	drv.mu.Lock()
	defer drv.mu.Unlock()
	bs, err := drv.bs("SetSyncMaster", slot)
	if err != nil {
		return err
	}
	for _, v := range drv.bss {
		v.master = false
	}
	bs.master = true
	drv.record("SetSyncMaster(%d)", slot)
	return nil
}

func (drv *Driver) SetSyncOutput(slot int, on bool) error {
	drv.mu.Lock()
	defer drv.mu.Unlock()
	bs, err := drv.bs("SetSyncOutput", slot)
	if err != nil {
		return err
	}
	bs.syncOut = on
	drv.record("SetSyncOutput(%d, %v)", slot, on)
	return nil
}

func (drv *Driver) SyncFrequencies(slot int) ([]int, error) {
	drv.mu.Lock()
	defer drv.mu.Unlock()
	if _, err := drv.bs("SyncFrequencies", slot); err != nil {
		return nil, err
	}
	return append([]int(nil), syncFreqs...), nil
}

func (drv *Driver) SetSyncFrequency(slot, idx int) error {
	drv.mu.Lock()
	defer drv.mu.Unlock()
	bs, err := drv.bs("SetSyncFrequency", slot)
	if err != nil {
		return err
	}
	if idx < 0 || idx >= len(syncFreqs) {
		return driver.NewError("SetSyncFrequency", slot, -1, driver.CodeParameterInvalid)
	}
	bs.freq = idx
	drv.record("SetSyncFrequency(%d, %d)", slot, idx)
	return nil
}

func (drv *Driver) Temperature(slot int) (float64, error) {
	drv.mu.Lock()
	defer drv.mu.Unlock()
	if _, err := drv.bs("Temperature", slot); err != nil {
		return 0, err
	}
	return 35 + 0.5*float64(slot), nil
}

func (drv *Driver) Arm(slot int) error {
	drv.mu.Lock()
	defer drv.mu.Unlock()
	bs, err := drv.bs("Arm", slot)
	if err != nil {
		return err
	}
	bs.armed = true
	drv.record("Arm(%d)", slot)
	return nil
}

func (drv *Driver) Trigger(slot int) error {
	drv.mu.Lock()
	defer drv.mu.Unlock()
	bs, err := drv.bs("Trigger", slot)
	if err != nil {
		return err
	}
	if !bs.armed {
		return driver.NewError("Trigger", slot, -1, driver.CodeFailed)
	}
	bs.running = true
	bs.start = time.Now()
	for _, p := range bs.probes {
		p.seq = 0
	}
	drv.record("Trigger(%d)", slot)
	return nil
}

func (drv *Driver) Stop(slot int) error {
	drv.mu.Lock()
	defer drv.mu.Unlock()
	bs, err := drv.bs("Stop", slot)
	if err != nil {
		return err
	}
	bs.armed = false
	bs.running = false
	drv.record("Stop(%d)", slot)
	return nil
}

func (drv *Driver) ReadPackets(slot, port int, dst []driver.Packet) (int, error) {
	drv.mu.Lock()
	defer drv.mu.Unlock()
	bs, p, err := drv.pr("ReadPackets", slot, port)
	if err != nil {
		return 0, err
	}
	if !bs.running {
		return 0, nil
	}

	n := len(dst)
	if avail := drv.available(bs, p); avail < n {
		n = avail
	}
	for i := 0; i < n; i++ {
		pkt := &dst[i]
		drv.Gen(slot, port, p.seq, pkt)
		p.seq++
		if bs.stream.enc != nil {
			err := bs.stream.enc.Encode(&npx2.Record{
				Slot:   uint8(slot),
				Port:   int8(port),
				Packet: *pkt,
			})
			if err != nil {
				return i + 1, driver.NewError("ReadPackets", slot, port, driver.CodeFileOpenError)
			}
		}
	}
	return n, nil
}

func (drv *Driver) available(bs *basestation, p *probe) int {
	avail := int(^uint(0) >> 1)
	if drv.Rate > 0 {
		avail = int(time.Since(bs.start).Seconds()*drv.Rate) - int(p.seq)
	}
	if p.limit > 0 {
		if left := p.limit - int(p.seq); left < avail {
			avail = left
		}
	}
	if avail < 0 {
		avail = 0
	}
	return avail
}

func (drv *Driver) FifoState(slot, port int) (avail, headroom int, err error) {
	drv.mu.Lock()
	defer drv.mu.Unlock()
	bs, p, err := drv.pr("FifoState", slot, port)
	if err != nil {
		return 0, 0, err
	}
	if p.fifo.set {
		return p.fifo.avail, p.fifo.headroom, nil
	}
	avail = 0
	if drv.Rate > 0 && bs.running {
		avail = drv.available(bs, p)
	}
	if avail > fifoDepth {
		avail = fifoDepth
	}
	return avail, fifoDepth - avail, nil
}

func (drv *Driver) SetFileStream(slot int, fname string) error {
	drv.mu.Lock()
	defer drv.mu.Unlock()
	bs, err := drv.bs("SetFileStream", slot)
	if err != nil {
		return err
	}
	bs.closeStream()
	bs.stream.fname = fname
	drv.record("SetFileStream(%d, %s)", slot, fname)
	return nil
}

func (drv *Driver) EnableFileStream(slot int, on bool) error {
	drv.mu.Lock()
	defer drv.mu.Unlock()
	bs, err := drv.bs("EnableFileStream", slot)
	if err != nil {
		return err
	}
	drv.record("EnableFileStream(%d, %v)", slot, on)
	if !on {
		bs.closeStream()
		return nil
	}
	if bs.stream.f != nil {
		return nil
	}
	if bs.stream.fname == "" {
		return driver.NewError("EnableFileStream", slot, -1, driver.CodeFileOpenError)
	}
	f, err := os.Create(bs.stream.fname)
	if err != nil {
		return driver.NewError("EnableFileStream", slot, -1, driver.CodeFileOpenError)
	}
	bs.stream.f = f
	bs.stream.enc = npx2.NewEncoder(f)
	return nil
}

func (bs *basestation) closeStream() {
	if bs.stream.f == nil {
		return
	}
	_ = bs.stream.f.Close()
	bs.stream.f = nil
	bs.stream.enc = nil
}

var _ driver.Driver = (*Driver)(nil)
