// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package daq

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-daq/tdaq/log"
	"github.com/go-lpc/npx/conddb"
	"github.com/go-lpc/npx/driver"
	"github.com/go-lpc/npx/sink"
	"golang.org/x/sync/errgroup"
)

var (
	errNotDiscovered = errors.New("daq: no hardware discovered")
	errAcquiring     = errors.New("daq: acquisition is running")
	errLoopRunning   = errors.New("daq: read loop of previous acquisition still running")
)

// System is the acquisition system: it owns the basestations discovered
// through a driver, runs the read loop and coordinates recording
// sessions across basestations.
type System struct {
	drv driver.Driver
	cfg config
	msg log.MsgStream

	mu    sync.Mutex
	state State
	api   string
	bss   []*Basestation
	subs  []*Probe // probes, in sub-processor order

	selected struct {
		slot int
		port int
	}
	modes struct {
		record      bool
		autoRestart bool
		trigger     bool
	}

	recording atomic.Bool
	session   atomic.Int64 // recording session counter
	folder    struct {
		mu   sync.Mutex
		name string
	}

	loop struct {
		cancel context.CancelFunc
		done   chan struct{}
	}
	rec *recorder
}

// New creates a new acquisition system using the provided driver.
func New(drv driver.Driver, opts ...Option) *System {
	cfg := newConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	sys := &System{
		drv: drv,
		cfg: cfg,
		msg: cfg.msg,
	}
	sys.selected.slot = -1
	sys.selected.port = -1
	return sys
}

// State returns the current state of the system.
func (sys *System) State() State {
	sys.mu.Lock()
	defer sys.mu.Unlock()
	return sys.state
}

// Discover scans the chassis for basestations and their probes.
//
// Slots failing to report their identity are logged and excluded.
// Basestations without probes are kept.
func (sys *System) Discover() error {
	sys.mu.Lock()
	defer sys.mu.Unlock()

	if sys.state == Acquiring {
		return errAcquiring
	}
	if sys.loopRunning() {
		return errLoopRunning
	}

	api, err := sys.drv.APIVersion()
	if err != nil {
		sys.msg.Warnf("could not retrieve driver API version: %+v", err)
	}

	mask, err := sys.drv.Scan()
	if err != nil {
		return fmt.Errorf("daq: could not scan for basestations: %w", err)
	}

	sys.release()

	var (
		grp errgroup.Group
		bss = make([]*Basestation, driver.MaxSlots)
	)
	for slot := 0; slot < driver.MaxSlots; slot++ {
		if (mask>>uint(slot))&1 == 0 {
			continue
		}
		slot := slot
		grp.Go(func() error {
			bs, err := sys.discover(slot)
			if err != nil {
				sys.msg.Errorf("could not discover basestation in slot %d: %+v", slot, err)
				return nil
			}
			bss[slot] = bs
			return nil
		})
	}
	_ = grp.Wait()

	sys.api = api
	sys.bss = sys.bss[:0]
	sys.subs = sys.subs[:0]
	for _, bs := range bss {
		if bs == nil {
			continue
		}
		sys.bss = append(sys.bss, bs)
		sys.subs = append(sys.subs, bs.probes...)
		sys.msg.Infof("found %v with %d probe(s)", bs, len(bs.probes))
	}
	sys.state = Discovered

	return nil
}

func (sys *System) discover(slot int) (*Basestation, error) {
	err := sys.drv.OpenBS(slot)
	if err != nil {
		return nil, fmt.Errorf("daq: could not open basestation: %w", err)
	}

	bs := &Basestation{
		slot: slot,
		drv:  sys.drv,
		msg:  sys.msg,
		dir:  sys.cfg.dirs[slot],
	}

	bs.info, err = sys.drv.BSInfo(slot)
	if err != nil {
		return nil, fmt.Errorf("daq: could not retrieve basestation info: %w", err)
	}

	bs.bsc, err = sys.drv.BSCInfo(slot)
	if err != nil {
		return nil, fmt.Errorf("daq: could not retrieve connect board info: %w", err)
	}

	ports, err := sys.drv.ProbePorts(slot)
	if err != nil {
		return nil, fmt.Errorf("daq: could not retrieve probe ports: %w", err)
	}

	for _, port := range ports {
		p, err := sys.newProbe(slot, port)
		if err != nil {
			sys.msg.Errorf("could not discover probe on slot=%d port=%d: %+v", slot, port, err)
			continue
		}
		bs.probes = append(bs.probes, p)
	}

	return bs, nil
}

func (sys *System) newProbe(slot, port int) (*Probe, error) {
	info, err := sys.drv.ProbeInfo(slot, port)
	if err != nil {
		return nil, fmt.Errorf("daq: could not retrieve probe info: %w", err)
	}

	hs, err := sys.drv.HeadstageInfo(slot, port)
	if err != nil {
		return nil, fmt.Errorf("daq: could not retrieve headstage info: %w", err)
	}

	flex, err := sys.drv.FlexInfo(slot, port)
	if err != nil {
		return nil, fmt.Errorf("daq: could not retrieve flex info: %w", err)
	}

	ap, err := sys.cfg.sinks(slot, port, AP)
	if err != nil {
		return nil, fmt.Errorf("daq: could not create AP sink: %w", err)
	}

	lfp, err := sys.cfg.sinks(slot, port, LFP)
	if err != nil {
		closeSink(ap)
		return nil, fmt.Errorf("daq: could not create LFP sink: %w", err)
	}

	p := newProbe(sys.drv, sys.msg, slot, port, ap, lfp)
	p.info = info
	p.hs = hs
	p.flex = flex

	if sys.cfg.settings != nil {
		sys.loadSettings(p)
	}

	return p, nil
}

func (sys *System) loadSettings(p *Probe) {
	ctx := context.Background()
	cfg, err := sys.cfg.settings.ProbeSettings(ctx, p.info.SerialNumber)
	switch {
	case errors.Is(err, conddb.ErrNoSettings):
		sys.msg.Debugf("no stored settings for %v (serial=%d)", p, p.info.SerialNumber)
		return
	case err != nil:
		sys.msg.Warnf("could not load settings for %v: %+v", p, err)
		return
	}

	err = p.apply(cfg)
	if err != nil {
		sys.msg.Warnf("could not apply stored settings to %v: %+v", p, err)
	}
}

// release closes the basestations of a previous discovery.
func (sys *System) release() {
	for _, bs := range sys.bss {
		for _, p := range bs.probes {
			closeSink(p.ap)
			closeSink(p.lfp)
		}
		err := sys.drv.CloseBS(bs.slot)
		if err != nil {
			sys.msg.Warnf("could not close %v: %+v", bs, err)
		}
	}
	sys.bss = nil
	sys.subs = nil
}

func closeSink(s sink.Sink) {
	if c, ok := s.(io.Closer); ok {
		_ = c.Close()
	}
}

// FoundInputSource returns whether at least one probe was discovered.
func (sys *System) FoundInputSource() bool {
	sys.mu.Lock()
	defer sys.mu.Unlock()
	return len(sys.subs) > 0
}

// Basestations returns the discovered basestations, ordered by slot.
func (sys *System) Basestations() []*Basestation {
	sys.mu.Lock()
	defer sys.mu.Unlock()
	return append([]*Basestation(nil), sys.bss...)
}

// Basestation returns the basestation in slot, or nil.
func (sys *System) Basestation(slot int) *Basestation {
	sys.mu.Lock()
	defer sys.mu.Unlock()
	return sys.basestation(slot)
}

func (sys *System) basestation(slot int) *Basestation {
	for _, bs := range sys.bss {
		if bs.slot == slot {
			return bs
		}
	}
	return nil
}

// Start initializes the probes, designates the sync master and starts
// the acquisition on every basestation, then launches the read loop.
func (sys *System) Start() error {
	sys.mu.Lock()
	defer sys.mu.Unlock()

	switch sys.state {
	case Idle:
		return errNotDiscovered
	case Acquiring:
		return nil
	}
	if sys.loopRunning() {
		return errLoopRunning
	}

	for _, bs := range sys.bss {
		err := bs.InitializeProbes()
		if err != nil {
			sys.msg.Errorf("%+v", err)
		}
	}

	for _, bs := range sys.bss {
		if len(bs.probes) == 0 {
			continue
		}
		err := bs.MakeSyncMaster()
		if err != nil {
			sys.msg.Errorf("%+v", err)
		}
		break
	}

	for _, bs := range sys.bss {
		err := bs.StartAcquisition()
		if err != nil {
			sys.msg.Errorf("%+v", err)
		}
	}

	var (
		ctx, cancel = context.WithCancel(context.Background())
		done        = make(chan struct{})
		bss         = append([]*Basestation(nil), sys.bss...)
	)
	sys.rec = newRecorder(sys, bss)
	go sys.rec.run()

	sys.loop.cancel = cancel
	sys.loop.done = done
	go sys.run(ctx, bss, done)

	sys.state = Acquiring
	sys.msg.Infof("acquisition started (basestations=%d, probes=%d)", len(bss), len(sys.subs))

	return nil
}

// Stop stops the read loop and the acquisition on every basestation,
// and ends the current recording session.
// Stop is a no-op if the acquisition is not running.
func (sys *System) Stop() error {
	sys.mu.Lock()
	defer sys.mu.Unlock()

	if sys.state != Acquiring {
		return nil
	}

	sys.loop.cancel()
	for _, bs := range sys.bss {
		err := bs.StopAcquisition()
		if err != nil {
			sys.msg.Errorf("%+v", err)
		}
	}

	var err error
	timeout := sys.cfg.timeout
	tck := time.NewTimer(timeout)
	defer tck.Stop()

	select {
	case <-sys.loop.done:
		sys.loop.done = nil
	case <-tck.C:
		// the loop still owns the probes until done is closed.
		err = fmt.Errorf("daq: could not stop read loop (timeout=%v)", timeout)
		sys.msg.Errorf("%+v", err)
	}

	if e := sys.rec.close(timeout); e != nil && err == nil {
		err = e
	}
	sys.state = Discovered
	sys.msg.Infof("acquisition stopped")

	return err
}

// Close stops the acquisition and releases the hardware.
func (sys *System) Close() error {
	err := sys.Stop()

	sys.mu.Lock()
	defer sys.mu.Unlock()
	if sys.loopRunning() {
		if err == nil {
			err = errLoopRunning
		}
		return err
	}
	sys.release()
	sys.state = Idle

	return err
}

// loopRunning returns whether the read loop of a previous acquisition
// has not exited yet.
func (sys *System) loopRunning() bool {
	if sys.loop.done == nil {
		return false
	}
	select {
	case <-sys.loop.done:
		sys.loop.done = nil
		return false
	default:
		return true
	}
}

func (sys *System) run(ctx context.Context, bss []*Basestation, done chan struct{}) {
	defer close(done)

	var (
		recording bool
		tck       = time.NewTicker(sys.cfg.poll)
	)
	defer tck.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if v := sys.recording.Load(); v != recording {
			recording = v
			sys.rec.request(v)
		}

		if sys.step(bss) > 0 {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-tck.C:
		}
	}
}

// step drains every probe of every basestation once, and returns the
// number of packets read.
func (sys *System) step(bss []*Basestation) int {
	if !sys.cfg.parallel || len(bss) < 2 {
		n := 0
		for _, bs := range bss {
			n += bs.readout()
		}
		return n
	}

	var (
		grp errgroup.Group
		ns  = make([]int, len(bss))
	)
	for i := range bss {
		i := i
		grp.Go(func() error {
			ns[i] = bss[i].readout()
			return nil
		})
	}
	_ = grp.Wait()

	n := 0
	for _, v := range ns {
		n += v
	}
	return n
}

// SetRecording requests the start or the end of a recording session.
// The request is served by the read loop.
func (sys *System) SetRecording(v bool) {
	sys.recording.Store(v)
}

// Recording returns whether a recording session was requested.
func (sys *System) Recording() bool {
	return sys.recording.Load()
}

// RecordingNumber returns the number of the last recording session.
func (sys *System) RecordingNumber() int64 {
	return sys.session.Load()
}

// SetRecordingFolder sets the name of the folder of the following
// recording sessions. An empty name restores the default naming.
func (sys *System) SetRecordingFolder(name string) {
	sys.folder.mu.Lock()
	defer sys.folder.mu.Unlock()
	sys.folder.name = name
}

func (sys *System) recordingFolder() string {
	sys.folder.mu.Lock()
	defer sys.folder.mu.Unlock()
	if sys.folder.name != "" {
		return sys.folder.name
	}
	return sys.cfg.rec.folder()
}

// NumSubProcessors returns the number of data streams: an AP and
// an LFP stream per probe.
func (sys *System) NumSubProcessors() int {
	sys.mu.Lock()
	defer sys.mu.Unlock()
	return 2 * len(sys.subs)
}

// SampleRate returns the sample rate of sub-processor sub.
// Even sub-processors are AP streams, odd ones LFP streams.
func (sys *System) SampleRate(sub int) float64 {
	if sub%2 == 0 {
		return APSampleRate
	}
	return LFPSampleRate
}

// NumDataOutputs returns the number of data channels of sub-processor sub.
func (sys *System) NumDataOutputs(sub int) int {
	return NumChannels
}

// NumTTLOutputs returns the number of TTL channels of sub-processor sub.
func (sys *System) NumTTLOutputs(sub int) int {
	if sub%2 == 0 {
		return 1
	}
	return 0
}

// BitVolts returns the scale of the data channels of sub-processor sub.
func (sys *System) BitVolts(sub int) float64 {
	return BitVolts
}

// Sink returns the sink of sub-processor sub, or nil.
func (sys *System) Sink(sub int) sink.Sink {
	sys.mu.Lock()
	defer sys.mu.Unlock()
	if sub < 0 || sub >= 2*len(sys.subs) {
		return nil
	}
	p := sys.subs[sub/2]
	if sub%2 == 0 {
		return p.ap
	}
	return p.lfp
}

// Probes returns all the probes, in sub-processor order.
func (sys *System) Probes() []*Probe {
	sys.mu.Lock()
	defer sys.mu.Unlock()
	return append([]*Probe(nil), sys.subs...)
}

// FillPercentage returns the FIFO fill fraction of the basestation in slot.
func (sys *System) FillPercentage(slot int) float64 {
	bs := sys.Basestation(slot)
	if bs == nil {
		return 0
	}
	return bs.FillPercentage()
}

// SlotForIndex returns the slot of the i-th probe, or -1.
func (sys *System) SlotForIndex(i int) int {
	sys.mu.Lock()
	defer sys.mu.Unlock()
	if i < 0 || i >= len(sys.subs) {
		return -1
	}
	return sys.subs[i].slot
}

// PortForIndex returns the port of the i-th probe, or -1.
func (sys *System) PortForIndex(i int) int {
	sys.mu.Lock()
	defer sys.mu.Unlock()
	if i < 0 || i >= len(sys.subs) {
		return -1
	}
	return sys.subs[i].port
}

// CheckSlotAndPort returns whether a probe is plugged on (slot, port).
func (sys *System) CheckSlotAndPort(slot, port int) bool {
	sys.mu.Lock()
	defer sys.mu.Unlock()
	bs := sys.basestation(slot)
	return bs != nil && bs.Probe(port) != nil
}

// SetSelectedProbe selects the probe on (slot, port) for display.
// Selections of missing probes are ignored.
func (sys *System) SetSelectedProbe(slot, port int) {
	sys.mu.Lock()
	defer sys.mu.Unlock()
	bs := sys.basestation(slot)
	if bs == nil || bs.Probe(port) == nil {
		sys.msg.Warnf("no probe on slot=%d port=%d", slot, port)
		return
	}
	sys.selected.slot = slot
	sys.selected.port = port
}

// SelectedProbe returns the selected probe, or (-1, -1).
func (sys *System) SelectedProbe() (slot, port int) {
	sys.mu.Lock()
	defer sys.mu.Unlock()
	return sys.selected.slot, sys.selected.port
}

// SetAllGains sets the AP and LFP gain indices of every probe.
func (sys *System) SetAllGains(ap, lfp int) error {
	return sys.forEachProbe(func(bs *Basestation, p *Probe) error {
		return bs.SetGains(p.port, ap, lfp)
	})
}

// SetAllReferences sets the reference index of every probe.
func (sys *System) SetAllReferences(ref int) error {
	return sys.forEachProbe(func(bs *Basestation, p *Probe) error {
		return bs.SetReferences(p.port, ref)
	})
}

// SetFilter enables or disables the AP filter of every probe.
func (sys *System) SetFilter(on bool) error {
	return sys.forEachProbe(func(bs *Basestation, p *Probe) error {
		return bs.SetAPFilterState(p.port, on)
	})
}

func (sys *System) forEachProbe(f func(bs *Basestation, p *Probe) error) error {
	for _, bs := range sys.Basestations() {
		for _, p := range bs.probes {
			err := f(bs, p)
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// SetDirectoryForSlot sets the saving directory of the i-th basestation.
func (sys *System) SetDirectoryForSlot(i int, dir string) {
	sys.mu.Lock()
	defer sys.mu.Unlock()
	if i < 0 || i >= len(sys.bss) {
		sys.msg.Warnf("no basestation with index %d", i)
		return
	}
	sys.bss[i].SetSavingDirectory(dir)
}

// DirectoryForSlot returns the saving directory of the i-th basestation.
// It defaults to the current working directory.
func (sys *System) DirectoryForSlot(i int) string {
	sys.mu.Lock()
	defer sys.mu.Unlock()
	if i < 0 || i >= len(sys.bss) {
		return cwd()
	}
	return sys.bss[i].SavingDirectory()
}

// SetRecordMode, SetAutoRestart and SetTriggerMode store host-side
// acquisition flags.
func (sys *System) SetRecordMode(v bool) {
	sys.mu.Lock()
	defer sys.mu.Unlock()
	sys.modes.record = v
}

func (sys *System) SetAutoRestart(v bool) {
	sys.mu.Lock()
	defer sys.mu.Unlock()
	sys.modes.autoRestart = v
}

func (sys *System) SetTriggerMode(v bool) {
	sys.mu.Lock()
	defer sys.mu.Unlock()
	sys.modes.trigger = v
}

// Modes returns the record-mode, auto-restart and trigger-mode flags.
func (sys *System) Modes() (record, autoRestart, trigger bool) {
	sys.mu.Lock()
	defer sys.mu.Unlock()
	return sys.modes.record, sys.modes.autoRestart, sys.modes.trigger
}

// InfoString describes the driver and the discovered hardware.
func (sys *System) InfoString() string {
	sys.mu.Lock()
	defer sys.mu.Unlock()

	o := new(strings.Builder)
	fmt.Fprintf(o, "API Version: %s\n\n\n", sys.api)
	for i, bs := range sys.bss {
		fmt.Fprintf(o, "Basestation %d\n", i+1)
		fmt.Fprintf(o, "  Firmware version: %s\n", bs.info.BootVersion)
		fmt.Fprintf(o, "  BSC firmware version: %s\n", bs.bsc.BootVersion)
		fmt.Fprintf(o, "  BSC part number: %s\n", bs.bsc.PartNumber)
		fmt.Fprintf(o, "  BSC serial number: %d\n\n", bs.bsc.SerialNumber)
		for _, p := range bs.probes {
			fmt.Fprintf(o, "    Port %d\n\n", p.port)
			fmt.Fprintf(o, "    Probe serial number: %d\n\n", p.info.SerialNumber)
			fmt.Fprintf(o, "    Headstage serial number: %d\n", p.hs.SerialNumber)
			fmt.Fprintf(o, "    Headstage part number: %s\n", p.hs.PartNumber)
			fmt.Fprintf(o, "    Headstage version: %s\n\n", p.hs.Version)
			fmt.Fprintf(o, "    Flex part number: %s\n", p.flex.PartNumber)
			fmt.Fprintf(o, "    Flex version: %s\n\n", p.flex.Version)
		}
	}
	return o.String()
}
