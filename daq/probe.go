// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package daq

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/go-daq/tdaq/log"
	"github.com/go-lpc/npx/conddb"
	"github.com/go-lpc/npx/driver"
	"github.com/go-lpc/npx/sink"
)

// Settings are the acquisition settings of a probe.
// Gains are indices into the gain table.
type Settings struct {
	APGains   [NumChannels]int
	LFPGains  [NumChannels]int
	Banks     [NumChannels]int
	Reference int
	APFilter  bool
}

// DefaultSettings returns the settings of a freshly discovered probe.
func DefaultSettings() Settings {
	var cfg Settings
	for ch := range cfg.APGains {
		cfg.APGains[ch] = DefaultAPGain
		cfg.LFPGains[ch] = DefaultLFPGain
	}
	cfg.APFilter = true
	return cfg
}

// Probe is a probe plugged on a basestation port.
//
// The read loop converts the packets of a probe and dispatches them
// to its AP and LFP sinks. Settings may be modified concurrently with
// the read loop: the loop reads immutable snapshots of the settings.
type Probe struct {
	slot int
	port int
	info driver.ProbeInfo
	hs   driver.HeadstageInfo
	flex driver.FlexInfo

	drv driver.Driver
	msg log.MsgStream

	mu     sync.Mutex // serializes settings updates
	inited bool
	cfg    atomic.Pointer[Settings]

	ap  sink.Sink
	lfp sink.Sink

	apTS  atomic.Int64
	lfpTS atomic.Int64
	fill  atomic.Uint64 // float64 bits
	evt   atomic.Uint64 // last event code
	npkts atomic.Int64
	ndrop atomic.Int64

	// read loop buffers.
	pkts    []driver.Packet
	apBuf   []float32
	apTSs   []int64
	apEvts  []uint64
	lfpBuf  []float32
	lfpTSs  []int64
	lfpEvts []uint64
}

func newProbe(drv driver.Driver, msg log.MsgStream, slot, port int, ap, lfp sink.Sink) *Probe {
	p := &Probe{
		slot: slot,
		port: port,
		drv:  drv,
		msg:  msg,
		ap:   ap,
		lfp:  lfp,

		pkts:    make([]driver.Packet, SampleCount),
		apBuf:   make([]float32, driver.NumAUX*NumChannels),
		apTSs:   make([]int64, driver.NumAUX),
		apEvts:  make([]uint64, driver.NumAUX),
		lfpBuf:  make([]float32, NumChannels),
		lfpTSs:  make([]int64, 1),
		lfpEvts: make([]uint64, 1),
	}
	cfg := DefaultSettings()
	p.cfg.Store(&cfg)
	return p
}

// Slot returns the slot of the basestation hosting the probe.
func (p *Probe) Slot() int { return p.slot }

// Port returns the port the probe is plugged on.
func (p *Probe) Port() int { return p.port }

func (p *Probe) Info() driver.ProbeInfo          { return p.info }
func (p *Probe) Headstage() driver.HeadstageInfo { return p.hs }
func (p *Probe) Flex() driver.FlexInfo           { return p.flex }

// Sink returns the sink receiving the stream data of the probe.
func (p *Probe) Sink(stream Stream) sink.Sink {
	if stream == LFP {
		return p.lfp
	}
	return p.ap
}

// Settings returns the current settings of the probe.
func (p *Probe) Settings() Settings { return *p.cfg.Load() }

// FillPercentage returns the last measured fill fraction of the probe FIFO.
func (p *Probe) FillPercentage() float64 {
	return math.Float64frombits(p.fill.Load())
}

// Timestamps returns the last AP and LFP sample timestamps.
func (p *Probe) Timestamps() (ap, lfp int64) {
	return p.apTS.Load(), p.lfpTS.Load()
}

// EventCode returns the event code of the last dispatched sample.
func (p *Probe) EventCode() uint64 { return p.evt.Load() }

// Stats returns the number of packets read and of samples dropped by the sinks.
func (p *Probe) Stats() (packets, dropped int64) {
	return p.npkts.Load(), p.ndrop.Load()
}

func (p *Probe) String() string {
	return fmt.Sprintf("probe(slot=%d, port=%d)", p.slot, p.port)
}

// SetGains sets the AP and LFP gain indices of all channels.
func (p *Probe) SetGains(ap, lfp int) error {
	if err := checkGain(ap); err != nil {
		return err
	}
	if err := checkGain(lfp); err != nil {
		return err
	}
	return p.update(func(cfg *Settings) {
		for ch := range cfg.APGains {
			cfg.APGains[ch] = ap
			cfg.LFPGains[ch] = lfp
		}
	})
}

// SetChannelGains sets the AP and LFP gain indices of channel ch.
func (p *Probe) SetChannelGains(ch, ap, lfp int) error {
	if ch < 0 || ch >= NumChannels {
		return fmt.Errorf("daq: invalid channel %d", ch)
	}
	if err := checkGain(ap); err != nil {
		return err
	}
	if err := checkGain(lfp); err != nil {
		return err
	}
	return p.update(func(cfg *Settings) {
		cfg.APGains[ch] = ap
		cfg.LFPGains[ch] = lfp
	})
}

// SetChannels selects the electrode bank of each channel.
func (p *Probe) SetChannels(banks []int) error {
	if len(banks) != NumChannels {
		return fmt.Errorf("daq: invalid number of channel banks (got=%d, want=%d)", len(banks), NumChannels)
	}
	for ch, bank := range banks {
		if bank < 0 || bank >= NumBanks {
			return fmt.Errorf("daq: invalid bank %d for channel %d", bank, ch)
		}
	}
	return p.update(func(cfg *Settings) {
		copy(cfg.Banks[:], banks)
	})
}

// SetReference sets the reference index of the probe.
func (p *Probe) SetReference(ref int) error {
	if _, err := ReferenceOf(ref); err != nil {
		return err
	}
	return p.update(func(cfg *Settings) {
		cfg.Reference = ref
	})
}

// SetAPFilter enables or disables the AP high-pass filter.
func (p *Probe) SetAPFilter(on bool) error {
	return p.update(func(cfg *Settings) {
		cfg.APFilter = on
	})
}

func (p *Probe) apply(db conddb.ProbeSettings) error {
	if err := checkGain(db.APGain); err != nil {
		return err
	}
	if err := checkGain(db.LFPGain); err != nil {
		return err
	}
	if _, err := ReferenceOf(db.Reference); err != nil {
		return err
	}
	return p.update(func(cfg *Settings) {
		for ch := range cfg.APGains {
			cfg.APGains[ch] = db.APGain
			cfg.LFPGains[ch] = db.LFPGain
		}
		cfg.Reference = db.Reference
		cfg.APFilter = db.APFilter
	})
}

// update applies f to a copy of the current settings, writes them to
// the hardware when the probe is initialized, and publishes them.
func (p *Probe) update(f func(cfg *Settings)) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	cfg := *p.cfg.Load()
	f(&cfg)
	if p.inited {
		err := p.write(&cfg)
		if err != nil {
			return err
		}
	}
	p.cfg.Store(&cfg)
	return nil
}

func (p *Probe) write(cfg *Settings) error {
	ref, err := ReferenceOf(cfg.Reference)
	if err != nil {
		return err
	}
	for ch := 0; ch < NumChannels; ch++ {
		err = p.drv.SelectElectrode(p.slot, p.port, ch, cfg.Banks[ch])
		if err != nil {
			return fmt.Errorf("daq: could not select electrode of %v: %w", p, err)
		}
		err = p.drv.SetReference(p.slot, p.port, ch, ref.Type, ref.Bank)
		if err != nil {
			return fmt.Errorf("daq: could not set reference of %v: %w", p, err)
		}
		err = p.drv.SetGain(p.slot, p.port, ch, cfg.APGains[ch], cfg.LFPGains[ch])
		if err != nil {
			return fmt.Errorf("daq: could not set gains of %v: %w", p, err)
		}
	}
	err = p.drv.SetAPFilter(p.slot, p.port, cfg.APFilter)
	if err != nil {
		return fmt.Errorf("daq: could not set AP filter of %v: %w", p, err)
	}
	err = p.drv.WriteProbeConfig(p.slot, p.port)
	if err != nil {
		return fmt.Errorf("daq: could not write configuration of %v: %w", p, err)
	}
	return nil
}

func (p *Probe) initialize() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.inited {
		return nil
	}

	err := p.drv.InitProbe(p.slot, p.port)
	if err != nil {
		return fmt.Errorf("daq: could not initialize %v: %w", p, err)
	}

	err = p.write(p.cfg.Load())
	if err != nil {
		return err
	}
	p.inited = true
	return nil
}

func (p *Probe) reset() {
	p.apTS.Store(0)
	p.lfpTS.Store(0)
	p.fill.Store(0)
	p.evt.Store(0)
}

// readout reads a batch of packets from the probe FIFO, converts them
// and dispatches them to the probe sinks.
// readout returns the number of packets read.
func (p *Probe) readout() (int, error) {
	n, err := p.drv.ReadPackets(p.slot, p.port, p.pkts)
	if err != nil {
		return n, fmt.Errorf("daq: could not read packets from %v: %w", p, err)
	}
	if n == 0 {
		return 0, nil
	}

	var (
		cfg = p.cfg.Load()
		evt uint64
	)
	for i := range p.pkts[:n] {
		pkt := &p.pkts[i]
		for j := 0; j < driver.NumAUX; j++ {
			evt = eventCode(pkt.Trigger[j])

			row := p.apBuf[j*NumChannels : (j+1)*NumChannels]
			for ch, raw := range pkt.AP[j] {
				row[ch] = Convert(raw, cfg.APGains[ch])
			}
			if j == 0 {
				for ch, raw := range pkt.LFP {
					p.lfpBuf[ch] = Convert(raw, cfg.LFPGains[ch])
				}
			}

			ts := p.apTS.Add(1)
			p.apTSs[j] = ts
			p.apEvts[j] = evt
			if ts%fifoCheckPeriod == 0 {
				p.updateFill()
			}
		}

		p.dispatch(p.ap, p.apBuf, p.apTSs, p.apEvts, driver.NumAUX)

		// LFP data come from sub-sample 0, the event code from the last one.
		p.lfpEvts[0] = evt
		p.lfpTSs[0] = p.lfpTS.Add(1)
		p.dispatch(p.lfp, p.lfpBuf, p.lfpTSs, p.lfpEvts, 1)
	}
	p.evt.Store(evt)
	p.npkts.Add(int64(n))

	return n, nil
}

func (p *Probe) dispatch(dst sink.Sink, data []float32, ts []int64, evts []uint64, n int) {
	m, err := dst.Append(data, ts, evts, n)
	if err != nil {
		p.msg.Errorf("could not append samples from %v: %+v", p, err)
	}
	if m < n {
		p.ndrop.Add(int64(n - m))
	}
}

func (p *Probe) updateFill() {
	avail, headroom, err := p.drv.FifoState(p.slot, p.port)
	if err != nil {
		p.msg.Warnf("could not retrieve FIFO state of %v: %+v", p, err)
		return
	}
	if avail+headroom <= 0 {
		return
	}
	fill := float64(avail) / float64(avail+headroom)
	p.fill.Store(math.Float64bits(fill))
}
