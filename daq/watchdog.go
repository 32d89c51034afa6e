// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package daq

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go-hep.org/x/hep/hbook"
)

// Alerter sends alerts to operators.
type Alerter interface {
	Alert(subject, body string) error
}

const maxAlerts = 5 // maximum number of alerts per basestation

// Watchdog monitors the FIFO fill level of the basestations of
// an acquisition system.
type Watchdog struct {
	sys    *System
	period time.Duration
	thresh float64
	alert  Alerter

	mu     sync.Mutex
	hists  map[int]*hbook.H1D
	peaks  map[int]float64
	alerts map[int]int
}

// NewWatchdog creates a watchdog sampling the fill level of the
// basestations of sys every period, and raising an alert when a fill
// level exceeds thresh.
func NewWatchdog(sys *System, period time.Duration, thresh float64, alert Alerter) *Watchdog {
	return &Watchdog{
		sys:    sys,
		period: period,
		thresh: thresh,
		alert:  alert,
		hists:  make(map[int]*hbook.H1D),
		peaks:  make(map[int]float64),
		alerts: make(map[int]int),
	}
}

// Run samples the fill levels until ctx is done.
func (wd *Watchdog) Run(ctx context.Context) error {
	tck := time.NewTicker(wd.period)
	defer tck.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tck.C:
			wd.check()
		}
	}
}

func (wd *Watchdog) check() {
	wd.mu.Lock()
	defer wd.mu.Unlock()

	for _, bs := range wd.sys.Basestations() {
		var (
			slot = bs.Slot()
			fill = bs.FillPercentage()
		)
		h, ok := wd.hists[slot]
		if !ok {
			h = hbook.NewH1D(20, 0, 1)
			wd.hists[slot] = h
		}
		h.Fill(fill, 1)
		if fill > wd.peaks[slot] {
			wd.peaks[slot] = fill
		}

		if fill < wd.thresh {
			continue
		}

		wd.sys.msg.Warnf("%v: FIFO fill level %.1f%% above threshold %.1f%%",
			bs, 100*fill, 100*wd.thresh,
		)
		wd.alerts[slot]++
		if wd.alert == nil || wd.alerts[slot] > maxAlerts {
			continue
		}
		err := wd.alert.Alert(
			fmt.Sprintf("[npx] FIFO alert: slot %d", slot),
			fmt.Sprintf("slot: %d\nfill: %.1f%%\nthreshold: %.1f%%\nperiod: %v",
				slot, 100*fill, 100*wd.thresh, wd.period,
			),
		)
		if err != nil {
			wd.sys.msg.Warnf("could not send alert for %v: %+v", bs, err)
		}
	}
}

// Summary reports the number of samples, the mean and the peak fill
// level of each basestation.
func (wd *Watchdog) Summary() string {
	wd.mu.Lock()
	defer wd.mu.Unlock()

	slots := make([]int, 0, len(wd.hists))
	for slot := range wd.hists {
		slots = append(slots, slot)
	}
	sort.Ints(slots)

	o := new(strings.Builder)
	for _, slot := range slots {
		h := wd.hists[slot]
		fmt.Fprintf(o, "slot=%d entries=%d mean=%.3f max=%.3f alerts=%d\n",
			slot, h.Entries(), h.XMean(), wd.peaks[slot], wd.alerts[slot],
		)
	}
	return o.String()
}
