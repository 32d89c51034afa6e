// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package daq

import (
	"bytes"
	"time"

	"github.com/go-daq/tdaq"
	"golang.org/x/xerrors"
)

// RunControl exposes an acquisition system as a TDAQ process.
type RunControl struct {
	sys    *System
	period time.Duration // period of the /fill output
}

// NewRunControl creates a TDAQ run control for sys, publishing the fill
// level of the basestations every period.
func NewRunControl(sys *System, period time.Duration) *RunControl {
	if period <= 0 {
		period = time.Second
	}
	return &RunControl{sys: sys, period: period}
}

func (rc *RunControl) OnConfig(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /config command...")
	err := rc.sys.Discover()
	if err != nil {
		ctx.Msg.Errorf("could not discover hardware: %+v", err)
		return xerrors.Errorf("could not discover hardware: %w", err)
	}
	ctx.Msg.Infof("discovered %d sub-processor(s)", rc.sys.NumSubProcessors())
	return nil
}

func (rc *RunControl) OnInit(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /init command...")
	for _, bs := range rc.sys.Basestations() {
		err := bs.InitializeProbes()
		if err != nil {
			ctx.Msg.Errorf("could not initialize %v: %+v", bs, err)
			return xerrors.Errorf("could not initialize %v: %w", bs, err)
		}
	}
	return nil
}

func (rc *RunControl) OnReset(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /reset command...")
	return rc.stop(ctx)
}

func (rc *RunControl) OnStart(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /start command...")
	err := rc.sys.Start()
	if err != nil {
		ctx.Msg.Errorf("could not start acquisition: %+v", err)
		return xerrors.Errorf("could not start acquisition: %w", err)
	}
	return nil
}

func (rc *RunControl) OnStop(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /stop command...")
	return rc.stop(ctx)
}

func (rc *RunControl) OnQuit(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /quit command...")
	return rc.stop(ctx)
}

func (rc *RunControl) stop(ctx tdaq.Context) error {
	err := rc.sys.Stop()
	if err != nil {
		ctx.Msg.Errorf("could not stop acquisition: %+v", err)
		return xerrors.Errorf("could not stop acquisition: %w", err)
	}
	return nil
}

// Fill publishes the FIFO fill level of every basestation, once per period.
func (rc *RunControl) Fill(ctx tdaq.Context, dst *tdaq.Frame) error {
	tck := time.NewTimer(rc.period)
	defer tck.Stop()

	select {
	case <-ctx.Ctx.Done():
		dst.Body = nil
		return nil
	case <-tck.C:
	}

	body, err := rc.encodeFill()
	if err != nil {
		return xerrors.Errorf("could not encode fill levels: %w", err)
	}
	dst.Body = body
	return nil
}

func (rc *RunControl) encodeFill() ([]byte, error) {
	var (
		buf = new(bytes.Buffer)
		enc = tdaq.NewEncoder(buf)
		bss = rc.sys.Basestations()
	)
	enc.WriteU32(uint32(len(bss)))
	for _, bs := range bss {
		enc.WriteU32(uint32(bs.Slot()))
		enc.WriteF64(bs.FillPercentage())
	}
	if err := enc.Err(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Run blocks until the run is over.
func (rc *RunControl) Run(ctx tdaq.Context) error {
	<-ctx.Ctx.Done()
	return nil
}
