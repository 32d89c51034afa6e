// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command npx-daq starts a TDAQ server driving an acquisition system.
//
// The simulated basestations are described by the NPX_SIM environment
// variable (default "3:0,1").
package main // import "github.com/go-lpc/npx/cmd/npx-daq"

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/go-daq/tdaq"
	"github.com/go-daq/tdaq/flags"
	"github.com/go-lpc/npx/daq"
	"github.com/go-lpc/npx/driver/sim"
)

func main() {
	cmd := flags.New()

	topo := os.Getenv("NPX_SIM")
	if topo == "" {
		topo = "3:0,1"
	}

	rc, err := newRunControl(topo, time.Second)
	if err != nil {
		log.Panicf("error: %+v", err)
	}

	srv := tdaq.New(cmd, os.Stdout)
	srv.CmdHandle("/config", rc.OnConfig)
	srv.CmdHandle("/init", rc.OnInit)
	srv.CmdHandle("/reset", rc.OnReset)
	srv.CmdHandle("/start", rc.OnStart)
	srv.CmdHandle("/stop", rc.OnStop)
	srv.CmdHandle("/quit", rc.OnQuit)

	srv.OutputHandle("/fill", rc.Fill)

	srv.RunHandle(rc.Run)

	err = srv.Run(context.Background())
	if err != nil {
		log.Panicf("error: %+v", err)
	}
}

func newRunControl(topo string, period time.Duration) (*daq.RunControl, error) {
	bss, err := sim.ParseTopology(topo)
	if err != nil {
		return nil, err
	}
	drv := sim.New(bss...)
	drv.Rate = daq.APSampleRate / 12

	sys := daq.New(drv)
	return daq.NewRunControl(sys, period), nil
}
