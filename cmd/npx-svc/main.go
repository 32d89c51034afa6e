// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command npx-svc serves the control of an acquisition system over TCP.
package main // import "github.com/go-lpc/npx/cmd/npx-svc"

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	tlog "github.com/go-daq/tdaq/log"
	"github.com/go-lpc/npx"
	"github.com/go-lpc/npx/conddb"
	"github.com/go-lpc/npx/daq"
	"github.com/go-lpc/npx/driver/sim"
	"github.com/go-lpc/npx/internal/alert"
	"github.com/sbinet/pmon"
)

type config struct {
	addr  string
	topo  string
	rate  float64
	db    string
	shm   string
	depth int

	wdog   time.Duration
	thresh float64

	pmon   bool
	freq   time.Duration
	logdir string
}

func main() {
	var cfg config
	flag.StringVar(&cfg.addr, "addr", ":9999", "npx-ctl [addr]:port")
	flag.StringVar(&cfg.topo, "sim", "3:0,1", "simulated basestations topology")
	flag.Float64Var(&cfg.rate, "rate", daq.APSampleRate/12, "simulated packet rate per probe (Hz)")
	flag.StringVar(&cfg.db, "db", "", "name of the condition database")
	flag.StringVar(&cfg.shm, "shm", "", "directory of the shared memory sinks")
	flag.IntVar(&cfg.depth, "depth", 10000, "depth of the sinks (samples)")
	flag.DurationVar(&cfg.wdog, "watchdog", 30*time.Second, "FIFO watchdog period (0 to disable)")
	flag.Float64Var(&cfg.thresh, "thresh", 0.8, "FIFO fill level alert threshold")
	flag.BoolVar(&cfg.pmon, "pmon", false, "enable pmon monitoring")
	flag.DurationVar(&cfg.freq, "freq", 1*time.Second, "pmon frequency")
	flag.StringVar(&cfg.logdir, "log-dir", os.TempDir(), "directory of the pmon log file")

	log.SetPrefix("npx-svc: ")
	log.SetFlags(0)

	flag.Parse()

	if v, _ := npx.Version(); v != "" {
		log.Printf("version: %s", v)
	}

	err := run(cfg)
	if err != nil {
		log.Fatalf("could not run npx-svc: %+v", err)
	}
}

func run(cfg config) error {
	sys, cleanup, err := newSystem(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.pmon {
		kill, err := monitor(cfg.logdir, cfg.freq)
		if err != nil {
			return err
		}
		defer kill()
	}

	if cfg.wdog > 0 {
		wd := daq.NewWatchdog(sys, cfg.wdog, cfg.thresh, alert.FromEnv())
		go func() {
			_ = wd.Run(ctx)
			log.Printf("watchdog summary:\n%s", wd.Summary())
		}()
	}

	log.Printf("running npx-svc server on %q...", cfg.addr)
	return daq.Serve(cfg.addr, sys)
}

func newSystem(cfg config) (*daq.System, func(), error) {
	bss, err := sim.ParseTopology(cfg.topo)
	if err != nil {
		return nil, nil, fmt.Errorf("could not parse topology: %w", err)
	}
	drv := sim.New(bss...)
	drv.Rate = cfg.rate

	opts := []daq.Option{
		daq.WithMsgStream(tlog.NewMsgStream("npx-svc", tlog.LvlInfo, os.Stdout)),
	}
	if cfg.shm != "" {
		opts = append(opts, daq.WithSinkFactory(daq.ShmSinks(cfg.shm, cfg.depth)))
	} else {
		opts = append(opts, daq.WithSinkFactory(daq.BufferSinks(cfg.depth)))
	}

	var db *conddb.DB
	if cfg.db != "" {
		db, err = conddb.Open(cfg.db)
		if err != nil {
			return nil, nil, fmt.Errorf("could not open condition db: %w", err)
		}
		dirs, err := db.SavingDirectories(context.Background())
		if err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("could not retrieve saving directories: %w", err)
		}
		opts = append(opts,
			daq.WithSettings(db),
			daq.WithCatalog(db),
			daq.WithSavingDirectories(dirs),
		)
	}

	sys := daq.New(drv, opts...)
	cleanup := func() {
		err := sys.Close()
		if err != nil {
			log.Printf("could not close acquisition system: %+v", err)
		}
		if db != nil {
			_ = db.Close()
		}
	}
	return sys, cleanup, nil
}

func monitor(dir string, freq time.Duration) (func(), error) {
	pid := os.Getpid()
	p, err := pmon.Monitor(pid)
	if err != nil {
		return nil, fmt.Errorf("could not start monitoring (pid=%d): %w", pid, err)
	}
	f, err := os.Create(filepath.Join(dir, "npx-svc-pmon.log"))
	if err != nil {
		return nil, fmt.Errorf("could not create pmon log file: %w", err)
	}
	p.W = f
	p.Freq = freq

	go func() {
		err := p.Run()
		if err != nil {
			log.Printf("could not run pmon: %+v", err)
		}
	}()

	return func() {
		err := p.Kill()
		if err != nil {
			log.Printf("could not stop monitoring: %+v", err)
		}
		_ = f.Close()
	}, nil
}
