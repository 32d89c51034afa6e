// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package daq

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/go-lpc/npx/conddb"
)

// recorder opens and closes the file streams of the basestations when
// the read loop observes a change of the recording flag.
type recorder struct {
	sys *System
	bss []*Basestation

	want atomic.Bool
	reqs chan struct{}
	quit chan struct{}
	done chan struct{}

	active []*Basestation // basestations with an open file stream
}

func newRecorder(sys *System, bss []*Basestation) *recorder {
	return &recorder{
		sys:  sys,
		bss:  bss,
		reqs: make(chan struct{}, 1),
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// request asks the recorder to start or to end a recording session.
func (rec *recorder) request(v bool) {
	rec.want.Store(v)
	select {
	case rec.reqs <- struct{}{}:
	default:
	}
}

func (rec *recorder) run() {
	defer close(rec.done)
	for {
		select {
		case <-rec.quit:
			rec.end()
			return
		case <-rec.reqs:
			if !rec.want.Load() {
				rec.end()
				continue
			}
			if rec.active != nil {
				continue
			}
			if !rec.wait() {
				return
			}
			if rec.want.Load() {
				rec.begin()
			}
		}
	}
}

// wait waits for the recording delay to elapse.
// wait returns false if the recorder was closed in the meantime.
func (rec *recorder) wait() bool {
	delay := rec.sys.cfg.rec.delay
	if delay <= 0 {
		return true
	}
	tck := time.NewTimer(delay)
	defer tck.Stop()
	select {
	case <-rec.quit:
		return false
	case <-tck.C:
		return true
	}
}

func (rec *recorder) begin() {
	var (
		sys    = rec.sys
		num    = sys.session.Add(1)
		folder = sys.recordingFolder()
		start  = time.Now().UTC()
		files  []string
	)

	rec.active = []*Basestation{}
	for _, bs := range rec.bss {
		if len(bs.probes) == 0 {
			continue
		}
		dir := filepath.Join(bs.SavingDirectory(), folder)
		err := os.MkdirAll(dir, 0755)
		if err != nil {
			sys.msg.Errorf("could not create recording directory %q: %+v", dir, err)
			continue
		}
		fname := filepath.Join(dir, fmt.Sprintf("recording_slot%d_%d.npx2", bs.slot, num))
		err = bs.startFileStream(fname)
		if err != nil {
			sys.msg.Errorf("%+v", err)
			continue
		}
		rec.active = append(rec.active, bs)
		files = append(files, fname)
	}

	sys.msg.Infof("recording #%d started (folder=%q, streams=%d)", num, folder, len(files))

	if sys.cfg.catalog == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := sys.cfg.catalog.AddRecording(ctx, conddb.Recording{
		Number: num,
		Folder: folder,
		Files:  files,
		Start:  start,
	})
	if err != nil {
		sys.msg.Warnf("could not catalog recording #%d: %+v", num, err)
	}
}

func (rec *recorder) end() {
	if rec.active == nil {
		return
	}
	for _, bs := range rec.active {
		err := bs.stopFileStream()
		if err != nil {
			rec.sys.msg.Errorf("%+v", err)
		}
	}
	rec.active = nil
	rec.sys.msg.Infof("recording #%d stopped", rec.sys.session.Load())
}

// close ends the current session and waits for the recorder to exit.
func (rec *recorder) close(timeout time.Duration) error {
	close(rec.quit)
	tck := time.NewTimer(timeout)
	defer tck.Stop()
	select {
	case <-rec.done:
		return nil
	case <-tck.C:
		return fmt.Errorf("daq: could not stop recorder (timeout=%v)", timeout)
	}
}
