// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package daq

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-daq/tdaq/log"
	"github.com/go-lpc/npx/conddb"
	"github.com/go-lpc/npx/sink"
)

// SinkFactory creates the sink receiving the stream data of the probe
// on (slot, port).
type SinkFactory func(slot, port int, stream Stream) (sink.Sink, error)

// SettingsProvider provides stored settings for probes.
type SettingsProvider interface {
	ProbeSettings(ctx context.Context, serial uint64) (conddb.ProbeSettings, error)
}

// Catalog records the description of recording sessions.
type Catalog interface {
	AddRecording(ctx context.Context, rec conddb.Recording) error
}

type config struct {
	msg      log.MsgStream
	sinks    SinkFactory
	poll     time.Duration
	timeout  time.Duration
	parallel bool

	rec struct {
		delay  time.Duration
		folder func() string
	}

	settings SettingsProvider
	catalog  Catalog
	dirs     map[int]string
}

func newConfig() config {
	cfg := config{
		msg:     log.NewMsgStream("npx", log.LvlInfo, os.Stdout),
		sinks:   BufferSinks(bufferDepth),
		poll:    500 * time.Microsecond,
		timeout: 10 * time.Second,
	}
	cfg.rec.delay = 500 * time.Millisecond
	cfg.rec.folder = func() string {
		return time.Now().UTC().Format("2006-01-02_15-04-05")
	}
	return cfg
}

// Option configures the acquisition system.
type Option func(*config)

// WithMsgStream sets the message stream used for logging.
func WithMsgStream(msg log.MsgStream) Option {
	return func(cfg *config) {
		cfg.msg = msg
	}
}

// WithSinkFactory sets how probe sinks are created.
func WithSinkFactory(f SinkFactory) Option {
	return func(cfg *config) {
		cfg.sinks = f
	}
}

// WithPollInterval sets how long the read loop waits when
// no probe had new data.
func WithPollInterval(d time.Duration) Option {
	return func(cfg *config) {
		cfg.poll = d
	}
}

// WithStopTimeout sets how long Stop waits for the read loop to exit.
func WithStopTimeout(d time.Duration) Option {
	return func(cfg *config) {
		cfg.timeout = d
	}
}

// WithParallelStep drains basestations concurrently.
func WithParallelStep(v bool) Option {
	return func(cfg *config) {
		cfg.parallel = v
	}
}

// WithRecordingDelay sets the delay between a request to record and the
// opening of the recording streams.
func WithRecordingDelay(d time.Duration) Option {
	return func(cfg *config) {
		cfg.rec.delay = d
	}
}

// WithRecordingFolder sets the function naming the folder of a new
// recording session.
func WithRecordingFolder(f func() string) Option {
	return func(cfg *config) {
		cfg.rec.folder = f
	}
}

// WithSettings loads probe settings from p when probes are discovered.
func WithSettings(p SettingsProvider) Option {
	return func(cfg *config) {
		cfg.settings = p
	}
}

// WithCatalog records recording sessions into c.
func WithCatalog(c Catalog) Option {
	return func(cfg *config) {
		cfg.catalog = c
	}
}

// WithSavingDirectories sets the saving directory of basestations,
// indexed by slot.
func WithSavingDirectories(dirs map[int]string) Option {
	return func(cfg *config) {
		cfg.dirs = make(map[int]string, len(dirs))
		for k, v := range dirs {
			cfg.dirs[k] = v
		}
	}
}

// BufferSinks creates in-memory ring buffers of depth samples.
func BufferSinks(depth int) SinkFactory {
	return func(slot, port int, stream Stream) (sink.Sink, error) {
		return sink.NewBuffer(NumChannels, depth), nil
	}
}

// ShmSinks creates shared-memory ring buffers of depth samples under dir,
// so that other processes may consume the probe streams.
func ShmSinks(dir string, depth int) SinkFactory {
	return func(slot, port int, stream Stream) (sink.Sink, error) {
		fname := filepath.Join(dir, fmt.Sprintf("npx-slot%d-port%d-%s.shm", slot, port, stream))
		shm, err := sink.CreateShm(fname, NumChannels, depth)
		if err != nil {
			return nil, fmt.Errorf("daq: could not create shm sink: %w", err)
		}
		return shm, nil
	}
}
