// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package daq

import (
	"encoding/json"
	"net"
	"reflect"
	"strings"
	"testing"
)

func TestServerFail(t *testing.T) {
	sys := newTestSystem(t, newTestDriver(1))
	err := Serve(":invalid", sys)
	if err == nil {
		t.Fatal("expected an error")
	}
}

func TestServer(t *testing.T) {
	drv := newTestDriver(0)
	drv.Rate = 1000
	sys := newTestSystem(t, drv)

	srv, err := newServer("127.0.0.1:0", sys)
	if err != nil {
		t.Fatalf("could not create server: %+v", err)
	}

	errch := make(chan error, 1)
	go func() {
		errch <- srv.serve()
	}()

	conn, err := net.Dial("tcp", srv.ctl.Addr().String())
	if err != nil {
		t.Fatalf("could not dial npx server: %+v", err)
	}
	defer conn.Close()

	var (
		enc = json.NewEncoder(conn)
		dec = json.NewDecoder(conn)
	)

	type reply struct {
		Msg  string          `json:"msg"`
		Data json.RawMessage `json:"data"`
	}

	send := func(name string, args interface{}) reply {
		t.Helper()
		req := struct {
			Name string      `json:"name"`
			Args interface{} `json:"args,omitempty"`
		}{name, args}
		err := enc.Encode(req)
		if err != nil {
			t.Fatalf("could not send %q: %+v", name, err)
		}
		var rep reply
		err = dec.Decode(&rep)
		if err != nil {
			t.Fatalf("could not read %q-reply: %+v", name, err)
		}
		return rep
	}

	ack := func(name string, args interface{}, ptr interface{}) {
		t.Helper()
		rep := send(name, args)
		if rep.Msg != "ok" {
			t.Fatalf("invalid %q-reply: %q", name, rep.Msg)
		}
		if ptr == nil {
			return
		}
		err := json.Unmarshal(rep.Data, ptr)
		if err != nil {
			t.Fatalf("could not decode %q-reply payload: %+v", name, err)
		}
	}

	ackErr := func(name string, args interface{}) {
		t.Helper()
		rep := send(name, args)
		if rep.Msg == "ok" {
			t.Fatalf("invalid %q-reply: %q", name, rep.Msg)
		}
	}

	ackErr("start", nil)

	var nsubs int
	ack("discover", nil, &nsubs)
	if nsubs != 4 {
		t.Fatalf("invalid number of sub-processors: got=%d, want=4", nsubs)
	}

	var info string
	ack("info", nil, &info)
	if !strings.Contains(info, "Basestation 2") {
		t.Fatalf("invalid info:\n%s", info)
	}

	ack("gains", map[string]int{"ap": 2, "lfp": 1}, nil)
	ackErr("gains", map[string]int{"ap": 12, "lfp": 1})
	ackErr("gains", nil)
	ackErr("gains", "two")
	ack("reference", map[string]int{"ref": 1}, nil)
	ackErr("reference", map[string]int{"ref": 7})
	ack("filter", map[string]bool{"on": false}, nil)

	banks := make([]int, NumChannels)
	banks[10] = 2
	ack("channels", map[string]interface{}{"slot": 3, "port": 1, "banks": banks}, nil)
	ackErr("channels", map[string]interface{}{"slot": 4, "port": 1, "banks": banks})
	if got := sys.Basestation(3).Probe(1).Settings().Banks[10]; got != 2 {
		t.Fatalf("invalid bank: got=%d, want=2", got)
	}

	tmp := t.TempDir()
	var dir string
	ack("dir", map[string]interface{}{"slot": 3, "path": tmp}, &dir)
	if dir != tmp {
		t.Fatalf("invalid saving directory: got=%q, want=%q", dir, tmp)
	}

	var freqs []int
	ack("sync-freq", map[string]int{"slot": 3, "index": 2}, &freqs)
	if want := []int{1, 10, 100, 1000}; !reflect.DeepEqual(freqs, want) {
		t.Fatalf("invalid sync frequencies: got=%v, want=%v", freqs, want)
	}
	ackErr("sync-freq", map[string]int{"slot": 3, "index": 42})

	var temp float64
	ack("temperature", map[string]int{"slot": 3}, &temp)
	if temp != 36.5 {
		t.Fatalf("invalid temperature: got=%v, want=36.5", temp)
	}
	ackErr("temperature", map[string]int{"slot": 9})

	ack("start", nil, nil)

	var num int64
	ack("record", true, &num)
	ack("record", false, nil)
	ackErr("record", "yes")

	var fills map[string]float64
	ack("fill", nil, &fills)
	if len(fills) != 2 {
		t.Fatalf("invalid fill levels: %v", fills)
	}

	ack("stop", nil, nil)
	ackErr("unknown-command", nil)

	for _, p := range sys.Probes() {
		cfg := p.Settings()
		if cfg.APGains[0] != 2 || cfg.LFPGains[0] != 1 || cfg.Reference != 1 || cfg.APFilter {
			t.Fatalf("invalid settings for %v", p)
		}
	}

	_, err = conn.Write([]byte("{]"))
	if err != nil {
		t.Fatalf("could not send invalid request: %+v", err)
	}
	var rep reply
	err = dec.Decode(&rep)
	if err != nil {
		t.Fatalf("could not read reply: %+v", err)
	}
	if rep.Msg == "ok" {
		t.Fatalf("invalid reply to an invalid request: %q", rep.Msg)
	}

	srv.close()
	if err := <-errch; err == nil {
		t.Fatalf("expected an error from a closed server")
	}
}
