// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package daq

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"

	"github.com/go-daq/tdaq/log"
)

// server allows to control an acquisition system over TCP.
type server struct {
	ctl net.Listener
	msg log.MsgStream
	sys *System
}

// Serve serves JSON control requests for sys on addr.
func Serve(addr string, sys *System) error {
	srv, err := newServer(addr, sys)
	if err != nil {
		return fmt.Errorf("could not create npx server: %w", err)
	}
	return srv.serve()
}

func newServer(addr string, sys *System) (*server, error) {
	ctl, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("could not create npx-ctl server on %q: %w", addr, err)
	}

	srv := &server{
		ctl: ctl,
		msg: sys.msg,
		sys: sys,
	}
	return srv, nil
}

func (srv *server) serve() error {
	defer srv.close()

	for {
		conn, err := srv.ctl.Accept()
		if err != nil {
			return fmt.Errorf("could not accept connection: %w", err)
		}

		err = srv.handle(conn)
		if err != nil {
			srv.msg.Errorf("could not serve %v: %+v", conn.RemoteAddr(), err)
			continue
		}
	}
}

func (srv *server) handle(conn net.Conn) error {
	defer conn.Close()
	srv.msg.Infof("serving %v...", conn.RemoteAddr())
	defer srv.msg.Infof("serving %v... [done]", conn.RemoteAddr())

	dec := json.NewDecoder(conn)
	for {
		var req struct {
			Name string           `json:"name"`
			Args *json.RawMessage `json:"args"`
		}

		err := dec.Decode(&req)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			srv.msg.Warnf("could not decode command request: %+v", err)
			srv.reply(conn, nil, err)
			return nil
		}
		srv.msg.Debugf("received request: name=%q", req.Name)

		data, err := srv.dispatch(req.Name, req.Args)
		if err != nil {
			srv.msg.Errorf("could not run command %q: %+v", req.Name, err)
		}
		srv.reply(conn, data, err)
	}
}

func (srv *server) dispatch(name string, raw *json.RawMessage) (interface{}, error) {
	sys := srv.sys
	switch strings.ToLower(name) {
	case "discover":
		err := sys.Discover()
		if err != nil {
			return nil, err
		}
		return sys.NumSubProcessors(), nil

	case "info":
		return sys.InfoString(), nil

	case "start":
		return nil, sys.Start()

	case "stop":
		return nil, sys.Stop()

	case "record":
		var on bool
		err := decodeArgs(name, raw, &on)
		if err != nil {
			return nil, err
		}
		sys.SetRecording(on)
		return sys.RecordingNumber(), nil

	case "gains":
		var args struct {
			AP  int `json:"ap"`
			LFP int `json:"lfp"`
		}
		err := decodeArgs(name, raw, &args)
		if err != nil {
			return nil, err
		}
		return nil, sys.SetAllGains(args.AP, args.LFP)

	case "reference":
		var args struct {
			Ref int `json:"ref"`
		}
		err := decodeArgs(name, raw, &args)
		if err != nil {
			return nil, err
		}
		return nil, sys.SetAllReferences(args.Ref)

	case "filter":
		var args struct {
			On bool `json:"on"`
		}
		err := decodeArgs(name, raw, &args)
		if err != nil {
			return nil, err
		}
		return nil, sys.SetFilter(args.On)

	case "channels":
		var args struct {
			Slot  int   `json:"slot"`
			Port  int   `json:"port"`
			Banks []int `json:"banks"`
		}
		err := decodeArgs(name, raw, &args)
		if err != nil {
			return nil, err
		}
		bs, err := srv.basestation(args.Slot)
		if err != nil {
			return nil, err
		}
		return nil, bs.SetChannels(args.Port, args.Banks)

	case "dir":
		var args struct {
			Slot int    `json:"slot"`
			Path string `json:"path"`
		}
		err := decodeArgs(name, raw, &args)
		if err != nil {
			return nil, err
		}
		bs, err := srv.basestation(args.Slot)
		if err != nil {
			return nil, err
		}
		bs.SetSavingDirectory(args.Path)
		return bs.SavingDirectory(), nil

	case "fill":
		fills := make(map[int]float64)
		for _, bs := range sys.Basestations() {
			fills[bs.Slot()] = bs.FillPercentage()
		}
		return fills, nil

	case "sync-freq":
		var args struct {
			Slot  int `json:"slot"`
			Index int `json:"index"`
		}
		err := decodeArgs(name, raw, &args)
		if err != nil {
			return nil, err
		}
		bs, err := srv.basestation(args.Slot)
		if err != nil {
			return nil, err
		}
		err = bs.SetSyncFrequency(args.Index)
		if err != nil {
			return nil, err
		}
		return bs.SyncFrequencies()

	case "temperature":
		var args struct {
			Slot int `json:"slot"`
		}
		err := decodeArgs(name, raw, &args)
		if err != nil {
			return nil, err
		}
		bs, err := srv.basestation(args.Slot)
		if err != nil {
			return nil, err
		}
		return bs.Temperature()

	default:
		return nil, fmt.Errorf("unknown command %q", name)
	}
}

func (srv *server) basestation(slot int) (*Basestation, error) {
	bs := srv.sys.Basestation(slot)
	if bs == nil {
		return nil, fmt.Errorf("daq: no basestation in slot %d", slot)
	}
	return bs, nil
}

func decodeArgs(name string, raw *json.RawMessage, ptr interface{}) error {
	if raw == nil {
		return fmt.Errorf("daq: missing %q payload", name)
	}
	err := json.Unmarshal(*raw, ptr)
	if err != nil {
		return fmt.Errorf("daq: could not decode %q payload: %w", name, err)
	}
	return nil
}

func (srv *server) reply(conn net.Conn, data interface{}, err error) {
	rep := struct {
		Msg  string      `json:"msg"`
		Data interface{} `json:"data,omitempty"`
	}{Msg: "ok", Data: data}
	if err != nil {
		rep.Msg = fmt.Sprintf("%+v", err)
		rep.Data = nil
	}

	_ = json.NewEncoder(conn).Encode(rep)
}

func (srv *server) close() {
	_ = srv.ctl.Close()
}
