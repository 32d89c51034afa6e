// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command npx-ctl is an interactive console controlling an npx-svc server.
//
// Example:
//
//	$> npx-ctl -addr localhost:9999
//	npx> discover
//	npx> gains 4 0
//	npx> start
//	npx> record on
//	npx> record off
//	npx> stop
package main // import "github.com/go-lpc/npx/cmd/npx-ctl"

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/peterh/liner"
)

func main() {
	var (
		addr = flag.String("addr", ":9999", "npx-svc [addr]:port to dial")
		hist = flag.String("history", filepath.Join(os.TempDir(), ".npx-ctl.history"), "path to the history file")
	)

	log.SetPrefix("npx-ctl: ")
	log.SetFlags(0)

	flag.Parse()

	conn, err := net.Dial("tcp", *addr)
	if err != nil {
		log.Fatalf("could not dial npx-svc %q: %+v", *addr, err)
	}
	defer conn.Close()

	err = repl(newClient(conn), *hist, os.Stdout)
	if err != nil {
		log.Fatalf("could not run npx-ctl: %+v", err)
	}
}

var cmdNames = []string{
	"channels", "dir", "discover", "fill", "filter", "gains", "help",
	"info", "quit", "record", "reference", "start", "stop",
	"sync-freq", "temperature",
}

func repl(cli *client, hist string, w io.Writer) error {
	term := liner.NewLiner()
	defer term.Close()

	term.SetCtrlCAborts(true)
	term.SetCompleter(func(line string) []string {
		var names []string
		for _, name := range cmdNames {
			if strings.HasPrefix(name, strings.ToLower(line)) {
				names = append(names, name)
			}
		}
		return names
	})

	if f, err := os.Open(hist); err == nil {
		_, _ = term.ReadHistory(f)
		_ = f.Close()
	}
	defer func() {
		f, err := os.Create(hist)
		if err != nil {
			log.Printf("could not save history: %+v", err)
			return
		}
		defer f.Close()
		_, _ = term.WriteHistory(f)
	}()

	for {
		line, err := term.Prompt("npx> ")
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, liner.ErrPromptAborted) {
				return nil
			}
			return fmt.Errorf("could not read command: %w", err)
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		term.AppendHistory(line)

		quit, err := eval(cli, line, w)
		if err != nil {
			fmt.Fprintf(w, "error: %+v\n", err)
		}
		if quit {
			return nil
		}
	}
}

func eval(cli *client, line string, w io.Writer) (quit bool, err error) {
	toks := strings.Fields(line)
	switch strings.ToLower(toks[0]) {
	case "quit", "exit":
		return true, nil
	case "help":
		fmt.Fprintf(w, "commands: %s\n", strings.Join(cmdNames, ", "))
		return false, nil
	}

	req, err := parse(toks)
	if err != nil {
		return false, err
	}
	rep, err := cli.send(req)
	if err != nil {
		return false, err
	}
	if rep.Msg != "ok" {
		return false, errors.New(rep.Msg)
	}
	if len(rep.Data) != 0 {
		var v interface{}
		err = json.Unmarshal(rep.Data, &v)
		if err != nil {
			return false, fmt.Errorf("could not decode reply payload: %w", err)
		}
		if s, ok := v.(string); ok {
			fmt.Fprintf(w, "%s\n", s)
		} else {
			fmt.Fprintf(w, "%v\n", v)
		}
	}
	return false, nil
}

type request struct {
	Name string      `json:"name"`
	Args interface{} `json:"args,omitempty"`
}

type reply struct {
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// parse converts a console command into a control request.
func parse(toks []string) (request, error) {
	var (
		name = strings.ToLower(toks[0])
		args = toks[1:]
		req  = request{Name: name}
	)

	ints := func(n int) ([]int, error) {
		if len(args) != n {
			return nil, fmt.Errorf("invalid number of arguments for %q (got=%d, want=%d)", name, len(args), n)
		}
		vs := make([]int, n)
		for i, arg := range args {
			v, err := strconv.Atoi(arg)
			if err != nil {
				return nil, fmt.Errorf("invalid argument %q for %q: %w", arg, name, err)
			}
			vs[i] = v
		}
		return vs, nil
	}

	switch name {
	case "discover", "info", "start", "stop", "fill":
		if len(args) != 0 {
			return req, fmt.Errorf("%q takes no argument", name)
		}

	case "record", "filter":
		if len(args) != 1 {
			return req, fmt.Errorf("invalid number of arguments for %q", name)
		}
		on, err := parseBool(args[0])
		if err != nil {
			return req, fmt.Errorf("invalid argument for %q: %w", name, err)
		}
		if name == "record" {
			req.Args = on
		} else {
			req.Args = map[string]bool{"on": on}
		}

	case "gains":
		vs, err := ints(2)
		if err != nil {
			return req, err
		}
		req.Args = map[string]int{"ap": vs[0], "lfp": vs[1]}

	case "reference":
		vs, err := ints(1)
		if err != nil {
			return req, err
		}
		req.Args = map[string]int{"ref": vs[0]}

	case "temperature":
		vs, err := ints(1)
		if err != nil {
			return req, err
		}
		req.Args = map[string]int{"slot": vs[0]}

	case "sync-freq":
		vs, err := ints(2)
		if err != nil {
			return req, err
		}
		req.Args = map[string]int{"slot": vs[0], "index": vs[1]}

	case "dir":
		if len(args) != 2 {
			return req, fmt.Errorf("invalid number of arguments for %q", name)
		}
		slot, err := strconv.Atoi(args[0])
		if err != nil {
			return req, fmt.Errorf("invalid slot %q: %w", args[0], err)
		}
		req.Args = map[string]interface{}{"slot": slot, "path": args[1]}

	case "channels":
		// channels SLOT PORT BANK: selects the same bank for all channels.
		vs, err := ints(3)
		if err != nil {
			return req, err
		}
		banks := make([]int, 384)
		for i := range banks {
			banks[i] = vs[2]
		}
		req.Args = map[string]interface{}{"slot": vs[0], "port": vs[1], "banks": banks}

	default:
		return req, fmt.Errorf("unknown command %q", name)
	}

	return req, nil
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "on", "1", "true", "yes":
		return true, nil
	case "off", "0", "false", "no":
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean %q", s)
}

type client struct {
	enc *json.Encoder
	dec *json.Decoder
}

func newClient(rw io.ReadWriter) *client {
	return &client{
		enc: json.NewEncoder(rw),
		dec: json.NewDecoder(rw),
	}
}

func (cli *client) send(req request) (reply, error) {
	var rep reply
	err := cli.enc.Encode(req)
	if err != nil {
		return rep, fmt.Errorf("could not send %q: %w", req.Name, err)
	}
	err = cli.dec.Decode(&rep)
	if err != nil {
		return rep, fmt.Errorf("could not read %q-reply: %w", req.Name, err)
	}
	return rep, nil
}
