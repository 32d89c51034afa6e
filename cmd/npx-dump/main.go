// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// npx-dump decodes and displays NPX2 recording files.
//
// Usage: npx-dump [OPTIONS] FILE1 [FILE2 [FILE3 ...]]
//
// Example:
//
//	$> npx-dump -n 4 ./recording_slot3_1.npx2
//	=== record #0 slot=3 port=0 ===
//	Timestamps:          0 ->         11
//	Triggers:   [0 0 0 0 0 0 0 0 0 0 0 0]
//	  ap[00]= [-512 -511 -510 -509]
//	  [...]
//	  lfp=    [0 1 2 3]
package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/go-lpc/npx/driver"
	"github.com/go-lpc/npx/internal/npx2"
)

func main() {
	log.SetPrefix("npx-dump: ")
	log.SetFlags(0)

	nchans := flag.Int("n", 8, "number of channels to display")

	flag.Usage = func() {
		fmt.Printf(`npx-dump decodes and displays NPX2 recording files.

Usage: npx-dump [OPTIONS] FILE1 [FILE2 [FILE3 ...]]

Example:

 $> npx-dump -n 4 ./recording_slot3_1.npx2
 === record #0 slot=3 port=0 ===
 Timestamps:          0 ->         11
 Triggers:   [0 0 0 0 0 0 0 0 0 0 0 0]
   ap[00]= [-512 -511 -510 -509]
   [...]
   lfp=    [0 1 2 3]

`)
		flag.PrintDefaults()
	}

	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		log.Fatalf("missing path to input NPX2 file")
	}

	for _, fname := range flag.Args() {
		err := process(os.Stdout, fname, *nchans)
		if err != nil {
			log.Fatalf("could not dump file %q: %+v", fname, err)
		}
	}
}

func process(w io.Writer, fname string, nchans int) error {
	wbuf := bufio.NewWriter(w)
	defer wbuf.Flush()

	f, err := os.Open(fname)
	if err != nil {
		return fmt.Errorf("could not open %q: %w", fname, err)
	}
	defer f.Close()

	switch {
	case nchans < 0:
		nchans = 0
	case nchans > driver.NumChannels:
		nchans = driver.NumChannels
	}

	dec := npx2.NewDecoder(bufio.NewReader(f))
loop:
	for i := 0; ; i++ {
		var rec npx2.Record
		err := dec.Decode(&rec)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break loop
			}
			return fmt.Errorf("could not decode record: %w", err)
		}
		pkt := &rec.Packet
		fmt.Fprintf(wbuf, "=== record #%d slot=%d port=%d ===\n", i, rec.Slot, rec.Port)
		fmt.Fprintf(wbuf, "Timestamps: % 10d -> % 10d\n", pkt.Timestamp[0], pkt.Timestamp[driver.NumAUX-1])
		fmt.Fprintf(wbuf, "Triggers:   %v\n", pkt.Trigger)
		if nchans == 0 {
			continue
		}
		for j := range pkt.AP {
			fmt.Fprintf(wbuf, "  ap[%02d]= %v\n", j, pkt.AP[j][:nchans])
		}
		fmt.Fprintf(wbuf, "  lfp=    %v\n", pkt.LFP[:nchans])
	}

	return nil
}
