// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sim

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseTopology parses a description of simulated basestations.
//
// Basestations are separated by ';'. Each basestation is described by its
// slot, optionally followed by ':' and a comma-separated list of ports
// with a probe:
//
//	"3:0,1;5" describes a basestation in slot 3 with probes on ports 0
//	and 1, and a basestation in slot 5 without probes.
//
// Probe serial numbers are derived from the slot and port.
func ParseTopology(s string) ([]Basestation, error) {
	var (
		bss   []Basestation
		slots = make(map[int]bool)
	)
	for _, v := range strings.Split(s, ";") {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		var (
			slotv = v
			portv string
		)
		if i := strings.Index(v, ":"); i >= 0 {
			slotv, portv = v[:i], v[i+1:]
		}
		slot, err := strconv.Atoi(strings.TrimSpace(slotv))
		if err != nil {
			return nil, fmt.Errorf("sim: invalid slot %q: %w", slotv, err)
		}
		if slot < 0 || slot >= 32 {
			return nil, fmt.Errorf("sim: invalid slot %d", slot)
		}
		if slots[slot] {
			return nil, fmt.Errorf("sim: duplicate slot %d", slot)
		}
		slots[slot] = true

		bs := Basestation{Slot: slot}
		ports := make(map[int]bool)
		for _, pv := range strings.Split(portv, ",") {
			pv = strings.TrimSpace(pv)
			if pv == "" {
				continue
			}
			port, err := strconv.Atoi(pv)
			if err != nil {
				return nil, fmt.Errorf("sim: invalid port %q of slot %d: %w", pv, slot, err)
			}
			if port < 0 || ports[port] {
				return nil, fmt.Errorf("sim: invalid port %d of slot %d", port, slot)
			}
			ports[port] = true
			bs.Probes = append(bs.Probes, Probe{
				Port:       port,
				Serial:     uint64(18005000000 + 100*slot + port),
				PartNumber: "PRB_1_4_0480_1",
			})
		}
		bss = append(bss, bs)
	}
	if len(bss) == 0 {
		return nil, fmt.Errorf("sim: empty topology %q", s)
	}
	return bss, nil
}
