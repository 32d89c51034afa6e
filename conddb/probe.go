// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package conddb

import "time"

// ProbeSettings are the acquisition settings stored for a probe.
// Gains and reference are indices into the gain and reference tables.
type ProbeSettings struct {
	Serial    uint64 `json:"serial"`
	APGain    int    `json:"ap_gain"`
	LFPGain   int    `json:"lfp_gain"`
	Reference int    `json:"reference"`
	APFilter  bool   `json:"ap_filter"`
}

// Recording describes a recording session.
type Recording struct {
	Number int64
	Folder string
	Files  []string // stream files, one per basestation
	Start  time.Time
}
