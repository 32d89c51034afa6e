// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package xcnv provides tools to convert probe packet streams to/from LCIO.
package xcnv // import "github.com/go-lpc/npx/internal/xcnv"

import (
	"unsafe"
)

const (
	detector = "NPX"
	collName = "NPX2_RAW"
)

func i32sFrom(raw []byte) []int32 {
	const i32sz = 4
	if len(raw) == 0 {
		return nil
	}
	ptr := (*int32)(unsafe.Pointer(&raw[0]))
	return unsafe.Slice(ptr, len(raw)/i32sz)
}

func bytesFromI32s(raw []int32) []byte {
	const i32sz = 4
	if len(raw) == 0 {
		return nil
	}
	ptr := (*byte)(unsafe.Pointer(&raw[0]))
	return unsafe.Slice(ptr, i32sz*len(raw))
}
