// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package mmap provides memory-mapped regions backed by files, with
// atomic access to 64-bit words for cross-process ring indices.
package mmap // import "github.com/go-lpc/npx/internal/mmap"

import (
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

var (
	errClosed = errors.New("mmap: closed")
)

type Handle struct {
	data []byte
}

func HandleFrom(data []byte) *Handle {
	h := &Handle{data: data}
	runtime.SetFinalizer(h, (*Handle).Close)
	return h
}

// Create creates (or truncates) the named file to size bytes and
// maps it in memory, shared with other processes mapping it.
func Create(fname string, size int) (*Handle, error) {
	if size <= 0 {
		return nil, fmt.Errorf("mmap: invalid size %d", size)
	}

	f, err := os.OpenFile(fname, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("mmap: could not create %q: %w", fname, err)
	}
	defer f.Close()

	err = f.Truncate(int64(size))
	if err != nil {
		return nil, fmt.Errorf("mmap: could not resize %q: %w", fname, err)
	}

	return mapFile(f, size)
}

// Open maps the named file in memory.
func Open(fname string) (*Handle, error) {
	f, err := os.OpenFile(fname, os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("mmap: could not open %q: %w", fname, err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("mmap: could not stat %q: %w", fname, err)
	}
	if fi.Size() == 0 {
		return nil, fmt.Errorf("mmap: empty file %q", fname)
	}

	return mapFile(f, int(fi.Size()))
}

func mapFile(f *os.File, size int) (*Handle, error) {
	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap: could not mmap %q: %w", f.Name(), err)
	}
	return HandleFrom(data), nil
}

// Close closes the mmap handle.
func (h *Handle) Close() error {
	if h == nil {
		return os.ErrInvalid
	}

	if h.data == nil {
		return nil
	}
	data := h.data
	h.data = nil
	runtime.SetFinalizer(h, nil)

	return unix.Munmap(data)
}

// Len returns the length of the underlying memory-mapped file.
func (h *Handle) Len() int {
	return len(h.data)
}

// LoadU64 atomically loads the 64-bit word at offset off.
// off must be 8-byte aligned.
func (h *Handle) LoadU64(off int) uint64 {
	return atomic.LoadUint64(h.u64(off))
}

// StoreU64 atomically stores v as the 64-bit word at offset off.
// off must be 8-byte aligned.
func (h *Handle) StoreU64(off int, v uint64) {
	atomic.StoreUint64(h.u64(off), v)
}

func (h *Handle) u64(off int) *uint64 {
	if off%8 != 0 {
		panic(fmt.Errorf("mmap: unaligned 64-bit access at offset %d", off))
	}
	_ = h.data[off+7]
	return (*uint64)(unsafe.Pointer(&h.data[off]))
}

// ReadAt implements the io.ReaderAt interface.
func (h *Handle) ReadAt(p []byte, off int64) (int, error) {
	if h == nil {
		return 0, os.ErrInvalid
	}

	if h.data == nil {
		return 0, errClosed
	}
	if off < 0 || int64(len(h.data)) < off {
		return 0, fmt.Errorf("mmap: invalid ReadAt offset %d", off)
	}
	n := copy(p, h.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// WriteAt implements the io.WriterAt interface.
func (h *Handle) WriteAt(p []byte, off int64) (int, error) {
	if h == nil {
		return 0, os.ErrInvalid
	}

	if h.data == nil {
		return 0, errClosed
	}
	if off < 0 || int64(len(h.data)) < off {
		return 0, fmt.Errorf("mmap: invalid WriteAt offset %d", off)
	}
	n := copy(h.data[off:], p)
	if n < len(p) {
		return n, io.ErrShortWrite
	}
	return n, nil
}

var (
	_ io.ReaderAt = (*Handle)(nil)
	_ io.WriterAt = (*Handle)(nil)
	_ io.Closer   = (*Handle)(nil)
)
