// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sink

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestShm(t *testing.T) {
	const nchans = 4
	fname := filepath.Join(t.TempDir(), "npx-slot3-port0-ap.shm")

	w, err := CreateShm(fname, nchans, 3)
	if err != nil {
		t.Fatalf("could not create shm ring: %+v", err)
	}
	defer w.Close()

	data, ts, evts := samples(nchans, 5, 100)
	n, err := w.Append(data, ts, evts, 5)
	if err != nil {
		t.Fatalf("could not append: %+v", err)
	}
	if got, want := n, 3; got != want {
		t.Fatalf("invalid number of appended samples: got=%d, want=%d", got, want)
	}

	r, err := OpenShm(fname)
	if err != nil {
		t.Fatalf("could not open shm ring: %+v", err)
	}
	defer r.Close()

	if got, want := r.NumChans(), nchans; got != want {
		t.Fatalf("invalid nchans: got=%d, want=%d", got, want)
	}
	if got, want := r.Cap(), 3; got != want {
		t.Fatalf("invalid capacity: got=%d, want=%d", got, want)
	}
	if got, want := r.Len(), 3; got != want {
		t.Fatalf("invalid len: got=%d, want=%d", got, want)
	}
	if got, want := r.Dropped(), int64(2); got != want {
		t.Fatalf("invalid dropped count: got=%d, want=%d", got, want)
	}

	var (
		rdata = make([]float32, nchans*2)
		rts   = make([]int64, 2)
		revts = make([]uint64, 2)
	)
	n, err = r.Read(rdata, rts, revts, 2)
	if err != nil {
		t.Fatalf("could not read: %+v", err)
	}
	if got, want := n, 2; got != want {
		t.Fatalf("invalid number of read samples: got=%d, want=%d", got, want)
	}
	if got, want := rts, []int64{100, 101}; !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid timestamps: got=%v, want=%v", got, want)
	}
	if got, want := rdata[nchans:], data[nchans:2*nchans]; !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid data: got=%v, want=%v", got, want)
	}

	// writer sees the space released by the reader.
	data, ts, evts = samples(nchans, 2, 200)
	n, err = w.Append(data, ts, evts, 2)
	if err != nil {
		t.Fatalf("could not append: %+v", err)
	}
	if got, want := n, 2; got != want {
		t.Fatalf("invalid number of appended samples: got=%d, want=%d", got, want)
	}

	rdata = make([]float32, nchans*3)
	rts = make([]int64, 3)
	revts = make([]uint64, 3)
	n, err = r.Read(rdata, rts, revts, 3)
	if err != nil {
		t.Fatalf("could not read: %+v", err)
	}
	if got, want := rts[:n], []int64{102, 200, 201}; !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid timestamps: got=%v, want=%v", got, want)
	}
	if got, want := revts[:n], []uint64{0, 0, 1}; !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid events: got=%v, want=%v", got, want)
	}
}

func TestOpenShmErrors(t *testing.T) {
	tmp := t.TempDir()

	if _, err := CreateShm(filepath.Join(tmp, "bad.shm"), 0, 10); err == nil {
		t.Fatalf("expected an error for an invalid geometry")
	}

	if _, err := OpenShm(filepath.Join(tmp, "missing.shm")); err == nil {
		t.Fatalf("expected an error for a missing file")
	}

	fname := filepath.Join(tmp, "garbage.shm")
	if err := os.WriteFile(fname, make([]byte, 128), 0644); err != nil {
		t.Fatalf("could not create garbage file: %+v", err)
	}
	if _, err := OpenShm(fname); err == nil {
		t.Fatalf("expected an error for an invalid magic")
	}
}
