// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package driver

import (
	"errors"
	"fmt"
)

// Status is the outcome of a driver operation.
type Status uint8

const (
	Success Status = iota
	Timeout
	NotConnected
	HardwareFault
	Unknown
)

func (st Status) String() string {
	switch st {
	case Success:
		return "success"
	case Timeout:
		return "timeout"
	case NotConnected:
		return "not connected"
	case HardwareFault:
		return "hardware fault"
	default:
		return "unknown"
	}
}

// Code is a raw status code as returned by the vendor library.
type Code int

const (
	CodeSuccess Code = iota
	CodeFailed
	CodeAlreadyOpen
	CodeNotOpen
	CodeIICError
	CodeVersionMismatch
	CodeParameterInvalid
	CodeUARTAckError
	CodeTimeout
	CodeWrongChannel
	CodeWrongBank
	CodeWrongRef
	CodeBISTError
	CodeFileOpenError
	CodeReadbackError
	CodeNoLink
	CodeNoSlot
	CodeNoLock
	CodeNotSupported
)

// FromCode translates a vendor code into a Status.
func FromCode(code Code) Status {
	switch code {
	case CodeSuccess:
		return Success
	case CodeTimeout:
		return Timeout
	case CodeNotOpen, CodeNoSlot, CodeNoLink:
		return NotConnected
	case CodeIICError, CodeUARTAckError, CodeBISTError, CodeReadbackError, CodeNoLock:
		return HardwareFault
	default:
		return Unknown
	}
}

var (
	ErrTimeout       = errors.New("driver: timeout")
	ErrNotConnected  = errors.New("driver: not connected")
	ErrHardwareFault = errors.New("driver: hardware fault")
	ErrUnknown       = errors.New("driver: unknown error")
)

// Error is the error returned by driver operations.
type Error struct {
	Op     string // driver operation
	Slot   int
	Port   int // -1 for basestation-level operations
	Status Status
	Code   Code
}

// NewError returns the error for the vendor code of op on (slot, port),
// or nil when code is a success.
func NewError(op string, slot, port int, code Code) error {
	st := FromCode(code)
	if st == Success {
		return nil
	}
	return &Error{Op: op, Slot: slot, Port: port, Status: st, Code: code}
}

func (e *Error) Error() string {
	if e.Port < 0 {
		return fmt.Sprintf("driver: %s(slot=%d): %v (code=%d)", e.Op, e.Slot, e.Status, e.Code)
	}
	return fmt.Sprintf("driver: %s(slot=%d, port=%d): %v (code=%d)", e.Op, e.Slot, e.Port, e.Status, e.Code)
}

func (e *Error) Unwrap() error {
	switch e.Status {
	case Timeout:
		return ErrTimeout
	case NotConnected:
		return ErrNotConnected
	case HardwareFault:
		return ErrHardwareFault
	default:
		return ErrUnknown
	}
}

// StatusOf returns the status carried by err.
// Errors not produced by a driver are reported as Unknown.
func StatusOf(err error) Status {
	if err == nil {
		return Success
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Status
	}
	return Unknown
}
