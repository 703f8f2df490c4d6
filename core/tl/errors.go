// SPDX-FileCopyrightText: Copyright (C) 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

package tl

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownConstructor is returned when a boxed object carries a
	// constructor id that is not present in the registry, or that is not
	// the one the caller expected.
	ErrUnknownConstructor = errors.New("tl: unknown constructor")

	// ErrUnexpectedEOF is returned when the buffer is exhausted in the
	// middle of an object.
	ErrUnexpectedEOF = errors.New("tl: unexpected end of buffer")

	// ErrTrailingBytes is returned when bytes remain after a top-level
	// object has been decoded.
	ErrTrailingBytes = errors.New("tl: trailing bytes after object")

	errNegativeLength = errors.New("tl: negative vector length")
	errNilObject      = errors.New("tl: nil object")
)

// UnknownConstructorError is the concrete error carrying the offending
// constructor id.  It matches ErrUnknownConstructor with errors.Is.
type UnknownConstructorError struct {
	ID   uint32
	Want uint32
}

func (e *UnknownConstructorError) Error() string {
	if e.Want != 0 {
		return fmt.Sprintf("tl: unexpected constructor 0x%08x (want 0x%08x)", e.ID, e.Want)
	}
	return fmt.Sprintf("tl: unknown constructor 0x%08x", e.ID)
}

// Is implements errors.Is.
func (e *UnknownConstructorError) Is(target error) bool {
	return target == ErrUnknownConstructor
}

type trailingBytesError struct {
	n int
}

func (e *trailingBytesError) Error() string {
	return fmt.Sprintf("tl: %d trailing bytes after object", e.n)
}

func (e *trailingBytesError) Is(target error) bool {
	return target == ErrTrailingBytes
}
