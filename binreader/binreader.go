// Copyright 2024 Michael J. Fromberger. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package binreader provides a bounded cursor over an immutable byte buffer
// for decoding mixed-endian binary structures. Every read is checked against
// the buffer bounds and a failed read reports a *ParseError carrying the
// offset at which decoding stopped.
package binreader

import (
	"encoding/binary"
	"fmt"
	"math"
	"unicode/utf8"
)

// A ParseError reports a read that would exceed the underlying buffer, or a
// value that cannot be decoded at the recorded offset.
type ParseError struct {
	Offset int    // position in the buffer where the failure occurred
	What   string // description of the read that failed
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("offset %d: %s", e.Offset, e.What)
}

// A Reader is a cursor over a byte buffer. The zero value is empty and
// usable; construct a useful one with New. Methods advance the cursor by the
// width of the value read. A Reader never modifies the buffer.
type Reader struct {
	data []byte
	pos  int
}

// New constructs a Reader positioned at the start of data. The Reader
// retains data without copying; the caller must not modify it while the
// Reader is in use.
func New(data []byte) *Reader { return &Reader{data: data} }

// Len reports the total size of the underlying buffer.
func (r *Reader) Len() int { return len(r.data) }

// Offset reports the current cursor position.
func (r *Reader) Offset() int { return r.pos }

// Remaining reports how many bytes follow the cursor.
func (r *Reader) Remaining() int { return len(r.data) - r.pos }

// Ensure reports an error if fewer than n bytes follow the cursor. It is
// used defensively before structured multi-field reads.
func (r *Reader) Ensure(n int) error {
	if n < 0 || r.pos+n > len(r.data) {
		return &ParseError{Offset: r.pos, What: fmt.Sprintf("need %d bytes, have %d", n, r.Remaining())}
	}
	return nil
}

// Seek positions the cursor at offset pos.
func (r *Reader) Seek(pos int) error {
	if pos < 0 || pos > len(r.data) {
		return &ParseError{Offset: pos, What: "seek out of range"}
	}
	r.pos = pos
	return nil
}

func (r *Reader) take(n int, what string) ([]byte, error) {
	if err := r.Ensure(n); err != nil {
		return nil, &ParseError{Offset: r.pos, What: "incomplete " + what}
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// Uint16LE reads a little-endian uint16 and advances the cursor.
func (r *Reader) Uint16LE() (uint16, error) {
	b, err := r.take(2, "uint16")
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

// Uint32LE reads a little-endian uint32 and advances the cursor.
func (r *Reader) Uint32LE() (uint32, error) {
	b, err := r.take(4, "uint32")
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// Uint32BE reads a big-endian uint32 and advances the cursor.
func (r *Reader) Uint32BE() (uint32, error) {
	b, err := r.take(4, "uint32")
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

// Uint64BE reads a big-endian uint64 and advances the cursor.
func (r *Reader) Uint64BE() (uint64, error) {
	b, err := r.take(8, "uint64")
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

// Float64LE reads a little-endian IEEE-754 double and advances the cursor.
func (r *Reader) Float64LE() (float64, error) {
	b, err := r.take(8, "float64")
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(b)), nil
}

// NulString reads bytes from the cursor until a NUL or until limit bytes
// have been consumed, whichever comes first, and returns the result as a
// string. The cursor is left after the terminating NUL when one was found,
// otherwise after the last byte read. The bytes must be valid UTF-8.
func (r *Reader) NulString(limit int) (string, error) {
	if limit < 0 || limit > r.Remaining() {
		limit = r.Remaining()
	}
	start := r.pos
	end := start
	for end < start+limit && r.data[end] != 0 {
		end++
	}
	s := r.data[start:end]
	if !utf8.Valid(s) {
		return "", &ParseError{Offset: start, What: "invalid UTF-8 string"}
	}
	r.pos = end
	if r.pos < len(r.data) && r.data[r.pos] == 0 {
		r.pos++ // consume the terminator
	}
	return string(s), nil
}

// NulBytes is NulString without the UTF-8 requirement: it reads raw bytes
// until a NUL or the limit and returns them without validation. The returned
// slice aliases the underlying buffer.
func (r *Reader) NulBytes(limit int) []byte {
	if limit < 0 || limit > r.Remaining() {
		limit = r.Remaining()
	}
	start := r.pos
	end := start
	for end < start+limit && r.data[end] != 0 {
		end++
	}
	r.pos = end
	if r.pos < len(r.data) && r.data[r.pos] == 0 {
		r.pos++
	}
	return r.data[start:end]
}

// Bytes reads n raw bytes and advances the cursor. The returned slice
// aliases the underlying buffer.
func (r *Reader) Bytes(n int) ([]byte, error) { return r.take(n, "bytes") }

// Window returns a new Reader over the subrange [start, start+length) of the
// underlying buffer. The cursor of r is unaffected.
func (r *Reader) Window(start, length int) (*Reader, error) {
	if start < 0 || length < 0 || start+length > len(r.data) {
		return nil, &ParseError{Offset: start, What: fmt.Sprintf("window of %d bytes out of range", length)}
	}
	return &Reader{data: r.data[start : start+length]}, nil
}
