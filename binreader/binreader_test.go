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

package binreader_test

import (
	"errors"
	"math"
	"testing"

	"github.com/creachadair/cookiequery/binreader"
)

func TestIntegerReads(t *testing.T) {
	r := binreader.New([]byte{
		0x01, 0x02, // uint16 LE = 0x0201
		0x01, 0x02, 0x03, 0x04, // uint32 LE = 0x04030201
		0x01, 0x02, 0x03, 0x04, // uint32 BE = 0x01020304
		0, 0, 0, 0, 0, 0, 0, 0x2a, // uint64 BE = 42
	})

	if v, err := r.Uint16LE(); err != nil || v != 0x0201 {
		t.Errorf("Uint16LE: got %x, %v; want 0201, nil", v, err)
	}
	if v, err := r.Uint32LE(); err != nil || v != 0x04030201 {
		t.Errorf("Uint32LE: got %x, %v; want 04030201, nil", v, err)
	}
	if v, err := r.Uint32BE(); err != nil || v != 0x01020304 {
		t.Errorf("Uint32BE: got %x, %v; want 01020304, nil", v, err)
	}
	if v, err := r.Uint64BE(); err != nil || v != 42 {
		t.Errorf("Uint64BE: got %d, %v; want 42, nil", v, err)
	}
	if r.Remaining() != 0 {
		t.Errorf("Remaining: got %d, want 0", r.Remaining())
	}
}

func TestFloat64LE(t *testing.T) {
	bits := math.Float64bits(700000000)
	data := make([]byte, 8)
	for i := range data {
		data[i] = byte(bits >> (8 * i))
	}
	r := binreader.New(data)
	if v, err := r.Float64LE(); err != nil || v != 700000000 {
		t.Errorf("Float64LE: got %v, %v; want 7e8, nil", v, err)
	}
}

func TestShortReadReportsOffset(t *testing.T) {
	r := binreader.New([]byte{1, 2, 3})
	if _, err := r.Uint16LE(); err != nil {
		t.Fatalf("Uint16LE: unexpected error: %v", err)
	}
	_, err := r.Uint32LE()
	var pe *binreader.ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("Uint32LE: got %v, want *ParseError", err)
	}
	if pe.Offset != 2 {
		t.Errorf("ParseError offset: got %d, want 2", pe.Offset)
	}
}

func TestNulString(t *testing.T) {
	tests := []struct {
		name  string
		data  []byte
		limit int
		want  string
		after int // expected cursor position
	}{
		{"terminated", []byte("abc\x00def"), -1, "abc", 4},
		{"limited", []byte("abcdef"), 3, "abc", 3},
		{"empty", []byte("\x00x"), -1, "", 1},
		{"unterminated", []byte("abc"), -1, "abc", 3},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := binreader.New(tc.data)
			got, err := r.NulString(tc.limit)
			if err != nil {
				t.Fatalf("NulString: unexpected error: %v", err)
			}
			if got != tc.want {
				t.Errorf("NulString: got %q, want %q", got, tc.want)
			}
			if r.Offset() != tc.after {
				t.Errorf("Offset: got %d, want %d", r.Offset(), tc.after)
			}
		})
	}
}

func TestNulStringInvalidUTF8(t *testing.T) {
	r := binreader.New([]byte{0xff, 0xfe, 0x00})
	if s, err := r.NulString(-1); err == nil {
		t.Errorf("NulString: got %q, want error", s)
	}
}

func TestWindow(t *testing.T) {
	r := binreader.New([]byte{0, 1, 2, 3, 4, 5})
	w, err := r.Window(2, 3)
	if err != nil {
		t.Fatalf("Window: unexpected error: %v", err)
	}
	if w.Len() != 3 {
		t.Errorf("window Len: got %d, want 3", w.Len())
	}
	b, err := w.Bytes(3)
	if err != nil {
		t.Fatalf("Bytes: unexpected error: %v", err)
	}
	if b[0] != 2 || b[2] != 4 {
		t.Errorf("window contents: got %v, want [2 3 4]", b)
	}
	if _, err := r.Window(4, 3); err == nil {
		t.Error("Window(4, 3): got nil, want out-of-range error")
	}
	if _, err := r.Window(-1, 2); err == nil {
		t.Error("Window(-1, 2): got nil, want out-of-range error")
	}
}

func TestEnsureAndSeek(t *testing.T) {
	r := binreader.New(make([]byte, 10))
	if err := r.Ensure(10); err != nil {
		t.Errorf("Ensure(10): unexpected error: %v", err)
	}
	if err := r.Ensure(11); err == nil {
		t.Error("Ensure(11): got nil, want error")
	}
	if err := r.Seek(8); err != nil {
		t.Errorf("Seek(8): unexpected error: %v", err)
	}
	if err := r.Ensure(3); err == nil {
		t.Error("Ensure(3) at offset 8: got nil, want error")
	}
	if err := r.Seek(11); err == nil {
		t.Error("Seek(11): got nil, want error")
	}
}
