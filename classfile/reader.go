// Copyright 2026 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package classfile

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// ParseError reports malformed class file data.
type ParseError struct {
	// Offset is the byte offset in the class file where the problem was
	// detected.
	Offset int
	Msg    string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("malformed class file at offset %d: %s", e.Offset, e.Msg)
}

// reader is a big-endian cursor over class file bytes. Errors are sticky: once
// a read runs past the end, every later read returns zero and err is set.
type reader struct {
	b    []byte
	off  int
	base int // offset of b[0] within the class file, for error reporting
	err  error
}

func newReader(b []byte, base int) *reader {
	return &reader{b: b, base: base}
}

func (r *reader) pos() int {
	return r.base + r.off
}

func (r *reader) failf(format string, v ...interface{}) error {
	if r.err == nil {
		r.err = &ParseError{Offset: r.pos(), Msg: fmt.Sprintf(format, v...)}
	}
	return r.err
}

func (r *reader) need(n int) bool {
	if r.err != nil {
		return false
	}
	if n < 0 || len(r.b)-r.off < n {
		r.failf("unexpected end of data reading %d bytes", n)
		return false
	}
	return true
}

func (r *reader) u1() uint8 {
	if !r.need(1) {
		return 0
	}
	v := r.b[r.off]
	r.off++
	return v
}

func (r *reader) u2() uint16 {
	if !r.need(2) {
		return 0
	}
	v := binary.BigEndian.Uint16(r.b[r.off:])
	r.off += 2
	return v
}

func (r *reader) u4() uint32 {
	if !r.need(4) {
		return 0
	}
	v := binary.BigEndian.Uint32(r.b[r.off:])
	r.off += 4
	return v
}

// bytes returns a copy of the next n bytes.
func (r *reader) bytes(n int) []byte {
	if !r.need(n) {
		return nil
	}
	v := make([]byte, n)
	copy(v, r.b[r.off:])
	r.off += n
	return v
}

// sub returns a reader over the next n bytes and advances past them.
func (r *reader) sub(n int) *reader {
	if !r.need(n) {
		return &reader{err: r.err}
	}
	s := &reader{b: r.b[r.off : r.off+n], base: r.pos()}
	r.off += n
	return s
}

func (r *reader) done() bool {
	return r.off == len(r.b)
}

func put1(w *bytes.Buffer, v uint8) {
	w.WriteByte(v)
}

func put2(w *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	w.Write(b[:])
}

func put4(w *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	w.Write(b[:])
}
