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
	"fmt"
)

// FrameKind is the shape of a StackMapTable entry. The compact and extended
// encodings of the same shape share a kind; the encoder picks whichever fits.
type FrameKind uint8

const (
	FrameSame FrameKind = iota
	FrameSameLocals1
	FrameChop
	FrameAppend
	FrameFull
)

// Verification type tags (JVMS §4.7.4).
const (
	VerifyTop               = 0
	VerifyInteger           = 1
	VerifyFloat             = 2
	VerifyDouble            = 3
	VerifyLong              = 4
	VerifyNull              = 5
	VerifyUninitializedThis = 6
	VerifyObject            = 7
	VerifyUninitialized     = 8
)

// VerificationType is one local or stack slot in a frame.
type VerificationType struct {
	Tag uint8
	// Class is the constant pool index of an Object type.
	Class uint16
	// New is the index of the NEW instruction of an Uninitialized type.
	New int
}

// Frame is a stack map frame attached to the instruction at Index.
type Frame struct {
	Kind  FrameKind
	Index int
	// Chop is the number of locals removed by a chop frame.
	Chop   int
	Locals []VerificationType
	Stack  []VerificationType
}

func decodeVerificationTypes(r *reader, n int, at func(int, bool) (int, error)) ([]VerificationType, error) {
	var vs []VerificationType
	for i := 0; i < n && r.err == nil; i++ {
		v := VerificationType{Tag: r.u1()}
		switch v.Tag {
		case VerifyTop, VerifyInteger, VerifyFloat, VerifyDouble, VerifyLong, VerifyNull, VerifyUninitializedThis:
		case VerifyObject:
			v.Class = r.u2()
		case VerifyUninitialized:
			off := int(r.u2())
			if r.err != nil {
				break
			}
			idx, err := at(off, false)
			if err != nil {
				return nil, err
			}
			v.New = idx
		default:
			if r.err != nil {
				break
			}
			return nil, r.failf("unknown verification type %d", v.Tag)
		}
		vs = append(vs, v)
	}
	return vs, r.err
}

func decodeFrames(r *reader, at func(int, bool) (int, error)) ([]Frame, error) {
	n := int(r.u2())
	frames := make([]Frame, 0, n)
	prev := -1
	for i := 0; i < n && r.err == nil; i++ {
		typ := r.u1()
		var (
			f     Frame
			delta int
			err   error
		)
		switch {
		case typ <= 63:
			f.Kind = FrameSame
			delta = int(typ)
		case typ <= 127:
			f.Kind = FrameSameLocals1
			delta = int(typ - 64)
			f.Stack, err = decodeVerificationTypes(r, 1, at)
		case typ == 247:
			f.Kind = FrameSameLocals1
			delta = int(r.u2())
			f.Stack, err = decodeVerificationTypes(r, 1, at)
		case typ >= 248 && typ <= 250:
			f.Kind = FrameChop
			f.Chop = int(251 - typ)
			delta = int(r.u2())
		case typ == 251:
			f.Kind = FrameSame
			delta = int(r.u2())
		case typ >= 252 && typ <= 254:
			f.Kind = FrameAppend
			delta = int(r.u2())
			f.Locals, err = decodeVerificationTypes(r, int(typ-251), at)
		case typ == 255:
			f.Kind = FrameFull
			delta = int(r.u2())
			if f.Locals, err = decodeVerificationTypes(r, int(r.u2()), at); err != nil {
				break
			}
			f.Stack, err = decodeVerificationTypes(r, int(r.u2()), at)
		default:
			return nil, r.failf("reserved stack map frame type %d", typ)
		}
		if err != nil {
			return nil, err
		}
		if r.err != nil {
			break
		}
		off := delta
		if prev >= 0 {
			off = prev + delta + 1
		}
		if f.Index, err = at(off, false); err != nil {
			return nil, err
		}
		prev = off
		frames = append(frames, f)
	}
	return frames, r.err
}

func encodeVerificationTypes(w *bytes.Buffer, vs []VerificationType, offs []int) error {
	for _, v := range vs {
		put1(w, v.Tag)
		switch v.Tag {
		case VerifyObject:
			put2(w, v.Class)
		case VerifyUninitialized:
			if v.New < 0 || v.New >= len(offs)-1 {
				return fmt.Errorf("uninitialized type refers to instruction %d out of range", v.New)
			}
			put2(w, uint16(offs[v.New]))
		}
	}
	return nil
}

// encodeFrames serializes frames against the instruction offsets computed by
// layout.
func encodeFrames(frames []Frame, offs []int) ([]byte, error) {
	var w bytes.Buffer
	put2(&w, uint16(len(frames)))
	prev := -1
	for _, f := range frames {
		if f.Index < 0 || f.Index >= len(offs)-1 {
			return nil, fmt.Errorf("stack map frame at instruction %d out of range", f.Index)
		}
		off := offs[f.Index]
		delta := off
		if prev >= 0 {
			delta = off - prev - 1
		}
		if delta < 0 {
			return nil, fmt.Errorf("stack map frames out of order at instruction %d", f.Index)
		}
		prev = off
		switch f.Kind {
		case FrameSame:
			if delta <= 63 {
				put1(&w, uint8(delta))
			} else {
				put1(&w, 251)
				put2(&w, uint16(delta))
			}
		case FrameSameLocals1:
			if len(f.Stack) != 1 {
				return nil, fmt.Errorf("same_locals_1_stack_item frame at instruction %d has %d stack items", f.Index, len(f.Stack))
			}
			if delta <= 63 {
				put1(&w, uint8(64+delta))
			} else {
				put1(&w, 247)
				put2(&w, uint16(delta))
			}
			if err := encodeVerificationTypes(&w, f.Stack, offs); err != nil {
				return nil, err
			}
		case FrameChop:
			if f.Chop < 1 || f.Chop > 3 {
				return nil, fmt.Errorf("chop frame at instruction %d removes %d locals", f.Index, f.Chop)
			}
			put1(&w, uint8(251-f.Chop))
			put2(&w, uint16(delta))
		case FrameAppend:
			if len(f.Locals) < 1 || len(f.Locals) > 3 {
				return nil, fmt.Errorf("append frame at instruction %d adds %d locals", f.Index, len(f.Locals))
			}
			put1(&w, uint8(251+len(f.Locals)))
			put2(&w, uint16(delta))
			if err := encodeVerificationTypes(&w, f.Locals, offs); err != nil {
				return nil, err
			}
		case FrameFull:
			put1(&w, 255)
			put2(&w, uint16(delta))
			put2(&w, uint16(len(f.Locals)))
			if err := encodeVerificationTypes(&w, f.Locals, offs); err != nil {
				return nil, err
			}
			put2(&w, uint16(len(f.Stack)))
			if err := encodeVerificationTypes(&w, f.Stack, offs); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("unknown frame kind %d", f.Kind)
		}
	}
	return w.Bytes(), nil
}
