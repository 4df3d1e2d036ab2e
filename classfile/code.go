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

// Code attribute names this package understands.
const (
	attrCode                   = "Code"
	attrLineNumberTable        = "LineNumberTable"
	attrLocalVariableTable     = "LocalVariableTable"
	attrLocalVariableTypeTable = "LocalVariableTypeTable"
	attrStackMapTable          = "StackMapTable"
)

// maxCodeLength is the exclusive upper bound of code_length (JVMS §4.7.3).
const maxCodeLength = 65536

// Handler is an exception table entry. Start, End and Handler are instruction
// indices; End may equal the number of instructions.
type Handler struct {
	Start, End, Handler int
	// CatchType is the raw constant pool index of the caught class, or 0
	// for any exception.
	CatchType uint16
}

// LineNumber maps the instruction at index Start to a source line.
type LineNumber struct {
	Start int
	Line  uint16
}

// LocalVar is a LocalVariableTable or LocalVariableTypeTable entry covering
// instructions [Start, End).
type LocalVar struct {
	Start, End int
	NameIndex  uint16
	DescIndex  uint16
	Index      uint16
}

// Code is the body of a method.
//
// The instruction sequence can be edited in place with Replace, which keeps
// every index stable, or discarded wholesale with Reset. Untouched bodies are
// written back byte for byte.
type Code struct {
	MaxStack  uint16
	MaxLocals uint16

	insns      []Instruction
	handlers   []Handler
	lines      []LineNumber
	locals     []LocalVar
	localTypes []LocalVar
	frames     []Frame

	raw      []byte // original attribute body
	modified bool
}

// Len returns the number of instructions.
func (c *Code) Len() int {
	return len(c.insns)
}

// At returns the instruction at index i.
func (c *Code) At(i int) Instruction {
	return c.insns[i]
}

// Instructions returns a copy of the instruction sequence.
func (c *Code) Instructions() []Instruction {
	return append([]Instruction(nil), c.insns...)
}

// Handlers returns a copy of the exception table.
func (c *Code) Handlers() []Handler {
	return append([]Handler(nil), c.handlers...)
}

// Replace overwrites the instruction at index i. Branches, exception handlers,
// debug tables and stack map frames that pointed at the old instruction now
// point at in.
func (c *Code) Replace(i int, in Instruction) {
	c.insns[i] = in
	c.modified = true
}

// Reset replaces the whole body with insns. The exception table, debug tables
// and stack map frames are discarded since they described the old body.
func (c *Code) Reset(insns ...Instruction) {
	c.insns = append([]Instruction(nil), insns...)
	c.handlers = nil
	c.lines = nil
	c.locals = nil
	c.localTypes = nil
	c.frames = nil
	c.modified = true
}

// Modified reports whether the body was edited since it was parsed.
func (c *Code) Modified() bool {
	return c.modified
}

func decodeCode(p *pool, r *reader) (*Code, error) {
	c := &Code{raw: append([]byte(nil), r.b...)}
	c.MaxStack = r.u2()
	c.MaxLocals = r.u2()
	n := int(r.u4())
	if r.err == nil && (n == 0 || n >= maxCodeLength) {
		return nil, r.failf("invalid code length %d", n)
	}
	cr := r.sub(n)
	if r.err != nil {
		return nil, r.err
	}
	insns, index, err := decodeInstructions(p, cr)
	if err != nil {
		return nil, err
	}
	c.insns = insns

	// at maps a byte offset to an instruction index. end allows the offset
	// one past the last instruction.
	at := func(off int, end bool) (int, error) {
		if off == n && end {
			return len(insns), nil
		}
		if off < 0 || off >= n || index[off] < 0 {
			return 0, r.failf("offset %d is not an instruction boundary", off)
		}
		return index[off], nil
	}

	nh := int(r.u2())
	for i := 0; i < nh && r.err == nil; i++ {
		start, end, handler := int(r.u2()), int(r.u2()), int(r.u2())
		catch := r.u2()
		if r.err != nil {
			break
		}
		h := Handler{CatchType: catch}
		if h.Start, err = at(start, false); err != nil {
			return nil, err
		}
		if h.End, err = at(end, true); err != nil {
			return nil, err
		}
		if h.Handler, err = at(handler, false); err != nil {
			return nil, err
		}
		c.handlers = append(c.handlers, h)
	}

	na := int(r.u2())
	for i := 0; i < na && r.err == nil; i++ {
		nameIdx := r.u2()
		ar := r.sub(int(r.u4()))
		if r.err != nil {
			break
		}
		name, err := p.utf8(nameIdx)
		if err != nil {
			return nil, &ParseError{Offset: ar.base, Msg: err.Error()}
		}
		switch name {
		case attrLineNumberTable:
			cnt := int(ar.u2())
			for j := 0; j < cnt && ar.err == nil; j++ {
				pc, line := int(ar.u2()), ar.u2()
				if ar.err != nil {
					break
				}
				start, err := at(pc, false)
				if err != nil {
					return nil, err
				}
				c.lines = append(c.lines, LineNumber{Start: start, Line: line})
			}
		case attrLocalVariableTable, attrLocalVariableTypeTable:
			cnt := int(ar.u2())
			var vars []LocalVar
			for j := 0; j < cnt && ar.err == nil; j++ {
				pc, length := int(ar.u2()), int(ar.u2())
				v := LocalVar{NameIndex: ar.u2(), DescIndex: ar.u2(), Index: ar.u2()}
				if ar.err != nil {
					break
				}
				if v.Start, err = at(pc, true); err != nil {
					return nil, err
				}
				if v.End, err = at(pc+length, true); err != nil {
					return nil, err
				}
				vars = append(vars, v)
			}
			if name == attrLocalVariableTable {
				c.locals = append(c.locals, vars...)
			} else {
				c.localTypes = append(c.localTypes, vars...)
			}
		case attrStackMapTable:
			frames, err := decodeFrames(ar, at)
			if err != nil {
				return nil, err
			}
			c.frames = append(c.frames, frames...)
		default:
			// Other attributes (type annotations and the like) are kept
			// in raw and only survive while the body is unmodified.
			ar.off = len(ar.b)
		}
		if ar.err != nil {
			return nil, ar.err
		}
		if !ar.done() {
			return nil, ar.failf("%d trailing bytes in %s attribute", len(ar.b)-ar.off, name)
		}
	}
	if r.err != nil {
		return nil, r.err
	}
	if !r.done() {
		return nil, r.failf("%d trailing bytes in Code attribute", len(r.b)-r.off)
	}
	return c, nil
}

// decodeInstructions decodes a code array. It returns the instructions and a
// table mapping each byte offset to the index of the instruction starting
// there, or -1.
func decodeInstructions(p *pool, r *reader) ([]Instruction, []int, error) {
	n := len(r.b)
	index := make([]int, n)
	for i := range index {
		index[i] = -1
	}
	var (
		insns   []Instruction
		offsets []int
	)
	for !r.done() && r.err == nil {
		pc := r.off
		index[pc] = len(insns)
		offsets = append(offsets, pc)
		in, err := decodeInstruction(p, r, pc)
		if err != nil {
			return nil, nil, err
		}
		insns = append(insns, in)
	}
	if r.err != nil {
		return nil, nil, r.err
	}

	// Branch operands were decoded as absolute byte offsets; turn them into
	// instruction indices.
	target := func(i, off int) (int, error) {
		if off < 0 || off >= n || index[off] < 0 {
			return 0, &ParseError{Offset: r.base + offsets[i], Msg: fmt.Sprintf("branch to offset %d is not an instruction boundary", off)}
		}
		return index[off], nil
	}
	for i := range insns {
		in := &insns[i]
		var err error
		switch {
		case in.Op.isJump():
			in.Target, err = target(i, in.Target)
		case in.Op == TABLESWITCH || in.Op == LOOKUPSWITCH:
			if in.Default, err = target(i, in.Default); err != nil {
				break
			}
			for j, t := range in.Targets {
				if in.Targets[j], err = target(i, t); err != nil {
					break
				}
			}
		}
		if err != nil {
			return nil, nil, err
		}
	}
	return insns, index, nil
}

func decodeInstruction(p *pool, r *reader, pc int) (Instruction, error) {
	raw := r.u1()
	op := Opcode(raw)
	in := Instruction{Op: op}
	switch {
	case raw >= opILOAD_0 && raw <= opALOAD_3:
		in.Op = ILOAD + Opcode((raw-opILOAD_0)/4)
		in.Var = int((raw - opILOAD_0) % 4)
	case raw >= opISTORE_0 && raw <= opASTORE_3:
		in.Op = ISTORE + Opcode((raw-opISTORE_0)/4)
		in.Var = int((raw - opISTORE_0) % 4)
	case raw == opLDC_W:
		in.Op = LDC
		in.Index = r.u2()
	case raw == opWIDE:
		in.Op = Opcode(r.u1())
		switch {
		case in.Op.isLoad() || in.Op.isStore() || in.Op == RET:
			in.Var = int(r.u2())
		case in.Op == IINC:
			in.Var = int(r.u2())
			in.Value = int32(int16(r.u2()))
		default:
			if r.err != nil {
				return in, r.err
			}
			return in, r.failf("invalid wide opcode %s at pc %d", in.Op, pc)
		}
	case op.isLoad() || op.isStore() || op == RET:
		in.Var = int(r.u1())
	case op == IINC:
		in.Var = int(r.u1())
		in.Value = int32(int8(r.u1()))
	case op == BIPUSH:
		in.Value = int32(int8(r.u1()))
	case op == SIPUSH:
		in.Value = int32(int16(r.u2()))
	case op == NEWARRAY:
		in.Value = int32(r.u1())
	case op == LDC:
		in.Index = uint16(r.u1())
	case op == LDC2_W:
		in.Index = r.u2()
	case op.isField() || (op.isInvoke() && op != INVOKEDYNAMIC):
		in.ref = r.u2()
		if op == INVOKEINTERFACE {
			r.u1() // count, recomputed from the descriptor when encoding
			r.u1()
		}
		if r.err != nil {
			return in, r.err
		}
		tag, owner, name, desc, err := p.member(in.ref)
		if err != nil {
			return in, &ParseError{Offset: r.pos(), Msg: fmt.Sprintf("%s at pc %d: %v", op, pc, err)}
		}
		if op.isField() != (tag == TagFieldref) {
			return in, &ParseError{Offset: r.pos(), Msg: fmt.Sprintf("%s at pc %d references constant with tag %d", op, pc, tag)}
		}
		in.Owner, in.Name, in.Desc = owner, name, desc
		in.Interface = tag == TagInterfaceMethodref
	case op == INVOKEDYNAMIC:
		in.Index = r.u2()
		r.u2()
	case op.isTypeOp():
		in.ref = r.u2()
		if op == MULTIANEWARRAY {
			in.Value = int32(r.u1())
		}
		if r.err != nil {
			return in, r.err
		}
		name, err := p.className(in.ref)
		if err != nil {
			return in, &ParseError{Offset: r.pos(), Msg: fmt.Sprintf("%s at pc %d: %v", op, pc, err)}
		}
		in.Class = name
	case op == GOTO_W || op == JSR_W:
		in.Target = pc + int(int32(r.u4()))
	case op.isJump():
		in.Target = pc + int(int16(r.u2()))
	case op == TABLESWITCH || op == LOOKUPSWITCH:
		r.off += padding(pc)
		if r.off > len(r.b) {
			return in, r.failf("truncated %s at pc %d", op, pc)
		}
		in.Default = pc + int(int32(r.u4()))
		if op == TABLESWITCH {
			low, high := int32(r.u4()), int32(r.u4())
			if r.err == nil && high < low {
				return in, r.failf("tableswitch at pc %d has high %d < low %d", pc, high, low)
			}
			cnt := int64(high) - int64(low) + 1
			if r.err == nil && cnt*4 > int64(len(r.b)-r.off) {
				return in, r.failf("truncated tableswitch at pc %d", pc)
			}
			in.Low = low
			for j := int64(0); j < cnt && r.err == nil; j++ {
				in.Targets = append(in.Targets, pc+int(int32(r.u4())))
			}
		} else {
			npairs := int(int32(r.u4()))
			if r.err == nil && (npairs < 0 || npairs*8 > len(r.b)-r.off) {
				return in, r.failf("truncated lookupswitch at pc %d", pc)
			}
			for j := 0; j < npairs && r.err == nil; j++ {
				in.Keys = append(in.Keys, int32(r.u4()))
				in.Targets = append(in.Targets, pc+int(int32(r.u4())))
			}
		}
	case !op.valid():
		return in, &ParseError{Offset: r.pos() - 1, Msg: fmt.Sprintf("unknown opcode %#02x at pc %d", raw, pc)}
	}
	return in, r.err
}

// padding returns the number of alignment bytes following a switch opcode at
// pc.
func padding(pc int) int {
	return (4 - (pc+1)%4) % 4
}

// size returns the encoded length of in when placed at byte offset pc.
func (in Instruction) size(pc int) int {
	op := in.Op
	switch {
	case op.isLoad() || op.isStore():
		switch {
		case in.Var <= 3:
			return 1
		case in.Var <= 0xff:
			return 2
		}
		return 4
	case op == RET:
		if in.Var <= 0xff {
			return 2
		}
		return 4
	case op == IINC:
		if in.Var <= 0xff && in.Value >= -128 && in.Value <= 127 {
			return 3
		}
		return 6
	case op == BIPUSH || op == NEWARRAY:
		return 2
	case op == LDC:
		if in.Index <= 0xff {
			return 2
		}
		return 3
	case op == SIPUSH || op == LDC2_W || op.isField() || op == NEW || op == ANEWARRAY ||
		op == CHECKCAST || op == INSTANCEOF:
		return 3
	case op == INVOKEVIRTUAL || op == INVOKESPECIAL || op == INVOKESTATIC:
		return 3
	case op == INVOKEINTERFACE || op == INVOKEDYNAMIC:
		return 5
	case op == MULTIANEWARRAY:
		return 4
	case op == GOTO_W || op == JSR_W:
		return 5
	case op.isJump():
		return 3
	case op == TABLESWITCH:
		return 1 + padding(pc) + 12 + 4*len(in.Targets)
	case op == LOOKUPSWITCH:
		return 1 + padding(pc) + 8 + 8*len(in.Keys)
	}
	return 1
}

// layout assigns byte offsets to every instruction. The extra trailing entry
// is the code length.
func layout(insns []Instruction) []int {
	offs := make([]int, len(insns)+1)
	pc := 0
	for i, in := range insns {
		offs[i] = pc
		pc += in.size(pc)
	}
	offs[len(insns)] = pc
	return offs
}

func (in *Instruction) encode(w *bytes.Buffer, p *pool, i int, offs []int) error {
	op := in.Op
	pc := offs[i]
	// branch returns the relative offset to instruction t.
	branch := func(t int) (int, error) {
		if t < 0 || t >= len(offs)-1 {
			return 0, fmt.Errorf("%s at L%d: branch target L%d out of range", op, i, t)
		}
		return offs[t] - pc, nil
	}
	switch {
	case op.isLoad() || op.isStore():
		if in.Var < 0 || in.Var > 0xffff {
			return fmt.Errorf("%s at L%d: local %d out of range", op, i, in.Var)
		}
		switch {
		case in.Var <= 3:
			if op.isLoad() {
				put1(w, opILOAD_0+uint8(op-ILOAD)*4+uint8(in.Var))
			} else {
				put1(w, opISTORE_0+uint8(op-ISTORE)*4+uint8(in.Var))
			}
		case in.Var <= 0xff:
			put1(w, uint8(op))
			put1(w, uint8(in.Var))
		default:
			put1(w, opWIDE)
			put1(w, uint8(op))
			put2(w, uint16(in.Var))
		}
	case op == RET:
		if in.Var < 0 || in.Var > 0xffff {
			return fmt.Errorf("%s at L%d: local %d out of range", op, i, in.Var)
		}
		if in.Var <= 0xff {
			put1(w, uint8(op))
			put1(w, uint8(in.Var))
		} else {
			put1(w, opWIDE)
			put1(w, uint8(op))
			put2(w, uint16(in.Var))
		}
	case op == IINC:
		if in.Var < 0 || in.Var > 0xffff || in.Value < -32768 || in.Value > 32767 {
			return fmt.Errorf("%s at L%d: operands out of range", op, i)
		}
		if in.Var <= 0xff && in.Value >= -128 && in.Value <= 127 {
			put1(w, uint8(op))
			put1(w, uint8(in.Var))
			put1(w, uint8(int8(in.Value)))
		} else {
			put1(w, opWIDE)
			put1(w, uint8(op))
			put2(w, uint16(in.Var))
			put2(w, uint16(int16(in.Value)))
		}
	case op == BIPUSH:
		put1(w, uint8(op))
		put1(w, uint8(int8(in.Value)))
	case op == NEWARRAY:
		put1(w, uint8(op))
		put1(w, uint8(in.Value))
	case op == SIPUSH:
		put1(w, uint8(op))
		put2(w, uint16(int16(in.Value)))
	case op == LDC:
		if in.Index <= 0xff {
			put1(w, uint8(op))
			put1(w, uint8(in.Index))
		} else {
			put1(w, opLDC_W)
			put2(w, in.Index)
		}
	case op == LDC2_W:
		put1(w, uint8(op))
		put2(w, in.Index)
	case op.isField() || (op.isInvoke() && op != INVOKEDYNAMIC):
		tag := TagMethodref
		switch {
		case op.isField():
			tag = TagFieldref
		case in.Interface || op == INVOKEINTERFACE:
			tag = TagInterfaceMethodref
		}
		idx := in.ref
		if !p.isMember(idx, tag, in.Owner, in.Name, in.Desc) {
			var err error
			if idx, err = p.addMember(tag, in.Owner, in.Name, in.Desc); err != nil {
				return fmt.Errorf("%s at L%d: %v", op, i, err)
			}
		}
		put1(w, uint8(op))
		put2(w, idx)
		if op == INVOKEINTERFACE {
			slots, err := argSlots(in.Desc)
			if err != nil {
				return fmt.Errorf("%s at L%d: %v", op, i, err)
			}
			put1(w, uint8(slots+1))
			put1(w, 0)
		}
	case op == INVOKEDYNAMIC:
		put1(w, uint8(op))
		put2(w, in.Index)
		put2(w, 0)
	case op.isTypeOp():
		idx := in.ref
		if !p.isClass(idx, in.Class) {
			var err error
			if idx, err = p.addClass(in.Class); err != nil {
				return fmt.Errorf("%s at L%d: %v", op, i, err)
			}
		}
		put1(w, uint8(op))
		put2(w, idx)
		if op == MULTIANEWARRAY {
			put1(w, uint8(in.Value))
		}
	case op == GOTO_W || op == JSR_W:
		d, err := branch(in.Target)
		if err != nil {
			return err
		}
		put1(w, uint8(op))
		put4(w, uint32(int32(d)))
	case op.isJump():
		d, err := branch(in.Target)
		if err != nil {
			return err
		}
		if d < -32768 || d > 32767 {
			return fmt.Errorf("%s at L%d: branch offset %d does not fit in 16 bits", op, i, d)
		}
		put1(w, uint8(op))
		put2(w, uint16(int16(d)))
	case op == TABLESWITCH || op == LOOKUPSWITCH:
		if op == LOOKUPSWITCH && len(in.Keys) != len(in.Targets) {
			return fmt.Errorf("%s at L%d: %d keys but %d targets", op, i, len(in.Keys), len(in.Targets))
		}
		put1(w, uint8(op))
		for j := 0; j < padding(pc); j++ {
			put1(w, 0)
		}
		d, err := branch(in.Default)
		if err != nil {
			return err
		}
		put4(w, uint32(int32(d)))
		if op == TABLESWITCH {
			put4(w, uint32(in.Low))
			put4(w, uint32(in.Low+int32(len(in.Targets))-1))
		} else {
			put4(w, uint32(len(in.Keys)))
		}
		for j, t := range in.Targets {
			d, err := branch(t)
			if err != nil {
				return err
			}
			if op == LOOKUPSWITCH {
				put4(w, uint32(in.Keys[j]))
			}
			put4(w, uint32(int32(d)))
		}
	default:
		if !op.valid() {
			return fmt.Errorf("L%d: invalid opcode %#02x", i, uint8(op))
		}
		put1(w, uint8(op))
	}
	return nil
}

// encode serializes the Code attribute body (without name and length).
func (c *Code) encode(p *pool) ([]byte, error) {
	if !c.modified && c.raw != nil {
		return c.raw, nil
	}
	if len(c.insns) == 0 {
		return nil, fmt.Errorf("empty code")
	}
	offs := layout(c.insns)
	codeLen := offs[len(c.insns)]
	if codeLen >= maxCodeLength {
		return nil, fmt.Errorf("code length %d exceeds limit", codeLen)
	}
	var code bytes.Buffer
	for i := range c.insns {
		if err := c.insns[i].encode(&code, p, i, offs); err != nil {
			return nil, err
		}
	}
	if code.Len() != codeLen {
		return nil, fmt.Errorf("encoded %d bytes of code, laid out %d", code.Len(), codeLen)
	}

	valid := func(idx int, end bool) bool {
		if end {
			return idx >= 0 && idx <= len(c.insns)
		}
		return idx >= 0 && idx < len(c.insns)
	}

	var w bytes.Buffer
	put2(&w, c.MaxStack)
	put2(&w, c.MaxLocals)
	put4(&w, uint32(codeLen))
	w.Write(code.Bytes())
	put2(&w, uint16(len(c.handlers)))
	for _, h := range c.handlers {
		if !valid(h.Start, false) || !valid(h.End, true) || !valid(h.Handler, false) {
			return nil, fmt.Errorf("exception handler %+v out of range", h)
		}
		put2(&w, uint16(offs[h.Start]))
		put2(&w, uint16(offs[h.End]))
		put2(&w, uint16(offs[h.Handler]))
		put2(&w, h.CatchType)
	}

	var attrs []Attribute
	if len(c.lines) > 0 {
		var b bytes.Buffer
		put2(&b, uint16(len(c.lines)))
		for _, l := range c.lines {
			if !valid(l.Start, false) {
				return nil, fmt.Errorf("line number entry %+v out of range", l)
			}
			put2(&b, uint16(offs[l.Start]))
			put2(&b, l.Line)
		}
		attrs = append(attrs, Attribute{Name: attrLineNumberTable, Data: b.Bytes()})
	}
	for _, t := range []struct {
		name string
		vars []LocalVar
	}{
		{attrLocalVariableTable, c.locals},
		{attrLocalVariableTypeTable, c.localTypes},
	} {
		if len(t.vars) == 0 {
			continue
		}
		var b bytes.Buffer
		put2(&b, uint16(len(t.vars)))
		for _, v := range t.vars {
			if !valid(v.Start, true) || !valid(v.End, true) || v.End < v.Start {
				return nil, fmt.Errorf("local variable entry %+v out of range", v)
			}
			put2(&b, uint16(offs[v.Start]))
			put2(&b, uint16(offs[v.End]-offs[v.Start]))
			put2(&b, v.NameIndex)
			put2(&b, v.DescIndex)
			put2(&b, v.Index)
		}
		attrs = append(attrs, Attribute{Name: t.name, Data: b.Bytes()})
	}
	if len(c.frames) > 0 {
		data, err := encodeFrames(c.frames, offs)
		if err != nil {
			return nil, err
		}
		attrs = append(attrs, Attribute{Name: attrStackMapTable, Data: data})
	}
	if err := writeAttributes(&w, p, attrs); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}
