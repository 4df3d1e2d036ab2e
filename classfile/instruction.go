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
	"fmt"
	"strings"
)

// Kind is a coarse classification of an instruction.
type Kind int

const (
	KindOther Kind = iota
	KindNop
	KindConst
	KindLoad
	KindStore
	KindDup
	KindNew
	KindInvoke
	KindField
	KindBranch
	KindReturn
)

var kindNames = [...]string{
	KindOther:  "other",
	KindNop:    "nop",
	KindConst:  "const",
	KindLoad:   "load",
	KindStore:  "store",
	KindDup:    "dup",
	KindNew:    "new",
	KindInvoke: "invoke",
	KindField:  "field",
	KindBranch: "branch",
	KindReturn: "return",
}

func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Instruction is one decoded JVM instruction. Which operand fields are
// meaningful depends on Op.
//
// Branch destinations (Target, Default, Targets) are indices into the
// method's instruction sequence, not byte offsets. Byte offsets are only
// computed when the method is encoded.
type Instruction struct {
	Op Opcode

	// Owner, Name and Desc identify the field or method referenced by
	// GETSTATIC..PUTFIELD and INVOKEVIRTUAL..INVOKEINTERFACE.
	Owner, Name, Desc string
	// Interface is set when a method reference is an InterfaceMethodref.
	Interface bool

	// Class is the internal type name operand of NEW, ANEWARRAY, CHECKCAST,
	// INSTANCEOF and MULTIANEWARRAY.
	Class string

	// Var is the local variable index of loads, stores, IINC and RET.
	Var int
	// Value is the immediate of BIPUSH, SIPUSH and NEWARRAY, the increment
	// of IINC and the dimensions of MULTIANEWARRAY.
	Value int32
	// Index is the raw constant pool operand of LDC, LDC2_W and
	// INVOKEDYNAMIC.
	Index uint16

	// Target is the destination of jumps.
	Target int
	// Default, Low, Targets and Keys describe TABLESWITCH and LOOKUPSWITCH.
	Default int
	Low     int32
	Targets []int
	Keys    []int32

	// ref is the constant pool index the operand was decoded from; the
	// encoder reuses it while it still matches the operand.
	ref uint16
}

// Insn returns an instruction without operands.
func Insn(op Opcode) Instruction {
	return Instruction{Op: op}
}

// VarInsn returns a load, store or RET of local variable v.
func VarInsn(op Opcode, v int) Instruction {
	return Instruction{Op: op, Var: v}
}

// IntInsn returns BIPUSH, SIPUSH or NEWARRAY with the given operand.
func IntInsn(op Opcode, v int32) Instruction {
	return Instruction{Op: op, Value: v}
}

// TypeInsn returns NEW, ANEWARRAY, CHECKCAST or INSTANCEOF of class.
func TypeInsn(op Opcode, class string) Instruction {
	return Instruction{Op: op, Class: class}
}

// FieldInsn returns a field access instruction.
func FieldInsn(op Opcode, owner, name, desc string) Instruction {
	return Instruction{Op: op, Owner: owner, Name: name, Desc: desc}
}

// MethodInsn returns a method invocation. INVOKEINTERFACE always refers to an
// interface method.
func MethodInsn(op Opcode, owner, name, desc string) Instruction {
	return Instruction{Op: op, Owner: owner, Name: name, Desc: desc, Interface: op == INVOKEINTERFACE}
}

// JumpInsn returns a jump to the instruction at index target.
func JumpInsn(op Opcode, target int) Instruction {
	return Instruction{Op: op, Target: target}
}

// Kind classifies the instruction.
func (in Instruction) Kind() Kind {
	op := in.Op
	switch {
	case op == NOP:
		return KindNop
	case op >= ACONST_NULL && op <= LDC2_W:
		return KindConst
	case op.isLoad():
		return KindLoad
	case op.isStore():
		return KindStore
	case op >= DUP && op <= DUP2_X2:
		return KindDup
	case op == NEW:
		return KindNew
	case op.isInvoke():
		return KindInvoke
	case op.isField():
		return KindField
	case op.isJump() || op == RET || op == TABLESWITCH || op == LOOKUPSWITCH:
		return KindBranch
	case op >= IRETURN && op <= RETURN:
		return KindReturn
	}
	return KindOther
}

// Calls reports whether the instruction invokes owner.name with descriptor
// desc.
func (in Instruction) Calls(owner, name, desc string) bool {
	return in.Op.isInvoke() && in.Op != INVOKEDYNAMIC && in.Owner == owner && in.Name == name && in.Desc == desc
}

// String renders the instruction in a javap-like form. Branch destinations
// are printed as instruction indices.
func (in Instruction) String() string {
	op := in.Op
	switch {
	case op.isField():
		return fmt.Sprintf("%s %s.%s:%s", op, in.Owner, in.Name, in.Desc)
	case op.isInvoke() && op != INVOKEDYNAMIC:
		s := fmt.Sprintf("%s %s.%s%s", op, in.Owner, in.Name, in.Desc)
		if in.Interface && op != INVOKEINTERFACE {
			s += " (itf)"
		}
		return s
	case op.isTypeOp():
		if op == MULTIANEWARRAY {
			return fmt.Sprintf("%s %s %d", op, in.Class, in.Value)
		}
		return fmt.Sprintf("%s %s", op, in.Class)
	case op.isLoad() || op.isStore() || op == RET:
		return fmt.Sprintf("%s %d", op, in.Var)
	case op == IINC:
		return fmt.Sprintf("%s %d %d", op, in.Var, in.Value)
	case op == BIPUSH || op == SIPUSH || op == NEWARRAY:
		return fmt.Sprintf("%s %d", op, in.Value)
	case op == LDC || op == LDC2_W || op == INVOKEDYNAMIC:
		return fmt.Sprintf("%s #%d", op, in.Index)
	case op.isJump():
		return fmt.Sprintf("%s L%d", op, in.Target)
	case op == TABLESWITCH:
		return fmt.Sprintf("%s %d [%s] default L%d", op, in.Low, labels(in.Targets), in.Default)
	case op == LOOKUPSWITCH:
		pairs := make([]string, len(in.Keys))
		for i, k := range in.Keys {
			t := -1
			if i < len(in.Targets) {
				t = in.Targets[i]
			}
			pairs[i] = fmt.Sprintf("%d:L%d", k, t)
		}
		return fmt.Sprintf("%s [%s] default L%d", op, strings.Join(pairs, " "), in.Default)
	}
	return op.String()
}

func labels(targets []int) string {
	s := make([]string, len(targets))
	for i, t := range targets {
		s[i] = fmt.Sprintf("L%d", t)
	}
	return strings.Join(s, " ")
}

// Disassemble renders instructions one per line, prefixed with their index.
func Disassemble(insns []Instruction) []string {
	lines := make([]string, len(insns))
	for i, in := range insns {
		lines[i] = fmt.Sprintf("L%d: %s", i, in)
	}
	return lines
}

// argSlots returns the number of local slots taken by the parameters of a
// method descriptor.
func argSlots(desc string) (int, error) {
	if !strings.HasPrefix(desc, "(") {
		return 0, fmt.Errorf("bad method descriptor %q", desc)
	}
	n := 0
	for i := 1; i < len(desc); i++ {
		switch desc[i] {
		case ')':
			return n, nil
		case 'J', 'D':
			n += 2
		case 'B', 'C', 'F', 'I', 'S', 'Z':
			n++
		case 'L':
			end := strings.IndexByte(desc[i:], ';')
			if end < 0 {
				return 0, fmt.Errorf("bad method descriptor %q", desc)
			}
			i += end
			n++
		case '[':
			for i < len(desc) && desc[i] == '[' {
				i++
			}
			if i < len(desc) && desc[i] == 'L' {
				end := strings.IndexByte(desc[i:], ';')
				if end < 0 {
					return 0, fmt.Errorf("bad method descriptor %q", desc)
				}
				i += end
			}
			n++
		default:
			return 0, fmt.Errorf("bad method descriptor %q", desc)
		}
	}
	return 0, fmt.Errorf("bad method descriptor %q", desc)
}
