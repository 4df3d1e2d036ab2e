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

import "fmt"

// Opcode is a JVM instruction opcode.
//
// Decoded instructions only ever carry the canonical form of an opcode: the
// implicit-operand variants (ALOAD_0, ISTORE_3, ...) are folded into ALOAD,
// ISTORE and friends with the local index in Instruction.Var, LDC_W is folded
// into LDC, and WIDE prefixes are folded into the instruction they modify.
// The encoder picks the shortest form again.
type Opcode uint8

// Canonical opcodes, see JVMS §6.5.
const (
	NOP             Opcode = 0x00
	ACONST_NULL     Opcode = 0x01
	ICONST_M1       Opcode = 0x02
	ICONST_0        Opcode = 0x03
	ICONST_1        Opcode = 0x04
	ICONST_2        Opcode = 0x05
	ICONST_3        Opcode = 0x06
	ICONST_4        Opcode = 0x07
	ICONST_5        Opcode = 0x08
	LCONST_0        Opcode = 0x09
	LCONST_1        Opcode = 0x0a
	FCONST_0        Opcode = 0x0b
	FCONST_1        Opcode = 0x0c
	FCONST_2        Opcode = 0x0d
	DCONST_0        Opcode = 0x0e
	DCONST_1        Opcode = 0x0f
	BIPUSH          Opcode = 0x10
	SIPUSH          Opcode = 0x11
	LDC             Opcode = 0x12
	LDC2_W          Opcode = 0x14
	ILOAD           Opcode = 0x15
	LLOAD           Opcode = 0x16
	FLOAD           Opcode = 0x17
	DLOAD           Opcode = 0x18
	ALOAD           Opcode = 0x19
	IALOAD          Opcode = 0x2e
	LALOAD          Opcode = 0x2f
	FALOAD          Opcode = 0x30
	DALOAD          Opcode = 0x31
	AALOAD          Opcode = 0x32
	BALOAD          Opcode = 0x33
	CALOAD          Opcode = 0x34
	SALOAD          Opcode = 0x35
	ISTORE          Opcode = 0x36
	LSTORE          Opcode = 0x37
	FSTORE          Opcode = 0x38
	DSTORE          Opcode = 0x39
	ASTORE          Opcode = 0x3a
	IASTORE         Opcode = 0x4f
	LASTORE         Opcode = 0x50
	FASTORE         Opcode = 0x51
	DASTORE         Opcode = 0x52
	AASTORE         Opcode = 0x53
	BASTORE         Opcode = 0x54
	CASTORE         Opcode = 0x55
	SASTORE         Opcode = 0x56
	POP             Opcode = 0x57
	POP2            Opcode = 0x58
	DUP             Opcode = 0x59
	DUP_X1          Opcode = 0x5a
	DUP_X2          Opcode = 0x5b
	DUP2            Opcode = 0x5c
	DUP2_X1         Opcode = 0x5d
	DUP2_X2         Opcode = 0x5e
	SWAP            Opcode = 0x5f
	IADD            Opcode = 0x60
	LADD            Opcode = 0x61
	FADD            Opcode = 0x62
	DADD            Opcode = 0x63
	ISUB            Opcode = 0x64
	LSUB            Opcode = 0x65
	FSUB            Opcode = 0x66
	DSUB            Opcode = 0x67
	IMUL            Opcode = 0x68
	LMUL            Opcode = 0x69
	FMUL            Opcode = 0x6a
	DMUL            Opcode = 0x6b
	IDIV            Opcode = 0x6c
	LDIV            Opcode = 0x6d
	FDIV            Opcode = 0x6e
	DDIV            Opcode = 0x6f
	IREM            Opcode = 0x70
	LREM            Opcode = 0x71
	FREM            Opcode = 0x72
	DREM            Opcode = 0x73
	INEG            Opcode = 0x74
	LNEG            Opcode = 0x75
	FNEG            Opcode = 0x76
	DNEG            Opcode = 0x77
	ISHL            Opcode = 0x78
	LSHL            Opcode = 0x79
	ISHR            Opcode = 0x7a
	LSHR            Opcode = 0x7b
	IUSHR           Opcode = 0x7c
	LUSHR           Opcode = 0x7d
	IAND            Opcode = 0x7e
	LAND            Opcode = 0x7f
	IOR             Opcode = 0x80
	LOR             Opcode = 0x81
	IXOR            Opcode = 0x82
	LXOR            Opcode = 0x83
	IINC            Opcode = 0x84
	I2L             Opcode = 0x85
	I2F             Opcode = 0x86
	I2D             Opcode = 0x87
	L2I             Opcode = 0x88
	L2F             Opcode = 0x89
	L2D             Opcode = 0x8a
	F2I             Opcode = 0x8b
	F2L             Opcode = 0x8c
	F2D             Opcode = 0x8d
	D2I             Opcode = 0x8e
	D2L             Opcode = 0x8f
	D2F             Opcode = 0x90
	I2B             Opcode = 0x91
	I2C             Opcode = 0x92
	I2S             Opcode = 0x93
	LCMP            Opcode = 0x94
	FCMPL           Opcode = 0x95
	FCMPG           Opcode = 0x96
	DCMPL           Opcode = 0x97
	DCMPG           Opcode = 0x98
	IFEQ            Opcode = 0x99
	IFNE            Opcode = 0x9a
	IFLT            Opcode = 0x9b
	IFGE            Opcode = 0x9c
	IFGT            Opcode = 0x9d
	IFLE            Opcode = 0x9e
	IF_ICMPEQ       Opcode = 0x9f
	IF_ICMPNE       Opcode = 0xa0
	IF_ICMPLT       Opcode = 0xa1
	IF_ICMPGE       Opcode = 0xa2
	IF_ICMPGT       Opcode = 0xa3
	IF_ICMPLE       Opcode = 0xa4
	IF_ACMPEQ       Opcode = 0xa5
	IF_ACMPNE       Opcode = 0xa6
	GOTO            Opcode = 0xa7
	JSR             Opcode = 0xa8
	RET             Opcode = 0xa9
	TABLESWITCH     Opcode = 0xaa
	LOOKUPSWITCH    Opcode = 0xab
	IRETURN         Opcode = 0xac
	LRETURN         Opcode = 0xad
	FRETURN         Opcode = 0xae
	DRETURN         Opcode = 0xaf
	ARETURN         Opcode = 0xb0
	RETURN          Opcode = 0xb1
	GETSTATIC       Opcode = 0xb2
	PUTSTATIC       Opcode = 0xb3
	GETFIELD        Opcode = 0xb4
	PUTFIELD        Opcode = 0xb5
	INVOKEVIRTUAL   Opcode = 0xb6
	INVOKESPECIAL   Opcode = 0xb7
	INVOKESTATIC    Opcode = 0xb8
	INVOKEINTERFACE Opcode = 0xb9
	INVOKEDYNAMIC   Opcode = 0xba
	NEW             Opcode = 0xbb
	NEWARRAY        Opcode = 0xbc
	ANEWARRAY       Opcode = 0xbd
	ARRAYLENGTH     Opcode = 0xbe
	ATHROW          Opcode = 0xbf
	CHECKCAST       Opcode = 0xc0
	INSTANCEOF      Opcode = 0xc1
	MONITORENTER    Opcode = 0xc2
	MONITOREXIT     Opcode = 0xc3
	MULTIANEWARRAY  Opcode = 0xc5
	IFNULL          Opcode = 0xc6
	IFNONNULL       Opcode = 0xc7
	GOTO_W          Opcode = 0xc8
	JSR_W           Opcode = 0xc9
)

// Raw opcodes that never appear in a decoded Instruction.
const (
	opLDC_W    = 0x13
	opILOAD_0  = 0x1a
	opALOAD_3  = 0x2d
	opISTORE_0 = 0x3b
	opASTORE_3 = 0x4e
	opWIDE     = 0xc4
)

var opNames = map[Opcode]string{
	NOP: "NOP", ACONST_NULL: "ACONST_NULL", ICONST_M1: "ICONST_M1", ICONST_0: "ICONST_0",
	ICONST_1: "ICONST_1", ICONST_2: "ICONST_2", ICONST_3: "ICONST_3", ICONST_4: "ICONST_4",
	ICONST_5: "ICONST_5", LCONST_0: "LCONST_0", LCONST_1: "LCONST_1", FCONST_0: "FCONST_0",
	FCONST_1: "FCONST_1", FCONST_2: "FCONST_2", DCONST_0: "DCONST_0", DCONST_1: "DCONST_1",
	BIPUSH: "BIPUSH", SIPUSH: "SIPUSH", LDC: "LDC", LDC2_W: "LDC2_W",
	ILOAD: "ILOAD", LLOAD: "LLOAD", FLOAD: "FLOAD", DLOAD: "DLOAD", ALOAD: "ALOAD",
	IALOAD: "IALOAD", LALOAD: "LALOAD", FALOAD: "FALOAD", DALOAD: "DALOAD",
	AALOAD: "AALOAD", BALOAD: "BALOAD", CALOAD: "CALOAD", SALOAD: "SALOAD",
	ISTORE: "ISTORE", LSTORE: "LSTORE", FSTORE: "FSTORE", DSTORE: "DSTORE", ASTORE: "ASTORE",
	IASTORE: "IASTORE", LASTORE: "LASTORE", FASTORE: "FASTORE", DASTORE: "DASTORE",
	AASTORE: "AASTORE", BASTORE: "BASTORE", CASTORE: "CASTORE", SASTORE: "SASTORE",
	POP: "POP", POP2: "POP2", DUP: "DUP", DUP_X1: "DUP_X1", DUP_X2: "DUP_X2",
	DUP2: "DUP2", DUP2_X1: "DUP2_X1", DUP2_X2: "DUP2_X2", SWAP: "SWAP",
	IADD: "IADD", LADD: "LADD", FADD: "FADD", DADD: "DADD",
	ISUB: "ISUB", LSUB: "LSUB", FSUB: "FSUB", DSUB: "DSUB",
	IMUL: "IMUL", LMUL: "LMUL", FMUL: "FMUL", DMUL: "DMUL",
	IDIV: "IDIV", LDIV: "LDIV", FDIV: "FDIV", DDIV: "DDIV",
	IREM: "IREM", LREM: "LREM", FREM: "FREM", DREM: "DREM",
	INEG: "INEG", LNEG: "LNEG", FNEG: "FNEG", DNEG: "DNEG",
	ISHL: "ISHL", LSHL: "LSHL", ISHR: "ISHR", LSHR: "LSHR", IUSHR: "IUSHR", LUSHR: "LUSHR",
	IAND: "IAND", LAND: "LAND", IOR: "IOR", LOR: "LOR", IXOR: "IXOR", LXOR: "LXOR",
	IINC: "IINC", I2L: "I2L", I2F: "I2F", I2D: "I2D", L2I: "L2I", L2F: "L2F", L2D: "L2D",
	F2I: "F2I", F2L: "F2L", F2D: "F2D", D2I: "D2I", D2L: "D2L", D2F: "D2F",
	I2B: "I2B", I2C: "I2C", I2S: "I2S", LCMP: "LCMP",
	FCMPL: "FCMPL", FCMPG: "FCMPG", DCMPL: "DCMPL", DCMPG: "DCMPG",
	IFEQ: "IFEQ", IFNE: "IFNE", IFLT: "IFLT", IFGE: "IFGE", IFGT: "IFGT", IFLE: "IFLE",
	IF_ICMPEQ: "IF_ICMPEQ", IF_ICMPNE: "IF_ICMPNE", IF_ICMPLT: "IF_ICMPLT",
	IF_ICMPGE: "IF_ICMPGE", IF_ICMPGT: "IF_ICMPGT", IF_ICMPLE: "IF_ICMPLE",
	IF_ACMPEQ: "IF_ACMPEQ", IF_ACMPNE: "IF_ACMPNE", GOTO: "GOTO", JSR: "JSR", RET: "RET",
	TABLESWITCH: "TABLESWITCH", LOOKUPSWITCH: "LOOKUPSWITCH",
	IRETURN: "IRETURN", LRETURN: "LRETURN", FRETURN: "FRETURN", DRETURN: "DRETURN",
	ARETURN: "ARETURN", RETURN: "RETURN",
	GETSTATIC: "GETSTATIC", PUTSTATIC: "PUTSTATIC", GETFIELD: "GETFIELD", PUTFIELD: "PUTFIELD",
	INVOKEVIRTUAL: "INVOKEVIRTUAL", INVOKESPECIAL: "INVOKESPECIAL", INVOKESTATIC: "INVOKESTATIC",
	INVOKEINTERFACE: "INVOKEINTERFACE", INVOKEDYNAMIC: "INVOKEDYNAMIC",
	NEW: "NEW", NEWARRAY: "NEWARRAY", ANEWARRAY: "ANEWARRAY", ARRAYLENGTH: "ARRAYLENGTH",
	ATHROW: "ATHROW", CHECKCAST: "CHECKCAST", INSTANCEOF: "INSTANCEOF",
	MONITORENTER: "MONITORENTER", MONITOREXIT: "MONITOREXIT", MULTIANEWARRAY: "MULTIANEWARRAY",
	IFNULL: "IFNULL", IFNONNULL: "IFNONNULL", GOTO_W: "GOTO_W", JSR_W: "JSR_W",
}

func (op Opcode) String() string {
	if s, ok := opNames[op]; ok {
		return s
	}
	return fmt.Sprintf("OP_%#02x", uint8(op))
}

// valid reports whether op is a canonical opcode.
func (op Opcode) valid() bool {
	_, ok := opNames[op]
	return ok
}

func (op Opcode) isLoad() bool  { return op >= ILOAD && op <= ALOAD }
func (op Opcode) isStore() bool { return op >= ISTORE && op <= ASTORE }
func (op Opcode) isField() bool { return op >= GETSTATIC && op <= PUTFIELD }

// isJump reports whether op takes a single relative branch offset.
func (op Opcode) isJump() bool {
	return (op >= IFEQ && op <= JSR) || op == IFNULL || op == IFNONNULL || op == GOTO_W || op == JSR_W
}

func (op Opcode) isInvoke() bool { return op >= INVOKEVIRTUAL && op <= INVOKEDYNAMIC }

func (op Opcode) isTypeOp() bool {
	return op == NEW || op == ANEWARRAY || op == CHECKCAST || op == INSTANCEOF || op == MULTIANEWARRAY
}
