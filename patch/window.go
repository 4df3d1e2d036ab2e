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

package patch

import (
	"fmt"
	"strings"

	"github.com/google/classpatch/classfile"
)

// Matcher is a predicate on a single instruction.
type Matcher struct {
	// Desc describes the expected instruction in error messages.
	Desc  string
	Match func(classfile.Instruction) bool
}

// Op matches any instruction with the given opcode.
func Op(op classfile.Opcode) Matcher {
	return Matcher{
		Desc:  op.String(),
		Match: func(in classfile.Instruction) bool { return in.Op == op },
	}
}

// New matches NEW of class.
func New(class string) Matcher {
	return Matcher{
		Desc:  "NEW " + class,
		Match: func(in classfile.Instruction) bool { return in.Op == classfile.NEW && in.Class == class },
	}
}

// Invoke matches an invocation of owner.name with descriptor desc using op.
func Invoke(op classfile.Opcode, owner, name, desc string) Matcher {
	return Matcher{
		Desc:  fmt.Sprintf("%s %s.%s%s", op, owner, name, desc),
		Match: func(in classfile.Instruction) bool { return in.Op == op && in.Calls(owner, name, desc) },
	}
}

// Window is the exact sequence of instructions a rule expects.
type Window []Matcher

func (w Window) String() string {
	s := make([]string, len(w))
	for i, m := range w {
		s[i] = m.Desc
	}
	return strings.Join(s, ", ")
}

// MatchBefore checks that the instructions immediately preceding index i of
// code match w. The error names the first instruction that does not.
func (w Window) MatchBefore(code *classfile.Code, i int) error {
	start := i - len(w)
	if start < 0 {
		return fmt.Errorf("want [%s] before L%d, but only %d instructions precede it", w, i, i)
	}
	for j, m := range w {
		in := code.At(start + j)
		if !m.Match(in) {
			return fmt.Errorf("want %s at L%d, got %s", m.Desc, start+j, in)
		}
	}
	return nil
}
