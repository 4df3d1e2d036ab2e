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
	"github.com/google/classpatch/classfile"
	difflib "github.com/pmezard/go-difflib/difflib"
)

// disassemble renders a method body one instruction per line, or nil for a
// method without code.
func disassemble(c *classfile.Class, ref MethodRef) []string {
	m := c.Method(ref.Name, ref.Desc)
	if m == nil || m.Code == nil {
		return nil
	}
	lines := classfile.Disassemble(m.Code.Instructions())
	for i := range lines {
		lines[i] += "\n"
	}
	return lines
}

// Diff returns a unified diff between two disassembled method bodies.
func Diff(name string, before, after []string) (string, error) {
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        before,
		B:        after,
		FromFile: "a/" + name,
		ToFile:   "b/" + name,
		Context:  3,
	})
}
