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
	"sort"

	"github.com/google/classpatch/classfile"
	"rsc.io/binaryregexp"
)

// Class names of the default targets.
const (
	CompilationUnitResolver = "org/eclipse/jdt/core/dom/CompilationUnitResolver"
	RangeExtractor          = "net/minecraftforge/srg2source/ast/RangeExtractor"
)

// MethodRef names a method within the class being patched.
type MethodRef struct {
	Name string
	Desc string
}

func (m MethodRef) String() string {
	return m.Name + m.Desc
}

// MemberRef names a method of some class.
type MemberRef struct {
	Owner string
	Name  string
	Desc  string
}

func (m MemberRef) String() string {
	return m.Owner + "." + m.Name + m.Desc
}

// Rule is an edit of one target class.
//
// Apply either edits the class completely or leaves it untouched and returns
// a *MethodNotFoundError or *PatternNotFoundError. Rules are not idempotent:
// applying a rule to its own output fails.
type Rule interface {
	// Screen cheaply checks that the raw bytes of class can possibly match,
	// before they are parsed.
	Screen(class string, raw []byte) error
	Apply(c *classfile.Class) error
	// Method is the method the rule edits.
	Method() MethodRef
	String() string
}

// utf8Constant matches the constant pool entry holding s.
func utf8Constant(s string) *binaryregexp.Regexp {
	prefix := string([]byte{byte(classfile.TagUtf8), byte(len(s) >> 8), byte(len(s))})
	return binaryregexp.MustCompile(binaryregexp.QuoteMeta(prefix + s))
}

// fileWindow is the code that builds the java.io.File passed to the redirected
// call, followed by the load of the call's second argument.
var fileWindow = Window{
	New("java/io/File"),
	Op(classfile.DUP),
	Op(classfile.ALOAD),
	Invoke(classfile.INVOKESPECIAL, "java/io/File", "<init>", "(Ljava/lang/String;)V"),
	Op(classfile.ALOAD),
}

// CallRedirect makes every call to Call in Method read its input from Hook
// instead of from a java.io.File. The File construction feeding each call is
// replaced by NOPs so the path string itself becomes the first argument.
type CallRedirect struct {
	Target MethodRef
	Call   MemberRef
	// Hook is the replacement callee. An empty Name keeps the name of Call.
	Hook MemberRef
}

func (r *CallRedirect) Method() MethodRef { return r.Target }

func (r *CallRedirect) String() string {
	return fmt.Sprintf("redirect %s in %s to %s", r.Call, r.Target, r.hook())
}

func (r *CallRedirect) hook() MemberRef {
	h := r.Hook
	if h.Name == "" {
		h.Name = r.Call.Name
	}
	return h
}

func (r *CallRedirect) Screen(class string, raw []byte) error {
	if !utf8Constant(r.Target.Name).Match(raw) || !utf8Constant(r.Target.Desc).Match(raw) {
		return &MethodNotFoundError{Class: class, Method: r.Target.String()}
	}
	for _, s := range []string{r.Call.Owner, r.Call.Name, r.Call.Desc} {
		if !utf8Constant(s).Match(raw) {
			return &PatternNotFoundError{Class: class, Method: r.Target.String(), Reason: fmt.Sprintf("class does not reference %q", s)}
		}
	}
	return nil
}

func (r *CallRedirect) Apply(c *classfile.Class) error {
	m := c.Method(r.Target.Name, r.Target.Desc)
	if m == nil {
		return &MethodNotFoundError{Class: c.Name(), Method: r.Target.String()}
	}
	fail := func(format string, v ...interface{}) error {
		return &PatternNotFoundError{Class: c.Name(), Method: r.Target.String(), Reason: fmt.Sprintf(format, v...)}
	}
	code := m.Code
	if code == nil {
		return fail("method has no code")
	}

	var calls []int
	for i := 0; i < code.Len(); i++ {
		if code.At(i).Calls(r.Call.Owner, r.Call.Name, r.Call.Desc) {
			calls = append(calls, i)
		}
	}
	if len(calls) == 0 {
		return fail("no call to %s", r.Call)
	}
	// Validate every call site before touching any of them.
	for _, i := range calls {
		if err := fileWindow.MatchBefore(code, i); err != nil {
			return fail("call to %s at L%d: %v", r.Call, i, err)
		}
	}

	hook := r.hook()
	for _, i := range calls {
		start := i - len(fileWindow)
		code.Replace(start, classfile.Insn(classfile.NOP))   // NEW java/io/File
		code.Replace(start+1, classfile.Insn(classfile.NOP)) // DUP
		code.Replace(start+3, classfile.Insn(classfile.NOP)) // INVOKESPECIAL java/io/File.<init>
		in := code.At(i)
		in.Owner, in.Name, in.Desc = hook.Owner, hook.Name, hook.Desc
		in.Interface = false
		code.Replace(i, in)
	}
	return nil
}

// ForceTrue replaces the body of a boolean no-argument method with
// "return true".
type ForceTrue struct {
	Name string
}

var trueBody = []classfile.Instruction{
	classfile.Insn(classfile.ICONST_1),
	classfile.Insn(classfile.IRETURN),
}

func (r *ForceTrue) Method() MethodRef { return MethodRef{Name: r.Name, Desc: "()Z"} }

func (r *ForceTrue) String() string {
	return fmt.Sprintf("force %s to return true", r.Method())
}

func (r *ForceTrue) Screen(class string, raw []byte) error {
	if !utf8Constant(r.Name).Match(raw) || !utf8Constant("()Z").Match(raw) {
		return &MethodNotFoundError{Class: class, Method: r.Method().String()}
	}
	return nil
}

func (r *ForceTrue) Apply(c *classfile.Class) error {
	ref := r.Method()
	m := c.Method(ref.Name, ref.Desc)
	if m == nil {
		return &MethodNotFoundError{Class: c.Name(), Method: ref.String()}
	}
	code := m.Code
	if code == nil {
		return &PatternNotFoundError{Class: c.Name(), Method: ref.String(), Reason: "method has no code"}
	}
	if isBody(code, trueBody) {
		return &PatternNotFoundError{Class: c.Name(), Method: ref.String(), Reason: "method already returns true"}
	}
	code.Reset(trueBody...)
	if code.MaxStack < 1 {
		code.MaxStack = 1
	}
	return nil
}

func isBody(code *classfile.Code, body []classfile.Instruction) bool {
	if code.Len() != len(body) {
		return false
	}
	for i, in := range body {
		if code.At(i).String() != in.String() {
			return false
		}
	}
	return true
}

// Table maps the internal name of a target class to its rule.
type Table map[string]Rule

// Targets returns the target class names in sorted order.
func (t Table) Targets() []string {
	names := make([]string, 0, len(t))
	for name := range t {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRules returns the rules for the Eclipse JDT and Srg2Source classes
// that must be patched to run JDT batch compilation on in-memory sources.
func DefaultRules() Table {
	return Table{
		// CompilationUnitResolver can batch compile, but reads every source
		// from a java.io.File. Redirect the read to RangeExtractor, which
		// serves the contents from memory.
		CompilationUnitResolver: &CallRedirect{
			Target: MethodRef{
				Name: "resolve",
				Desc: "([Ljava/lang/String;[Ljava/lang/String;[Ljava/lang/String;Lorg/eclipse/jdt/core/dom/FileASTRequestor;ILjava/util/Map;I)V",
			},
			Call: MemberRef{
				Owner: "org/eclipse/jdt/internal/compiler/util/Util",
				Name:  "getFileCharContent",
				Desc:  "(Ljava/io/File;Ljava/lang/String;)[C",
			},
			Hook: MemberRef{
				Owner: RangeExtractor,
				Desc:  "(Ljava/lang/String;Ljava/lang/String;)[C",
			},
		},
		RangeExtractor: &ForceTrue{Name: "hasBeenASMPatched"},
	}
}
