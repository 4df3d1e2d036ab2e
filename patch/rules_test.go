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
	"errors"
	"strings"
	"testing"

	"github.com/google/classpatch/classfile"
	"github.com/google/go-cmp/cmp"
)

func resolverRule() Rule {
	return DefaultRules()[CompilationUnitResolver]
}

func extractorRule() Rule {
	return DefaultRules()[RangeExtractor]
}

func TestCallRedirect(t *testing.T) {
	c := resolverClass(t, defaultResolverBody())
	if err := resolverRule().Apply(c); err != nil {
		t.Fatalf("Apply() failed: %v", err)
	}
	want := []string{
		"L0: NOP",
		"L1: NOP",
		"L2: ALOAD 0",
		"L3: NOP",
		"L4: ALOAD 1",
		"L5: INVOKESTATIC " + RangeExtractor + "." + readName + hookDesc,
		"L6: POP",
		"L7: RETURN",
	}
	if diff := cmp.Diff(want, methodBody(t, c, "resolve", resolveDesc)); diff != "" {
		t.Errorf("patched body differs (-want, +got): %s", diff)
	}

	// The edit survives serialization, and the result no longer matches.
	out := reparse(t, c)
	if diff := cmp.Diff(want, methodBody(t, out, "resolve", resolveDesc)); diff != "" {
		t.Errorf("reparsed body differs (-want, +got): %s", diff)
	}
	err := resolverRule().Apply(out)
	var pe *PatternNotFoundError
	if !errors.As(err, &pe) {
		t.Fatalf("second Apply() = %v, want *PatternNotFoundError", err)
	}
	if pe.Class != CompilationUnitResolver {
		t.Errorf("PatternNotFoundError.Class = %q, want %q", pe.Class, CompilationUnitResolver)
	}
}

func TestCallRedirectEveryCallSite(t *testing.T) {
	c := resolverClass(t, concat(
		fileRead(0, 1),
		[]classfile.Instruction{classfile.Insn(classfile.POP)},
		fileRead(2, 1),
		[]classfile.Instruction{classfile.Insn(classfile.POP), classfile.Insn(classfile.RETURN)},
	))
	if err := resolverRule().Apply(c); err != nil {
		t.Fatalf("Apply() failed: %v", err)
	}
	body := methodBody(t, c, "resolve", resolveDesc)
	for _, i := range []int{5, 12} {
		if !strings.Contains(body[i], RangeExtractor+"."+readName+hookDesc) {
			t.Errorf("call at L%d not redirected: %s", i, body[i])
		}
	}
}

func TestCallRedirectHookName(t *testing.T) {
	r := &CallRedirect{
		Target: MethodRef{Name: "resolve", Desc: resolveDesc},
		Call:   MemberRef{Owner: utilClass, Name: readName, Desc: readDesc},
		Hook:   MemberRef{Owner: RangeExtractor, Name: "read", Desc: hookDesc},
	}
	c := resolverClass(t, defaultResolverBody())
	if err := r.Apply(c); err != nil {
		t.Fatalf("Apply() failed: %v", err)
	}
	in := c.Method("resolve", resolveDesc).Code.At(5)
	if !in.Calls(RangeExtractor, "read", hookDesc) {
		t.Errorf("At(5) = %v, want call to %s.read%s", in, RangeExtractor, hookDesc)
	}
}

func TestCallRedirectMismatch(t *testing.T) {
	good := fileRead(0, 1)
	noDup := concat(good[:1], []classfile.Instruction{classfile.Insn(classfile.ACONST_NULL)}, good[2:])
	wrongClass := concat([]classfile.Instruction{classfile.TypeInsn(classfile.NEW, "java/lang/String")}, good[1:])
	intLoad := concat(good[:4], []classfile.Instruction{classfile.VarInsn(classfile.ILOAD, 1)}, good[5:])
	tail := []classfile.Instruction{classfile.Insn(classfile.POP), classfile.Insn(classfile.RETURN)}

	testCases := []struct {
		name string
		body []classfile.Instruction
		// wantMethodErr selects MethodNotFoundError over PatternNotFoundError.
		wantMethodErr bool
		wantReason    string
	}{
		{"missing method", nil, true, ""},
		{"no call", []classfile.Instruction{classfile.Insn(classfile.RETURN)}, false, "no call"},
		{"missing DUP", concat(noDup, tail), false, "want DUP"},
		{"wrong class", concat(wrongClass, tail), false, "want NEW java/io/File"},
		{"int load", concat(intLoad, tail), false, "want ALOAD"},
		{"call too early", concat(good[4:], tail), false, "only 1 instructions precede"},
		// The first site is fine but the second has drifted; nothing may
		// be edited.
		{"second site drifted", concat(good, []classfile.Instruction{classfile.Insn(classfile.POP)}, noDup, tail), false, "want DUP"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c := resolverClass(t, tc.body, "other")
			err := resolverRule().Apply(c)
			if tc.wantMethodErr {
				var me *MethodNotFoundError
				if !errors.As(err, &me) {
					t.Fatalf("Apply() = %v, want *MethodNotFoundError", err)
				}
				return
			}
			var pe *PatternNotFoundError
			if !errors.As(err, &pe) {
				t.Fatalf("Apply() = %v, want *PatternNotFoundError", err)
			}
			if !strings.Contains(pe.Reason, tc.wantReason) {
				t.Errorf("Apply() reason %q does not mention %q", pe.Reason, tc.wantReason)
			}
			if diff := cmp.Diff(classfile.Disassemble(tc.body), methodBody(t, c, "resolve", resolveDesc)); diff != "" {
				t.Errorf("failed Apply() modified the method (-want, +got): %s", diff)
			}
		})
	}
}

func TestForceTrue(t *testing.T) {
	c := extractorClass(t)
	m := c.Method("hasBeenASMPatched", "()Z")
	m.Code.MaxStack = 0
	if err := extractorRule().Apply(c); err != nil {
		t.Fatalf("Apply() failed: %v", err)
	}
	want := []string{"L0: ICONST_1", "L1: IRETURN"}
	if diff := cmp.Diff(want, methodBody(t, c, "hasBeenASMPatched", "()Z")); diff != "" {
		t.Errorf("patched body differs (-want, +got): %s", diff)
	}
	if m.Code.MaxStack < 1 {
		t.Errorf("MaxStack = %d, want at least 1", m.Code.MaxStack)
	}

	out := reparse(t, c)
	if diff := cmp.Diff(want, methodBody(t, out, "hasBeenASMPatched", "()Z")); diff != "" {
		t.Errorf("reparsed body differs (-want, +got): %s", diff)
	}
	var pe *PatternNotFoundError
	if err := extractorRule().Apply(out); !errors.As(err, &pe) {
		t.Errorf("second Apply() = %v, want *PatternNotFoundError", err)
	}
}

func TestForceTrueErrors(t *testing.T) {
	missing, err := classfile.NewClass(RangeExtractor, "java/lang/Object")
	if err != nil {
		t.Fatalf("NewClass() failed: %v", err)
	}
	wrongDesc, err := classfile.NewClass(RangeExtractor, "java/lang/Object")
	if err != nil {
		t.Fatalf("NewClass() failed: %v", err)
	}
	if _, err := wrongDesc.AddMethod(classfile.AccPublic, "hasBeenASMPatched", "()I", 1, 1, classfile.Insn(classfile.ICONST_0), classfile.Insn(classfile.IRETURN)); err != nil {
		t.Fatalf("AddMethod() failed: %v", err)
	}
	abstract, err := classfile.NewClass(RangeExtractor, "java/lang/Object")
	if err != nil {
		t.Fatalf("NewClass() failed: %v", err)
	}
	if _, err := abstract.AddMethod(classfile.AccPublic|classfile.AccAbstract, "hasBeenASMPatched", "()Z", 0, 0); err != nil {
		t.Fatalf("AddMethod() failed: %v", err)
	}

	testCases := []struct {
		name          string
		class         *classfile.Class
		wantMethodErr bool
	}{
		{"missing", missing, true},
		{"wrong descriptor", wrongDesc, true},
		{"abstract", abstract, false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := extractorRule().Apply(tc.class)
			var (
				me *MethodNotFoundError
				pe *PatternNotFoundError
			)
			switch {
			case tc.wantMethodErr && !errors.As(err, &me):
				t.Errorf("Apply() = %v, want *MethodNotFoundError", err)
			case !tc.wantMethodErr && !errors.As(err, &pe):
				t.Errorf("Apply() = %v, want *PatternNotFoundError", err)
			}
		})
	}
}

func TestScreen(t *testing.T) {
	unrelated, err := classfile.NewClass(CompilationUnitResolver, "java/lang/Object")
	if err != nil {
		t.Fatalf("NewClass() failed: %v", err)
	}
	noCall := resolverClass(t, []classfile.Instruction{classfile.Insn(classfile.RETURN)})

	testCases := []struct {
		name    string
		rule    Rule
		raw     []byte
		wantErr interface{}
	}{
		{"resolver ok", resolverRule(), classBytes(t, resolverClass(t, defaultResolverBody())), nil},
		{"resolver without method", resolverRule(), classBytes(t, unrelated), &MethodNotFoundError{}},
		{"resolver without call", resolverRule(), classBytes(t, noCall), &PatternNotFoundError{}},
		{"extractor ok", extractorRule(), classBytes(t, extractorClass(t)), nil},
		{"extractor without method", extractorRule(), classBytes(t, unrelated), &MethodNotFoundError{}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.rule.Screen("some/Class", tc.raw)
			switch want := tc.wantErr.(type) {
			case nil:
				if err != nil {
					t.Errorf("Screen() = %v, want nil", err)
				}
			case *MethodNotFoundError:
				if !errors.As(err, &want) {
					t.Errorf("Screen() = %v, want *MethodNotFoundError", err)
				}
			case *PatternNotFoundError:
				if !errors.As(err, &want) {
					t.Errorf("Screen() = %v, want *PatternNotFoundError", err)
				}
			}
		})
	}
}

func TestWindowMatchBefore(t *testing.T) {
	c := resolverClass(t, defaultResolverBody())
	code := c.Method("resolve", resolveDesc).Code
	if err := fileWindow.MatchBefore(code, 5); err != nil {
		t.Errorf("MatchBefore(5) = %v, want nil", err)
	}
	if err := fileWindow.MatchBefore(code, 6); err == nil {
		t.Errorf("MatchBefore(6) = nil, want mismatch")
	}
	if err := fileWindow.MatchBefore(code, 3); err == nil {
		t.Errorf("MatchBefore(3) = nil, want error")
	}
	want := "NEW java/io/File, DUP, ALOAD, INVOKESPECIAL java/io/File.<init>(Ljava/lang/String;)V, ALOAD"
	if got := fileWindow.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestDefaultRules(t *testing.T) {
	want := []string{RangeExtractor, CompilationUnitResolver}
	if diff := cmp.Diff(want, DefaultRules().Targets()); diff != "" {
		t.Errorf("Targets() differs (-want, +got): %s", diff)
	}
	for name, r := range DefaultRules() {
		if r.String() == "" {
			t.Errorf("rule for %s has an empty description", name)
		}
	}
}
