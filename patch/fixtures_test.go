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
	"testing"

	"github.com/google/classpatch/classfile"
	"github.com/google/classpatch/jar"
)

const (
	resolveDesc = "([Ljava/lang/String;[Ljava/lang/String;[Ljava/lang/String;Lorg/eclipse/jdt/core/dom/FileASTRequestor;ILjava/util/Map;I)V"
	utilClass   = "org/eclipse/jdt/internal/compiler/util/Util"
	readName    = "getFileCharContent"
	readDesc    = "(Ljava/io/File;Ljava/lang/String;)[C"
	hookDesc    = "(Ljava/lang/String;Ljava/lang/String;)[C"
)

// fileRead is the File construction and read as javac emits it for
// Util.getFileCharContent(new File(path), encoding).
func fileRead(path, encoding int) []classfile.Instruction {
	return []classfile.Instruction{
		classfile.TypeInsn(classfile.NEW, "java/io/File"),
		classfile.Insn(classfile.DUP),
		classfile.VarInsn(classfile.ALOAD, path),
		classfile.MethodInsn(classfile.INVOKESPECIAL, "java/io/File", "<init>", "(Ljava/lang/String;)V"),
		classfile.VarInsn(classfile.ALOAD, encoding),
		classfile.MethodInsn(classfile.INVOKESTATIC, utilClass, readName, readDesc),
	}
}

func concat(parts ...[]classfile.Instruction) []classfile.Instruction {
	var out []classfile.Instruction
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// resolverClass builds CompilationUnitResolver with a resolve method holding
// body. Extra method names are added as empty methods to tell copies apart.
func resolverClass(t *testing.T, body []classfile.Instruction, extra ...string) *classfile.Class {
	t.Helper()
	c, err := classfile.NewClass(CompilationUnitResolver, "java/lang/Object")
	if err != nil {
		t.Fatalf("NewClass() failed: %v", err)
	}
	if body != nil {
		if _, err := c.AddMethod(classfile.AccPublic|classfile.AccStatic, "resolve", resolveDesc, 4, 9, body...); err != nil {
			t.Fatalf("AddMethod(resolve) failed: %v", err)
		}
	}
	for _, name := range extra {
		if _, err := c.AddMethod(classfile.AccPublic|classfile.AccStatic, name, "()V", 0, 0, classfile.Insn(classfile.RETURN)); err != nil {
			t.Fatalf("AddMethod(%s) failed: %v", name, err)
		}
	}
	return c
}

// defaultResolverBody reads one file and discards the result.
func defaultResolverBody() []classfile.Instruction {
	return concat(fileRead(0, 1), []classfile.Instruction{classfile.Insn(classfile.POP), classfile.Insn(classfile.RETURN)})
}

// extractorClass builds RangeExtractor with hasBeenASMPatched()Z returning a
// static field.
func extractorClass(t *testing.T, extra ...string) *classfile.Class {
	t.Helper()
	c, err := classfile.NewClass(RangeExtractor, "java/lang/Object")
	if err != nil {
		t.Fatalf("NewClass() failed: %v", err)
	}
	if _, err := c.AddMethod(classfile.AccPublic, "hasBeenASMPatched", "()Z", 1, 1,
		classfile.FieldInsn(classfile.GETSTATIC, RangeExtractor, "patched", "Z"),
		classfile.Insn(classfile.IRETURN),
	); err != nil {
		t.Fatalf("AddMethod() failed: %v", err)
	}
	for _, name := range extra {
		if _, err := c.AddMethod(classfile.AccPublic|classfile.AccStatic, name, "()V", 0, 0, classfile.Insn(classfile.RETURN)); err != nil {
			t.Fatalf("AddMethod(%s) failed: %v", name, err)
		}
	}
	return c
}

func classBytes(t *testing.T, c *classfile.Class) []byte {
	t.Helper()
	b, err := c.Bytes()
	if err != nil {
		t.Fatalf("Bytes() failed: %v", err)
	}
	return b
}

func reparse(t *testing.T, c *classfile.Class) *classfile.Class {
	t.Helper()
	out, err := classfile.Parse(classBytes(t, c))
	if err != nil {
		t.Fatalf("Parse() failed: %v", err)
	}
	return out
}

// writeJar writes a JAR holding the given classes.
func writeJar(t *testing.T, path string, classes ...*classfile.Class) {
	t.Helper()
	entries := []jar.Entry{{Name: "META-INF/MANIFEST.MF", Data: []byte("Manifest-Version: 1.0\n")}}
	for _, c := range classes {
		entries = append(entries, jar.Entry{Name: c.Name() + ".class", Data: classBytes(t, c)})
	}
	if err := jar.WriteArchive(path, entries); err != nil {
		t.Fatalf("WriteArchive() failed: %v", err)
	}
}

func methodBody(t *testing.T, c *classfile.Class, name, desc string) []string {
	t.Helper()
	m := c.Method(name, desc)
	if m == nil {
		t.Fatalf("method %s%s not found", name, desc)
	}
	if m.Code == nil {
		t.Fatalf("method %s%s has no code", name, desc)
	}
	return classfile.Disassemble(m.Code.Instructions())
}
