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

package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/classpatch/classfile"
	"github.com/google/classpatch/jar"
	"github.com/google/classpatch/patch"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// extractorJar writes a JAR holding a RangeExtractor that patch.DefaultRules
// accepts.
func extractorJar(t *testing.T, path string) {
	t.Helper()
	c, err := classfile.NewClass(patch.RangeExtractor, "java/lang/Object")
	require.NoError(t, err)
	_, err = c.AddMethod(classfile.AccPublic, "hasBeenASMPatched", "()Z", 1, 1,
		classfile.Insn(classfile.ICONST_0),
		classfile.Insn(classfile.IRETURN),
	)
	require.NoError(t, err)
	data, err := c.Bytes()
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, jar.WriteArchive(path, []jar.Entry{
		{Name: "META-INF/MANIFEST.MF", Data: []byte("Manifest-Version: 1.0\n")},
		{Name: patch.RangeExtractor + ".class", Data: data},
	}))
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout bytes.Buffer
	cmd := newRootCmd(&stdout, zap.NewNop())
	cmd.SetArgs(args)
	cmd.SetOut(&stdout)
	cmd.SetErr(&stdout)
	err := cmd.Execute()
	return stdout.String(), err
}

func outputEntries(t *testing.T, p string) []string {
	t.Helper()
	rc, _, err := jar.OpenReader(p)
	require.NoError(t, err)
	defer rc.Close()
	var names []string
	for _, f := range rc.File {
		names = append(names, f.Name)
	}
	return names
}

func TestPatchLibraries(t *testing.T) {
	dir := t.TempDir()
	lib := filepath.Join(dir, "srg2source.jar")
	extractorJar(t, lib)
	out := filepath.Join(dir, "out", "patched.jar")

	_, err := execute(t, "-o", out, "-t", "net.minecraftforge.srg2source.ast.RangeExtractor", lib)
	require.NoError(t, err)
	require.Equal(t, []string{patch.RangeExtractor + ".class"}, outputEntries(t, out))
}

func TestPatchLibDir(t *testing.T) {
	dir := t.TempDir()
	libs := filepath.Join(dir, "libs")
	extractorJar(t, filepath.Join(libs, "nested", "srg2source.jar"))
	// Skipped directories are never opened.
	require.NoError(t, os.MkdirAll(filepath.Join(libs, ".git"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(libs, ".git", "broken.jar"), []byte("not a zip"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(libs, "build", "tmp"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(libs, "build", "tmp", "broken.jar"), []byte("not a zip"), 0o644))
	out := filepath.Join(dir, "patched.jar")

	_, err := execute(t, "-o", out, "-t", patch.RangeExtractor, "-L", libs)
	require.NoError(t, err)
	require.Equal(t, []string{patch.RangeExtractor + ".class"}, outputEntries(t, out))

	// A skipped name is still walked when given as the libdir itself.
	tmp := filepath.Join(dir, "gradle", "build", "tmp")
	extractorJar(t, filepath.Join(tmp, "srg2source.jar"))
	_, err = execute(t, "-o", out, "-t", patch.RangeExtractor, "-L", tmp)
	require.NoError(t, err)
	require.Equal(t, []string{patch.RangeExtractor + ".class"}, outputEntries(t, out))
}

func TestSkipDir(t *testing.T) {
	root := t.TempDir()
	testCases := []struct {
		path string
		want bool
	}{
		{"libs/.git", true},
		{"libs/.svn", true},
		{"project/node_modules", true},
		{"home/.gradle/daemon", true},
		{"home/.gradle/wrapper", true},
		{"home/.gradle/caches", false},
		{"home/.m2/repository", false},
		{"project/build/tmp", true},
		{"project/build/classes", true},
		{"project/build/libs", false},
		{"project/target/test-classes", true},
		{"project/tmp", false},
		{"project/classes", false},
	}
	for _, tc := range testCases {
		t.Run(tc.path, func(t *testing.T) {
			p := filepath.Join(root, filepath.FromSlash(tc.path))
			require.NoError(t, os.MkdirAll(p, 0o755))
			require.Equal(t, tc.want, skipDir(p, nil))
		})
	}
}

func TestPatchConfig(t *testing.T) {
	dir := t.TempDir()
	extractorJar(t, filepath.Join(dir, "lib", "srg2source.jar"))
	manifest := filepath.Join(dir, "classpatch.toml")
	require.NoError(t, os.WriteFile(manifest, []byte(`libraries = ["lib/srg2source.jar"]
targets = ["net.minecraftforge.srg2source.ast.RangeExtractor"]
output = "build/patched.jar"
`), 0o644))

	_, err := execute(t, "-c", manifest)
	require.NoError(t, err)
	require.Equal(t, []string{patch.RangeExtractor + ".class"}, outputEntries(t, filepath.Join(dir, "build", "patched.jar")))

	// The output flag replaces the manifest value.
	out := filepath.Join(dir, "other.jar")
	_, err = execute(t, "-c", manifest, "-o", out)
	require.NoError(t, err)
	require.FileExists(t, out)
}

func TestPatchFailure(t *testing.T) {
	dir := t.TempDir()
	lib := filepath.Join(dir, "srg2source.jar")
	extractorJar(t, lib)
	out := filepath.Join(dir, "patched.jar")

	// The resolver is missing from every library.
	_, err := execute(t, "-o", out, lib)
	var tnf *patch.TargetNotFoundError
	require.True(t, errors.As(err, &tnf), "got error %v", err)
	require.Equal(t, []string{patch.CompilationUnitResolver}, tnf.Targets)
	require.NoFileExists(t, out)
}

func TestUsageErrors(t *testing.T) {
	dir := t.TempDir()
	lib := filepath.Join(dir, "srg2source.jar")
	extractorJar(t, lib)

	testCases := []struct {
		name string
		args []string
		want string
	}{
		{"no output", []string{lib}, "no output archive"},
		{"no libraries", []string{"-o", filepath.Join(dir, "out.jar")}, "no libraries"},
		{"unknown target", []string{"-o", filepath.Join(dir, "out.jar"), "-t", "com.example.Missing", lib}, "no patch rule"},
		{"missing libdir", []string{"-o", filepath.Join(dir, "out.jar"), "-L", filepath.Join(dir, "missing")}, "scanning library directory"},
		{"missing config", []string{"-c", filepath.Join(dir, "missing.toml")}, "cannot read"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := execute(t, tc.args...)
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestListRules(t *testing.T) {
	out, err := execute(t, "--list-rules")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	require.True(t, strings.HasPrefix(lines[0], patch.RangeExtractor+"\t"))
	require.True(t, strings.HasPrefix(lines[1], patch.CompilationUnitResolver+"\t"))
}
