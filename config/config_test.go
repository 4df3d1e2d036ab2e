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

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func writeManifest(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("writing manifest: %v", err)
	}
	return p
}

func TestLoad(t *testing.T) {
	testCases := []struct {
		name    string
		file    string
		content string
	}{
		{
			name: "toml",
			file: "classpatch.toml",
			content: `libraries = ["lib/jdt.jar", "/opt/srg2source.jar"]
libdirs = ["libs"]
targets = ["net.minecraftforge.srg2source.ast.RangeExtractor"]
output = "out/patched.jar"
verbose = true
`,
		},
		{
			name: "yaml",
			file: "classpatch.yaml",
			content: `libraries:
  - lib/jdt.jar
  - /opt/srg2source.jar
libdirs: [libs]
targets:
  - net.minecraftforge.srg2source.ast.RangeExtractor
output: out/patched.jar
verbose: true
`,
		},
		{
			name: "yml",
			file: "classpatch.yml",
			content: `libraries: [lib/jdt.jar, /opt/srg2source.jar]
libdirs: [libs]
targets: [net.minecraftforge.srg2source.ast.RangeExtractor]
output: out/patched.jar
verbose: true
`,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p := writeManifest(t, tc.file, tc.content)
			got, err := Load(p)
			if err != nil {
				t.Fatalf("Load() failed: %v", err)
			}
			dir := filepath.Dir(p)
			want := &Config{
				Libraries: []string{filepath.Join(dir, "lib/jdt.jar"), "/opt/srg2source.jar"},
				LibDirs:   []string{filepath.Join(dir, "libs")},
				Targets:   []string{"net.minecraftforge.srg2source.ast.RangeExtractor"},
				Output:    filepath.Join(dir, "out/patched.jar"),
				Verbose:   true,
				Dir:       dir,
			}
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("Load() returned unexpected config (-want, +got): %s", diff)
			}
		})
	}
}

func TestLoadEmpty(t *testing.T) {
	for _, name := range []string{"empty.toml", "empty.yaml"} {
		p := writeManifest(t, name, "")
		got, err := Load(p)
		if err != nil {
			t.Fatalf("Load(%s) failed: %v", name, err)
		}
		if diff := cmp.Diff(&Config{Dir: filepath.Dir(p)}, got); diff != "" {
			t.Errorf("Load(%s) returned unexpected config (-want, +got): %s", name, diff)
		}
	}
}

func TestLoadErrors(t *testing.T) {
	testCases := []struct {
		name    string
		file    string
		content string
		want    string
	}{
		{"unknown toml key", "c.toml", "outputs = \"x.jar\"\n", "unknown key"},
		{"unknown yaml key", "c.yaml", "outputs: x.jar\n", "not found"},
		{"bad toml", "c.toml", "libraries = [\n", "parse error"},
		{"wrong yaml type", "c.yaml", "libraries: 3\n", "parse error"},
		{"two yaml documents", "c.yaml", "output: a.jar\n---\noutput: b.jar\n", "multiple YAML documents"},
		{"unsupported format", "c.json", "{}", "unsupported manifest format"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeManifest(t, tc.file, tc.content))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Errorf("Load() = %v, want error containing %q", err, tc.want)
			}
		})
	}
}

func TestLoadMissing(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Errorf("Load() of a missing file succeeded")
	}
}
