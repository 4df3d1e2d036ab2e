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

// Package config loads patch manifests.
//
// A manifest is a TOML or YAML file describing a patch run:
//
//	libraries = ["lib/jdt-core.jar", "lib/srg2source.jar"]
//	libdirs   = ["build/libs"]
//	targets   = ["org.eclipse.jdt.core.dom.CompilationUnitResolver"]
//	output    = "build/patched.jar"
//
// Relative paths are resolved against the directory holding the manifest.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config is a decoded manifest.
type Config struct {
	// Libraries are candidate archives in priority order.
	Libraries []string `toml:"libraries" yaml:"libraries"`
	// LibDirs are searched for archives, which are consulted after
	// Libraries in lexical order.
	LibDirs []string `toml:"libdirs" yaml:"libdirs"`
	// Targets are the classes to patch. Empty means every known target.
	Targets []string `toml:"targets" yaml:"targets"`
	Output  string   `toml:"output" yaml:"output"`
	Verbose bool     `toml:"verbose" yaml:"verbose"`

	// Dir is the absolute directory containing the manifest.
	Dir string `toml:"-" yaml:"-"`
}

// Load reads the manifest at path. The format is chosen by extension:
// .toml, or .yaml and .yml. Unknown keys are an error.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var c Config
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		err = decodeTOML(data, &c)
	case ".yaml", ".yml":
		err = decodeYAML(data, &c)
	default:
		return nil, fmt.Errorf("%s: unsupported manifest format %q", path, ext)
	}
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	c.Dir, err = filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", path, err)
	}
	c.resolve()
	return &c, nil
}

func decodeTOML(data []byte, c *Config) error {
	md, err := toml.NewDecoder(bytes.NewReader(data)).Decode(c)
	if err != nil {
		return err
	}
	if keys := md.Undecoded(); len(keys) > 0 {
		return fmt.Errorf("unknown key %q", keys[0].String())
	}
	return nil
}

func decodeYAML(data []byte, c *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		// An empty document decodes to the zero Config.
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	var extra interface{}
	if err := dec.Decode(&extra); err == nil {
		return fmt.Errorf("multiple YAML documents are not supported")
	} else if !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (c *Config) resolve() {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(c.Dir, p)
	}
	for i, p := range c.Libraries {
		c.Libraries[i] = abs(p)
	}
	for i, p := range c.LibDirs {
		c.LibDirs[i] = abs(p)
	}
	c.Output = abs(c.Output)
}
