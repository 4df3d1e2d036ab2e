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

// Package patch locates a fixed set of classes in an ordered list of
// archives, edits them and writes the edited classes to a new archive.
//
// Every rule checks the exact instruction shape it expects before editing,
// and any problem aborts the whole run: a class that silently stays unpatched
// is worse than a failed build.
package patch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/classpatch/classfile"
	"github.com/google/classpatch/jar"
	"github.com/google/classpatch/pool"
	"go.uber.org/zap"
)

// Patcher applies rules to the classes found in a list of archives. The zero
// value uses DefaultRules and logs nothing.
type Patcher struct {
	Rules  Table
	Logger *zap.Logger
	// Verbose logs a diff of every patched method at debug level.
	Verbose bool
}

// Request describes one patch run.
type Request struct {
	// Libraries are the candidate archives in priority order. Directories
	// are skipped.
	Libraries []string
	// Targets are the classes to patch, as internal ("a/b/C") or binary
	// ("a.b.C") names. Empty means every class in the rule table.
	Targets []string
	// Output is the archive to write.
	Output string
}

// Patched records where a target was found.
type Patched struct {
	Target  string
	Archive string
	// Entry is the path of the class in both the source and output archive.
	Entry string
}

// Result describes a successful run.
type Result struct {
	Output  string
	Patched []Patched
}

var entryBufs = pool.Buffers{MinUtility: 64 << 10}

func (p *Patcher) rules() Table {
	if p.Rules == nil {
		return DefaultRules()
	}
	return p.Rules
}

func (p *Patcher) logger() *zap.Logger {
	if p.Logger == nil {
		return zap.NewNop()
	}
	return p.Logger
}

// normalize converts names to internal class names, removes duplicates and
// checks that each has a rule in t. An empty list selects every target.
func (t Table) normalize(names []string) ([]string, error) {
	if len(names) == 0 {
		return t.Targets(), nil
	}
	seen := make(map[string]bool)
	var out []string
	for _, n := range names {
		name := strings.ReplaceAll(strings.TrimSuffix(n, ".class"), ".", "/")
		if _, ok := t[name]; !ok {
			return nil, &UnknownTargetError{Target: n}
		}
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Patch runs req. On success the output archive holds exactly the patched
// classes. On failure no output archive is left behind, even one from an
// earlier run.
func (p *Patcher) Patch(ctx context.Context, req Request) (*Result, error) {
	if req.Output == "" {
		return nil, fmt.Errorf("no output archive given")
	}
	// Every failure from here on removes the output, under the lock once held.
	fail := func(err error) (*Result, error) {
		if rerr := jar.RemoveStale(req.Output); rerr != nil {
			p.logger().Warn("Could not remove stale output", zap.String("path", req.Output), zap.Error(rerr))
		}
		return nil, err
	}

	rules := p.rules()
	targets, err := rules.normalize(req.Targets)
	if err != nil {
		return fail(err)
	}
	if err := os.MkdirAll(filepath.Dir(req.Output), 0o755); err != nil {
		return fail(&IOError{Op: "create output directory for", Path: req.Output, Err: err})
	}
	unlock, err := jar.Lock(req.Output)
	if err != nil {
		return fail(&IOError{Op: "lock", Path: req.Output, Err: err})
	}
	defer func() {
		if err := unlock(); err != nil {
			p.logger().Warn("Could not release output lock", zap.String("path", req.Output), zap.Error(err))
		}
	}()

	res, entries, err := p.scan(ctx, rules, targets, req.Libraries)
	if err != nil {
		return fail(err)
	}
	if err := jar.WriteArchive(req.Output, entries); err != nil {
		return fail(&IOError{Op: "write", Path: req.Output, Err: err})
	}
	res.Output = req.Output
	p.logger().Info("Wrote patched classes", zap.String("output", req.Output), zap.Int("classes", len(entries)))
	return res, nil
}

// scan consults the libraries in order. Each step yields a new pending list
// holding the targets the archive did not contain.
func (p *Patcher) scan(ctx context.Context, rules Table, targets, libs []string) (*Result, []jar.Entry, error) {
	res := &Result{}
	var (
		entries   []jar.Entry
		consulted []string
	)
	pending := targets
	for _, lib := range libs {
		if len(pending) == 0 {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		info, err := os.Stat(lib)
		if err != nil {
			return nil, nil, &IOError{Op: "open archive", Path: lib, Err: err}
		}
		if info.IsDir() {
			p.logger().Debug("Skipping directory", zap.String("path", lib))
			continue
		}
		consulted = append(consulted, lib)

		a, err := jar.Open(lib)
		if err != nil {
			return nil, nil, &IOError{Op: "open archive", Path: lib, Err: err}
		}
		next, err := p.patchArchive(a, rules, pending, &entries, res)
		a.Close()
		if err != nil {
			return nil, nil, err
		}
		pending = next
	}
	if len(pending) > 0 {
		return nil, nil, &TargetNotFoundError{Targets: pending, Archives: consulted}
	}
	return res, entries, nil
}

// patchArchive patches the pending targets a contains and returns the ones it
// does not.
func (p *Patcher) patchArchive(a *jar.Archive, rules Table, pending []string, entries *[]jar.Entry, res *Result) ([]string, error) {
	var remaining []string
	for _, target := range pending {
		name := target + ".class"
		raw, ok, err := a.Lookup(name, entryBufs.Get())
		if !ok {
			entryBufs.Put(raw)
			remaining = append(remaining, target)
			continue
		}
		if err != nil {
			entryBufs.Put(raw)
			return nil, &IOError{Op: "read", Path: a.Path() + "!/" + name, Err: err}
		}
		data, err := p.patchClass(target, a.Path(), raw, rules[target])
		entryBufs.Put(raw)
		if err != nil {
			return nil, err
		}
		*entries = append(*entries, jar.Entry{Name: name, Data: data})
		res.Patched = append(res.Patched, Patched{Target: target, Archive: a.Path(), Entry: name})
	}
	return remaining, nil
}

func (p *Patcher) patchClass(target, lib string, raw []byte, rule Rule) ([]byte, error) {
	log := p.logger()
	log.Info("Transforming", zap.String("target", target), zap.String("from", lib), zap.Stringer("rule", rule))

	// Screening only looks for names, so garbage must be rejected first.
	if err := classfile.CheckMagic(raw); err != nil {
		return nil, fmt.Errorf("parse %s from %s: %w", target, lib, err)
	}
	if err := rule.Screen(target, raw); err != nil {
		return nil, fmt.Errorf("%s: %w", lib, err)
	}
	c, err := classfile.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse %s from %s: %w", target, lib, err)
	}
	if c.Name() != target {
		return nil, fmt.Errorf("%s: entry %s.class declares class %s", lib, target, c.Name())
	}

	var before []string
	if p.Verbose {
		before = disassemble(c, rule.Method())
	}
	if err := rule.Apply(c); err != nil {
		return nil, fmt.Errorf("%s: %w", lib, err)
	}
	data, err := c.Bytes()
	if err != nil {
		return nil, fmt.Errorf("write %s: %w", target, err)
	}
	if p.Verbose {
		name := target + "." + rule.Method().String()
		if diff, err := Diff(name, before, disassemble(c, rule.Method())); err == nil {
			log.Debug("Patched method", zap.String("method", name), zap.String("diff", diff))
		}
	}
	log.Info("Patched", zap.String("class", target))
	return data, nil
}
