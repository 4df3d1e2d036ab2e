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

// The classpatch tool patches a fixed set of JDT and Srg2Source classes found
// in a list of JARs and writes the patched classes to a new JAR.
package main

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"syscall"

	"github.com/google/classpatch/config"
	"github.com/google/classpatch/jar"
	"github.com/google/classpatch/patch"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
)

// skipDirs names directories that never hold libraries.
var skipDirs = map[string]bool{
	".git":         true,
	".hg":          true,
	".svn":         true,
	".idea":        true,
	"node_modules": true,
}

// skipChildren maps a build tool directory to the children that hold only
// tool internals or compiler output.
var skipChildren = map[string][]string{
	".gradle": {"daemon", "jdks", "native", "wrapper"},
	".m2":     {"wrapper"},
	"build":   {"classes", "reports", "test-results", "tmp"},
	"target":  {"classes", "surefire-reports", "test-classes"},
}

type options struct {
	output    string
	targets   []string
	libDirs   []string
	config    string
	verbose   bool
	listRules bool

	manifest *config.Config
	// logger is built before each run unless already set.
	logger *zap.Logger
}

func newRootCmd(stdout io.Writer, logger *zap.Logger) *cobra.Command {
	opts := &options{logger: logger}
	cmd := &cobra.Command{
		Use:   "classpatch [flags] [LIBRARY...]",
		Short: "Patch JDT and Srg2Source classes for in-memory batch compilation",
		Long: `classpatch finds each target class in the given libraries, taking the
first archive that contains it, rewrites its bytecode and writes the patched
classes to the output JAR.

Libraries named on the command line are consulted first, in order, followed by
the JARs found below each --libdir. Any missing target or unexpected bytecode
fails the run and leaves no output behind.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.config != "" {
				m, err := config.Load(opts.config)
				if err != nil {
					return err
				}
				opts.manifest = m
				opts.verbose = opts.verbose || m.Verbose
			}
			if opts.logger != nil {
				return nil
			}
			cfg := zap.NewProductionConfig()
			cfg.Encoding = "console"
			cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
			cfg.DisableStacktrace = true
			if opts.verbose {
				cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
			}
			var err error
			opts.logger, err = cfg.Build()
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if opts.logger != nil {
				_ = opts.logger.Sync()
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.listRules {
				return listRules(stdout, patch.DefaultRules())
			}
			return run(cmd.Context(), opts, args)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.output, "output", "o", "", "output archive (required unless set in the config)")
	f.StringArrayVarP(&opts.targets, "target", "t", nil, "target class to patch (repeatable, default: all known targets)")
	f.StringArrayVarP(&opts.libDirs, "libdir", "L", nil, "directory scanned for JARs, consulted after the LIBRARY arguments")
	f.StringVarP(&opts.config, "config", "c", "", "TOML or YAML manifest naming libraries, libdirs, targets and output")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging with a diff of every patched method")
	f.BoolVar(&opts.listRules, "list-rules", false, "print the known targets and their rules, then exit")
	return cmd
}

func listRules(w io.Writer, rules patch.Table) error {
	for _, target := range rules.Targets() {
		if _, err := fmt.Fprintf(w, "%s\t%s\n", target, rules[target]); err != nil {
			return err
		}
	}
	return nil
}

// request merges the manifest, if any, with the command line. Flags and
// arguments replace the corresponding manifest values.
func (o *options) request(args []string) (patch.Request, []string, error) {
	var req patch.Request
	var libDirs []string
	if m := o.manifest; m != nil {
		req = patch.Request{Libraries: m.Libraries, Targets: m.Targets, Output: m.Output}
		libDirs = m.LibDirs
	}
	if len(args) > 0 {
		req.Libraries = args
	}
	if len(o.targets) > 0 {
		req.Targets = o.targets
	}
	if len(o.libDirs) > 0 {
		libDirs = o.libDirs
	}
	if o.output != "" {
		req.Output = o.output
	}
	if req.Output == "" {
		return req, nil, fmt.Errorf("no output archive given: use --output or set output in the config")
	}
	return req, libDirs, nil
}

func run(ctx context.Context, opts *options, args []string) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	req, libDirs, err := opts.request(args)
	if err != nil {
		return err
	}
	log := opts.logger
	found, err := findLibraries(ctx, log, libDirs)
	if err != nil {
		return err
	}
	req.Libraries = append(req.Libraries, found...)
	if len(req.Libraries) == 0 {
		return fmt.Errorf("no libraries given")
	}

	p := &patch.Patcher{Logger: log, Verbose: opts.verbose}
	res, err := p.Patch(ctx, req)
	if err != nil {
		return err
	}
	for _, pt := range res.Patched {
		log.Debug("Found target", zap.String("target", pt.Target), zap.String("archive", pt.Archive))
	}
	return nil
}

// findLibraries lists the JARs below each directory. Directories are walked
// concurrently, but the result keeps the order in which they were given.
func findLibraries(ctx context.Context, log *zap.Logger, dirs []string) ([]string, error) {
	found := make([][]string, len(dirs))
	g, ctx := errgroup.WithContext(ctx)
	for i, dir := range dirs {
		i, dir := i, dir
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			info, err := os.Stat(dir)
			if err != nil {
				return fmt.Errorf("scanning library directory: %w", err)
			}
			if !info.IsDir() {
				return fmt.Errorf("scanning library directory: %s is not a directory", dir)
			}
			root := filepath.Clean(dir)
			w := jar.Walker{
				// An explicitly named directory is always walked.
				SkipDir: func(path string, d fs.DirEntry) bool {
					return path != root && skipDir(path, d)
				},
				HandleError: func(path string, err error) {
					log.Warn("Skipping unreadable path", zap.String("path", path), zap.Error(err))
				},
			}
			libs, err := w.Find(dir)
			if err != nil {
				return fmt.Errorf("scanning %s: %w", dir, err)
			}
			log.Debug("Scanned library directory", zap.String("dir", dir), zap.Int("archives", len(libs)))
			found[i] = libs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	var libs []string
	for _, f := range found {
		libs = append(libs, f...)
	}
	return libs, nil
}

func skipDir(path string, d fs.DirEntry) bool {
	name := filepath.Base(path)
	if skipDirs[name] {
		return true
	}
	if slices.Contains(skipChildren[filepath.Base(filepath.Dir(path))], name) {
		return true
	}
	return onVirtualFS(path)
}

func main() {
	if err := newRootCmd(os.Stdout, nil).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
