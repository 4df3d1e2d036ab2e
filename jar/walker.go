// Copyright 2021 Google LLC
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

package jar

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// IsJAR determines if a given ZIP reader is a JAR.
func IsJAR(zr *zip.Reader) bool {
	// Optimization: Scan file header for the JAR-specific dir META-INF, bail
	// if it's not present (it must not be a jar).
	// In practice, JARs seem to have their META-INF directory at the beginning
	// of the central directory structure.
	// Jar files missing that directory still get loaded, so we also check for
	// class files and nested jars.
	for _, fh := range zr.File {
		isDir := fh.FileInfo().IsDir()
		if (isDir && strings.HasPrefix(fh.Name, "META-INF")) ||
			(isDir && strings.HasPrefix(fh.Name, "WEB-INF")) ||
			(!isDir && strings.HasSuffix(fh.Name, ".class")) ||
			(!isDir && strings.HasSuffix(fh.Name, ".jar")) {
			return true
		}
	}
	return false
}

// Walker collects the JARs found below a directory, in lexical order, so they
// can be used as an ordered list of candidate archives.
type Walker struct {
	// SkipDir, if provided, allows the walker to skip certain directories
	// as it scans.
	SkipDir func(path string, de fs.DirEntry) bool
	// HandleError can be used to handle errors for a given directory or
	// file. When nil, the first error aborts the walk.
	HandleError func(path string, err error)
}

// Find returns the JARs below dir using the zero Walker.
func Find(dir string) ([]string, error) {
	var w Walker
	return w.Find(dir)
}

// Find returns the paths of the JARs below dir. Files are visited in lexical
// order, so the result is stable for a given tree.
func (w *Walker) Find(dir string) ([]string, error) {
	fsys := os.DirFS(dir)
	wk := walker{w, fsys, dir}

	var found []string
	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return wk.handleError(p, err)
		}
		if d.IsDir() && wk.skipDir(p, d) {
			return fs.SkipDir
		}
		ok, err := wk.visit(p, d)
		if err != nil {
			return wk.handleError(p, err)
		}
		if ok {
			found = append(found, wk.filepath(p))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

type walker struct {
	*Walker
	fs  fs.FS
	dir string
}

func (w *walker) filepath(path string) string {
	return filepath.Join(w.dir, path)
}

func (w *walker) handleError(path string, err error) error {
	if w.HandleError == nil {
		return fmt.Errorf("%s: %w", w.filepath(path), err)
	}
	w.HandleError(w.filepath(path), err)
	return nil
}

func (w *walker) skipDir(path string, d fs.DirEntry) bool {
	if w.SkipDir == nil {
		return false
	}
	return w.SkipDir(w.filepath(path), d)
}

func (w *walker) visit(p string, d fs.DirEntry) (bool, error) {
	if d.IsDir() || !d.Type().IsRegular() {
		return false, nil
	}
	if !exts[path.Ext(p)] {
		return false, nil
	}
	f, err := w.fs.Open(p)
	if err != nil {
		return false, fmt.Errorf("open: %v", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return false, fmt.Errorf("stat: %v", err)
	}
	ra, ok := f.(io.ReaderAt)
	if !ok {
		return false, fmt.Errorf("file doesn't implement reader at: %T", f)
	}
	zr, _, err := NewReader(ra, info.Size())
	if err != nil {
		if errors.Is(err, zip.ErrFormat) {
			// Not a JAR.
			return false, nil
		}
		return false, fmt.Errorf("opening file as a ZIP archive: %v", err)
	}
	return IsJAR(zr), nil
}
