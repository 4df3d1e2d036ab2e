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
	"sort"
	"strings"
	"time"
)

// FixedZipTime is the modification time of every entry written by
// WriteArchive (1980-01-01 UTC, the earliest time a ZIP can represent).
var FixedZipTime = time.Unix(315532800, 0).UTC()

// Entry is a file to be written to an archive.
type Entry struct {
	// Name is the slash separated path inside the archive.
	Name string
	Data []byte
}

func validName(name string) bool {
	if name == "" || strings.HasPrefix(name, "/") || strings.HasSuffix(name, "/") {
		return false
	}
	if path.Clean(name) != name || name == ".." || strings.HasPrefix(name, "../") {
		return false
	}
	return true
}

// Write writes entries as a ZIP to w. Entries are sorted by name and carry a
// fixed timestamp and mode, so equal input always yields equal bytes.
func Write(w io.Writer, entries []Entry) error {
	sorted := make([]Entry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
	for i, e := range sorted {
		if !validName(e.Name) {
			return fmt.Errorf("invalid entry name %q", e.Name)
		}
		if i > 0 && sorted[i-1].Name == e.Name {
			return fmt.Errorf("duplicate entry %s", e.Name)
		}
	}

	zw := zip.NewWriter(w)
	for _, e := range sorted {
		h := &zip.FileHeader{Name: e.Name, Method: zip.Deflate}
		h.SetMode(0o644)
		h.Modified = FixedZipTime
		fw, err := zw.CreateHeader(h)
		if err != nil {
			return fmt.Errorf("create %s: %w", e.Name, err)
		}
		if _, err := fw.Write(e.Data); err != nil {
			return fmt.Errorf("write %s: %w", e.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("finalize writer: %w", err)
	}
	return nil
}

// WriteArchive atomically replaces dest with an archive holding entries. The
// archive is written to a temporary file next to dest and renamed into place
// only once it is complete; on failure dest is left untouched. An existing
// dest keeps its owner.
func WriteArchive(dest string, entries []Entry) error {
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	// Ensure temp file is created in the same directory as the file we want to
	// write to improve the chances of ending up on the same filesystem. On
	// Linux, os.Rename() doesn't work across filesystems.
	tf, err := os.CreateTemp(dir, ".classpatch")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tf.Name()) // Attempt to clean up temp file no matter what.
	defer tf.Close()

	if err := Write(tf, entries); err != nil {
		return fmt.Errorf("writing %s: %w", dest, err)
	}
	if err := tf.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	// Files must be closed for rename to work on Windows.
	if err := tf.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tf.Name(), 0o644); err != nil {
		return fmt.Errorf("chmod file: %w", err)
	}

	if err := copyOwner(dest, tf.Name()); err != nil {
		return err
	}

	if err := os.Rename(tf.Name(), dest); err != nil {
		return fmt.Errorf("replacing %s: %w", dest, err)
	}
	return nil
}

// RemoveStale deletes a previous output at dest, if any, so that a failed run
// leaves nothing a later build could mistake for a valid archive.
func RemoveStale(dest string) error {
	if err := os.Remove(dest); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing stale output: %w", err)
	}
	return nil
}
