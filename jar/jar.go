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

// Package jar reads JAR archives, including self-executable ones, and writes
// small reproducible archives of patched entries.
package jar

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
)

var exts = map[string]bool{
	".jar":  true,
	".war":  true,
	".ear":  true,
	".zip":  true,
	".jmod": true,
}

// DefaultMaxBytes is the largest entry Lookup reads into memory unless the
// Archive says otherwise.
const DefaultMaxBytes = 1 << 30 // 1GiB

const bufSize = 4 << 10 // 4 KiB

// ReadCloser mirrors zip.ReadCloser.
type ReadCloser struct {
	zip.Reader

	f *os.File
}

// Close closes the underlying file.
func (r *ReadCloser) Close() error {
	return r.f.Close()
}

// OpenReader mirrors zip.OpenReader, loading a JAR from a file, but supports
// self-executable JARs. See NewReader() for details.
func OpenReader(path string) (r *ReadCloser, offset int64, err error) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return
	}
	zr, offset, err := NewReader(f, info.Size())
	if err != nil {
		f.Close()
		return
	}
	return &ReadCloser{*zr, f}, offset, nil
}

// offsetReader is a io.ReaderAt that starts at some offset from the start of
// the file.
type offsetReader struct {
	ra     io.ReaderAt
	offset int64
}

func (o offsetReader) ReadAt(p []byte, off int64) (n int, err error) {
	return o.ra.ReadAt(p, off+o.offset)
}

// NewReader is a wrapper around zip.NewReader that supports self-executable
// JARs. JAR files with prefixed data, such as a bash script to allow them to
// run directly.
//
// If the ZIP contains a prefix, the returned offset indicates the size of the
// prefix.
//
// See:
// - https://kevinboone.me/execjava.html
// - https://github.com/golang/go/issues/10464
func NewReader(ra io.ReaderAt, size int64) (zr *zip.Reader, offset int64, err error) {
	offset, err = readZIPOffset(ra, size)
	if err != nil {
		return nil, 0, err
	}
	if offset > 0 {
		ra = offsetReader{ra, offset}
		size -= offset
	}
	zr, err = zip.NewReader(ra, size)
	return zr, offset, err
}

// Archive is an open archive whose entries can be looked up by name.
// Directory entries are not visible.
type Archive struct {
	// MaxBytes is the largest entry Lookup reads. Default is DefaultMaxBytes.
	MaxBytes int64

	path  string
	rc    *ReadCloser
	files map[string]*zip.File
}

// Open opens the archive at path. The caller must Close it.
func Open(path string) (*Archive, error) {
	rc, _, err := OpenReader(path)
	if err != nil {
		return nil, err
	}
	a := &Archive{path: path, rc: rc, files: make(map[string]*zip.File, len(rc.File))}
	for _, f := range rc.File {
		if f.FileInfo().IsDir() {
			continue
		}
		// Like the JVM, the first of several entries with the same name
		// wins.
		if _, ok := a.files[f.Name]; !ok {
			a.files[f.Name] = f
		}
	}
	return a, nil
}

// Path returns the location the archive was opened from.
func (a *Archive) Path() string {
	return a.path
}

// Close releases the underlying file.
func (a *Archive) Close() error {
	return a.rc.Close()
}

func (a *Archive) maxBytes() int64 {
	if a.MaxBytes == 0 {
		return DefaultMaxBytes
	}
	return a.MaxBytes
}

// Lookup reads the entry called name, reusing buf when it is large enough.
// It reports false if there is no such file entry.
func (a *Archive) Lookup(name string, buf []byte) ([]byte, bool, error) {
	f, ok := a.files[name]
	if !ok {
		return buf, false, nil
	}
	fi := f.FileInfo()
	if fi.Size() > a.maxBytes() {
		return buf, true, fmt.Errorf("entry %s is greater than %d bytes", name, a.maxBytes())
	}
	r, err := f.Open()
	if err != nil {
		return buf, true, fmt.Errorf("open entry %s: %w", name, err)
	}
	defer r.Close()
	buf, err = readFull(r, fi, buf)
	if err != nil {
		return buf, true, fmt.Errorf("read entry %s: %w", name, err)
	}
	return buf, true, nil
}

func readFull(r io.Reader, fi os.FileInfo, buf []byte) ([]byte, error) {
	if !fi.Mode().IsRegular() {
		return io.ReadAll(r) // If not a regular file, size may not be accurate.
	}
	if size := int(fi.Size()); cap(buf) < size {
		capacity := size
		if capacity < bufSize {
			capacity = bufSize // Allocating much smaller buffers could lead to quick re-allocations.
		}
		buf = make([]byte, size, capacity)
	} else {
		buf = buf[:size]
	}
	n, err := io.ReadFull(r, buf)
	if err != nil || n != len(buf) {
		return buf, err
	}
	return buf, nil
}
