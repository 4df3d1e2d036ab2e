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
	"bytes"
	"encoding/binary"
	"io"
)

const (
	eocdSignature = "PK\x05\x06"
	eocdLen       = 22
	maxCommentLen = 0xffff
)

// readZIPOffset returns the number of bytes preceding the ZIP data in ra,
// such as the shell script of a self-executable JAR.
//
// The end of central directory record stores the offset of the central
// directory relative to the start of the ZIP data. Comparing it with where
// the central directory actually ends up gives the prefix length. ZIP64
// archives are assumed to have no prefix.
func readZIPOffset(ra io.ReaderAt, size int64) (int64, error) {
	if size < eocdLen {
		return 0, zip.ErrFormat
	}
	n := int64(eocdLen + maxCommentLen)
	if n > size {
		n = size
	}
	buf := make([]byte, n)
	if _, err := ra.ReadAt(buf, size-n); err != nil && err != io.EOF {
		return 0, err
	}
	i := bytes.LastIndex(buf, []byte(eocdSignature))
	for i >= 0 && len(buf)-i < eocdLen {
		i = bytes.LastIndex(buf[:i], []byte(eocdSignature))
	}
	if i < 0 {
		return 0, zip.ErrFormat
	}
	rec := buf[i : i+eocdLen]
	dirSize := binary.LittleEndian.Uint32(rec[12:16])
	dirOffset := binary.LittleEndian.Uint32(rec[16:20])
	if dirSize == 0xffffffff || dirOffset == 0xffffffff {
		return 0, nil
	}
	eocdPos := size - n + int64(i)
	offset := eocdPos - int64(dirSize) - int64(dirOffset)
	if offset < 0 {
		return 0, zip.ErrFormat
	}
	return offset, nil
}
