// nanocompore: comparing nanopore signal data between two conditions.
// Copyright (c) 2021 imec vzw.

// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version, and Additional Terms
// (see below).

// This program is distributed in the hope that it will be useful, but
// WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Affero General Public License for more details.

// You should have received a copy of the GNU Affero General Public
// License and Additional Terms along with this program. If not, see
// <https://github.com/ExaScience/nanocompore/blob/master/LICENSE.txt>.

package eventalign

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/edsrzf/mmap-go"
)

// Mode selects how a Reader accesses its file.
type Mode int

const (
	// ModeRead issues positioned reads for every record.
	ModeRead Mode = iota
	// ModeMmap maps the whole file into memory.
	ModeMmap
)

// ParseMode parses "read" or "mmap".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "", "read":
		return ModeRead, nil
	case "mmap":
		return ModeMmap, nil
	default:
		return ModeRead, fmt.Errorf("invalid reader mode %v", s)
	}
}

func (m Mode) String() string {
	if m == ModeMmap {
		return "mmap"
	}
	return "read"
}

// A Reader gives random access to the records of one collapsed
// eventalign file.
type Reader interface {
	// ReadRecord returns the length bytes at offset. The result may
	// share memory with buf or with the Reader, and is only valid
	// until the next call.
	ReadRecord(offset int64, length int, buf []byte) ([]byte, error)
	Close() error
}

// Open opens a collapsed eventalign file for random access.
func Open(filename string, mode Mode) (Reader, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	switch mode {
	case ModeMmap:
		info, err := f.Stat()
		if err != nil {
			_ = f.Close()
			return nil, err
		}
		if info.Size() == 0 {
			_ = f.Close()
			return nil, fmt.Errorf("cannot map empty file %v", filename)
		}
		m, err := mmap.Map(f, mmap.RDONLY, 0)
		if err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("%v, while mapping %v", err, filename)
		}
		return &mappedReader{name: filename, file: f, data: m}, nil
	default:
		if err := adviseRandom(f); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("%v, while opening %v", err, filename)
		}
		return &fileReader{file: f}, nil
	}
}

type fileReader struct {
	file *os.File
}

func (r *fileReader) ReadRecord(offset int64, length int, buf []byte) ([]byte, error) {
	if cap(buf) < length {
		buf = make([]byte, length)
	}
	buf = buf[:length]
	n, err := r.file.ReadAt(buf, offset)
	if err == io.EOF && n == length {
		err = nil
	}
	if err != nil {
		return nil, fmt.Errorf("%v, while reading %v bytes at offset %v of %v", err, length, offset, r.file.Name())
	}
	return buf, nil
}

func (r *fileReader) Close() error {
	return r.file.Close()
}

type mappedReader struct {
	name string
	file *os.File
	data mmap.MMap
}

func (r *mappedReader) ReadRecord(offset int64, length int, _ []byte) ([]byte, error) {
	if offset < 0 || length < 0 || offset+int64(length) > int64(len(r.data)) {
		return nil, fmt.Errorf("byte range %v+%v out of bounds of %v", offset, length, r.name)
	}
	return r.data[offset : offset+int64(length)], nil
}

func (r *mappedReader) Close() (err error) {
	err = r.data.Unmap()
	if cerr := r.file.Close(); err == nil {
		err = cerr
	}
	return err
}
