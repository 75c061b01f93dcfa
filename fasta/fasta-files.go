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

package fasta

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/exascience/nanocompore/internal"
)

// FaiReference represents an entry in an FAI file.
type FaiReference struct {
	Length    int
	Offset    int64
	LineBases int
	LineWidth int
}

// FaiFilename returns the conventional name of the FAI index of a FASTA file.
func FaiFilename(filename string) string {
	return filename + ".fai"
}

// ParseFai parses an FAI file.
func ParseFai(filename string) (fai map[string]FaiReference, err error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	fai = make(map[string]FaiReference)

	scanner := bufio.NewScanner(f)

	for line := 1; scanner.Scan(); line++ {
		b := bytes.Split(scanner.Bytes(), []byte("\t"))
		if len(b) != 5 {
			return nil, fmt.Errorf("badly formatted fai file %v - invalid number of entries in line %v", filename, line)
		}
		var ref FaiReference
		if ref.Length, err = internal.ParseInt("length", b[1]); err != nil {
			return nil, fmt.Errorf("%v, in fai file %v", err, filename)
		}
		offset, err := internal.ParseInt("offset", b[2])
		if err != nil {
			return nil, fmt.Errorf("%v, in fai file %v", err, filename)
		}
		ref.Offset = int64(offset)
		if ref.LineBases, err = internal.ParseInt("linebases", b[3]); err != nil {
			return nil, fmt.Errorf("%v, in fai file %v", err, filename)
		}
		if ref.LineWidth, err = internal.ParseInt("linewidth", b[4]); err != nil {
			return nil, fmt.Errorf("%v, in fai file %v", err, filename)
		}
		if ref.LineBases <= 0 || ref.LineWidth < ref.LineBases {
			return nil, fmt.Errorf("badly formatted fai file %v - invalid line layout in line %v", filename, line)
		}
		fai[string(b[0])] = ref
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return fai, nil
}

func contigFromHeader(b []byte) string {
	i := 1
	for ; i < len(b); i++ {
		if c := b[i]; c >= '!' && c <= '~' {
			break
		}
	}
	j := i + 1
	for ; j < len(b); j++ {
		if c := b[j]; c < '!' || c > '~' {
			break
		}
	}
	if i >= len(b) {
		return ""
	}
	if j > len(b) {
		j = len(b)
	}
	return string(b[i:j])
}

func toUpper(b []byte) {
	for i, c := range b {
		if c >= 'a' && c <= 'z' {
			b[i] = c - ('a' - 'A')
		}
	}
}

const maxLineLength = 1 << 30

// ParseFasta sequentially parses a FASTA file. All sequences are
// converted to upper case.
func ParseFasta(filename string) (fasta map[string][]byte, err error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineLength)

	fasta = make(map[string][]byte)
	contig, inContig := "", false
	var seq []byte

	for scanner.Scan() {
		b := scanner.Bytes()
		if len(b) == 0 {
			continue
		}
		if b[0] == '>' {
			if inContig {
				fasta[contig] = seq
			}
			contig, inContig = contigFromHeader(b), true
			if _, dup := fasta[contig]; dup {
				return nil, fmt.Errorf("invalid fasta file %v - duplicate contig %v", filename, contig)
			}
			seq = nil
			continue
		}
		if !inContig {
			return nil, fmt.Errorf("invalid fasta file %v - missing first header", filename)
		}
		toUpper(b)
		seq = append(seq, bytes.TrimRight(b, "\r")...)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if !inContig {
		return nil, fmt.Errorf("empty fasta file %v", filename)
	}
	fasta[contig] = seq
	return fasta, nil
}

// A Reference gives access to the sequences of a FASTA file by contig
// name. When an FAI index is available next to the FASTA file, sequences
// are read on demand. Otherwise the whole file is parsed into memory.
//
// A Reference is safe for concurrent use.
type Reference struct {
	filename string
	file     *os.File
	fai      map[string]FaiReference
	seqs     map[string][]byte
}

// Open opens a FASTA file as a Reference.
func Open(filename string) (*Reference, error) {
	ref := &Reference{filename: filename}
	faiName := FaiFilename(filename)
	if internal.Exists(faiName) {
		fai, err := ParseFai(faiName)
		if err != nil {
			return nil, err
		}
		f, err := os.Open(filename)
		if err != nil {
			return nil, err
		}
		ref.fai, ref.file = fai, f
		return ref, nil
	}
	seqs, err := ParseFasta(filename)
	if err != nil {
		return nil, err
	}
	ref.seqs = seqs
	return ref, nil
}

// Indexed reports whether sequences are read on demand through an FAI index.
func (ref *Reference) Indexed() bool {
	return ref.fai != nil
}

// Contigs returns the sorted contig names of the reference.
func (ref *Reference) Contigs() []string {
	var contigs []string
	if ref.fai != nil {
		for contig := range ref.fai {
			contigs = append(contigs, contig)
		}
	} else {
		for contig := range ref.seqs {
			contigs = append(contigs, contig)
		}
	}
	sort.Strings(contigs)
	return contigs
}

// Length returns the sequence length of the given contig.
func (ref *Reference) Length(contig string) (int, bool) {
	if ref.fai != nil {
		entry, ok := ref.fai[contig]
		return entry.Length, ok
	}
	seq, ok := ref.seqs[contig]
	return len(seq), ok
}

// Sequence returns the upper case sequence of the given contig. The
// result must not be modified.
func (ref *Reference) Sequence(contig string) ([]byte, error) {
	if ref.fai == nil {
		seq, ok := ref.seqs[contig]
		if !ok {
			return nil, fmt.Errorf("contig %v not found in fasta file %v", contig, ref.filename)
		}
		return seq, nil
	}
	entry, ok := ref.fai[contig]
	if !ok {
		return nil, fmt.Errorf("contig %v not found in fasta index of %v", contig, ref.filename)
	}
	if entry.Length == 0 {
		return []byte{}, nil
	}
	fullLines := (entry.Length - 1) / entry.LineBases
	span := fullLines*entry.LineWidth + entry.Length - fullLines*entry.LineBases
	raw := make([]byte, span)
	if n, err := ref.file.ReadAt(raw, entry.Offset); err != nil && !(err == io.EOF && n == span) {
		return nil, fmt.Errorf("%v, while reading contig %v from fasta file %v", err, contig, ref.filename)
	}
	seq := raw[:0]
	for _, c := range raw {
		if c != '\n' && c != '\r' {
			seq = append(seq, c)
		}
	}
	if len(seq) != entry.Length {
		return nil, fmt.Errorf("fasta index of %v does not match contig %v", ref.filename, contig)
	}
	toUpper(seq)
	return seq, nil
}

// Close releases the underlying file of an indexed Reference.
func (ref *Reference) Close() error {
	if ref.file != nil {
		return ref.file.Close()
	}
	return nil
}
