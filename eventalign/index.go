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
	"bufio"
	"bytes"
	"fmt"
	"os"

	"github.com/exascience/nanocompore/internal"
	"github.com/exascience/nanocompore/utils"
)

// IndexHeader is the header line of an index file.
var IndexHeader = []string{
	"ref_id", "ref_start", "ref_end", "read_id", "kmers",
	"NNNNN_kmers", "mismatch_kmers", "missing_kmers", "byte_offset", "byte_len",
}

// An IndexEntry locates one record in a collapsed eventalign file and
// summarizes its k-mer counts.
type IndexEntry struct {
	RefID         string
	RefStart      int
	RefEnd        int
	ReadID        string
	Kmers         int
	NNNNNKmers    int
	MismatchKmers int
	MissingKmers  int
	ByteOffset    int64
	ByteLen       int
}

// InvalidKmerFreq is the fraction of k-mers of the read that are
// ambiguous, mismatching, or missing.
func (e *IndexEntry) InvalidKmerFreq() float64 {
	total := e.Kmers + e.MissingKmers
	if total == 0 {
		return 0
	}
	return float64(e.NNNNNKmers+e.MismatchKmers+e.MissingKmers) / float64(total)
}

// IndexFilename returns the name of the index that belongs to a
// collapsed eventalign file.
func IndexFilename(filename string) string {
	return filename + ".idx"
}

/*
ParseIndex parses an index file.

Columns are matched by name. ref_id, read_id, byte_offset, and byte_len
are required. The k-mer count columns default to zero when absent.
Reference identifiers are interned.
*/
func ParseIndex(filename string) (entries []IndexEntry, err error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("empty index file %v", filename)
	}
	columns := make(map[string]int)
	for i, name := range bytes.Split(scanner.Bytes(), tab) {
		columns[string(name)] = i
	}
	for _, name := range []string{"ref_id", "read_id", "byte_offset", "byte_len"} {
		if _, ok := columns[name]; !ok {
			return nil, fmt.Errorf("required field %v not found in index file %v", name, filename)
		}
	}
	intColumn := func(fields [][]byte, name string, dst *int) error {
		i, ok := columns[name]
		if !ok {
			return nil
		}
		v, err := internal.ParseInt(name, fields[i])
		*dst = v
		return err
	}

	for line := 2; scanner.Scan(); line++ {
		b := scanner.Bytes()
		if len(b) == 0 {
			continue
		}
		fields := bytes.Split(b, tab)
		if len(fields) < len(columns) {
			return nil, fmt.Errorf("badly formatted index file %v - invalid number of entries in line %v", filename, line)
		}
		entry := IndexEntry{
			RefID:  utils.Intern(string(fields[columns["ref_id"]])),
			ReadID: string(fields[columns["read_id"]]),
		}
		var offset int
		for _, c := range []struct {
			name string
			dst  *int
		}{
			{"ref_start", &entry.RefStart},
			{"ref_end", &entry.RefEnd},
			{"kmers", &entry.Kmers},
			{"NNNNN_kmers", &entry.NNNNNKmers},
			{"mismatch_kmers", &entry.MismatchKmers},
			{"missing_kmers", &entry.MissingKmers},
			{"byte_offset", &offset},
			{"byte_len", &entry.ByteLen},
		} {
			if err := intColumn(fields, c.name, c.dst); err != nil {
				return nil, fmt.Errorf("%v, in line %v of index file %v", err, line, filename)
			}
		}
		entry.ByteOffset = int64(offset)
		if entry.ByteOffset < 0 || entry.ByteLen <= 0 {
			return nil, fmt.Errorf("invalid byte range in line %v of index file %v", line, filename)
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}
