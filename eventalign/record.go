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

// Package eventalign reads and writes collapsed eventalign files: text
// files holding one record per read, with per-position signal statistics,
// together with a tab-separated index of record byte ranges.
package eventalign

import (
	"bytes"
	"fmt"

	"github.com/exascience/nanocompore/internal"
)

// Column names of a record body.
const (
	RefPosColumn            = "ref_pos"
	RefKmerColumn           = "ref_kmer"
	MedianColumn            = "median"
	DwellTimeColumn         = "dwell_time"
	NNNNNDwellTimeColumn    = "NNNNN_dwell_time"
	MismatchDwellTimeColumn = "mismatch_dwell_time"
)

// RequiredColumns must be present in every record.
var RequiredColumns = []string{RefPosColumn, RefKmerColumn, MedianColumn, DwellTimeColumn}

// KmerStatsColumns are optional. When both are present, a record carries
// per-position k-mer statistics.
var KmerStatsColumns = []string{NNNNNDwellTimeColumn, MismatchDwellTimeColumn}

// Header identifies the read a record belongs to.
type Header struct {
	ReadID string
	RefID  string
}

// An Event is one row of a record: the signal observed for one reference
// position.
type Event struct {
	RefPos            int
	RefKmer           string
	Median            float64
	DwellTime         float64
	NNNNNDwellTime    float64
	MismatchDwellTime float64
}

// A Record is the parsed form of one read.
type Record struct {
	Header    Header
	KmerStats bool
	Events    []Event
}

var tab = []byte("\t")

func nextLine(data []byte) (line, rest []byte) {
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		line, rest = data[:i], data[i+1:]
	} else {
		line, rest = data, nil
	}
	return bytes.TrimSuffix(line, []byte("\r")), rest
}

/*
ParseRecord parses the bytes of one record.

The first line is a header of the form "#<read_id>\t<ref_id>". The
second line names the columns of the tab-separated rows that follow.
Empty lines are ignored. The returned record does not retain data, so
callers may reuse the underlying buffer.
*/
func ParseRecord(data []byte) (*Record, error) {
	line, data := nextLine(data)
	if len(line) == 0 || line[0] != '#' {
		return nil, fmt.Errorf("invalid record header %q", line)
	}
	fields := bytes.Split(line[1:], tab)
	if len(fields) < 2 {
		return nil, fmt.Errorf("invalid record header %q", line)
	}
	rec := &Record{Header: Header{ReadID: string(fields[0]), RefID: string(fields[1])}}

	line, data = nextLine(data)
	columns := make(map[string]int)
	for i, name := range bytes.Split(line, tab) {
		columns[string(name)] = i
	}
	var missing []string
	for _, name := range RequiredColumns {
		if _, ok := columns[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("required fields not found in the data file: %v", missing)
	}
	posCol, kmerCol := columns[RefPosColumn], columns[RefKmerColumn]
	medianCol, dwellCol := columns[MedianColumn], columns[DwellTimeColumn]
	nnnnnCol, hasNNNNN := columns[NNNNNDwellTimeColumn]
	mismatchCol, hasMismatch := columns[MismatchDwellTimeColumn]
	rec.KmerStats = hasNNNNN && hasMismatch
	width := len(columns)

	for len(data) > 0 {
		line, data = nextLine(data)
		if len(line) == 0 {
			continue
		}
		fields := bytes.Split(line, tab)
		if len(fields) < width {
			return nil, fmt.Errorf("row %q has %v fields, expected %v", line, len(fields), width)
		}
		var ev Event
		var err error
		if ev.RefPos, err = internal.ParseInt(RefPosColumn, fields[posCol]); err != nil {
			return nil, err
		}
		ev.RefKmer = string(fields[kmerCol])
		if ev.Median, err = internal.ParseFloat(MedianColumn, fields[medianCol]); err != nil {
			return nil, err
		}
		if ev.DwellTime, err = internal.ParseFloat(DwellTimeColumn, fields[dwellCol]); err != nil {
			return nil, err
		}
		if rec.KmerStats {
			if ev.NNNNNDwellTime, err = internal.ParseFloat(NNNNNDwellTimeColumn, fields[nnnnnCol]); err != nil {
				return nil, err
			}
			if ev.MismatchDwellTime, err = internal.ParseFloat(MismatchDwellTimeColumn, fields[mismatchCol]); err != nil {
				return nil, err
			}
		}
		rec.Events = append(rec.Events, ev)
	}
	return rec, nil
}
