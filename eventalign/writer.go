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
	"fmt"
	"os"
	"strconv"
	"strings"
)

// A Writer writes records to a collapsed eventalign file and the
// matching entries to its index.
type Writer struct {
	file   *os.File
	out    *bufio.Writer
	index  *os.File
	idx    *bufio.Writer
	offset int64
}

// Create creates filename and its index, truncating existing files.
func Create(filename string) (*Writer, error) {
	f, err := os.Create(filename)
	if err != nil {
		return nil, err
	}
	idx, err := os.Create(IndexFilename(filename))
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	w := &Writer{file: f, out: bufio.NewWriter(f), index: idx, idx: bufio.NewWriter(idx)}
	if _, err := w.idx.WriteString(strings.Join(IndexHeader, "\t") + "\n"); err != nil {
		_ = w.Close()
		return nil, err
	}
	return w, nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

/*
Write appends rec to the file and its entry to the index, and returns
the entry. The k-mer count columns of the entry are derived from the
events: ambiguous and mismatching k-mers have a non-zero dwell time in
the respective column, and missing k-mers are the positions between the
first and last event that have no event.
*/
func (w *Writer) Write(rec *Record) (IndexEntry, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "#%v\t%v\n", rec.Header.ReadID, rec.Header.RefID)
	columns := RequiredColumns
	if rec.KmerStats {
		columns = append(append([]string(nil), RequiredColumns...), KmerStatsColumns...)
	}
	sb.WriteString(strings.Join(columns, "\t"))

	entry := IndexEntry{RefID: rec.Header.RefID, ReadID: rec.Header.ReadID, Kmers: len(rec.Events)}
	for i, ev := range rec.Events {
		sb.WriteByte('\n')
		sb.WriteString(strconv.Itoa(ev.RefPos))
		sb.WriteByte('\t')
		sb.WriteString(ev.RefKmer)
		sb.WriteByte('\t')
		sb.WriteString(formatFloat(ev.Median))
		sb.WriteByte('\t')
		sb.WriteString(formatFloat(ev.DwellTime))
		if rec.KmerStats {
			sb.WriteByte('\t')
			sb.WriteString(formatFloat(ev.NNNNNDwellTime))
			sb.WriteByte('\t')
			sb.WriteString(formatFloat(ev.MismatchDwellTime))
			if ev.NNNNNDwellTime > 0 {
				entry.NNNNNKmers++
			}
			if ev.MismatchDwellTime > 0 {
				entry.MismatchKmers++
			}
		}
		if i == 0 || ev.RefPos < entry.RefStart {
			entry.RefStart = ev.RefPos
		}
		if i == 0 || ev.RefPos+1 > entry.RefEnd {
			entry.RefEnd = ev.RefPos + 1
		}
	}
	if span := entry.RefEnd - entry.RefStart; span > entry.Kmers {
		entry.MissingKmers = span - entry.Kmers
	}
	body := sb.String()
	entry.ByteOffset = w.offset
	entry.ByteLen = len(body)

	if _, err := w.out.WriteString(body); err != nil {
		return entry, err
	}
	if err := w.out.WriteByte('\n'); err != nil {
		return entry, err
	}
	w.offset += int64(len(body)) + 1

	fields := []string{
		entry.RefID,
		strconv.Itoa(entry.RefStart),
		strconv.Itoa(entry.RefEnd),
		entry.ReadID,
		strconv.Itoa(entry.Kmers),
		strconv.Itoa(entry.NNNNNKmers),
		strconv.Itoa(entry.MismatchKmers),
		strconv.Itoa(entry.MissingKmers),
		strconv.FormatInt(entry.ByteOffset, 10),
		strconv.Itoa(entry.ByteLen),
	}
	if _, err := w.idx.WriteString(strings.Join(fields, "\t") + "\n"); err != nil {
		return entry, err
	}
	return entry, nil
}

// Close flushes and closes both files.
func (w *Writer) Close() (err error) {
	for _, step := range []func() error{w.out.Flush, w.file.Close, w.idx.Flush, w.index.Close} {
		if serr := step(); err == nil {
			err = serr
		}
	}
	return err
}
