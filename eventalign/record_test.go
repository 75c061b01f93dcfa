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
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRecord(t *testing.T) {
	data := []byte("#read1\tref1\n" +
		"ref_pos\tref_kmer\tmedian\tdwell_time\n" +
		"0\tACGTA\t80.5\t0.01\n" +
		"\n" +
		"2\tGTACG\t91\t0.002\n")
	rec, err := ParseRecord(data)
	require.NoError(t, err)
	assert.Equal(t, Header{ReadID: "read1", RefID: "ref1"}, rec.Header)
	assert.False(t, rec.KmerStats)
	require.Len(t, rec.Events, 2)
	assert.Equal(t, Event{RefPos: 0, RefKmer: "ACGTA", Median: 80.5, DwellTime: 0.01}, rec.Events[0])
	assert.Equal(t, 2, rec.Events[1].RefPos)
	assert.Equal(t, 91.0, rec.Events[1].Median)
}

func TestParseRecordColumnsByName(t *testing.T) {
	data := []byte("#read1\tref1\n" +
		"dwell_time\tNNNNN_dwell_time\tref_kmer\tmismatch_dwell_time\tmedian\tref_pos\n" +
		"0.01\t0.002\tACGTA\t0.003\t80\t7")
	rec, err := ParseRecord(data)
	require.NoError(t, err)
	assert.True(t, rec.KmerStats)
	require.Len(t, rec.Events, 1)
	assert.Equal(t, Event{
		RefPos:            7,
		RefKmer:           "ACGTA",
		Median:            80,
		DwellTime:         0.01,
		NNNNNDwellTime:    0.002,
		MismatchDwellTime: 0.003,
	}, rec.Events[0])
}

func TestParseRecordOneKmerStatsColumnIsNotEnough(t *testing.T) {
	data := []byte("#read1\tref1\n" +
		"ref_pos\tref_kmer\tmedian\tdwell_time\tNNNNN_dwell_time\n" +
		"0\tACGTA\t80\t0.01\t0.002\n")
	rec, err := ParseRecord(data)
	require.NoError(t, err)
	assert.False(t, rec.KmerStats)
	assert.Zero(t, rec.Events[0].NNNNNDwellTime)
}

func TestParseRecordErrors(t *testing.T) {
	for name, data := range map[string]string{
		"missing header":  "read1\tref1\nref_pos\tref_kmer\tmedian\tdwell_time\n",
		"short header":    "#read1\nref_pos\tref_kmer\tmedian\tdwell_time\n",
		"missing column":  "#read1\tref1\nref_pos\tref_kmer\tdwell_time\n0\tACGTA\t0.01\n",
		"short row":       "#read1\tref1\nref_pos\tref_kmer\tmedian\tdwell_time\n0\tACGTA\t80\n",
		"invalid number":  "#read1\tref1\nref_pos\tref_kmer\tmedian\tdwell_time\n0\tACGTA\tabc\t0.01\n",
		"invalid integer": "#read1\tref1\nref_pos\tref_kmer\tmedian\tdwell_time\nx\tACGTA\t80\t0.01\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseRecord([]byte(data))
			assert.Error(t, err)
		})
	}
}

func TestParseRecordReportsMissingColumns(t *testing.T) {
	_, err := ParseRecord([]byte("#read1\tref1\nref_pos\tref_kmer\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required fields not found")
	assert.Contains(t, err.Error(), "median")
	assert.Contains(t, err.Error(), "dwell_time")
}

func writeTestFile(t *testing.T, records ...*Record) (string, []IndexEntry) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sample.tsv")
	w, err := Create(path)
	require.NoError(t, err)
	var entries []IndexEntry
	for _, rec := range records {
		entry, err := w.Write(rec)
		require.NoError(t, err)
		entries = append(entries, entry)
	}
	require.NoError(t, w.Close())
	return path, entries
}

func testRecords() []*Record {
	return []*Record{
		{
			Header:    Header{ReadID: "r1", RefID: "refA"},
			KmerStats: true,
			Events: []Event{
				{RefPos: 0, RefKmer: "AAAAA", Median: 80, DwellTime: 0.01},
				{RefPos: 1, RefKmer: "AAAAC", Median: 81, DwellTime: 0.02, NNNNNDwellTime: 0.01},
				{RefPos: 4, RefKmer: "ACGTT", Median: 82.25, DwellTime: 0.004, MismatchDwellTime: 0.001},
			},
		},
		{
			Header: Header{ReadID: "r2", RefID: "refB"},
			Events: []Event{
				{RefPos: 3, RefKmer: "CCCCC", Median: 100, DwellTime: 0.005},
			},
		},
	}
}

func TestWriterAndIndexRoundTrip(t *testing.T) {
	records := testRecords()
	path, written := writeTestFile(t, records...)

	entries, err := ParseIndex(IndexFilename(path))
	require.NoError(t, err)
	require.Equal(t, written, entries)

	first := entries[0]
	assert.Equal(t, "refA", first.RefID)
	assert.Equal(t, "r1", first.ReadID)
	assert.Equal(t, 0, first.RefStart)
	assert.Equal(t, 5, first.RefEnd)
	assert.Equal(t, 3, first.Kmers)
	assert.Equal(t, 1, first.NNNNNKmers)
	assert.Equal(t, 1, first.MismatchKmers)
	assert.Equal(t, 2, first.MissingKmers)
	assert.InDelta(t, 4.0/5.0, first.InvalidKmerFreq(), 1e-12)
	assert.Zero(t, entries[1].InvalidKmerFreq())

	for _, mode := range []Mode{ModeRead, ModeMmap} {
		t.Run(mode.String(), func(t *testing.T) {
			r, err := Open(path, mode)
			require.NoError(t, err)
			defer r.Close()
			for i, entry := range entries {
				data, err := r.ReadRecord(entry.ByteOffset, entry.ByteLen, nil)
				require.NoError(t, err)
				rec, err := ParseRecord(data)
				require.NoError(t, err)
				assert.Equal(t, records[i], rec)
			}
			_, err = r.ReadRecord(entries[1].ByteOffset, entries[1].ByteLen+100, nil)
			assert.Error(t, err)
		})
	}
}

func TestParseIndexDefaultsOptionalColumns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.tsv.idx")
	require.NoError(t, writeFile(path, "read_id\tref_id\tbyte_offset\tbyte_len\nr1\trefA\t0\t10\n"))
	entries, err := ParseIndex(path)
	require.NoError(t, err)
	assert.Equal(t, []IndexEntry{{RefID: "refA", ReadID: "r1", ByteOffset: 0, ByteLen: 10}}, entries)
}

func TestParseIndexErrors(t *testing.T) {
	dir := t.TempDir()
	for name, content := range map[string]string{
		"empty":          "",
		"missing column": "ref_id\tread_id\tbyte_offset\nrefA\tr1\t0\n",
		"bad offset":     "ref_id\tread_id\tbyte_offset\tbyte_len\nrefA\tr1\tx\t10\n",
		"empty record":   "ref_id\tread_id\tbyte_offset\tbyte_len\nrefA\tr1\t0\t0\n",
		"short line":     "ref_id\tread_id\tbyte_offset\tbyte_len\nrefA\tr1\t0\n",
	} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name+".idx")
			require.NoError(t, writeFile(path, content))
			_, err := ParseIndex(path)
			assert.Error(t, err)
		})
	}
}

func TestParseMode(t *testing.T) {
	mode, err := ParseMode("MMAP")
	require.NoError(t, err)
	assert.Equal(t, ModeMmap, mode)
	mode, err = ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeRead, mode)
	_, err = ParseMode("stream")
	assert.Error(t, err)
}
