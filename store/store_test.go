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

package store

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exascience/nanocompore/sampcomp"
)

var layout = sampcomp.NewLayout([]sampcomp.Condition{
	{Label: "WT", Samples: []sampcomp.Sample{{Label: "wt1"}, {Label: "wt2"}}},
	{Label: "KO", Samples: []sampcomp.Sample{{Label: "ko1"}}},
})

func testTable(t *testing.T, refID string) *sampcomp.PositionTable {
	t.Helper()
	table, err := sampcomp.NewPositionTable(refID, []byte("ACGTACGTAC"), layout)
	require.NoError(t, err)
	stats := &table.Positions[1].Data[0][1]
	stats.Intensity = []float64{80.5, 81.25}
	stats.Dwell = []float64{0.01, 0.02}
	stats.Coverage = 2
	stats.KmerStats = sampcomp.KmerStats{Valid: 1.5, NNNNN: 0.25, Mismatching: 0.25, Missing: 1}
	table.Positions[1].SetResult("KS_intensity_pvalue", 0.03)
	table.Positions[2].SetResult("GMM_anova_pvalue", math.NaN())
	table.Positions[3].Suspect = true
	table.Positions[3].RefKmer += sampcomp.SuspectMarker
	return table
}

func TestRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "out_SampComp.db")
	s, err := Create(path)
	require.NoError(t, err)
	assert.Equal(t, path, s.Path())

	require.NoError(t, s.Put(testTable(t, "tx2")))
	require.NoError(t, s.Put(testTable(t, "tx1")))
	require.NoError(t, s.PutIndex([]string{"tx2", "tx1"}))
	ts := time.Date(2021, 3, 4, 5, 6, 7, 8, time.UTC)
	md := &sampcomp.Metadata{
		RunID:                  "run",
		Timestamp:              ts,
		ToolName:               "nanocompore",
		ToolVersion:            "1.0.4",
		ComparisonMethods:      []string{"KS", "GMM"},
		ResultFields:           []string{"GMM_anova_pvalue", "KS_intensity_pvalue"},
		SequenceContext:        2,
		SequenceContextWeights: sampcomp.HarmonicWeights,
		MinCoverage:            30,
		SampleCount:            3,
	}
	require.NoError(t, s.PutMetadata(md))
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	n, err := s.Count()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	refIDs, err := s.RefIDs()
	require.NoError(t, err)
	assert.Equal(t, []string{"tx2", "tx1"}, refIDs)

	table, err := s.Table("tx1")
	require.NoError(t, err)
	assert.Equal(t, "tx1", table.RefID)
	assert.Equal(t, layout, table.Layout)
	require.Equal(t, 6, table.Len())
	want := testTable(t, "tx1")
	assert.Equal(t, want.Positions[1].Data[0][1], table.Positions[1].Data[0][1])
	assert.Equal(t, 0.03, table.Positions[1].Results["KS_intensity_pvalue"])
	assert.True(t, math.IsNaN(table.Positions[2].Results["GMM_anova_pvalue"]))
	assert.True(t, table.Positions[3].Suspect)
	assert.Equal(t, "TACGT", table.Positions[3].ReferenceKmer())
	assert.Equal(t, "CGTAC", table.Positions[1].RefKmer)

	got, err := s.Metadata()
	require.NoError(t, err)
	assert.True(t, ts.Equal(got.Timestamp))
	got.Timestamp = ts
	assert.Equal(t, md, got)

	_, err = s.Table("tx3")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPutReplacesTable(t *testing.T) {
	s, err := Create(filepath.Join(t.TempDir(), "db"))
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.Put(testTable(t, "tx1")))
	table := testTable(t, "tx1")
	table.Positions[0].SetResult("MW_dwell_pvalue", 0.5)
	require.NoError(t, s.Put(table))

	n, err := s.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	got, err := s.Table("tx1")
	require.NoError(t, err)
	assert.Equal(t, 0.5, got.Positions[0].Results["MW_dwell_pvalue"])

	require.NoError(t, s.PutIndex([]string{"tx1", "tx2"}))
	require.NoError(t, s.PutIndex([]string{"tx1"}))
	refIDs, err := s.RefIDs()
	require.NoError(t, err)
	assert.Equal(t, []string{"tx1"}, refIDs)
}

func TestCreateIsExclusive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db")
	s, err := Create(path)
	require.NoError(t, err)

	_, err = Create(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "locked")

	require.NoError(t, s.Close())
	s, err = Create(path)
	require.NoError(t, err)
	require.NoError(t, s.Close())
}

func TestCreateReplacesPreviousStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db")
	s, err := Create(path)
	require.NoError(t, err)
	require.NoError(t, s.Put(testTable(t, "tx1")))
	require.NoError(t, s.Close())

	rs, err := CreateResultStore(path)
	require.NoError(t, err)
	require.NoError(t, rs.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	n, err := s.Count()
	require.NoError(t, err)
	assert.Zero(t, n)
	_, err = s.Metadata()
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOpenErrors(t *testing.T) {
	dir := t.TempDir()
	_, err := Open(filepath.Join(dir, "missing.db"))
	assert.Error(t, err)

	path := filepath.Join(dir, "db")
	s, err := Create(path)
	require.NoError(t, err)
	_, err = s.db.Exec("UPDATE schema_version SET version = ?", schemaVersion+1)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = Open(path)
	assert.ErrorIs(t, err, ErrSchemaMismatch)

	garbage := filepath.Join(dir, "garbage.db")
	require.NoError(t, os.WriteFile(garbage, []byte("not a database"), 0o644))
	_, err = Open(garbage)
	assert.Error(t, err)
}
