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

package sampcomp

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exascience/nanocompore/eventalign"
)

const refSeq = "ACGTACGTAC"

func kmerAt(pos int) string {
	return refSeq[pos : pos+KmerSize]
}

func fullRead(readID string, intensities []float64) *eventalign.Record {
	rec := &eventalign.Record{Header: eventalign.Header{ReadID: readID, RefID: "ref"}}
	for pos, intensity := range intensities {
		rec.Events = append(rec.Events, eventalign.Event{RefPos: pos, RefKmer: kmerAt(pos), Median: intensity, DwellTime: 0.01})
	}
	return rec
}

func newTestWorker(t *testing.T, f *fixture, deps Collaborators) *worker {
	t.Helper()
	if deps.Sequences == nil {
		deps.Sequences = mapSequences{"ref": refSeq}
	}
	p := newTestPipeline(t, testOptions(f.conditions, 3), deps)
	w := &worker{run: p.newRun(), logger: p.logger}
	require.NoError(t, w.open())
	t.Cleanup(func() { _ = w.close() })
	return w
}

func TestBasicAggregation(t *testing.T) {
	intensities := []float64{10, 11, 12, 13, 14, 15}
	f := newFixture(t, [][][]*eventalign.Record{
		{{fullRead("r1", intensities)}},
		{{fullRead("r2", intensities)}},
	})
	w := newTestWorker(t, f, Collaborators{})

	table, err := w.process(f.whitelist().refs[0])
	require.NoError(t, err)
	require.Equal(t, len(refSeq)-4, table.Len())
	for pos, rec := range table.Positions {
		assert.Equal(t, pos, rec.Pos)
		assert.Equal(t, kmerAt(pos), rec.RefKmer)
		assert.False(t, rec.Suspect)
		assert.Equal(t, [][]int{{1}, {1}}, rec.Coverage())
		for cond := range rec.Data {
			stats := rec.Data[cond][0]
			assert.Equal(t, []float64{intensities[pos]}, stats.Intensity)
			assert.Equal(t, []float64{0.01}, stats.Dwell)
			assert.Zero(t, stats.KmerStats)
		}
	}
}

func TestCoverageCountsContributingReads(t *testing.T) {
	partial := &eventalign.Record{
		Header: eventalign.Header{ReadID: "r3", RefID: "ref"},
		Events: []eventalign.Event{
			{RefPos: 2, RefKmer: kmerAt(2), Median: 90, DwellTime: 0.01},
			{RefPos: 3, RefKmer: kmerAt(3), Median: 91, DwellTime: 0.01},
		},
	}
	f := newFixture(t, [][][]*eventalign.Record{
		{{fullRead("r1", []float64{1, 2, 3, 4, 5, 6}), partial}, {fullRead("r2", []float64{1, 2, 3, 4, 5, 6})}},
		{{fullRead("r4", []float64{1, 2, 3, 4, 5, 6})}},
	})
	w := newTestWorker(t, f, Collaborators{})

	table, err := w.process(f.whitelist().refs[0])
	require.NoError(t, err)
	for pos, rec := range table.Positions {
		want := 1
		if pos == 2 || pos == 3 {
			want = 2
		}
		assert.Equal(t, [][]int{{want, 1}, {1}}, rec.Coverage(), "position %v", pos)
		assert.Len(t, rec.Data[0][0].Intensity, want)
	}
}

func kmerStatsRead(readID string, positions ...int) *eventalign.Record {
	rec := &eventalign.Record{Header: eventalign.Header{ReadID: readID, RefID: "ref"}, KmerStats: true}
	for _, pos := range positions {
		rec.Events = append(rec.Events, eventalign.Event{
			RefPos:            pos,
			RefKmer:           kmerAt(pos),
			Median:            100,
			DwellTime:         0.01,
			NNNNNDwellTime:    0.002,
			MismatchDwellTime: 0.003,
		})
	}
	return rec
}

func TestGapFilling(t *testing.T) {
	f := newFixture(t, [][][]*eventalign.Record{
		{{kmerStatsRead("r1", 0, 1, 3)}},
		{{kmerStatsRead("r2", 0, 2)}},
	})
	w := newTestWorker(t, f, Collaborators{})

	table, err := w.process(f.whitelist().refs[0])
	require.NoError(t, err)

	missing := func(cond, pos int) int {
		return table.Positions[pos].Data[cond][0].KmerStats.Missing
	}
	assert.Equal(t, 1, missing(0, 2))
	assert.Equal(t, 1, missing(1, 1))
	for _, pos := range []int{0, 1, 3, 4, 5} {
		assert.Zero(t, missing(0, pos), "position %v", pos)
	}
	for _, pos := range []int{0, 1, 3} {
		ks := table.Positions[pos].Data[0][0].KmerStats
		assert.InDelta(t, 1.0, ks.Valid+ks.NNNNN+ks.Mismatching, 1e-9, "position %v", pos)
		assert.InDelta(t, 0.5, ks.Valid, 1e-9)
		assert.InDelta(t, 0.2, ks.NNNNN, 1e-9)
		assert.InDelta(t, 0.3, ks.Mismatching, 1e-9)
	}
	assert.Zero(t, table.Positions[2].Data[0][0].KmerStats.Valid)
	assert.Zero(t, table.Positions[2].Data[0][0].Coverage)
}

func TestKmerMismatchIsAnnotated(t *testing.T) {
	mismatch := func(readID string) *eventalign.Record {
		rec := fullRead(readID, []float64{1, 2, 3, 4, 5, 6})
		rec.Events[2].RefKmer = "TTTTT"
		return rec
	}
	f := newFixture(t, [][][]*eventalign.Record{
		{{mismatch("r1"), mismatch("r2")}},
		{{fullRead("r3", []float64{1, 2, 3, 4, 5, 6})}},
	})
	w := newTestWorker(t, f, Collaborators{})

	table, err := w.process(f.whitelist().refs[0])
	require.NoError(t, err)
	pos := table.Positions[2]
	assert.True(t, pos.Suspect)
	assert.Equal(t, kmerAt(2)+SuspectMarker, pos.RefKmer)
	assert.Equal(t, kmerAt(2), pos.ReferenceKmer())
	assert.Equal(t, [][]int{{2}, {1}}, pos.Coverage())
	assert.Equal(t, []float64{3, 3}, pos.Data[0][0].Intensity)
	assert.False(t, table.Positions[1].Suspect)
}

func TestFoldErrors(t *testing.T) {
	zeroDwell := kmerStatsRead("r1", 0, 1)
	zeroDwell.Events[1].DwellTime = 0
	outOfRange := fullRead("r1", []float64{1})
	outOfRange.Events[0].RefPos = len(refSeq)
	otherRef := fullRead("r1", []float64{1})
	otherRef.Header.RefID = "other"

	for name, rec := range map[string]*eventalign.Record{
		"zero dwell time":       zeroDwell,
		"position out of range": outOfRange,
		"reference mismatch":    otherRef,
	} {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, [][][]*eventalign.Record{{{rec}}, {{fullRead("r2", []float64{1})}}})
			w := newTestWorker(t, f, Collaborators{})
			ref := &ReferenceDescriptor{RefID: "ref", Reads: [][][]ReadHandle{
				{f.handles[rec.Header.RefID][0][0]},
				{f.handles["ref"][1][0]},
			}}
			_, err := w.process(ref)
			assert.Error(t, err)
		})
	}
}

func TestProcessRejectsReadIDMismatch(t *testing.T) {
	f := newFixture(t, [][][]*eventalign.Record{
		{{fullRead("r1", []float64{1, 2})}},
		{{fullRead("r2", []float64{1, 2})}},
	})
	w := newTestWorker(t, f, Collaborators{})
	ref := f.whitelist().refs[0]
	ref.Reads[0][0][0].ReadID = "someone-else"

	_, err := w.process(ref)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not matching")
}

func TestProcessRejectsLayoutMismatch(t *testing.T) {
	f := newFixture(t, [][][]*eventalign.Record{
		{{fullRead("r1", []float64{1, 2})}},
		{{fullRead("r2", []float64{1, 2})}},
	})
	w := newTestWorker(t, f, Collaborators{})
	_, err := w.process(&ReferenceDescriptor{RefID: "ref", Reads: [][][]ReadHandle{{}}})
	assert.Error(t, err)
}

func TestProcessRunsComparator(t *testing.T) {
	f := newFixture(t, [][][]*eventalign.Record{
		{{fullRead("r1", []float64{1, 2})}},
		{{fullRead("r2", []float64{1, 2})}},
	})
	var got CompareOptions
	w := newTestWorker(t, f, Collaborators{
		Comparator: comparatorFunc(func(table *PositionTable, opts CompareOptions) error {
			got = opts
			table.Positions[0].SetResult("KS_intensity_pvalue", 0.5)
			return nil
		}),
	})
	w.opts.Methods = []string{KolmogorovSmirnov}
	w.opts.MinCoverage = 1

	table, err := w.process(f.whitelist().refs[0])
	require.NoError(t, err)
	assert.Equal(t, []string{"KS_intensity_pvalue"}, table.ResultFields())
	assert.Equal(t, []string{KolmogorovSmirnov}, got.Methods)
	assert.Equal(t, int64(Seed), got.Seed)
	assert.True(t, got.ReplicateDeficient)
	assert.Equal(t, 1, got.MinCoverage)
}

func TestCrashingWorkerStillSendsMarker(t *testing.T) {
	for name, comparator := range map[string]Comparator{
		"error": comparatorFunc(func(*PositionTable, CompareOptions) error {
			return assert.AnError
		}),
		"panic": comparatorFunc(func(*PositionTable, CompareOptions) error {
			panic("boom")
		}),
	} {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, [][][]*eventalign.Record{
				{{fullRead("r1", []float64{1, 2})}},
				{{fullRead("r2", []float64{1, 2})}},
			})
			opts := testOptions(f.conditions, 3)
			opts.Methods = []string{KolmogorovSmirnov}
			p := newTestPipeline(t, opts, Collaborators{
				Sequences:  mapSequences{"ref": refSeq},
				Comparator: comparator,
			})
			r := p.newRun()
			r.tasks <- task{ref: f.whitelist().refs[0]}
			r.tasks <- task{}

			r.work(context.Background(), 0)

			errs := drainErrors(r.errc)
			require.Len(t, errs, 1)
			e := asError(t, errs[0])
			assert.Equal(t, WorkerComponent(0), e.Component)
			assert.Equal(t, "ref", e.RefID)
			require.Len(t, r.results, 1)
			assert.Nil(t, (<-r.results).table)
		})
	}
}

func TestWorkerStopsOnMarker(t *testing.T) {
	f := newFixture(t, [][][]*eventalign.Record{
		{{fullRead("r1", []float64{1, 2})}},
		{{fullRead("r2", []float64{1, 2})}},
	})
	p := newTestPipeline(t, testOptions(f.conditions, 3), Collaborators{Sequences: mapSequences{"ref": refSeq}})
	r := p.newRun()
	r.tasks <- task{ref: f.whitelist().refs[0]}
	r.tasks <- task{}
	r.tasks <- task{ref: f.whitelist().refs[0]}

	r.work(context.Background(), 0)

	assert.Empty(t, drainErrors(r.errc))
	require.Len(t, r.results, 2)
	assert.NotNil(t, (<-r.results).table)
	assert.Nil(t, (<-r.results).table)
	assert.Len(t, r.tasks, 1)
}

func TestWorkerOpenFailureStillSendsMarker(t *testing.T) {
	conditions := []Condition{
		{Label: "a", Samples: []Sample{{Label: "s1", Path: "/nonexistent/a.tsv"}}},
		{Label: "b", Samples: []Sample{{Label: "s1", Path: "/nonexistent/b.tsv"}}},
	}
	p := newTestPipeline(t, testOptions(conditions, 3), Collaborators{Sequences: mapSequences{}})
	r := p.newRun()

	r.work(context.Background(), 0)

	errs := drainErrors(r.errc)
	require.Len(t, errs, 1)
	assert.Equal(t, WorkerComponent(0), asError(t, errs[0]).Component)
	require.Len(t, r.results, 1)
	assert.Nil(t, (<-r.results).table)
}
