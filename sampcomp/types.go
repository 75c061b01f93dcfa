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
	"fmt"
	"sort"
)

// KmerSize is the length of the k-mers reported by eventalign.
const KmerSize = 5

// SuspectMarker is appended once to the k-mer of a position whose reads
// disagree on the k-mer observed there.
const SuspectMarker = "!!!!"

// A Sample is one sequencing run: a label and its collapsed eventalign file.
type Sample struct {
	Label string
	Path  string
}

// A Condition groups the samples of one experimental condition.
type Condition struct {
	Label   string
	Samples []Sample
}

// A Layout is the fixed condition-to-sample schema shared by all
// position tables of a run. Condition and sample indices into a Layout
// index the Data of every PositionRecord.
type Layout struct {
	Conditions []string
	Samples    [][]string
}

// NewLayout derives the Layout of the given conditions.
func NewLayout(conditions []Condition) *Layout {
	layout := &Layout{
		Conditions: make([]string, len(conditions)),
		Samples:    make([][]string, len(conditions)),
	}
	for i, cond := range conditions {
		layout.Conditions[i] = cond.Label
		for _, sample := range cond.Samples {
			layout.Samples[i] = append(layout.Samples[i], sample.Label)
		}
	}
	return layout
}

// SampleCount returns the total number of samples over all conditions.
func (l *Layout) SampleCount() (n int) {
	for _, samples := range l.Samples {
		n += len(samples)
	}
	return n
}

// ReplicateDeficient reports whether some condition has fewer than two
// samples.
func (l *Layout) ReplicateDeficient() bool {
	for _, samples := range l.Samples {
		if len(samples) < 2 {
			return true
		}
	}
	return false
}

func (l *Layout) newData() [][]SampleStats {
	data := make([][]SampleStats, len(l.Samples))
	for i, samples := range l.Samples {
		data[i] = make([]SampleStats, len(samples))
	}
	return data
}

// A ReadHandle locates the record of one read in its sample's file.
type ReadHandle struct {
	ReadID     string
	ByteOffset int64
	ByteLen    int
}

// A ReferenceDescriptor names a reference and the reads that map to it,
// indexed by condition and sample in Layout order.
type ReferenceDescriptor struct {
	RefID string
	Reads [][][]ReadHandle
}

// ReadCount returns the number of reads over all samples.
func (d *ReferenceDescriptor) ReadCount() (n int) {
	for _, samples := range d.Reads {
		for _, reads := range samples {
			n += len(reads)
		}
	}
	return n
}

// KmerStats summarizes the k-mer quality of one sample at one position.
// Valid, NNNNN, and Mismatching accumulate per-read fractions of the
// dwell time. Missing counts reads that skipped the position.
type KmerStats struct {
	Valid       float64
	NNNNN       float64
	Mismatching float64
	Missing     int
}

// SampleStats holds the observations of one sample at one position.
type SampleStats struct {
	Intensity []float64
	Dwell     []float64
	Coverage  int
	KmerStats KmerStats
}

// A PositionRecord holds everything known about one reference position.
type PositionRecord struct {
	Pos     int
	RefKmer string
	Suspect bool
	Data    [][]SampleStats
	Results map[string]float64
}

// ReferenceKmer returns the reference k-mer without the suspect marker.
func (r *PositionRecord) ReferenceKmer() string {
	if r.Suspect {
		return r.RefKmer[:len(r.RefKmer)-len(SuspectMarker)]
	}
	return r.RefKmer
}

func (r *PositionRecord) observeKmer(kmer string) {
	if !r.Suspect && kmer != r.RefKmer {
		r.Suspect = true
		r.RefKmer += SuspectMarker
	}
}

// Coverage returns the coverage of every sample at this position.
func (r *PositionRecord) Coverage() [][]int {
	cov := make([][]int, len(r.Data))
	for i, samples := range r.Data {
		cov[i] = make([]int, len(samples))
		for j := range samples {
			cov[i][j] = samples[j].Coverage
		}
	}
	return cov
}

// SetResult records a comparison result at this position.
func (r *PositionRecord) SetResult(field string, value float64) {
	if r.Results == nil {
		r.Results = make(map[string]float64)
	}
	r.Results[field] = value
}

// A PositionTable holds the per-position data of one reference.
type PositionTable struct {
	RefID     string
	Layout    *Layout
	Positions []PositionRecord
}

// NewPositionTable allocates a table with one record for every k-mer
// start position of seq, that is len(seq)-KmerSize+1 records.
func NewPositionTable(refID string, seq []byte, layout *Layout) (*PositionTable, error) {
	n := len(seq) - KmerSize + 1
	if n < 1 {
		return nil, fmt.Errorf("reference %v of length %v is shorter than a k-mer", refID, len(seq))
	}
	table := &PositionTable{
		RefID:     refID,
		Layout:    layout,
		Positions: make([]PositionRecord, n),
	}
	for pos := range table.Positions {
		table.Positions[pos] = PositionRecord{
			Pos:     pos,
			RefKmer: string(seq[pos : pos+KmerSize]),
			Data:    layout.newData(),
		}
	}
	return table, nil
}

// Len returns the number of positions of the table.
func (t *PositionTable) Len() int {
	return len(t.Positions)
}

// ResultFields returns the sorted names of all results recorded in the table.
func (t *PositionTable) ResultFields() []string {
	set := make(map[string]struct{})
	for i := range t.Positions {
		for field := range t.Positions[i].Results {
			set[field] = struct{}{}
		}
	}
	fields := make([]string, 0, len(set))
	for field := range set {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return fields
}
