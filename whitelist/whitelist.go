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

// Package whitelist selects the references with enough coverage in every
// sample, together with the reads to analyze for each of them.
package whitelist

import (
	"errors"
	"fmt"
	"sort"

	"github.com/exascience/pargo/parallel"
	"github.com/willf/bitset"
	"go.uber.org/zap"

	"github.com/exascience/nanocompore/eventalign"
	"github.com/exascience/nanocompore/internal"
	"github.com/exascience/nanocompore/sampcomp"
)

// Options configures the selection of references and reads.
type Options struct {
	MinCoverage            int
	MinRefLength           int
	DownsampleHighCoverage int
	MaxInvalidKmersFreq    float64
	SelectRefIDs           []string
	ExcludeRefIDs          []string
	Seed                   int64
}

// OptionsFrom extracts the whitelist options of a run.
func OptionsFrom(opts *sampcomp.Options) Options {
	return Options{
		MinCoverage:            opts.MinCoverage,
		MinRefLength:           opts.MinRefLength,
		DownsampleHighCoverage: opts.DownsampleHighCoverage,
		MaxInvalidKmersFreq:    opts.MaxInvalidKmersFreq,
		SelectRefIDs:           opts.SelectRefIDs,
		ExcludeRefIDs:          opts.ExcludeRefIDs,
		Seed:                   sampcomp.Seed,
	}
}

// Lengths gives the sequence length of a reference.
type Lengths interface {
	Length(refID string) (int, bool)
}

// A Whitelist is an immutable, sorted list of references.
type Whitelist struct {
	refs []*sampcomp.ReferenceDescriptor
}

var _ sampcomp.Whitelist = (*Whitelist)(nil)

type sampleIndex struct {
	reads   map[string][]sampcomp.ReadHandle
	invalid int
	err     error
}

func toSet(ids []string) map[string]bool {
	if len(ids) == 0 {
		return nil
	}
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

/*
New builds a whitelist from the indexes of all samples of the given
conditions.

Reads with a fraction of invalid k-mers above the maximum are dropped. A
reference is kept when it is known to lengths, is at least the minimum
length long, passes the select and exclude lists, and has at least the
minimum coverage in every sample. When downsampling is enabled, samples
with more reads than the threshold are reduced to a random subset of
that size, keeping index order.
*/
func New(conditions []sampcomp.Condition, lengths Lengths, opts Options, logger *zap.Logger) (*Whitelist, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "whitelist"))

	type location struct{ cond, sample int }
	var samples []location
	var paths []string
	for i, cond := range conditions {
		for j, sample := range cond.Samples {
			samples = append(samples, location{i, j})
			paths = append(paths, sample.Path)
		}
	}
	if len(samples) == 0 {
		return nil, errors.New("no samples to build a whitelist from")
	}
	indexes := make([]sampleIndex, len(samples))
	parallel.Range(0, len(samples), 0, func(low, high int) {
		for i := low; i < high; i++ {
			indexes[i] = loadIndex(paths[i], opts.MaxInvalidKmersFreq)
		}
	})
	for i, index := range indexes {
		if index.err != nil {
			return nil, index.err
		}
		logger.Info("index loaded",
			zap.String("path", paths[i]),
			zap.Int("references", len(index.reads)),
			zap.Int("invalid_reads", index.invalid))
	}

	selected, excluded := toSet(opts.SelectRefIDs), toSet(opts.ExcludeRefIDs)
	candidates := make(map[string]bool)
	for _, index := range indexes {
		for refID := range index.reads {
			candidates[refID] = true
		}
	}
	refIDs := make([]string, 0, len(candidates))
	for refID := range candidates {
		refIDs = append(refIDs, refID)
	}
	sort.Strings(refIDs)

	rng := internal.NewRand(opts.Seed)
	wl := &Whitelist{}
	var unknown, short, lowCoverage int
refLoop:
	for _, refID := range refIDs {
		if (selected != nil && !selected[refID]) || excluded[refID] {
			continue
		}
		length, ok := lengths.Length(refID)
		if !ok {
			unknown++
			continue
		}
		if length < opts.MinRefLength || length < sampcomp.KmerSize {
			short++
			continue
		}
		for _, index := range indexes {
			if len(index.reads[refID]) < opts.MinCoverage || len(index.reads[refID]) == 0 {
				lowCoverage++
				continue refLoop
			}
		}
		ref := &sampcomp.ReferenceDescriptor{RefID: refID, Reads: make([][][]sampcomp.ReadHandle, len(conditions))}
		for i, cond := range conditions {
			ref.Reads[i] = make([][]sampcomp.ReadHandle, len(cond.Samples))
		}
		for i, loc := range samples {
			ref.Reads[loc.cond][loc.sample] = downsample(indexes[i].reads[refID], opts.DownsampleHighCoverage, rng)
		}
		wl.refs = append(wl.refs, ref)
	}
	logger.Info("whitelist built",
		zap.Int("references", len(wl.refs)),
		zap.Int("unknown", unknown),
		zap.Int("too_short", short),
		zap.Int("low_coverage", lowCoverage))
	return wl, nil
}

func loadIndex(path string, maxInvalidKmersFreq float64) (result sampleIndex) {
	entries, err := eventalign.ParseIndex(eventalign.IndexFilename(path))
	if err != nil {
		result.err = fmt.Errorf("%v, while loading index of %v", err, path)
		return result
	}
	result.reads = make(map[string][]sampcomp.ReadHandle)
	for i := range entries {
		entry := &entries[i]
		if entry.InvalidKmerFreq() > maxInvalidKmersFreq {
			result.invalid++
			continue
		}
		result.reads[entry.RefID] = append(result.reads[entry.RefID], sampcomp.ReadHandle{
			ReadID:     entry.ReadID,
			ByteOffset: entry.ByteOffset,
			ByteLen:    entry.ByteLen,
		})
	}
	return result
}

func downsample(reads []sampcomp.ReadHandle, max int, rng *internal.Rand) []sampcomp.ReadHandle {
	if max <= 0 || len(reads) <= max {
		return reads
	}
	keep := bitset.New(uint(len(reads)))
	for _, i := range rng.Perm(len(reads))[:max] {
		keep.Set(uint(i))
	}
	result := make([]sampcomp.ReadHandle, 0, max)
	for i, read := range reads {
		if keep.Test(uint(i)) {
			result = append(result, read)
		}
	}
	return result
}

// Len returns the number of references.
func (wl *Whitelist) Len() int {
	return len(wl.refs)
}

// Iterate calls yield for every reference in identifier order.
func (wl *Whitelist) Iterate(yield func(*sampcomp.ReferenceDescriptor) error) error {
	for _, ref := range wl.refs {
		if err := yield(ref); err != nil {
			return err
		}
	}
	return nil
}

// RefIDs returns the identifiers of all references in order.
func (wl *Whitelist) RefIDs() []string {
	ids := make([]string, len(wl.refs))
	for i, ref := range wl.refs {
		ids[i] = ref.RefID
	}
	return ids
}
