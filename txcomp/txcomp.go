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

// Package txcomp implements the statistical comparison of the two
// conditions at every position of a reference.
package txcomp

import (
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/exascience/nanocompore/internal"
	"github.com/exascience/nanocompore/sampcomp"
)

// Result field names.
const (
	IntensitySuffix = "_intensity_pvalue"
	DwellSuffix     = "_dwell_pvalue"
	GMMAnova        = "GMM_anova_pvalue"
	GMMLogit        = "GMM_logit_pvalue"
	ContextInfix    = "_context_"
)

// A Comparator runs the comparison methods on position tables. It is
// safe for concurrent use.
type Comparator struct {
	logger *zap.Logger
}

// New returns a Comparator that logs tolerated warnings to logger.
func New(logger *zap.Logger) *Comparator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Comparator{logger: logger.With(zap.String("component", "txcomp"))}
}

var _ sampcomp.Comparator = (*Comparator)(nil)

// covered reports whether every sample has at least minCoverage reads.
func covered(pos *sampcomp.PositionRecord, minCoverage int) bool {
	for _, samples := range pos.Data {
		for _, s := range samples {
			if s.Coverage < minCoverage {
				return false
			}
		}
	}
	return true
}

func pooled(samples []sampcomp.SampleStats) (intensity, dwell []float64) {
	for _, s := range samples {
		intensity = append(intensity, s.Intensity...)
		dwell = append(dwell, s.Dwell...)
	}
	return intensity, dwell
}

/*
Compare adds p-values to every position of table where all samples
reach the minimum coverage. Positions below the minimum coverage get
no results.

Every Compare call seeds its own random number generator with
opts.Seed, so the results for a table do not depend on other tables.
*/
func (c *Comparator) Compare(table *sampcomp.PositionTable, opts sampcomp.CompareOptions) error {
	rng := internal.NewRand(opts.Seed)
	for i := range table.Positions {
		pos := &table.Positions[i]
		if !covered(pos, opts.MinCoverage) {
			continue
		}
		if len(pos.Data) != 2 {
			return fmt.Errorf("comparison needs 2 conditions, got %v", len(pos.Data))
		}
		int1, dwell1 := pooled(pos.Data[0])
		int2, dwell2 := pooled(pos.Data[1])
		for _, method := range opts.Methods {
			switch method {
			case sampcomp.MannWhitney:
				pos.SetResult(method+IntensitySuffix, MannWhitneyU(int1, int2))
				pos.SetResult(method+DwellSuffix, MannWhitneyU(dwell1, dwell2))
			case sampcomp.KolmogorovSmirnov:
				pos.SetResult(method+IntensitySuffix, KolmogorovSmirnov(int1, int2))
				pos.SetResult(method+DwellSuffix, KolmogorovSmirnov(dwell1, dwell2))
			case sampcomp.TTest:
				pos.SetResult(method+IntensitySuffix, WelchTTest(int1, int2))
				pos.SetResult(method+DwellSuffix, WelchTTest(dwell1, dwell2))
			case sampcomp.GaussianMixtureModel:
				if err := c.gmmTest(table.RefID, pos, opts, rng); err != nil {
					return err
				}
			default:
				return fmt.Errorf("invalid comparison method %v", method)
			}
		}
	}
	if opts.SequenceContext > 0 {
		combineContext(table, opts.SequenceContext, opts.SequenceContextWeights)
	}
	return nil
}

/*
gmmTest fits a Gaussian mixture to the intensity and log10 dwell time
of all reads at pos, then tests whether the conditions differ in their
affinity for the first component. The ANOVA compares the mean posterior
of every sample between the conditions and needs two samples per
condition. The logistic regression predicts the condition of every read
from its posterior, and runs when requested or when a condition lacks
replicates.
*/
func (c *Comparator) gmmTest(refID string, pos *sampcomp.PositionRecord, opts sampcomp.CompareOptions, rng *internal.Rand) error {
	anovaTest := !opts.ReplicateDeficient
	logitTest := opts.Logit || opts.ReplicateDeficient
	var fields []string
	if anovaTest {
		fields = append(fields, GMMAnova)
	}
	if logitTest {
		fields = append(fields, GMMLogit)
	}

	var points []point
	var labels []bool
	var sampleOf []int
	sample := 0
	for cond, samples := range pos.Data {
		for _, s := range samples {
			for i := range s.Intensity {
				dwell := math.Log10(s.Dwell[i])
				if math.IsNaN(dwell) || math.IsInf(dwell, 0) {
					return c.warn(refID, pos, opts, fmt.Errorf("%w: non-positive dwell time", ErrDegenerate), fields...)
				}
				points = append(points, point{s.Intensity[i], dwell})
				labels = append(labels, cond == 1)
				sampleOf = append(sampleOf, sample)
			}
			sample++
		}
	}
	if len(points) < 2 {
		return c.warn(refID, pos, opts, fmt.Errorf("%w: too few reads for a mixture model", ErrDegenerate), fields...)
	}
	resp, err := fitGMM(points, rng)
	if err != nil {
		return c.warn(refID, pos, opts, fmt.Errorf("%w, while fitting mixture model", err), fields...)
	}
	if anovaTest {
		sums := make([]float64, sample)
		counts := make([]int, sample)
		for i, r := range resp {
			sums[sampleOf[i]] += r
			counts[sampleOf[i]]++
		}
		groups := make([][]float64, len(pos.Data))
		sample = 0
		for cond, samples := range pos.Data {
			for range samples {
				if counts[sample] > 0 {
					groups[cond] = append(groups[cond], sums[sample]/float64(counts[sample]))
				}
				sample++
			}
		}
		p, err := anova(groups)
		if err != nil {
			if err := c.warn(refID, pos, opts, fmt.Errorf("%w, in anova", err), GMMAnova); err != nil {
				return err
			}
		} else {
			pos.SetResult(GMMAnova, p)
		}
	}
	if logitTest {
		p, err := logit(resp, labels)
		if err != nil {
			return c.warn(refID, pos, opts, fmt.Errorf("%w, in logistic regression", err), GMMLogit)
		}
		pos.SetResult(GMMLogit, p)
	}
	return nil
}

// warn records NaN for fields when warnings are allowed, and returns
// err otherwise.
func (c *Comparator) warn(refID string, pos *sampcomp.PositionRecord, opts sampcomp.CompareOptions, err error, fields ...string) error {
	if !opts.AllowWarnings {
		return fmt.Errorf("%w at position %v", err, pos.Pos)
	}
	c.logger.Debug("tolerated warning", zap.String("ref_id", refID), zap.Int("pos", pos.Pos), zap.Error(err))
	for _, field := range fields {
		pos.SetResult(field, math.NaN())
	}
	return nil
}
