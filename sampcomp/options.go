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
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/exascience/nanocompore/eventalign"
	"github.com/exascience/nanocompore/internal"
)

// Comparison method codes.
const (
	MannWhitney          = "MW"
	KolmogorovSmirnov    = "KS"
	TTest                = "TT"
	GaussianMixtureModel = "GMM"
)

var methodAliases = map[string]string{
	"MW":                     MannWhitney,
	"MANN_WHITNEY":           MannWhitney,
	"KS":                     KolmogorovSmirnov,
	"KOLMOGOROV_SMIRNOV":     KolmogorovSmirnov,
	"TT":                     TTest,
	"T_TEST":                 TTest,
	"GMM":                    GaussianMixtureModel,
	"GAUSSIAN_MIXTURE_MODEL": GaussianMixtureModel,
}

// Sequence context weighting schemes.
const (
	UniformWeights  = "uniform"
	HarmonicWeights = "harmonic"
)

// DBName is appended to the output prefix to form the result store name.
const DBName = "SampComp.db"

// Seed seeds the random number generators of the comparison methods
// for every reference, so results do not depend on scheduling.
const Seed = 42

/*
ParseMethods normalizes a list of comparison methods to their short
codes. Elements may themselves be comma-separated lists and are case
insensitive. Duplicates are dropped and the order of first occurrence
is kept.
*/
func ParseMethods(methods []string) ([]string, error) {
	var result []string
	seen := make(map[string]bool)
	for _, m := range methods {
		for _, name := range strings.Split(m, ",") {
			name = strings.ToUpper(strings.TrimSpace(name))
			if name == "" {
				continue
			}
			code, ok := methodAliases[name]
			if !ok {
				return nil, fmt.Errorf("invalid comparison method %v", name)
			}
			if !seen[code] {
				seen[code] = true
				result = append(result, code)
			}
		}
	}
	return result, nil
}

// Options configures a pipeline run.
type Options struct {
	Conditions []Condition

	// Comparison
	Methods                []string
	Logit                  bool
	AllowWarnings          bool
	SequenceContext        int
	SequenceContextWeights string
	MinCoverage            int

	// Whitelist
	MinRefLength           int
	DownsampleHighCoverage int
	MaxInvalidKmersFreq    float64
	SelectRefIDs           []string
	ExcludeRefIDs          []string

	// Execution
	NThreads        int
	QueueSize       int
	ReaderMode      eventalign.Mode
	ShutdownTimeout time.Duration

	// Output
	OutPath   string
	OutPrefix string
	Overwrite bool
}

// DefaultOptions returns the options used when nothing else is specified.
func DefaultOptions() Options {
	return Options{
		Methods:                []string{GaussianMixtureModel, KolmogorovSmirnov},
		SequenceContextWeights: UniformWeights,
		MinCoverage:            30,
		MinRefLength:           100,
		MaxInvalidKmersFreq:    0.1,
		NThreads:               3,
		QueueSize:              100,
		ReaderMode:             eventalign.ModeRead,
		ShutdownTimeout:        10 * time.Second,
		OutPath:                "results",
		OutPrefix:              "out_",
	}
}

// Workers returns the number of worker goroutines of a run.
func (o *Options) Workers() int {
	return o.NThreads - 2
}

// DBPath returns the path of the result store.
func (o *Options) DBPath() string {
	return filepath.Join(o.OutPath, o.OutPrefix+DBName)
}

/*
NormalizeConditions checks the sample sheet and returns a normalized
copy.

There must be exactly two conditions, each with at least one sample.
Every sample file must be readable, and no file may be listed twice.
When sample labels are not unique over all conditions, every sample
label is prefixed with its condition label.
*/
func NormalizeConditions(conditions []Condition, logger *zap.Logger) ([]Condition, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(conditions) != 2 {
		return nil, fmt.Errorf("exactly 2 conditions are required, got %v", len(conditions))
	}
	result := make([]Condition, len(conditions))
	condLabels := make(map[string]bool)
	sampleLabels := make(map[string]bool)
	files := make(map[string]bool)
	relabel := false
	for i, cond := range conditions {
		if cond.Label == "" {
			return nil, errors.New("condition without label")
		}
		if condLabels[cond.Label] {
			return nil, fmt.Errorf("duplicated condition label %v", cond.Label)
		}
		condLabels[cond.Label] = true
		if len(cond.Samples) == 0 {
			return nil, fmt.Errorf("condition %v has no samples", cond.Label)
		}
		if len(cond.Samples) == 1 {
			logger.Info("only 1 replicate found, statistics will use logistic regression", zap.String("condition", cond.Label))
		}
		result[i] = Condition{Label: cond.Label, Samples: append([]Sample(nil), cond.Samples...)}
		for _, sample := range cond.Samples {
			if sample.Label == "" {
				return nil, fmt.Errorf("sample without label in condition %v", cond.Label)
			}
			if err := internal.CheckReadable(sample.Path); err != nil {
				return nil, fmt.Errorf("%v, for sample %v", err, sample.Label)
			}
			abs, err := internal.FullPathname(sample.Path)
			if err != nil {
				return nil, err
			}
			abs = filepath.Clean(abs)
			if files[abs] {
				return nil, fmt.Errorf("duplicated file %v in sample sheet", sample.Path)
			}
			files[abs] = true
			if sampleLabels[sample.Label] {
				relabel = true
			}
			sampleLabels[sample.Label] = true
		}
	}
	if relabel {
		logger.Warn("sample labels are not unique, prefixing them with their condition labels")
		for i := range result {
			for j := range result[i].Samples {
				result[i].Samples[j].Label = result[i].Label + "_" + result[i].Samples[j].Label
			}
		}
	}
	return result, nil
}

/*
Validate checks the options. It expects conditions that already went
through NormalizeConditions, and normalizes the comparison methods in
place.
*/
func (o *Options) Validate() error {
	if len(o.Conditions) != 2 {
		return fmt.Errorf("exactly 2 conditions are required, got %v", len(o.Conditions))
	}
	methods, err := ParseMethods(o.Methods)
	if err != nil {
		return err
	}
	o.Methods = methods
	if o.NThreads < 3 {
		return fmt.Errorf("the minimum number of threads is 3, got %v", o.NThreads)
	}
	if o.QueueSize < 1 {
		return fmt.Errorf("queue size must be positive, got %v", o.QueueSize)
	}
	if o.MinCoverage < 0 {
		return fmt.Errorf("minimum coverage must not be negative, got %v", o.MinCoverage)
	}
	if o.MinRefLength < 0 {
		return fmt.Errorf("minimum reference length must not be negative, got %v", o.MinRefLength)
	}
	if o.DownsampleHighCoverage < 0 {
		return fmt.Errorf("downsampling threshold must not be negative, got %v", o.DownsampleHighCoverage)
	}
	if o.DownsampleHighCoverage > 0 && o.DownsampleHighCoverage < o.MinCoverage {
		return fmt.Errorf("downsampling threshold %v is below the minimum coverage %v", o.DownsampleHighCoverage, o.MinCoverage)
	}
	if o.MaxInvalidKmersFreq < 0 || o.MaxInvalidKmersFreq > 1 {
		return fmt.Errorf("maximum invalid k-mer frequency must be within [0, 1], got %v", o.MaxInvalidKmersFreq)
	}
	if o.SequenceContext < 0 || o.SequenceContext > 4 {
		return fmt.Errorf("sequence context must be within [0, 4], got %v", o.SequenceContext)
	}
	switch o.SequenceContextWeights {
	case UniformWeights, HarmonicWeights:
	default:
		return fmt.Errorf("invalid sequence context weights %v", o.SequenceContextWeights)
	}
	if o.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown timeout must be positive, got %v", o.ShutdownTimeout)
	}
	if o.OutPath == "" {
		return errors.New("missing output path")
	}
	if !o.Overwrite && internal.Exists(o.DBPath()) {
		return fmt.Errorf("result store %v already exists, use overwrite to replace it", o.DBPath())
	}
	return nil
}

// CompareOptions returns the options handed to the comparator.
func (o *Options) CompareOptions() CompareOptions {
	return CompareOptions{
		Methods:                o.Methods,
		SequenceContext:        o.SequenceContext,
		SequenceContextWeights: o.SequenceContextWeights,
		MinCoverage:            o.MinCoverage,
		AllowWarnings:          o.AllowWarnings,
		Logit:                  o.Logit,
		ReplicateDeficient:     NewLayout(o.Conditions).ReplicateDeficient(),
		Seed:                   Seed,
	}
}
