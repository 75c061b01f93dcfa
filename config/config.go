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

// Package config loads run configurations from TOML files and sample
// sheets from YAML files.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"go.uber.org/zap"

	"github.com/exascience/nanocompore/eventalign"
	"github.com/exascience/nanocompore/sampcomp"
)

// Sample is a sample entry of a condition.
type Sample struct {
	Label string `toml:"label"`
	Path  string `toml:"path"`
}

// Condition is a condition entry with its samples.
type Condition struct {
	Label   string   `toml:"label"`
	Samples []Sample `toml:"sample"`
}

// Logging configures the logger.
type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Config is the configuration of a sampcomp run.
type Config struct {
	FileList   string      `toml:"file_list"`
	Conditions []Condition `toml:"condition"`
	Fasta      string      `toml:"fasta"`

	OutPath   string `toml:"outpath"`
	OutPrefix string `toml:"outprefix"`
	Overwrite bool   `toml:"overwrite"`

	ComparisonMethods      []string `toml:"comparison_methods"`
	Logit                  bool     `toml:"logit"`
	AllowWarnings          bool     `toml:"allow_warnings"`
	SequenceContext        int      `toml:"sequence_context"`
	SequenceContextWeights string   `toml:"sequence_context_weights"`
	MinCoverage            int      `toml:"min_coverage"`

	MinRefLength           int      `toml:"min_ref_length"`
	DownsampleHighCoverage int      `toml:"downsample_high_coverage"`
	MaxInvalidKmersFreq    float64  `toml:"max_invalid_kmers_freq"`
	SelectRefID            []string `toml:"select_ref_id"`
	ExcludeRefID           []string `toml:"exclude_ref_id"`

	NThreads        int    `toml:"nthreads"`
	ReaderMode      string `toml:"reader_mode"`
	ShutdownTimeout string `toml:"shutdown_timeout"`
	Progress        bool   `toml:"progress"`

	Logging Logging `toml:"logging"`
}

// Default returns the configuration used when nothing else is specified.
func Default() Config {
	opts := sampcomp.DefaultOptions()
	return Config{
		OutPath:                opts.OutPath,
		OutPrefix:              opts.OutPrefix,
		ComparisonMethods:      opts.Methods,
		SequenceContextWeights: opts.SequenceContextWeights,
		MinCoverage:            opts.MinCoverage,
		MinRefLength:           opts.MinRefLength,
		DownsampleHighCoverage: opts.DownsampleHighCoverage,
		MaxInvalidKmersFreq:    opts.MaxInvalidKmersFreq,
		NThreads:               opts.NThreads,
		ReaderMode:             opts.ReaderMode.String(),
		ShutdownTimeout:        opts.ShutdownTimeout.String(),
		Logging: Logging{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load parses a TOML configuration file on top of the defaults.
// Relative paths in the file are resolved against the directory of the
// file.
func Load(path string) (*Config, error) {
	cfg := Default()

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	decoder := toml.NewDecoder(file)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.resolvePaths(filepath.Dir(path))
	return &cfg, nil
}

func resolve(dir, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}

func (c *Config) resolvePaths(dir string) {
	c.FileList = resolve(dir, c.FileList)
	c.Fasta = resolve(dir, c.Fasta)
	c.OutPath = resolve(dir, c.OutPath)
	for i := range c.Conditions {
		for j := range c.Conditions[i].Samples {
			c.Conditions[i].Samples[j].Path = resolve(dir, c.Conditions[i].Samples[j].Path)
		}
	}
}

// Validate checks the parts of the configuration that do not map onto
// sampcomp options.
func (c *Config) Validate() error {
	if c.Fasta == "" {
		return errors.New("missing fasta file")
	}
	if c.FileList == "" && len(c.Conditions) == 0 {
		return errors.New("missing sample sheet: set file_list or conditions")
	}
	if c.FileList != "" && len(c.Conditions) > 0 {
		return errors.New("file_list and conditions are mutually exclusive")
	}
	switch strings.ToLower(c.Logging.Format) {
	case "console", "json":
	default:
		return fmt.Errorf("invalid log format %v", c.Logging.Format)
	}
	return nil
}

// SampleSheet returns the conditions of the configuration, read from
// the YAML file list when one is set.
func (c *Config) SampleSheet() ([]sampcomp.Condition, error) {
	if c.FileList != "" {
		return ParseSampleSheet(c.FileList)
	}
	conditions := make([]sampcomp.Condition, len(c.Conditions))
	for i, cond := range c.Conditions {
		conditions[i].Label = cond.Label
		for _, sample := range cond.Samples {
			conditions[i].Samples = append(conditions[i].Samples, sampcomp.Sample{Label: sample.Label, Path: sample.Path})
		}
	}
	return conditions, nil
}

// Options converts the configuration into validated sampcomp options.
func (c *Config) Options(logger *zap.Logger) (sampcomp.Options, error) {
	if err := c.Validate(); err != nil {
		return sampcomp.Options{}, err
	}
	conditions, err := c.SampleSheet()
	if err != nil {
		return sampcomp.Options{}, err
	}
	conditions, err = sampcomp.NormalizeConditions(conditions, logger)
	if err != nil {
		return sampcomp.Options{}, err
	}
	mode, err := eventalign.ParseMode(c.ReaderMode)
	if err != nil {
		return sampcomp.Options{}, err
	}
	timeout, err := time.ParseDuration(c.ShutdownTimeout)
	if err != nil {
		return sampcomp.Options{}, fmt.Errorf("invalid shutdown timeout: %w", err)
	}
	opts := sampcomp.DefaultOptions()
	opts.Conditions = conditions
	opts.Methods = c.ComparisonMethods
	opts.Logit = c.Logit
	opts.AllowWarnings = c.AllowWarnings
	opts.SequenceContext = c.SequenceContext
	opts.SequenceContextWeights = strings.ToLower(c.SequenceContextWeights)
	opts.MinCoverage = c.MinCoverage
	opts.MinRefLength = c.MinRefLength
	opts.DownsampleHighCoverage = c.DownsampleHighCoverage
	opts.MaxInvalidKmersFreq = c.MaxInvalidKmersFreq
	opts.SelectRefIDs = c.SelectRefID
	opts.ExcludeRefIDs = c.ExcludeRefID
	opts.NThreads = c.NThreads
	opts.ReaderMode = mode
	opts.ShutdownTimeout = timeout
	opts.OutPath = c.OutPath
	opts.OutPrefix = c.OutPrefix
	opts.Overwrite = c.Overwrite
	if err := opts.Validate(); err != nil {
		return sampcomp.Options{}, err
	}
	return opts, nil
}
