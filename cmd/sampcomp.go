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

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/exascience/nanocompore/config"
	"github.com/exascience/nanocompore/fasta"
	"github.com/exascience/nanocompore/sampcomp"
	"github.com/exascience/nanocompore/store"
	"github.com/exascience/nanocompore/txcomp"
	"github.com/exascience/nanocompore/whitelist"
)

func bindSampCompFlags(fs *pflag.FlagSet, cfg *config.Config) {
	fs.StringVarP(&cfg.FileList, "file_list", "y", cfg.FileList, "YAML sample sheet of conditions, samples, and eventalign_collapse files")
	fs.StringVarP(&cfg.Fasta, "fasta", "f", cfg.Fasta, "FASTA file of the transcriptome used for the alignment")
	fs.StringVarP(&cfg.OutPath, "outpath", "o", cfg.OutPath, "Path to the output folder")
	fs.StringVarP(&cfg.OutPrefix, "outprefix", "p", cfg.OutPrefix, "Text prefix for all the files generated")
	fs.BoolVarP(&cfg.Overwrite, "overwrite", "w", cfg.Overwrite, "Overwrite the result store if it already exists")
	fs.StringSliceVar(&cfg.ComparisonMethods, "comparison_methods", cfg.ComparisonMethods, "Comparison methods: GMM, KS, TT, MW")
	fs.BoolVar(&cfg.Logit, "logit", cfg.Logit, "Use logistic regression testing after the GMM fit")
	fs.BoolVar(&cfg.AllowWarnings, "allow_warnings", cfg.AllowWarnings, "Record NaN instead of failing on degenerate test data")
	fs.IntVar(&cfg.SequenceContext, "sequence_context", cfg.SequenceContext, "Number of neighbouring positions combined in context p-values")
	fs.StringVar(&cfg.SequenceContextWeights, "sequence_context_weights", cfg.SequenceContextWeights, "Weights of the neighbouring positions: uniform or harmonic")
	fs.IntVar(&cfg.MinCoverage, "min_coverage", cfg.MinCoverage, "Minimum coverage required in each sample to do a comparison")
	fs.IntVar(&cfg.MinRefLength, "min_ref_length", cfg.MinRefLength, "Minimum length of a reference transcript")
	fs.IntVar(&cfg.DownsampleHighCoverage, "downsample_high_coverage", cfg.DownsampleHighCoverage, "Downsample samples with more reads than this, 0 disables")
	fs.Float64Var(&cfg.MaxInvalidKmersFreq, "max_invalid_kmers_freq", cfg.MaxInvalidKmersFreq, "Maximum frequency of invalid k-mers in a read")
	fs.StringSliceVar(&cfg.SelectRefID, "select_ref_id", cfg.SelectRefID, "Only analyze these references")
	fs.StringSliceVar(&cfg.ExcludeRefID, "exclude_ref_id", cfg.ExcludeRefID, "Do not analyze these references")
	fs.IntVarP(&cfg.NThreads, "nthreads", "t", cfg.NThreads, "Number of threads, at least 3")
	fs.StringVar(&cfg.ReaderMode, "reader_mode", cfg.ReaderMode, "Access to eventalign_collapse files: read or mmap")
	fs.StringVar(&cfg.ShutdownTimeout, "shutdown_timeout", cfg.ShutdownTimeout, "Time to wait for components to stop after a failure")
	fs.BoolVar(&cfg.Progress, "progress", cfg.Progress, "Display a progress bar")
}

// applyFlag copies the value of a flag that was set on the command line
// from src to dst.
func applyFlag(dst, src *config.Config, name string) {
	switch name {
	case "file_list":
		dst.FileList = src.FileList
		dst.Conditions = nil
	case "fasta":
		dst.Fasta = src.Fasta
	case "outpath":
		dst.OutPath = src.OutPath
	case "outprefix":
		dst.OutPrefix = src.OutPrefix
	case "overwrite":
		dst.Overwrite = src.Overwrite
	case "comparison_methods":
		dst.ComparisonMethods = src.ComparisonMethods
	case "logit":
		dst.Logit = src.Logit
	case "allow_warnings":
		dst.AllowWarnings = src.AllowWarnings
	case "sequence_context":
		dst.SequenceContext = src.SequenceContext
	case "sequence_context_weights":
		dst.SequenceContextWeights = src.SequenceContextWeights
	case "min_coverage":
		dst.MinCoverage = src.MinCoverage
	case "min_ref_length":
		dst.MinRefLength = src.MinRefLength
	case "downsample_high_coverage":
		dst.DownsampleHighCoverage = src.DownsampleHighCoverage
	case "max_invalid_kmers_freq":
		dst.MaxInvalidKmersFreq = src.MaxInvalidKmersFreq
	case "select_ref_id":
		dst.SelectRefID = src.SelectRefID
	case "exclude_ref_id":
		dst.ExcludeRefID = src.ExcludeRefID
	case "nthreads":
		dst.NThreads = src.NThreads
	case "reader_mode":
		dst.ReaderMode = src.ReaderMode
	case "shutdown_timeout":
		dst.ShutdownTimeout = src.ShutdownTimeout
	case "progress":
		dst.Progress = src.Progress
	}
}

// resolveConfig loads the configuration file, if any, and lets flags
// set on the command line take precedence over it.
func resolveConfig(fs *pflag.FlagSet, configPath string, flagCfg *config.Config, global *globalFlags) (*config.Config, error) {
	cfg := flagCfg
	if configPath != "" {
		fileCfg, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		fs.Visit(func(f *pflag.Flag) {
			applyFlag(fileCfg, flagCfg, f.Name)
		})
		cfg = fileCfg
	}
	if global.logLevel != "" {
		cfg.Logging.Level = global.logLevel
	}
	if global.logFormat != "" {
		cfg.Logging.Format = global.logFormat
	}
	return cfg, nil
}

func newSampCompCommand(global *globalFlags) *cobra.Command {
	flagCfg := config.Default()
	var configPath string

	cmd := &cobra.Command{
		Use:   "sampcomp",
		Short: "Compare the signal of two conditions for every reference with enough coverage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd.Flags(), configPath, &flagCfg, global)
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg.Logging.Level, cfg.Logging.Format, zapcore.Lock(os.Stderr))
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			logger.Info("command line", zap.Strings("args", os.Args))

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runSampComp(ctx, cfg, logger, cmd)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "TOML configuration file, overridden by flags set on the command line")
	bindSampCompFlags(cmd.Flags(), &flagCfg)
	return cmd
}

func runSampComp(ctx context.Context, cfg *config.Config, logger *zap.Logger, cmd *cobra.Command) error {
	if err := checkExist("--fasta", cfg.Fasta); err != nil {
		return err
	}
	if cfg.FileList != "" {
		if err := checkExist("--file_list", cfg.FileList); err != nil {
			return err
		}
	}
	opts, err := cfg.Options(logger)
	if err != nil {
		return err
	}
	setThreads(logger, opts.NThreads)

	ref, err := fasta.Open(cfg.Fasta)
	if err != nil {
		return fmt.Errorf("%v, while opening fasta file", err)
	}
	defer ref.Close()
	if !ref.Indexed() {
		logger.Info("no fasta index found, reference loaded into memory", zap.String("fasta", cfg.Fasta))
	}

	var wl *whitelist.Whitelist
	if err := timedRun(logger, "building whitelist", func() (err error) {
		wl, err = whitelist.New(opts.Conditions, ref, whitelist.OptionsFrom(&opts), logger)
		return err
	}); err != nil {
		return err
	}

	deps := sampcomp.Collaborators{
		Whitelist:   wl,
		Sequences:   ref,
		Comparator:  txcomp.New(logger),
		CreateStore: store.CreateResultStore,
		Logger:      logger,
	}
	if cfg.Progress && isTerminal(os.Stderr) {
		deps.Progress = newProgress(os.Stderr, wl.Len())
	}
	pipeline, err := sampcomp.New(opts, deps)
	if err != nil {
		return err
	}

	var path string
	if err := timedRun(logger, "comparing samples", func() (err error) {
		path, err = pipeline.Run(ctx)
		return err
	}); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), path)
	return nil
}
