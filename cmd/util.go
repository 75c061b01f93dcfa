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
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/exascience/nanocompore/internal"
	"github.com/exascience/nanocompore/utils"
)

// ProgramMessage is the first line printed when the nanocompore binary
// is called.
var ProgramMessage string

func init() {
	ProgramMessage = fmt.Sprint(
		"\n", utils.ProgramName, " version ", utils.ProgramVersion,
		" compiled with ", runtime.Version(),
		" - see ", utils.ProgramURL, " for more information.\n",
	)
}

func newLogger(level, format string, w zapcore.WriteSyncer) (*zap.Logger, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
		return nil, fmt.Errorf("invalid log level %v", level)
	}
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	var encoder zapcore.Encoder
	switch strings.ToLower(format) {
	case "", "console":
		encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	case "json":
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	default:
		return nil, fmt.Errorf("invalid log format %v", format)
	}
	return zap.New(zapcore.NewCore(encoder, w, lvl)), nil
}

func checkExist(parameter, filename string) error {
	if filename == "" {
		return fmt.Errorf("missing filename for command line parameter %v", parameter)
	}
	if err := internal.CheckReadable(filename); err != nil {
		return fmt.Errorf("%v, for command line parameter %v", err, parameter)
	}
	return nil
}

// setThreads applies the thread count once for the whole process.
func setThreads(logger *zap.Logger, nthreads int) {
	if nthreads > 0 {
		runtime.GOMAXPROCS(nthreads)
	}
	logger.Debug("threads configured", zap.Int("gomaxprocs", runtime.GOMAXPROCS(0)))
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func newProgress(w io.Writer, total int) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("references"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionClearOnFinish(),
	)
}

func timedRun(logger *zap.Logger, msg string, f func() error) error {
	logger.Info(msg)
	start := time.Now()
	defer func() {
		logger.Info("elapsed time", zap.Duration("elapsed", time.Since(start)))
	}()
	return f()
}
