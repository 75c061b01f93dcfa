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
	"runtime"

	"github.com/spf13/cobra"

	"github.com/exascience/nanocompore/utils"
)

type globalFlags struct {
	logLevel  string
	logFormat string
}

// NewRootCommand returns the nanocompore command line.
func NewRootCommand() *cobra.Command {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:           utils.ProgramName,
		Short:         "Compare nanopore signal between two conditions",
		Version:       utils.ProgramVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&flags.logLevel, "log_level", "", "Log level: debug, info, warn, or error")
	rootCmd.PersistentFlags().StringVar(&flags.logFormat, "log_format", "", "Log format: console or json")

	rootCmd.AddCommand(newSampCompCommand(flags))
	rootCmd.AddCommand(newSummaryCommand())
	rootCmd.AddCommand(newVersionCommand())

	return rootCmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version of " + utils.ProgramName,
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), utils.ProgramName, utils.ProgramVersion, runtime.Version())
		},
	}
}
