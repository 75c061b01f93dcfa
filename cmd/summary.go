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
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/exascience/nanocompore/store"
)

func newSummaryCommand() *cobra.Command {
	var refID string
	var threshold float64

	cmd := &cobra.Command{
		Use:   "summary <db>",
		Short: "Summarize the result store of a sampcomp run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := store.Open(args[0])
			if err != nil {
				return err
			}
			defer s.Close()

			out := cmd.OutOrStdout()
			md, err := s.Metadata()
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("result store %v is incomplete, the run did not finish", args[0])
			}
			if err != nil {
				return err
			}
			refIDs, err := s.RefIDs()
			if err != nil {
				return err
			}

			tw := table.NewWriter()
			tw.SetStyle(table.StyleRounded)
			tw.AppendHeader(table.Row{"Field", "Value"})
			tw.AppendRow(table.Row{"Run", md.RunID})
			tw.AppendRow(table.Row{"Created", md.Timestamp.Format("2006-01-02 15:04:05 MST")})
			tw.AppendRow(table.Row{"Tool", md.ToolName + " " + md.ToolVersion})
			tw.AppendRow(table.Row{"Samples", md.SampleCount})
			tw.AppendRow(table.Row{"Methods", strings.Join(md.ComparisonMethods, ", ")})
			tw.AppendRow(table.Row{"Sequence context", fmt.Sprintf("%v (%v)", md.SequenceContext, md.SequenceContextWeights)})
			tw.AppendRow(table.Row{"Minimum coverage", md.MinCoverage})
			tw.AppendRow(table.Row{"References", len(refIDs)})
			fmt.Fprintln(out, tw.Render())

			if refID == "" {
				return nil
			}
			t, err := s.Table(refID)
			if err != nil {
				return err
			}
			fields := t.ResultFields()
			pw := table.NewWriter()
			pw.SetStyle(table.StyleRounded)
			pw.Style().Format.Header = text.FormatDefault
			header := table.Row{"Pos", "K-mer"}
			for _, field := range fields {
				header = append(header, field)
			}
			pw.AppendHeader(header)
			configs := []table.ColumnConfig{{Number: 1, Align: text.AlignRight}}
			for i := range fields {
				configs = append(configs, table.ColumnConfig{Number: i + 3, Align: text.AlignRight})
			}
			pw.SetColumnConfigs(configs)
			for i := range t.Positions {
				pos := &t.Positions[i]
				significant := false
				row := table.Row{pos.Pos, pos.RefKmer}
				for _, field := range fields {
					p, ok := pos.Results[field]
					if !ok || math.IsNaN(p) {
						row = append(row, "")
						continue
					}
					if p <= threshold {
						significant = true
					}
					row = append(row, strconv.FormatFloat(p, 'g', 4, 64))
				}
				if significant {
					pw.AppendRow(row)
				}
			}
			fmt.Fprintln(out, pw.Render())
			return nil
		},
	}

	cmd.Flags().StringVar(&refID, "ref_id", "", "Also list the significant positions of this reference")
	cmd.Flags().Float64Var(&threshold, "pvalue_thr", 0.01, "P-value threshold for listing positions")
	return cmd
}
