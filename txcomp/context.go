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

package txcomp

import (
	"math"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/exascience/nanocompore/sampcomp"
)

// minPvalue keeps the normal quantile of extreme p-values finite.
const minPvalue = 1e-300

func contextWeight(distance int, weights string) float64 {
	if weights == sampcomp.HarmonicWeights {
		return 1 / float64(distance+1)
	}
	return 1
}

/*
combineContext adds, for every p-value field, a field that combines the
p-values of the neighbouring positions within size with weighted
Stouffer's method. Positions without a valid p-value are left out of
the combination. The new fields are named <field>_context_<size>.
*/
func combineContext(table *sampcomp.PositionTable, size int, weights string) {
	suffix := ContextInfix + strconv.Itoa(size)
	var fields []string
	for _, field := range table.ResultFields() {
		if strings.HasSuffix(field, "_pvalue") {
			fields = append(fields, field)
		}
	}
	combined := make([]map[string]float64, table.Len())
	for i := range table.Positions {
		for _, field := range fields {
			var zsum, wsum2 float64
			n := 0
			for j := i - size; j <= i+size; j++ {
				if j < 0 || j >= table.Len() {
					continue
				}
				p, ok := table.Positions[j].Results[field]
				if !ok || math.IsNaN(p) {
					continue
				}
				p = math.Min(math.Max(p, minPvalue), 1-1e-16)
				d := j - i
				if d < 0 {
					d = -d
				}
				w := contextWeight(d, weights)
				zsum -= w * distuv.UnitNormal.Quantile(p)
				wsum2 += w * w
				n++
			}
			if n == 0 {
				continue
			}
			if _, ok := table.Positions[i].Results[field]; !ok {
				continue
			}
			if combined[i] == nil {
				combined[i] = make(map[string]float64)
			}
			combined[i][field+suffix] = distuv.UnitNormal.CDF(-zsum / math.Sqrt(wsum2))
		}
	}
	for i, results := range combined {
		for field, p := range results {
			table.Positions[i].SetResult(field, p)
		}
	}
}
