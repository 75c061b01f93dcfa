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
	"sort"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

func twoSided(z float64) float64 {
	return math.Min(1, 2*distuv.UnitNormal.CDF(-math.Abs(z)))
}

type rankedValue struct {
	value float64
	first bool
}

/*
MannWhitneyU returns the two-sided p-value of the Mann-Whitney U test of
x against y, using the normal approximation with tie correction and
continuity correction. It returns NaN when a sample is empty, and 1
when all values are equal.
*/
func MannWhitneyU(x, y []float64) float64 {
	n1, n2 := float64(len(x)), float64(len(y))
	if len(x) == 0 || len(y) == 0 {
		return math.NaN()
	}
	all := make([]rankedValue, 0, len(x)+len(y))
	for _, v := range x {
		all = append(all, rankedValue{v, true})
	}
	for _, v := range y {
		all = append(all, rankedValue{v, false})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].value < all[j].value })

	var rankSum, ties float64
	for i := 0; i < len(all); {
		j := i + 1
		for j < len(all) && all[j].value == all[i].value {
			j++
		}
		rank := float64(i+j+1) / 2
		for k := i; k < j; k++ {
			if all[k].first {
				rankSum += rank
			}
		}
		if t := float64(j - i); t > 1 {
			ties += t*t*t - t
		}
		i = j
	}
	n := n1 + n2
	u := rankSum - n1*(n1+1)/2
	mu := n1 * n2 / 2
	sigma := math.Sqrt(n1 * n2 / 12 * ((n + 1) - ties/(n*(n-1))))
	if sigma == 0 {
		return 1
	}
	z := (math.Abs(u-mu) - 0.5) / sigma
	if z < 0 {
		z = 0
	}
	return twoSided(z)
}

/*
kolmogorovQ is the complementary distribution function of the
Kolmogorov distribution:

	Q(λ) = 2 Σ_{k≥1} (-1)^(k-1) exp(-2 k² λ²)
*/
func kolmogorovQ(lambda float64) float64 {
	if lambda < 0.2 {
		return 1
	}
	var sum float64
	sign := 1.0
	for k := 1; k <= 100; k++ {
		term := sign * 2 * math.Exp(-2*float64(k*k)*lambda*lambda)
		sum += term
		if math.Abs(term) < 1e-12 {
			break
		}
		sign = -sign
	}
	return math.Max(0, math.Min(1, sum))
}

/*
KolmogorovSmirnov returns the p-value of the two-sample Kolmogorov-Smirnov
test of x against y, using the asymptotic Kolmogorov distribution with
the small sample correction of Stephens. It returns NaN when a sample
is empty.
*/
func KolmogorovSmirnov(x, y []float64) float64 {
	if len(x) == 0 || len(y) == 0 {
		return math.NaN()
	}
	xs := append([]float64(nil), x...)
	ys := append([]float64(nil), y...)
	sort.Float64s(xs)
	sort.Float64s(ys)
	d := stat.KolmogorovSmirnov(xs, nil, ys, nil)
	n1, n2 := float64(len(xs)), float64(len(ys))
	ne := math.Sqrt(n1 * n2 / (n1 + n2))
	return kolmogorovQ((ne + 0.12 + 0.11/ne) * d)
}

/*
WelchTTest returns the two-sided p-value of Welch's unequal variances t
test of x against y. It returns NaN when a sample has fewer than two
values or both samples are constant.
*/
func WelchTTest(x, y []float64) float64 {
	if len(x) < 2 || len(y) < 2 {
		return math.NaN()
	}
	n1, n2 := float64(len(x)), float64(len(y))
	m1, v1 := stat.MeanVariance(x, nil)
	m2, v2 := stat.MeanVariance(y, nil)
	s1, s2 := v1/n1, v2/n2
	se2 := s1 + s2
	if se2 == 0 {
		return math.NaN()
	}
	t := (m1 - m2) / math.Sqrt(se2)
	df := se2 * se2 / (s1*s1/(n1-1) + s2*s2/(n2-1))
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
	return math.Min(1, 2*dist.CDF(-math.Abs(t)))
}
