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
	"errors"
	"math"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/exascience/nanocompore/internal"
)

// ErrDegenerate is returned when a test cannot be computed on the data
// of a position and warnings are not allowed.
var ErrDegenerate = errors.New("degenerate data")

const (
	gmmInitializations = 5
	gmmMaxIterations   = 200
	gmmLloydIterations = 10
	gmmTolerance       = 1e-6 // on the mean log-likelihood per point
	gmmRegularizer     = 1e-6
)

type point struct {
	x, y float64
}

type gaussian struct {
	weight        float64
	mx, my        float64
	sxx, sxy, syy float64
}

func (g *gaussian) density(p point) float64 {
	det := g.sxx*g.syy - g.sxy*g.sxy
	if det <= 0 {
		return 0
	}
	dx, dy := p.x-g.mx, p.y-g.my
	q := (g.syy*dx*dx - 2*g.sxy*dx*dy + g.sxx*dy*dy) / det
	return math.Exp(-q/2) / (2 * math.Pi * math.Sqrt(det))
}

func sqDist(p, q point) float64 {
	dx, dy := p.x-q.x, p.y-q.y
	return dx*dx + dy*dy
}

// standardize scales both coordinates to zero mean and unit variance. A
// constant coordinate is only centered. It returns ErrDegenerate when
// all points are equal.
func standardize(points []point) ([]point, error) {
	n := len(points)
	xs, ys := make([]float64, n), make([]float64, n)
	for i, p := range points {
		xs[i], ys[i] = p.x, p.y
	}
	mx, sx := stat.MeanStdDev(xs, nil)
	my, sy := stat.MeanStdDev(ys, nil)
	if !(sx > 0) && !(sy > 0) {
		return nil, ErrDegenerate
	}
	if !(sx > 0) {
		sx = 1
	}
	if !(sy > 0) {
		sy = 1
	}
	scaled := make([]point, n)
	for i, p := range points {
		scaled[i] = point{(p.x - mx) / sx, (p.y - my) / sy}
	}
	return scaled, nil
}

// seedCenters picks two centers the k-means++ way: the first uniformly,
// the second with probability proportional to its squared distance to
// the first. The centers are then refined with a few Lloyd iterations.
func seedCenters(points []point, rng *internal.Rand) ([2]point, bool) {
	first := points[rng.Intn(len(points))]
	var total float64
	for _, p := range points {
		total += sqDist(p, first)
	}
	if total == 0 {
		return [2]point{}, false
	}
	u := rng.Float64() * total
	second := points[len(points)-1]
	for _, p := range points {
		d := sqDist(p, first)
		if d > 0 {
			second = p
		}
		if u -= d; u < 0 && d > 0 {
			break
		}
	}
	centers := [2]point{first, second}
	for iter := 0; iter < gmmLloydIterations; iter++ {
		var sums [2]point
		var counts [2]int
		for _, p := range points {
			k := 0
			if sqDist(p, centers[1]) < sqDist(p, centers[0]) {
				k = 1
			}
			sums[k].x += p.x
			sums[k].y += p.y
			counts[k]++
		}
		if counts[0] == 0 || counts[1] == 0 {
			break
		}
		next := [2]point{
			{sums[0].x / float64(counts[0]), sums[0].y / float64(counts[0])},
			{sums[1].x / float64(counts[1]), sums[1].y / float64(counts[1])},
		}
		if next == centers {
			break
		}
		centers = next
	}
	return centers, true
}

// maximize updates the components from the responsibilities of the
// first component. It reports false when a component is empty.
func maximize(points []point, resp []float64, components *[2]gaussian) bool {
	n := float64(len(points))
	for k := range components {
		var nk, sx, sy float64
		for i, p := range points {
			r := resp[i]
			if k == 1 {
				r = 1 - r
			}
			nk += r
			sx += r * p.x
			sy += r * p.y
		}
		if nk < 1e-10 {
			return false
		}
		g := &components[k]
		g.weight = nk / n
		g.mx, g.my = sx/nk, sy/nk
		var sxx, sxy, syy float64
		for i, p := range points {
			r := resp[i]
			if k == 1 {
				r = 1 - r
			}
			dx, dy := p.x-g.mx, p.y-g.my
			sxx += r * dx * dx
			sxy += r * dx * dy
			syy += r * dy * dy
		}
		g.sxx = sxx/nk + gmmRegularizer
		g.sxy = sxy / nk
		g.syy = syy/nk + gmmRegularizer
	}
	return true
}

// expectation computes the responsibilities of the first component and
// returns the mean log-likelihood of the points.
func expectation(points []point, components *[2]gaussian, resp []float64) (float64, bool) {
	var logLikelihood float64
	for i, p := range points {
		d0 := components[0].weight * components[0].density(p)
		d1 := components[1].weight * components[1].density(p)
		total := d0 + d1
		if total == 0 || math.IsNaN(total) || math.IsInf(total, 0) {
			return 0, false
		}
		resp[i] = d0 / total
		logLikelihood += math.Log(total)
	}
	return logLikelihood / float64(len(points)), true
}

// emFit runs one expectation maximization from seeded centers.
func emFit(points []point, rng *internal.Rand) ([]float64, float64, bool) {
	centers, ok := seedCenters(points, rng)
	if !ok {
		return nil, 0, false
	}
	resp := make([]float64, len(points))
	for i, p := range points {
		if sqDist(p, centers[0]) <= sqDist(p, centers[1]) {
			resp[i] = 1
		}
	}
	var components [2]gaussian
	if !maximize(points, resp, &components) {
		return nil, 0, false
	}
	prev := math.Inf(-1)
	var logLikelihood float64
	for iter := 0; iter < gmmMaxIterations; iter++ {
		if logLikelihood, ok = expectation(points, &components, resp); !ok {
			return nil, 0, false
		}
		if math.Abs(logLikelihood-prev) < gmmTolerance {
			break
		}
		prev = logLikelihood
		if !maximize(points, resp, &components) {
			return nil, 0, false
		}
	}
	return resp, logLikelihood, true
}

/*
fitGMM fits a two component Gaussian mixture with full covariance
matrices by expectation maximization, and returns the posterior
probability of the first component for every point.

The points are standardized first. The fit is repeated from several
starting centers drawn with rng, and the fit with the highest
log-likelihood is kept.
*/
func fitGMM(points []point, rng *internal.Rand) ([]float64, error) {
	scaled, err := standardize(points)
	if err != nil {
		return nil, err
	}
	var best []float64
	bestLogLikelihood := math.Inf(-1)
	for run := 0; run < gmmInitializations; run++ {
		resp, logLikelihood, ok := emFit(scaled, rng)
		if ok && logLikelihood > bestLogLikelihood {
			best, bestLogLikelihood = resp, logLikelihood
		}
	}
	if best == nil {
		return nil, ErrDegenerate
	}
	return best, nil
}

/*
anova returns the p-value of a one-way analysis of variance of the
values grouped by groups. It returns ErrDegenerate when there are not
more values than groups, or when all values are equal. Groups that are
constant but differ from each other give a p-value of 0.
*/
func anova(groups [][]float64) (float64, error) {
	var n int
	var grand float64
	for _, g := range groups {
		n += len(g)
		for _, v := range g {
			grand += v
		}
	}
	k := len(groups)
	if n <= k {
		return math.NaN(), ErrDegenerate
	}
	grand /= float64(n)
	var between, within float64
	for _, g := range groups {
		if len(g) == 0 {
			return math.NaN(), ErrDegenerate
		}
		m := stat.Mean(g, nil)
		between += float64(len(g)) * (m - grand) * (m - grand)
		for _, v := range g {
			within += (v - m) * (v - m)
		}
	}
	if within == 0 {
		if between == 0 {
			return math.NaN(), ErrDegenerate
		}
		return 0, nil
	}
	f := (between / float64(k-1)) / (within / float64(n-k))
	dist := distuv.F{D1: float64(k - 1), D2: float64(n - k)}
	return 1 - dist.CDF(f), nil
}

/*
logit fits the logistic regression of the binary labels on x by
iteratively reweighted least squares, and returns the p-value of the
Wald test of the slope. It returns ErrDegenerate when the fit does not
converge, which happens for perfectly separated labels.
*/
func logit(x []float64, labels []bool) (float64, error) {
	var b0, b1 float64
	for iter := 0; iter < 25; iter++ {
		var g0, g1, h00, h01, h11 float64
		for i, xi := range x {
			p := 1 / (1 + math.Exp(-(b0 + b1*xi)))
			y := 0.0
			if labels[i] {
				y = 1
			}
			w := p * (1 - p)
			g0 += y - p
			g1 += (y - p) * xi
			h00 += w
			h01 += w * xi
			h11 += w * xi * xi
		}
		det := h00*h11 - h01*h01
		if det <= 1e-12 {
			return math.NaN(), ErrDegenerate
		}
		d0 := (h11*g0 - h01*g1) / det
		d1 := (h00*g1 - h01*g0) / det
		b0 += d0
		b1 += d1
		if math.Abs(d0) < 1e-8 && math.Abs(d1) < 1e-8 {
			se := math.Sqrt(h00 / det)
			if se == 0 || math.IsNaN(se) || math.IsInf(b1, 0) {
				return math.NaN(), ErrDegenerate
			}
			return twoSided(b1 / se), nil
		}
	}
	return math.NaN(), ErrDegenerate
}
