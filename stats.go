// Copyright (C) The Strata Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package strata

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mathext"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// benjaminiHochberg converts raw p-values to FDR-adjusted p-values
// (step-up, with the running-minimum enforcement of monotonicity).
func benjaminiHochberg(pvals []float64) []float64 {
	n := len(pvals)
	if n == 0 {
		return nil
	}
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(i, j int) bool {
		return pvals[idx[i]] < pvals[idx[j]]
	})
	adj := make([]float64, n)
	minp := 1.0
	for i := n - 1; i >= 0; i-- {
		p := pvals[idx[i]] * float64(n) / float64(i+1)
		if p > 1 {
			p = 1
		}
		if p < minp {
			minp = p
		}
		adj[idx[i]] = minp
	}
	return adj
}

// trigamma is the second derivative of log Gamma, computed by
// recurrence below 5 and an asymptotic series above.
func trigamma(x float64) float64 {
	if x <= 0 {
		return math.NaN()
	}
	var value float64
	for ; x < 5; x++ {
		value += 1 / (x * x)
	}
	z := 1 / (x * x)
	value += 1/x + z/2 + (z/x)*(1.0/6-z*(1.0/30-z*(1.0/42-z/30)))
	return value
}

// trigammaInverse solves trigamma(x) = y for x > 0 by bisection
// (trigamma is strictly decreasing).
func trigammaInverse(y float64) float64 {
	if y <= 0 {
		return math.Inf(1)
	}
	if y > 1e7 {
		return 1 / math.Sqrt(y)
	}
	if y < 1e-6 {
		return 1 / y
	}
	lo, hi := 1e-8, 1e8
	for i := 0; i < 200; i++ {
		mid := math.Sqrt(lo * hi)
		if trigamma(mid) > y {
			lo = mid
		} else {
			hi = mid
		}
		if hi/lo < 1+1e-12 {
			break
		}
	}
	return math.Sqrt(lo * hi)
}

// squeezeVar shrinks gene-wise sample variances (each with the same
// residual degrees of freedom) toward a common prior fit by the
// method of moments on log variances. Returns the prior degrees of
// freedom (possibly +Inf), the prior variance, and the posterior
// variance per gene.
func squeezeVar(s2 []float64, df float64) (d0, s02 float64, post []float64) {
	z := make([]float64, len(s2))
	for i, v := range s2 {
		if v < 1e-12 {
			v = 1e-12
		}
		z[i] = math.Log(v) - mathext.Digamma(df/2) + math.Log(df/2)
	}
	emean, evar := stat.MeanVariance(z, nil)
	evar -= trigamma(df / 2)
	if evar > 0 && len(s2) > 1 {
		d0 = 2 * trigammaInverse(evar)
		s02 = math.Exp(emean + mathext.Digamma(d0/2) - math.Log(d0/2))
	} else {
		d0 = math.Inf(1)
		s02 = math.Exp(emean)
	}
	post = make([]float64, len(s2))
	for i, v := range s2 {
		if math.IsInf(d0, 1) {
			post[i] = s02
		} else {
			post[i] = (d0*s02 + df*v) / (d0 + df)
		}
	}
	return d0, s02, post
}

// tTailP is the two-sided tail probability of Student's t with nu
// degrees of freedom. Infinite nu falls back to the normal.
func tTailP(t, nu float64) float64 {
	if math.IsNaN(t) {
		return 1
	}
	abs := math.Abs(t)
	if math.IsInf(nu, 1) || nu > 1e6 {
		return 2 * distuv.Normal{Mu: 0, Sigma: 1}.Survival(abs)
	}
	return 2 * distuv.StudentsT{Mu: 0, Sigma: 1, Nu: nu}.Survival(abs)
}
