// Copyright (C) The Strata Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package strata

import (
	"fmt"
	"math"
)

// minModelingSamples is the smallest stratum any ML workflow will
// accept.
const minModelingSamples = 10

// FeatureMatrix is sample-major: one row per sample, one column per
// gene, plus the binary outcome (1 = case).
type FeatureMatrix struct {
	Samples []string
	Genes   []string
	X       [][]float64 // [sample][gene]
	Outcome []int
}

// NCase returns the number of case samples.
func (fm *FeatureMatrix) NCase() int {
	n := 0
	for _, y := range fm.Outcome {
		n += y
	}
	return n
}

// BuildFeatureMatrix restricts the annotated expression to one sex
// stratum (and, when allow is non-nil, to the allowed gene symbols),
// transposes to sample-major orientation, and attaches the outcome
// label. NaN cells become the gene's stratum mean so downstream
// fitters see complete columns.
func BuildFeatureMatrix(ae *AnnotatedExpression, sex string, allow map[string]bool) (*FeatureMatrix, error) {
	idx, _, _ := ae.sampleIndex(sex)
	if len(idx) < minModelingSamples {
		return nil, fmt.Errorf("insufficient samples for modeling: %d samples with sex %q, need at least %d", len(idx), sex, minModelingSamples)
	}
	var genes []int
	for g, name := range ae.Genes {
		if allow == nil || allow[name] {
			genes = append(genes, g)
		}
	}
	if len(genes) == 0 {
		return nil, fmt.Errorf("no genes selected for modeling (empty differential-expression gene set?)")
	}
	fm := &FeatureMatrix{
		Samples: make([]string, len(idx)),
		Genes:   make([]string, len(genes)),
		X:       make([][]float64, len(idx)),
		Outcome: make([]int, len(idx)),
	}
	for row, i := range idx {
		fm.Samples[row] = ae.Samples[i]
		if ae.Status[i] == StatusRA {
			fm.Outcome[row] = 1
		}
		fm.X[row] = make([]float64, len(genes))
	}
	for col, g := range genes {
		fm.Genes[col] = ae.Genes[g]
		var sum float64
		var n int
		for _, i := range idx {
			if v := ae.Values[g][i]; !math.IsNaN(v) {
				sum += v
				n++
			}
		}
		mean := 0.0
		if n > 0 {
			mean = sum / float64(n)
		}
		for row, i := range idx {
			v := ae.Values[g][i]
			if math.IsNaN(v) {
				v = mean
			}
			fm.X[row][col] = v
		}
	}
	return fm, nil
}
