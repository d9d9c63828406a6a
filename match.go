// Copyright (C) The Strata Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package strata

import (
	"errors"
	"sort"

	log "github.com/sirupsen/logrus"
)

// ErrNoOverlap is returned by MatchSamples when the expression and
// phenotype tables share no sample identifiers.
var ErrNoOverlap = errors.New("no overlap between expression and phenotype sample identifiers")

// AnnotatedExpression joins an expression matrix with phenotype
// annotations over the intersection of their sample IDs. Samples are
// sorted lexicographically by ID; Sex and Status are parallel to
// Samples.
type AnnotatedExpression struct {
	Genes   []string
	Samples []string
	Values  [][]float64 // [gene][sample]
	Sex     []string
	Status  []string
}

// MatchSamples intersects the two tables' sample identifiers and
// reorders both sides to the same lexicographic sample ordering.
func MatchSamples(em *ExpressionMatrix, pt *PhenotypeTable) (*AnnotatedExpression, error) {
	var matched []string
	exprCol := map[string]int{}
	for i, id := range em.Samples {
		exprCol[id] = i
	}
	for _, id := range pt.Samples {
		if _, ok := exprCol[id]; ok {
			matched = append(matched, id)
		}
	}
	if len(matched) == 0 {
		return nil, ErrNoOverlap
	}
	sort.Strings(matched)

	ae := &AnnotatedExpression{
		Genes:   em.Genes,
		Samples: matched,
		Sex:     make([]string, len(matched)),
		Status:  make([]string, len(matched)),
		Values:  make([][]float64, len(em.Genes)),
	}
	for i, id := range matched {
		ae.Sex[i] = pt.Sex[id]
		ae.Status[i] = pt.Status[id]
	}
	for g, row := range em.Values {
		out := make([]float64, len(matched))
		for i, id := range matched {
			out[i] = row[exprCol[id]]
		}
		ae.Values[g] = out
	}
	log.WithFields(log.Fields{
		"matched":        len(matched),
		"expressionOnly": len(em.Samples) - len(matched),
		"phenotypeOnly":  len(pt.Samples) - len(matched),
	}).Info("matched samples")
	return ae, nil
}

// sampleIndex returns the positions of samples in the given sex
// stratum, restricted to the two canonical status levels.
func (ae *AnnotatedExpression) sampleIndex(sex string) (idx []int, ncase, ncontrol int) {
	for i := range ae.Samples {
		if ae.Sex[i] != sex {
			continue
		}
		switch ae.Status[i] {
		case StatusRA:
			ncase++
		case StatusControl:
			ncontrol++
		default:
			continue
		}
		idx = append(idx, i)
	}
	return
}
