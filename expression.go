// Copyright (C) The Strata Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package strata

import (
	"fmt"
	"io"
	"math"
	"strconv"

	log "github.com/sirupsen/logrus"
)

// ExpressionMatrix is a gene-by-sample matrix of log2-scale
// intensities. Gene symbols are not required to be unique; sample IDs
// are.
type ExpressionMatrix struct {
	Genes   []string
	Samples []string
	Values  [][]float64 // [gene][sample]
}

// ExpressionOptions control cleanup applied while loading an
// expression table.
type ExpressionOptions struct {
	// Drop genes whose variance across samples is ≤ MinVariance.
	MinVariance float64
	// Apply log2(x+1). Disable for matrices that are already on a
	// log scale.
	Log2Transform bool
}

func DefaultExpressionOptions() ExpressionOptions {
	return ExpressionOptions{MinVariance: 0.01, Log2Transform: true}
}

// LoadExpression parses an expression table: first column = gene
// symbol, remaining columns = sample IDs, cells = non-negative
// intensities. Cells that do not parse as numbers become NaN.
func LoadExpression(r io.Reader, opts ExpressionOptions) (*ExpressionMatrix, error) {
	tbl, err := readTable(r)
	if err != nil {
		return nil, err
	}
	if len(tbl.Header) < 2 {
		return nil, fmt.Errorf("expression table needs a gene column and at least one sample column, got %d columns", len(tbl.Header))
	}
	em := &ExpressionMatrix{}
	seen := map[string]bool{}
	for _, id := range tbl.Header[1:] {
		id = cleanIdentifier(id)
		if id == "" {
			return nil, fmt.Errorf("expression table has an empty sample identifier in its header")
		}
		if seen[id] {
			return nil, fmt.Errorf("expression table has duplicate sample identifier %q", id)
		}
		seen[id] = true
		em.Samples = append(em.Samples, id)
	}
	nkept, ncoerced := 0, 0
	for _, rec := range tbl.Rows {
		if len(rec) < 2 {
			continue
		}
		row := make([]float64, len(em.Samples))
		for i := range row {
			row[i] = math.NaN()
			if i+1 < len(rec) {
				if v, err := strconv.ParseFloat(rec[i+1], 64); err == nil {
					row[i] = v
				} else {
					ncoerced++
				}
			}
		}
		if opts.Log2Transform {
			for i, v := range row {
				if !math.IsNaN(v) && v >= 0 {
					row[i] = math.Log2(v + 1)
				}
			}
		}
		if rowVariance(row) <= opts.MinVariance {
			continue
		}
		em.Genes = append(em.Genes, rec[0])
		em.Values = append(em.Values, row)
		nkept++
	}
	if nkept == 0 {
		return nil, fmt.Errorf("no genes left after variance filter (threshold %g)", opts.MinVariance)
	}
	log.WithFields(log.Fields{
		"genes":        nkept,
		"samples":      len(em.Samples),
		"dropped":      len(tbl.Rows) - nkept,
		"coercedCells": ncoerced,
	}).Info("loaded expression matrix")
	return em, nil
}

// rowVariance is the sample variance over non-NaN entries, 0 if fewer
// than two values remain.
func rowVariance(row []float64) float64 {
	var n int
	var mean, m2 float64
	for _, v := range row {
		if math.IsNaN(v) {
			continue
		}
		n++
		d := v - mean
		mean += d / float64(n)
		m2 += d * (v - mean)
	}
	if n < 2 {
		return 0
	}
	return m2 / float64(n-1)
}
