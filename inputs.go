// Copyright (C) The Strata Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package strata

import (
	"flag"
	"fmt"
	"io"
	"os"
)

// inputFlags is the option group shared by every subcommand that
// starts from the two uploaded tables.
type inputFlags struct {
	expressionFile string
	phenotypeFile  string
	minVariance    float64
	noLog2         bool
}

func (f *inputFlags) Flags(flags *flag.FlagSet) {
	flags.StringVar(&f.expressionFile, "expression", "", "expression matrix `file` (csv/tsv, genes x samples)")
	flags.StringVar(&f.phenotypeFile, "phenotype", "", "phenotype table `file` (csv/tsv, one row per sample)")
	flags.Float64Var(&f.minVariance, "min-variance", 0.01, "drop genes with variance ≤ `V`")
	flags.BoolVar(&f.noLog2, "no-log2", false, "skip log2(x+1) transform (input is already on a log scale)")
}

func (f *inputFlags) options() ExpressionOptions {
	return ExpressionOptions{MinVariance: f.minVariance, Log2Transform: !f.noLog2}
}

// Load parses both tables and matches their samples.
func (f *inputFlags) Load() (*AnnotatedExpression, error) {
	if f.expressionFile == "" || f.phenotypeFile == "" {
		return nil, fmt.Errorf("both -expression and -phenotype files are required")
	}
	ef, err := os.Open(f.expressionFile)
	if err != nil {
		return nil, err
	}
	defer ef.Close()
	em, err := LoadExpression(ef, f.options())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", f.expressionFile, err)
	}
	pf, err := os.Open(f.phenotypeFile)
	if err != nil {
		return nil, err
	}
	defer pf.Close()
	pt, err := LoadPhenotype(pf)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", f.phenotypeFile, err)
	}
	return MatchSamples(em, pt)
}

// openOutput returns stdout for "-", otherwise creates the file.
func openOutput(fnm string, stdout io.Writer) (io.WriteCloser, error) {
	if fnm == "-" {
		return nopCloser{stdout}, nil
	}
	return os.Create(fnm)
}
