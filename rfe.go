// Copyright (C) The Strata Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package strata

import (
	"flag"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
)

// RFEResult records the cross-validated accuracy at each candidate
// feature-set size and the winning subset.
type RFEResult struct {
	Sizes    []int
	Accuracy []float64
	BestSize int
	Features []string
}

// RecursiveElimination ranks features by importance, then walks the
// candidate sizes from largest to smallest, re-ranking within the
// surviving subset after each cut and scoring each subset by k-fold
// cross-validation. The best-scoring size wins; ties go to the
// smaller subset.
func RecursiveElimination(fm *FeatureMatrix, scorer featureScorer, eval cvScorer, sizes []int, folds int) (*RFEResult, error) {
	if !bothClasses(fm.Outcome) {
		return nil, fmt.Errorf("insufficient data: all modeling samples are in one outcome group")
	}
	p := len(fm.Genes)
	var want []int
	seen := map[int]bool{}
	for _, s := range sizes {
		if s >= 1 && s <= p && !seen[s] {
			want = append(want, s)
			seen[s] = true
		}
	}
	if len(want) == 0 {
		return nil, fmt.Errorf("no usable candidate sizes (have %d features)", p)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(want)))

	current := make([]int, p) // column indices into fm, ranked best-first
	for i := range current {
		current[i] = i
	}
	rank := func(cols []int) []int {
		x := subsetColumns(fm.X, cols)
		imp := scorer.Importance(x, fm.Outcome)
		order := make([]int, len(cols))
		for i := range order {
			order[i] = i
		}
		sort.SliceStable(order, func(a, b int) bool { return imp[order[a]] > imp[order[b]] })
		ranked := make([]int, len(cols))
		for i, j := range order {
			ranked[i] = cols[j]
		}
		return ranked
	}
	current = rank(current)

	result := &RFEResult{}
	bestAcc := -1.0
	var bestCols []int
	for _, size := range want {
		current = current[:size]
		acc := eval.Accuracy(subsetColumns(fm.X, current), fm.Outcome, folds)
		result.Sizes = append(result.Sizes, size)
		result.Accuracy = append(result.Accuracy, acc)
		if acc >= bestAcc { // walking large→small, so ties prefer smaller
			bestAcc = acc
			bestCols = append([]int(nil), current...)
		}
		log.WithFields(log.Fields{"size": size, "accuracy": acc}).Debug("rfe step")
		if size > 1 {
			current = rank(current)
		}
	}
	result.BestSize = len(bestCols)
	for _, col := range bestCols {
		result.Features = append(result.Features, fm.Genes[col])
	}
	return result, nil
}

func subsetColumns(x [][]float64, cols []int) [][]float64 {
	out := make([][]float64, len(x))
	for i, row := range x {
		sub := make([]float64, len(cols))
		for j, col := range cols {
			sub[j] = row[col]
		}
		out[i] = sub
	}
	return out
}

func parseSizes(s string) ([]int, error) {
	var sizes []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("bad size %q: %w", part, err)
		}
		sizes = append(sizes, v)
	}
	return sizes, nil
}

type rfecmd struct {
	inputs inputFlags
}

func (cmd *rfecmd) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var err error
	defer func() {
		if err != nil {
			fmt.Fprintf(stderr, "%s\n", err)
		}
	}()
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	cmd.inputs.Flags(flags)
	sex := flags.String("sex", SexFemale, "sex stratum (female or male)")
	degsOnly := flags.Bool("degs-only", false, "restrict features to the stratum's significant genes")
	lfc := flags.Float64("lfc", 0.5, "|log2 fold change| cutoff for -degs-only")
	adjp := flags.Float64("adjp", 0.05, "adjusted p-value cutoff for -degs-only")
	sizesArg := flags.String("sizes", "5,10,20,50", "comma-separated candidate feature-set `sizes`")
	folds := flags.Int("folds", 5, "cross-validation folds")
	trees := flags.Int("trees", 500, "trees per forest")
	seed := flags.Uint64("seed", 1, "PRNG seed")
	outputFilename := flags.String("o", "-", "output `file` (csv)")
	err = flags.Parse(args)
	if err == flag.ErrHelp {
		err = nil
		return 0
	} else if err != nil {
		return 2
	}
	sizes, err := parseSizes(*sizesArg)
	if err != nil {
		return 2
	}

	ae, err := cmd.inputs.Load()
	if err != nil {
		return 1
	}
	fm, err := buildWorkflowFeatures(ae, *sex, *degsOnly, DEGThresholds{Log2FC: *lfc, AdjP: *adjp})
	if err != nil {
		return 1
	}
	scorer := newForestScorer(*trees, *seed)
	result, err := RecursiveElimination(fm, scorer, scorer, sizes, *folds)
	if err != nil {
		return 1
	}
	output, err := openOutput(*outputFilename, stdout)
	if err != nil {
		return 1
	}
	defer output.Close()
	fmt.Fprintf(output, "# best size %d\n", result.BestSize)
	fmt.Fprint(output, "Size,CVAccuracy\n")
	for i, size := range result.Sizes {
		fmt.Fprintf(output, "%d,%g\n", size, result.Accuracy[i])
	}
	fmt.Fprint(output, "SelectedGene\n")
	for _, g := range result.Features {
		fmt.Fprintf(output, "%s\n", g)
	}
	err = output.Close()
	if err != nil {
		return 1
	}
	return 0
}
