// Copyright (C) The Strata Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package strata

import (
	"flag"
	"fmt"
	"io"
	"sort"

	log "github.com/sirupsen/logrus"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// StabilityFeature is one confirmed feature with its selection
// statistics.
type StabilityFeature struct {
	Gene           string
	Hits           int
	MeanImportance float64
	PValue         float64
}

// StabilityResult is the outcome of shadow-feature stability
// selection: only confirmed features are reported.
type StabilityResult struct {
	Iterations int
	Tested     int
	Features   []StabilityFeature
}

// StabilitySelect runs an iterated shadow-feature selection: each
// iteration appends a permuted copy of every column, scores
// importance over real and shadow columns together, and credits a hit
// to every real feature scoring above the best shadow. A feature is
// confirmed when its hit count is binomially significant (p = 0.5
// null) at the given level over all iterations.
func StabilitySelect(fm *FeatureMatrix, scorer featureScorer, iterations int, alpha float64, seed uint64) (*StabilityResult, error) {
	if !bothClasses(fm.Outcome) {
		return nil, fmt.Errorf("insufficient data: all modeling samples are in one outcome group")
	}
	if iterations < 1 {
		iterations = 50
	}
	if alpha <= 0 {
		alpha = 0.05
	}
	n := len(fm.X)
	p := len(fm.Genes)
	rnd := rand.New(rand.NewSource(seed))

	hits := make([]int, p)
	impSum := make([]float64, p)
	for iter := 0; iter < iterations; iter++ {
		combined := make([][]float64, n)
		for i, row := range fm.X {
			combined[i] = make([]float64, 2*p)
			copy(combined[i], row)
		}
		for col := 0; col < p; col++ {
			perm := rnd.Perm(n)
			for i := range combined {
				combined[i][p+col] = fm.X[perm[i]][col]
			}
		}
		imp := scorer.Importance(combined, fm.Outcome)
		maxShadow := imp[p]
		for _, v := range imp[p+1:] {
			if v > maxShadow {
				maxShadow = v
			}
		}
		for col := 0; col < p; col++ {
			impSum[col] += imp[col]
			if imp[col] > maxShadow {
				hits[col]++
			}
		}
	}

	binom := distuv.Binomial{N: float64(iterations), P: 0.5}
	result := &StabilityResult{Iterations: iterations, Tested: p}
	for col := 0; col < p; col++ {
		pval := binom.Survival(float64(hits[col]) - 1)
		if pval >= alpha {
			continue
		}
		result.Features = append(result.Features, StabilityFeature{
			Gene:           fm.Genes[col],
			Hits:           hits[col],
			MeanImportance: impSum[col] / float64(iterations),
			PValue:         pval,
		})
	}
	sort.SliceStable(result.Features, func(i, j int) bool {
		a, b := result.Features[i], result.Features[j]
		if a.Hits != b.Hits {
			return a.Hits > b.Hits
		}
		if a.MeanImportance != b.MeanImportance {
			return a.MeanImportance > b.MeanImportance
		}
		return a.Gene < b.Gene
	})
	log.WithFields(log.Fields{
		"tested":    p,
		"confirmed": len(result.Features),
	}).Info("stability selection done")
	return result, nil
}

type stabilitycmd struct {
	inputs inputFlags
}

func (cmd *stabilitycmd) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
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
	iterations := flags.Int("iterations", 50, "shadow-feature iterations")
	trees := flags.Int("trees", 500, "trees per forest")
	alpha := flags.Float64("alpha", 0.05, "binomial confirmation level")
	seed := flags.Uint64("seed", 1, "PRNG seed")
	outputFilename := flags.String("o", "-", "output `file` (csv)")
	err = flags.Parse(args)
	if err == flag.ErrHelp {
		err = nil
		return 0
	} else if err != nil {
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
	result, err := StabilitySelect(fm, newForestScorer(*trees, *seed), *iterations, *alpha, *seed)
	if err != nil {
		return 1
	}
	output, err := openOutput(*outputFilename, stdout)
	if err != nil {
		return 1
	}
	defer output.Close()
	fmt.Fprint(output, "Gene,Hits,MeanImportance,PValue\n")
	for _, f := range result.Features {
		fmt.Fprintf(output, "%s,%d,%g,%g\n", f.Gene, f.Hits, f.MeanImportance, f.PValue)
	}
	err = output.Close()
	if err != nil {
		return 1
	}
	return 0
}

// buildWorkflowFeatures is the shared front half of every ML
// workflow: stratum restriction plus the optional DEG allowlist
// (which requires a successful differential-expression fit first).
func buildWorkflowFeatures(ae *AnnotatedExpression, sex string, degsOnly bool, th DEGThresholds) (*FeatureMatrix, error) {
	var allow map[string]bool
	if degsOnly {
		table, err := DifferentialExpression(ae, sex)
		if err != nil {
			return nil, err
		}
		allow = table.GeneSet(th)
		if len(allow) == 0 {
			return nil, fmt.Errorf("no significant genes for sex %q at the given thresholds", sex)
		}
	}
	return BuildFeatureMatrix(ae, sex, allow)
}
