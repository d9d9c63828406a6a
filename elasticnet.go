// Copyright (C) The Strata Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package strata

import (
	"flag"
	"fmt"
	"io"
	stdlog "log"
	"math"
	"sort"

	"github.com/kshedden/statmodel/glm"
	"github.com/kshedden/statmodel/statmodel"
	log "github.com/sirupsen/logrus"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat"
)

func normalize(a []float64) {
	mean, std := stat.MeanStdDev(a, nil)
	if std == 0 {
		std = 1
	}
	for i, x := range a {
		a[i] = (x - mean) / std
	}
}

// ElasticNetFeature is a nonzero coefficient at the selected penalty,
// on the standardized-predictor scale.
type ElasticNetFeature struct {
	Gene        string
	Coefficient float64
}

// ElasticNetResult is the outcome of cross-validated elastic-net
// logistic regression.
type ElasticNetResult struct {
	Alpha      float64
	Lambda     float64
	Lambdas    []float64
	CVDeviance []float64
	Intercept  float64
	Features   []ElasticNetFeature
}

// ElasticNetSelect fits a penalized logistic regression over a
// descending lambda grid at the given L1/L2 mixing parameter,
// selects lambda by k-fold cross-validated deviance, refits on the
// full stratum, and reports the nonzero-coefficient features.
func ElasticNetSelect(fm *FeatureMatrix, alpha float64, nLambda, folds int, seed uint64) (*ElasticNetResult, error) {
	if alpha < 0 || alpha > 1 {
		return nil, fmt.Errorf("elastic-net mixing parameter %g out of range [0,1]", alpha)
	}
	if !bothClasses(fm.Outcome) {
		return nil, fmt.Errorf("insufficient data: all modeling samples are in one outcome group")
	}
	if nLambda < 2 {
		nLambda = 20
	}
	if folds < 2 {
		folds = 5
	}
	n := len(fm.X)
	p := len(fm.Genes)
	if folds > n {
		folds = n
	}

	// Standardized predictor columns.
	cols := make([][]float64, p)
	for j := 0; j < p; j++ {
		col := make([]float64, n)
		for i, row := range fm.X {
			col[i] = row[j]
		}
		normalize(col)
		cols[j] = col
	}
	outcome := make([]float64, n)
	ybar := 0.0
	for i, y := range fm.Outcome {
		outcome[i] = float64(y)
		ybar += float64(y)
	}
	ybar /= float64(n)

	// glmnet-style lambda grid, anchored at the smallest lambda
	// that zeroes every coefficient.
	denom := alpha
	if denom < 0.001 {
		denom = 0.001
	}
	lambdaMax := 0.0
	for j := 0; j < p; j++ {
		dot := 0.0
		for i, x := range cols[j] {
			dot += x * (outcome[i] - ybar)
		}
		if v := math.Abs(dot) / (float64(n) * denom); v > lambdaMax {
			lambdaMax = v
		}
	}
	if lambdaMax <= 0 {
		lambdaMax = 1
	}
	lambdas := make([]float64, nLambda)
	ratio := math.Pow(0.01, 1/float64(nLambda-1))
	for i := range lambdas {
		lambdas[i] = lambdaMax * math.Pow(ratio, float64(i))
	}

	fold := make([]int, n)
	perm := rand.New(rand.NewSource(seed)).Perm(n)
	for i, j := range perm {
		fold[j] = i % folds
	}

	result := &ElasticNetResult{Alpha: alpha, Lambdas: lambdas}
	bestDev := math.Inf(1)
	bestLambda := lambdas[0]
	for _, lambda := range lambdas {
		dev := 0.0
		nheld := 0
		for k := 0; k < folds; k++ {
			var trainIdx, testIdx []int
			for i := 0; i < n; i++ {
				if fold[i] == k {
					testIdx = append(testIdx, i)
				} else {
					trainIdx = append(trainIdx, i)
				}
			}
			params, ok := fitPenalizedLogistic(cols, outcome, trainIdx, alpha, lambda)
			if !ok {
				dev = math.Inf(1)
				break
			}
			for _, i := range testIdx {
				eta := params[0]
				for j := 0; j < p; j++ {
					eta += params[j+1] * cols[j][i]
				}
				mu := 1 / (1 + math.Exp(-eta))
				if mu < 1e-9 {
					mu = 1e-9
				} else if mu > 1-1e-9 {
					mu = 1 - 1e-9
				}
				dev -= 2 * (outcome[i]*math.Log(mu) + (1-outcome[i])*math.Log(1-mu))
				nheld++
			}
		}
		if nheld > 0 && !math.IsInf(dev, 1) {
			dev /= float64(nheld)
		}
		result.CVDeviance = append(result.CVDeviance, dev)
		if dev < bestDev {
			bestDev = dev
			bestLambda = lambda
		}
	}
	result.Lambda = bestLambda

	all := make([]int, n)
	for i := range all {
		all[i] = i
	}
	params, ok := fitPenalizedLogistic(cols, outcome, all, alpha, bestLambda)
	if !ok {
		return nil, fmt.Errorf("penalized logistic fit failed at lambda %g", bestLambda)
	}
	result.Intercept = params[0]
	for j := 0; j < p; j++ {
		if coef := params[j+1]; math.Abs(coef) > 1e-8 {
			result.Features = append(result.Features, ElasticNetFeature{Gene: fm.Genes[j], Coefficient: coef})
		}
	}
	sort.SliceStable(result.Features, func(i, j int) bool {
		a, b := result.Features[i], result.Features[j]
		if ca, cb := math.Abs(a.Coefficient), math.Abs(b.Coefficient); ca != cb {
			return ca > cb
		}
		return a.Gene < b.Gene
	})
	log.WithFields(log.Fields{
		"alpha":    alpha,
		"lambda":   bestLambda,
		"selected": len(result.Features),
	}).Info("elastic net fitted")
	return result, nil
}

// fitPenalizedLogistic fits a binomial GLM on the given row subset
// with per-variable elastic-net penalty weights. Returns the fitted
// params (constant first, then one per predictor column) and whether
// the fit succeeded.
func fitPenalizedLogistic(cols [][]float64, outcome []float64, rows []int, alpha, lambda float64) (params []float64, ok bool) {
	defer func() {
		if recover() != nil {
			// typically "matrix singular or near-singular"
			params, ok = nil, false
		}
	}()
	p := len(cols)
	data := make([][]statmodel.Dtype, 0, p+2)
	names := make([]string, 0, p+2)
	take := func(src []float64) []statmodel.Dtype {
		out := make([]statmodel.Dtype, len(rows))
		for i, r := range rows {
			out[i] = statmodel.Dtype(src[r])
		}
		return out
	}
	data = append(data, take(outcome))
	names = append(names, "outcome")
	constants := make([]statmodel.Dtype, len(rows))
	for i := range constants {
		constants[i] = 1
	}
	data = append(data, constants)
	names = append(names, "constants")
	l1 := map[string]float64{}
	l2 := map[string]float64{}
	for j := 0; j < p; j++ {
		name := fmt.Sprintf("g%d", j)
		data = append(data, take(cols[j]))
		names = append(names, name)
		l1[name] = lambda * alpha
		l2[name] = lambda * (1 - alpha)
	}
	dataset := statmodel.NewDataset(data, names)
	config := &glm.Config{
		Family:         glm.NewFamily(glm.BinomialFamily),
		FitMethod:      "IRLS",
		ConcurrentIRLS: 1000,
		L1Penalty:      l1,
		L2Penalty:      l2,
		Log:            stdlog.New(io.Discard, "", 0),
	}
	model, err := glm.NewGLM(dataset, "outcome", names[1:], config)
	if err != nil {
		return nil, false
	}
	fitted := model.Fit()
	return fitted.Params(), true
}

type elasticnetcmd struct {
	inputs inputFlags
}

func (cmd *elasticnetcmd) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
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
	alpha := flags.Float64("alpha", 0.5, "elastic-net mixing parameter in [0,1] (1 = lasso)")
	nLambda := flags.Int("nlambda", 20, "penalty-strength grid size")
	folds := flags.Int("folds", 5, "cross-validation folds")
	seed := flags.Uint64("seed", 1, "PRNG seed for fold assignment")
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
	result, err := ElasticNetSelect(fm, *alpha, *nLambda, *folds, *seed)
	if err != nil {
		return 1
	}
	output, err := openOutput(*outputFilename, stdout)
	if err != nil {
		return 1
	}
	defer output.Close()
	fmt.Fprintf(output, "# alpha %g lambda %g\n", result.Alpha, result.Lambda)
	fmt.Fprint(output, "Gene,Coefficient\n")
	for _, f := range result.Features {
		fmt.Fprintf(output, "%s,%g\n", f.Gene, f.Coefficient)
	}
	err = output.Close()
	if err != nil {
		return 1
	}
	return 0
}
