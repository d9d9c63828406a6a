// Copyright (C) The Strata Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package strata

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"math"
	"sort"

	log "github.com/sirupsen/logrus"
)

// DEGRow is the differential-expression result for one gene in one
// sex stratum.
type DEGRow struct {
	Gene           string
	Log2FoldChange float64 // case mean minus control mean
	T              float64
	PValue         float64
	AdjPValue      float64
	MeanCase       float64
	MeanControl    float64
	Direction      string // "up" or "down", relative to disease
}

// DEGTable holds results for every tested gene in one stratum, in
// deterministic order (adjusted p ascending, then |log2FC|
// descending, then gene symbol).
type DEGTable struct {
	Sex      string
	NCase    int
	NControl int
	PriorDF  float64
	PriorVar float64
	Rows     []DEGRow
}

// DEGThresholds are the user-adjustable filter cutoffs.
type DEGThresholds struct {
	Log2FC float64 // default 0.5
	AdjP   float64 // default 0.05
}

func DefaultThresholds() DEGThresholds {
	return DEGThresholds{Log2FC: 0.5, AdjP: 0.05}
}

// Significant returns the rows passing both cutoffs: adjusted p
// strictly below AdjP and |log2FC| strictly above Log2FC.
func (t *DEGTable) Significant(th DEGThresholds) []DEGRow {
	var out []DEGRow
	for _, row := range t.Rows {
		if row.AdjPValue < th.AdjP && math.Abs(row.Log2FoldChange) > th.Log2FC {
			out = append(out, row)
		}
	}
	return out
}

// GeneSet returns the distinct gene symbols of the significant rows.
func (t *DEGTable) GeneSet(th DEGThresholds) map[string]bool {
	set := map[string]bool{}
	for _, row := range t.Significant(th) {
		set[row.Gene] = true
	}
	return set
}

// DifferentialExpression fits, for each gene, a two-group
// no-intercept linear model (equivalently the two group means) of
// expression on case/control status within one sex stratum, shrinks
// the gene-wise residual variances toward a common prior, and
// computes moderated-t significance with BH FDR correction across all
// tested genes. Deterministic: identical inputs give identical
// output, byte for byte.
func DifferentialExpression(ae *AnnotatedExpression, sex string) (*DEGTable, error) {
	idx, ncase, ncontrol := ae.sampleIndex(sex)
	if len(idx) < 2 {
		return nil, fmt.Errorf("insufficient data: %d samples with sex %q", len(idx), sex)
	}
	if ncase == 0 || ncontrol == 0 {
		return nil, fmt.Errorf("insufficient data: sex %q has %d case and %d control samples; need both groups", sex, ncase, ncontrol)
	}
	df := float64(len(idx) - 2)

	type fit struct {
		gene              int
		meanCase, meanCtl float64
		s2                float64 // pooled residual variance
		nCaseOK, nCtlOK   int
	}
	fits := make([]fit, 0, len(ae.Genes))
	for g := range ae.Genes {
		f := fit{gene: g}
		var sumCase, sumCtl float64
		for _, i := range idx {
			v := ae.Values[g][i]
			if math.IsNaN(v) {
				continue
			}
			if ae.Status[i] == StatusRA {
				sumCase += v
				f.nCaseOK++
			} else {
				sumCtl += v
				f.nCtlOK++
			}
		}
		if f.nCaseOK == 0 || f.nCtlOK == 0 || f.nCaseOK+f.nCtlOK < 3 {
			continue
		}
		f.meanCase = sumCase / float64(f.nCaseOK)
		f.meanCtl = sumCtl / float64(f.nCtlOK)
		var rss float64
		for _, i := range idx {
			v := ae.Values[g][i]
			if math.IsNaN(v) {
				continue
			}
			var r float64
			if ae.Status[i] == StatusRA {
				r = v - f.meanCase
			} else {
				r = v - f.meanCtl
			}
			rss += r * r
		}
		f.s2 = rss / float64(f.nCaseOK+f.nCtlOK-2)
		fits = append(fits, f)
	}
	if len(fits) == 0 {
		return nil, fmt.Errorf("insufficient data: no gene has observations in both groups for sex %q", sex)
	}

	s2 := make([]float64, len(fits))
	for i, f := range fits {
		s2[i] = f.s2
	}
	d0, s02, post := squeezeVar(s2, df)

	pvals := make([]float64, len(fits))
	tstats := make([]float64, len(fits))
	for i, f := range fits {
		se := math.Sqrt(post[i] * (1/float64(f.nCaseOK) + 1/float64(f.nCtlOK)))
		t := 0.0
		if se > 0 {
			t = (f.meanCase - f.meanCtl) / se
		}
		tstats[i] = t
		pvals[i] = tTailP(t, df+d0)
	}
	adj := benjaminiHochberg(pvals)

	table := &DEGTable{
		Sex:      sex,
		NCase:    ncase,
		NControl: ncontrol,
		PriorDF:  d0,
		PriorVar: s02,
	}
	for i, f := range fits {
		lfc := f.meanCase - f.meanCtl
		dir := "up"
		if lfc < 0 {
			dir = "down"
		}
		table.Rows = append(table.Rows, DEGRow{
			Gene:           ae.Genes[f.gene],
			Log2FoldChange: lfc,
			T:              tstats[i],
			PValue:         pvals[i],
			AdjPValue:      adj[i],
			MeanCase:       f.meanCase,
			MeanControl:    f.meanCtl,
			Direction:      dir,
		})
	}
	sort.SliceStable(table.Rows, func(i, j int) bool {
		a, b := table.Rows[i], table.Rows[j]
		if a.AdjPValue != b.AdjPValue {
			return a.AdjPValue < b.AdjPValue
		}
		if fa, fb := math.Abs(a.Log2FoldChange), math.Abs(b.Log2FoldChange); fa != fb {
			return fa > fb
		}
		return a.Gene < b.Gene
	})
	log.WithFields(log.Fields{
		"sex":      sex,
		"tested":   len(table.Rows),
		"case":     ncase,
		"control":  ncontrol,
		"priorDF":  d0,
		"priorVar": s02,
	}).Info("differential expression fitted")
	return table, nil
}

func writeDEGCSV(w io.Writer, rows []DEGRow) error {
	bufw := bufio.NewWriter(w)
	_, err := fmt.Fprint(bufw, "Gene,Log2FoldChange,PValue,AdjPValue,MeanCase,MeanControl,Direction\n")
	if err != nil {
		return err
	}
	for _, r := range rows {
		_, err = fmt.Fprintf(bufw, "%s,%g,%g,%g,%g,%g,%s\n",
			r.Gene, r.Log2FoldChange, r.PValue, r.AdjPValue, r.MeanCase, r.MeanControl, r.Direction)
		if err != nil {
			return err
		}
	}
	return bufw.Flush()
}

type degcmd struct {
	inputs inputFlags
}

func (cmd *degcmd) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
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
	lfc := flags.Float64("lfc", 0.5, "|log2 fold change| cutoff (strict)")
	adjp := flags.Float64("adjp", 0.05, "adjusted p-value cutoff (strict)")
	all := flags.Bool("all", false, "emit every tested gene, not only significant ones")
	outputFilename := flags.String("o", "-", "output `file` (csv)")
	loglevel := flags.String("loglevel", "info", "logging threshold (trace, debug, info, warn, error, fatal, or panic)")
	err = flags.Parse(args)
	if err == flag.ErrHelp {
		err = nil
		return 0
	} else if err != nil {
		return 2
	}
	lvl, err := log.ParseLevel(*loglevel)
	if err != nil {
		return 2
	}
	log.SetLevel(lvl)

	ae, err := cmd.inputs.Load()
	if err != nil {
		return 1
	}
	table, err := DifferentialExpression(ae, *sex)
	if err != nil {
		return 1
	}
	rows := table.Rows
	if !*all {
		rows = table.Significant(DEGThresholds{Log2FC: *lfc, AdjP: *adjp})
	}
	output, err := openOutput(*outputFilename, stdout)
	if err != nil {
		return 1
	}
	defer output.Close()
	err = writeDEGCSV(output, rows)
	if err != nil {
		return 1
	}
	err = output.Close()
	if err != nil {
		return 1
	}
	return 0
}
