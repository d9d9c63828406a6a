// Copyright (C) The Strata Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package strata

import (
	"flag"
	"fmt"
	"io"
	"math"
	"strings"

	log "github.com/sirupsen/logrus"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// ExpressionBoxPlot renders, for each selected gene, one box per
// sex/status group over the matched samples.
func ExpressionBoxPlot(ae *AnnotatedExpression, genes []string) (*plot.Plot, error) {
	p, err := plot.New()
	if err != nil {
		return nil, err
	}
	p.Title.Text = "expression by sex and status"
	p.Y.Label.Text = "log2 expression"

	groups := []struct {
		sex, status, label string
	}{
		{SexFemale, StatusControl, "f ctl"},
		{SexFemale, StatusRA, "f ra"},
		{SexMale, StatusControl, "m ctl"},
		{SexMale, StatusRA, "m ra"},
	}
	geneRow := map[string]int{}
	for g := len(ae.Genes) - 1; g >= 0; g-- {
		geneRow[ae.Genes[g]] = g
	}
	var names []string
	loc := 0.0
	for _, gene := range genes {
		g, ok := geneRow[gene]
		if !ok {
			return nil, fmt.Errorf("gene %q not present in the matched expression matrix", gene)
		}
		for _, grp := range groups {
			var vals plotter.Values
			for i := range ae.Samples {
				if ae.Sex[i] != grp.sex || ae.Status[i] != grp.status {
					continue
				}
				if v := ae.Values[g][i]; !math.IsNaN(v) {
					vals = append(vals, v)
				}
			}
			names = append(names, gene+" "+grp.label)
			if len(vals) == 0 {
				loc++
				continue
			}
			box, err := plotter.NewBoxPlot(vg.Points(16), loc, vals)
			if err != nil {
				return nil, err
			}
			p.Add(box)
			loc++
		}
	}
	p.NominalX(names...)
	p.X.Tick.Label.Rotation = math.Pi / 2
	p.X.Tick.Label.XAlign = -1
	p.X.Tick.Label.YAlign = -0.3
	return p, nil
}

type boxplotcmd struct {
	inputs inputFlags
}

func (cmd *boxplotcmd) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var err error
	defer func() {
		if err != nil {
			fmt.Fprintf(stderr, "%s\n", err)
		}
	}()
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	cmd.inputs.Flags(flags)
	genesArg := flags.String("genes", "", "comma-separated `genes` to plot (default: top significant genes)")
	sex := flags.String("sex", SexFemale, "sex stratum used to pick top genes when -genes is empty")
	lfc := flags.Float64("lfc", 0.5, "|log2 fold change| cutoff for picking top genes")
	adjp := flags.Float64("adjp", 0.05, "adjusted p-value cutoff for picking top genes")
	topn := flags.Int("top", 5, "number of top genes when -genes is empty")
	outputFilename := flags.String("o", "", "output `filename` (e.g., './boxplot.png')")
	err = flags.Parse(args)
	if err == flag.ErrHelp {
		err = nil
		return 0
	} else if err != nil {
		return 2
	}
	if *outputFilename == "" {
		fmt.Fprintln(stderr, "error: must specify -o filename.png (or try -help)")
		return 2
	}

	ae, err := cmd.inputs.Load()
	if err != nil {
		return 1
	}
	var genes []string
	if *genesArg != "" {
		for _, g := range strings.Split(*genesArg, ",") {
			if g = strings.TrimSpace(g); g != "" {
				genes = append(genes, g)
			}
		}
	} else {
		table, err2 := DifferentialExpression(ae, *sex)
		if err2 != nil {
			err = err2
			return 1
		}
		sig := table.Significant(DEGThresholds{Log2FC: *lfc, AdjP: *adjp})
		seen := map[string]bool{}
		for _, row := range sig {
			if len(genes) >= *topn {
				break
			}
			if !seen[row.Gene] {
				seen[row.Gene] = true
				genes = append(genes, row.Gene)
			}
		}
		if len(genes) == 0 {
			err = fmt.Errorf("no significant genes to plot for sex %q; use -genes to pick explicitly", *sex)
			return 1
		}
		log.Infof("plotting top genes: %s", strings.Join(genes, ", "))
	}
	p, err := ExpressionBoxPlot(ae, genes)
	if err != nil {
		return 1
	}
	err = p.Save(vg.Length(1+len(genes))*2*vg.Inch, 5*vg.Inch, *outputFilename)
	if err != nil {
		return 1
	}
	return 0
}
