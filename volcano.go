// Copyright (C) The Strata Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package strata

import (
	"flag"
	"fmt"
	"image/color"
	"io"
	"math"
	"sort"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// volcanoLabelCount is how many top up- and down-regulated genes get
// text labels.
const volcanoLabelCount = 5

func negLog10(p float64) float64 {
	if p <= 0 {
		return 300
	}
	v := -math.Log10(p)
	if v > 300 {
		v = 300
	}
	return v
}

// VolcanoPlot renders effect size against significance for every
// tested gene, coloring significant genes by direction and labeling
// the strongest effects on each side.
func VolcanoPlot(table *DEGTable, th DEGThresholds) (*plot.Plot, error) {
	p, err := plot.New()
	if err != nil {
		return nil, err
	}
	p.Title.Text = fmt.Sprintf("volcano, %s (case %d / control %d)", table.Sex, table.NCase, table.NControl)
	p.X.Label.Text = "log2 fold change"
	p.Y.Label.Text = "-log10 adjusted p"

	var up, down, rest plotter.XYs
	var sig []DEGRow
	for _, row := range table.Rows {
		pt := plotter.XY{X: row.Log2FoldChange, Y: negLog10(row.AdjPValue)}
		switch {
		case row.AdjPValue < th.AdjP && row.Log2FoldChange > th.Log2FC:
			up = append(up, pt)
			sig = append(sig, row)
		case row.AdjPValue < th.AdjP && row.Log2FoldChange < -th.Log2FC:
			down = append(down, pt)
			sig = append(sig, row)
		default:
			rest = append(rest, pt)
		}
	}
	add := func(xys plotter.XYs, c color.Color, name string) error {
		if len(xys) == 0 {
			return nil
		}
		s, err := plotter.NewScatter(xys)
		if err != nil {
			return err
		}
		s.GlyphStyle.Color = c
		s.GlyphStyle.Radius = vg.Points(2)
		p.Add(s)
		p.Legend.Add(name, s)
		return nil
	}
	if err := add(rest, color.RGBA{R: 170, G: 170, B: 170, A: 255}, "n.s."); err != nil {
		return nil, err
	}
	if err := add(up, color.RGBA{R: 200, G: 30, B: 30, A: 255}, "up"); err != nil {
		return nil, err
	}
	if err := add(down, color.RGBA{R: 30, G: 60, B: 200, A: 255}, "down"); err != nil {
		return nil, err
	}

	sort.SliceStable(sig, func(i, j int) bool {
		return math.Abs(sig[i].Log2FoldChange) > math.Abs(sig[j].Log2FoldChange)
	})
	var labels plotter.XYLabels
	nup, ndown := 0, 0
	for _, row := range sig {
		if row.Log2FoldChange > 0 && nup < volcanoLabelCount {
			nup++
		} else if row.Log2FoldChange < 0 && ndown < volcanoLabelCount {
			ndown++
		} else {
			continue
		}
		labels.XYs = append(labels.XYs, plotter.XY{X: row.Log2FoldChange, Y: negLog10(row.AdjPValue)})
		labels.Labels = append(labels.Labels, row.Gene)
	}
	if len(labels.Labels) > 0 {
		lbl, err := plotter.NewLabels(labels)
		if err != nil {
			return nil, err
		}
		p.Add(lbl)
	}
	return p, nil
}

type volcanocmd struct {
	inputs inputFlags
}

func (cmd *volcanocmd) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
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
	outputFilename := flags.String("o", "", "output `filename` (e.g., './volcano.png')")
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
	table, err := DifferentialExpression(ae, *sex)
	if err != nil {
		return 1
	}
	p, err := VolcanoPlot(table, DEGThresholds{Log2FC: *lfc, AdjP: *adjp})
	if err != nil {
		return 1
	}
	err = p.Save(6*vg.Inch, 5*vg.Inch, *outputFilename)
	if err != nil {
		return 1
	}
	return 0
}
