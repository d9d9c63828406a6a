// Copyright (C) The Strata Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package strata

import (
	"bufio"
	"flag"
	"fmt"
	"image/color"
	"io"
	"math"

	"github.com/james-bowman/nlp"
	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// SamplePCA projects the matched samples onto their leading principal
// components. The returned matrix is sample-major: one row per
// sample, one column per component, rows parallel to ae.Samples.
func SamplePCA(ae *AnnotatedExpression, components int) ([][]float64, error) {
	if components < 1 {
		components = 2
	}
	if components > len(ae.Samples) {
		components = len(ae.Samples)
	}
	rows, cols := len(ae.Genes), len(ae.Samples)
	data := make([]float64, rows*cols)
	for g, row := range ae.Values {
		for i, v := range row {
			if math.IsNaN(v) {
				v = 0
			}
			data[g*cols+i] = v
		}
	}
	mtx := mat.NewDense(rows, cols, data)

	transformer := nlp.NewPCA(components)
	transformer.Fit(mtx)
	reduced, err := transformer.Transform(mtx)
	if err != nil {
		return nil, err
	}
	reduced = reduced.T()

	n, k := reduced.Dims()
	out := make([][]float64, n)
	for i := 0; i < n; i++ {
		out[i] = make([]float64, k)
		for j := 0; j < k; j++ {
			out[i][j] = reduced.At(i, j)
		}
	}
	return out, nil
}

// pcaScatter plots the first two components, one colored series per
// distinct value of the chosen annotation.
func pcaScatter(ae *AnnotatedExpression, scores [][]float64, colorBy string) (*plot.Plot, error) {
	p, err := plot.New()
	if err != nil {
		return nil, err
	}
	p.Title.Text = "sample PCA"
	p.X.Label.Text = "PC1"
	p.Y.Label.Text = "PC2"
	annot := ae.Sex
	if colorBy == "status" {
		annot = ae.Status
	}
	series := map[string]plotter.XYs{}
	var order []string
	for i, scorerow := range scores {
		key := annot[i]
		if _, ok := series[key]; !ok {
			order = append(order, key)
		}
		y := 0.0
		if len(scorerow) > 1 {
			y = scorerow[1]
		}
		series[key] = append(series[key], plotter.XY{X: scorerow[0], Y: y})
	}
	palette := []color.Color{
		color.RGBA{R: 200, G: 30, B: 30, A: 255},
		color.RGBA{R: 30, G: 60, B: 200, A: 255},
		color.RGBA{R: 30, G: 160, B: 60, A: 255},
		color.RGBA{R: 170, G: 120, B: 30, A: 255},
	}
	for i, key := range order {
		s, err := plotter.NewScatter(series[key])
		if err != nil {
			return nil, err
		}
		s.GlyphStyle.Color = palette[i%len(palette)]
		s.GlyphStyle.Radius = vg.Points(3)
		p.Add(s)
		p.Legend.Add(key, s)
	}
	return p, nil
}

type pcacmd struct {
	inputs inputFlags
}

func (cmd *pcacmd) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var err error
	defer func() {
		if err != nil {
			fmt.Fprintf(stderr, "%s\n", err)
		}
	}()
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	cmd.inputs.Flags(flags)
	components := flags.Int("components", 4, "number of components")
	colorBy := flags.String("color-by", "sex", "annotation for the scatter plot (sex or status)")
	outputFilename := flags.String("o", "-", "output `file` (csv of component scores)")
	plotFilename := flags.String("plot", "", "also write a PC1/PC2 scatter `filename` (e.g., './pca.png')")
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
	log.Print("fitting")
	scores, err := SamplePCA(ae, *components)
	if err != nil {
		return 1
	}

	output, err := openOutput(*outputFilename, stdout)
	if err != nil {
		return 1
	}
	defer output.Close()
	bufw := bufio.NewWriter(output)
	fmt.Fprint(bufw, "Sample,Sex,Status")
	for j := range scores[0] {
		fmt.Fprintf(bufw, ",PC%d", j+1)
	}
	fmt.Fprint(bufw, "\n")
	for i, id := range ae.Samples {
		fmt.Fprintf(bufw, "%s,%s,%s", id, ae.Sex[i], ae.Status[i])
		for _, v := range scores[i] {
			fmt.Fprintf(bufw, ",%g", v)
		}
		fmt.Fprint(bufw, "\n")
	}
	err = bufw.Flush()
	if err != nil {
		return 1
	}
	err = output.Close()
	if err != nil {
		return 1
	}

	if *plotFilename != "" {
		p, err2 := pcaScatter(ae, scores, *colorBy)
		if err2 != nil {
			err = err2
			return 1
		}
		err = p.Save(6*vg.Inch, 5*vg.Inch, *plotFilename)
		if err != nil {
			return 1
		}
	}
	return 0
}
