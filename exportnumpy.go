// Copyright (C) The Strata Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package strata

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/kshedden/gonpy"
	log "github.com/sirupsen/logrus"
)

// exportNumpy writes a stratum's feature matrix as a numpy .npy file
// (samples × genes, float64) plus a samples.csv sidecar with the
// outcome labels, for downstream Python tooling.
type exportNumpy struct {
	inputs inputFlags
}

func (cmd *exportNumpy) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
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
	outputFilename := flags.String("o", "-", "output `file` (.npy)")
	annotationsFilename := flags.String("output-annotations", "", "output `file` for sample annotations csv")
	genesFilename := flags.String("output-genes", "", "output `file` for the gene (column) list")
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

	var output io.WriteCloser
	if *outputFilename == "-" {
		output = nopCloser{stdout}
	} else {
		output, err = os.OpenFile(*outputFilename, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0777)
		if err != nil {
			return 1
		}
		defer output.Close()
	}
	bufw := bufio.NewWriter(output)
	npw, err := gonpy.NewWriter(nopCloser{bufw})
	if err != nil {
		return 1
	}
	rows, cols := len(fm.Samples), len(fm.Genes)
	out := make([]float64, rows*cols)
	for i, row := range fm.X {
		copy(out[i*cols:(i+1)*cols], row)
	}
	npw.Shape = []int{rows, cols}
	log.Printf("writing numpy: %d rows, %d cols", rows, cols)
	err = npw.WriteFloat64(out)
	if err != nil {
		return 1
	}
	err = bufw.Flush()
	if err != nil {
		return 1
	}
	err = output.Close()
	if err != nil {
		return 1
	}

	if *annotationsFilename != "" {
		var f *os.File
		f, err = os.Create(*annotationsFilename)
		if err != nil {
			return 1
		}
		defer f.Close()
		_, err = fmt.Fprint(f, "Index,SampleID,CaseControl\n")
		if err != nil {
			return 1
		}
		for i, id := range fm.Samples {
			_, err = fmt.Fprintf(f, "%d,%s,%d\n", i, id, fm.Outcome[i])
			if err != nil {
				return 1
			}
		}
		err = f.Close()
		if err != nil {
			return 1
		}
	}
	if *genesFilename != "" {
		var f *os.File
		f, err = os.Create(*genesFilename)
		if err != nil {
			return 1
		}
		defer f.Close()
		for _, g := range fm.Genes {
			_, err = fmt.Fprintln(f, g)
			if err != nil {
				return 1
			}
		}
		err = f.Close()
		if err != nil {
			return 1
		}
	}
	return 0
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }
