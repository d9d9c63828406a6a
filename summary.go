// Copyright (C) The Strata Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package strata

import (
	"bufio"
	"flag"
	"fmt"
	"io"

	log "github.com/sirupsen/logrus"
)

// SummaryRow is one line of the cross-sex summary table.
type SummaryRow struct {
	Sex    string
	Metric string
	Value  int
}

// Summarize produces, for each sex stratum in order, the sample,
// case, control, and significant-gene counts (four rows per sex).
// Strata whose differential-expression fit failed get a zero
// significant-gene count but keep their sample accounting.
func Summarize(ae *AnnotatedExpression, tables map[string]*DEGTable, th DEGThresholds) []SummaryRow {
	var rows []SummaryRow
	for _, sex := range []string{SexFemale, SexMale} {
		idx, ncase, ncontrol := ae.sampleIndex(sex)
		ndeg := 0
		if t := tables[sex]; t != nil {
			ndeg = len(t.Significant(th))
		}
		rows = append(rows,
			SummaryRow{sex, "samples", len(idx)},
			SummaryRow{sex, "cases", ncase},
			SummaryRow{sex, "controls", ncontrol},
			SummaryRow{sex, "significant genes", ndeg},
		)
	}
	return rows
}

func writeSummaryCSV(w io.Writer, rows []SummaryRow) error {
	bufw := bufio.NewWriter(w)
	_, err := fmt.Fprint(bufw, "Sex,Metric,Value\n")
	if err != nil {
		return err
	}
	for _, r := range rows {
		_, err = fmt.Fprintf(bufw, "%s,%s,%d\n", r.Sex, r.Metric, r.Value)
		if err != nil {
			return err
		}
	}
	return bufw.Flush()
}

type summarycmd struct {
	inputs inputFlags
}

func (cmd *summarycmd) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var err error
	defer func() {
		if err != nil {
			fmt.Fprintf(stderr, "%s\n", err)
		}
	}()
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	cmd.inputs.Flags(flags)
	lfc := flags.Float64("lfc", 0.5, "|log2 fold change| cutoff (strict)")
	adjp := flags.Float64("adjp", 0.05, "adjusted p-value cutoff (strict)")
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
	tables := map[string]*DEGTable{}
	for _, sex := range []string{SexFemale, SexMale} {
		table, err := DifferentialExpression(ae, sex)
		if err != nil {
			log.Warnf("sex %q: %s", sex, err)
			continue
		}
		tables[sex] = table
	}
	rows := Summarize(ae, tables, DEGThresholds{Log2FC: *lfc, AdjP: *adjp})
	output, err := openOutput(*outputFilename, stdout)
	if err != nil {
		return 1
	}
	defer output.Close()
	err = writeSummaryCSV(output, rows)
	if err != nil {
		return 1
	}
	err = output.Close()
	if err != nil {
		return 1
	}
	return 0
}
