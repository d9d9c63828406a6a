// Copyright (C) The Strata Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package strata

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/pgzip"
)

// rawTable is an uploaded tabular file, split into header and data
// rows but not otherwise interpreted.
type rawTable struct {
	Header []string
	Rows   [][]string
}

// readTable reads a CSV or TSV table, transparently decompressing
// gzip input. The field separator is sniffed from the header line:
// tab wins if the line contains any tab, otherwise comma.
func readTable(r io.Reader) (*rawTable, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(2)
	if err == nil && magic[0] == 0x1f && magic[1] == 0x8b {
		gz, err := pgzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		defer gz.Close()
		br = bufio.NewReader(gz)
	}
	headline, err := br.ReadString('\n')
	if err != nil && err != io.EOF {
		return nil, err
	}
	if strings.TrimSpace(headline) == "" {
		return nil, fmt.Errorf("empty input")
	}
	sep := ','
	if strings.ContainsRune(headline, '\t') {
		sep = '\t'
	}
	rdr := csv.NewReader(io.MultiReader(strings.NewReader(headline), br))
	rdr.Comma = sep
	rdr.FieldsPerRecord = -1
	rdr.TrimLeadingSpace = true
	records, err := rdr.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("empty input")
	}
	tbl := &rawTable{Header: records[0]}
	for _, rec := range records[1:] {
		if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" {
			continue
		}
		tbl.Rows = append(tbl.Rows, rec)
	}
	return tbl, nil
}

func readTableFile(fnm string) (*rawTable, error) {
	f, err := os.Open(fnm)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tbl, err := readTable(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fnm, err)
	}
	return tbl, nil
}

// cleanIdentifier strips whitespace and separator characters so the
// same sample ID matches across differently mangled headers.
func cleanIdentifier(id string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\r', '\n', '"', ',', ';':
			return -1
		}
		return r
	}, id)
}

type previewcmd struct{}

func (cmd *previewcmd) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var err error
	defer func() {
		if err != nil {
			fmt.Fprintf(stderr, "%s\n", err)
		}
	}()
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	inputFilename := flags.String("i", "-", "input `file`")
	nrows := flags.Int("n", 10, "show first `N` data rows")
	ncols := flags.Int("cols", 10, "show first `N` columns")
	err = flags.Parse(args)
	if err == flag.ErrHelp {
		err = nil
		return 0
	} else if err != nil {
		return 2
	}

	var tbl *rawTable
	if *inputFilename == "-" {
		tbl, err = readTable(stdin)
	} else {
		tbl, err = readTableFile(*inputFilename)
	}
	if err != nil {
		return 1
	}
	trunc := func(rec []string) []string {
		if len(rec) > *ncols {
			rec = append(append([]string(nil), rec[:*ncols]...), "...")
		}
		return rec
	}
	var buf bytes.Buffer
	fmt.Fprintln(&buf, strings.Join(trunc(tbl.Header), "\t"))
	for i, row := range tbl.Rows {
		if i >= *nrows {
			fmt.Fprintf(&buf, "... (%d more rows)\n", len(tbl.Rows)-i)
			break
		}
		fmt.Fprintln(&buf, strings.Join(trunc(row), "\t"))
	}
	_, err = stdout.Write(buf.Bytes())
	if err != nil {
		return 1
	}
	return 0
}
