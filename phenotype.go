// Copyright (C) The Strata Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package strata

import (
	"fmt"
	"io"
	"strings"

	log "github.com/sirupsen/logrus"
)

// Canonical status and sex labels.
const (
	StatusControl = "control"
	StatusRA      = "rheumatoid arthritis"
	SexFemale     = "female"
	SexMale       = "male"
)

// PhenotypeTable maps sample ID to canonicalized sex and disease
// status.
type PhenotypeTable struct {
	Samples []string
	Sex     map[string]string
	Status  map[string]string
}

var statusSynonyms = map[string]string{
	"ra":      StatusRA,
	"normal":  StatusControl,
	"healthy": StatusControl,
}

var sexSynonyms = map[string]string{
	"f": SexFemale,
	"m": SexMale,
}

// CanonicalStatus lowercases and trims a status value and maps known
// synonyms onto the canonical vocabulary.
func CanonicalStatus(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if c, ok := statusSynonyms[s]; ok {
		return c
	}
	return s
}

func canonicalSex(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if c, ok := sexSynonyms[s]; ok {
		return c
	}
	return s
}

// findColumn returns the index of the first header field whose
// lowercased name contains any of the given substrings, -1 if none.
func findColumn(header []string, substrings ...string) int {
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(name))
		for _, sub := range substrings {
			if strings.Contains(name, sub) {
				return i
			}
		}
	}
	return -1
}

// LoadPhenotype parses a phenotype table: one row per sample, with a
// `sample` column (exact match, case-insensitive), a sex column
// (substring gender/sex) and a status column (substring
// status/group/diagnosis/condition/disease). Rows with a missing
// sample ID, sex, or status are dropped.
func LoadPhenotype(r io.Reader) (*PhenotypeTable, error) {
	tbl, err := readTable(r)
	if err != nil {
		return nil, err
	}
	sampleCol := -1
	for i, name := range tbl.Header {
		if strings.EqualFold(strings.TrimSpace(name), "sample") {
			sampleCol = i
			break
		}
	}
	if sampleCol < 0 {
		return nil, fmt.Errorf("phenotype table has no %q column", "sample")
	}
	sexCol := findColumn(tbl.Header, "gender", "sex")
	if sexCol < 0 {
		return nil, fmt.Errorf("phenotype table has no sex column (header must contain %q or %q)", "gender", "sex")
	}
	statusCol := findColumn(tbl.Header, "status", "group", "diagnosis", "condition", "disease")
	if statusCol < 0 {
		return nil, fmt.Errorf("phenotype table has no status column (header must contain one of status, group, diagnosis, condition, disease)")
	}

	pt := &PhenotypeTable{
		Sex:    map[string]string{},
		Status: map[string]string{},
	}
	dropped := 0
	for _, rec := range tbl.Rows {
		get := func(col int) string {
			if col < len(rec) {
				return rec[col]
			}
			return ""
		}
		id := cleanIdentifier(get(sampleCol))
		sex := canonicalSex(get(sexCol))
		status := CanonicalStatus(get(statusCol))
		if id == "" || sex == "" || status == "" {
			dropped++
			continue
		}
		if _, dup := pt.Sex[id]; dup {
			return nil, fmt.Errorf("phenotype table has duplicate sample identifier %q", id)
		}
		pt.Samples = append(pt.Samples, id)
		pt.Sex[id] = sex
		pt.Status[id] = status
	}
	if len(pt.Samples) == 0 {
		return nil, fmt.Errorf("phenotype table has no usable rows")
	}
	if dropped > 0 {
		log.Warnf("dropped %d phenotype rows with missing sample/sex/status", dropped)
	}
	log.WithField("samples", len(pt.Samples)).Info("loaded phenotype table")
	return pt, nil
}
