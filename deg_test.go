// Copyright (C) The Strata Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package strata

import (
	"fmt"
	"math"
	"reflect"

	"gopkg.in/check.v1"
)

type degSuite struct{}

var _ = check.Suite(&degSuite{})

// syntheticStudy builds an annotated-expression table with 5 cases
// and 5 controls per sex. Genes named shiftN carry a planted
// between-group mean shift of the given size (in the requested sex
// only); genes named nullN have exactly equal group means.
// Within-group offsets are fixed and balanced, so every gene has the
// same nonzero residual variance and null genes have fold change
// exactly zero.
func syntheticStudy(shifts []float64, nNull int, shiftSex string) *AnnotatedExpression {
	offsets := []float64{-0.2, -0.1, 0, 0.1, 0.2}
	ae := &AnnotatedExpression{}
	for _, sex := range []string{SexFemale, SexMale} {
		for _, status := range []string{StatusControl, StatusRA} {
			for k := 0; k < len(offsets); k++ {
				ae.Samples = append(ae.Samples, fmt.Sprintf("%s-%s-%d", sex[:1], status[:1], k))
				ae.Sex = append(ae.Sex, sex)
				ae.Status = append(ae.Status, status)
			}
		}
	}
	addGene := func(name string, shift float64) {
		row := make([]float64, len(ae.Samples))
		for i := range ae.Samples {
			v := 5 + offsets[i%len(offsets)]
			if ae.Status[i] == StatusRA && ae.Sex[i] == shiftSex {
				v += shift
			}
			row[i] = v
		}
		ae.Genes = append(ae.Genes, name)
		ae.Values = append(ae.Values, row)
	}
	for i, shift := range shifts {
		addGene(fmt.Sprintf("shift%d", i), shift)
	}
	for i := 0; i < nNull; i++ {
		addGene(fmt.Sprintf("null%d", i), 0)
	}
	return ae
}

func (s *degSuite) TestPlantedShiftRecovery(c *check.C) {
	shifts := []float64{1, 1.2, 1.4, 1.6, 1.8, 2, 2.2, 2.4, 2.6, 2.8}
	ae := syntheticStudy(shifts, 90, SexFemale)
	table, err := DifferentialExpression(ae, SexFemale)
	c.Assert(err, check.IsNil)
	c.Check(table.NCase, check.Equals, 5)
	c.Check(table.NControl, check.Equals, 5)
	c.Check(len(table.Rows), check.Equals, 100)

	sig := table.Significant(DefaultThresholds())
	got := map[string]bool{}
	for _, row := range sig {
		got[row.Gene] = true
		c.Check(row.Direction, check.Equals, "up")
	}
	for i := range shifts {
		c.Check(got[fmt.Sprintf("shift%d", i)], check.Equals, true, check.Commentf("shift%d missing", i))
	}
	// false-positive check: no zero-shift gene may pass
	for g := range got {
		c.Check(g[:5], check.Equals, "shift")
	}

	// the male stratum has no planted shift at all
	table, err = DifferentialExpression(ae, SexMale)
	c.Assert(err, check.IsNil)
	c.Check(len(table.Significant(DefaultThresholds())), check.Equals, 0)
}

func (s *degSuite) TestIdempotence(c *check.C) {
	ae := syntheticStudy([]float64{1.5, 2}, 20, SexFemale)
	t1, err := DifferentialExpression(ae, SexFemale)
	c.Assert(err, check.IsNil)
	t2, err := DifferentialExpression(ae, SexFemale)
	c.Assert(err, check.IsNil)
	c.Check(reflect.DeepEqual(t1, t2), check.Equals, true)
}

func (s *degSuite) TestThresholdMonotonicity(c *check.C) {
	ae := syntheticStudy([]float64{0.3, 0.6, 0.9, 1.2, 1.5, 1.8}, 30, SexFemale)
	table, err := DifferentialExpression(ae, SexFemale)
	c.Assert(err, check.IsNil)

	prev := math.MaxInt32
	for _, lfc := range []float64{0, 0.25, 0.5, 1, 2, 5} {
		n := len(table.Significant(DEGThresholds{Log2FC: lfc, AdjP: 0.05}))
		c.Check(n <= prev, check.Equals, true, check.Commentf("lfc=%g: %d > %d", lfc, n, prev))
		prev = n
	}
	prev = -1
	for _, adjp := range []float64{1e-10, 1e-4, 0.01, 0.05, 0.5, 1} {
		n := len(table.Significant(DEGThresholds{Log2FC: 0.5, AdjP: adjp}))
		c.Check(n >= prev, check.Equals, true, check.Commentf("adjp=%g: %d < %d", adjp, n, prev))
		prev = n
	}
}

func (s *degSuite) TestStrictCutoffs(c *check.C) {
	ae := syntheticStudy([]float64{2}, 10, SexFemale)
	table, err := DifferentialExpression(ae, SexFemale)
	c.Assert(err, check.IsNil)
	// |lfc| must be strictly above the cutoff
	c.Check(len(table.Significant(DEGThresholds{Log2FC: 2.01, AdjP: 0.05})), check.Equals, 0)
	c.Check(len(table.Significant(DEGThresholds{Log2FC: 1.99, AdjP: 0.05})), check.Equals, 1)
}

func (s *degSuite) TestInsufficientData(c *check.C) {
	ae := syntheticStudy([]float64{1}, 5, SexFemale)
	_, err := DifferentialExpression(ae, "unknown")
	c.Check(err, check.ErrorMatches, `insufficient data.*`)

	// single-status stratum
	for i := range ae.Status {
		if ae.Sex[i] == SexMale {
			ae.Status[i] = StatusControl
		}
	}
	_, err = DifferentialExpression(ae, SexMale)
	c.Check(err, check.ErrorMatches, `insufficient data.*need both groups`)
}

func (s *degSuite) TestDeterministicOrder(c *check.C) {
	ae := syntheticStudy([]float64{2.5, 1.5, 2}, 10, SexFemale)
	table, err := DifferentialExpression(ae, SexFemale)
	c.Assert(err, check.IsNil)
	// larger planted shifts give smaller adjusted p, so the shifted
	// genes come first, strongest shift on top
	c.Check(table.Rows[0].Gene, check.Equals, "shift0")
	c.Check(table.Rows[1].Gene, check.Equals, "shift2")
	c.Check(table.Rows[2].Gene, check.Equals, "shift1")
}
