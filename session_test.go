// Copyright (C) The Strata Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package strata

import (
	"fmt"

	"gopkg.in/check.v1"
)

type sessionSuite struct{}

var _ = check.Suite(&sessionSuite{})

// sessionInputs converts a synthetic annotated study back into the
// two upload tables.
func sessionInputs(ae *AnnotatedExpression) (*ExpressionMatrix, *PhenotypeTable) {
	em := &ExpressionMatrix{
		Genes:   ae.Genes,
		Samples: ae.Samples,
		Values:  ae.Values,
	}
	pt := &PhenotypeTable{
		Samples: ae.Samples,
		Sex:     map[string]string{},
		Status:  map[string]string{},
	}
	for i, id := range ae.Samples {
		pt.Sex[id] = ae.Sex[i]
		pt.Status[id] = ae.Status[i]
	}
	return em, pt
}

func (s *sessionSuite) TestNeedsBothUploads(c *check.C) {
	sess := NewSession()
	_, err := sess.Matched()
	c.Check(err, check.ErrorMatches, `need both expression and phenotype uploads`)
	em, pt := sessionInputs(syntheticStudy([]float64{1}, 5, SexFemale))
	sess.SetExpression(em)
	_, err = sess.DEG(SexFemale)
	c.Check(err, check.ErrorMatches, `need both expression and phenotype uploads`)
	sess.SetPhenotype(pt)
	_, err = sess.DEG(SexFemale)
	c.Check(err, check.IsNil)
}

func (s *sessionSuite) TestMemoizedUntilInputChanges(c *check.C) {
	sess := NewSession()
	em, pt := sessionInputs(syntheticStudy([]float64{1.5}, 10, SexFemale))
	sess.SetExpression(em)
	sess.SetPhenotype(pt)

	m1, err := sess.Matched()
	c.Assert(err, check.IsNil)
	m2, err := sess.Matched()
	c.Assert(err, check.IsNil)
	c.Check(m1 == m2, check.Equals, true) // same pointer, not recomputed

	d1, err := sess.DEG(SexFemale)
	c.Assert(err, check.IsNil)
	d2, err := sess.DEG(SexFemale)
	c.Assert(err, check.IsNil)
	c.Check(d1 == d2, check.Equals, true)

	// a fresh expression upload invalidates everything
	sess.SetExpression(em)
	m3, err := sess.Matched()
	c.Assert(err, check.IsNil)
	c.Check(m1 == m3, check.Equals, false)
	d3, err := sess.DEG(SexFemale)
	c.Assert(err, check.IsNil)
	c.Check(d1 == d3, check.Equals, false)
}

func (s *sessionSuite) TestParamChangeKeepsFits(c *check.C) {
	sess := NewSession()
	em, pt := sessionInputs(syntheticStudy([]float64{1.5, 2}, 10, SexFemale))
	sess.SetExpression(em)
	sess.SetPhenotype(pt)

	d1, err := sess.DEG(SexFemale)
	c.Assert(err, check.IsNil)
	f1, err := sess.FeatureSet(SexFemale, false)
	c.Assert(err, check.IsNil)

	p := sess.Params()
	p.Thresholds.AdjP = 0.01
	sess.SetParams(p)

	// per-gene fits depend only on the uploads
	d2, err := sess.DEG(SexFemale)
	c.Assert(err, check.IsNil)
	c.Check(d1 == d2, check.Equals, true)
	// parameter-dependent results are rebuilt
	f2, err := sess.FeatureSet(SexFemale, false)
	c.Assert(err, check.IsNil)
	c.Check(f1 == f2, check.Equals, false)
}

func (s *sessionSuite) TestErrorsAreCached(c *check.C) {
	sess := NewSession()
	ae := syntheticStudy([]float64{1}, 5, SexFemale)
	em, pt := sessionInputs(ae)
	// phenotype covering a disjoint sample set
	bad := &PhenotypeTable{Sex: map[string]string{}, Status: map[string]string{}}
	for i := range pt.Samples {
		id := fmt.Sprintf("other%d", i)
		bad.Samples = append(bad.Samples, id)
		bad.Sex[id] = SexFemale
		bad.Status[id] = StatusRA
	}
	sess.SetExpression(em)
	sess.SetPhenotype(bad)
	_, err1 := sess.Matched()
	c.Assert(err1, check.NotNil)
	_, err2 := sess.Matched()
	c.Check(err1 == err2, check.Equals, true) // cached, not recomputed

	sess.SetPhenotype(pt)
	_, err := sess.Matched()
	c.Check(err, check.IsNil)
}

func (s *sessionSuite) TestSummaryRows(c *check.C) {
	sess := NewSession()
	em, pt := sessionInputs(syntheticStudy([]float64{2}, 10, SexFemale))
	sess.SetExpression(em)
	sess.SetPhenotype(pt)
	rows, err := sess.Summary()
	c.Assert(err, check.IsNil)
	c.Assert(len(rows), check.Equals, 8)
	c.Check(rows[0].Sex, check.Equals, SexFemale)
	c.Check(rows[4].Sex, check.Equals, SexMale)
	byMetric := map[string]map[string]int{SexFemale: {}, SexMale: {}}
	for _, row := range rows {
		byMetric[row.Sex][row.Metric] = row.Value
	}
	c.Check(byMetric[SexFemale]["samples"], check.Equals, 10)
	c.Check(byMetric[SexFemale]["cases"], check.Equals, 5)
	c.Check(byMetric[SexFemale]["controls"], check.Equals, 5)
	c.Check(byMetric[SexFemale]["significant genes"], check.Equals, 1)
	c.Check(byMetric[SexMale]["significant genes"], check.Equals, 0)
}
