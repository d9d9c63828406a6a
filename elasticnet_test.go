// Copyright (C) The Strata Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package strata

import (
	"gopkg.in/check.v1"
)

type elasticNetSuite struct{}

var _ = check.Suite(&elasticNetSuite{})

// regressionMatrix has one informative feature (elevated in cases),
// two deterministic noise features, and one constant feature.
func regressionMatrix() *FeatureMatrix {
	fm := &FeatureMatrix{
		Genes: []string{"NOISE1", "SIG", "NOISE2", "FLAT"},
	}
	for i := 0; i < 20; i++ {
		y := 0
		if i >= 10 {
			y = 1
		}
		jitter := float64(i%7)/10 - 0.3
		fm.Samples = append(fm.Samples, string(rune('a'+i)))
		fm.Outcome = append(fm.Outcome, y)
		fm.X = append(fm.X, []float64{
			float64(i % 5),
			2*float64(y) + jitter,
			float64((i * 3) % 7),
			1,
		})
	}
	return fm
}

func (s *elasticNetSuite) TestInformativeFeatureSelected(c *check.C) {
	fm := regressionMatrix()
	result, err := ElasticNetSelect(fm, 0.5, 20, 5, 1)
	c.Assert(err, check.IsNil)
	c.Check(result.Alpha, check.Equals, 0.5)
	c.Check(len(result.Lambdas), check.Equals, 20)
	c.Check(len(result.CVDeviance), check.Equals, 20)
	for i := 1; i < len(result.Lambdas); i++ {
		c.Check(result.Lambdas[i] < result.Lambdas[i-1], check.Equals, true)
	}
	c.Assert(len(result.Features) >= 1, check.Equals, true)
	c.Check(result.Features[0].Gene, check.Equals, "SIG")
	c.Check(result.Features[0].Coefficient > 0, check.Equals, true)
	for _, f := range result.Features {
		c.Check(f.Gene, check.Not(check.Equals), "FLAT")
	}
}

func (s *elasticNetSuite) TestDeterministicGivenSeed(c *check.C) {
	fm := regressionMatrix()
	r1, err := ElasticNetSelect(fm, 0.5, 10, 4, 3)
	c.Assert(err, check.IsNil)
	r2, err := ElasticNetSelect(fm, 0.5, 10, 4, 3)
	c.Assert(err, check.IsNil)
	c.Check(r1, check.DeepEquals, r2)
}

func (s *elasticNetSuite) TestBadMixingParameter(c *check.C) {
	fm := regressionMatrix()
	_, err := ElasticNetSelect(fm, 1.5, 10, 4, 1)
	c.Check(err, check.ErrorMatches, `elastic-net mixing parameter 1\.5 out of range.*`)
	_, err = ElasticNetSelect(fm, -0.1, 10, 4, 1)
	c.Check(err, check.ErrorMatches, `elastic-net mixing parameter -0\.1 out of range.*`)
}

func (s *elasticNetSuite) TestOneClassRejected(c *check.C) {
	fm := regressionMatrix()
	for i := range fm.Outcome {
		fm.Outcome[i] = 0
	}
	_, err := ElasticNetSelect(fm, 0.5, 10, 4, 1)
	c.Check(err, check.ErrorMatches, `insufficient data: all modeling samples are in one outcome group`)
}
