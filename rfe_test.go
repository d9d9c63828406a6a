// Copyright (C) The Strata Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package strata

import (
	"gopkg.in/check.v1"
)

type rfeSuite struct{}

var _ = check.Suite(&rfeSuite{})

// separatorEval scores a subset 1.0 when it still contains a column
// identical to the outcome, 0.5 otherwise.
type separatorEval struct{}

func (separatorEval) Accuracy(x [][]float64, y []int, folds int) float64 {
	for j := range x[0] {
		match := true
		for i := range x {
			if x[i][j] != float64(y[i]) {
				match = false
				break
			}
		}
		if match {
			return 1
		}
	}
	return 0.5
}

// sizeEval scores a subset purely by how many columns it has.
type sizeEval map[int]float64

func (e sizeEval) Accuracy(x [][]float64, y []int, folds int) float64 {
	return e[len(x[0])]
}

func rfeMatrix() *FeatureMatrix {
	fm := &FeatureMatrix{
		Genes: []string{"NOISE1", "NOISE2", "SEP", "NOISE3"},
	}
	for i := 0; i < 10; i++ {
		y := 0
		if i >= 5 {
			y = 1
		}
		fm.Samples = append(fm.Samples, string(rune('a'+i)))
		fm.Outcome = append(fm.Outcome, y)
		fm.X = append(fm.X, []float64{
			float64(i%5) * 0.1,
			float64(i%2) * 0.3,
			float64(y),
			0.7,
		})
	}
	return fm
}

func (s *rfeSuite) TestTiesPreferSmallerSubset(c *check.C) {
	fm := rfeMatrix()
	// the separator ranks first at every cut, so every subset keeps it
	// and all accuracies tie at 1.0
	result, err := RecursiveElimination(fm, corrScorer{}, separatorEval{}, []int{1, 2, 4}, 3)
	c.Assert(err, check.IsNil)
	c.Check(result.Sizes, check.DeepEquals, []int{4, 2, 1})
	c.Check(result.Accuracy, check.DeepEquals, []float64{1, 1, 1})
	c.Check(result.BestSize, check.Equals, 1)
	c.Check(result.Features, check.DeepEquals, []string{"SEP"})
}

func (s *rfeSuite) TestBestSizeByAccuracy(c *check.C) {
	fm := rfeMatrix()
	eval := sizeEval{4: 0.6, 3: 0.9, 2: 0.7, 1: 0.5}
	result, err := RecursiveElimination(fm, corrScorer{}, eval, []int{1, 2, 3, 4}, 3)
	c.Assert(err, check.IsNil)
	c.Check(result.Sizes, check.DeepEquals, []int{4, 3, 2, 1})
	c.Check(result.BestSize, check.Equals, 3)
	c.Check(len(result.Features), check.Equals, 3)
	found := false
	for _, g := range result.Features {
		if g == "SEP" {
			found = true
		}
	}
	c.Check(found, check.Equals, true)
}

func (s *rfeSuite) TestSizesClampedAndDeduplicated(c *check.C) {
	fm := rfeMatrix()
	result, err := RecursiveElimination(fm, corrScorer{}, separatorEval{}, []int{2, 2, 50, 0, -1, 3}, 3)
	c.Assert(err, check.IsNil)
	c.Check(result.Sizes, check.DeepEquals, []int{3, 2})

	_, err = RecursiveElimination(fm, corrScorer{}, separatorEval{}, []int{0, 99}, 3)
	c.Check(err, check.ErrorMatches, `no usable candidate sizes.*`)
}

func (s *rfeSuite) TestOneClassRejected(c *check.C) {
	fm := rfeMatrix()
	for i := range fm.Outcome {
		fm.Outcome[i] = 0
	}
	_, err := RecursiveElimination(fm, corrScorer{}, separatorEval{}, []int{2}, 3)
	c.Check(err, check.ErrorMatches, `insufficient data: all modeling samples are in one outcome group`)
}
