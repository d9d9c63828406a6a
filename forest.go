// Copyright (C) The Strata Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package strata

import (
	randomforest "github.com/malaschitz/randomForest"
	"golang.org/x/exp/rand"
)

// featureScorer assigns an importance score to each column of a
// sample-major matrix with a binary outcome. Implementations must be
// deterministic for a fixed seed.
type featureScorer interface {
	Importance(x [][]float64, y []int) []float64
}

// cvScorer estimates classification accuracy by k-fold
// cross-validation.
type cvScorer interface {
	Accuracy(x [][]float64, y []int, folds int) float64
}

// forestScorer scores features by permutation importance of a random
// forest: train on a shuffled split, then measure the held-out
// accuracy drop when one column is permuted.
type forestScorer struct {
	trees int
	rnd   *rand.Rand
}

func newForestScorer(trees int, seed uint64) *forestScorer {
	if trees <= 0 {
		trees = 500
	}
	return &forestScorer{trees: trees, rnd: rand.New(rand.NewSource(seed))}
}

func trainForest(x [][]float64, y []int, trees int) *randomforest.Forest {
	forest := &randomforest.Forest{}
	forest.Data = randomforest.ForestData{X: x, Class: y}
	forest.Train(trees)
	return forest
}

func predict(forest *randomforest.Forest, row []float64) int {
	votes := forest.Vote(row)
	best := 0
	for i, v := range votes {
		if v > votes[best] {
			best = i
		}
	}
	return best
}

func accuracy(forest *randomforest.Forest, x [][]float64, y []int) float64 {
	if len(x) == 0 {
		return 0
	}
	hits := 0
	for i, row := range x {
		if predict(forest, row) == y[i] {
			hits++
		}
	}
	return float64(hits) / float64(len(x))
}

func (fs *forestScorer) Importance(x [][]float64, y []int) []float64 {
	n := len(x)
	p := len(x[0])
	perm := fs.rnd.Perm(n)
	ntest := n / 3
	if ntest < 2 {
		ntest = 2
	}
	var trainX, testX [][]float64
	var trainY, testY []int
	for i, j := range perm {
		if i < ntest {
			testX = append(testX, x[j])
			testY = append(testY, y[j])
		} else {
			trainX = append(trainX, x[j])
			trainY = append(trainY, y[j])
		}
	}
	forest := trainForest(trainX, trainY, fs.trees)
	base := accuracy(forest, testX, testY)
	imp := make([]float64, p)
	scratch := make([]float64, len(testX))
	for col := 0; col < p; col++ {
		for i, row := range testX {
			scratch[i] = row[col]
		}
		shuffled := append([]float64(nil), scratch...)
		fs.rnd.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})
		for i, row := range testX {
			row[col] = shuffled[i]
		}
		imp[col] = base - accuracy(forest, testX, testY)
		for i, row := range testX {
			row[col] = scratch[i]
		}
	}
	return imp
}

func (fs *forestScorer) Accuracy(x [][]float64, y []int, folds int) float64 {
	n := len(x)
	if folds < 2 {
		folds = 2
	}
	if folds > n {
		folds = n
	}
	perm := fs.rnd.Perm(n)
	hits := 0
	for fold := 0; fold < folds; fold++ {
		var trainX, testX [][]float64
		var trainY, testY []int
		for i, j := range perm {
			if i%folds == fold {
				testX = append(testX, x[j])
				testY = append(testY, y[j])
			} else {
				trainX = append(trainX, x[j])
				trainY = append(trainY, y[j])
			}
		}
		if len(testX) == 0 || !bothClasses(trainY) {
			continue
		}
		forest := trainForest(trainX, trainY, fs.trees)
		for i, row := range testX {
			if predict(forest, row) == testY[i] {
				hits++
			}
		}
	}
	return float64(hits) / float64(n)
}

func bothClasses(y []int) bool {
	var zero, one bool
	for _, v := range y {
		if v == 0 {
			zero = true
		} else {
			one = true
		}
	}
	return zero && one
}
