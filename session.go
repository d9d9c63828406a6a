// Copyright (C) The Strata Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package strata

import (
	"errors"
	"sync"
)

// SessionParams are the user-adjustable analysis parameters. A
// change invalidates parameter-dependent results (feature sets, ML
// workflows, summary counts) but not the matched tables or the
// per-gene differential-expression fits, which depend only on the
// uploaded data.
type SessionParams struct {
	Thresholds DEGThresholds `json:"thresholds"`
	Alpha      float64       `json:"alpha"`
	Iterations int           `json:"iterations"`
	Trees      int           `json:"trees"`
	Folds      int           `json:"folds"`
	NLambda    int           `json:"nlambda"`
	Sizes      []int         `json:"sizes"`
	Seed       uint64        `json:"seed"`
}

func DefaultSessionParams() SessionParams {
	return SessionParams{
		Thresholds: DefaultThresholds(),
		Alpha:      0.5,
		Iterations: 50,
		Trees:      500,
		Folds:      5,
		NLambda:    20,
		Sizes:      []int{5, 10, 20, 50},
		Seed:       1,
	}
}

// memo caches one derived value, stamped with the generation of the
// inputs it was computed from. Errors are cached the same way:
// re-uploading corrected input is the only recovery path.
type memo[T any] struct {
	gen uint64
	ok  bool
	val T
	err error
}

func (m *memo[T]) get(gen uint64, compute func() (T, error)) (T, error) {
	if !m.ok || m.gen != gen {
		m.val, m.err = compute()
		m.gen, m.ok = gen, true
	}
	return m.val, m.err
}

type workflowKey struct {
	sex      string
	degsOnly bool
}

// Session owns one user's uploaded tables and every result derived
// from them, recomputed on demand and exactly when an upstream input
// changed. All methods serialize on one mutex: one worker per
// session.
type Session struct {
	mtx      sync.Mutex
	inputGen uint64
	paramGen uint64
	expr     *ExpressionMatrix
	pheno    *PhenotypeTable
	params   SessionParams

	matched   memo[*AnnotatedExpression]
	deg       map[string]*memo[*DEGTable]
	features  map[workflowKey]*memo[*FeatureMatrix]
	stability map[workflowKey]*memo[*StabilityResult]
	elastic   map[workflowKey]*memo[*ElasticNetResult]
	rfe       map[workflowKey]*memo[*RFEResult]
	summary   memo[[]SummaryRow]
}

func NewSession() *Session {
	return &Session{
		params:    DefaultSessionParams(),
		deg:       map[string]*memo[*DEGTable]{},
		features:  map[workflowKey]*memo[*FeatureMatrix]{},
		stability: map[workflowKey]*memo[*StabilityResult]{},
		elastic:   map[workflowKey]*memo[*ElasticNetResult]{},
		rfe:       map[workflowKey]*memo[*RFEResult]{},
	}
}

// derivedGen keys results that depend on inputs and parameters both.
func (s *Session) derivedGen() uint64 {
	return s.inputGen<<20 | s.paramGen&(1<<20-1)
}

func (s *Session) SetExpression(em *ExpressionMatrix) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.expr = em
	s.inputGen++
}

func (s *Session) SetPhenotype(pt *PhenotypeTable) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.pheno = pt
	s.inputGen++
}

func (s *Session) SetParams(p SessionParams) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.params = p
	s.paramGen++
}

func (s *Session) Params() SessionParams {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.params
}

func (s *Session) matchedLocked() (*AnnotatedExpression, error) {
	return s.matched.get(s.inputGen, func() (*AnnotatedExpression, error) {
		if s.expr == nil || s.pheno == nil {
			return nil, errors.New("need both expression and phenotype uploads")
		}
		return MatchSamples(s.expr, s.pheno)
	})
}

func (s *Session) Matched() (*AnnotatedExpression, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.matchedLocked()
}

func (s *Session) degLocked(sex string) (*DEGTable, error) {
	m := s.deg[sex]
	if m == nil {
		m = &memo[*DEGTable]{}
		s.deg[sex] = m
	}
	return m.get(s.inputGen, func() (*DEGTable, error) {
		ae, err := s.matchedLocked()
		if err != nil {
			return nil, err
		}
		return DifferentialExpression(ae, sex)
	})
}

func (s *Session) DEG(sex string) (*DEGTable, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.degLocked(sex)
}

func (s *Session) featuresLocked(key workflowKey) (*FeatureMatrix, error) {
	m := s.features[key]
	if m == nil {
		m = &memo[*FeatureMatrix]{}
		s.features[key] = m
	}
	return m.get(s.derivedGen(), func() (*FeatureMatrix, error) {
		ae, err := s.matchedLocked()
		if err != nil {
			return nil, err
		}
		var allow map[string]bool
		if key.degsOnly {
			table, err := s.degLocked(key.sex)
			if err != nil {
				return nil, err
			}
			allow = table.GeneSet(s.params.Thresholds)
			if len(allow) == 0 {
				return nil, errors.New("no significant genes at the current thresholds")
			}
		}
		return BuildFeatureMatrix(ae, key.sex, allow)
	})
}

func (s *Session) FeatureSet(sex string, degsOnly bool) (*FeatureMatrix, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.featuresLocked(workflowKey{sex, degsOnly})
}

func (s *Session) Stability(sex string, degsOnly bool) (*StabilityResult, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	key := workflowKey{sex, degsOnly}
	m := s.stability[key]
	if m == nil {
		m = &memo[*StabilityResult]{}
		s.stability[key] = m
	}
	return m.get(s.derivedGen(), func() (*StabilityResult, error) {
		fm, err := s.featuresLocked(key)
		if err != nil {
			return nil, err
		}
		return StabilitySelect(fm, newForestScorer(s.params.Trees, s.params.Seed), s.params.Iterations, 0.05, s.params.Seed)
	})
}

func (s *Session) ElasticNet(sex string, degsOnly bool) (*ElasticNetResult, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	key := workflowKey{sex, degsOnly}
	m := s.elastic[key]
	if m == nil {
		m = &memo[*ElasticNetResult]{}
		s.elastic[key] = m
	}
	return m.get(s.derivedGen(), func() (*ElasticNetResult, error) {
		fm, err := s.featuresLocked(key)
		if err != nil {
			return nil, err
		}
		return ElasticNetSelect(fm, s.params.Alpha, s.params.NLambda, s.params.Folds, s.params.Seed)
	})
}

func (s *Session) RFE(sex string, degsOnly bool) (*RFEResult, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	key := workflowKey{sex, degsOnly}
	m := s.rfe[key]
	if m == nil {
		m = &memo[*RFEResult]{}
		s.rfe[key] = m
	}
	return m.get(s.derivedGen(), func() (*RFEResult, error) {
		fm, err := s.featuresLocked(key)
		if err != nil {
			return nil, err
		}
		scorer := newForestScorer(s.params.Trees, s.params.Seed)
		return RecursiveElimination(fm, scorer, scorer, s.params.Sizes, s.params.Folds)
	})
}

func (s *Session) Summary() ([]SummaryRow, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.summary.get(s.derivedGen(), func() ([]SummaryRow, error) {
		ae, err := s.matchedLocked()
		if err != nil {
			return nil, err
		}
		tables := map[string]*DEGTable{}
		for _, sex := range []string{SexFemale, SexMale} {
			if table, err := s.degLocked(sex); err == nil {
				tables[sex] = table
			}
		}
		return Summarize(ae, tables, s.params.Thresholds), nil
	})
}
