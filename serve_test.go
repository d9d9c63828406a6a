// Copyright (C) The Strata Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package strata

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"

	"gopkg.in/check.v1"
)

type serveSuite struct {
	server *httptest.Server
}

var _ = check.Suite(&serveSuite{})

func (s *serveSuite) SetUpTest(c *check.C) {
	s.server = httptest.NewServer((&servecmd{}).makeMux())
}

func (s *serveSuite) TearDownTest(c *check.C) {
	s.server.Close()
}

func (s *serveSuite) do(c *check.C, method, path string, body io.Reader) (int, []byte) {
	req, err := http.NewRequest(method, s.server.URL+path, body)
	c.Assert(err, check.IsNil)
	resp, err := http.DefaultClient.Do(req)
	c.Assert(err, check.IsNil)
	defer resp.Body.Close()
	buf, err := io.ReadAll(resp.Body)
	c.Assert(err, check.IsNil)
	return resp.StatusCode, buf
}

func (s *serveSuite) newSession(c *check.C) string {
	code, buf := s.do(c, "POST", "/sessions", nil)
	c.Assert(code, check.Equals, http.StatusOK)
	var created map[string]string
	c.Assert(json.Unmarshal(buf, &created), check.IsNil)
	c.Assert(created["id"], check.Not(check.Equals), "")
	return created["id"]
}

func (s *serveSuite) uploadStudy(c *check.C, id string) {
	dir := c.MkDir()
	exprFile, phenoFile := writeStudy(c, dir)
	expr, err := os.ReadFile(exprFile)
	c.Assert(err, check.IsNil)
	code, _ := s.do(c, "PUT", "/sessions/"+id+"/expression?no-log2=true", bytes.NewReader(expr))
	c.Assert(code, check.Equals, http.StatusOK)
	pheno, err := os.ReadFile(phenoFile)
	c.Assert(err, check.IsNil)
	code, _ = s.do(c, "PUT", "/sessions/"+id+"/phenotype", bytes.NewReader(pheno))
	c.Assert(code, check.Equals, http.StatusOK)
}

func (s *serveSuite) TestSessionLifecycle(c *check.C) {
	id := s.newSession(c)

	// analysis before any upload is rejected
	code, buf := s.do(c, "GET", "/sessions/"+id+"/deg", nil)
	c.Check(code, check.Equals, http.StatusUnprocessableEntity)
	c.Check(string(buf), check.Matches, `(?s).*need both expression and phenotype uploads.*`)

	s.uploadStudy(c, id)

	code, buf = s.do(c, "GET", "/sessions/"+id+"/deg?sex=female", nil)
	c.Assert(code, check.Equals, http.StatusOK)
	var deg struct {
		Sex         string
		NCase       int
		NControl    int
		Significant []DEGRow
	}
	c.Assert(json.Unmarshal(buf, &deg), check.IsNil)
	c.Check(deg.Sex, check.Equals, SexFemale)
	c.Check(deg.NCase, check.Equals, 5)
	c.Check(deg.NControl, check.Equals, 5)
	c.Check(len(deg.Significant), check.Equals, 10)

	code, buf = s.do(c, "GET", "/sessions/"+id+"/summary", nil)
	c.Assert(code, check.Equals, http.StatusOK)
	var rows []SummaryRow
	c.Assert(json.Unmarshal(buf, &rows), check.IsNil)
	c.Check(len(rows), check.Equals, 8)

	code, buf = s.do(c, "GET", "/sessions/"+id+"/volcano?sex=female", nil)
	c.Assert(code, check.Equals, http.StatusOK)
	c.Check(string(buf[1:4]), check.Equals, "PNG")
}

func (s *serveSuite) TestParamsRoundTrip(c *check.C) {
	id := s.newSession(c)
	code, buf := s.do(c, "GET", "/sessions/"+id+"/params", nil)
	c.Assert(code, check.Equals, http.StatusOK)
	var params SessionParams
	c.Assert(json.Unmarshal(buf, &params), check.IsNil)
	c.Check(params, check.DeepEquals, DefaultSessionParams())

	params.Thresholds.AdjP = 0.01
	params.Trees = 100
	body, err := json.Marshal(params)
	c.Assert(err, check.IsNil)
	code, _ = s.do(c, "PUT", "/sessions/"+id+"/params", bytes.NewReader(body))
	c.Assert(code, check.Equals, http.StatusOK)

	code, buf = s.do(c, "GET", "/sessions/"+id+"/params", nil)
	c.Assert(code, check.Equals, http.StatusOK)
	var got SessionParams
	c.Assert(json.Unmarshal(buf, &got), check.IsNil)
	c.Check(got, check.DeepEquals, params)
}

func (s *serveSuite) TestNotFound(c *check.C) {
	code, _ := s.do(c, "GET", "/sessions/nonesuch/deg", nil)
	c.Check(code, check.Equals, http.StatusNotFound)

	id := s.newSession(c)
	code, _ = s.do(c, "GET", "/sessions/"+id+"/nonesuch", nil)
	c.Check(code, check.Equals, http.StatusNotFound)

	code, _ = s.do(c, "GET", "/sessions/"+id+"/expression", nil)
	c.Check(code, check.Equals, http.StatusMethodNotAllowed)
}

func (s *serveSuite) TestBadUpload(c *check.C) {
	id := s.newSession(c)
	code, buf := s.do(c, "PUT", "/sessions/"+id+"/phenotype", strings.NewReader("Sample,Color\na,red\n"))
	c.Check(code, check.Equals, http.StatusUnprocessableEntity)
	c.Check(string(buf), check.Matches, `(?s).*no sex column.*`)
}

func (s *serveSuite) TestMetrics(c *check.C) {
	id := s.newSession(c)
	s.uploadStudy(c, id)
	code, _ := s.do(c, "GET", "/sessions/"+id+"/summary", nil)
	c.Assert(code, check.Equals, http.StatusOK)
	code, buf := s.do(c, "GET", "/metrics", nil)
	c.Assert(code, check.Equals, http.StatusOK)
	c.Check(string(buf), check.Matches, `(?s).*strata_analyses_total{kind="summary"} 1.*`)
	c.Check(string(buf), check.Matches, `(?s).*strata_requests_total.*`)
}
