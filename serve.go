// Copyright (C) The Strata Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package strata

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	_ "net/http/pprof"
	"strconv"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"gonum.org/v1/plot/vg"
)

// servecmd exposes the analysis pipeline as a per-session HTTP JSON
// API: upload the two tables into a session, then fetch derived
// results, which are cached and recomputed only when an upstream
// input changes.
type servecmd struct {
	mtx      sync.RWMutex
	sessions map[string]*Session

	metricRequests *prometheus.CounterVec
	metricAnalyses *prometheus.CounterVec
}

func (cmd *servecmd) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var err error
	defer func() {
		if err != nil {
			fmt.Fprintf(stderr, "%s\n", err)
		}
	}()
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	listen := flags.String("listen", ":9290", "listen `address`")
	pprof := flags.String("pprof", "", "serve Go profile data at `[addr]:port`")
	loglevel := flags.String("loglevel", "info", "logging threshold (trace, debug, info, warn, error, fatal, or panic)")
	err = flags.Parse(args)
	if err == flag.ErrHelp {
		err = nil
		return 0
	} else if err != nil {
		return 2
	}
	lvl, err := log.ParseLevel(*loglevel)
	if err != nil {
		return 2
	}
	log.SetLevel(lvl)
	if *pprof != "" {
		go func() {
			log.Println(http.ListenAndServe(*pprof, nil))
		}()
	}

	log.Infof("listening on %s", *listen)
	err = http.ListenAndServe(*listen, cmd.makeMux())
	if err != nil {
		return 1
	}
	return 0
}

func (cmd *servecmd) makeMux() *http.ServeMux {
	cmd.sessions = map[string]*Session{}
	reg := prometheus.NewRegistry()
	cmd.metricRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "strata_requests_total",
		Help: "HTTP requests by handler and status code.",
	}, []string{"handler", "code"})
	cmd.metricAnalyses = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "strata_analyses_total",
		Help: "Analysis computations served, by kind.",
	}, []string{"kind"})
	reg.MustRegister(cmd.metricRequests, cmd.metricAnalyses)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/sessions", cmd.handleCreate)
	mux.HandleFunc("/sessions/", cmd.handleSession)
	return mux
}

func (cmd *servecmd) handleCreate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		cmd.fail(w, "sessions", http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		return
	}
	buf := make([]byte, 16)
	rand.Read(buf)
	id := hex.EncodeToString(buf)
	cmd.mtx.Lock()
	cmd.sessions[id] = NewSession()
	cmd.mtx.Unlock()
	cmd.ok(w, "sessions", map[string]string{"id": id})
}

func (cmd *servecmd) session(id string) *Session {
	cmd.mtx.RLock()
	defer cmd.mtx.RUnlock()
	return cmd.sessions[id]
}

func (cmd *servecmd) handleSession(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	// sessions/{id}/{resource}
	if len(parts) != 3 {
		cmd.fail(w, "session", http.StatusNotFound, fmt.Errorf("not found: %s", r.URL.Path))
		return
	}
	session := cmd.session(parts[1])
	if session == nil {
		cmd.fail(w, "session", http.StatusNotFound, fmt.Errorf("no such session %q", parts[1]))
		return
	}
	resource := parts[2]
	q := r.URL.Query()
	sex := q.Get("sex")
	if sex == "" {
		sex = SexFemale
	}
	degsOnly := q.Get("degs-only") == "true"

	switch resource {
	case "expression":
		if r.Method != http.MethodPut {
			cmd.fail(w, resource, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
			return
		}
		opts := DefaultExpressionOptions()
		if v := q.Get("min-variance"); v != "" {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				opts.MinVariance = f
			}
		}
		if q.Get("no-log2") == "true" {
			opts.Log2Transform = false
		}
		em, err := LoadExpression(r.Body, opts)
		if err != nil {
			cmd.fail(w, resource, http.StatusUnprocessableEntity, err)
			return
		}
		session.SetExpression(em)
		cmd.ok(w, resource, map[string]int{"genes": len(em.Genes), "samples": len(em.Samples)})
	case "phenotype":
		if r.Method != http.MethodPut {
			cmd.fail(w, resource, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
			return
		}
		pt, err := LoadPhenotype(r.Body)
		if err != nil {
			cmd.fail(w, resource, http.StatusUnprocessableEntity, err)
			return
		}
		session.SetPhenotype(pt)
		cmd.ok(w, resource, map[string]int{"samples": len(pt.Samples)})
	case "params":
		switch r.Method {
		case http.MethodGet:
			cmd.ok(w, resource, session.Params())
		case http.MethodPut:
			params := session.Params()
			if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
				cmd.fail(w, resource, http.StatusBadRequest, err)
				return
			}
			session.SetParams(params)
			cmd.ok(w, resource, params)
		default:
			cmd.fail(w, resource, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		}
	case "deg":
		table, err := session.DEG(sex)
		if err != nil {
			cmd.fail(w, resource, http.StatusUnprocessableEntity, err)
			return
		}
		cmd.metricAnalyses.WithLabelValues("deg").Inc()
		th := session.Params().Thresholds
		cmd.ok(w, resource, map[string]interface{}{
			"sex":         table.Sex,
			"nCase":       table.NCase,
			"nControl":    table.NControl,
			"significant": table.Significant(th),
		})
	case "summary":
		rows, err := session.Summary()
		if err != nil {
			cmd.fail(w, resource, http.StatusUnprocessableEntity, err)
			return
		}
		cmd.metricAnalyses.WithLabelValues("summary").Inc()
		cmd.ok(w, resource, rows)
	case "volcano":
		table, err := session.DEG(sex)
		if err != nil {
			cmd.fail(w, resource, http.StatusUnprocessableEntity, err)
			return
		}
		p, err := VolcanoPlot(table, session.Params().Thresholds)
		if err != nil {
			cmd.fail(w, resource, http.StatusInternalServerError, err)
			return
		}
		wt, err := p.WriterTo(6*vg.Inch, 5*vg.Inch, "png")
		if err != nil {
			cmd.fail(w, resource, http.StatusInternalServerError, err)
			return
		}
		cmd.metricAnalyses.WithLabelValues("volcano").Inc()
		cmd.metricRequests.WithLabelValues(resource, "200").Inc()
		w.Header().Set("Content-Type", "image/png")
		wt.WriteTo(w)
	case "stability":
		result, err := session.Stability(sex, degsOnly)
		if err != nil {
			cmd.fail(w, resource, http.StatusUnprocessableEntity, err)
			return
		}
		cmd.metricAnalyses.WithLabelValues("stability").Inc()
		cmd.ok(w, resource, result)
	case "elastic-net":
		result, err := session.ElasticNet(sex, degsOnly)
		if err != nil {
			cmd.fail(w, resource, http.StatusUnprocessableEntity, err)
			return
		}
		cmd.metricAnalyses.WithLabelValues("elastic-net").Inc()
		cmd.ok(w, resource, result)
	case "rfe":
		result, err := session.RFE(sex, degsOnly)
		if err != nil {
			cmd.fail(w, resource, http.StatusUnprocessableEntity, err)
			return
		}
		cmd.metricAnalyses.WithLabelValues("rfe").Inc()
		cmd.ok(w, resource, result)
	default:
		cmd.fail(w, "session", http.StatusNotFound, fmt.Errorf("unknown resource %q", resource))
	}
}

func (cmd *servecmd) ok(w http.ResponseWriter, handler string, body interface{}) {
	cmd.metricRequests.WithLabelValues(handler, "200").Inc()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(body)
}

func (cmd *servecmd) fail(w http.ResponseWriter, handler string, code int, err error) {
	cmd.metricRequests.WithLabelValues(handler, strconv.Itoa(code)).Inc()
	log.WithField("handler", handler).Warn(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
