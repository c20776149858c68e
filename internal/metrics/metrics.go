// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package metrics provides Prometheus instrumentation for the dispatch
// service. Metrics live on a private registry and are labelled by
// concurrency class.
package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gogama/corehttp"
	"github.com/gogama/corehttp/class"
	"github.com/gogama/corehttp/request"
	"github.com/gogama/corehttp/transient"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/expfmt"
)

const namespace = "corehttp"

// Terminal reasons recorded by the executions counter.
const (
	ReasonSuccess          = "success"
	ReasonNotRetryable     = "not_retryable"
	ReasonRetriesExhausted = "retries_exhausted"
	ReasonPlanTimeout      = "plan_timeout"
	ReasonCanceled         = "canceled"
	ReasonOther            = "other"
)

// Metrics holds the collectors of one service instance.
type Metrics struct {
	registry *prometheus.Registry

	attempts   *prometheus.CounterVec
	retries    *prometheus.CounterVec
	executions *prometheus.CounterVec
	retryWait  *prometheus.HistogramVec
	duration   *prometheus.HistogramVec
	inFlight   *prometheus.GaugeVec
	limit      *prometheus.GaugeVec
	pool       *prometheus.GaugeVec
}

// New creates the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		attempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attempts_total",
			Help:      "Request attempts by class and outcome.",
		}, []string{"class", "outcome"}),
		retries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retries_total",
			Help:      "Retries scheduled by the retry policy.",
		}, []string{"class"}),
		executions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "executions_total",
			Help:      "Finished request plan executions by class and terminal reason.",
		}, []string{"class", "reason"}),
		retryWait: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retry_wait_seconds",
			Help:      "Delay chosen before each retry.",
			Buckets:   []float64{0.01, 0.1, 0.25, 0.5, 1, 2, 4, 8, 16, 32, 64},
		}, []string{"class"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "execution_duration_seconds",
			Help:      "Duration of request plan executions including retries.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"class"}),
		inFlight: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "in_flight_attempts",
			Help:      "Attempts holding a connection slot.",
		}, []string{"class"}),
		limit: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connection_limit",
			Help:      "Current connection limit of each class.",
		}, []string{"class"}),
		pool: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "coprocedures",
			Help:      "Coprocedures by pool and state.",
		}, []string{"pool", "state"}),
	}
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// WriteText writes every metric in the text exposition format.
func (m *Metrics) WriteText(w io.Writer) error {
	mfs, err := m.registry.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range mfs {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}

// SetLimit records the connection limit of c.
func (m *Metrics) SetLimit(c class.Class, n uint32) {
	m.limit.WithLabelValues(c.String()).Set(float64(n))
}

// AddInFlight adjusts the in-flight attempt gauge of c by delta.
func (m *Metrics) AddInFlight(c class.Class, delta int) {
	m.inFlight.WithLabelValues(c.String()).Add(float64(delta))
}

// SetPool records the active and pending coprocedure counts of a pool.
func (m *Metrics) SetPool(pool string, active, pending int) {
	m.pool.WithLabelValues(pool, "active").Set(float64(active))
	m.pool.WithLabelValues(pool, "pending").Set(float64(pending))
}

// Handlers returns event handlers that record the executions of a
// client serving class c.
func (m *Metrics) Handlers(c class.Class) *corehttp.HandlerGroup {
	name := c.String()
	g := &corehttp.HandlerGroup{}
	g.PushBack(corehttp.AfterAttempt, corehttp.HandlerFunc(func(_ corehttp.Event, e *request.Execution) {
		m.attempts.WithLabelValues(name, Outcome(e)).Inc()
	}))
	g.PushBack(corehttp.BeforeRetryWait, corehttp.HandlerFunc(func(_ corehttp.Event, e *request.Execution) {
		m.retries.WithLabelValues(name).Inc()
		m.retryWait.WithLabelValues(name).Observe(e.Wait.Seconds())
	}))
	g.PushBack(corehttp.AfterExecutionEnd, corehttp.HandlerFunc(func(_ corehttp.Event, e *request.Execution) {
		m.executions.WithLabelValues(name, Reason(e.Err)).Inc()
		m.duration.WithLabelValues(name).Observe(e.Duration().Seconds())
	}))
	return g
}

// Outcome labels the most recent attempt of e: "ok" for a 2xx
// response, "status" for any other response, or the transience
// category of the error that ended it.
func Outcome(e *request.Execution) string {
	if e.Err != nil {
		return transient.Categorize(e.Err).String()
	}
	if e.Succeeded() {
		return "ok"
	}
	return "status"
}

// Reason labels the terminal error of an execution.
func Reason(err error) string {
	switch {
	case err == nil:
		return ReasonSuccess
	case errors.Is(err, corehttp.ErrNotRetryable):
		return ReasonNotRetryable
	case errors.Is(err, corehttp.ErrRetriesExhausted):
		return ReasonRetriesExhausted
	case errors.Is(err, context.DeadlineExceeded):
		return ReasonPlanTimeout
	case errors.Is(err, context.Canceled):
		return ReasonCanceled
	default:
		return ReasonOther
	}
}
