// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package service

import (
	"github.com/gogama/corehttp"
	"github.com/gogama/corehttp/class"
	"github.com/gogama/corehttp/request"
)

// Trace levels of the http.trace setting.
const (
	TraceOff      = 0
	TraceFailures = 1
	TraceAttempts = 2
)

func (s *Service) logHandlers(c class.Class) *corehttp.HandlerGroup {
	logger := s.logger.With("class", c.String())
	g := &corehttp.HandlerGroup{}
	g.PushBack(corehttp.AfterAttempt, corehttp.HandlerFunc(func(_ corehttp.Event, e *request.Execution) {
		if s.trace.Load() < TraceAttempts {
			return
		}
		logger.Debug("attempt done",
			"plan", e.Plan.Label(),
			"attempt", e.Attempt,
			"status", e.StatusCode(),
			"err", e.Err)
	}))
	g.PushBack(corehttp.BeforeRetryWait, corehttp.HandlerFunc(func(_ corehttp.Event, e *request.Execution) {
		if s.trace.Load() < TraceFailures {
			return
		}
		logger.Debug("retrying",
			"plan", e.Plan.Label(),
			"attempt", e.Attempt,
			"status", e.StatusReported,
			"wait", e.Wait)
	}))
	g.PushBack(corehttp.AfterExecutionEnd, corehttp.HandlerFunc(func(_ corehttp.Event, e *request.Execution) {
		if e.Err == nil {
			return
		}
		logger.Warn("request failed",
			"plan", e.Plan.Label(),
			"attempts", e.Attempt+1,
			"duration", e.Duration(),
			"err", e.Err)
	}))
	return g
}
