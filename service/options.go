// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package service

import (
	"log/slog"

	"github.com/gogama/corehttp"
	"github.com/gogama/corehttp/internal/metrics"
)

// An Option configures a Service.
type Option func(*options)

type options struct {
	logger   *slog.Logger
	metrics  *metrics.Metrics
	doer     corehttp.HTTPDoer
	handlers *corehttp.HandlerGroup
}

// WithLogger sets the logger. The default discards all records.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithMetrics sets the metrics collectors. The default is a fresh set
// on a private registry.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithHTTPDoer replaces the HTTP client built from the settings. The
// http settings ca_file and proxy are then ignored.
func WithHTTPDoer(d corehttp.HTTPDoer) Option {
	return func(o *options) {
		o.doer = d
	}
}

// WithHandlers adds event handlers to the client of every class, after
// the service's own handlers.
func WithHandlers(g *corehttp.HandlerGroup) Option {
	return func(o *options) {
		o.handlers = g
	}
}
