// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package service runs one robust HTTP client per concurrency class
// over a shared transport.
//
// Each class has a connection limiter sized from the class table and
// the current controls, an optional request rate throttle, and its own
// retry tunables. RefreshSettings applies changed settings to a running
// service without disturbing requests in flight.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gogama/corehttp"
	"github.com/gogama/corehttp/class"
	"github.com/gogama/corehttp/internal/config"
	"github.com/gogama/corehttp/internal/logging"
	"github.com/gogama/corehttp/internal/metrics"
	"github.com/gogama/corehttp/request"
	"github.com/gogama/corehttp/retry"
	"github.com/gogama/corehttp/timeout"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"
)

// ErrStopped is returned by Do once Stop has been called.
var ErrStopped = errors.New("service: stopped")

// ErrUnknownClass is returned by Do for an invalid class.
var ErrUnknownClass = errors.New("service: unknown class")

// A Service dispatches request plans by concurrency class.
type Service struct {
	logger    *slog.Logger
	metrics   *metrics.Metrics
	doer      corehttp.HTTPDoer
	transport *http.Transport

	limiters  map[class.Class]*limiter
	throttles map[class.Class]*rate.Limiter
	clients   map[class.Class]*corehttp.Client

	attemptTimeout atomic.Int64
	trace          atomic.Int32

	mu       sync.RWMutex
	settings config.Settings
	limits   map[class.Class]uint32
	stopped  bool
	work     sync.WaitGroup
}

// New builds a service from settings and applies them as the initial
// settings.
func New(settings config.Settings, opts ...Option) (*Service, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	s := &Service{
		logger:    logging.Component(o.logger, "service"),
		metrics:   o.metrics,
		doer:      o.doer,
		limiters:  make(map[class.Class]*limiter),
		throttles: make(map[class.Class]*rate.Limiter),
		clients:   make(map[class.Class]*corehttp.Client),
		limits:    make(map[class.Class]uint32),
	}
	if s.metrics == nil {
		s.metrics = metrics.New()
	}
	if s.doer == nil {
		t, err := newTransport(settings.HTTP)
		if err != nil {
			return nil, err
		}
		s.transport = t
		s.doer = &http.Client{Transport: t}
	}

	for _, c := range class.All() {
		spec := class.Info(c)
		if c.Limiter() == c {
			s.limiters[c] = newLimiter(spec.Default)
		}
		s.throttles[c] = rate.NewLimiter(rate.Inf, 1)
	}
	for _, c := range class.All() {
		s.clients[c] = s.newClient(c, o.handlers)
	}

	s.RefreshSettings(settings, true)
	s.logger.Info("HTTP services started", "classes", len(s.clients))
	return s, nil
}

func (s *Service) newClient(c class.Class, extra *corehttp.HandlerGroup) *corehttp.Client {
	handlers := &corehttp.HandlerGroup{}
	handlers.Merge(s.logHandlers(c))
	handlers.Merge(s.metrics.Handlers(c))
	handlers.Merge(extra)
	return &corehttp.Client{
		HTTPDoer: &limitedDoer{
			class:    c,
			next:     s.doer,
			lim:      s.limiters[c.Limiter()],
			throttle: s.throttles[c],
			inFlight: s.metrics.AddInFlight,
		},
		RetryPolicy: retry.FactoryFunc(func() retry.Policy {
			return s.retryFactory(c).NewPolicy()
		}),
		TimeoutPolicy: attemptTimeout{&s.attemptTimeout},
		Handlers:      handlers,
	}
}

// Do executes p on the client of class c.
func (s *Service) Do(c class.Class, p *request.Plan) (*request.Execution, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownClass, int(c))
	}
	s.mu.RLock()
	if s.stopped {
		s.mu.RUnlock()
		return nil, ErrStopped
	}
	s.work.Add(1)
	s.mu.RUnlock()
	defer s.work.Done()
	return s.clients[c].Do(p)
}

// Client returns the robust client of class c. Requests sent directly
// through it are limited and instrumented like those sent with Do, but
// Stop does not wait for them.
func (s *Service) Client(c class.Class) *corehttp.Client {
	return s.clients[c]
}

// Executor returns an Executor that sends every request through Do on
// class c.
func (s *Service) Executor(c class.Class) corehttp.Executor {
	return corehttp.Inflate(classDoer{s: s, c: c})
}

type classDoer struct {
	s *Service
	c class.Class
}

func (d classDoer) Do(p *request.Plan) (*request.Execution, error) {
	return d.s.Do(d.c, p)
}

func (d classDoer) CloseIdleConnections() {
	d.s.CloseIdleConnections()
}

// RefreshSettings applies settings to the running service.
//
// Connection limits are recomputed with class.Resolve. Unless initial
// is true, classes whose limit is unchanged are skipped. When initial
// is true, limits that differ from the class default are logged.
// Classes sharing a limiter apply their limits in table order, so the
// last such class decides the shared size.
func (s *Service) RefreshSettings(settings config.Settings, initial bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = settings
	s.attemptTimeout.Store(int64(settings.HTTP.AttemptTimeout))
	s.trace.Store(int32(settings.HTTP.Trace))

	for _, c := range class.All() {
		spec := class.Info(c)
		n := class.Resolve(spec, settings.Controls)
		if !initial && n == s.limits[c] {
			s.refreshThrottle(c, settings)
			continue
		}
		s.limits[c] = n
		s.limiters[c.Limiter()].resize(n)
		s.logger.Debug("changed concurrency", "usage", spec.Usage, "limit", n)
		if initial && n != spec.Default {
			s.logger.Info("settings overriding default concurrency", "usage", spec.Usage, "limit", n)
		}
		s.refreshThrottle(c, settings)
	}
	for _, c := range class.All() {
		s.metrics.SetLimit(c, s.limiters[c.Limiter()].limit())
	}
}

func (s *Service) refreshThrottle(c class.Class, settings config.Settings) {
	limit, burst := throttleLimit(settings.ThrottleFor(c))
	t := s.throttles[c]
	if t.Limit() != limit || t.Burst() != burst {
		t.SetLimit(limit)
		t.SetBurst(burst)
		s.logger.Debug("changed throttle", "class", c.String(), "rps", float64(limit))
	}
}

func (s *Service) retryFactory(c class.Class) retry.AdaptiveFactory {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings.RetryFactory(c)
}

// Settings returns the settings last applied.
func (s *Service) Settings() config.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// Limit returns the connection limit in force for class c, which for
// classes sharing a limiter is the shared size.
func (s *Service) Limit(c class.Class) uint32 {
	return s.limiters[c.Limiter()].limit()
}

// InFlight returns the number of attempts holding a slot in the
// limiter used by class c.
func (s *Service) InFlight(c class.Class) int {
	return s.limiters[c.Limiter()].active()
}

// MetricsHandler serves the service metrics.
func (s *Service) MetricsHandler() http.Handler {
	return s.metrics.Handler()
}

// Registry returns the registry holding the service metrics.
func (s *Service) Registry() *prometheus.Registry {
	return s.metrics.Registry()
}

// Metrics returns the service metrics.
func (s *Service) Metrics() *metrics.Metrics {
	return s.metrics
}

// CloseIdleConnections closes idle connections of the shared transport.
func (s *Service) CloseIdleConnections() {
	if s.transport != nil {
		s.transport.CloseIdleConnections()
		return
	}
	if ic, ok := s.doer.(corehttp.IdleCloser); ok {
		ic.CloseIdleConnections()
	}
}

// Stop refuses new work and waits for executions started with Do to
// finish, for at most the stop_timeout setting or until ctx ends. Idle
// connections are closed either way. If work is still running when the
// wait ends, Stop logs a warning and returns the cause.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	wait := s.settings.HTTP.StopTimeout
	s.mu.Unlock()

	if wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, wait)
		defer cancel()
	}
	done := make(chan struct{})
	go func() {
		s.work.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
		s.logger.Info("HTTP services stopped")
	case <-ctx.Done():
		err = fmt.Errorf("service: shutdown incomplete: %w", ctx.Err())
		s.logger.Warn("attempting to clean up HTTP services with shutdown incomplete")
	}
	s.CloseIdleConnections()
	return err
}

type attemptTimeout struct {
	d *atomic.Int64
}

func (t attemptTimeout) Timeout(e *request.Execution) time.Duration {
	if d := time.Duration(t.d.Load()); d > 0 {
		return d
	}
	return timeout.DefaultPolicy.Timeout(e)
}
