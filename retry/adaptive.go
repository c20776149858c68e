// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package retry

import (
	"net/http"
	"time"
)

// An Adaptive policy retries server errors with exponential backoff,
// defers to a server-supplied Retry-After header when one is present,
// and gives up after a fixed number of retries.
//
// An Adaptive policy belongs to a single request lineage. It is not
// safe for concurrent use; the dispatcher must serialize calls for one
// lineage, which the robust client does naturally since a lineage's
// attempts are sequential.
//
// The delay offered after each failure follows the sequence
//
//	min, min*factor, min*factor², ...
//
// clamped to max. The sequence advances on every failure, even on a
// round where a Retry-After header overrides the offered delay, so a
// server hint affects only the round in which it was received.
//
// Any failure outside the 5xx range permanently stops retries for the
// lineage, as does exceeding the retry budget.
type Adaptive struct {
	min        time.Duration
	max        time.Duration
	factor     float64
	maxRetries int
	now        func() time.Time

	count       int
	delay       time.Duration
	failed      bool
	retryable   bool
	override    time.Duration
	hasOverride bool
}

// An AdaptiveOption customizes an Adaptive policy at construction.
type AdaptiveOption func(*Adaptive)

// WithClock sets the current-time source used to resolve Retry-After
// headers in HTTP-date form. The default is time.Now.
func WithClock(now func() time.Time) AdaptiveOption {
	return func(a *Adaptive) {
		if now != nil {
			a.now = now
		}
	}
}

// NewAdaptive constructs an Adaptive policy for one request lineage.
//
// Parameter min is the delay offered after the first failure and must
// be positive. Parameter max caps the computed delay and must be at
// least min. Parameter factor multiplies the delay on each successive
// failure and must be at least 1. Parameter maxRetries bounds the
// number of retries and must not be negative; with maxRetries zero the
// policy never retries.
func NewAdaptive(min, max time.Duration, factor float64, maxRetries int, opts ...AdaptiveOption) *Adaptive {
	if min <= 0 {
		panic("corehttp/retry: min delay must be positive")
	}
	if max < min {
		panic("corehttp/retry: max delay must be at least min delay")
	}
	if !(factor >= 1) {
		panic("corehttp/retry: backoff factor must be at least 1")
	}
	if maxRetries < 0 {
		panic("corehttp/retry: max retries must not be negative")
	}
	a := &Adaptive{
		min:        min,
		max:        max,
		factor:     factor,
		maxRetries: maxRetries,
		now:        time.Now,
		delay:      min,
		retryable:  true,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// OnFailure records a failed attempt with the given status code and
// response headers. A nil Header is treated as empty.
func (a *Adaptive) OnFailure(statusCode int, h Header) {
	a.count++
	first := !a.failed
	a.failed = true

	if !isServerError(statusCode) {
		a.retryable = false
	}

	if first {
		a.delay = a.min
	} else {
		a.delay = a.next()
	}

	a.override, a.hasOverride = 0, false
	if v, ok := lookup(h, HeaderRetryAfter); ok {
		a.override, a.hasOverride = ParseRetryAfter(v, a.now())
	}
}

// OnFailureResponse records a failed attempt which produced resp. It
// is shorthand for calling OnFailure with the response status code and
// headers. A nil response is recorded as status code zero, which is
// not retryable.
func (a *Adaptive) OnFailureResponse(resp *http.Response) {
	if resp == nil {
		a.OnFailure(0, nil)
		return
	}
	a.OnFailure(resp.StatusCode, FromHTTP(resp.Header))
}

// ShouldRetry reports whether the lineage should be retried and, if so,
// how long to wait first. It does not change the policy state, so
// repeated calls without an intervening OnFailure return the same
// answer.
func (a *Adaptive) ShouldRetry() (bool, time.Duration) {
	if !a.failed || !a.retryable || a.count > a.maxRetries {
		return false, 0
	}
	if a.hasOverride {
		return true, a.override
	}
	return true, a.delay
}

// Retryable reports false once any failure outside the 5xx range has
// been recorded. Together with RetryCount it lets a caller tell a
// permanent failure from an exhausted retry budget.
func (a *Adaptive) Retryable() bool {
	return a.retryable
}

// RetryCount returns the number of failures recorded so far.
func (a *Adaptive) RetryCount() int {
	return a.count
}

// Failed reports whether at least one failure has been recorded.
func (a *Adaptive) Failed() bool {
	return a.failed
}

func (a *Adaptive) next() time.Duration {
	d := float64(a.delay) * a.factor
	if d >= float64(a.max) {
		return a.max
	}
	return time.Duration(d)
}

func isServerError(statusCode int) bool {
	return statusCode >= 500 && statusCode <= 599
}
