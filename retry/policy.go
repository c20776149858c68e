// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package retry

import (
	"time"
)

// A Policy decides whether a failed request lineage should be retried
// and how long to wait before the retry.
//
// A Policy is stateful and belongs to exactly one request lineage: the
// original request attempt and all of its retries. After each failed
// attempt the dispatcher reports the failure with OnFailure and then
// asks ShouldRetry for a decision. Implementations need not be safe for
// concurrent use, because the calls for one lineage are sequential.
//
// Policies are obtained from a Factory, which the robust client calls
// once per request plan execution.
type Policy interface {
	// OnFailure records a failed attempt. Parameter statusCode is the
	// HTTP status code, or a synthetic code if the attempt failed
	// without a response. Parameter h holds the response headers and
	// may be nil.
	OnFailure(statusCode int, h Header)
	// ShouldRetry reports whether to retry and the wait before doing
	// so. It must not change the policy state.
	ShouldRetry() (bool, time.Duration)
}

// A Factory creates a fresh Policy for each request lineage.
//
// Implementations of Factory must be safe for concurrent use by
// multiple goroutines.
type Factory interface {
	NewPolicy() Policy
}

// The FactoryFunc type is an adapter to allow the use of ordinary
// functions as policy factories.
type FactoryFunc func() Policy

// NewPolicy calls f().
func (f FactoryFunc) NewPolicy() Policy {
	return f()
}

// AdaptiveFactory is a Factory producing Adaptive policies which all
// share the same tunables.
type AdaptiveFactory struct {
	// Min is the delay after the first failure.
	Min time.Duration
	// Max is the upper bound on the computed delay.
	Max time.Duration
	// Factor multiplies the delay after each successive failure.
	Factor float64
	// MaxRetries is the maximum number of retries.
	MaxRetries int
	// Clock, if not nil, is the time source for HTTP-date Retry-After
	// values.
	Clock func() time.Time
}

// NewPolicy returns a new Adaptive policy. It panics if the factory's
// tunables are invalid, as described on NewAdaptive.
func (f AdaptiveFactory) NewPolicy() Policy {
	return NewAdaptive(f.Min, f.Max, f.Factor, f.MaxRetries, WithClock(f.Clock))
}

// Default tunables for DefaultFactory.
const (
	DefaultMin        = 1 * time.Second
	DefaultMax        = 32 * time.Second
	DefaultFactor     = 2.0
	DefaultMaxRetries = 5
)

// DefaultFactory is a general-purpose policy factory. Its policies wait
// 1, 2, 4, 8 and 16 seconds between up to five retries of server
// errors, unless the server directs otherwise.
var DefaultFactory Factory = AdaptiveFactory{
	Min:        DefaultMin,
	Max:        DefaultMax,
	Factor:     DefaultFactor,
	MaxRetries: DefaultMaxRetries,
}

// Never is a factory whose policies never retry. It is useful if you
// want the other features of the robust client without retries.
var Never Factory = FactoryFunc(func() Policy { return never{} })

type never struct{}

func (never) OnFailure(_ int, _ Header) {}

func (never) ShouldRetry() (bool, time.Duration) {
	return false, 0
}

// Retryable reports false: every failure is final.
func (never) Retryable() bool {
	return false
}

// Retryable is implemented by policies that can report whether the
// lineage has seen a permanent, non-retryable failure. Adaptive and
// the policies made by Never implement it.
type Retryable interface {
	Retryable() bool
}
