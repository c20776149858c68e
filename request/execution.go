// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package request

import (
	"context"
	"net/http"
	"time"

	"github.com/gogama/corehttp/retry"
	"github.com/gogama/corehttp/transient"
)

// An Execution is the state of a single Plan execution: the lineage of
// request attempts made for the plan, and the retry policy governing
// them.
//
// The robust client creates an Execution when it begins a plan, updates
// it as attempts are made, and returns it when the plan is done. Event
// handlers and timeout policies may read any field but should treat the
// exported fields as read-only; use SetValue and Value to attach data.
// The one sanctioned exception is adjusting the outgoing Request during
// the BeforeAttempt event, for example to sign it.
type Execution struct {
	// Plan is the plan being executed. It is never nil.
	Plan *Plan

	// Policy is the retry policy owned by this execution's lineage.
	// It is set before the execution starts and never replaced.
	Policy retry.Policy

	// Start is the time the execution started, or zero before then.
	Start time.Time

	// End is the time the execution ended, or zero while in flight.
	End time.Time

	// Attempt is the zero-based number of the current attempt: zero
	// on the initial attempt, one on the first retry, and so on.
	Attempt int

	// AttemptTimeouts counts the attempts that ended in a timeout.
	AttemptTimeouts int

	// Request is the HTTP request of the current or most recent attempt.
	Request *http.Request

	// Response is the HTTP response of the most recent attempt, or nil
	// if the attempt ended in an error or is still underway.
	Response *http.Response

	// Err is the error that ended the most recent attempt, if any.
	// When the execution has ended, Err is the same value returned by
	// the client. Whenever Err is non-nil it has type *url.Error.
	Err error

	// Body is the buffered response body of the most recent attempt.
	Body []byte

	// StatusReported is the status code reported to the retry policy
	// for the most recent failed attempt. For an attempt that ended
	// without a response it is a synthetic code chosen by the client.
	StatusReported int

	// Wait is the delay the retry policy asked for before the next
	// attempt. It is zero until the first retry is scheduled.
	Wait time.Duration

	data context.Context
}

// StatusCode returns the status code of the most recent response, or 0
// if there is none.
func (e *Execution) StatusCode() int {
	if e.Response == nil {
		return 0
	}
	return e.Response.StatusCode
}

// Header returns the headers of the most recent response, or a nil
// header if there is none. A nil http.Header is safe to read.
func (e *Execution) Header() http.Header {
	if e.Response == nil {
		return nil
	}
	return e.Response.Header
}

// Succeeded reports whether the most recent attempt produced a 2xx
// response without error.
func (e *Execution) Succeeded() bool {
	s := e.StatusCode()
	return e.Err == nil && s >= 200 && s <= 299
}

// Duration returns the time elapsed since Start, or End minus Start
// once the execution has ended, or zero if it has not started.
func (e *Execution) Duration() time.Duration {
	if !e.Started() {
		return 0
	} else if !e.Ended() {
		return time.Since(e.Start)
	}
	return e.End.Sub(e.Start)
}

// Started indicates whether the execution has started.
func (e *Execution) Started() bool {
	return !e.Start.IsZero()
}

// Ended indicates whether the execution has ended.
func (e *Execution) Ended() bool {
	return !e.End.IsZero()
}

// Timeout indicates whether Err is a timeout, either of the attempt or
// of the whole plan.
func (e *Execution) Timeout() bool {
	return transient.Categorize(e.Err) == transient.Timeout
}

// SetValue attaches a value to the execution under key. The key must
// satisfy the same rules as the key passed to context.WithValue.
func (e *Execution) SetValue(key, value interface{}) {
	ctx := e.data
	if ctx == nil {
		ctx = context.Background()
	}
	e.data = context.WithValue(ctx, key, value)
}

// Value returns the value attached under key, or nil.
func (e *Execution) Value(key interface{}) interface{} {
	if e.data == nil {
		return nil
	}
	return e.data.Value(key)
}
