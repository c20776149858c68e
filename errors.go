// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package corehttp

import (
	"errors"
	"fmt"
	"net/http"
)

// StatusTransient is the status code reported to a retry policy when an
// attempt ends without a response because of a transient network
// failure, such as a timeout or a reset connection. A failure that is
// not transient is reported with status code 0, which retry.Adaptive
// treats as non-retryable.
const StatusTransient = http.StatusServiceUnavailable

var (
	// ErrNotRetryable is the Reason of a FailureError when the retry
	// policy saw a failure outside the 5xx range.
	ErrNotRetryable = errors.New("corehttp: failure not retryable")

	// ErrRetriesExhausted is the Reason of a FailureError when every
	// failure was retryable but the policy's retry budget ran out.
	ErrRetriesExhausted = errors.New("corehttp: retries exhausted")
)

// A FailureError describes why a plan execution ended without success.
// The client always returns it wrapped in a *url.Error.
type FailureError struct {
	// StatusCode is the status reported to the retry policy for the
	// final attempt.
	StatusCode int
	// Attempts is the total number of attempts made.
	Attempts int
	// Reason is ErrNotRetryable or ErrRetriesExhausted.
	Reason error
	// Cause is the transport error that ended the final attempt, or nil
	// if the final attempt received a response.
	Cause error
}

func (err *FailureError) Error() string {
	msg := fmt.Sprintf("corehttp: status %d after %d attempt", err.StatusCode, err.Attempts)
	if err.Attempts != 1 {
		msg += "s"
	}
	if err.Reason != nil {
		msg += ": " + err.Reason.Error()
	}
	if err.Cause != nil {
		msg += ": " + err.Cause.Error()
	}
	return msg
}

// Unwrap returns Reason and Cause, so that errors.Is matches either.
func (err *FailureError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if err.Reason != nil {
		errs = append(errs, err.Reason)
	}
	if err.Cause != nil {
		errs = append(errs, err.Cause)
	}
	return errs
}
