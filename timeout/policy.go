// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package timeout

import (
	"math"
	"time"

	"github.com/gogama/corehttp/request"
)

// A Policy chooses the deadline for each request attempt in a plan
// execution, including retries.
//
// Implementations must be safe for concurrent use by multiple
// goroutines.
type Policy interface {
	// Timeout returns the timeout for the next attempt of execution e.
	// A non-positive result means the attempt has no timeout of its
	// own and is bounded only by the plan context.
	Timeout(e *request.Execution) time.Duration
}

// DefaultTimeout is the attempt timeout used by DefaultPolicy.
const DefaultTimeout = 30 * time.Second

// DefaultPolicy gives every attempt a fixed 30 second timeout.
var DefaultPolicy Policy = Fixed(DefaultTimeout)

// Infinite never times out an attempt.
var Infinite Policy = Fixed(math.MaxInt64)

// Fixed returns a policy which gives every attempt the timeout d.
func Fixed(d time.Duration) Policy {
	return stepped{d}
}

// Adaptive returns a policy which uses usual for the first attempt and
// for any retry following an attempt that did not time out.
//
// After an attempt times out, the next attempt uses after[n-1], where n
// is the number of attempts in the execution that have timed out so
// far. Once n exceeds len(after), the last element of after is reused.
//
// For example, large mesh downloads may warrant
//
//	timeout.Adaptive(20*time.Second, 45*time.Second, 90*time.Second)
//
// so that a slow asset server gets progressively more patience.
func Adaptive(usual time.Duration, after ...time.Duration) Policy {
	p := make(stepped, 1, 1+len(after))
	p[0] = usual
	return append(p, after...)
}

type stepped []time.Duration

func (p stepped) Timeout(e *request.Execution) time.Duration {
	if !e.Timeout() {
		return p[0]
	}
	i := e.AttemptTimeouts
	if i >= len(p) {
		i = len(p) - 1
	}
	return p[i]
}
