// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package retry

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// maxSeconds is the largest number of seconds representable as a
// time.Duration.
const maxSeconds = float64(math.MaxInt64) / float64(time.Second)

// ParseRetryAfter interprets the value of a Retry-After header and
// returns how long to wait, measured from now.
//
// Two forms are accepted, tried in order:
//
// • A non-negative decimal number of seconds, such as "120" or "999.9",
// which is used verbatim.
//
// • An HTTP-date, such as "Tue, 15 Nov 1994 08:12:31 GMT". The wait is
// the time remaining until that instant, or zero if it is not in the
// future. Besides the preferred RFC 1123 form, the two obsolete forms
// accepted by http.ParseTime are also understood.
//
// If value is in neither form, ParseRetryAfter returns false. An
// unparseable value is not an error; the caller simply has no
// server-directed wait.
func ParseRetryAfter(value string, now time.Time) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}

	if secs, err := strconv.ParseFloat(value, 64); err == nil {
		if math.IsNaN(secs) || math.IsInf(secs, 0) || secs < 0 {
			return 0, false
		}
		return secondsToDuration(secs), true
	}

	t, err := http.ParseTime(value)
	if err != nil {
		return 0, false
	}
	if d := t.Sub(now); d > 0 {
		return d, true
	}
	return 0, true
}

// SecondsUntilRetryAfter is like ParseRetryAfter measured from the
// current time, but reports the wait as a number of seconds.
func SecondsUntilRetryAfter(value string) (float64, bool) {
	d, ok := ParseRetryAfter(value, time.Now())
	if !ok {
		return 0, false
	}
	return d.Seconds(), true
}

func secondsToDuration(secs float64) time.Duration {
	if secs >= maxSeconds {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(secs * float64(time.Second))
}
