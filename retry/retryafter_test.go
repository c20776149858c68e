// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package retry

import (
	"math"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2021, time.March, 4, 5, 6, 7, 0, time.UTC)
	testCases := []struct {
		name     string
		value    string
		expected time.Duration
		ok       bool
	}{
		{"zero", "0", 0, true},
		{"integer", "666", 666 * time.Second, true},
		{"fraction", "999.9", 999900 * time.Millisecond, true},
		{"padded", "  12 ", 12 * time.Second, true},
		{"huge", "1e300", time.Duration(math.MaxInt64), true},
		{"empty", "", 0, false},
		{"negative", "-1", 0, false},
		{"NaN", "NaN", 0, false},
		{"Inf", "+Inf", 0, false},
		{"garbage", "whenever", 0, false},
		{"date now", now.Format(http.TimeFormat), 0, true},
		{"date past", now.Add(-time.Hour).Format(http.TimeFormat), 0, true},
		{"date future", now.Add(90 * time.Second).Format(http.TimeFormat), 90 * time.Second, true},
		{"RFC 850", now.Add(time.Minute).Format(time.RFC850), time.Minute, true},
		{"RFC 7231 example", "Tue, 15 Nov 1994 08:12:31 GMT", 0, true},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			d, ok := ParseRetryAfter(testCase.value, now)
			assert.Equal(t, testCase.ok, ok)
			assert.InDelta(t, float64(testCase.expected), float64(d), float64(time.Millisecond))
		})
	}
}

func TestSecondsUntilRetryAfter(t *testing.T) {
	secs, ok := SecondsUntilRetryAfter("0")
	assert.True(t, ok)
	assert.Equal(t, 0.0, secs)

	secs, ok = SecondsUntilRetryAfter("999.9")
	assert.True(t, ok)
	assert.InDelta(t, 999.9, secs, 1e-3)

	secs, ok = SecondsUntilRetryAfter(time.Now().UTC().Format(http.TimeFormat))
	assert.True(t, ok)
	assert.InDelta(t, 0.0, secs, 1e-2)

	_, ok = SecondsUntilRetryAfter("tomorrow")
	assert.False(t, ok)
}
