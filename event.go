// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package corehttp

// An Event identifies a point in a plan execution where a Client runs
// installed handlers.
type Event int

const (
	// BeforeExecutionStart fires before the first attempt. Only the
	// execution's Plan and Policy are set.
	BeforeExecutionStart Event = iota
	// BeforeAttempt fires before each attempt is sent. The execution's
	// Request holds the request that will be sent, and handlers may
	// modify it, for example to sign it. The request header is a copy
	// owned by this attempt.
	BeforeAttempt
	// BeforeReadBody fires when an attempt got a response, whatever its
	// status, before the body is buffered.
	BeforeReadBody
	// AfterAttemptTimeout fires when an attempt ended in a timeout. The
	// execution's AttemptTimeouts counter already includes it.
	AfterAttemptTimeout
	// AfterAttempt fires after every attempt, before the retry policy
	// learns of the outcome.
	AfterAttempt
	// BeforeRetryWait fires when the retry policy has allowed another
	// attempt, before the client waits. The execution's Wait field
	// holds the delay and StatusReported the status code reported to
	// the policy.
	BeforeRetryWait
	// AfterPlanTimeout fires when the plan context deadline passes,
	// either during an attempt or during a retry wait. It always comes
	// after AfterAttempt for the same attempt.
	AfterPlanTimeout
	// AfterExecutionEnd fires once the execution is over and its End
	// time is set.
	AfterExecutionEnd

	eventSentinel
	numEvents = int(eventSentinel)
)

var eventNames = [numEvents]string{
	"BeforeExecutionStart",
	"BeforeAttempt",
	"BeforeReadBody",
	"AfterAttemptTimeout",
	"AfterAttempt",
	"BeforeRetryWait",
	"AfterPlanTimeout",
	"AfterExecutionEnd",
}

// Events returns all events in the order in which they can occur.
func Events() []Event {
	evts := make([]Event, numEvents)
	for i := range evts {
		evts[i] = Event(i)
	}
	return evts
}

// Name returns the name of the event.
func (evt Event) Name() string {
	return eventNames[int(evt)]
}

// String returns the name of the event.
func (evt Event) String() string {
	return evt.Name()
}
