// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

/*
Package request holds Plan, the description of one logical HTTP request,
and Execution, the running state of a Plan as the client makes attempts
on its behalf.

A Plan pre-buffers its body so that every attempt in the lineage can
resend it:

	p, err := request.NewPlanWithContext(ctx, "GET", "https://example.com/mesh/42", nil)
	...
	e, err := client.Do(p)

The plan context bounds the whole lineage, including the waits the
retry policy asks for between attempts. Per-attempt deadlines come from
the client's timeout.Policy instead. An attempt timeout may be retried
while a plan timeout ends the execution.

Execution is handed to timeout policies and event handlers while the
plan runs, and returned by the client when the plan is done. Its Policy
field holds the lineage's retry.Policy, so handlers can see the retry
count and the delay chosen for the next attempt.
*/
package request
