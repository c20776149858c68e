// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package retry provides the stateful retry policy used by the robust
// HTTP client to decide, after each failed attempt of a request
// lineage, whether to retry and how long to wait.
//
// The interface Policy defines a retry policy. Each request lineage
// owns its own Policy, obtained from a Factory. The built-in Adaptive
// policy implements exponential backoff with a cap, a bounded retry
// count, a permanent stop on any non-5xx failure, and a one-round
// override from the server's Retry-After header:
//
//     factory := retry.AdaptiveFactory{
//         Min:        1 * time.Second,
//         Max:        8 * time.Second,
//         Factor:     2.0,
//         MaxRetries: 4,
//     }
//     client := &corehttp.Client{RetryPolicy: factory}
//
// Policies can also be driven by hand:
//
//     p := retry.NewAdaptive(time.Second, 3*time.Second, 2.0, 4)
//     p.OnFailure(503, retry.FromHTTP(resp.Header))
//     if ok, wait := p.ShouldRetry(); ok {
//         time.Sleep(wait)
//         ...
//     }
//
// Headers are read through the case-insensitive Header interface, with
// adapters for http.Header (FromHTTP) and flat string maps (Fields).
package retry
