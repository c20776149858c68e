// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package transient classifies the errors that end an HTTP request
// attempt without a response. The robust client uses the category to
// decide what status to report to the retry policy for a transport
// failure, and the metrics layer uses it as a label.
//
// Package transient depends only on the standard library packages
// "errors", "io" and "syscall".
package transient
