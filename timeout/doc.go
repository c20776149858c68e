// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package timeout holds the attempt timeout policies used by the robust
// client: a fixed timeout, an infinite one, and an adaptive policy that
// lengthens the timeout after attempts time out.
package timeout
