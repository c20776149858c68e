// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package class defines the concurrency classes into which HTTP traffic
// is divided: texture fetches, two flavours of mesh fetch, large mesh
// fetches, asset uploads, and everything else.
//
// Each class has a connection limit with a default, a permitted range,
// and optionally a named control that overrides the default at run
// time. Resolve applies a set of control values to a class, and each
// class carries its own retry tunables.
package class
