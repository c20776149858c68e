// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package class

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gogama/corehttp/retry"
)

// A Class is a concurrency class of HTTP traffic.
type Class int

const (
	// Default carries any request that does not belong to a more
	// specific class.
	Default Class = iota
	// Texture carries texture fetches. It has its own limit settings
	// but shares the Default class's connection limiter.
	Texture
	// Mesh1 carries mesh fetches on the original mesh protocol.
	Mesh1
	// Mesh2 carries mesh fetches on the second mesh protocol, which
	// needs far fewer connections for the same throughput.
	Mesh2
	// LargeMesh carries mesh fetches too large for the regular mesh
	// classes.
	LargeMesh
	// Uploads carries asset uploads.
	Uploads

	numClasses
)

// ErrUnknown is returned by Parse for a name that matches no class.
var ErrUnknown = errors.New("corehttp/class: unknown class")

// A Spec describes one class: its connection limit bounds, the control
// that may override the default limit, and its retry tunables.
type Spec struct {
	// Class is the class described.
	Class Class
	// Name is the canonical lower-case name of the class.
	Name string
	// Usage describes the traffic in the class, for log messages.
	Usage string
	// Default is the connection limit used when no control overrides it.
	Default uint32
	// Min and Max bound an overridden connection limit.
	Min, Max uint32
	// Divisor scales the control value before clamping. Classes that
	// share a control with another class use it to take a fraction of
	// the shared setting.
	Divisor uint32
	// Control is the name of the setting which overrides Default, or
	// the empty string if the limit is fixed.
	Control string
	// Retry holds the retry tunables for requests in the class.
	Retry retry.AdaptiveFactory
}

var specs = [numClasses]Spec{
	{
		Class: Default, Name: "default", Usage: "default",
		Default: 8, Min: 1, Max: 32, Divisor: 1,
		Retry: retry.AdaptiveFactory{
			Min: retry.DefaultMin, Max: retry.DefaultMax,
			Factor: retry.DefaultFactor, MaxRetries: retry.DefaultMaxRetries,
		},
	},
	{
		Class: Texture, Name: "texture", Usage: "texture fetch",
		Default: 8, Min: 1, Max: 12, Divisor: 1,
		Control: "TextureFetchConcurrency",
		Retry:   retry.AdaptiveFactory{Min: 250 * time.Millisecond, Max: 8 * time.Second, Factor: 2, MaxRetries: 3},
	},
	{
		Class: Mesh1, Name: "mesh1", Usage: "mesh fetch",
		Default: 32, Min: 1, Max: 128, Divisor: 1,
		Control: "MeshMaxConcurrentRequests",
		Retry:   retry.AdaptiveFactory{Min: time.Second, Max: 8 * time.Second, Factor: 2, MaxRetries: 4},
	},
	{
		Class: Mesh2, Name: "mesh2", Usage: "mesh2 fetch",
		Default: 8, Min: 1, Max: 32, Divisor: 4,
		Control: "MeshMaxConcurrentRequests",
		Retry:   retry.AdaptiveFactory{Min: time.Second, Max: 8 * time.Second, Factor: 2, MaxRetries: 4},
	},
	{
		Class: LargeMesh, Name: "large_mesh", Usage: "large mesh fetch",
		Default: 2, Min: 1, Max: 8, Divisor: 1,
		Retry: retry.AdaptiveFactory{Min: 2 * time.Second, Max: 32 * time.Second, Factor: 2, MaxRetries: 3},
	},
	{
		Class: Uploads, Name: "uploads", Usage: "asset upload",
		Default: 2, Min: 1, Max: 8, Divisor: 1,
		Retry: retry.AdaptiveFactory{Min: time.Second, Max: 16 * time.Second, Factor: 2, MaxRetries: 2},
	},
}

// All returns every class in table order.
func All() []Class {
	all := make([]Class, numClasses)
	for i := range all {
		all[i] = Class(i)
	}
	return all
}

// Valid reports whether c is a known class.
func (c Class) Valid() bool {
	return c >= 0 && c < numClasses
}

// String returns the canonical name of c.
func (c Class) String() string {
	if !c.Valid() {
		return fmt.Sprintf("class(%d)", int(c))
	}
	return specs[c].Name
}

// Limiter returns the class whose connection limiter c uses. Texture
// traffic runs under the Default limiter; every other class has its own.
func (c Class) Limiter() Class {
	if c == Texture {
		return Default
	}
	return c
}

// Info returns the table entry of c. It panics if c is not a valid class.
func Info(c Class) Spec {
	if !c.Valid() {
		panic("corehttp/class: invalid class")
	}
	return specs[c]
}

// Parse returns the class with the given name. Matching ignores case,
// underscores, and hyphens, so "large_mesh", "LargeMesh" and
// "large-mesh" all name LargeMesh.
func Parse(name string) (Class, error) {
	key := normalize(name)
	for _, s := range specs {
		if normalize(s.Name) == key {
			return s.Class, nil
		}
	}
	return Default, fmt.Errorf("%w: %q", ErrUnknown, name)
}

func normalize(name string) string {
	return strings.ToLower(strings.NewReplacer("_", "", "-", "").Replace(strings.TrimSpace(name)))
}

// Resolve returns the connection limit for s given a set of control
// values.
//
// The result is s.Default unless s has a control and controls holds a
// non-zero value for it. In that case the value is divided by
// s.Divisor and clamped to [s.Min, s.Max]. A zero control value asks
// for the default.
func Resolve(s Spec, controls map[string]uint32) uint32 {
	if s.Control == "" {
		return s.Default
	}
	v, ok := controls[s.Control]
	if !ok || v == 0 {
		return s.Default
	}
	divisor := s.Divisor
	if divisor == 0 {
		divisor = 1
	}
	v /= divisor
	if v < s.Min {
		return s.Min
	}
	if v > s.Max {
		return s.Max
	}
	return v
}
