// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package request

import (
	"errors"
	"io"
)

// ErrBodyType is returned by BodyBytes for an unsupported body type.
var ErrBodyType = errors.New("corehttp/request: invalid body type " +
	"(use nil, string, []byte, io.Reader or io.ReadCloser)")

// BodyBytes converts a generic body parameter to a byte slice for use
// as a request plan body.
//
// A nil body yields a nil slice. A string or []byte is converted
// directly. An io.Reader is read to the end, and closed afterward if it
// is also an io.Closer; a read or close error is returned with a nil
// slice. Any other type yields ErrBodyType.
func BodyBytes(body interface{}) ([]byte, error) {
	switch x := body.(type) {
	case nil:
		return nil, nil
	case string:
		return []byte(x), nil
	case []byte:
		return x, nil
	case io.Reader:
		b, err := io.ReadAll(x)
		if c, ok := x.(io.Closer); ok {
			if cerr := c.Close(); err == nil {
				err = cerr
			}
		}
		if err != nil {
			return nil, err
		}
		return b, nil
	default:
		return nil, ErrBodyType
	}
}
