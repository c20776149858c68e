// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package service

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gogama/corehttp/internal/config"
	"golang.org/x/net/http2"
)

// newTransport builds the transport shared by every class, with HTTP/2
// enabled, the extra trusted roots from CAFile, and the proxy.
func newTransport(h config.HTTPSettings) (*http.Transport, error) {
	t := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
	if h.Proxy != "" {
		u, err := url.Parse(h.Proxy)
		if err != nil {
			return nil, fmt.Errorf("service: proxy: %w", err)
		}
		t.Proxy = http.ProxyURL(u)
	}
	if h.CAFile != "" {
		pem, err := os.ReadFile(h.CAFile)
		if err != nil {
			return nil, fmt.Errorf("service: ca file: %w", err)
		}
		pool, err := x509.SystemCertPool()
		if err != nil || pool == nil {
			pool = x509.NewCertPool()
		}
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("service: ca file %s holds no certificates", h.CAFile)
		}
		t.TLSClientConfig = &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}
	}
	if _, err := http2.ConfigureTransports(t); err != nil {
		return nil, fmt.Errorf("service: http2: %w", err)
	}
	return t, nil
}
