// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Command corehttp fetches URLs through the per-class dispatch service
// and inspects its retry and concurrency settings.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gogama/corehttp/cmd/corehttp/cmd"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := cmd.NewCmd(version).ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
