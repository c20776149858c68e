// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package cmd

import (
	"fmt"
	"strconv"

	"github.com/gogama/corehttp/retry"
	"github.com/spf13/cobra"
)

func newRetryAfterCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "retry-after VALUE",
		Short: "Print the seconds to wait for a Retry-After header value",
		Long: "Interprets VALUE as a Retry-After header value, either a number of\n" +
			"seconds or an HTTP-date, and prints the seconds to wait from now.\n" +
			"Prints \"absent\" if VALUE is neither.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			secs, ok := retry.SecondsUntilRetryAfter(args[0])
			if !ok {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), "absent")
				return err
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), strconv.FormatFloat(secs, 'f', -1, 64))
			return err
		},
	}
}
