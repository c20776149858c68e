// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/gogama/corehttp/class"
	"github.com/spf13/cobra"
)

func newClassesCmd() *cobra.Command {
	sf := &settingsFlags{}
	c := &cobra.Command{
		Use:   "classes",
		Short: "Print the effective concurrency class table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, err := sf.load()
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "CLASS\tUSAGE\tLIMIT\tSHARES\tCONTROL\tMIN DELAY\tMAX DELAY\tBACKOFF\tMAX RETRIES\tTHROTTLE")
			for _, c := range class.All() {
				spec := class.Info(c)
				rf := settings.RetryFactory(c)
				control := spec.Control
				if control == "" {
					control = "-"
				}
				shares := "-"
				if l := c.Limiter(); l != c {
					shares = l.String()
				}
				throttle := "-"
				if rps := settings.ThrottleFor(c); rps > 0 {
					throttle = fmt.Sprintf("%g/s", rps)
				}
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%v\t%v\t%g\t%d\t%s\n",
					spec.Name, spec.Usage, class.Resolve(spec, settings.Controls), shares,
					control, rf.Min, rf.Max, rf.Factor, rf.MaxRetries, throttle)
			}
			return tw.Flush()
		},
	}
	c.Flags().AddFlagSet(sf.newFlagSet())
	return c
}
