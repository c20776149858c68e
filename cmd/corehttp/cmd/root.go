// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package cmd holds the cobra commands of the corehttp tool.
package cmd

import (
	"github.com/gogama/corehttp/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// NewCmd returns the root command.
func NewCmd(version string) *cobra.Command {
	root := &cobra.Command{
		Use:           "corehttp",
		Short:         "Robust per-class HTTP dispatch",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().SortFlags = false
	root.AddCommand(newFetchCmd(), newRetryAfterCmd(), newClassesCmd())
	return root
}

// settingsFlags is the --config flag shared by commands that read
// settings.
type settingsFlags struct {
	path string
}

func (f *settingsFlags) newFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("settings", pflag.ContinueOnError)
	fs.StringVarP(&f.path, "config", "c", "", "YAML or JSON settings `file`. Defaults apply when empty.")
	return fs
}

func (f *settingsFlags) load() (config.Settings, error) {
	if f.path == "" {
		return config.Default(), nil
	}
	return config.Load(f.path)
}
