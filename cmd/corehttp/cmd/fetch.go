// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/gogama/corehttp"
	"github.com/gogama/corehttp/class"
	"github.com/gogama/corehttp/coproc"
	"github.com/gogama/corehttp/internal/config"
	"github.com/gogama/corehttp/internal/logging"
	"github.com/gogama/corehttp/request"
	"github.com/gogama/corehttp/service"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
)

type fetchFlags struct {
	class    string
	method   string
	headers  []string
	data     string
	out      string
	parallel int
	pool     string
	watch    bool
	metrics  bool
}

func (f *fetchFlags) newFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("fetch", pflag.ContinueOnError)
	fs.StringVarP(&f.class, "class", "C", class.Default.String(), "Concurrency `class` of the requests.")
	fs.StringVarP(&f.method, "method", "X", "GET", "HTTP `method`.")
	fs.StringArrayVarP(&f.headers, "header", "H", nil, "Request header as \"Name: value\". May be repeated.")
	fs.StringVarP(&f.data, "data", "d", "", "Request body.")
	fs.StringVarP(&f.out, "out", "o", "", "Write response bodies to `file` instead of stdout.")
	fs.IntVarP(&f.parallel, "parallel", "p", 4, "Maximum number of URLs fetched at once.")
	fs.StringVar(&f.pool, "pool", "", "Run the fetches as coprocedures on the named `pool` instead.")
	fs.BoolVar(&f.watch, "watch", false, "Apply changes to the settings file while fetching.")
	fs.BoolVar(&f.metrics, "metrics", false, "Dump metrics to stderr when done.")
	return fs
}

type fetchResult struct {
	exec *request.Execution
	err  error
}

func newFetchCmd() *cobra.Command {
	sf := &settingsFlags{}
	ff := &fetchFlags{}
	c := &cobra.Command{
		Use:   "fetch URL...",
		Short: "Fetch URLs through the dispatch service",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFetch(cmd, sf, ff, args)
		},
	}
	c.Flags().SortFlags = false
	c.Flags().AddFlagSet(ff.newFlagSet())
	c.Flags().AddFlagSet(sf.newFlagSet())
	return c
}

func runFetch(cmd *cobra.Command, sf *settingsFlags, ff *fetchFlags, urls []string) error {
	settings, err := sf.load()
	if err != nil {
		return err
	}
	cls, err := class.Parse(ff.class)
	if err != nil {
		return err
	}
	logger, closer, err := logging.New(settings.Log, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer closer.Close()

	svc, err := service.New(settings, service.WithLogger(logger))
	if err != nil {
		return err
	}
	defer func() {
		_ = svc.Stop(context.Background())
	}()

	if ff.watch && sf.path != "" {
		w, err := config.Watch(sf.path, func(s config.Settings, err error) {
			if err != nil {
				logger.Warn("ignoring settings change", "err", err)
				return
			}
			svc.RefreshSettings(s, false)
		})
		if err != nil {
			return err
		}
		defer w.Stop()
	}

	plans := make([]*request.Plan, len(urls))
	for i, u := range urls {
		if plans[i], err = newFetchPlan(cmd.Context(), ff, u); err != nil {
			return err
		}
	}

	var results []fetchResult
	if ff.pool != "" {
		results, err = fetchOnPool(cmd.Context(), svc, cls, ff.pool, plans, logger)
	} else {
		results, err = fetchParallel(svc, cls, ff.parallel, plans)
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if ff.out != "" {
		f, err := os.Create(ff.out)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}
	var errs []error
	for i, r := range results {
		attempts := 0
		status := 0
		if r.exec != nil {
			attempts = r.exec.Attempt + 1
			status = r.exec.StatusCode()
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "%s %d attempts=%d\n", urls[i], status, attempts)
		if r.err != nil {
			errs = append(errs, r.err)
			continue
		}
		if _, err := out.Write(r.exec.Body); err != nil {
			return err
		}
	}

	if ff.metrics {
		if err := svc.Metrics().WriteText(cmd.ErrOrStderr()); err != nil {
			return err
		}
	}
	return errors.Join(errs...)
}

func newFetchPlan(ctx context.Context, ff *fetchFlags, url string) (*request.Plan, error) {
	var body interface{}
	if ff.data != "" {
		body = ff.data
	}
	p, err := request.NewPlanWithContext(ctx, ff.method, url, body)
	if err != nil {
		return nil, err
	}
	for _, h := range ff.headers {
		name, value, ok := strings.Cut(h, ":")
		if !ok {
			return nil, fmt.Errorf("invalid header %q", h)
		}
		p.Header.Add(strings.TrimSpace(name), strings.TrimSpace(value))
	}
	return p, nil
}

func fetchParallel(svc *service.Service, c class.Class, parallel int, plans []*request.Plan) ([]fetchResult, error) {
	results := make([]fetchResult, len(plans))
	var g errgroup.Group
	if parallel > 0 {
		g.SetLimit(parallel)
	}
	for i, p := range plans {
		g.Go(func() error {
			e, err := svc.Do(c, p)
			results[i] = fetchResult{exec: e, err: err}
			return nil
		})
	}
	return results, g.Wait()
}

func fetchOnPool(ctx context.Context, svc *service.Service, c class.Class, pool string, plans []*request.Plan, logger *slog.Logger) ([]fetchResult, error) {
	m := coproc.NewManager(svc.Executor(c),
		coproc.WithControls(func(name string) uint32 {
			return svc.Settings().Controls[name]
		}),
		coproc.WithLogger(logger),
		coproc.WithMetrics(svc.Metrics()))

	results := make([]fetchResult, len(plans))
	var mu sync.Mutex
	for i, p := range plans {
		_, err := m.Enqueue(pool, p.Label(), func(_ context.Context, x corehttp.Executor, _ uuid.UUID) {
			e, err := x.Do(p)
			mu.Lock()
			results[i] = fetchResult{exec: e, err: err}
			mu.Unlock()
		})
		if err != nil {
			_ = m.Shutdown(ctx)
			return nil, err
		}
	}
	if err := m.Shutdown(ctx); err != nil {
		return nil, err
	}
	return results, nil
}
