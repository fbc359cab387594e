package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/hupe1980/metastore"
	"github.com/hupe1980/metastore/internal/httpapi"
	"github.com/hupe1980/metastore/metrics/prom"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func signalContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and run the garbage collector",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

			a, err := openApp(ctx, opts, metastore.WithMetricsCollector(prom.New(reg)))
			if err != nil {
				return err
			}
			defer func() {
				err = errors.Join(err, a.Close())
			}()

			if addr == "" {
				addr = a.cfg.Server.Addr
			}
			collector := a.collector()
			srv := httpapi.NewServer(a.ms, addr,
				httpapi.WithGarbageCollector(collector),
				httpapi.WithMetricsHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})),
				httpapi.WithLogger(a.logger),
			)

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return srv.ListenAndServe(ctx)
			})
			if a.cfg.GC.Enabled {
				g.Go(func() error {
					if err := collector.Run(ctx); !errors.Is(err, context.Canceled) {
						return err
					}
					return nil
				})
			}
			return g.Wait()
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	return cmd
}
