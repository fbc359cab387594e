package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/hupe1980/metastore"
	"github.com/hupe1980/metastore/blobstore"
	"github.com/hupe1980/metastore/gc"
	"github.com/hupe1980/metastore/internal/config"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "metastore",
		Short: "Manage the split catalog of search indexes",
		Long: `metastore keeps the catalog of indexes and their splits in an object
store or a SQLite database and garbage collects retired split files.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to the YAML configuration file")

	cmd.AddCommand(
		newIndexCmd(opts),
		newSplitCmd(opts),
		newGCCmd(opts),
		newServeCmd(opts),
		newConfigCmd(),
	)
	return cmd
}

// app bundles the components opened from the configuration.
type app struct {
	cfg    *config.Config
	store  blobstore.ObjectStore
	ms     *metastore.Metastore
	logger *metastore.Logger
}

func openApp(ctx context.Context, opts *rootOptions, extra ...metastore.Option) (*app, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	store, err := cfg.OpenStore(ctx)
	if err != nil {
		return nil, err
	}
	b, err := cfg.OpenBackend(ctx, store)
	if err != nil {
		return nil, err
	}

	logger := cfg.Logger()
	msOpts := append(cfg.MetastoreOptions(), metastore.WithLogger(logger))
	msOpts = append(msOpts, extra...)

	return &app{
		cfg:    cfg,
		store:  store,
		ms:     metastore.New(b, msOpts...),
		logger: logger,
	}, nil
}

func (a *app) collector() *gc.Collector {
	return gc.New(a.ms, a.store, a.cfg.GCOptions())
}

func (a *app) Close() error {
	return a.ms.Close()
}

// withApp opens the application for the duration of fn.
func withApp(cmd *cobra.Command, opts *rootOptions, fn func(ctx context.Context, a *app) error) (err error) {
	ctx := cmd.Context()
	a, err := openApp(ctx, opts)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, a.Close())
	}()
	return fn(ctx, a)
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
