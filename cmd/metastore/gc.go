package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
)

func newGCCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gc",
		Short: "Delete retired split files",
	}
	cmd.AddCommand(newGCOnceCmd(opts), newGCRunCmd(opts))
	return cmd
}

func newGCOnceCmd(opts *rootOptions) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "once",
		Short: "Run one garbage collection cycle over every index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				if dryRun {
					a.cfg.GC.DryRun = true
				}
				stats, err := a.collector().RunOnce(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), stats)
			})
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "only list the files that would be deleted")
	return cmd
}

func newGCRunCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run garbage collection cycles until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()
			cmd.SetContext(ctx)

			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				err := a.collector().Run(ctx)
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			})
		},
	}
}
