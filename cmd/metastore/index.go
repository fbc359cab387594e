package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/hupe1980/metastore/model"
	"github.com/spf13/cobra"
)

func newIndexCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Create, inspect and delete indexes",
	}
	cmd.AddCommand(
		newIndexCreateCmd(opts),
		newIndexGetCmd(opts),
		newIndexListCmd(opts),
		newIndexDeleteCmd(opts),
		newIndexResetCmd(opts),
	)
	return cmd
}

func newIndexCreateCmd(opts *rootOptions) *cobra.Command {
	var (
		uri        string
		configFile string
	)
	cmd := &cobra.Command{
		Use:   "create INDEX_ID",
		Short: "Create an index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			idx := model.IndexMetadata{IndexID: args[0], IndexURI: uri}
			if configFile != "" {
				data, err := os.ReadFile(configFile)
				if err != nil {
					return fmt.Errorf("failed to read index config: %w", err)
				}
				if !json.Valid(data) {
					return fmt.Errorf("index config %s is not valid JSON", configFile)
				}
				idx.Config = data
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				created, err := a.ms.CreateIndex(ctx, idx)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), created)
			})
		},
	}
	cmd.Flags().StringVar(&uri, "uri", "", "storage URI of the index")
	cmd.Flags().StringVar(&configFile, "index-config", "", "JSON file holding the opaque index configuration")
	return cmd
}

func newIndexGetCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get INDEX_ID",
		Short: "Show the metadata of an index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				idx, err := a.ms.GetIndex(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), idx)
			})
		},
	}
}

func newIndexListCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all indexes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				indexes, err := a.ms.ListIndexes(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), indexes)
			})
		},
	}
}

func newIndexDeleteCmd(opts *rootOptions) *cobra.Command {
	var force, dryRun bool
	cmd := &cobra.Command{
		Use:   "delete INDEX_ID",
		Short: "Delete an index",
		Long: `Delete an index. Without --force the index must not hold any split.
With --force every split file is deleted first.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				if !force && !dryRun {
					return a.ms.DeleteIndex(ctx, args[0])
				}
				files, err := a.collector().DeleteIndex(ctx, args[0], dryRun)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), files)
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "delete split files and the index")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "list the files a forced delete would remove")
	return cmd
}

func newIndexResetCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reset INDEX_ID",
		Short: "Delete every split of an index and keep the index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				files, err := a.collector().ResetIndex(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), files)
			})
		},
	}
}
