package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/hupe1980/metastore/model"
	"github.com/spf13/cobra"
)

func newSplitCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "split",
		Short: "Stage, publish and retire splits",
	}
	cmd.AddCommand(
		newSplitStageCmd(opts),
		newSplitPublishCmd(opts),
		newSplitMarkCmd(opts),
		newSplitListCmd(opts),
	)
	return cmd
}

type stageFlags struct {
	file      string
	splitID   string
	numDocs   uint64
	sizeBytes uint64
	location  string
	start     int64
	end       int64
	tags      []string
}

func (f *stageFlags) splits(cmd *cobra.Command) ([]model.SplitMetadata, error) {
	if f.file != "" {
		data, err := os.ReadFile(f.file)
		if err != nil {
			return nil, fmt.Errorf("failed to read splits file: %w", err)
		}
		var splits []model.SplitMetadata
		if err := json.Unmarshal(data, &splits); err != nil {
			return nil, fmt.Errorf("failed to parse splits file %s: %w", f.file, err)
		}
		return splits, nil
	}

	s := model.SplitMetadata{
		SplitID:   f.splitID,
		NumDocs:   f.numDocs,
		SizeBytes: f.sizeBytes,
		Location:  f.location,
		Tags:      f.tags,
	}
	if s.SplitID == "" {
		s.SplitID = uuid.NewString()
	}
	if cmd.Flags().Changed("start") || cmd.Flags().Changed("end") {
		s.TimeRange = &model.TimeRange{Start: f.start, End: f.end}
	}
	return []model.SplitMetadata{s}, nil
}

func newSplitStageCmd(opts *rootOptions) *cobra.Command {
	f := &stageFlags{}
	cmd := &cobra.Command{
		Use:   "stage INDEX_ID",
		Short: "Stage one split, or a batch read from --file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			splits, err := f.splits(cmd)
			if err != nil {
				return err
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				if err := a.ms.StageSplits(ctx, args[0], splits); err != nil {
					return err
				}
				ids := make([]string, len(splits))
				for i, s := range splits {
					ids[i] = s.SplitID
				}
				return printJSON(cmd.OutOrStdout(), ids)
			})
		},
	}
	cmd.Flags().StringVar(&f.file, "file", "", "JSON file holding an array of splits")
	cmd.Flags().StringVar(&f.splitID, "split-id", "", "split id (generated when empty)")
	cmd.Flags().Uint64Var(&f.numDocs, "num-docs", 0, "number of documents")
	cmd.Flags().Uint64Var(&f.sizeBytes, "size-bytes", 0, "size of the split file")
	cmd.Flags().StringVar(&f.location, "location", "", "location of the split file in the object store")
	cmd.Flags().Int64Var(&f.start, "start", 0, "first timestamp covered by the split")
	cmd.Flags().Int64Var(&f.end, "end", 0, "last timestamp covered by the split")
	cmd.Flags().StringSliceVar(&f.tags, "tag", nil, "tag of the split (repeatable)")
	cmd.MarkFlagsMutuallyExclusive("file", "split-id")
	return cmd
}

func newSplitPublishCmd(opts *rootOptions) *cobra.Command {
	var replaced []string
	cmd := &cobra.Command{
		Use:   "publish INDEX_ID SPLIT_ID...",
		Short: "Publish staged splits, optionally replacing published ones",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				return a.ms.PublishSplits(ctx, args[0], args[1:], replaced)
			})
		},
	}
	cmd.Flags().StringSliceVar(&replaced, "replace", nil, "published split replaced by this publish (repeatable)")
	return cmd
}

func newSplitMarkCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mark INDEX_ID SPLIT_ID...",
		Short: "Mark splits for deletion",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				return a.ms.MarkSplitsForDeletion(ctx, args[0], args[1:])
			})
		},
	}
}

func newSplitListCmd(opts *rootOptions) *cobra.Command {
	var (
		states     []string
		tags       []string
		start, end int64
	)
	cmd := &cobra.Command{
		Use:   "list INDEX_ID",
		Short: "List the splits of an index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := model.ListSplitsQuery{Tags: tags}
			for _, name := range states {
				st, err := model.ParseSplitState(name)
				if err != nil {
					return err
				}
				q.States = append(q.States, st)
			}
			if cmd.Flags().Changed("start") || cmd.Flags().Changed("end") {
				tr := model.TimeRange{Start: start, End: end}
				if !cmd.Flags().Changed("end") {
					tr.End = 1<<63 - 1
				}
				q.TimeRange = &tr
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				splits, err := a.ms.ListSplits(ctx, args[0], q)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), splits)
			})
		},
	}
	cmd.Flags().StringSliceVar(&states, "state", nil, "split state filter: Staged, Published or MarkedForDeletion (repeatable)")
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "tag every returned split must carry (repeatable)")
	cmd.Flags().Int64Var(&start, "start", 0, "start of the time range filter")
	cmd.Flags().Int64Var(&end, "end", 0, "end of the time range filter")
	return cmd
}
