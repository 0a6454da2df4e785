package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/hollomancer/sbir-analytics-sub004/internal/ingest"
	"github.com/hollomancer/sbir-analytics-sub004/pkg/cache"
	"github.com/hollomancer/sbir-analytics-sub004/pkg/matching"
	"github.com/hollomancer/sbir-analytics-sub004/pkg/resolver"
)

type matchOptions struct {
	references string
	input      string
	output     string
	source     string
	snapshot   string
	fold       bool
}

func newMatchCmd(root *rootOptions) *cobra.Command {
	var opts matchOptions

	cmd := &cobra.Command{
		Use:   "match",
		Short: "Match an input CSV against a reference CSV and write the enriched CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMatch(cmd.Context(), root, opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.references, "references", "", "Reference organizations CSV (required)")
	cmd.Flags().StringVar(&opts.input, "input", "", "Input records CSV (required)")
	cmd.Flags().StringVar(&opts.output, "output", "", "Enriched CSV destination (default: stdout)")
	cmd.Flags().StringVar(&opts.source, "source", "", "Source system recorded on folded records")
	cmd.Flags().StringVar(&opts.snapshot, "snapshot", "", "Crosswalk snapshot to fold accepted matches into (default: CROSSWALK_SNAPSHOT_PATH)")
	cmd.Flags().BoolVar(&opts.fold, "fold", false, "Fold accepted matches into the crosswalk snapshot")

	_ = cmd.MarkFlagRequired("references")
	_ = cmd.MarkFlagRequired("input")

	return cmd
}

func runMatch(ctx context.Context, root *rootOptions, opts matchOptions, stdout io.Writer) error {
	cfg, logger := root.cfg, root.logger

	snapshot := opts.snapshot
	if snapshot == "" {
		snapshot = cfg.CrosswalkSnapshotPath
	}
	if opts.fold && snapshot == "" {
		return fmt.Errorf("--fold needs --snapshot or CROSSWALK_SNAPSHOT_PATH")
	}

	mem, err := cache.NewMemory(cfg.MemoryCacheSize)
	if err != nil {
		return err
	}
	svc := resolver.New(matching.NewMatcher(root.matcher, logger), logger,
		resolver.WithWorkers(cfg.MatchWorkers, cfg.MatchChunkSize),
		resolver.WithCache(mem, cfg.CacheTTL),
		resolver.WithSnapshotPath(snapshot),
	)
	defer svc.Close(ctx)

	if err := loadReferences(ctx, svc, opts.references); err != nil {
		return err
	}
	if opts.fold {
		if err := loadSnapshot(ctx, svc, snapshot); err != nil {
			return err
		}
	}

	in, err := os.Open(opts.input)
	if err != nil {
		return fmt.Errorf("failed to open input file: %w", err)
	}
	defer in.Close()

	records, err := ingest.ReadRecords(ctx, in)
	if err != nil {
		return err
	}

	resp, err := svc.RunBatch(ctx, resolver.BatchRequest{
		Records: records,
		Source:  opts.source,
		Fold:    opts.fold,
	})
	if err != nil {
		return err
	}

	out := stdout
	if opts.output != "" {
		f, err := os.Create(opts.output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		out = f
	}
	if err := ingest.WriteEnriched(out, matching.Enrich(records, resp.Results)); err != nil {
		return err
	}

	logger.WithContext(ctx).WithFields(map[string]any{
		"run_id":  resp.Summary.RunID,
		"records": len(records),
		"folded":  resp.Folded,
	}).Info("Match run complete")

	if opts.fold {
		return svc.SaveSnapshot(ctx)
	}
	return nil
}
