package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/hollomancer/sbir-analytics-sub004/internal/database"
	"github.com/hollomancer/sbir-analytics-sub004/internal/repositories/crosswalkrecord"
	"github.com/hollomancer/sbir-analytics-sub004/pkg/matching"
	"github.com/hollomancer/sbir-analytics-sub004/pkg/resolver"
)

func newCrosswalkCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crosswalk",
		Short: "Import and export the crosswalk snapshot",
	}
	cmd.AddCommand(newCrosswalkImportCmd(root), newCrosswalkExportCmd(root))
	return cmd
}

func newCrosswalkImportCmd(root *rootOptions) *cobra.Command {
	var in, snapshot string
	var mirror bool

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Validate a JSON lines export and make it the crosswalk snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCrosswalkImport(cmd.Context(), root, in, snapshotPath(root, snapshot), mirror)
		},
	}

	cmd.Flags().StringVar(&in, "in", "", "JSON lines file to import (required)")
	cmd.Flags().StringVar(&snapshot, "snapshot", "", "Snapshot written on success (default: CROSSWALK_SNAPSHOT_PATH)")
	cmd.Flags().BoolVar(&mirror, "mirror", false, "Also replace the Postgres crosswalk table")
	_ = cmd.MarkFlagRequired("in")

	return cmd
}

func newCrosswalkExportCmd(root *rootOptions) *cobra.Command {
	var out, snapshot string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the crosswalk snapshot as JSON lines",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCrosswalkExport(cmd.Context(), root, snapshotPath(root, snapshot), out, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&out, "out", "", "Destination file (default: stdout)")
	cmd.Flags().StringVar(&snapshot, "snapshot", "", "Snapshot to read (default: CROSSWALK_SNAPSHOT_PATH)")

	return cmd
}

func snapshotPath(root *rootOptions, flag string) string {
	if flag != "" {
		return flag
	}
	return root.cfg.CrosswalkSnapshotPath
}

func runCrosswalkImport(ctx context.Context, root *rootOptions, in, snapshot string, mirror bool) error {
	cfg, logger := root.cfg, root.logger
	if snapshot == "" {
		return fmt.Errorf("--snapshot or CROSSWALK_SNAPSHOT_PATH is required")
	}

	opts := []resolver.Option{resolver.WithSnapshotPath(snapshot)}
	if mirror {
		if !cfg.DatabaseEnabled() {
			return fmt.Errorf("--mirror needs DB_HOST")
		}
		db, err := database.Connect(ctx, cfg.Database(), logger)
		if err != nil {
			return err
		}
		defer db.SQL().Close()
		opts = append(opts, resolver.WithMirror(crosswalkrecord.NewRepository(db, logger)))
	}

	svc := resolver.New(matching.NewMatcher(root.matcher, logger), logger, opts...)
	defer svc.Close(ctx)

	f, err := os.Open(in)
	if err != nil {
		return fmt.Errorf("failed to open import file: %w", err)
	}
	defer f.Close()

	n, err := svc.Import(ctx, f)
	if err != nil {
		return err
	}
	if err := svc.SaveSnapshot(ctx); err != nil {
		return err
	}

	logger.WithContext(ctx).WithFields(map[string]any{
		"records":  n,
		"snapshot": snapshot,
	}).Info("Crosswalk imported")
	return nil
}

func runCrosswalkExport(ctx context.Context, root *rootOptions, snapshot, out string, stdout io.Writer) error {
	logger := root.logger
	if snapshot == "" {
		return fmt.Errorf("--snapshot or CROSSWALK_SNAPSHOT_PATH is required")
	}

	svc := resolver.New(matching.NewMatcher(root.matcher, logger), logger, resolver.WithSnapshotPath(snapshot))
	defer svc.Close(ctx)

	if _, err := svc.LoadSnapshot(ctx); err != nil {
		return err
	}

	w := stdout
	if out != "" {
		f, err := os.Create(out)
		if err != nil {
			return fmt.Errorf("failed to create export file: %w", err)
		}
		defer f.Close()
		w = f
	}
	return svc.Export(ctx, w)
}
