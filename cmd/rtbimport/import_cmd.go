package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ignite/rtb-ingest/internal/ingest"
	"github.com/ignite/rtb-ingest/internal/pkg/logger"
	"github.com/ignite/rtb-ingest/internal/reports"
)

func newImportCmd(a *app) *cobra.Command {
	var (
		bidderID     string
		batchSize    int
		maxRowErrors int
	)

	cmd := &cobra.Command{
		Use:   "import <file|s3://bucket/key|s3://bucket/prefix/>...",
		Short: "Detect the report type of each CSV and import it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			defer a.pushMetrics()

			orch, err := a.orchestrator(ctx)
			if err != nil {
				return err
			}
			fetcher, err := a.fetcher(ctx, args)
			if err != nil {
				return err
			}

			opts := ingest.Options{
				BidderID:      a.cfg.Import.BidderID,
				BatchSize:     a.cfg.Import.BatchSize,
				MaxRowErrors:  a.cfg.Import.MaxRowErrors,
				ProgressEvery: a.cfg.Import.ProgressEvery,
			}
			if bidderID != "" {
				opts.BidderID = bidderID
			}
			if batchSize > 0 {
				opts.BatchSize = batchSize
			}
			if maxRowErrors > 0 {
				opts.MaxRowErrors = maxRowErrors
			}

			var summaries []ingest.Summary
			for _, arg := range args {
				sources, err := fetcher.Expand(ctx, arg)
				if err != nil {
					summaries = append(summaries, failure(err))
					continue
				}
				for _, src := range sources {
					local, cleanup, err := fetcher.Fetch(ctx, src)
					if err != nil {
						summaries = append(summaries, failure(err))
						continue
					}
					summaries = append(summaries, orch.SmartImport(ctx, local, opts))
					cleanup()
				}
			}

			if err := writeJSON(cmd.OutOrStdout(), summaries); err != nil {
				return err
			}
			failed := 0
			for _, s := range summaries {
				if !s.Success {
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d imports failed", failed, len(summaries))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&bidderID, "bidder", "", "Attribute every row to this bidder account instead of inferring it")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "Rows per transaction (default from config)")
	cmd.Flags().IntVar(&maxRowErrors, "max-errors", 0, "Row errors kept in each summary (default from config)")
	return cmd
}

func failure(err error) ingest.Summary {
	logger.Error("import source failed", "error", err)
	return ingest.Summary{ReportType: reports.Unknown, ReportName: reports.Unknown.Name(), ErrorMessage: err.Error()}
}
