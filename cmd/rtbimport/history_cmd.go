package main

import (
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/ignite/rtb-ingest/internal/ingest"
	"github.com/ignite/rtb-ingest/internal/repository/postgres"
)

func newHistoryCmd(a *app) *cobra.Command {
	var (
		limit int
		daily bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent imports, or daily upload totals with anomaly flags",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, err := a.openDB(ctx)
			if err != nil {
				return err
			}
			repo := postgres.NewHistoryRepo(db)
			if daily {
				days, err := repo.DailySummaries(ctx, limit)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), days)
			}
			entries, err := repo.Recent(ctx, limit)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), entries)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Number of imports (or days with --daily) to show")
	cmd.Flags().BoolVar(&daily, "daily", false, "Show daily_upload_summary instead of individual imports")
	return cmd
}

func newProgressCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "progress <batch id>",
		Short: "Show the live progress snapshot of an import published to Redis",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client, err := a.openRedis(ctx)
			if err != nil {
				return err
			}
			if client == nil {
				return errors.New("REDIS_URL is required")
			}
			snap, err := ingest.NewRedisProgress(client, a.cfg.Import.ProgressTTL()).Get(ctx, args[0])
			if errors.Is(err, redis.Nil) {
				return fmt.Errorf("no progress for batch %s (finished more than %s ago or never started)", args[0], a.cfg.Import.ProgressTTL())
			}
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), snap)
		},
	}
}
