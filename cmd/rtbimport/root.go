package main

import (
	"github.com/spf13/cobra"

	"github.com/ignite/rtb-ingest/internal/config"
	"github.com/ignite/rtb-ingest/internal/pkg/logger"
)

func newRootCmd() *cobra.Command {
	a := &app{}
	var (
		configPath string
		logLevel   string
	)

	cmd := &cobra.Command{
		Use:          "rtbimport",
		Short:        "Import Google Authorized Buyers RTB report CSVs into Postgres",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFromEnv(configPath)
			if err != nil {
				return err
			}
			if logLevel != "" {
				cfg.Logging.Level = logLevel
			}
			logger.SetLevel(logger.ParseLevel(cfg.Logging.Level))
			a.cfg = cfg
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.close()
		},
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", "config/rtbimport.yaml", "Path to the YAML config file")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override the configured log level (debug, info, warn, error)")

	cmd.AddCommand(
		newImportCmd(a),
		newDetectCmd(a),
		newValidateCmd(a),
		newInstructionsCmd(),
		newAccountsCmd(a),
		newHistoryCmd(a),
		newProgressCmd(a),
	)
	return cmd
}
