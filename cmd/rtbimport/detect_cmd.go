package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ignite/rtb-ingest/internal/ingest"
	"github.com/ignite/rtb-ingest/internal/reports"
)

type detectOutput struct {
	File        string            `json:"file"`
	ReportType  reports.Type      `json:"report_type"`
	ReportName  string            `json:"report_name"`
	TargetTable string            `json:"target_table,omitempty"`
	Description string            `json:"description"`
	Columns     map[string]string `json:"columns,omitempty"`
	Missing     []string          `json:"missing_columns,omitempty"`
	Message     string            `json:"message,omitempty"`
}

func detectFile(ctx context.Context, a *app, src string) (detectOutput, reports.Detection, error) {
	out := detectOutput{File: src}
	fetcher, err := a.fetcher(ctx, []string{src})
	if err != nil {
		return out, reports.Detection{}, err
	}
	local, cleanup, err := fetcher.Fetch(ctx, src)
	if err != nil {
		return out, reports.Detection{}, err
	}
	defer cleanup()

	det, err := ingest.Detect(local)
	if err != nil {
		return out, det, err
	}
	out.ReportType = det.Type
	out.ReportName = det.Type.Name()
	out.TargetTable = det.Type.Table()
	out.Description = det.Type.Description()
	if len(det.Columns) > 0 {
		out.Columns = make(map[string]string, len(det.Columns))
		for f, h := range det.Columns {
			out.Columns[string(f)] = h
		}
	}
	for _, f := range det.Missing {
		out.Missing = append(out.Missing, reports.Label(f))
	}
	switch {
	case det.Type == reports.Unknown:
		out.Message = det.UnknownMessage()
	case len(det.Missing) > 0:
		out.Message = det.MissingMessage()
	}
	return out, det, nil
}

func newDetectCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "detect <file>",
		Short: "Print the detected report type and column mapping of a CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, _, err := detectFile(cmd.Context(), a, args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), out)
		},
	}
}

func newValidateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>",
		Short: "Check a CSV has every required column and explain how to fix it if not",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, det, err := detectFile(cmd.Context(), a, args[0])
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			switch {
			case det.Type == reports.Unknown:
				fmt.Fprintln(w, out.Message)
				fmt.Fprintln(w)
				fmt.Fprintln(w, reports.Instructions())
				return errors.New("unrecognized report")
			case len(det.Missing) > 0:
				fmt.Fprintln(w, out.Message)
				fmt.Fprintln(w)
				fmt.Fprintln(w, reports.FixInstructions(det.Type, det.Missing))
				return errors.New("missing required columns")
			}
			fmt.Fprintf(w, "OK: %s report, imports into %s\n", det.Type.Name(), det.Type.Table())
			return nil
		},
	}
}

func newInstructionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "instructions",
		Short: "Print how to configure each supported report in Authorized Buyers",
		Args:  cobra.NoArgs,
		// Needs no config or connections.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), reports.Instructions())
		},
	}
}
