package main

import (
	"github.com/spf13/cobra"
)

func newAccountsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "Inspect the billing id to bidder account mapping",
	}
	cmd.AddCommand(newAccountsResolveCmd(a), newAccountsRefreshCmd(a), newAccountsListCmd(a))
	return cmd
}

type resolveOutput struct {
	Bidders map[string]*string `json:"bidders"`
	// Common is set when every billing id belongs to the same bidder.
	Common *string `json:"common_bidder_id"`
}

func newAccountsResolveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <billing id>...",
		Short: "Resolve billing ids to their bidder accounts",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			m, err := a.mapper(ctx)
			if err != nil {
				return err
			}
			out := resolveOutput{Bidders: make(map[string]*string, len(args))}
			for _, billingID := range args {
				if id, ok := m.BidderID(ctx, billingID); ok {
					out.Bidders[billingID] = &id
				} else {
					out.Bidders[billingID] = nil
				}
			}
			if id, ok := m.BidderIDForBillingIDs(ctx, args); ok {
				out.Common = &id
			}
			return writeJSON(cmd.OutOrStdout(), out)
		},
	}
}

func newAccountsRefreshCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Reload the mapping from pretargeting_configs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			m, err := a.mapper(ctx)
			if err != nil {
				return err
			}
			if err := m.Refresh(ctx); err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), map[string]int{"mappings": m.Size()})
		},
	}
}

func newAccountsListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List bidder accounts and their billing ids",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			m, err := a.mapper(ctx)
			if err != nil {
				return err
			}
			bidders, err := m.BidderIDs(ctx)
			if err != nil {
				return err
			}
			out := make(map[string][]string, len(bidders))
			for _, b := range bidders {
				ids, err := m.BillingIDsForBidder(ctx, b)
				if err != nil {
					return err
				}
				out[b] = ids
			}
			return writeJSON(cmd.OutOrStdout(), out)
		},
	}
}
