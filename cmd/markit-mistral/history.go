// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/markit-mistral/internal/history"
	"github.com/pdiddy/markit-mistral/pkg/types"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect the conversion history database",
	Long: `History reads the sqlite ledger named by --history-db (or history_db in
the config file). Batch runs record every conversion there.`,
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show recent conversions, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openHistory()
		if err != nil {
			return err
		}
		defer store.Close()

		limit, _ := cmd.Flags().GetInt("limit")
		recs, err := store.List(cmd.Context(), limit)
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "WHEN\tSTATUS\tPAGES\tINPUT\tOUTPUT")
		for _, r := range recs {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n",
				r.CreatedAt.Local().Format(time.DateTime), r.Status, r.Pages, r.InputPath, r.OutputPath)
		}
		return tw.Flush()
	},
}

var historyExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the full history as YAML or JSON",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openHistory()
		if err != nil {
			return err
		}
		defer store.Close()

		format, _ := cmd.Flags().GetString("format")
		switch format {
		case "yaml":
			return store.ExportYAML(cmd.Context(), cmd.OutOrStdout())
		case "json":
			return store.ExportJSON(cmd.Context(), cmd.OutOrStdout())
		default:
			return types.NewValidationError("history", fmt.Sprintf("unsupported export format %q: use yaml or json", format))
		}
	},
}

func init() {
	historyListCmd.Flags().Int("limit", history.DefaultLimit, "maximum number of conversions to show")
	historyExportCmd.Flags().String("format", "yaml", "export format: yaml or json")

	historyCmd.AddCommand(historyListCmd, historyExportCmd)
	rootCmd.AddCommand(historyCmd)
}

func openHistory() (*history.Store, error) {
	cfg, err := loadConfig(viper.GetViper(), false)
	if err != nil {
		return nil, err
	}
	if cfg.HistoryDB == "" {
		return nil, types.NewValidationError("history", "no history database configured: set --history-db or history_db")
	}
	return history.Open(cfg.HistoryDB)
}
