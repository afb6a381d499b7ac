// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/markit-mistral/internal/input"
)

var infoCmd = &cobra.Command{
	Use:   "info <file>",
	Short: "Validate a file and show its size, type, and page count",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(viper.GetViper(), false)
		if err != nil {
			return err
		}
		d, err := input.Validate(args[0], cfg.MaxFileSize())
		if err != nil {
			return err
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(d)
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintf(tw, "File:\t%s\n", d.Name)
		fmt.Fprintf(tw, "Type:\t%s (%s)\n", d.Kind, d.MIMEType)
		fmt.Fprintf(tw, "Size:\t%.2f MB\n", d.SizeMB())
		if d.PageCount > 0 {
			fmt.Fprintf(tw, "Pages:\t%d\n", d.PageCount)
		}
		return tw.Flush()
	},
}

func init() {
	infoCmd.Flags().Bool("json", false, "print the file descriptor as JSON")
	rootCmd.AddCommand(infoCmd)
}
