// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pdiddy/markit-mistral/internal/input"
)

var formatsCmd = &cobra.Command{
	Use:   "formats",
	Short: "List supported input formats",
	Run: func(cmd *cobra.Command, args []string) {
		for _, ext := range input.SupportedExtensions() {
			fmt.Fprintf(cmd.OutOrStdout(), "%-6s %s\n", ext, input.MIMEForExtension(ext))
		}
	},
}

func init() {
	rootCmd.AddCommand(formatsCmd)
}
