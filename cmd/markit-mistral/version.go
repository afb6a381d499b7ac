package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version of markit-mistral",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "markit-mistral %s\n", version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
