// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/markit-mistral/internal/input"
	"github.com/pdiddy/markit-mistral/pkg/types"
)

var batchCmd = &cobra.Command{
	Use:   "batch <file-or-dir>...",
	Short: "Convert many documents, skipping unchanged ones",
	Long: `Batch converts every supported file named on the command line or found
under the named directories. Each input gets <stem>.md, <stem>_images/, and a
metadata sidecar in --output-dir (or next to the input).

With --history-db set, inputs whose content is unchanged since their last
successful conversion, and whose Markdown still exists, are skipped unless
--force is given.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(viper.GetViper(), true)
		if err != nil {
			return err
		}
		paths, err := expandInputs(args)
		if err != nil {
			return err
		}
		if len(paths) == 0 {
			return types.NewValidationError("batch", "no supported input files found")
		}

		svc, closeSvc, err := newService(cfg)
		if err != nil {
			return err
		}
		defer closeSvc()
		svc.Force, _ = cmd.Flags().GetBool("force")

		outDir, _ := cmd.Flags().GetString("output-dir")
		result := svc.Batch(cmd.Context(), paths, outDir, cmd.OutOrStdout())
		if result.HasFailures() {
			return fmt.Errorf("%d of %d inputs failed", result.Failed, result.Total())
		}
		return nil
	},
}

func init() {
	batchCmd.Flags().String("output-dir", "", "directory for Markdown output (default: next to each input)")
	batchCmd.Flags().Int("concurrency", types.DefaultConcurrency, "number of files converted in parallel")
	batchCmd.Flags().Bool("force", false, "convert inputs even when history shows them unchanged")
	viper.BindPFlag("concurrency", batchCmd.Flags().Lookup("concurrency"))

	rootCmd.AddCommand(batchCmd)
}

// expandInputs returns the named files plus every supported file under the
// named directories, sorted and without duplicates.
func expandInputs(args []string) ([]string, error) {
	seen := map[string]bool{}
	var out []string
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}

	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, types.NewValidationError("batch", fmt.Sprintf("cannot read %s: %v", arg, err))
		}
		if !info.IsDir() {
			add(filepath.Clean(arg))
			continue
		}
		err = filepath.WalkDir(arg, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && input.IsSupported(p) {
				add(p)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("scanning %s: %w", arg, err)
		}
	}
	sort.Strings(out)
	return out, nil
}
