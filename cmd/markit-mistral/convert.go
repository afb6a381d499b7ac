// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/markit-mistral/internal/convert"
	"github.com/pdiddy/markit-mistral/internal/input"
	"github.com/pdiddy/markit-mistral/internal/output"
	"github.com/pdiddy/markit-mistral/pkg/types"
)

var convertCmd = &cobra.Command{
	Use:   "convert [input]",
	Short: "Convert one PDF or image to Markdown",
	Long: `Convert OCRs a single document. The input is a local file, a URL given
with --url, or stdin when no input is named ("-" also reads stdin). Stdin
input without a recognizable header needs --extension.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runConvert,
}

func init() {
	addConvertFlags(convertCmd)
	rootCmd.AddCommand(convertCmd)
}

func addConvertFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("output", "o", "", "output Markdown file (default: stdout)")
	cmd.Flags().String("url", "", "convert a document from a public http(s) URL")
	cmd.Flags().String("extension", "", "file extension hint for stdin input, e.g. .pdf")
}

func runConvert(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(viper.GetViper(), true)
	if err != nil {
		return err
	}
	svc, closeSvc, err := newService(cfg)
	if err != nil {
		return err
	}
	defer closeSvc()

	outPath, _ := cmd.Flags().GetString("output")
	url, _ := cmd.Flags().GetString("url")
	ctx := cmd.Context()

	var res convert.Result
	switch {
	case url != "":
		if len(args) > 0 {
			return types.NewValidationError("convert", "give either an input file or --url, not both")
		}
		res, err = svc.ConvertURL(ctx, url, outPath)
	case len(args) == 0 || args[0] == "-":
		ext, _ := cmd.Flags().GetString("extension")
		in, rerr := readStdin(cmd.InOrStdin(), ext, cfg.MaxFileSize())
		if rerr != nil {
			return rerr
		}
		res, err = svc.ConvertInput(ctx, in, outPath)
	default:
		res, err = svc.ConvertFile(ctx, args[0], outPath)
	}
	if err != nil {
		return err
	}

	if outPath == "" {
		return output.WriteMarkdown(cmd.OutOrStdout(), res.Document)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "converted: %s -> %s\n", res.Input.Name, res.Paths.Markdown)
	return nil
}

// readStdin reads the whole document from r. ext names the payload type
// when content sniffing is not enough.
func readStdin(r io.Reader, ext string, maxSize int64) (types.InputDescriptor, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxSize+1))
	if err != nil {
		return types.InputDescriptor{}, &types.Error{Kind: types.KindValidation, Op: "stdin", Err: err}
	}
	name := "stdin"
	if ext != "" {
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		name += strings.ToLower(ext)
	}
	return input.FromBytes(name, data, maxSize)
}
