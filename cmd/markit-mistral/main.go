// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the markit-mistral CLI. It converts
// PDFs and images to Markdown through the Mistral OCR API.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/markit-mistral/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

// log is configured by the root command before any subcommand runs.
var log = logrus.New()

// rootCmd converts a single input; subcommands cover batch runs and
// housekeeping.
var rootCmd = &cobra.Command{
	Use:   "markit-mistral [input]",
	Short: "Convert PDFs and images to Markdown with Mistral OCR",
	Long: `markit-mistral sends a PDF or image to the Mistral OCR API and writes
clean Markdown: pages merged in order, math delimiters normalized to $ and $$,
tables aligned, and extracted images saved next to the output.

With no input, the document is read from stdin. With no --output, the
Markdown is written to stdout with images embedded as data URIs.`,
	Args:          cobra.MaximumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return configureLogger(log, viper.GetString("log_level"), viper.GetBool("verbose"), viper.GetBool("quiet"))
	},
	RunE: runConvert,
}

func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "config file (default: ./markit-mistral.yaml or ~/.config/markit-mistral/markit-mistral.yaml)")
	pf.String("api-key", "", "Mistral API key (default: $MISTRAL_API_KEY or .secrets/mistral-api-key)")
	pf.String("model", types.DefaultModel, "OCR model")
	pf.String("base-url", types.DefaultBaseURL, "Mistral API base URL")
	pf.Int("max-retries", types.DefaultMaxRetries, "retries after the first attempt for transient failures")
	pf.Duration("retry-delay", types.DefaultRetryDelay, "base retry backoff, doubled per attempt")
	pf.Duration("timeout", types.DefaultTimeout, "per-request HTTP timeout")
	pf.Bool("inline-pdf", false, "send PDFs as base64 data URIs instead of uploading them")
	pf.Int("max-file-size", types.DefaultMaxFileSizeMB, "maximum input size in MB")
	pf.String("log-level", types.DefaultLogLevel, "log level: debug, info, warn, error")
	pf.BoolP("verbose", "v", false, "debug logging")
	pf.BoolP("quiet", "q", false, "only log errors")
	pf.String("history-db", "", "sqlite conversion history; enables skipping unchanged inputs in batch runs")

	pf.Bool("include-images", true, "extract images from the document")
	pf.Bool("base64-images", false, "embed images as data URIs instead of writing files")
	pf.Bool("preserve-math", true, "normalize LaTeX math delimiters")
	pf.Bool("metadata", true, "write a <stem>_metadata sidecar next to the Markdown")
	pf.String("metadata-format", string(types.MetadataJSON), "metadata sidecar format: json or yaml")
	pf.Bool("title", false, "add a title heading derived from the file name")

	addConvertFlags(rootCmd)

	for key, flag := range flagKeys {
		viper.BindPFlag(key, pf.Lookup(flag))
	}
}

// flagKeys maps configuration keys to persistent flag names.
var flagKeys = map[string]string{
	"ocr.api_key":            "api-key",
	"ocr.model":              "model",
	"ocr.base_url":           "base-url",
	"ocr.max_retries":        "max-retries",
	"ocr.retry_delay":        "retry-delay",
	"ocr.timeout":            "timeout",
	"ocr.inline_pdf":         "inline-pdf",
	"max_file_size_mb":       "max-file-size",
	"log_level":              "log-level",
	"verbose":                "verbose",
	"quiet":                  "quiet",
	"history_db":             "history-db",
	"output.include_images":  "include-images",
	"output.base64_images":   "base64-images",
	"output.preserve_math":   "preserve-math",
	"output.metadata":        "metadata",
	"output.metadata_format": "metadata-format",
	"output.add_title":       "title",
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("markit-mistral")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "markit-mistral"))
		}
	}

	configureEnv(viper.GetViper())

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps an error to the process exit status by its kind.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	switch types.KindOf(err) {
	case types.KindValidation:
		return 2
	case types.KindAuthentication:
		return 3
	case types.KindPermanent:
		return 4
	case types.KindTransient:
		return 5
	case types.KindEmptyDocument:
		return 6
	}
	if errors.Is(err, context.Canceled) {
		return 130
	}
	return 1
}
