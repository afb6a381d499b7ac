// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/pdiddy/markit-mistral/internal/convert"
	"github.com/pdiddy/markit-mistral/internal/history"
	"github.com/pdiddy/markit-mistral/internal/ocr"
	"github.com/pdiddy/markit-mistral/internal/output"
	"github.com/pdiddy/markit-mistral/internal/secrets"
	"github.com/pdiddy/markit-mistral/pkg/types"
)

// envAliases binds config keys to environment variables. Grouped keys also
// accept the short MARKIT_MISTRAL_<NAME> form; the first set variable wins.
var envAliases = map[string][]string{
	"max_file_size_mb":      {"MARKIT_MISTRAL_MAX_FILE_SIZE_MB"},
	"log_level":             {"MARKIT_MISTRAL_LOG_LEVEL"},
	"ocr.api_key":           {"MARKIT_MISTRAL_OCR_API_KEY", "MISTRAL_API_KEY"},
	"ocr.max_retries":       {"MARKIT_MISTRAL_OCR_MAX_RETRIES", "MARKIT_MISTRAL_MAX_RETRIES"},
	"ocr.retry_delay":       {"MARKIT_MISTRAL_OCR_RETRY_DELAY", "MARKIT_MISTRAL_RETRY_DELAY"},
	"output.include_images": {"MARKIT_MISTRAL_OUTPUT_INCLUDE_IMAGES", "MARKIT_MISTRAL_INCLUDE_IMAGES"},
	"output.base64_images":  {"MARKIT_MISTRAL_OUTPUT_BASE64_IMAGES", "MARKIT_MISTRAL_BASE64_IMAGES"},
	"output.preserve_math":  {"MARKIT_MISTRAL_OUTPUT_PRESERVE_MATH", "MARKIT_MISTRAL_PRESERVE_MATH"},
}

// configureEnv maps MARKIT_MISTRAL_* variables onto config keys.
func configureEnv(v *viper.Viper) {
	v.SetEnvPrefix("MARKIT_MISTRAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range envAliases {
		v.BindEnv(append([]string{key}, names...)...)
	}
}

// secondsToDuration reads a bare number such as "1.5" as seconds. Strings
// with a unit fall through to the duration parser.
func secondsToDuration(from, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String || to != reflect.TypeOf(time.Duration(0)) {
		return data, nil
	}
	secs, err := strconv.ParseFloat(strings.TrimSpace(data.(string)), 64)
	if err != nil {
		return data, nil
	}
	return time.Duration(secs * float64(time.Second)), nil
}

// loadConfig layers flags, environment, and the config file over the
// defaults. The API key falls back to .secrets/mistral-api-key; commands
// that never call the API pass requireKey false.
func loadConfig(v *viper.Viper, requireKey bool) (types.Config, error) {
	cfg := types.DefaultConfig()
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.DecodeHookFuncType(secondsToDuration),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return types.Config{}, types.NewValidationError("config", err.Error())
	}
	cfg.Output.MetadataFormat = types.MetadataFormat(strings.ToLower(string(cfg.Output.MetadataFormat)))

	if cfg.OCR.APIKey == "" {
		key, err := secrets.Lookup(secrets.DefaultDir, secrets.MistralAPIKey, log)
		if err != nil {
			return types.Config{}, err
		}
		if key != "" {
			log.Debug("using API key from " + secrets.DefaultDir)
		}
		cfg.OCR.APIKey = key
	}

	check := cfg
	if !requireKey && check.OCR.APIKey == "" {
		check.OCR.APIKey = "-"
	}
	if err := check.Validate(); err != nil {
		return types.Config{}, err
	}
	return cfg, nil
}

// configureLogger applies the log level; --verbose and --quiet override it.
func configureLogger(l *logrus.Logger, level string, verbose, quiet bool) error {
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	switch {
	case quiet:
		l.SetLevel(logrus.ErrorLevel)
	case verbose:
		l.SetLevel(logrus.DebugLevel)
	default:
		lvl, err := logrus.ParseLevel(level)
		if err != nil {
			return types.NewValidationError("config", fmt.Sprintf("invalid log level %q", level))
		}
		l.SetLevel(lvl)
	}
	return nil
}

// newService wires the OCR client, writer, and optional history ledger.
// The returned close function releases the ledger.
func newService(cfg types.Config) (*convert.Service, func(), error) {
	svc := &convert.Service{
		OCR:         ocr.New(cfg.OCR, cfg.Output.IncludeImages, log),
		Writer:      output.NewWriter(cfg.Output, version, cfg.OCR.Model),
		Logger:      log,
		Output:      cfg.Output,
		Model:       cfg.OCR.Model,
		MaxFileSize: cfg.MaxFileSize(),
		Concurrency: cfg.Concurrency,
	}
	if cfg.HistoryDB == "" {
		return svc, func() {}, nil
	}
	store, err := history.Open(cfg.HistoryDB)
	if err != nil {
		return nil, nil, err
	}
	svc.History = store
	return svc, func() {
		if err := store.Close(); err != nil {
			log.WithError(err).Warn("closing history database")
		}
	}, nil
}
