package types

import (
	"fmt"
	"strings"
	"time"
)

const (
	// DefaultModel is the Mistral OCR model used when none is configured.
	DefaultModel = "mistral-ocr-latest"

	// DefaultBaseURL is the Mistral API root.
	DefaultBaseURL = "https://api.mistral.ai"

	DefaultMaxRetries    = 3
	DefaultRetryDelay    = 1 * time.Second
	DefaultTimeout       = 120 * time.Second
	DefaultMaxFileSizeMB = 50
	DefaultLogLevel      = "info"
	DefaultConcurrency   = 1
)

// HTTPConfig holds shared HTTP settings for calls to the OCR service.
type HTTPConfig struct {
	// Timeout is the per-attempt HTTP request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests.
	UserAgent string `json:"user_agent" yaml:"user_agent" mapstructure:"user_agent"`
}

// OCRConfig holds settings for the request pipeline.
type OCRConfig struct {
	HTTPConfig `yaml:",inline" mapstructure:",squash"`

	// APIKey authenticates against the Mistral API.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`

	// Model is the OCR model identifier (default mistral-ocr-latest).
	Model string `json:"model" yaml:"model" mapstructure:"model"`

	// BaseURL is the API root; tests point it at an httptest server.
	BaseURL string `json:"base_url" yaml:"base_url" mapstructure:"base_url"`

	// MaxRetries is the number of retries after the first attempt (default 3).
	MaxRetries int `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`

	// RetryDelay is the base backoff delay; attempt n waits RetryDelay * 2^(n-1).
	RetryDelay time.Duration `json:"retry_delay" yaml:"retry_delay" mapstructure:"retry_delay"`

	// InlinePDF sends PDFs as a base64 data URI instead of uploading them first.
	InlinePDF bool `json:"inline_pdf" yaml:"inline_pdf" mapstructure:"inline_pdf"`
}

// MetadataFormat selects the encoding of the metadata sidecar.
type MetadataFormat string

const (
	MetadataJSON MetadataFormat = "json"
	MetadataYAML MetadataFormat = "yaml"
)

// OutputConfig holds settings for the normalizer and the output writer.
type OutputConfig struct {
	// IncludeImages extracts images; when false, placeholders are stripped.
	IncludeImages bool `json:"include_images" yaml:"include_images" mapstructure:"include_images"`

	// Base64Images embeds images as data URIs instead of writing files.
	Base64Images bool `json:"base64_images" yaml:"base64_images" mapstructure:"base64_images"`

	// PreserveMath normalizes LaTeX math delimiters.
	PreserveMath bool `json:"preserve_math" yaml:"preserve_math" mapstructure:"preserve_math"`

	// Metadata writes a <stem>_metadata sidecar next to the markdown.
	Metadata bool `json:"metadata" yaml:"metadata" mapstructure:"metadata"`

	// MetadataFormat is json or yaml.
	MetadataFormat MetadataFormat `json:"metadata_format" yaml:"metadata_format" mapstructure:"metadata_format"`

	// AddTitle prepends a "# Title" heading derived from the input file name.
	AddTitle bool `json:"add_title" yaml:"add_title" mapstructure:"add_title"`
}

// Config groups every setting of a conversion run.
type Config struct {
	OCR    OCRConfig    `json:"ocr" yaml:"ocr" mapstructure:"ocr"`
	Output OutputConfig `json:"output" yaml:"output" mapstructure:"output"`

	// MaxFileSizeMB bounds the accepted input size (default 50).
	MaxFileSizeMB int `json:"max_file_size_mb" yaml:"max_file_size_mb" mapstructure:"max_file_size_mb"`

	// LogLevel is a logrus level name: debug, info, warn, error.
	LogLevel string `json:"log_level" yaml:"log_level" mapstructure:"log_level"`

	// Concurrency is the number of files converted in parallel by batch runs.
	Concurrency int `json:"concurrency" yaml:"concurrency" mapstructure:"concurrency"`

	// HistoryDB is the path of the sqlite conversion ledger; empty disables it.
	HistoryDB string `json:"history_db" yaml:"history_db" mapstructure:"history_db"`
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() Config {
	return Config{
		OCR: OCRConfig{
			HTTPConfig: HTTPConfig{
				Timeout:   DefaultTimeout,
				UserAgent: "markit-mistral/0.1",
			},
			Model:      DefaultModel,
			BaseURL:    DefaultBaseURL,
			MaxRetries: DefaultMaxRetries,
			RetryDelay: DefaultRetryDelay,
		},
		Output: OutputConfig{
			IncludeImages:  true,
			PreserveMath:   true,
			Metadata:       true,
			MetadataFormat: MetadataJSON,
		},
		MaxFileSizeMB: DefaultMaxFileSizeMB,
		LogLevel:      DefaultLogLevel,
		Concurrency:   DefaultConcurrency,
	}
}

// MaxFileSize returns the input size limit in bytes.
func (c Config) MaxFileSize() int64 {
	return int64(c.MaxFileSizeMB) * 1024 * 1024
}

var validLogLevels = map[string]bool{
	"trace": true, "debug": true, "info": true,
	"warn": true, "warning": true, "error": true,
}

// Validate rejects an empty API key and non-positive numeric settings.
func (c Config) Validate() error {
	if strings.TrimSpace(c.OCR.APIKey) == "" {
		return NewValidationError("config", "Mistral API key is required: set MISTRAL_API_KEY, --api-key, or .secrets/mistral-api-key")
	}
	if c.OCR.MaxRetries <= 0 {
		return NewValidationError("config", fmt.Sprintf("max_retries must be positive, got %d", c.OCR.MaxRetries))
	}
	if c.OCR.RetryDelay <= 0 {
		return NewValidationError("config", fmt.Sprintf("retry_delay must be positive, got %v", c.OCR.RetryDelay))
	}
	if c.OCR.Timeout <= 0 {
		return NewValidationError("config", fmt.Sprintf("timeout must be positive, got %v", c.OCR.Timeout))
	}
	if c.MaxFileSizeMB <= 0 {
		return NewValidationError("config", fmt.Sprintf("max_file_size_mb must be positive, got %d", c.MaxFileSizeMB))
	}
	if c.Concurrency <= 0 {
		return NewValidationError("config", fmt.Sprintf("concurrency must be positive, got %d", c.Concurrency))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		return NewValidationError("config", fmt.Sprintf("invalid log level %q", c.LogLevel))
	}
	switch c.Output.MetadataFormat {
	case MetadataJSON, MetadataYAML, "":
	default:
		return NewValidationError("config", fmt.Sprintf("unsupported metadata format %q: use json or yaml", c.Output.MetadataFormat))
	}
	return nil
}
