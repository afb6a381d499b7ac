// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// ConversionStatus is the outcome of converting one input.
type ConversionStatus string

const (
	ConversionDone    ConversionStatus = "converted"
	ConversionSkipped ConversionStatus = "skipped"
	ConversionFailed  ConversionStatus = "failed"
)

// ConversionRecord is one row of the conversion history ledger.
type ConversionRecord struct {
	// ID is the conversion id also written to the metadata sidecar.
	ID string `json:"id" yaml:"id"`

	// InputPath is the local path or URL that was converted.
	InputPath string `json:"input_path" yaml:"input_path"`

	// ContentHash is the hex SHA-256 of the input payload.
	ContentHash string `json:"content_hash" yaml:"content_hash"`

	// OutputPath is the markdown file written, empty for stdout output.
	OutputPath string `json:"output_path,omitempty" yaml:"output_path,omitempty"`

	Status    ConversionStatus `json:"status" yaml:"status"`
	Pages     int              `json:"pages" yaml:"pages"`
	Images    int              `json:"images" yaml:"images"`
	Warnings  int              `json:"warnings" yaml:"warnings"`
	Model     string           `json:"model" yaml:"model"`
	Error     string           `json:"error,omitempty" yaml:"error,omitempty"`
	Duration  time.Duration    `json:"duration" yaml:"duration"`
	CreatedAt time.Time        `json:"created_at" yaml:"created_at"`
}
