// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// InputKind identifies how an input is sent to the OCR service.
type InputKind string

const (
	InputPDF   InputKind = "pdf"
	InputImage InputKind = "image"
)

// InputDescriptor describes a validated input file. It is created by the
// input validator and is read-only afterwards.
type InputDescriptor struct {
	// Path is the local file path; empty for stdin input.
	Path string `json:"path,omitempty" yaml:"path,omitempty"`

	// Name is the base file name used for output naming.
	Name string `json:"name" yaml:"name"`

	// Data is the file payload.
	Data []byte `json:"-" yaml:"-"`

	MIMEType  string    `json:"mime_type" yaml:"mime_type"`
	Extension string    `json:"extension" yaml:"extension"`
	Kind      InputKind `json:"kind" yaml:"kind"`

	// Size is the payload size in bytes.
	Size int64 `json:"size_bytes" yaml:"size_bytes"`

	// PageCount is the number of PDF pages, 0 when unknown or for images.
	PageCount int `json:"page_count,omitempty" yaml:"page_count,omitempty"`
}

// SizeMB returns the payload size in megabytes rounded to two decimals.
func (d InputDescriptor) SizeMB() float64 {
	mb := float64(d.Size) / (1024 * 1024)
	return float64(int64(mb*100+0.5)) / 100
}

// PageImage is an inline image returned by the OCR service for one page.
type PageImage struct {
	// ID is the placeholder id used in the page markdown (e.g. "img-0.jpeg").
	ID       string
	Data     []byte
	MIMEType string
}

// PageResult is the OCR output for one page. Placeholders in Markdown refer
// only to Images of the same page.
type PageResult struct {
	Index    int
	Markdown string
	Images   []PageImage
}

// ImageResource is an image the caller must persist next to the markdown.
type ImageResource struct {
	// Name is the relative link target used in the markdown.
	Name     string `json:"name" yaml:"name"`
	Data     []byte `json:"-" yaml:"-"`
	MIMEType string `json:"mime_type" yaml:"mime_type"`
	Page     int    `json:"page" yaml:"page"`
}

// Heading is a markdown heading found in the normalized document.
type Heading struct {
	Level int    `json:"level" yaml:"level"`
	Text  string `json:"text" yaml:"text"`
}

// Link is a markdown link found in the normalized document.
type Link struct {
	Text string `json:"text" yaml:"text"`
	URL  string `json:"url" yaml:"url"`
}

// DocumentMetadata summarizes the content of a normalized document.
type DocumentMetadata struct {
	PageCount  int       `json:"page_count" yaml:"page_count"`
	MathCount  int       `json:"math_equations" yaml:"math_equations"`
	ImageCount int       `json:"images" yaml:"images"`
	TableCount int       `json:"tables" yaml:"tables"`
	WordCount  int       `json:"word_count" yaml:"word_count"`
	CharCount  int       `json:"char_count" yaml:"char_count"`
	LineCount  int       `json:"line_count" yaml:"line_count"`
	Headings   []Heading `json:"headers" yaml:"headers"`
	Links      []Link    `json:"links" yaml:"links"`
}

// NormalizedDocument is the single markdown document produced from a
// sequence of PageResults. The caller owns it and decides how to persist it.
type NormalizedDocument struct {
	Markdown string
	Images   []ImageResource
	Metadata DocumentMetadata
	Warnings []Warning
}

// Timing records how long each stage of a conversion took.
type Timing struct {
	OCR       time.Duration `json:"ocr" yaml:"ocr"`
	Normalize time.Duration `json:"normalize" yaml:"normalize"`
	Total     time.Duration `json:"total" yaml:"total"`
}
