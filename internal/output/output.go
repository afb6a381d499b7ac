// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package output persists a NormalizedDocument: the markdown file, the
// extracted images directory, and the optional metadata sidecar. Every
// file is written through a temporary file and renamed into place.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/markit-mistral/pkg/types"
)

// Tool is the tool name recorded in metadata sidecars.
const Tool = "markit-mistral"

// Paths are the files produced for one markdown output.
type Paths struct {
	Markdown  string `json:"markdown" yaml:"markdown"`
	ImagesDir string `json:"images_dir,omitempty" yaml:"images_dir,omitempty"`
	Metadata  string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// PlanPaths derives the images directory and metadata sidecar paths from
// the markdown path: <dir>/<stem>_images and <dir>/<stem>_metadata.<ext>.
func PlanPaths(markdownPath string, format types.MetadataFormat) Paths {
	dir := filepath.Dir(markdownPath)
	stem := Stem(markdownPath)
	ext := ".json"
	if format == types.MetadataYAML {
		ext = ".yaml"
	}
	return Paths{
		Markdown:  markdownPath,
		ImagesDir: filepath.Join(dir, ImageDirName(markdownPath)),
		Metadata:  filepath.Join(dir, stem+"_metadata"+ext),
	}
}

// ImageDirName is the images directory name relative to the markdown file,
// used as the link directory inside the markdown.
func ImageDirName(markdownPath string) string {
	return Stem(markdownPath) + "_images"
}

// DefaultMarkdownPath places <input stem>.md in dir, or next to the input
// when dir is empty.
func DefaultMarkdownPath(inputPath, dir string) string {
	if dir == "" {
		dir = filepath.Dir(inputPath)
	}
	return filepath.Join(dir, Stem(inputPath)+".md")
}

// AlternateMarkdownPath is the fallback for an input whose default path is
// already taken by another input with the same stem: "<stem>_<ext>.md".
func AlternateMarkdownPath(inputPath, dir string) string {
	if dir == "" {
		dir = filepath.Dir(inputPath)
	}
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(inputPath), "."))
	if ext == "" {
		return filepath.Join(dir, Stem(inputPath)+"_1.md")
	}
	return filepath.Join(dir, Stem(inputPath)+"_"+ext+".md")
}

// ConversionInfo identifies one conversion run in the metadata sidecar.
type ConversionInfo struct {
	ID        string    `json:"id" yaml:"id"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
	Tool      string    `json:"tool" yaml:"tool"`
	Version   string    `json:"version" yaml:"version"`
	Model     string    `json:"model,omitempty" yaml:"model,omitempty"`
}

// ProcessingStats are the timing figures of one conversion, in seconds.
type ProcessingStats struct {
	OCRSeconds       float64 `json:"ocr_seconds" yaml:"ocr_seconds"`
	NormalizeSeconds float64 `json:"normalize_seconds" yaml:"normalize_seconds"`
	TotalSeconds     float64 `json:"total_seconds" yaml:"total_seconds"`
	FileSizeMB       float64 `json:"file_size_mb" yaml:"file_size_mb"`
	ImagesWritten    int     `json:"images_written" yaml:"images_written"`
}

// Sidecar is the content of <stem>_metadata.json.
type Sidecar struct {
	ConversionInfo  ConversionInfo         `json:"conversion_info" yaml:"conversion_info"`
	InputFile       types.InputDescriptor  `json:"input_file" yaml:"input_file"`
	ContentMetadata types.DocumentMetadata `json:"content_metadata" yaml:"content_metadata"`
	ProcessingStats *ProcessingStats       `json:"processing_stats,omitempty" yaml:"processing_stats,omitempty"`
	Warnings        []types.Warning        `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// Writer persists conversion results.
type Writer struct {
	// Metadata enables the sidecar.
	Metadata bool

	// Format selects the sidecar encoding.
	Format types.MetadataFormat

	Version string
	Model   string

	// Now is replaced in tests.
	Now func() time.Time
}

// NewWriter builds a Writer from output settings.
func NewWriter(cfg types.OutputConfig, version, model string) *Writer {
	return &Writer{
		Metadata: cfg.Metadata,
		Format:   cfg.MetadataFormat,
		Version:  version,
		Model:    model,
	}
}

// NewConversionID returns a fresh conversion id.
func NewConversionID() string {
	return uuid.NewString()
}

// Write stores doc at markdownPath along with its images and, when
// enabled, the metadata sidecar recorded under conversion id. An empty id
// gets a new one. Returned Paths leave out what was not written.
func (w *Writer) Write(id, markdownPath string, doc types.NormalizedDocument, in types.InputDescriptor, timing types.Timing) (Paths, error) {
	paths := PlanPaths(markdownPath, w.Format)

	if err := os.MkdirAll(filepath.Dir(markdownPath), 0o755); err != nil {
		return Paths{}, fmt.Errorf("creating output directory: %w", err)
	}
	if err := WriteFileAtomic(markdownPath, []byte(doc.Markdown)); err != nil {
		return Paths{}, fmt.Errorf("writing markdown: %w", err)
	}

	if len(doc.Images) == 0 {
		paths.ImagesDir = ""
	} else {
		if err := os.MkdirAll(paths.ImagesDir, 0o755); err != nil {
			return Paths{}, fmt.Errorf("creating images directory: %w", err)
		}
		for _, img := range doc.Images {
			if err := WriteFileAtomic(filepath.Join(paths.ImagesDir, img.Name), img.Data); err != nil {
				return Paths{}, fmt.Errorf("writing image %s: %w", img.Name, err)
			}
		}
	}

	if !w.Metadata {
		paths.Metadata = ""
		return paths, nil
	}
	data, err := w.encodeSidecar(w.sidecar(id, doc, in, timing))
	if err != nil {
		return Paths{}, err
	}
	if err := WriteFileAtomic(paths.Metadata, data); err != nil {
		return Paths{}, fmt.Errorf("writing metadata: %w", err)
	}
	return paths, nil
}

// WriteMarkdown streams only the markdown, for stdout output.
func WriteMarkdown(out io.Writer, doc types.NormalizedDocument) error {
	_, err := io.WriteString(out, doc.Markdown)
	return err
}

func (w *Writer) sidecar(id string, doc types.NormalizedDocument, in types.InputDescriptor, timing types.Timing) Sidecar {
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	if id == "" {
		id = NewConversionID()
	}
	return Sidecar{
		ConversionInfo: ConversionInfo{
			ID:        id,
			Timestamp: now().UTC(),
			Tool:      Tool,
			Version:   w.Version,
			Model:     w.Model,
		},
		InputFile:       in,
		ContentMetadata: doc.Metadata,
		ProcessingStats: &ProcessingStats{
			OCRSeconds:       timing.OCR.Seconds(),
			NormalizeSeconds: timing.Normalize.Seconds(),
			TotalSeconds:     timing.Total.Seconds(),
			FileSizeMB:       in.SizeMB(),
			ImagesWritten:    len(doc.Images),
		},
		Warnings: doc.Warnings,
	}
}

func (w *Writer) encodeSidecar(s Sidecar) ([]byte, error) {
	if w.Format == types.MetadataYAML {
		data, err := yaml.Marshal(s)
		if err != nil {
			return nil, fmt.Errorf("marshaling metadata YAML: %w", err)
		}
		return data, nil
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling metadata JSON: %w", err)
	}
	return append(data, '\n'), nil
}

// WriteFileAtomic writes data to a temporary file in the destination
// directory and renames it over path.
func WriteFileAtomic(path string, data []byte) error {
	tmpFile, err := os.CreateTemp(filepath.Dir(path), ".markit-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	_, writeErr := tmpFile.Write(data)
	closeErr := tmpFile.Close()
	if writeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("writing temp file: %w", writeErr)
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", closeErr)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("setting permissions: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}
