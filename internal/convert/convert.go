// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package convert orchestrates one conversion: validate the input, submit
// it for OCR, normalize the pages, and hand the document to the output
// writer. Batch runs fan files out over a bounded worker pool.
package convert

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/markit-mistral/internal/history"
	"github.com/pdiddy/markit-mistral/internal/input"
	"github.com/pdiddy/markit-mistral/internal/normalize"
	"github.com/pdiddy/markit-mistral/internal/output"
	"github.com/pdiddy/markit-mistral/pkg/types"
)

// Submitter sends documents to the OCR service. *ocr.Client implements it.
type Submitter interface {
	Submit(ctx context.Context, in types.InputDescriptor) ([]types.PageResult, error)
	SubmitURL(ctx context.Context, url string) ([]types.PageResult, error)
}

// Ledger records conversions and finds previous successful ones.
// *history.Store implements it.
type Ledger interface {
	LastSuccess(ctx context.Context, inputPath, contentHash string) (types.ConversionRecord, bool, error)
	Record(ctx context.Context, rec types.ConversionRecord) error
}

// Service converts inputs to markdown. Each conversion owns its buffers
// and retry state, so one Service may run many conversions at once.
type Service struct {
	OCR    Submitter
	Writer *output.Writer

	// History is optional; nil disables skip detection and recording.
	History Ledger

	Logger *logrus.Logger

	Output      types.OutputConfig
	Model       string
	MaxFileSize int64

	// Concurrency bounds parallel conversions in Batch (default 1).
	Concurrency int

	// Force converts inputs even when History shows them unchanged.
	Force bool
}

// Result is the outcome of one conversion.
type Result struct {
	ID       string
	Input    types.InputDescriptor
	Document types.NormalizedDocument
	Paths    output.Paths
	Timing   types.Timing
	Status   types.ConversionStatus
}

// BatchResult holds the outcome of a batch conversion run.
type BatchResult struct {
	Converted int
	Skipped   int
	Failed    int

	// Errors maps failed inputs to their error.
	Errors map[string]error
}

// Total returns the total number of inputs processed.
func (r BatchResult) Total() int {
	return r.Converted + r.Skipped + r.Failed
}

// HasFailures reports whether any input failed conversion.
func (r BatchResult) HasFailures() bool {
	return r.Failed > 0
}

// ConvertFile validates the file at inputPath and converts it. An empty
// markdownPath writes nothing; the caller prints Result.Document.
func (s *Service) ConvertFile(ctx context.Context, inputPath, markdownPath string) (Result, error) {
	in, err := input.Validate(inputPath, s.MaxFileSize)
	if err != nil {
		return Result{Status: types.ConversionFailed}, err
	}
	return s.ConvertInput(ctx, in, markdownPath)
}

// ConvertInput converts an already validated input such as stdin.
func (s *Service) ConvertInput(ctx context.Context, in types.InputDescriptor, markdownPath string) (Result, error) {
	start := time.Now()
	res := Result{ID: output.NewConversionID(), Input: in, Status: types.ConversionFailed}
	log := s.logger().WithFields(logrus.Fields{"file": in.Name, "id": res.ID})

	log.WithFields(logrus.Fields{"size_mb": in.SizeMB(), "pages": in.PageCount}).Info("starting conversion")
	pages, err := s.OCR.Submit(ctx, in)
	res.Timing.OCR = time.Since(start)
	if err != nil {
		s.record(ctx, res, in.Path, in.Data, markdownPath, err)
		return res, fmt.Errorf("converting %s: %w", in.Name, err)
	}

	if err := s.finish(ctx, &res, pages, in.Name, in.Data, markdownPath, start); err != nil {
		s.record(ctx, res, in.Path, in.Data, markdownPath, err)
		return res, fmt.Errorf("converting %s: %w", in.Name, err)
	}
	s.record(ctx, res, in.Path, in.Data, markdownPath, nil)
	log.WithFields(logrus.Fields{
		"pages":    res.Document.Metadata.PageCount,
		"images":   len(res.Document.Images),
		"warnings": len(res.Document.Warnings),
		"elapsed":  res.Timing.Total,
	}).Info("conversion complete")
	return res, nil
}

// ConvertURL OCRs a remote document. The URL itself stands in for the
// content when naming images.
func (s *Service) ConvertURL(ctx context.Context, url, markdownPath string) (Result, error) {
	start := time.Now()
	name := urlName(url)
	res := Result{
		ID:     output.NewConversionID(),
		Input:  types.InputDescriptor{Path: url, Name: name, Extension: filepath.Ext(name)},
		Status: types.ConversionFailed,
	}
	s.logger().WithFields(logrus.Fields{"url": url, "id": res.ID}).Info("starting URL conversion")

	pages, err := s.OCR.SubmitURL(ctx, url)
	res.Timing.OCR = time.Since(start)
	if err != nil {
		s.record(ctx, res, url, []byte(url), markdownPath, err)
		return res, fmt.Errorf("converting %s: %w", url, err)
	}
	if err := s.finish(ctx, &res, pages, name, []byte(url), markdownPath, start); err != nil {
		s.record(ctx, res, url, []byte(url), markdownPath, err)
		return res, fmt.Errorf("converting %s: %w", url, err)
	}
	s.record(ctx, res, url, []byte(url), markdownPath, nil)
	return res, nil
}

// finish normalizes pages and writes the document when markdownPath is set.
func (s *Service) finish(ctx context.Context, res *Result, pages []types.PageResult, name string, content []byte, markdownPath string, start time.Time) error {
	normStart := time.Now()
	doc, err := normalize.Normalize(pages, s.normalizeOptions(pages, name, content, markdownPath))
	res.Timing.Normalize = time.Since(normStart)
	if err != nil {
		return err
	}
	res.Document = doc
	for _, w := range doc.Warnings {
		s.logger().WithFields(logrus.Fields{"file": name, "page": w.Page, "kind": w.Kind}).Warn(w.Detail)
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	res.Timing.Total = time.Since(start)
	if markdownPath != "" {
		paths, err := s.writer().Write(res.ID, markdownPath, doc, res.Input, res.Timing)
		if err != nil {
			return err
		}
		res.Paths = paths
	}
	res.Status = types.ConversionDone
	return nil
}

// normalizeOptions maps output settings onto normalizer options. Without a
// markdown path there is nowhere to put image files, so images are
// embedded.
func (s *Service) normalizeOptions(pages []types.PageResult, name string, content []byte, markdownPath string) normalize.Options {
	opts := normalize.Options{
		IncludeImages:     s.Output.IncludeImages,
		EmbedImagesBase64: s.Output.Base64Images || markdownPath == "",
		PreserveMath:      s.Output.PreserveMath,
	}
	if s.Output.AddTitle {
		opts.Title = titleFromName(name)
	}
	if opts.IncludeImages && !opts.EmbedImagesBase64 {
		opts.ImageDir = output.ImageDirName(markdownPath)
		opts.ImagePrefix = output.ImagePrefix(rawMarkdown(pages), name, markdownPath, content)
	}
	return opts
}

// Batch converts inputPaths into outDir (next to each input when empty),
// printing one status line per input to w and a summary at the end. At
// most Concurrency conversions run at once.
func (s *Service) Batch(ctx context.Context, inputPaths []string, outDir string, w io.Writer) BatchResult {
	limit := s.Concurrency
	if limit <= 0 {
		limit = types.DefaultConcurrency
	}

	var (
		mu     sync.Mutex
		result = BatchResult{Errors: map[string]error{}}
	)
	report := func(path string, status types.ConversionStatus, detail string, err error) {
		mu.Lock()
		defer mu.Unlock()
		base := filepath.Base(path)
		switch status {
		case types.ConversionDone:
			result.Converted++
			fmt.Fprintf(w, "converted: %s -> %s\n", base, detail)
		case types.ConversionSkipped:
			result.Skipped++
			fmt.Fprintf(w, "skipped:   %s (%s)\n", base, detail)
		default:
			result.Failed++
			result.Errors[path] = err
			fmt.Fprintf(w, "failed:    %s (%v)\n", base, err)
		}
	}

	mdPaths, planErrs := planOutputs(inputPaths, outDir)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, p := range inputPaths {
		i, p := i, p
		g.Go(func() error {
			if err := planErrs[i]; err != nil {
				report(p, types.ConversionFailed, "", err)
				return nil
			}
			if err := gctx.Err(); err != nil {
				report(p, types.ConversionFailed, "", err)
				return nil
			}
			status, detail, err := s.batchOne(gctx, p, mdPaths[i])
			report(p, status, detail, err)
			return nil
		})
	}
	g.Wait()

	fmt.Fprintf(w, "\nBatch summary: %d converted, %d skipped, %d failed (total: %d)\n",
		result.Converted, result.Skipped, result.Failed, result.Total())
	return result
}

// planOutputs assigns every input its own markdown path before any work
// starts. An input whose stem is already claimed gets "<stem>_<ext>.md";
// when that is taken as well the input is rejected.
func planOutputs(inputPaths []string, outDir string) ([]string, []error) {
	mdPaths := make([]string, len(inputPaths))
	errs := make([]error, len(inputPaths))
	claimed := make(map[string]string, len(inputPaths))
	for i, p := range inputPaths {
		md := output.DefaultMarkdownPath(p, outDir)
		if owner, taken := claimed[md]; taken {
			md = output.AlternateMarkdownPath(p, outDir)
			if _, taken := claimed[md]; taken {
				errs[i] = types.NewValidationError("batch", fmt.Sprintf("output %s for %s is already used by %s", md, p, owner))
				continue
			}
		}
		claimed[md] = p
		mdPaths[i] = md
	}
	return mdPaths, errs
}

func (s *Service) batchOne(ctx context.Context, path, mdPath string) (types.ConversionStatus, string, error) {
	in, err := input.Validate(path, s.MaxFileSize)
	if err != nil {
		return types.ConversionFailed, "", err
	}

	if s.History != nil && !s.Force {
		prev, ok, err := s.History.LastSuccess(ctx, path, history.HashContent(in.Data))
		if err != nil {
			s.logger().WithError(err).WithField("file", in.Name).Warn("history lookup failed")
		}
		if ok && fileExists(prev.OutputPath) {
			return types.ConversionSkipped, "unchanged since " + prev.CreatedAt.Format(time.RFC3339), nil
		}
	}

	res, err := s.ConvertInput(ctx, in, mdPath)
	if err != nil {
		return types.ConversionFailed, "", err
	}
	return types.ConversionDone, res.Paths.Markdown, nil
}

// record stores the conversion in History. Ledger failures are logged so a
// broken history database never fails a conversion.
func (s *Service) record(ctx context.Context, res Result, inputPath string, content []byte, markdownPath string, convErr error) {
	if s.History == nil || inputPath == "" {
		return
	}
	rec := types.ConversionRecord{
		ID:          res.ID,
		InputPath:   inputPath,
		ContentHash: history.HashContent(content),
		OutputPath:  markdownPath,
		Status:      types.ConversionDone,
		Pages:       res.Document.Metadata.PageCount,
		Images:      len(res.Document.Images),
		Warnings:    len(res.Document.Warnings),
		Model:       s.Model,
		Duration:    res.Timing.Total,
	}
	if convErr != nil {
		rec.Status = types.ConversionFailed
		rec.Error = convErr.Error()
	}
	if err := s.History.Record(context.WithoutCancel(ctx), rec); err != nil {
		s.logger().WithError(err).Warn("could not record conversion history")
	}
}

func (s *Service) writer() *output.Writer {
	if s.Writer == nil {
		return output.NewWriter(s.Output, "", s.Model)
	}
	return s.Writer
}

func (s *Service) logger() *logrus.Logger {
	if s.Logger == nil {
		return discardLogger
	}
	return s.Logger
}

var discardLogger = func() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}()

func rawMarkdown(pages []types.PageResult) string {
	parts := make([]string, len(pages))
	for i, p := range pages {
		parts[i] = p.Markdown
	}
	return strings.Join(parts, "\n\n")
}

// titleFromName turns "my_report-v2.pdf" into "my report v2".
func titleFromName(name string) string {
	stem := output.Stem(name)
	return strings.Join(strings.FieldsFunc(stem, func(r rune) bool { return r == '_' || r == '-' }), " ")
}

func urlName(url string) string {
	trimmed := url
	if i := strings.IndexAny(trimmed, "?#"); i >= 0 {
		trimmed = trimmed[:i]
	}
	trimmed = strings.TrimRight(trimmed, "/")
	if i := strings.LastIndexByte(trimmed, '/'); i >= 0 && i < len(trimmed)-1 {
		return trimmed[i+1:]
	}
	return "document"
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}
