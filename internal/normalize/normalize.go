// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package normalize merges the per-page markdown returned by the OCR service
// into one document: image placeholders are resolved against their own
// page, LaTeX math delimiters are unified, and pipe tables are re-padded.
// Normalize is pure; the same pages and options always produce the same
// bytes.
package normalize

import (
	"regexp"
	"sort"
	"strings"

	"github.com/pdiddy/markit-mistral/pkg/types"
)

// Options controls how pages are merged.
type Options struct {
	// IncludeImages resolves placeholders; when false they are removed.
	IncludeImages bool

	// EmbedImagesBase64 inlines images as data URIs instead of links.
	EmbedImagesBase64 bool

	// ImageDir is the relative directory used in image links.
	ImageDir string

	// ImagePrefix is prepended to extracted image names.
	ImagePrefix string

	// PreserveMath converts \( \) and \[ \] delimiters to $ and $$.
	PreserveMath bool

	// Title, when set, is added as a leading level-1 heading.
	Title string
}

var (
	trailingSpace = regexp.MustCompile(`(?m)[ \t]+$`)
	blankRuns     = regexp.MustCompile(`\n{3,}`)
)

// Normalize produces a NormalizedDocument from OCR pages. An empty page
// sequence is an error: zero pages always means an upstream failure.
func Normalize(pages []types.PageResult, opts Options) (types.NormalizedDocument, error) {
	if len(pages) == 0 {
		return types.NormalizedDocument{}, &types.Error{Kind: types.KindEmptyDocument, Op: "normalize", Err: types.ErrEmptyDocument}
	}

	ordered := append([]types.PageResult(nil), pages...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Index < ordered[j].Index })

	doc := types.NormalizedDocument{Images: []types.ImageResource{}, Warnings: []types.Warning{}}
	parts := make([]string, 0, len(ordered)+1)
	if t := strings.TrimSpace(opts.Title); t != "" {
		parts = append(parts, "# "+t)
	}

	for _, p := range ordered {
		pi := newPageImages(p, opts)
		md := pi.rewrite(p.Markdown)
		doc.Images = append(doc.Images, pi.images...)
		doc.Warnings = append(doc.Warnings, pi.missing...)

		if opts.PreserveMath {
			scan := rewriteMath(md, true)
			md = scan.text
			for _, detail := range scan.malformed {
				doc.Warnings = append(doc.Warnings, types.Warning{Kind: types.WarningMalformedMath, Page: p.Index + 1, Detail: detail})
			}
		}

		md = cleanTables(md)
		if md = strings.Trim(md, "\n"); md != "" {
			parts = append(parts, md)
		}
	}

	doc.Markdown = cleanup(strings.Join(parts, "\n\n"))
	doc.Metadata = Analyze(doc.Markdown)
	doc.Metadata.PageCount = len(ordered)
	return doc, nil
}

// cleanup strips trailing whitespace, collapses runs of blank lines, and
// ends the document with exactly one newline.
func cleanup(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = trailingSpace.ReplaceAllString(s, "")
	s = blankRuns.ReplaceAllString(s, "\n\n")
	s = strings.Trim(s, "\n")
	if s == "" {
		return ""
	}
	return s + "\n"
}
