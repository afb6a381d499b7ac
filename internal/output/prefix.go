// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package output

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"regexp"
	"strings"
)

const (
	hashLength   = 6
	maxSlugRunes = 50
)

// skippedHeadings are section titles too common to identify a document.
var skippedHeadings = map[string]bool{
	"introduction":      true,
	"abstract":          true,
	"contents":          true,
	"table of contents": true,
	"summary":           true,
	"overview":          true,
	"background":        true,
	"preface":           true,
	"foreword":          true,
	"keywords":          true,
	"references":        true,
	"acknowledgments":   true,
	"acknowledgements":  true,
}

// genericStems are input file names that say nothing about the content.
var genericStems = map[string]bool{
	"document": true, "doc": true, "file": true, "scan": true, "image": true,
	"img": true, "input": true, "output": true, "untitled": true, "download": true,
	"stdin": true, "page": true, "pdf": true,
}

var (
	headingLine  = regexp.MustCompile(`(?m)^#{1,6}[ \t]+(.+?)[ \t#]*$`)
	numberPrefix = regexp.MustCompile(`^(\d+(\.\d+)*\.?|[ivxlc]+\.)\s+`)
	nonSlug      = regexp.MustCompile(`[^a-z0-9]+`)
)

// ImagePrefix names the images of one conversion. It is the slug of the
// first meaningful heading in markdown, falling back to the input stem and
// then the output stem when the input name is generic, followed by "-" and
// the first six hex digits of the SHA-256 of content.
func ImagePrefix(markdown, inputName, outputPath string, content []byte) string {
	slug := headingSlug(markdown)
	if slug == "" {
		stem := Stem(inputName)
		if !genericStems[strings.ToLower(stem)] {
			slug = Slugify(stem)
		}
	}
	if slug == "" && outputPath != "" {
		slug = Slugify(Stem(outputPath))
	}
	if slug == "" {
		slug = "document"
	}
	return slug + "-" + ContentHash(content, hashLength)
}

// ContentHash returns the first n hex digits of the SHA-256 of data.
func ContentHash(data []byte, n int) string {
	sum := sha256.Sum256(data)
	h := hex.EncodeToString(sum[:])
	if n <= 0 || n > len(h) {
		return h
	}
	return h[:n]
}

// Slugify lowercases s and joins its alphanumeric runs with "-".
// Apostrophes are dropped so "Alzheimer's" becomes "alzheimers".
func Slugify(s string) string {
	s = strings.ToLower(s)
	s = strings.NewReplacer("'", "", "\u2019", "").Replace(s)
	s = strings.Trim(nonSlug.ReplaceAllString(s, "-"), "-")
	if len(s) > maxSlugRunes {
		s = s[:maxSlugRunes]
		if i := strings.LastIndexByte(s, '-'); i > 0 {
			s = s[:i]
		}
	}
	return s
}

// Stem returns the base name of path without its extension.
func Stem(path string) string {
	base := filepath.Base(path)
	if base == "." || base == string(filepath.Separator) {
		return ""
	}
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func headingSlug(markdown string) string {
	for _, m := range headingLine.FindAllStringSubmatch(markdown, -1) {
		title := strings.TrimSpace(m[1])
		bare := numberPrefix.ReplaceAllString(strings.ToLower(title), "")
		if skippedHeadings[strings.Trim(bare, " .:")] {
			continue
		}
		if slug := Slugify(title); slug != "" {
			return slug
		}
	}
	return ""
}
