// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package input validates and classifies files before they are sent to the
// OCR service. It produces the read-only InputDescriptor the request
// pipeline trusts.
package input

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/pdiddy/markit-mistral/pkg/types"
)

const op = "validate"

var pdfMagic = []byte("%PDF-")

// kindByExt is the supported input set.
var kindByExt = map[string]types.InputKind{
	".pdf":  types.InputPDF,
	".png":  types.InputImage,
	".jpg":  types.InputImage,
	".jpeg": types.InputImage,
	".gif":  types.InputImage,
	".webp": types.InputImage,
	".bmp":  types.InputImage,
	".tif":  types.InputImage,
	".tiff": types.InputImage,
}

// SupportedExtensions returns the accepted file extensions in sorted order.
func SupportedExtensions() []string {
	exts := make([]string, 0, len(kindByExt))
	for ext := range kindByExt {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// IsSupported reports whether path has a supported extension.
func IsSupported(path string) bool {
	_, ok := kindByExt[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Validate reads the file at path and returns its descriptor. It rejects
// missing files, directories, empty files, files over maxSize bytes,
// unsupported extensions, and content that does not match the extension.
func Validate(path string, maxSize int64) (types.InputDescriptor, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return types.InputDescriptor{}, types.NewValidationError(op, fmt.Sprintf("file not found: %s", path))
		}
		return types.InputDescriptor{}, &types.Error{Kind: types.KindValidation, Op: op, Detail: path, Err: err}
	}
	if info.IsDir() {
		return types.InputDescriptor{}, types.NewValidationError(op, fmt.Sprintf("%s is a directory", path))
	}
	if !IsSupported(path) {
		return types.InputDescriptor{}, unsupported(path)
	}
	if err := checkSize(path, info.Size(), maxSize); err != nil {
		return types.InputDescriptor{}, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return types.InputDescriptor{}, &types.Error{Kind: types.KindValidation, Op: op, Detail: "reading " + path, Err: err}
	}

	d, err := FromBytes(filepath.Base(path), data, maxSize)
	if err != nil {
		return types.InputDescriptor{}, err
	}
	d.Path = path
	return d, nil
}

// FromBytes validates an in-memory payload such as stdin. The extension of
// name is used when present; otherwise the type is sniffed from content.
func FromBytes(name string, data []byte, maxSize int64) (types.InputDescriptor, error) {
	if err := checkSize(name, int64(len(data)), maxSize); err != nil {
		return types.InputDescriptor{}, err
	}

	sniffed := SniffMIME(data)
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		ext = extensionFromSniff(sniffed)
		if name == "" {
			name = "stdin" + ext
		} else {
			name += ext
		}
	}

	kind, ok := kindByExt[ext]
	if !ok {
		return types.InputDescriptor{}, unsupported(name)
	}

	d := types.InputDescriptor{
		Name:      name,
		Data:      data,
		Extension: ext,
		Kind:      kind,
		MIMEType:  MIMEForExtension(ext),
		Size:      int64(len(data)),
	}

	switch kind {
	case types.InputPDF:
		if !bytes.HasPrefix(data, pdfMagic) {
			return types.InputDescriptor{}, types.NewValidationError(op, fmt.Sprintf("invalid PDF file: %s (missing %%PDF- header)", name))
		}
		d.PageCount = CountPages(data)
	case types.InputImage:
		if !strings.HasPrefix(sniffed, "image/") {
			return types.InputDescriptor{}, types.NewValidationError(op, fmt.Sprintf("invalid image file: %s (detected %s)", name, sniffed))
		}
		d.MIMEType = sniffed
	}
	return d, nil
}

// CountPages returns the page count of a PDF, or 0 when the document
// cannot be parsed. The parser panics on some malformed inputs.
func CountPages(data []byte) (n int) {
	defer func() {
		if recover() != nil {
			n = 0
		}
	}()
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0
	}
	return r.NumPage()
}

func checkSize(name string, size, maxSize int64) error {
	if size == 0 {
		return types.NewValidationError(op, fmt.Sprintf("%s is empty", name))
	}
	if maxSize > 0 && size > maxSize {
		return types.NewValidationError(op, fmt.Sprintf("file too large: %s (%.1f MB), maximum allowed size: %.0f MB",
			name, float64(size)/(1024*1024), float64(maxSize)/(1024*1024)))
	}
	return nil
}

func unsupported(name string) error {
	return types.NewValidationError(op, fmt.Sprintf("unsupported file type: %s (supported formats: %s)",
		name, strings.Join(SupportedExtensions(), ", ")))
}

// extensionFromSniff maps a sniffed MIME type to a supported extension, or
// "" when the content is not a supported type.
func extensionFromSniff(mime string) string {
	if mime == "application/pdf" {
		return ".pdf"
	}
	if strings.HasPrefix(mime, "image/") {
		ext := ExtensionForMIME(mime)
		if _, ok := kindByExt[ext]; ok {
			return ext
		}
	}
	return ""
}
