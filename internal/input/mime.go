// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package input

import (
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// extToMIME maps supported extensions to the MIME type sent to the OCR API.
var extToMIME = map[string]string{
	".pdf":  "application/pdf",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
	".bmp":  "image/bmp",
	".tif":  "image/tiff",
	".tiff": "image/tiff",
}

// mimeToExt is the preferred extension per image MIME subtype.
var mimeToExt = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/jpg":  ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
	"image/bmp":  ".bmp",
	"image/tiff": ".tiff",
}

// SniffMIME detects the MIME type from content, without parameters.
func SniffMIME(data []byte) string {
	m := mimetype.Detect(data).String()
	if i := strings.IndexByte(m, ';'); i >= 0 {
		m = m[:i]
	}
	return m
}

// MIMEForExtension returns the MIME type of a supported extension, or
// "application/octet-stream".
func MIMEForExtension(ext string) string {
	if m, ok := extToMIME[strings.ToLower(ext)]; ok {
		return m
	}
	return "application/octet-stream"
}

// ExtensionForMIME returns a file extension for an image MIME type. Unknown
// image subtypes use the subtype itself; anything unparseable falls back
// to ".jpg".
func ExtensionForMIME(mime string) string {
	mime = strings.ToLower(strings.TrimSpace(mime))
	if ext, ok := mimeToExt[mime]; ok {
		return ext
	}
	if _, sub, ok := strings.Cut(mime, "/"); ok && sub != "" && !strings.ContainsAny(sub, " ;,") {
		return "." + sub
	}
	return ".jpg"
}

// ParseDataURI splits "data:<mime>;base64,<payload>" into its MIME type and
// payload. ok is false when s has no data URI header.
func ParseDataURI(s string) (mime, payload string, ok bool) {
	if !strings.HasPrefix(s, "data:") {
		return "", s, false
	}
	header, payload, found := strings.Cut(s, ",")
	if !found {
		return "", s, false
	}
	header = strings.TrimPrefix(header, "data:")
	mime, _, _ = strings.Cut(header, ";")
	return mime, payload, true
}
