// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package ocr

import (
	"encoding/base64"
	"fmt"
	"sort"
	"strings"

	"github.com/pdiddy/markit-mistral/internal/input"
	"github.com/pdiddy/markit-mistral/pkg/types"
)

// ocrRequest is the request body for POST /v1/ocr.
type ocrRequest struct {
	Model              string      `json:"model"`
	Document           ocrDocument `json:"document"`
	IncludeImageBase64 bool        `json:"include_image_base64"`
}

// ocrDocument is either a document_url or an image_url reference. Exactly
// one of the URL fields is set, matching Type.
type ocrDocument struct {
	Type        string `json:"type"`
	DocumentURL string `json:"document_url,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
}

// ocrResponse is the response body from POST /v1/ocr.
type ocrResponse struct {
	Pages []ocrPage `json:"pages"`
	Model string    `json:"model"`
}

type ocrPage struct {
	Index    int        `json:"index"`
	Markdown string     `json:"markdown"`
	Images   []ocrImage `json:"images"`
}

type ocrImage struct {
	ID          string `json:"id"`
	ImageBase64 string `json:"image_base64"`
}

// uploadResponse is the response body from POST /v1/files.
type uploadResponse struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
}

// signedURLResponse is the response body from GET /v1/files/{id}/url.
type signedURLResponse struct {
	URL string `json:"url"`
}

func documentURL(url string) ocrDocument {
	return ocrDocument{Type: "document_url", DocumentURL: url}
}

func imageURL(url string) ocrDocument {
	return ocrDocument{Type: "image_url", ImageURL: url}
}

// dataURI encodes data as "data:<mime>;base64,<payload>".
func dataURI(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// toPageResults converts the wire pages into PageResults sorted by index.
// Images without a payload are dropped; the normalizer reports their
// placeholders as missing.
func toPageResults(resp ocrResponse) ([]types.PageResult, error) {
	pages := make([]types.PageResult, 0, len(resp.Pages))
	for _, p := range resp.Pages {
		pr := types.PageResult{Index: p.Index, Markdown: p.Markdown}
		for _, img := range p.Images {
			if img.ImageBase64 == "" {
				continue
			}
			decoded, err := decodeImage(img)
			if err != nil {
				return nil, fmt.Errorf("page %d image %s: %w", p.Index, img.ID, err)
			}
			pr.Images = append(pr.Images, decoded)
		}
		pages = append(pages, pr)
	}

	sort.SliceStable(pages, func(i, j int) bool { return pages[i].Index < pages[j].Index })
	for i := 1; i < len(pages); i++ {
		if pages[i].Index == pages[i-1].Index {
			return nil, fmt.Errorf("duplicate page index %d", pages[i].Index)
		}
	}
	return pages, nil
}

// decodeImage accepts the payload with or without a data URI header. The
// MIME type comes from the header when present, from content otherwise.
func decodeImage(img ocrImage) (types.PageImage, error) {
	mime, payload, hasHeader := input.ParseDataURI(img.ImageBase64)
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(payload))
	if err != nil {
		return types.PageImage{}, fmt.Errorf("decoding base64: %w", err)
	}
	if !hasHeader || !strings.HasPrefix(mime, "image/") {
		mime = input.SniffMIME(data)
	}
	return types.PageImage{ID: img.ID, Data: data, MIMEType: mime}, nil
}
