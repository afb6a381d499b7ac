// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package normalize

import (
	"encoding/base64"
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/pdiddy/markit-mistral/internal/input"
	"github.com/pdiddy/markit-mistral/pkg/types"
)

// DefaultImageDir is the link directory used when Options.ImageDir is empty.
const DefaultImageDir = "images"

// imageRef matches a markdown image reference ![alt](target).
var imageRef = regexp.MustCompile(`!\[([^\]]*)\]\(([^)\s]*)\)`)

// isPlaceholder reports whether an image target is an OCR image id rather
// than a link or data URI. Resolved links always contain a "/" and data
// URIs a ":", so resolved output is never resolved twice.
func isPlaceholder(target string) bool {
	return target != "" && !strings.ContainsAny(target, "/:")
}

// pageImages resolves the placeholders of one page against that page's
// own images.
type pageImages struct {
	opts    Options
	page    int
	byID    map[string]types.PageImage
	seen    map[string]bool
	images  []types.ImageResource
	missing []types.Warning
}

func newPageImages(p types.PageResult, opts Options) *pageImages {
	byID := make(map[string]types.PageImage, len(p.Images))
	for _, img := range p.Images {
		byID[img.ID] = img
	}
	return &pageImages{opts: opts, page: p.Index + 1, byID: byID, seen: map[string]bool{}}
}

func (pi *pageImages) rewrite(s string) string {
	return mapProse(s, func(prose string) string {
		return imageRef.ReplaceAllStringFunc(prose, pi.replace)
	})
}

func (pi *pageImages) replace(ref string) string {
	m := imageRef.FindStringSubmatch(ref)
	alt, id := m[1], m[2]
	if !isPlaceholder(id) {
		return ref
	}
	if !pi.opts.IncludeImages {
		return ""
	}

	img, ok := pi.byID[id]
	if !ok {
		pi.missing = append(pi.missing, types.Warning{
			Kind:   types.WarningMissingImage,
			Page:   pi.page,
			Detail: fmt.Sprintf("no image payload for placeholder %q", id),
		})
		return fmt.Sprintf("![%s]()", alt)
	}

	if pi.opts.EmbedImagesBase64 {
		return fmt.Sprintf("![%s](%s)", alt, dataURI(img))
	}

	name := ResourceName(pi.opts.ImagePrefix, pi.page, id, img.MIMEType)
	if !pi.seen[name] {
		pi.seen[name] = true
		pi.images = append(pi.images, types.ImageResource{
			Name:     name,
			Data:     img.Data,
			MIMEType: img.MIMEType,
			Page:     pi.page,
		})
	}
	return fmt.Sprintf("![%s](%s)", alt, pi.linkDir()+"/"+name)
}

func (pi *pageImages) linkDir() string {
	dir := strings.TrimRight(pi.opts.ImageDir, "/")
	if dir == "" {
		return DefaultImageDir
	}
	return dir
}

// ResourceName is the file name of an extracted image:
// "<prefix>-p<page>-<id stem><ext>" or "p<page>-<id stem><ext>" without a
// prefix. The page number keeps page-scoped ids from colliding.
func ResourceName(prefix string, page int, id, mime string) string {
	stem := strings.TrimSuffix(id, path.Ext(id))
	ext := input.ExtensionForMIME(mime)
	if prefix == "" {
		return fmt.Sprintf("p%d-%s%s", page, stem, ext)
	}
	return fmt.Sprintf("%s-p%d-%s%s", prefix, page, stem, ext)
}

func dataURI(img types.PageImage) string {
	mime := img.MIMEType
	if mime == "" {
		mime = input.SniffMIME(img.Data)
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
}
