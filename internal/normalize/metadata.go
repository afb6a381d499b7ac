// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package normalize

import (
	"strings"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"

	"github.com/pdiddy/markit-mistral/pkg/types"
)

var markdownParser = goldmark.New(goldmark.WithExtensions(extension.Table)).Parser()

// Analyze computes document metadata from final markdown. PageCount is
// left to the caller.
func Analyze(markdown string) types.DocumentMetadata {
	source := []byte(markdown)
	doc := markdownParser.Parse(text.NewReader(source))

	md := types.DocumentMetadata{
		MathCount: countMath(markdown),
		WordCount: len(strings.Fields(markdown)),
		CharCount: utf8.RuneCountInString(markdown),
		LineCount: strings.Count(markdown, "\n"),
		Headings:  []types.Heading{},
		Links:     []types.Link{},
	}

	ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Heading:
			md.Headings = append(md.Headings, types.Heading{Level: node.Level, Text: plainText(node, source)})
			return ast.WalkSkipChildren, nil
		case *ast.Image:
			md.ImageCount++
		case *ast.Link:
			md.Links = append(md.Links, types.Link{Text: plainText(node, source), URL: string(node.Destination)})
		case *ast.AutoLink:
			url := string(node.URL(source))
			md.Links = append(md.Links, types.Link{Text: url, URL: url})
		case *east.Table:
			md.TableCount++
		}
		return ast.WalkContinue, nil
	})
	return md
}

// plainText concatenates the text leaves under n.
func plainText(n ast.Node, source []byte) string {
	var b strings.Builder
	ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch leaf := c.(type) {
		case *ast.Text:
			b.Write(leaf.Segment.Value(source))
			if leaf.SoftLineBreak() || leaf.HardLineBreak() {
				b.WriteByte(' ')
			}
		case *ast.String:
			b.Write(leaf.Value)
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(b.String())
}
