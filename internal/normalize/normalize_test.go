// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package normalize

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/markit-mistral/pkg/types"
)

// tenBytePNG is a PNG signature plus two bytes.
var tenBytePNG = []byte("\x89PNG\r\n\x1a\n\x00\x00")

func twoPages() []types.PageResult {
	return []types.PageResult{
		{
			Index:    0,
			Markdown: "# Results\n\nThe setup is shown below.\n\n![img-1](img-1)\n",
			Images:   []types.PageImage{{ID: "img-1", Data: tenBytePNG, MIMEType: "image/png"}},
		},
		{
			Index:    1,
			Markdown: "## Discussion\n\nNo figures on this page.\n",
		},
	}
}

func TestNormalize_EmptyDocument(t *testing.T) {
	for _, pages := range [][]types.PageResult{nil, {}} {
		_, err := Normalize(pages, Options{IncludeImages: true})
		require.Error(t, err)
		assert.Equal(t, types.KindEmptyDocument, types.KindOf(err))
		assert.ErrorIs(t, err, types.ErrEmptyDocument)
	}
}

func TestNormalize_LinkedImage(t *testing.T) {
	doc, err := Normalize(twoPages(), Options{
		IncludeImages: true,
		ImageDir:      "paper_images",
		ImagePrefix:   "paper",
	})
	require.NoError(t, err)

	require.Len(t, doc.Images, 1)
	img := doc.Images[0]
	assert.Equal(t, "paper-p1-img-1.png", img.Name)
	assert.Equal(t, tenBytePNG, img.Data)
	assert.Equal(t, 1, img.Page)

	assert.Equal(t, 1, strings.Count(doc.Markdown, "!["))
	assert.Contains(t, doc.Markdown, "![img-1](paper_images/"+img.Name+")")
	assert.Empty(t, doc.Warnings)
	assert.Equal(t, 2, doc.Metadata.PageCount)
	assert.Equal(t, 1, doc.Metadata.ImageCount)
}

func TestNormalize_ImagesExcluded(t *testing.T) {
	doc, err := Normalize(twoPages(), Options{IncludeImages: false})
	require.NoError(t, err)

	assert.Empty(t, doc.Images)
	assert.NotContains(t, doc.Markdown, "![")
	assert.NotContains(t, doc.Markdown, "]()")
	assert.NotContains(t, doc.Markdown, "img-1")
	assert.Contains(t, doc.Markdown, "The setup is shown below.")
	assert.Empty(t, doc.Warnings)
}

func TestNormalize_Base64Images(t *testing.T) {
	doc, err := Normalize(twoPages(), Options{IncludeImages: true, EmbedImagesBase64: true})
	require.NoError(t, err)

	assert.Empty(t, doc.Images)
	want := "![img-1](data:image/png;base64," + base64.StdEncoding.EncodeToString(tenBytePNG) + ")"
	assert.Contains(t, doc.Markdown, want)
}

func TestNormalize_DefaultImageDir(t *testing.T) {
	doc, err := Normalize(twoPages(), Options{IncludeImages: true})
	require.NoError(t, err)
	require.Len(t, doc.Images, 1)
	assert.Equal(t, "p1-img-1.png", doc.Images[0].Name)
	assert.Contains(t, doc.Markdown, "(images/p1-img-1.png)")
}

func TestNormalize_MissingImage(t *testing.T) {
	pages := []types.PageResult{{Index: 0, Markdown: "Before ![chart](img-9.jpeg) after"}}

	doc, err := Normalize(pages, Options{IncludeImages: true})
	require.NoError(t, err)

	assert.Contains(t, doc.Markdown, "Before ![chart]() after")
	require.Len(t, doc.Warnings, 1)
	assert.Equal(t, types.WarningMissingImage, doc.Warnings[0].Kind)
	assert.Equal(t, 1, doc.Warnings[0].Page)
	assert.Contains(t, doc.Warnings[0].Detail, "img-9.jpeg")
}

func TestNormalize_PlaceholdersArePageScoped(t *testing.T) {
	pages := []types.PageResult{
		{Index: 0, Markdown: "![a](img-0.jpeg)", Images: []types.PageImage{{ID: "img-0.jpeg", Data: []byte("one"), MIMEType: "image/jpeg"}}},
		{Index: 1, Markdown: "![b](img-0.jpeg)", Images: []types.PageImage{{ID: "img-0.jpeg", Data: []byte("two"), MIMEType: "image/jpeg"}}},
		{Index: 2, Markdown: "![c](img-7.jpeg)"},
	}

	doc, err := Normalize(pages, Options{IncludeImages: true, ImageDir: "out"})
	require.NoError(t, err)

	require.Len(t, doc.Images, 2)
	assert.Equal(t, "p1-img-0.jpg", doc.Images[0].Name)
	assert.Equal(t, []byte("one"), doc.Images[0].Data)
	assert.Equal(t, "p2-img-0.jpg", doc.Images[1].Name)
	assert.Equal(t, []byte("two"), doc.Images[1].Data)

	require.Len(t, doc.Warnings, 1)
	assert.Equal(t, 3, doc.Warnings[0].Page)
}

func TestNormalize_RepeatedPlaceholderRecordedOnce(t *testing.T) {
	pages := []types.PageResult{{
		Index:    0,
		Markdown: "![x](img-0.png) and again ![x](img-0.png)",
		Images:   []types.PageImage{{ID: "img-0.png", Data: tenBytePNG, MIMEType: "image/png"}},
	}}
	doc, err := Normalize(pages, Options{IncludeImages: true})
	require.NoError(t, err)
	assert.Len(t, doc.Images, 1)
	assert.Equal(t, 2, strings.Count(doc.Markdown, "(images/p1-img-0.png)"))
}

func TestNormalize_PagesMergedInOrder(t *testing.T) {
	pages := []types.PageResult{
		{Index: 1, Markdown: "second\n\n\n"},
		{Index: 0, Markdown: "first"},
	}
	doc, err := Normalize(pages, Options{})
	require.NoError(t, err)
	assert.Equal(t, "first\n\nsecond\n", doc.Markdown)
}

func TestNormalize_Title(t *testing.T) {
	doc, err := Normalize([]types.PageResult{{Index: 0, Markdown: "body"}}, Options{Title: "Report"})
	require.NoError(t, err)
	assert.Equal(t, "# Report\n\nbody\n", doc.Markdown)
	require.Len(t, doc.Metadata.Headings, 1)
	assert.Equal(t, "Report", doc.Metadata.Headings[0].Text)
}

func TestNormalize_MathWarnings(t *testing.T) {
	pages := []types.PageResult{
		{Index: 0, Markdown: `ok \(a\)`},
		{Index: 1, Markdown: `broken \(b + c`},
	}
	doc, err := Normalize(pages, Options{PreserveMath: true})
	require.NoError(t, err)

	assert.Contains(t, doc.Markdown, "ok $a$")
	assert.Contains(t, doc.Markdown, `broken \(b + c`)
	require.Len(t, doc.Warnings, 1)
	assert.Equal(t, types.WarningMalformedMath, doc.Warnings[0].Kind)
	assert.Equal(t, 2, doc.Warnings[0].Page)
}

func TestNormalize_NestedMathWarned(t *testing.T) {
	doc, err := Normalize([]types.PageResult{{Index: 0, Markdown: `x \(a \(b\) c\) and \(d\)`}}, Options{PreserveMath: true})
	require.NoError(t, err)

	assert.Equal(t, "x \\(a \\(b\\) c\\) and $d$\n", doc.Markdown)
	require.Len(t, doc.Warnings, 1)
	assert.Equal(t, types.WarningMalformedMath, doc.Warnings[0].Kind)
	assert.Equal(t, 1, doc.Warnings[0].Page)
	assert.Contains(t, doc.Warnings[0].Detail, "nested")
}

func TestNormalize_MathUntouchedWithoutPreserve(t *testing.T) {
	doc, err := Normalize([]types.PageResult{{Index: 0, Markdown: `\(x\)`}}, Options{})
	require.NoError(t, err)
	assert.Equal(t, "\\(x\\)\n", doc.Markdown)
	assert.Equal(t, 1, doc.Metadata.MathCount)
}

func TestNormalize_FixedPoint(t *testing.T) {
	pages := []types.PageResult{
		{
			Index: 0,
			Markdown: "# Model\n\nInline \\(E = mc^2\\) and display:\n\n\\[\n\\int_0^1 x\\,dx\n\\]\n\n" +
				"|a|bb|\n|---|:-:|\n|ccc|d|\n\n![fig](img-0.png)   \n\n\n\nUnclosed \\(oops\n\n" +
				"```\n\\(code\\)\n```\n",
			Images: []types.PageImage{{ID: "img-0.png", Data: tenBytePNG, MIMEType: "image/png"}},
		},
		{Index: 1, Markdown: "Prices $5 and $10, ![gone](img-3.png)."},
	}

	for _, opts := range []Options{
		{IncludeImages: true, PreserveMath: true, ImageDir: "doc_images", ImagePrefix: "doc"},
		{IncludeImages: true, PreserveMath: true, EmbedImagesBase64: true},
		{IncludeImages: false, PreserveMath: true},
	} {
		first, err := Normalize(pages, opts)
		require.NoError(t, err)

		second, err := Normalize([]types.PageResult{{Index: 0, Markdown: first.Markdown}}, opts)
		require.NoError(t, err)
		assert.Equal(t, first.Markdown, second.Markdown)
	}
}

func TestNormalize_Deterministic(t *testing.T) {
	opts := Options{IncludeImages: true, PreserveMath: true, ImagePrefix: "x"}
	a, err := Normalize(twoPages(), opts)
	require.NoError(t, err)
	b, err := Normalize(twoPages(), opts)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestRewriteMath(t *testing.T) {
	tests := []struct {
		name      string
		in        string
		want      string
		count     int
		malformed int
	}{
		{"inline paren", `\(x^2\)`, `$x^2$`, 1, 0},
		{"display bracket", `\[x^2\]`, `$$x^2$$`, 1, 0},
		{"multiline display", "\\[\na + b\n\\]", "$$\na + b\n$$", 1, 0},
		{"dollar unchanged", `$x^2$`, `$x^2$`, 1, 0},
		{"double dollar unchanged", `$$x^2$$`, `$$x^2$$`, 1, 0},
		{"body untouched", `\( \frac{a}{b} \)`, `$ \frac{a}{b} $`, 1, 0},
		{"unterminated paren", `see \(x + y`, `see \(x + y`, 0, 1},
		{"unterminated bracket", `\[x`, `\[x`, 0, 1},
		{"unterminated double dollar", `$$x`, `$$x`, 0, 1},
		{"paren not across paragraphs", "\\(a\n\nb\\)", "\\(a\n\nb\\)", 0, 2},
		{"nested paren", `\(a \(b\) c\)`, `\(a \(b\) c\)`, 0, 1},
		{"nested bracket", `\[a \[b\] c\]`, `\[a \[b\] c\]`, 0, 1},
		{"unclosed outer around closed inner", `\(a \(b\) c`, `\(a $b$ c`, 1, 1},
		{"stray paren closer", `stray \) closer`, `stray \) closer`, 0, 1},
		{"stray bracket closer", `x \] y`, `x \] y`, 0, 1},
		{"adjacent inline spans", `\(a\)\(b\)`, `$a$\(b\)`, 2, 0},
		{"adjacent display spans", `\[a\]\[b\]`, `$$a$$\[b\]`, 2, 0},
		{"span before dollar math", `\(a\)$b$`, `\(a\)$b$`, 2, 0},
		{"escape inside body", `\(f(x) \, g\)`, `$f(x) \, g$`, 1, 0},
		{"escaped backslash", `\\(x)`, `\\(x)`, 0, 0},
		{"prices", "costs $5 and $10", "costs $5 and $10", 0, 0},
		{"lone dollar", "US$ only", "US$ only", 0, 0},
		{"code span", "`\\(x\\)` and \\(y\\)", "`\\(x\\)` and $y$", 1, 0},
		{"fenced code", "```\n\\(x\\)\n```\n\\(y\\)", "```\n\\(x\\)\n```\n$y$", 1, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := rewriteMath(tt.in, true)
			assert.Equal(t, tt.want, got.text)
			assert.Equal(t, tt.count, got.count)
			assert.Len(t, got.malformed, tt.malformed)

			again := rewriteMath(got.text, true)
			assert.Equal(t, got.text, again.text)
		})
	}
}

func TestCleanTables(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "repadded",
			in:   "|a|bb|\n|---|:-:|\n|ccc|d|\n",
			want: "| a   | bb  |\n| --- | :-: |\n| ccc | d   |\n",
		},
		{
			name: "inconsistent cells pass through",
			in:   "| a | b |\n| c |\n| d | e | f |\n",
			want: "| a | b |\n| c |\n| d | e | f |\n",
		},
		{
			name: "separator with wrong count passes through",
			in:   "| a | b |\n| --- |\n| c | d |\n",
			want: "| a | b |\n| --- |\n| c | d |\n",
		},
		{
			name: "single line passes through",
			in:   "|only|\n",
			want: "|only|\n",
		},
		{
			name: "surrounding prose kept",
			in:   "Intro\n|x|y|\n|-|-|\nOutro\n",
			want: "Intro\n| x   | y   |\n| --- | --- |\nOutro\n",
		},
		{
			name: "escaped pipe stays in cell",
			in:   "| a \\| b | c |\n| --- | --- |\n",
			want: "| a \\| b | c   |\n| ------ | --- |\n",
		},
		{
			name: "wide characters",
			in:   "| αβγδ | x |\n| --- | --- |\n",
			want: "| αβγδ | x   |\n| ---- | --- |\n",
		},
		{
			name: "code fence untouched",
			in:   "```\n|a|b|\n|c|d|\n```\n",
			want: "```\n|a|b|\n|c|d|\n```\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := cleanTables(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, cleanTables(got))
		})
	}
}

func TestCleanup(t *testing.T) {
	assert.Equal(t, "a\n\nb\n", cleanup("\n\na  \n\n\n\nb\t\n\n"))
	assert.Equal(t, "", cleanup("\n \n"))
	assert.Equal(t, "x\ny\n", cleanup("x\r\ny"))
}

func TestAnalyze(t *testing.T) {
	md := "# Title\n\nSome [link](https://example.com) text with $x$.\n\n" +
		"## Data\n\n| a | b |\n| --- | --- |\n| 1 | 2 |\n\n![fig](images/p1-a.png)\n"

	meta := Analyze(md)
	assert.Equal(t, []types.Heading{{Level: 1, Text: "Title"}, {Level: 2, Text: "Data"}}, meta.Headings)
	assert.Equal(t, []types.Link{{Text: "link", URL: "https://example.com"}}, meta.Links)
	assert.Equal(t, 1, meta.TableCount)
	assert.Equal(t, 1, meta.ImageCount)
	assert.Equal(t, 1, meta.MathCount)
	assert.Equal(t, strings.Count(md, "\n"), meta.LineCount)
	assert.Greater(t, meta.WordCount, 10)
}

func TestResourceName(t *testing.T) {
	assert.Equal(t, "doc-p3-img-0.jpg", ResourceName("doc", 3, "img-0.jpeg", "image/jpeg"))
	assert.Equal(t, "p1-img-2.png", ResourceName("", 1, "img-2", "image/png"))
	assert.Equal(t, "p1-fig.avif", ResourceName("", 1, "fig.bin", "image/avif"))
}
