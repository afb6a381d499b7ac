// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package normalize

import "strings"

// segment is a run of whole lines that is either fenced code or prose.
type segment struct {
	text string
	code bool
}

// splitFences separates fenced code blocks from prose. An unclosed fence
// runs to the end of the text. Joining the segment texts yields s.
func splitFences(s string) []segment {
	var (
		segs  []segment
		buf   strings.Builder
		fence string
	)
	flush := func(code bool) {
		if buf.Len() > 0 {
			segs = append(segs, segment{text: buf.String(), code: code})
			buf.Reset()
		}
	}

	for _, line := range strings.SplitAfter(s, "\n") {
		if line == "" {
			continue
		}
		marker := fenceMarker(line)
		switch {
		case fence == "" && marker != "":
			flush(false)
			fence = marker
			buf.WriteString(line)
		case fence != "" && marker != "" && strings.HasPrefix(marker, fence) && isClosingFence(line):
			buf.WriteString(line)
			flush(true)
			fence = ""
		default:
			buf.WriteString(line)
		}
	}
	flush(fence != "")
	return segs
}

// fenceMarker returns the run of ``` or ~~~ that opens line, or "".
func fenceMarker(line string) string {
	trimmed := strings.TrimLeft(line, " ")
	if len(line)-len(trimmed) > 3 {
		return ""
	}
	for _, ch := range []byte{'`', '~'} {
		n := 0
		for n < len(trimmed) && trimmed[n] == ch {
			n++
		}
		if n >= 3 {
			return trimmed[:n]
		}
	}
	return ""
}

// isClosingFence reports whether line holds only a fence marker.
func isClosingFence(line string) bool {
	t := strings.TrimSpace(line)
	return strings.Trim(t, "`") == "" || strings.Trim(t, "~") == ""
}

// mapProse applies fn to every prose segment and reassembles the text.
func mapProse(s string, fn func(string) string) string {
	var b strings.Builder
	for _, seg := range splitFences(s) {
		if seg.code {
			b.WriteString(seg.text)
			continue
		}
		b.WriteString(fn(seg.text))
	}
	return b.String()
}
