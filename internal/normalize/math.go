// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package normalize

import (
	"fmt"
	"strings"
)

// mathScan is the outcome of one pass of the delimiter scanner.
type mathScan struct {
	text      string
	count     int
	malformed []string
}

// rewriteMath scans s for math spans. With convert set, \( \) becomes $ $
// and \[ \] becomes $$ $$; equation bodies are never altered. $ and $$
// spans are copied verbatim, which makes the rewrite a fixed point. A span
// that would end up next to another $ keeps its backslash delimiters.
// Nested, unterminated, and unmatched delimiters are copied unchanged and
// reported in malformed. Fenced code blocks and inline code spans are
// skipped.
func rewriteMath(s string, convert bool) mathScan {
	var res mathScan
	var b strings.Builder
	for _, seg := range splitFences(s) {
		if seg.code {
			b.WriteString(seg.text)
			continue
		}
		scanProse(&b, seg.text, convert, &res)
	}
	res.text = b.String()
	return res
}

// countMath returns the number of math spans in s.
func countMath(s string) int {
	return rewriteMath(s, false).count
}

func scanProse(b *strings.Builder, s string, convert bool, res *mathScan) {
	i := 0
	for i < len(s) {
		switch c := s[i]; {
		case c == '`':
			end := codeSpanEnd(s, i)
			b.WriteString(s[i:end])
			i = end

		case c == '\\' && i+1 < len(s) && (s[i+1] == '(' || s[i+1] == '['):
			opener, closer, delim := s[i:i+2], `\)`, "$"
			limit := paragraphEnd(s, i+2)
			if s[i+1] == '[' {
				closer, delim = `\]`, "$$"
				limit = len(s)
			}
			end, nested, ok := matchDelim(s, i, limit, opener, closer)
			if !ok {
				res.malformed = append(res.malformed, fmt.Sprintf("unterminated %s near %q", opener, snippet(s[i:])))
				b.WriteString(opener)
				i += 2
				continue
			}
			if nested {
				res.malformed = append(res.malformed, fmt.Sprintf("nested %s near %q", opener, snippet(s[i:])))
				b.WriteString(s[i:end])
				i = end
				continue
			}
			if convert && !touchesDollar(b.String(), s, end) {
				b.WriteString(delim)
				b.WriteString(s[i+2 : end-2])
				b.WriteString(delim)
			} else {
				b.WriteString(s[i:end])
			}
			res.count++
			i = end

		case c == '\\' && i+1 < len(s) && (s[i+1] == ')' || s[i+1] == ']'):
			res.malformed = append(res.malformed, fmt.Sprintf("unmatched %s near %q", s[i:i+2], snippet(s[i:])))
			b.WriteString(s[i : i+2])
			i += 2

		case c == '\\' && i+1 < len(s):
			b.WriteString(s[i : i+2])
			i += 2

		case c == '$' && strings.HasPrefix(s[i:], "$$"):
			j := strings.Index(s[i+2:], "$$")
			if j < 0 {
				res.malformed = append(res.malformed, fmt.Sprintf("unterminated $$ near %q", snippet(s[i:])))
				b.WriteString("$$")
				i += 2
				continue
			}
			end := i + 2 + j + 2
			b.WriteString(s[i:end])
			res.count++
			i = end

		case c == '$':
			end, ok := inlineDollarEnd(s, i)
			if !ok {
				b.WriteByte('$')
				i++
				continue
			}
			b.WriteString(s[i:end])
			res.count++
			i = end

		default:
			b.WriteByte(c)
			i++
		}
	}
}

// matchDelim finds the closer that balances the opener at i, looking no
// further than limit. nested reports a second opener inside the span.
// Other backslash escapes are skipped as pairs.
func matchDelim(s string, i, limit int, opener, closer string) (end int, nested, ok bool) {
	depth := 0
	for j := i; j+1 < limit; {
		if s[j] != '\\' {
			j++
			continue
		}
		switch s[j : j+2] {
		case opener:
			depth++
			if depth > 1 {
				nested = true
			}
		case closer:
			depth--
			if depth == 0 {
				return j + 2, nested, true
			}
		}
		j += 2
	}
	return 0, false, false
}

// touchesDollar reports whether a converted span ending at end would sit
// directly against another $, which renderers read as a $$ delimiter.
func touchesDollar(written, s string, end int) bool {
	return strings.HasSuffix(written, "$") || (end < len(s) && s[end] == '$')
}

// codeSpanEnd returns the index just past the code span opening at i, or
// past the backtick run when the span is not closed.
func codeSpanEnd(s string, i int) int {
	n := 0
	for i+n < len(s) && s[i+n] == '`' {
		n++
	}
	ticks := s[i : i+n]
	for j := i + n; j < len(s); {
		k := strings.Index(s[j:], ticks)
		if k < 0 {
			break
		}
		start := j + k
		run := 0
		for start+run < len(s) && s[start+run] == '`' {
			run++
		}
		if run == n {
			return start + n
		}
		j = start + run
	}
	return i + n
}

// inlineDollarEnd finds the closing $ of an inline span on the same line.
// A span needs a non-blank body and a closer not followed by a digit, so
// prices such as "$5 and $10" are not math.
func inlineDollarEnd(s string, i int) (int, bool) {
	for j := i + 1; j < len(s); j++ {
		switch s[j] {
		case '\n':
			return 0, false
		case '\\':
			j++
		case '$':
			body := s[i+1 : j]
			if strings.TrimSpace(body) == "" {
				return 0, false
			}
			if j+1 < len(s) && s[j+1] >= '0' && s[j+1] <= '9' {
				return 0, false
			}
			return j + 1, true
		}
	}
	return 0, false
}

func paragraphEnd(s string, from int) int {
	if k := strings.Index(s[from:], "\n\n"); k >= 0 {
		return from + k
	}
	return len(s)
}

func snippet(s string) string {
	const limit = 24
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
