// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package normalize

import (
	"strings"
	"unicode/utf8"
)

const minColumnWidth = 3

// cleanTables re-pads every pipe table in s. A block of consecutive lines
// starting with "|" is a table only when every row, separator included,
// has the same number of cells; other blocks are left byte-identical.
func cleanTables(s string) string {
	return mapProse(s, func(prose string) string {
		lines := strings.SplitAfter(prose, "\n")
		var b strings.Builder
		for i := 0; i < len(lines); {
			if !isPipeLine(lines[i]) {
				b.WriteString(lines[i])
				i++
				continue
			}
			j := i
			for j < len(lines) && isPipeLine(lines[j]) {
				j++
			}
			b.WriteString(formatTable(lines[i:j]))
			i = j
		}
		return b.String()
	})
}

func isPipeLine(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), "|")
}

// formatTable returns the re-padded block, or the block unchanged when it
// is not a consistent table.
func formatTable(block []string) string {
	original := strings.Join(block, "")
	if len(block) < 2 {
		return original
	}

	rows := make([][]string, len(block))
	for i, line := range block {
		rows[i] = splitRow(line)
		if len(rows[i]) != len(rows[0]) {
			return original
		}
	}

	cols := len(rows[0])
	widths := make([]int, cols)
	for c := range widths {
		widths[c] = minColumnWidth
	}
	for _, row := range rows {
		if isSeparatorRow(row) {
			continue
		}
		for c, cell := range row {
			if w := utf8.RuneCountInString(cell); w > widths[c] {
				widths[c] = w
			}
		}
	}

	indent := block[0][:len(block[0])-len(strings.TrimLeft(block[0], " \t"))]
	var b strings.Builder
	for i, row := range rows {
		b.WriteString(indent)
		b.WriteString("|")
		sep := isSeparatorRow(row)
		for c, cell := range row {
			b.WriteString(" ")
			if sep {
				b.WriteString(separatorCell(cell, widths[c]))
			} else {
				b.WriteString(cell)
				b.WriteString(strings.Repeat(" ", widths[c]-utf8.RuneCountInString(cell)))
			}
			b.WriteString(" |")
		}
		if strings.HasSuffix(block[i], "\n") {
			b.WriteString("\n")
		}
	}
	return b.String()
}

// splitRow returns the trimmed cells of a pipe row. Escaped pipes stay in
// their cell.
func splitRow(line string) []string {
	t := strings.TrimSpace(line)
	t = strings.TrimPrefix(t, "|")
	if strings.HasSuffix(t, "|") && !strings.HasSuffix(t, `\|`) {
		t = t[:len(t)-1]
	}

	var cells []string
	var cell strings.Builder
	for i := 0; i < len(t); i++ {
		switch {
		case t[i] == '\\' && i+1 < len(t) && t[i+1] == '|':
			cell.WriteString(`\|`)
			i++
		case t[i] == '|':
			cells = append(cells, strings.TrimSpace(cell.String()))
			cell.Reset()
		default:
			cell.WriteByte(t[i])
		}
	}
	return append(cells, strings.TrimSpace(cell.String()))
}

func isSeparatorRow(row []string) bool {
	for _, cell := range row {
		c := strings.TrimSuffix(strings.TrimPrefix(cell, ":"), ":")
		if c == "" || strings.Trim(c, "-") != "" {
			return false
		}
	}
	return true
}

// separatorCell renders a dash cell of width w, keeping alignment colons.
func separatorCell(cell string, w int) string {
	left := strings.HasPrefix(cell, ":")
	right := strings.HasSuffix(cell, ":") && len(cell) > 1
	dashes := w
	if left {
		dashes--
	}
	if right {
		dashes--
	}
	var b strings.Builder
	if left {
		b.WriteByte(':')
	}
	b.WriteString(strings.Repeat("-", dashes))
	if right {
		b.WriteByte(':')
	}
	return b.String()
}
