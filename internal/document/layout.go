package document

import "strings"

// cellSeparator marks a wide horizontal gap between two runs of text on the
// same line. Page text handed to the extractors has it replaced by a space.
const cellSeparator = "\t"

// minTableRows is the smallest run of multi-cell lines treated as a table.
const minTableRows = 2

// detectTables groups consecutive lines holding two or more cells into
// tables.
func detectTables(lines []string) []Table {
	var tables []Table
	var current Table

	flush := func() {
		if len(current) >= minTableRows {
			tables = append(tables, current)
		}
		current = nil
	}

	for _, line := range lines {
		cells := splitCells(line)
		if len(cells) < 2 {
			flush()
			continue
		}
		current = append(current, cells)
	}
	flush()

	return tables
}

func splitCells(line string) []string {
	if !strings.Contains(line, cellSeparator) {
		return nil
	}
	parts := strings.Split(line, cellSeparator)
	cells := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			cells = append(cells, p)
		}
	}
	return cells
}

func flattenCells(text string) string {
	return strings.ReplaceAll(text, cellSeparator, " ")
}
