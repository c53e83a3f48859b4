package document

import (
	"math"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"
)

// sameLineTolerance is the vertical distance below which two runs share a line.
const sameLineTolerance = 2.0

const fallbackFontSize = 10.0

// textRun is a positioned piece of page text, usually a single glyph.
type textRun struct {
	X, Y     float64
	W        float64
	FontSize float64
	S        string
}

func runsFromText(texts []pdf.Text) []textRun {
	runs := make([]textRun, 0, len(texts))
	for _, t := range texts {
		if t.S == "" {
			continue
		}
		runs = append(runs, textRun{X: t.X, Y: t.Y, W: t.W, FontSize: t.FontSize, S: t.S})
	}
	return runs
}

// layoutRuns groups runs into lines from the top of the page down and joins
// each line left to right. Gaps wider than cellGap become cell separators.
func layoutRuns(runs []textRun, cellGap float64) []string {
	if len(runs) == 0 {
		return nil
	}

	sorted := append([]textRun(nil), runs...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Y > sorted[j].Y })

	var lines []string
	var row []textRun
	flush := func() {
		if line := joinRow(row, cellGap); line != "" {
			lines = append(lines, line)
		}
		row = row[:0]
	}

	rowY := sorted[0].Y
	for _, r := range sorted {
		if math.Abs(r.Y-rowY) > sameLineTolerance {
			flush()
			rowY = r.Y
		}
		row = append(row, r)
	}
	flush()

	return lines
}

func joinRow(row []textRun, cellGap float64) string {
	sort.SliceStable(row, func(i, j int) bool { return row[i].X < row[j].X })

	var b strings.Builder
	var lastEnd float64
	started, pendingSpace := false, false
	for _, r := range row {
		size := r.FontSize
		if size <= 0 {
			size = fallbackFontSize
		}
		end := r.X + runWidth(r, size)

		if strings.TrimSpace(r.S) == "" {
			if started {
				pendingSpace = true
				lastEnd = math.Max(lastEnd, end)
			}
			continue
		}

		if started {
			gap := r.X - lastEnd
			switch {
			case gap > cellGap:
				b.WriteString(cellSeparator)
			case pendingSpace || gap > size*0.2 || gap < -size:
				b.WriteByte(' ')
			}
		}
		b.WriteString(r.S)
		started, pendingSpace = true, false
		lastEnd = end
	}

	return strings.TrimSpace(b.String())
}

// runWidth falls back to an estimate when the font carries no widths:
// a full em for CJK and Hangul, half an em otherwise.
func runWidth(r textRun, size float64) float64 {
	if r.W > 0 {
		return r.W
	}
	var w float64
	for _, c := range r.S {
		if c >= 0x2E80 {
			w += size
		} else {
			w += size * 0.5
		}
	}
	return w
}
