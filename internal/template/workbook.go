// Package template reads and fills coverage analysis workbooks.
//
// A workbook lists coverage labels down one column (B by default). The rows
// above the labels hold the insurer, product and premium of each document,
// one column per document starting at D. Amounts are written in 만원.
package template

import (
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	"insurance-coverage-reconciler/internal/models"
	"insurance-coverage-reconciler/pkg/errors"
)

// Layout is the row structure detected in a workbook. Zero means the row
// was not found.
type Layout struct {
	InsurerRow int `json:"insurer_row" mapstructure:"insurer_row"`
	ProductRow int `json:"product_row" mapstructure:"product_row"`
	PremiumRow int `json:"premium_row" mapstructure:"premium_row"`
	ReserveRow int `json:"reserve_row" mapstructure:"reserve_row"`
	StartRow   int `json:"start_row" mapstructure:"start_row"`
}

// WithFallback fills undetected rows from fallback
func (l Layout) WithFallback(fallback Layout) Layout {
	pick := func(v, d int) int {
		if v > 0 {
			return v
		}
		return d
	}
	return Layout{
		InsurerRow: pick(l.InsurerRow, fallback.InsurerRow),
		ProductRow: pick(l.ProductRow, fallback.ProductRow),
		PremiumRow: pick(l.PremiumRow, fallback.PremiumRow),
		ReserveRow: l.ReserveRow,
		StartRow:   pick(l.StartRow, fallback.StartRow),
	}
}

// Labels that head sections of the sheet rather than name a coverage
var skipLabels = map[string]bool{
	"주계약":  true,
	"특약":   true,
	"합계":   true,
	"총보험료": true,
	"보장항목": true,
	"담보명":  true,
	"특약명":  true,
}

var startLabels = map[string]bool{
	"실비질병/상해 종합입원": true,
	"실비질병/상해종합입원":  true,
}

// Workbook is an opened coverage analysis workbook
type Workbook struct {
	file   *excelize.File
	name   string
	sheet  string
	config *Config
}

// Open opens the workbook at path
func Open(path string, config *Config) (*Workbook, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, errors.FileError(errors.CodeFileNotFound, path, err)
		}
		return nil, errors.FileError(errors.CodeFilePermission, path, err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, errors.ParseError(errors.CodeInvalidFormat, path, "", "", err)
	}
	return newWorkbook(f, path, config)
}

// OpenReader reads a workbook from r. name is only used in errors.
func OpenReader(r io.Reader, name string, config *Config) (*Workbook, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, errors.ParseError(errors.CodeInvalidFormat, name, "", "", err)
	}
	return newWorkbook(f, name, config)
}

func newWorkbook(f *excelize.File, name string, config *Config) (*Workbook, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		f.Close()
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "template", config, err)
	}

	sheet := config.SheetName
	if sheet == "" {
		sheet = f.GetSheetName(f.GetActiveSheetIndex())
	} else if idx, err := f.GetSheetIndex(sheet); err != nil || idx < 0 {
		f.Close()
		return nil, errors.ParseError(errors.CodeMissingSheet, name, "sheet", sheet, err).
			WithContext("available_sheets", strings.Join(f.GetSheetList(), ", "))
	}

	return &Workbook{file: f, name: name, sheet: sheet, config: config}, nil
}

// Name returns the path or upload name the workbook was opened from
func (w *Workbook) Name() string {
	return w.name
}

// Sheet returns the worksheet in use
func (w *Workbook) Sheet() string {
	return w.sheet
}

// Config returns the workbook configuration
func (w *Workbook) Config() *Config {
	return w.config
}

// labelColumn returns the trimmed values of the label column by 1-based row.
// Index 0 is unused.
func (w *Workbook) labelColumn() ([]string, error) {
	rows, err := w.file.GetRows(w.sheet)
	if err != nil {
		return nil, errors.ParseError(errors.CodeInvalidData, w.name, "sheet", w.sheet, err)
	}

	col := w.config.LabelColumn - 1
	values := make([]string, len(rows)+1)
	for i, row := range rows {
		if col < len(row) {
			values[i+1] = strings.TrimSpace(row[col])
		}
	}
	return values, nil
}

// FindLayout detects the insurer, product, premium, reserve and start rows
// from the label column. The insurer goes one row below the "회사" header.
// Without an explicit start label the coverage list starts three rows below
// the premium. Rows that are not found stay zero; use WithFallback.
func (w *Workbook) FindLayout() (Layout, error) {
	values, err := w.labelColumn()
	if err != nil {
		return Layout{}, err
	}

	var l Layout
	for row := 1; row < len(values); row++ {
		v := values[row]
		if v == "" {
			continue
		}
		if l.InsurerRow == 0 && strings.Contains(v, "회사") {
			l.InsurerRow = row + 1
		}
		if l.ProductRow == 0 && strings.Contains(v, "상품") {
			l.ProductRow = row
		}
		if l.PremiumRow == 0 && strings.Contains(v, "보험료") && !strings.Contains(v, "총") {
			l.PremiumRow = row
		}
		if l.ReserveRow == 0 && strings.Contains(v, "적립금") {
			l.ReserveRow = row
		}
		if l.StartRow == 0 && startLabels[v] {
			l.StartRow = row
		}
	}

	if l.StartRow == 0 && l.PremiumRow > 0 {
		l.StartRow = l.PremiumRow + 3
	}
	return l, nil
}

// ResolvedLayout is FindLayout with the configured fallbacks applied
func (w *Workbook) ResolvedLayout() (Layout, error) {
	l, err := w.FindLayout()
	if err != nil {
		return Layout{}, err
	}
	return l.WithFallback(w.config.Fallback), nil
}

// TargetLabels reads the coverage labels from startRow down. Section
// headings and one-character cells are skipped.
func (w *Workbook) TargetLabels(startRow int) ([]models.TargetLabel, error) {
	values, err := w.labelColumn()
	if err != nil {
		return nil, err
	}
	if startRow < 1 {
		startRow = 1
	}

	labels := []models.TargetLabel{}
	for row := startRow; row < len(values); row++ {
		v := values[row]
		if v == "" || skipLabels[v] || utf8.RuneCountInString(v) < 2 {
			continue
		}
		labels = append(labels, models.TargetLabel{Text: v, Row: row, Column: w.config.LabelColumn})
	}
	return labels, nil
}

// WriteReport writes every matched amount, in 만원, into column at the row
// of its label. It returns the number of cells written.
func (w *Workbook) WriteReport(report *models.ReconciliationReport, column int) (int, error) {
	if report == nil {
		return 0, nil
	}
	written := 0
	for _, m := range report.Matched {
		if err := w.setCell(column, m.Target.Row, models.Manwon(m.Amount)); err != nil {
			return written, err
		}
		written++
	}
	return written, nil
}

// WriteDocumentInfo writes the insurer and product name of a document into
// column, and the premium in won when the document has one.
func (w *Workbook) WriteDocumentInfo(info *models.DocumentInfo, layout Layout, column int) error {
	if info == nil {
		return nil
	}
	insurer := info.IssuerName
	if insurer == "" {
		insurer = info.Issuer.DisplayName()
	}
	if err := w.setCell(column, layout.InsurerRow, insurer); err != nil {
		return err
	}
	if err := w.setCell(column, layout.ProductRow, info.ProductName); err != nil {
		return err
	}
	if info.HasPremium() && *info.Premium > 0 {
		if err := w.setCell(column, layout.PremiumRow, *info.Premium); err != nil {
			return err
		}
	}
	return nil
}

// CellValue returns the formatted value of a cell
func (w *Workbook) CellValue(column, row int) (string, error) {
	cell, err := excelize.CoordinatesToCellName(column, row)
	if err != nil {
		return "", errors.ValidationError(errors.CodeOutOfRange, "cell", []int{column, row}, err)
	}
	return w.file.GetCellValue(w.sheet, cell)
}

func (w *Workbook) setCell(column, row int, value interface{}) error {
	cell, err := excelize.CoordinatesToCellName(column, row)
	if err != nil {
		return errors.ValidationError(errors.CodeOutOfRange, "cell", []int{column, row}, err)
	}
	if err := w.file.SetCellValue(w.sheet, cell, value); err != nil {
		return errors.ReconciliationError(errors.CodeWriteFailed, "write_cell", err).
			WithContext("cell", cell)
	}
	return nil
}

// SaveAs writes the workbook to path
func (w *Workbook) SaveAs(path string) error {
	if err := w.file.SaveAs(path); err != nil {
		return errors.ReconciliationError(errors.CodeWriteFailed, "save_workbook", err).
			WithContext("file_path", path)
	}
	return nil
}

// WriteTo writes the workbook as xlsx to out
func (w *Workbook) WriteTo(out io.Writer) (int64, error) {
	n, err := w.file.WriteTo(out)
	if err != nil {
		return n, errors.ReconciliationError(errors.CodeWriteFailed, "write_workbook", err)
	}
	return n, nil
}

// Close releases the workbook
func (w *Workbook) Close() error {
	return w.file.Close()
}

// ColumnLetter returns the spreadsheet letter of a 1-based column
func ColumnLetter(column int) string {
	name, err := excelize.ColumnNumberToName(column)
	if err != nil {
		return ""
	}
	return name
}
