package document

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"insurance-coverage-reconciler/pkg/errors"
)

// DefaultCellGap is the horizontal gap, in text space units, above which two
// runs of text on one line are treated as separate table cells.
const DefaultCellGap = 18.0

// PDFLoader validates PDF files with pdfcpu and reads positioned page text
// with ledongthuc/pdf. Runs are grouped into lines by their baseline; wide
// horizontal gaps become cell boundaries so that tabular pages also yield
// tables.
type PDFLoader struct {
	CellGap float64
}

// NewPDFLoader creates a PDF loader with the default cell gap
func NewPDFLoader() *PDFLoader {
	return &PDFLoader{CellGap: DefaultCellGap}
}

// Load implements Loader
func (l *PDFLoader) Load(ctx context.Context, name string, r io.ReadSeeker) (*Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.DocumentError(errors.CodeDocumentUnreadable, name, err)
	}

	conf := model.NewDefaultConfiguration()
	pdfCtx, err := api.ReadValidateAndOptimize(bytes.NewReader(data), conf)
	if err != nil {
		return nil, classifyPDFError(name, err)
	}
	if pdfCtx.PageCount == 0 {
		return nil, errors.DocumentError(errors.CodeDocumentUnreadable, name, fmt.Errorf("document has no pages"))
	}

	pages, err := l.readPages(ctx, data)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, classifyPDFError(name, err)
	}

	doc := &Document{Name: name, Pages: make([]Page, 0, len(pages))}
	for i, lines := range pages {
		doc.Pages = append(doc.Pages, Page{
			Number: i + 1,
			Text:   flattenCells(strings.Join(lines, "\n")),
			Tables: detectTables(lines),
		})
	}

	return doc, nil
}

// readPages returns the laid-out lines of every page in order.
func (l *PDFLoader) readPages(ctx context.Context, data []byte) ([][]string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}

	gap := l.CellGap
	if gap <= 0 {
		gap = DefaultCellGap
	}

	total := reader.NumPage()
	pages := make([][]string, 0, total)
	for pageNr := 1; pageNr <= total; pageNr++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pages = append(pages, pageLines(reader, pageNr, gap))
	}
	return pages, nil
}

// pageLines lays out one page. A page whose content cannot be read is
// returned empty; the extractors treat it like a page without text.
func pageLines(reader *pdf.Reader, pageNr int, gap float64) (lines []string) {
	defer func() {
		if recover() != nil {
			lines = nil
		}
	}()

	page := reader.Page(pageNr)
	if page.V.IsNull() {
		return nil
	}
	return layoutRuns(runsFromText(page.Content().Text), gap)
}

func classifyPDFError(name string, err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "encrypt") || strings.Contains(msg, "password") {
		return errors.DocumentError(errors.CodeDocumentEncrypted, name, err)
	}
	return errors.DocumentError(errors.CodeDocumentUnreadable, name, err)
}
