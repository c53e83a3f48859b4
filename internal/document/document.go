// Package document provides the page-level view of a policy document that
// the extractors work on: the text of every page, split into lines in reading
// order, and the cell grids of the tables found on it.
package document

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"insurance-coverage-reconciler/pkg/errors"
)

// Table is a grid of cells, row-major. Cells may be empty and may contain
// line breaks when a cell wraps.
type Table [][]string

// Page is one page of a document. Number is 1-based.
type Page struct {
	Number int     `json:"number"`
	Text   string  `json:"text"`
	Tables []Table `json:"tables,omitempty"`
}

// Lines returns the page text split on line breaks
func (p Page) Lines() []string {
	if p.Text == "" {
		return nil
	}
	return strings.Split(p.Text, "\n")
}

// Document is an opened policy document
type Document struct {
	Name  string `json:"name"`
	Pages []Page `json:"pages"`
}

// PageCount returns the number of pages
func (d *Document) PageCount() int {
	return len(d.Pages)
}

// PageRange returns pages[from:to], clamped to the document. Indices are
// 0-based and to is exclusive; a negative to means "to the end".
func (d *Document) PageRange(from, to int) []Page {
	n := len(d.Pages)
	if to < 0 || to > n {
		to = n
	}
	if from < 0 {
		from = 0
	}
	if from >= to {
		return nil
	}
	return d.Pages[from:to]
}

// Texts returns the text of the pages in [from, to)
func (d *Document) Texts(from, to int) []string {
	pages := d.PageRange(from, to)
	texts := make([]string, len(pages))
	for i, p := range pages {
		texts[i] = p.Text
	}
	return texts
}

// JoinedText returns the text of the pages in [from, to) separated by line
// breaks
func (d *Document) JoinedText(from, to int) string {
	return strings.Join(d.Texts(from, to), "\n")
}

// Loader reads a document from a stream. name is used for error reporting
// and format selection only.
type Loader interface {
	Load(ctx context.Context, name string, r io.ReadSeeker) (*Document, error)
}

// Open reads the document at path with the given loader
func Open(ctx context.Context, loader Loader, path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.FileError(errors.CodeFileNotFound, path, err)
		}
		if os.IsPermission(err) {
			return nil, errors.FileError(errors.CodeFilePermission, path, err)
		}
		return nil, errors.FileError(errors.CodeFileCorrupted, path, err)
	}
	defer f.Close()

	return loader.Load(ctx, filepath.Base(path), f)
}

// MultiLoader picks a loader by file extension
type MultiLoader struct {
	byExt map[string]Loader
}

// NewMultiLoader creates a loader that reads .pdf files with pdfcpu and
// .json page dumps with the JSON loader.
func NewMultiLoader() *MultiLoader {
	return &MultiLoader{byExt: map[string]Loader{
		".pdf":  NewPDFLoader(),
		".json": NewJSONLoader(),
	}}
}

// Register adds or replaces the loader for an extension
func (m *MultiLoader) Register(ext string, loader Loader) {
	m.byExt[strings.ToLower(ext)] = loader
}

// Supports reports whether a loader is registered for name's extension
func (m *MultiLoader) Supports(name string) bool {
	_, ok := m.byExt[strings.ToLower(filepath.Ext(name))]
	return ok
}

// Load dispatches to the loader registered for name's extension
func (m *MultiLoader) Load(ctx context.Context, name string, r io.ReadSeeker) (*Document, error) {
	loader, ok := m.byExt[strings.ToLower(filepath.Ext(name))]
	if !ok {
		return nil, errors.DocumentError(errors.CodeUnsupportedDocument, name, nil)
	}
	return loader.Load(ctx, name, r)
}
