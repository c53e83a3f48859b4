package document

import (
	"context"
	"encoding/json"
	"io"

	"insurance-coverage-reconciler/pkg/errors"
)

// JSONLoader reads page dumps produced by external text extractors.
//
// Two shapes are accepted: an object {"pages": [...]} or a bare array of
// pages. Page numbers default to the position in the list. When a page has
// no tables, tab-separated runs in its text are turned into tables the same
// way the PDF loader does it.
type JSONLoader struct{}

// NewJSONLoader creates a JSON page-dump loader
func NewJSONLoader() *JSONLoader {
	return &JSONLoader{}
}

// Load implements Loader
func (l *JSONLoader) Load(ctx context.Context, name string, r io.ReadSeeker) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.DocumentError(errors.CodeDocumentUnreadable, name, err)
	}

	var pages []Page
	var wrapped struct {
		Pages []Page `json:"pages"`
	}
	if err := json.Unmarshal(data, &wrapped); err == nil && wrapped.Pages != nil {
		pages = wrapped.Pages
	} else if err := json.Unmarshal(data, &pages); err != nil {
		return nil, errors.DocumentError(errors.CodeDocumentUnreadable, name, err)
	}

	for i := range pages {
		if pages[i].Number == 0 {
			pages[i].Number = i + 1
		}
		if len(pages[i].Tables) == 0 {
			pages[i].Tables = detectTables(pages[i].Lines())
		}
		pages[i].Text = flattenCells(pages[i].Text)
	}

	return &Document{Name: name, Pages: pages}, nil
}
