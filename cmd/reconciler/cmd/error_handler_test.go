package cmd

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"testing"

	"insurance-coverage-reconciler/pkg/errors"
)

func newTestHandler(t *testing.T, verbose bool) (*CLIErrorHandler, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	return &CLIErrorHandler{logger: testLogger(t), out: &buf, verbose: verbose}, &buf
}

func TestHandleError(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		verbose      bool
		expectedCode int
		contains     []string
	}{
		{
			name:         "nil error",
			err:          nil,
			expectedCode: 0,
		},
		{
			name:         "file error",
			err:          errors.FileError(errors.CodeFileNotFound, "/tmp/missing.pdf", os.ErrNotExist),
			expectedCode: 2,
			contains:     []string{"Error:", "Suggestion:", "File error help"},
		},
		{
			name:         "document error with cause in verbose mode",
			err:          errors.DocumentError(errors.CodeDocumentEncrypted, "locked.pdf", fmt.Errorf("password required")),
			verbose:      true,
			expectedCode: 3,
			contains:     []string{"Document error help", "Underlying error: password required"},
		},
		{
			name: "batch summary",
			err: errors.NewErrorSummary([]*errors.ReconcilerError{
				errors.DocumentError(errors.CodeDocumentUnreadable, "a.pdf", nil),
				errors.DocumentError(errors.CodeUnsupportedDocument, "b.txt", nil),
			}),
			expectedCode: 3,
			contains:     []string{"2 document(s) could not be processed", "1. ", "2. ", "Document error help"},
		},
		{
			name:         "wrapped summary",
			err:          fmt.Errorf("reconcile: %w", errors.NewErrorSummary([]*errors.ReconcilerError{errors.DocumentError(errors.CodeDocumentUnreadable, "a.pdf", nil)})),
			expectedCode: 3,
			contains:     []string{"1 document(s) could not be processed"},
		},
		{
			name:         "plain not found",
			err:          fmt.Errorf("open x.xlsx: %w", os.ErrNotExist),
			expectedCode: 2,
			contains:     []string{"File not found"},
		},
		{
			name:         "plain permission",
			err:          fmt.Errorf("open x.xlsx: permission denied"),
			expectedCode: 2,
			contains:     []string{"Permission denied"},
		},
		{
			name:         "generic",
			err:          fmt.Errorf("template is required"),
			expectedCode: 1,
			contains:     []string{"Error: template is required", "reconciler --help"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler, buf := newTestHandler(t, tt.verbose)

			code := handler.HandleError(tt.err)
			if code != tt.expectedCode {
				t.Errorf("expected exit code %d, got %d", tt.expectedCode, code)
			}

			out := buf.String()
			for _, want := range tt.contains {
				if !strings.Contains(out, want) {
					t.Errorf("expected output to contain %q, got:\n%s", want, out)
				}
			}
		})
	}
}

func TestGetCategoryHelp(t *testing.T) {
	handler, _ := newTestHandler(t, false)

	categories := []errors.ErrorCategory{
		errors.CategoryFile,
		errors.CategoryDocument,
		errors.CategoryParse,
		errors.CategoryValidation,
		errors.CategoryConfiguration,
		errors.CategoryReconciliation,
	}
	seen := make(map[string]bool)
	for _, c := range categories {
		help := handler.getCategoryHelp(c)
		if help == "" {
			t.Errorf("no help for category %s", c)
		}
		if seen[help] {
			t.Errorf("category %s shares help text with another category", c)
		}
		seen[help] = true
	}

	if !strings.Contains(handler.getCategoryHelp(errors.ErrorCategory("other")), "--help") {
		t.Error("default help should point at --help")
	}
}
