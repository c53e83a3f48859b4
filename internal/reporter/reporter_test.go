package reporter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"insurance-coverage-reconciler/internal/models"
	"insurance-coverage-reconciler/internal/reconciler"
	"insurance-coverage-reconciler/pkg/errors"
	"insurance-coverage-reconciler/pkg/logger"
)

func createSampleBatchResult() *reconciler.BatchResult {
	premium := int64(35000)
	report := &models.ReconciliationReport{
		Matched: []models.MatchResult{
			{
				Target:     models.TargetLabel{Text: "질병수술비", Row: 11, Column: 2},
				Amount:     300_000,
				Provenance: "[합산] 질병수술비: 질병수술비, 특정질병수술비",
				Sources:    []string{"질병수술비", "특정질병수술비"},
				Confidence: models.RuleConfidence,
			},
			{
				Target:     models.TargetLabel{Text: "뇌졸증", Row: 12, Column: 2},
				Amount:     20_000_000,
				Provenance: "뇌졸중진단비",
				Confidence: models.RuleConfidence,
			},
		},
		UnmatchedTargets: []models.TargetLabel{{Text: "깁스", Row: 13, Column: 2}},
		UnmatchedRaw:     []models.RawCoverageItem{{Name: "기타특약", Amount: 1_000_000, Page: 2}},
	}

	return &reconciler.BatchResult{
		Documents: []reconciler.DocumentResult{
			{
				Index: 0,
				Name:  "kb.pdf",
				Info: &models.DocumentInfo{
					Name:        "kb.pdf",
					Issuer:      models.IssuerKB,
					IssuerName:  "KB손해보험",
					ProductName: "KB 플러스 운전자보험",
					Premium:     &premium,
					PageCount:   3,
					Strategy:    "kb_line",
					Coverages: []models.RawCoverageItem{
						{Name: "질병수술비", Amount: 100_000, Page: 2},
						{Name: "특정질병수술비", Amount: 200_000, Page: 2},
						{Name: "뇌졸중진단비", Amount: 20_000_000, Page: 2},
						{Name: "기타특약", Amount: 1_000_000, Page: 2},
					},
				},
				Report:   report,
				Duration: 120 * time.Millisecond,
			},
			{
				Index:    1,
				Name:     "broken.pdf",
				Err:      errors.DocumentError(errors.CodeDocumentUnreadable, "broken.pdf", nil),
				Error:    "document could not be read: broken.pdf",
				Duration: 5 * time.Millisecond,
			},
		},
		Summary: reconciler.BatchSummary{
			Documents:        2,
			Succeeded:        1,
			Failed:           1,
			Coverages:        4,
			MatchedTargets:   2,
			UnmatchedTargets: 1,
			UnmatchedRaw:     1,
			Duration:         130 * time.Millisecond,
		},
		ProcessedAt: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestNewReportGenerator(t *testing.T) {
	tests := []struct {
		name        string
		config      *ReportConfig
		expectError bool
	}{
		{
			name:        "default config",
			config:      nil,
			expectError: false,
		},
		{
			name:        "valid config",
			config:      DefaultReportConfig(),
			expectError: false,
		},
		{
			name: "invalid format",
			config: &ReportConfig{
				Format:        "invalid",
				TableMaxWidth: 120,
			},
			expectError: true,
		},
		{
			name: "table width too small",
			config: &ReportConfig{
				Format:        FormatConsole,
				TableMaxWidth: 30,
			},
			expectError: true,
		},
		{
			name: "negative list limit",
			config: &ReportConfig{
				Format:        FormatConsole,
				TableMaxWidth: 120,
				MaxListItems:  -1,
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			generator, err := NewReportGenerator(tt.config)

			if tt.expectError {
				if err == nil {
					t.Errorf("expected error but got none")
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if generator == nil {
				t.Errorf("expected generator but got nil")
			}
		})
	}
}

func TestOutputFormatValidation(t *testing.T) {
	tests := []struct {
		format OutputFormat
		valid  bool
	}{
		{FormatConsole, true},
		{FormatJSON, true},
		{FormatCSV, true},
		{"invalid", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			if tt.format.IsValid() != tt.valid {
				t.Errorf("expected IsValid() = %v for format %s", tt.valid, tt.format)
			}
		})
	}
}

func TestGenerateReport(t *testing.T) {
	result := createSampleBatchResult()

	tests := []struct {
		name        string
		config      *ReportConfig
		checkOutput func(t *testing.T, output string)
	}{
		{
			name:   "console format",
			config: DefaultReportConfig(),
			checkOutput: func(t *testing.T, output string) {
				for _, want := range []string{
					"COVERAGE RECONCILIATION REPORT",
					"=== SUMMARY ===",
					"Succeeded: 1 (50.0%)",
					"=== DOCUMENT 1: kb.pdf ===",
					"Insurer:   KB손해보험 (kb)",
					"Premium:   35,000원",
					"1. 질병수술비 (row 11): 30만원 <- [합산] 질병수술비: 질병수술비, 특정질병수술비",
					"2. 뇌졸증 (row 12): 2000만원 <- 뇌졸중진단비",
					"Unmatched Labels (1):",
					"1. 깁스 (row 13)",
					"Unmatched Coverages (1):",
					"1. 기타특약: 1,000,000원",
					"=== DOCUMENT 2: broken.pdf ===",
					"FAILED: document could not be read: broken.pdf",
				} {
					if !strings.Contains(output, want) {
						t.Errorf("console output should contain %q", want)
					}
				}
				if strings.Contains(output, "Extracted Coverages") {
					t.Errorf("extracted coverages should be hidden by default")
				}
			},
		},
		{
			name: "console without details",
			config: &ReportConfig{
				Format:        FormatConsole,
				TableMaxWidth: 120,
			},
			checkOutput: func(t *testing.T, output string) {
				if strings.Contains(output, "Matched Labels") || strings.Contains(output, "Unmatched Labels") {
					t.Errorf("detail sections should be omitted")
				}
				if strings.Contains(output, "document could not be read") {
					t.Errorf("error detail should be omitted")
				}
				if !strings.Contains(output, "FAILED") {
					t.Errorf("failed document should still be marked")
				}
			},
		},
		{
			name: "JSON format",
			config: &ReportConfig{
				Format:                  FormatJSON,
				IncludeMatched:          true,
				IncludeUnmatchedTargets: true,
				IncludeErrors:           true,
				TableMaxWidth:           120,
			},
			checkOutput: func(t *testing.T, output string) {
				var data struct {
					Summary   reconciler.BatchSummary  `json:"summary"`
					Documents []map[string]interface{} `json:"documents"`
				}
				if err := json.Unmarshal([]byte(output), &data); err != nil {
					t.Fatalf("output should be valid JSON: %v", err)
				}
				if data.Summary.Documents != 2 {
					t.Errorf("expected 2 documents in summary, got %d", data.Summary.Documents)
				}
				if len(data.Documents) != 2 {
					t.Fatalf("expected 2 documents, got %d", len(data.Documents))
				}
				doc := data.Documents[0]
				if doc["insurer_code"] != "kb" || doc["success"] != true {
					t.Errorf("unexpected document entry: %v", doc)
				}
				if _, ok := doc["matched"]; !ok {
					t.Errorf("matched should be included")
				}
				if _, ok := doc["unmatched_coverages"]; ok {
					t.Errorf("unmatched coverages should be excluded")
				}
				if data.Documents[1]["error"] == nil || data.Documents[1]["success"] != false {
					t.Errorf("failed document should carry its error: %v", data.Documents[1])
				}
			},
		},
		{
			name:   "CSV format",
			config: &ReportConfig{Format: FormatCSV, IncludeMatched: true, IncludeUnmatchedTargets: true, IncludeUnmatchedCoverages: true, IncludeErrors: true, CSVHeaders: true, TableMaxWidth: 120},
			checkOutput: func(t *testing.T, output string) {
				records, err := csv.NewReader(strings.NewReader(output)).ReadAll()
				if err != nil {
					t.Fatalf("output should be valid CSV: %v", err)
				}
				// header, 2 matched, 1 unmatched label, 1 unmatched coverage, 1 failed document
				if len(records) != 6 {
					t.Fatalf("expected 6 records, got %d", len(records))
				}
				if records[0][0] != "Document" {
					t.Errorf("expected header row, got %v", records[0])
				}
				if records[1][1] != "Matched" || records[1][5] != "300000" || records[1][6] != "30" {
					t.Errorf("unexpected matched record: %v", records[1])
				}
				if records[5][1] != "Failed Document" {
					t.Errorf("expected failed document last, got %v", records[5])
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			generator, err := NewReportGenerator(tt.config)
			if err != nil {
				t.Fatalf("failed to create generator: %v", err)
			}

			var buf bytes.Buffer
			if err := generator.GenerateReport(result, &buf); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			tt.checkOutput(t, buf.String())
		})
	}
}

func TestGenerateReportNilResult(t *testing.T) {
	generator, _ := NewReportGenerator(nil)
	if err := generator.GenerateReport(nil, &bytes.Buffer{}); err == nil {
		t.Error("expected error for nil result")
	}
}

func TestSortByAmount(t *testing.T) {
	result := createSampleBatchResult()
	config := DefaultReportConfig()
	config.SortByAmount = true

	generator, _ := NewReportGenerator(config)
	var buf bytes.Buffer
	if err := generator.GenerateReport(result, &buf); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out := buf.String()
	if strings.Index(out, "뇌졸증 (row 12)") > strings.Index(out, "질병수술비 (row 11)") {
		t.Errorf("larger amounts should be listed first")
	}
	// the report itself is not reordered
	if result.Documents[0].Report.Matched[0].Target.Text != "질병수술비" {
		t.Errorf("sorting must not modify the result")
	}
}

func TestListTruncation(t *testing.T) {
	result := createSampleBatchResult()
	for i := 0; i < 5; i++ {
		result.Documents[0].Report.UnmatchedTargets = append(result.Documents[0].Report.UnmatchedTargets,
			models.TargetLabel{Text: fmt.Sprintf("담보%d", i), Row: 20 + i})
	}

	config := DefaultReportConfig()
	config.MaxListItems = 2
	generator, _ := NewReportGenerator(config)

	var buf bytes.Buffer
	if err := generator.GenerateReport(result, &buf); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(buf.String(), "... and 4 more") {
		t.Errorf("expected truncation notice, got:\n%s", buf.String())
	}
}

func TestUpdateConfiguration(t *testing.T) {
	generator, _ := NewReportGenerator(nil)

	if err := generator.UpdateConfiguration(&ReportConfig{Format: "xml", TableMaxWidth: 120}); err == nil {
		t.Error("expected error for invalid configuration")
	}

	config := DefaultReportConfig()
	config.Format = FormatJSON
	if err := generator.UpdateConfiguration(config); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if generator.GetConfiguration().Format != FormatJSON {
		t.Errorf("configuration was not updated")
	}
}

type failingWriter struct{}

func (failingWriter) Write(p []byte) (int, error) {
	return 0, fmt.Errorf("pipe closed")
}

func testLogger(t *testing.T) logger.Logger {
	t.Helper()
	log, err := logger.NewLogger(&logger.Config{Level: logger.ErrorLevel, Format: logger.TextFormat, Output: logger.StderrOutput})
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	return log
}

func TestSafeReportGenerator(t *testing.T) {
	t.Run("validates inputs", func(t *testing.T) {
		srg, err := NewSafeReportGenerator(nil, testLogger(t))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		err = srg.GenerateReportSafely(nil, &bytes.Buffer{})
		rerr, ok := errors.AsReconcilerError(err)
		if !ok || rerr.Code != errors.CodeMissingField {
			t.Errorf("expected missing field error, got %v", err)
		}
		if err := srg.GenerateReportSafely(createSampleBatchResult(), nil); err == nil {
			t.Error("expected error for nil writer")
		}
	})

	t.Run("invalid config", func(t *testing.T) {
		_, err := NewSafeReportGenerator(&ReportConfig{Format: "xml"}, testLogger(t))
		rerr, ok := errors.AsReconcilerError(err)
		if !ok || rerr.Code != errors.CodeInvalidConfig {
			t.Errorf("expected invalid config error, got %v", err)
		}
	})

	t.Run("unwritable output", func(t *testing.T) {
		srg, _ := NewSafeReportGenerator(nil, testLogger(t))
		err := srg.GenerateReportSafely(createSampleBatchResult(), failingWriter{})
		if err != nil {
			// console output ignores write errors, so the report succeeds
			t.Errorf("unexpected error: %v", err)
		}

		config := DefaultReportConfig()
		config.Format = FormatCSV
		srg, _ = NewSafeReportGenerator(config, testLogger(t))
		if err := srg.GenerateReportSafely(createSampleBatchResult(), failingWriter{}); err != nil {
			t.Errorf("expected console fallback to absorb the error, got %v", err)
		}
	})

	t.Run("closed file falls back to backup", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "report.csv")
		f, err := os.Create(path)
		if err != nil {
			t.Fatal(err)
		}
		f.Close()

		config := DefaultReportConfig()
		config.Format = FormatCSV
		srg, _ := NewSafeReportGenerator(config, testLogger(t))
		if err := srg.GenerateReportSafely(createSampleBatchResult(), f); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		data, err := os.ReadFile(filepath.Join(filepath.Dir(path), "report_backup.csv"))
		if err != nil {
			t.Fatalf("backup file missing: %v", err)
		}
		if !strings.HasPrefix(string(data), "Document,Type") {
			t.Errorf("unexpected backup content: %s", data)
		}
	})
}
