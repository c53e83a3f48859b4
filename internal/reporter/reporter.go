// Package reporter renders batch reconciliation results.
//
// Supported output formats:
//   - Console: human-readable sections for terminal display
//   - JSON: structured data for programmatic consumption
//   - CSV: one row per matched label, unmatched item or failed document
//
// Example usage:
//
//	generator, err := reporter.NewReportGenerator(&reporter.ReportConfig{Format: reporter.FormatJSON})
//	err = generator.GenerateReport(batch, os.Stdout)
package reporter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"insurance-coverage-reconciler/internal/models"
	"insurance-coverage-reconciler/internal/reconciler"
)

// OutputFormat represents the supported report output formats
type OutputFormat string

const (
	FormatConsole OutputFormat = "console"
	FormatJSON    OutputFormat = "json"
	FormatCSV     OutputFormat = "csv"
)

// IsValid checks if the output format is supported
func (f OutputFormat) IsValid() bool {
	switch f {
	case FormatConsole, FormatJSON, FormatCSV:
		return true
	default:
		return false
	}
}

// ReportConfig holds configuration options for report generation
type ReportConfig struct {
	Format OutputFormat `json:"format" mapstructure:"format"`

	// Detail level options
	IncludeMatched            bool `json:"include_matched" mapstructure:"include_matched"`
	IncludeUnmatchedTargets   bool `json:"include_unmatched_targets" mapstructure:"include_unmatched_targets"`
	IncludeUnmatchedCoverages bool `json:"include_unmatched_coverages" mapstructure:"include_unmatched_coverages"`
	IncludeCoverages          bool `json:"include_coverages" mapstructure:"include_coverages"`
	IncludeErrors             bool `json:"include_errors" mapstructure:"include_errors"`

	// Console formatting options
	TableMaxWidth int `json:"table_max_width" mapstructure:"table_max_width"`
	MaxListItems  int `json:"max_list_items" mapstructure:"max_list_items"`

	// CSV options
	CSVDelimiter rune `json:"csv_delimiter" mapstructure:"csv_delimiter"`
	CSVHeaders   bool `json:"csv_headers" mapstructure:"csv_headers"`

	SortByAmount bool `json:"sort_by_amount" mapstructure:"sort_by_amount"`
}

// DefaultReportConfig returns a default report configuration
func DefaultReportConfig() *ReportConfig {
	return &ReportConfig{
		Format:                    FormatConsole,
		IncludeMatched:            true,
		IncludeUnmatchedTargets:   true,
		IncludeUnmatchedCoverages: true,
		IncludeCoverages:          false,
		IncludeErrors:             true,
		TableMaxWidth:             120,
		MaxListItems:              50,
		CSVDelimiter:              ',',
		CSVHeaders:                true,
		SortByAmount:              false,
	}
}

// Validate validates the report configuration
func (c *ReportConfig) Validate() error {
	if !c.Format.IsValid() {
		return fmt.Errorf("invalid output format: %s", c.Format)
	}
	if c.TableMaxWidth < 50 {
		return fmt.Errorf("table max width must be at least 50 characters, got %d", c.TableMaxWidth)
	}
	if c.MaxListItems < 0 {
		return fmt.Errorf("max list items cannot be negative, got %d", c.MaxListItems)
	}
	return nil
}

// ReportGenerator generates batch reports in various formats
type ReportGenerator struct {
	config *ReportConfig
}

// NewReportGenerator creates a new report generator with the specified configuration
func NewReportGenerator(config *ReportConfig) (*ReportGenerator, error) {
	if config == nil {
		config = DefaultReportConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid report configuration: %w", err)
	}
	return &ReportGenerator{config: config}, nil
}

// GenerateReport writes a report of the batch result to writer
func (rg *ReportGenerator) GenerateReport(result *reconciler.BatchResult, writer io.Writer) error {
	if result == nil {
		return fmt.Errorf("batch result cannot be nil")
	}

	switch rg.config.Format {
	case FormatConsole:
		return rg.generateConsoleReport(result, writer)
	case FormatJSON:
		return rg.generateJSONReport(result, writer)
	case FormatCSV:
		return rg.generateCSVReport(result, writer)
	default:
		return fmt.Errorf("unsupported output format: %s", rg.config.Format)
	}
}

func (rg *ReportGenerator) generateConsoleReport(result *reconciler.BatchResult, writer io.Writer) error {
	fmt.Fprintf(writer, "COVERAGE RECONCILIATION REPORT\n")
	fmt.Fprintf(writer, "Generated: %s\n", result.ProcessedAt.Format(time.RFC3339))
	fmt.Fprintf(writer, "Processing Duration: %v\n\n", result.Summary.Duration)

	fmt.Fprintf(writer, "=== SUMMARY ===\n")
	rg.printSummary(result.Summary, writer)
	fmt.Fprintf(writer, "\n")

	for _, doc := range result.Documents {
		fmt.Fprintf(writer, "=== DOCUMENT %d: %s ===\n", doc.Index+1, doc.Name)
		if doc.Failed() {
			if rg.config.IncludeErrors {
				fmt.Fprintf(writer, "FAILED: %v\n", doc.Err)
			} else {
				fmt.Fprintf(writer, "FAILED\n")
			}
			fmt.Fprintf(writer, "\n")
			continue
		}
		rg.printDocument(doc, writer)
		fmt.Fprintf(writer, "\n")
	}
	return nil
}

func (rg *ReportGenerator) generateJSONReport(result *reconciler.BatchResult, writer io.Writer) error {
	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(rg.filterResultForOutput(result))
}

func (rg *ReportGenerator) generateCSVReport(result *reconciler.BatchResult, writer io.Writer) error {
	csvWriter := csv.NewWriter(writer)
	if rg.config.CSVDelimiter != 0 {
		csvWriter.Comma = rg.config.CSVDelimiter
	}
	defer csvWriter.Flush()

	if rg.config.CSVHeaders {
		headers := []string{
			"Document",
			"Type",
			"Label",
			"Row",
			"Coverage",
			"Amount",
			"Amount_Manwon",
			"Notes",
		}
		if err := csvWriter.Write(headers); err != nil {
			return fmt.Errorf("failed to write CSV headers: %w", err)
		}
	}

	for _, doc := range result.Documents {
		if doc.Failed() {
			if !rg.config.IncludeErrors {
				continue
			}
			if err := csvWriter.Write([]string{doc.Name, "Failed Document", "", "", "", "", "", doc.Error}); err != nil {
				return fmt.Errorf("failed to write error record: %w", err)
			}
			continue
		}
		if doc.Report == nil {
			continue
		}

		if rg.config.IncludeMatched {
			for _, m := range rg.sortedMatches(doc.Report.Matched) {
				record := []string{
					doc.Name,
					"Matched",
					m.Target.Text,
					strconv.Itoa(m.Target.Row),
					m.Provenance,
					strconv.FormatInt(m.Amount, 10),
					strconv.FormatInt(models.Manwon(m.Amount), 10),
					fmt.Sprintf("confidence %.0f", m.Confidence),
				}
				if err := csvWriter.Write(record); err != nil {
					return fmt.Errorf("failed to write matched record: %w", err)
				}
			}
		}

		if rg.config.IncludeUnmatchedTargets {
			for _, t := range doc.Report.UnmatchedTargets {
				record := []string{doc.Name, "Unmatched Label", t.Text, strconv.Itoa(t.Row), "", "", "", "No coverage found"}
				if err := csvWriter.Write(record); err != nil {
					return fmt.Errorf("failed to write unmatched label record: %w", err)
				}
			}
		}

		if rg.config.IncludeUnmatchedCoverages {
			for _, c := range rg.sortedCoverages(doc.Report.UnmatchedRaw) {
				record := []string{
					doc.Name,
					"Unmatched Coverage",
					"",
					"",
					c.Name,
					strconv.FormatInt(c.Amount, 10),
					strconv.FormatInt(models.Manwon(c.Amount), 10),
					fmt.Sprintf("page %d", c.Page),
				}
				if err := csvWriter.Write(record); err != nil {
					return fmt.Errorf("failed to write unmatched coverage record: %w", err)
				}
			}
		}
	}

	csvWriter.Flush()
	return csvWriter.Error()
}

// Helper methods for console output formatting

func (rg *ReportGenerator) printSummary(summary reconciler.BatchSummary, writer io.Writer) {
	fmt.Fprintf(writer, "Documents:\n")
	fmt.Fprintf(writer, "  Total:     %d\n", summary.Documents)
	fmt.Fprintf(writer, "  Succeeded: %d (%.1f%%)\n",
		summary.Succeeded, rg.calculatePercentage(summary.Succeeded, summary.Documents))
	fmt.Fprintf(writer, "  Failed:    %d (%.1f%%)\n",
		summary.Failed, rg.calculatePercentage(summary.Failed, summary.Documents))

	targets := summary.MatchedTargets + summary.UnmatchedTargets
	fmt.Fprintf(writer, "\nTemplate Labels:\n")
	fmt.Fprintf(writer, "  Matched:   %d (%.1f%%)\n",
		summary.MatchedTargets, rg.calculatePercentage(summary.MatchedTargets, targets))
	fmt.Fprintf(writer, "  Unmatched: %d (%.1f%%)\n",
		summary.UnmatchedTargets, rg.calculatePercentage(summary.UnmatchedTargets, targets))

	fmt.Fprintf(writer, "\nCoverages:\n")
	fmt.Fprintf(writer, "  Extracted: %d\n", summary.Coverages)
	fmt.Fprintf(writer, "  Unused:    %d\n", summary.UnmatchedRaw)
}

func (rg *ReportGenerator) printDocument(doc reconciler.DocumentResult, writer io.Writer) {
	info := doc.Info
	fmt.Fprintf(writer, "Insurer:   %s (%s)\n", info.IssuerName, info.Issuer)
	fmt.Fprintf(writer, "Product:   %s\n", info.ProductName)
	if info.HasPremium() {
		fmt.Fprintf(writer, "Premium:   %s\n", models.FormatWon(*info.Premium))
	} else {
		fmt.Fprintf(writer, "Premium:   -\n")
	}
	fmt.Fprintf(writer, "Pages:     %d\n", info.PageCount)
	fmt.Fprintf(writer, "Strategy:  %s\n", info.Strategy)
	fmt.Fprintf(writer, "Coverages: %d\n", len(info.Coverages))

	if rg.config.IncludeCoverages && len(info.Coverages) > 0 {
		fmt.Fprintf(writer, "\nExtracted Coverages (%d):\n", len(info.Coverages))
		rg.printCoverageList(info.Coverages, writer)
	}

	report := doc.Report
	if report == nil {
		return
	}

	if rg.config.IncludeMatched && len(report.Matched) > 0 {
		fmt.Fprintf(writer, "\nMatched Labels (%d):\n", len(report.Matched))
		matches := rg.sortedMatches(report.Matched)
		for i, m := range matches {
			if rg.truncated(i, len(matches), writer) {
				break
			}
			fmt.Fprintf(writer, "  %d. %s (row %d): %d만원 <- %s\n",
				i+1, m.Target.Text, m.Target.Row, models.Manwon(m.Amount), rg.clip(m.Provenance))
		}
	}

	if rg.config.IncludeUnmatchedTargets && len(report.UnmatchedTargets) > 0 {
		fmt.Fprintf(writer, "\nUnmatched Labels (%d):\n", len(report.UnmatchedTargets))
		for i, t := range report.UnmatchedTargets {
			if rg.truncated(i, len(report.UnmatchedTargets), writer) {
				break
			}
			fmt.Fprintf(writer, "  %d. %s (row %d)\n", i+1, t.Text, t.Row)
		}
	}

	if rg.config.IncludeUnmatchedCoverages && len(report.UnmatchedRaw) > 0 {
		fmt.Fprintf(writer, "\nUnmatched Coverages (%d):\n", len(report.UnmatchedRaw))
		rg.printCoverageList(rg.sortedCoverages(report.UnmatchedRaw), writer)
	}
}

func (rg *ReportGenerator) printCoverageList(items []models.RawCoverageItem, writer io.Writer) {
	for i, c := range items {
		if rg.truncated(i, len(items), writer) {
			break
		}
		fmt.Fprintf(writer, "  %d. %s: %s\n", i+1, rg.clip(c.Name), models.FormatWon(c.Amount))
	}
}

// truncated prints the "and N more" line once the list limit is reached
func (rg *ReportGenerator) truncated(i, total int, writer io.Writer) bool {
	if rg.config.MaxListItems == 0 || i < rg.config.MaxListItems {
		return false
	}
	fmt.Fprintf(writer, "  ... and %d more\n", total-i)
	return true
}

func (rg *ReportGenerator) clip(s string) string {
	limit := rg.config.TableMaxWidth - 20
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit-3]) + "..."
}

// Helper methods

func (rg *ReportGenerator) sortedMatches(matches []models.MatchResult) []models.MatchResult {
	if !rg.config.SortByAmount {
		return matches
	}
	out := append([]models.MatchResult(nil), matches...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Amount > out[j].Amount
	})
	return out
}

func (rg *ReportGenerator) sortedCoverages(items []models.RawCoverageItem) []models.RawCoverageItem {
	if !rg.config.SortByAmount {
		return items
	}
	out := append([]models.RawCoverageItem(nil), items...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Amount > out[j].Amount
	})
	return out
}

func (rg *ReportGenerator) calculatePercentage(part, total int) float64 {
	if total == 0 {
		return 0.0
	}
	return float64(part) / float64(total) * 100.0
}

func (rg *ReportGenerator) filterResultForOutput(result *reconciler.BatchResult) map[string]interface{} {
	documents := make([]map[string]interface{}, 0, len(result.Documents))
	for _, doc := range result.Documents {
		entry := map[string]interface{}{
			"index":       doc.Index,
			"name":        doc.Name,
			"duration_ms": doc.Duration.Milliseconds(),
		}
		if doc.Failed() {
			entry["success"] = false
			if rg.config.IncludeErrors {
				entry["error"] = doc.Error
			}
			documents = append(documents, entry)
			continue
		}

		entry["success"] = true
		info := doc.Info
		entry["insurer_code"] = info.Issuer.String()
		entry["insurer_name"] = info.IssuerName
		entry["product_name"] = info.ProductName
		entry["premium"] = info.Premium
		entry["strategy"] = info.Strategy
		entry["coverage_count"] = len(info.Coverages)
		if rg.config.IncludeCoverages {
			entry["coverages"] = info.Coverages
		}

		if report := doc.Report; report != nil {
			entry["summary"] = report.Summary()
			if rg.config.IncludeMatched {
				entry["matched"] = rg.sortedMatches(report.Matched)
			}
			if rg.config.IncludeUnmatchedTargets {
				entry["unmatched_targets"] = report.UnmatchedTargets
			}
			if rg.config.IncludeUnmatchedCoverages {
				entry["unmatched_coverages"] = rg.sortedCoverages(report.UnmatchedRaw)
			}
		}
		documents = append(documents, entry)
	}

	return map[string]interface{}{
		"summary":      result.Summary,
		"processed_at": result.ProcessedAt,
		"documents":    documents,
	}
}

// UpdateConfiguration updates the report generator configuration
func (rg *ReportGenerator) UpdateConfiguration(config *ReportConfig) error {
	if err := config.Validate(); err != nil {
		return fmt.Errorf("invalid report configuration: %w", err)
	}
	rg.config = config
	return nil
}

// GetConfiguration returns the current configuration
func (rg *ReportGenerator) GetConfiguration() *ReportConfig {
	return rg.config
}
