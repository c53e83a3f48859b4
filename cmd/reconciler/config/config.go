package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"insurance-coverage-reconciler/internal/archive"
	"insurance-coverage-reconciler/internal/matcher"
	"insurance-coverage-reconciler/internal/reconciler"
	"insurance-coverage-reconciler/internal/reporter"
	"insurance-coverage-reconciler/internal/server"
	"insurance-coverage-reconciler/internal/template"
	"insurance-coverage-reconciler/pkg/logger"
)

// CreateLoggerConfig creates a logger configuration. Verbose forces debug
// level regardless of level.
func CreateLoggerConfig(level, format string, verbose bool) (*logger.Config, error) {
	config := logger.DefaultConfig()
	config.Output = logger.StderrOutput

	if level != "" {
		config.Level = logger.Level(strings.ToLower(level))
	}
	if format != "" {
		config.Format = logger.Format(strings.ToLower(format))
	}
	if verbose {
		config.Level = logger.DebugLevel
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// CreateMatchingConfig creates a matching configuration with an optional rule
// overlay file
func CreateMatchingConfig(rulesFile string, threshold float64) (*matcher.MatchingConfig, error) {
	config := matcher.DefaultMatchingConfig()
	config.RulesFile = rulesFile
	config.Threshold = threshold

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// CreateReconcilerConfig creates a reconciler configuration
func CreateReconcilerConfig(concurrency int, timeout time.Duration, showProgress bool) (*reconciler.Config, error) {
	config := reconciler.DefaultConfig()

	if concurrency > 0 {
		config.MaxConcurrentDocuments = concurrency
	}
	if timeout >= 0 {
		config.DocumentTimeout = timeout
	}
	config.ProgressReporting = showProgress

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// CreateReportConfig creates a report configuration for the specified output format
func CreateReportConfig(format string) (*reporter.ReportConfig, error) {
	config := reporter.DefaultReportConfig()

	switch reporter.OutputFormat(format) {
	case reporter.FormatConsole:
		config.Format = reporter.FormatConsole
		config.IncludeMatched = true
		config.IncludeUnmatchedTargets = true
		config.IncludeUnmatchedCoverages = true
	case reporter.FormatJSON:
		config.Format = reporter.FormatJSON
		config.IncludeCoverages = true
		config.MaxListItems = 0
	case reporter.FormatCSV:
		config.Format = reporter.FormatCSV
		config.CSVHeaders = true
		config.CSVDelimiter = ','
		config.IncludeCoverages = false
	default:
		return nil, fmt.Errorf("invalid output format '%s'. Valid formats: console, json, csv", format)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// CreateTemplateConfig creates a workbook configuration. An empty sheet uses
// the active sheet; firstColumn <= 0 keeps the default column D.
func CreateTemplateConfig(sheet string, firstColumn int) (*template.Config, error) {
	config := template.DefaultConfig()
	config.SheetName = sheet
	if firstColumn > 0 {
		config.FirstAmountColumn = firstColumn
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// CreateServerConfig creates an HTTP server configuration
func CreateServerConfig(host string, port int, maxUploadMB int64, origins []string) (*server.Config, error) {
	config := server.DefaultConfig()
	if host != "" {
		config.Host = host
	}
	if port > 0 {
		config.Port = port
	}
	if maxUploadMB > 0 {
		config.MaxUploadMB = maxUploadMB
	}
	if len(origins) > 0 {
		config.AllowedOrigins = origins
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// CreateArchiveConfig creates the run archive configuration
func CreateArchiveConfig(enabled bool, path string) (*archive.Config, error) {
	config := archive.DefaultConfig()
	config.Enabled = enabled
	if path != "" {
		config.Path = path
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// DefaultOutputPath returns where a filled workbook goes when no output path
// is given: next to the template, or named after the customer.
func DefaultOutputPath(templatePath, customer string) string {
	name := "보장분석표_매칭결과.xlsx"
	if customer != "" {
		name = customer + "_보장분석표.xlsx"
	}
	return filepath.Join(filepath.Dir(templatePath), name)
}
