package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"insurance-coverage-reconciler/cmd/reconciler/config"
	"insurance-coverage-reconciler/internal/archive"
	"insurance-coverage-reconciler/internal/reconciler"
	"insurance-coverage-reconciler/internal/reporter"
	"insurance-coverage-reconciler/internal/template"
	"insurance-coverage-reconciler/pkg/logger"
)

// Flags for the reconcile command
var (
	templateFile string
	documents    []string
	outputFile   string
	customerName string
	sheetName    string
	firstColumn  int
	threshold    float64
	reportFormat string
	reportFile   string
	showProgress bool
)

// reconcileCmd represents the reconcile command
var reconcileCmd = &cobra.Command{
	Use:   "reconcile [flags] DOCUMENT...",
	Short: "Fill a coverage analysis workbook from policy documents",
	Long: `Reconcile extracts the coverages of every policy document and writes the
matching amounts, in 만원, into the analysis workbook. The first document
fills column D, the second column E and so on. Insurer, product name and
premium go into the header rows of each column.

Documents may be PDFs or JSON page dumps ({"pages":[{"text":"..."}]}).
A document that cannot be read is reported and skipped; the others are
still written.

Examples:
  # Fill a template from two policies
  reconciler reconcile --template analysis.xlsx kb.pdf samsung.pdf

  # Name the output after the customer and print a JSON report
  reconciler reconcile -t analysis.xlsx --customer 홍길동 \
    --report-format json --report-file report.json policy.pdf

  # Use a specific sheet and extra rules
  reconciler reconcile -t analysis.xlsx --sheet 보장분석 --rules rules.yaml policy.pdf

  # With a progress bar
  reconciler reconcile -t analysis.xlsx --progress *.pdf`,

	Args: cobra.MinimumNArgs(1),
	PreRunE: func(cmd *cobra.Command, args []string) error {
		if err := bindFlags(cmd.Flags(), map[string]string{
			"template":      "reconcile.template",
			"output":        "reconcile.output",
			"customer":      "reconcile.customer",
			"sheet":         "template.sheet_name",
			"first-column":  "template.first_amount_column",
			"threshold":     "matching.threshold",
			"rules":         "matching.rules_file",
			"report-format": "report.format",
			"report-file":   "report.file",
			"progress":      "reconcile.progress",
			"concurrency":   "reconciler.max_concurrent_documents",
			"archive":       "archive.enabled",
			"archive-path":  "archive.path",
		}); err != nil {
			return err
		}
		return validateReconcileFlags(cmd, args)
	},
	RunE: runReconcile,
}

func init() {
	rootCmd.AddCommand(reconcileCmd)

	reconcileCmd.Flags().StringVarP(&templateFile, "template", "t", "", "coverage analysis workbook (.xlsx, required)")
	reconcileCmd.Flags().StringVarP(&outputFile, "output", "o", "", "filled workbook path (default: next to the template)")
	reconcileCmd.Flags().StringVar(&customerName, "customer", "", "customer name used in the output file name")
	reconcileCmd.Flags().StringVar(&sheetName, "sheet", "", "worksheet to fill (default: active sheet)")
	reconcileCmd.Flags().IntVar(&firstColumn, "first-column", 4, "column of the first document (4 = D)")

	reconcileCmd.Flags().Float64Var(&threshold, "threshold", 75, "similarity threshold (0-100)")
	reconcileCmd.Flags().String("rules", "", "YAML rule table laid over the built-in rules")
	reconcileCmd.Flags().Int("concurrency", 4, "documents extracted in parallel")

	reconcileCmd.Flags().StringVarP(&reportFormat, "report-format", "f", "console", "report format: console, json, csv")
	reconcileCmd.Flags().StringVar(&reportFile, "report-file", "", "report file path (default: stdout)")
	reconcileCmd.Flags().BoolVar(&showProgress, "progress", false, "show a progress bar")

	reconcileCmd.Flags().Bool("archive", true, "record the run in the archive")
	reconcileCmd.Flags().String("archive-path", "coverage-runs.db", "archive database path")
}

var templateExtensions = map[string]bool{".xlsx": true, ".xlsm": true}

func validateReconcileFlags(cmd *cobra.Command, args []string) error {
	// Get values from viper (allows override from config file)
	templateFile = viper.GetString("reconcile.template")
	outputFile = viper.GetString("reconcile.output")
	customerName = strings.TrimSpace(viper.GetString("reconcile.customer"))
	sheetName = viper.GetString("template.sheet_name")
	firstColumn = viper.GetInt("template.first_amount_column")
	threshold = viper.GetFloat64("matching.threshold")
	reportFormat = viper.GetString("report.format")
	reportFile = viper.GetString("report.file")
	showProgress = viper.GetBool("reconcile.progress")
	documents = args

	if reportFormat == "" {
		reportFormat = string(reporter.FormatConsole)
	}

	if templateFile == "" {
		return fmt.Errorf("template is required")
	}
	if err := validateFileExists(templateFile, "template workbook"); err != nil {
		return err
	}
	if ext := strings.ToLower(filepath.Ext(templateFile)); !templateExtensions[ext] {
		return fmt.Errorf("template must be an .xlsx workbook: %s", templateFile)
	}

	if err := validateDocuments(documents); err != nil {
		return err
	}

	if !reporter.OutputFormat(reportFormat).IsValid() {
		return fmt.Errorf("invalid report format '%s'. Valid formats: console, json, csv", reportFormat)
	}

	if threshold < 0.0 || threshold > 100.0 {
		return fmt.Errorf("threshold must be between 0.0 and 100.0")
	}
	if viper.GetInt("reconciler.max_concurrent_documents") < 0 {
		return fmt.Errorf("concurrency cannot be negative")
	}

	if outputFile == "" {
		outputFile = config.DefaultOutputPath(templateFile, customerName)
	}
	if filepath.Clean(outputFile) == filepath.Clean(templateFile) {
		return fmt.Errorf("output would overwrite the template: %s", outputFile)
	}
	if err := validateOutputDir(outputFile); err != nil {
		return err
	}
	return validateOutputDir(reportFile)
}

func runReconcile(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := logger.GetGlobalLogger().WithComponent("cli")
	log.WithFields(logger.Fields{
		"template":  templateFile,
		"documents": len(documents),
		"output":    outputFile,
	}).Info("Starting reconciliation")

	service, err := newService(showProgress)
	if err != nil {
		return err
	}

	templateConfig, err := config.CreateTemplateConfig(sheetName, firstColumn)
	if err != nil {
		return fmt.Errorf("failed to create template config: %w", err)
	}

	workbook, err := template.Open(templateFile, templateConfig)
	if err != nil {
		return err
	}
	defer workbook.Close()

	layout, err := workbook.ResolvedLayout()
	if err != nil {
		return err
	}
	targets, err := workbook.TargetLabels(layout.StartRow)
	if err != nil {
		return err
	}
	log.WithFields(logger.Fields{
		"sheet":     workbook.Sheet(),
		"start_row": layout.StartRow,
		"targets":   len(targets),
	}).Debug("Template layout resolved")

	request := &reconciler.BatchRequest{Targets: targets, Threshold: threshold}
	for _, p := range documents {
		request.Documents = append(request.Documents, reconciler.DocumentInput{Path: p})
	}

	var progress reconciler.ProgressCallback
	if showProgress {
		progress = progressCallback(newProgressBar(len(request.Documents), "Extracting documents"))
	}

	batch, err := service.ProcessBatch(ctx, request, progress)
	if err != nil {
		return err
	}

	written := 0
	for _, d := range batch.Documents {
		if d.Failed() {
			continue
		}
		column := templateConfig.AmountColumn(d.Index)
		if err := workbook.WriteDocumentInfo(d.Info, layout, column); err != nil {
			return err
		}
		n, err := workbook.WriteReport(d.Report, column)
		if err != nil {
			return err
		}
		written += n
	}

	if batch.Summary.Succeeded > 0 {
		if err := workbook.SaveAs(outputFile); err != nil {
			return err
		}
	}

	if err := writeBatchReport(batch); err != nil {
		return err
	}

	recordRun(ctx, batch, log)

	if viper.GetBool("verbose") {
		fmt.Fprintf(os.Stderr, "\nReconciliation completed.\n")
		fmt.Fprintf(os.Stderr, "Processed %d documents (%d failed), %d coverages extracted.\n",
			batch.Summary.Documents, batch.Summary.Failed, batch.Summary.Coverages)
		fmt.Fprintf(os.Stderr, "Filled %d cells, %d labels left empty.\n", written, batch.Summary.UnmatchedTargets)
		if batch.Summary.Succeeded > 0 {
			fmt.Fprintf(os.Stderr, "Workbook written to %s\n", outputFile)
		}
		fmt.Fprintf(os.Stderr, "Processing time: %v\n", batch.Summary.Duration)
	}

	// partial failures are reported above; only a batch with nothing usable fails
	if batch.Summary.Succeeded == 0 {
		return batch.Errors()
	}
	return nil
}

func writeBatchReport(batch *reconciler.BatchResult) error {
	reportConfig, err := config.CreateReportConfig(reportFormat)
	if err != nil {
		return err
	}
	generator, err := reporter.NewSafeReportGenerator(reportConfig, logger.GetGlobalLogger())
	if err != nil {
		return fmt.Errorf("failed to create report generator: %w", err)
	}

	output, closeOutput, err := openOutput(reportFile)
	if err != nil {
		return err
	}
	defer closeOutput()

	return generator.GenerateReportSafely(batch, output)
}

func recordRun(ctx context.Context, batch *reconciler.BatchResult, log logger.Logger) {
	store, err := openArchive()
	if err != nil {
		log.WithError(err).Warn("Run archive unavailable")
		return
	}
	if store == nil {
		return
	}
	defer store.Close()

	run := archive.NewRun("cli", customerName, batch)
	run.Template = templateFile
	if batch.Summary.Succeeded > 0 {
		run.Output = outputFile
	}
	id, err := store.Record(ctx, run)
	if err != nil {
		log.WithError(err).Warn("Failed to archive run")
		return
	}
	log.WithField("run_id", id).Info("Run archived")
}
