package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"insurance-coverage-reconciler/internal/models"
	"insurance-coverage-reconciler/internal/reconciler"
)

var (
	extractFormat   string
	extractOutput   string
	extractProgress bool
)

var extractCmd = &cobra.Command{
	Use:   "extract [flags] DOCUMENT...",
	Short: "Extract insurer, product, premium and coverages from policy documents",
	Long: `Extract reads each policy document and prints what was found in it: the
insurer, the product name, the monthly premium and the coverage table.
No template is involved.

Examples:
  reconciler extract policy.pdf
  reconciler extract --output-format console kb.pdf samsung.pdf
  reconciler extract -o coverages.json *.pdf`,

	Args: cobra.MinimumNArgs(1),
	PreRunE: func(cmd *cobra.Command, args []string) error {
		if err := bindFlags(cmd.Flags(), map[string]string{
			"output-format": "extract.format",
			"output-file":   "extract.output",
			"progress":      "extract.progress",
			"concurrency":   "reconciler.max_concurrent_documents",
		}); err != nil {
			return err
		}
		return validateExtractFlags(cmd, args)
	},
	RunE: runExtract,
}

func init() {
	rootCmd.AddCommand(extractCmd)

	extractCmd.Flags().StringVarP(&extractFormat, "output-format", "f", "json", "output format: json, console")
	extractCmd.Flags().StringVarP(&extractOutput, "output-file", "o", "", "output file path (default: stdout)")
	extractCmd.Flags().BoolVar(&extractProgress, "progress", false, "show a progress bar")
	extractCmd.Flags().Int("concurrency", 4, "documents extracted in parallel")
}

func validateExtractFlags(cmd *cobra.Command, args []string) error {
	extractFormat = viper.GetString("extract.format")
	extractOutput = viper.GetString("extract.output")
	extractProgress = viper.GetBool("extract.progress")

	if extractFormat == "" {
		extractFormat = "json"
	}
	if extractFormat != "json" && extractFormat != "console" {
		return fmt.Errorf("invalid output format '%s'. Valid formats: json, console", extractFormat)
	}
	if err := validateDocuments(args); err != nil {
		return err
	}
	return validateOutputDir(extractOutput)
}

func runExtract(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	service, err := newService(extractProgress)
	if err != nil {
		return err
	}

	request := &reconciler.BatchRequest{}
	for _, p := range args {
		request.Documents = append(request.Documents, reconciler.DocumentInput{Path: p})
	}

	var progress reconciler.ProgressCallback
	if extractProgress {
		progress = progressCallback(newProgressBar(len(request.Documents), "Extracting documents"))
	}

	batch, err := service.ProcessBatch(ctx, request, progress)
	if err != nil {
		return err
	}

	output, closeOutput, err := openOutput(extractOutput)
	if err != nil {
		return err
	}
	defer closeOutput()

	if extractFormat == "console" {
		err = writeExtractConsole(output, batch)
	} else {
		enc := json.NewEncoder(output)
		enc.SetIndent("", "  ")
		err = enc.Encode(batch.Documents)
	}
	if err != nil {
		return fmt.Errorf("failed to write extraction output: %w", err)
	}

	if batch.Summary.Succeeded == 0 {
		return batch.Errors()
	}
	return nil
}

func writeExtractConsole(w io.Writer, batch *reconciler.BatchResult) error {
	for i, d := range batch.Documents {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "=== %s ===\n", d.Name)
		if d.Failed() {
			fmt.Fprintf(w, "FAILED: %s\n", d.Error)
			continue
		}

		info := d.Info
		premium := "-"
		if info.HasPremium() {
			premium = models.FormatWon(*info.Premium)
		}
		fmt.Fprintf(w, "Insurer:   %s (%s)\n", info.IssuerName, info.Issuer)
		fmt.Fprintf(w, "Product:   %s\n", info.ProductName)
		fmt.Fprintf(w, "Premium:   %s\n", premium)
		fmt.Fprintf(w, "Pages:     %d\n", info.PageCount)
		if info.Strategy != "" {
			fmt.Fprintf(w, "Strategy:  %s\n", info.Strategy)
		}
		fmt.Fprintf(w, "Coverages: %d\n", len(info.Coverages))

		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
		for j, c := range info.Coverages {
			fmt.Fprintf(tw, "  %d.\t%s\t%s\t\n", j+1, c.Name, models.FormatWon(c.Amount))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}
	return nil
}
