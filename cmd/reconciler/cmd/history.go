package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"insurance-coverage-reconciler/internal/archive"
	"insurance-coverage-reconciler/internal/models"
)

var historyCmd = &cobra.Command{
	Use:   "history [RUN_ID]",
	Short: "List archived reconcile runs, or show one run",
	Long: `History reads the run archive written by reconcile and serve.

Without arguments it lists the most recent runs. With a run id it shows the
documents of that run and what was matched for each.

Examples:
  reconciler history
  reconciler history --limit 5
  reconciler history 3f0c6a0e-8d5b-4c1e-9a43-2f1f6f0b7d11
  reconciler history --prune-before 720h`,

	Args: cobra.MaximumNArgs(1),
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return bindFlags(cmd.Flags(), map[string]string{
			"archive-path": "archive.path",
		})
	},
	RunE: runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().Int("limit", 20, "number of runs to list (0 for all)")
	historyCmd.Flags().Bool("json", false, "print JSON instead of a table")
	historyCmd.Flags().Duration("prune-before", 0, "delete runs older than this age, e.g. 720h")
	historyCmd.Flags().String("archive-path", "coverage-runs.db", "archive database path")
}

func runHistory(cmd *cobra.Command, args []string) error {
	path := viper.GetString("archive.path")
	if err := validateFileExists(path, "run archive"); err != nil {
		return err
	}

	store, err := archive.Open(path)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := commandContext(cmd)
	asJSON, _ := cmd.Flags().GetBool("json")
	out := cmd.OutOrStdout()

	if age, _ := cmd.Flags().GetDuration("prune-before"); age > 0 {
		removed, err := store.Prune(ctx, time.Now().Add(-age))
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Removed %d runs older than %s\n", removed, age)
		return nil
	}

	if len(args) == 1 {
		run, err := store.Get(ctx, args[0])
		if err != nil {
			return err
		}
		if asJSON {
			return writeJSON(out, run)
		}
		return writeRunDetail(out, run)
	}

	limit, _ := cmd.Flags().GetInt("limit")
	runs, err := store.List(ctx, limit)
	if err != nil {
		return err
	}
	if asJSON {
		return writeJSON(out, runs)
	}
	return writeRunList(out, runs)
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeRunList(w io.Writer, runs []archive.Run) error {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs archived yet.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "ID\tCREATED\tSOURCE\tCUSTOMER\tDOCS\tFAILED\tMATCHED\tUNMATCHED\n")
	fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
		strings.Repeat("-", 36), strings.Repeat("-", 19), strings.Repeat("-", 6), strings.Repeat("-", 8),
		strings.Repeat("-", 4), strings.Repeat("-", 6), strings.Repeat("-", 7), strings.Repeat("-", 9))
	for _, r := range runs {
		customer := r.Customer
		if customer == "" {
			customer = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%d\n",
			r.ID, r.CreatedAt.Local().Format("2006-01-02 15:04:05"), r.Source, customer,
			r.Summary.Documents, r.Summary.Failed, r.Summary.MatchedTargets, r.Summary.UnmatchedTargets)
	}
	return tw.Flush()
}

func writeRunDetail(w io.Writer, run *archive.Run) error {
	fmt.Fprintf(w, "Run:       %s\n", run.ID)
	fmt.Fprintf(w, "Created:   %s\n", run.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "Source:    %s\n", run.Source)
	if run.Customer != "" {
		fmt.Fprintf(w, "Customer:  %s\n", run.Customer)
	}
	if run.Template != "" {
		fmt.Fprintf(w, "Template:  %s\n", run.Template)
	}
	if run.Output != "" {
		fmt.Fprintf(w, "Output:    %s\n", run.Output)
	}
	fmt.Fprintf(w, "Documents: %d (%d failed), duration %v\n",
		run.Summary.Documents, run.Summary.Failed, run.Summary.Duration)

	for i, d := range run.Documents {
		fmt.Fprintf(w, "\n%d. %s\n", i+1, d.Name)
		if d.Error != "" {
			fmt.Fprintf(w, "   FAILED: %s\n", d.Error)
			continue
		}
		premium := "-"
		if d.Premium != nil {
			premium = models.FormatWon(*d.Premium)
		}
		fmt.Fprintf(w, "   %s / %s / %s, %d coverages, %d matched\n",
			d.Issuer.DisplayName(), d.ProductName, premium, d.Coverages, d.Matched)
		if d.Report == nil {
			continue
		}

		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		for _, m := range d.Report.Matched {
			fmt.Fprintf(tw, "   row %d\t%s\t%d만원\t<- %s\n", m.Target.Row, m.Target.Text, models.Manwon(m.Amount), m.Provenance)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}
	return nil
}
