package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"insurance-coverage-reconciler/internal/matcher"
)

var rulesCmd = &cobra.Command{
	Use:   "rules [LABEL...]",
	Short: "Print the resolved rule table, or the rule of given labels",
	Long: `Rules prints the rule table used to fill template labels, after any
--rules overlay has been applied. The output is YAML and can be edited and
passed back with --rules.

With label arguments only the rules for those labels are printed, which
shows how a label is normalised and resolved.

Examples:
  reconciler rules > rules.yaml
  reconciler rules --rules custom.yaml
  reconciler rules 뇌졸중진단 "1종수술"`,

	PreRunE: func(cmd *cobra.Command, args []string) error {
		return bindFlags(cmd.Flags(), map[string]string{
			"rules": "matching.rules_file",
		})
	},
	RunE: runRules,
}

func init() {
	rootCmd.AddCommand(rulesCmd)

	rulesCmd.Flags().String("rules", "", "YAML rule table laid over the built-in rules")
}

func runRules(cmd *cobra.Command, args []string) error {
	rules, err := matcher.LoadRuleSet(viper.GetString("matching.rules_file"))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(args) == 0 {
		return rules.WriteYAML(out)
	}

	missing := 0
	for _, label := range args {
		rule, ok := rules.Lookup(label)
		if !ok {
			fmt.Fprintf(out, "%s\t(no rule, left unmatched)\n", label)
			missing++
			continue
		}
		fmt.Fprintf(out, "%s\t%s\n", label, rule)
	}
	if missing == len(args) {
		return fmt.Errorf("none of the %d labels has a rule", len(args))
	}
	return nil
}
