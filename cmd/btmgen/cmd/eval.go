package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/solatis/btmgen/internal/safeeval"
)

var evalCmd = &cobra.Command{
	Use:   "eval",
	Short: "Evaluate a predicate manifest against variable bindings",
	Long: `Compile every predicate in a safe-mode predicates.yaml and evaluate it
against the given bindings, the way the generated registration blocks would.

Bindings are name=value pairs; dotted names address nested values and
values are coerced (null, true/false, numbers, quoted strings).`,
	Example: `  btmgen eval --predicates build/forensics/predicates.yaml --bind value=7 --bind user.status='"OK"'`,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("predicates")
		binds, _ := cmd.Flags().GetStringArray("bind")

		m, err := safeeval.LoadManifest(path)
		if err != nil {
			return err
		}
		bindings, err := safeeval.ParseBindings(binds)
		if err != nil {
			return err
		}

		reg := safeeval.NewRegistry()
		if _, err := m.Register(reg, bindings); err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "RULE\tLOCATION\tCONDITION\tMATCH")
		for _, e := range m.Predicates {
			fmt.Fprintf(w, "%s\t%s.%s:%d\t%s\t%t\n", e.RuleID, e.Class, e.Method, e.Line, e.Condition, reg.IfMatch(e.RuleID))
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(evalCmd)
	evalCmd.Flags().String("predicates", "predicates.yaml", "predicate manifest written in safe mode")
	evalCmd.Flags().StringArray("bind", nil, "name=value binding (repeatable)")
}
