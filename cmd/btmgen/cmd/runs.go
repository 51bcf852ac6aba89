package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/solatis/btmgen/internal/core/db"
)

var runsLimit int

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recorded generation runs, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		database, err := openDB(true)
		if err != nil {
			return err
		}
		defer database.Close()

		store, err := runStore(cmd.Context(), database)
		if err != nil {
			return err
		}
		runs, err := store.ListRuns(cmd.Context(), runsLimit)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "RUN\tSTARTED\tSTATUS\tFILES\tRULES\tSHARDS\tSOURCES")
		for _, r := range runs {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
				r.ID, r.StartedAt.UTC().Format(time.RFC3339), r.Status,
				r.FilesScanned, r.Rules, r.Shards, strings.Join(r.SrcDirs, ","))
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(runsCmd)
	runsCmd.Flags().IntVar(&runsLimit, "limit", db.DefaultRunLimit, "maximum runs to list")
}
