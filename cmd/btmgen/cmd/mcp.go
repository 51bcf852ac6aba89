package cmd

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/solatis/btmgen/internal/core/api"
	"github.com/solatis/btmgen/internal/core/tools"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve btmgen as MCP tools over stdio",
	Long: `Run a Model Context Protocol server on stdin/stdout exposing the
generate, eval_predicates, list_runs and status tools.

Logs go to stderr. With --db-url set, runs are recorded and list_runs works.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		var store api.RunStore
		database, err := openDB(false)
		if err != nil {
			return err
		}
		if database != nil {
			defer database.Close()
			s, err := runStore(ctx, database)
			if err != nil {
				return err
			}
			store = s
		}

		logger := slog.Default()
		logger.Info("starting btmgen MCP server", "version", Version, "history", store != nil)
		return tools.Run(ctx, tools.NewServer(Version, store, logger))
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
