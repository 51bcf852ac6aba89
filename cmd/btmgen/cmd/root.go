package cmd

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"github.com/solatis/btmgen/internal/core/db"
	"github.com/solatis/btmgen/internal/core/logging"
	"github.com/solatis/btmgen/internal/types"
)

// Version is the btmgen release.
const Version = "0.1.0"

var (
	configFile string
	dbURL      string
	logLevel   string
	logFormat  string
)

var rootCmd = &cobra.Command{
	Use:     "btmgen",
	Short:   "Byteman rule generator for Java and Kotlin sources",
	Long:    `btmgen scans Java and Kotlin sources and writes sharded Byteman rule scripts that trace branches, selectors and method entry and exit.`,
	Version: Version,
	// Usage on every runtime error buries the error itself.
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_, err := logging.Init(logFormat, logLevel)
		return err
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&dbURL, "db-url", "", "database connection URL (sqlite://path or postgres://...)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "auto", "log format (json, text, auto = text on a terminal)")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// openDB opens --db-url. Commands that need run history call it with
// required set; others skip recording when no URL is given.
func openDB(required bool) (*sqlx.DB, error) {
	if dbURL == "" {
		if required {
			return nil, fmt.Errorf("--db-url required: %w", types.ErrDatabaseRequired)
		}
		return nil, nil
	}
	database, err := db.Open(dbURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return database, nil
}
