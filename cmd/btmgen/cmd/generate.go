package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"github.com/solatis/btmgen/internal/core/config"
	"github.com/solatis/btmgen/internal/core/db"
	"github.com/solatis/btmgen/internal/generate"
)

var generateCmd = &cobra.Command{
	Use:   "generate [src-dir...]",
	Short: "Scan sources and write Byteman rule shards",
	Long: `Scan Java and Kotlin sources and write sharded .btm rule files.

Source directories given as arguments replace generate.src_dirs from the
configuration. Flags override environment (BTM_GENERATE_*) and config file
values.`,
	RunE: runGenerate,
}

func init() {
	rootCmd.AddCommand(generateCmd)
	d := config.DefaultGenerateConfig()
	f := generateCmd.Flags()
	f.String("out", d.OutputDir, "output directory")
	f.String("helper", d.HelperFQCN, "helper class referenced by every rule")
	f.String("safe-eval", d.SafeEvalFQCN, "safe evaluation helper class used in safe mode")
	f.StringSlice("pkg-prefix", nil, "only include packages with this prefix (repeatable)")
	f.StringSlice("exclude-pkg", nil, "exclude packages with this prefix (repeatable)")
	f.StringSlice("include", nil, "only include files matching this glob (repeatable)")
	f.StringSlice("exclude", nil, "exclude files matching this glob (repeatable)")
	f.Bool("java", d.IncludeJava, "also scan .java files")
	f.Bool("entry-exit", d.EntryExit, "emit method entry and exit rules")
	f.StringSlice("track", nil, "trace writes to this local variable (repeatable)")
	f.Int("shards", d.Shards, "number of output shards")
	f.Bool("gzip", d.Gzip, "gzip output files")
	f.Bool("safe-mode", d.SafeMode, "never embed raw conditions in rules")
	f.Bool("force-helper", d.ForceHelperForWhitelist, "route whitelisted conditions through the helper in safe mode")
	f.Int("min-branches", d.MinBranchesPerMethod, "drop methods with fewer branch rules")
	f.Int("max-string-length", d.MaxStringLength, "truncate emitted strings (0 disables)")
	f.Int64("max-file-bytes", d.MaxFileBytes, "skip source files larger than this (0 = no limit)")
	f.Int("parallelism", d.Parallelism, "concurrent file scans")
	f.Bool("gitignore", d.RespectGitignore, "honour .gitignore in source roots")
	f.Bool("timestamp", d.IncludeTimestamp, "include a generation timestamp in the header")
	f.Bool("thread-safe", d.WriterThreadSafe, "append to shards concurrently")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	gen := cfg.Generate
	if len(args) > 0 {
		gen.SrcDirs = args
	}

	g := &generate.Generator{Config: gen, Logger: slog.Default()}

	database, err := openDB(false)
	if err != nil {
		return err
	}
	if database != nil {
		defer database.Close()
		store, err := runStore(ctx, database)
		if err != nil {
			return err
		}
		g.Recorder = store
	}

	res, err := g.Run(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "run %s: %d files scanned, %d skipped, %d events, %d rules", res.RunID, res.Scan.FilesScanned, res.Scan.FilesSkipped, res.Scan.Events, res.Rules)
	if res.Dropped > 0 {
		fmt.Fprintf(out, " (%d dropped)", res.Dropped)
	}
	fmt.Fprintln(out)
	for _, f := range res.Files {
		fmt.Fprintf(out, "  shard %d: %s (%d bytes)\n", f.Shard, f.Path, f.Bytes)
	}
	if res.Manifest != "" {
		fmt.Fprintf(out, "  predicates: %s (%d entries)\n", res.Manifest, res.Predicates)
	}
	return nil
}

// runStore verifies the schema before handing out a store.
func runStore(ctx context.Context, database *sqlx.DB) (*db.RunStore, error) {
	if err := db.RequireMigrated(ctx, database); err != nil {
		return nil, err
	}
	store, err := db.NewRunStore(database)
	if err != nil {
		return nil, fmt.Errorf("failed to load queries: %w", err)
	}
	return store, nil
}
