// Package generate runs one scan-render-write pass over a set of source
// roots and produces the sharded rule files.
package generate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/solatis/btmgen/internal/core/config"
	"github.com/solatis/btmgen/internal/render"
	"github.com/solatis/btmgen/internal/safeeval"
	"github.com/solatis/btmgen/internal/scan"
	"github.com/solatis/btmgen/internal/shard"
	"github.com/solatis/btmgen/internal/types"
	"github.com/solatis/btmgen/internal/writer"
)

// Recorder persists run bookkeeping. A nil Recorder disables recording.
type Recorder interface {
	CreateRun(ctx context.Context, run *types.Run) error
	FinishRun(ctx context.Context, run *types.Run) error
	AddRunFile(ctx context.Context, file types.RunFile) error
}

// Generator executes generation runs for one configuration.
type Generator struct {
	Config   *config.GenerateConfig
	Logger   *slog.Logger
	Recorder Recorder
	// Clock stamps the header and run record; nil means time.Now.
	Clock func() time.Time
}

// Result summarises a finished run.
type Result struct {
	RunID      types.RunID
	Scan       scan.Stats
	Rules      int
	Dropped    int
	Predicates int
	Files      []writer.File
	// Manifest is the predicate manifest path, empty outside safe mode.
	Manifest string
}

// Run walks, scans, renders and writes. Missing source roots are skipped
// with a warning. When a Recorder is set the run is recorded even if it
// fails.
func (g *Generator) Run(ctx context.Context) (res *Result, err error) {
	cfg := g.Config
	if cfg == nil {
		return nil, fmt.Errorf("%w: no generate configuration", types.ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := g.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := time.Now
	if g.Clock != nil {
		now = g.Clock
	}

	run := &types.Run{
		ID:        types.NewRunID(),
		StartedAt: now().UTC(),
		Status:    types.RunRunning,
		SrcDirs:   cfg.SrcDirs,
		OutputDir: cfg.OutputDir,
		Shards:    cfg.Shards,
	}
	logger = logger.With("run_id", run.ID)

	if g.Recorder != nil {
		if err := g.Recorder.CreateRun(ctx, run); err != nil {
			return nil, fmt.Errorf("failed to record run: %w", err)
		}
		defer func() {
			g.finish(context.WithoutCancel(ctx), logger, run, res, err, now)
		}()
	}

	res, err = g.execute(ctx, logger, run.ID, now())
	return res, err
}

func (g *Generator) finish(ctx context.Context, logger *slog.Logger, run *types.Run, res *Result, runErr error, now func() time.Time) {
	run.FinishedAt = now().UTC()
	run.Status = types.RunSucceeded
	if runErr != nil {
		run.Status = types.RunFailed
		run.Error = runErr.Error()
	}
	if res != nil {
		run.FilesScanned = res.Scan.FilesScanned
		run.FilesSkipped = res.Scan.FilesSkipped
		run.Events = res.Scan.Events
		run.Rules = res.Rules
		for _, f := range res.Files {
			rf := types.RunFile{RunID: run.ID, Shard: f.Shard, Rotation: f.Rotation, Path: f.Path, Bytes: f.Bytes}
			if err := g.Recorder.AddRunFile(ctx, rf); err != nil {
				logger.Warn("failed to record run file", "file", f.Path, "err", err)
			}
		}
	}
	if err := g.Recorder.FinishRun(ctx, run); err != nil {
		logger.Warn("failed to record run result", "err", err)
	}
}

func (g *Generator) execute(ctx context.Context, logger *slog.Logger, runID types.RunID, startedAt time.Time) (*Result, error) {
	cfg := g.Config

	files, err := g.walk(logger)
	if err != nil {
		return nil, err
	}

	collector := &scan.Collector{
		Options: scan.Options{
			Packages:  scan.PackageFilter{Include: cfg.PkgPrefixes, Exclude: cfg.ExcludePkgs},
			EntryExit: cfg.EntryExit,
		},
		MaxFileBytes: cfg.MaxFileBytes,
		Parallelism:  cfg.Parallelism,
		Logger:       logger,
	}
	events, stats, err := collector.Collect(ctx, files)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(events, func(i, j int) bool { return types.Less(events[i], events[j]) })

	renderer := render.New(render.Options{
		HelperFQCN:      cfg.HelperFQCN,
		SafeEvalFQCN:    cfg.SafeEvalFQCN,
		SafeMode:        cfg.SafeMode,
		ForceHelper:     cfg.ForceHelperForWhitelist,
		EntryExit:       cfg.EntryExit,
		TrackedVars:     cfg.TrackedVars,
		MaxStringLength: cfg.MaxStringLength,
	})
	rendered := renderer.RenderAll(events)
	rules := FilterMinBranches(rendered, cfg.MinBranchesPerMethod)

	res := &Result{
		RunID:   runID,
		Scan:    stats,
		Rules:   len(rules),
		Dropped: len(rendered) - len(rules),
	}

	written, err := g.write(ctx, logger, rules, startedAt)
	res.Files = written
	if err != nil {
		return res, err
	}

	if cfg.SafeMode {
		path, n, err := writeManifest(cfg, renderer.Registrations(), rules)
		if err != nil {
			return res, err
		}
		res.Manifest = path
		res.Predicates = n
	}

	logger.Info("generation finished",
		"files", stats.FilesScanned,
		"events", stats.Events,
		"rules", res.Rules,
		"dropped", res.Dropped,
		"shards", cfg.Shards)
	return res, nil
}

func (g *Generator) walk(logger *slog.Logger) ([]scan.SourceFile, error) {
	cfg := g.Config
	opts := scan.WalkOptions{
		IncludeJava:      cfg.IncludeJava,
		IncludePatterns:  cfg.IncludePatterns,
		ExcludePatterns:  cfg.ExcludePatterns,
		RespectGitignore: cfg.RespectGitignore,
	}
	var files []scan.SourceFile
	for _, root := range cfg.SrcDirs {
		info, err := os.Stat(root)
		if err != nil || !info.IsDir() {
			logger.Warn("skipping missing source root", "root", root)
			continue
		}
		found, err := scan.Walk(root, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to walk %s: %w", root, err)
		}
		logger.Debug("walked source root", "root", root, "files", len(found))
		files = append(files, found...)
	}
	return files, nil
}

func (g *Generator) write(ctx context.Context, logger *slog.Logger, rules []render.Rule, now time.Time) ([]writer.File, error) {
	cfg := g.Config
	w, err := writer.New(cfg.OutputDir, cfg.WriterOptions())
	if err != nil {
		return nil, err
	}
	if err := w.WriteHeader(Header(cfg, now)); err != nil {
		return nil, errors.Join(err, w.Close())
	}

	buckets := make([][]string, w.Shards())
	for _, r := range rules {
		idx := shard.StableShard(r.ShardKey, w.Shards())
		buckets[idx] = append(buckets[idx], r.Text)
	}

	var appendErr error
	if cfg.WriterThreadSafe {
		eg, ctx := errgroup.WithContext(ctx)
		for idx, bucket := range buckets {
			eg.Go(func() error {
				return appendAll(ctx, w, idx, bucket)
			})
		}
		appendErr = eg.Wait()
	} else {
		for idx, bucket := range buckets {
			if appendErr = appendAll(ctx, w, idx, bucket); appendErr != nil {
				break
			}
		}
	}
	for idx, bucket := range buckets {
		logger.Debug("shard written", "shard", idx, "rules", len(bucket))
	}

	closeErr := w.Close()
	files := w.Files()
	if appendErr != nil {
		return files, errors.Join(appendErr, closeErr)
	}
	if closeErr != nil {
		return files, fmt.Errorf("failed to close writer: %w", closeErr)
	}
	return files, nil
}

func appendAll(ctx context.Context, w *writer.ShardedWriter, idx int, texts []string) error {
	for _, text := range texts {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := w.Append(idx, text); err != nil {
			return err
		}
	}
	return nil
}

// Header renders the comment block written at the top of every shard.
func Header(cfg *config.GenerateConfig, now time.Time) string {
	var b strings.Builder
	if cfg.IncludeTimestamp {
		fmt.Fprintf(&b, "# Generated at %s by %s\n", now.UTC().Format(time.RFC3339), types.GeneratorName)
	} else {
		fmt.Fprintf(&b, "# Generated by %s\n", types.GeneratorName)
	}
	fmt.Fprintf(&b, "# Helper: %s\n", cfg.HelperFQCN)
	if len(cfg.PkgPrefixes) > 0 {
		fmt.Fprintf(&b, "# Package prefix filters: %s\n", strings.Join(cfg.PkgPrefixes, ", "))
	}
	if tracked := dedupe(cfg.TrackedVars); len(tracked) > 0 {
		fmt.Fprintf(&b, "# Tracked variables: %s\n", strings.Join(tracked, ", "))
	}
	b.WriteString("\n")
	return b.String()
}

func dedupe(values []string) []string {
	seen := make(map[string]bool, len(values))
	var out []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" && !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

// FilterMinBranches drops every rule of a method with fewer than min branch
// rules. Entry and exit rules share their method's fate. min <= 0 keeps all.
func FilterMinBranches(rules []render.Rule, min int) []render.Rule {
	if min <= 0 {
		return rules
	}
	counts := make(map[string]int)
	for _, r := range rules {
		if r.Branch {
			counts[r.MethodKey()]++
		}
	}
	kept := make([]render.Rule, 0, len(rules))
	for _, r := range rules {
		if counts[r.MethodKey()] >= min {
			kept = append(kept, r)
		}
	}
	return kept
}

// writeManifest stores the registrations whose rules survived filtering.
func writeManifest(cfg *config.GenerateConfig, regs []render.Registration, rules []render.Rule) (string, int, error) {
	methods := make(map[string]bool)
	for _, r := range rules {
		methods[r.MethodKey()] = true
	}
	m := &safeeval.Manifest{Helper: cfg.SafeEvalFQCN}
	for _, reg := range regs {
		if !methods[reg.FQCN+"."+reg.Method] {
			continue
		}
		m.Predicates = append(m.Predicates, safeeval.Entry{
			RuleID:     reg.RuleID,
			Class:      reg.FQCN,
			Method:     reg.Method,
			Line:       reg.Line,
			Condition:  reg.Condition,
			Expression: reg.HelperExpr,
		})
	}
	path := filepath.Join(cfg.OutputDir, safeeval.ManifestFile)
	if err := safeeval.WriteManifest(path, m); err != nil {
		return "", 0, err
	}
	return path, len(m.Predicates), nil
}
